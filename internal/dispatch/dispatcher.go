package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/pkg/interfaces"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Количество доставок вебхуков по исходу",
	}, []string{"result"})
	deliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_deliveries_dropped_total",
		Help: "Количество доставок, вытесненных из переполненной очереди",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webhook_queue_depth",
		Help: "Текущая глубина очереди доставки",
	})
	workersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webhook_workers_active",
		Help: "Количество живых воркеров доставки",
	})
	deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_delivery_duration_seconds",
		Help:    "Длительность одной попытки доставки вебхука",
		Buckets: prometheus.DefBuckets,
	})
)

// Delivery - одно задание на доставку: событие продукта,
// адресованное конкретному вебхуку
type Delivery struct {
	Webhook   *models.Webhook
	EventType string
	Payload   []byte
}

// Options настраивает пул доставки
type Options struct {
	// Workers - количество горутин доставки
	Workers int
	// QueueSize - глубина очереди; при переполнении вытесняется
	// самое старое задание
	QueueSize int
	// MaxAttempts - потолок попыток на одну доставку
	MaxAttempts int
	// RetryBackoff - базовая задержка экспоненциального повтора
	RetryBackoff time.Duration
	// Timeout - таймаут одного запроса доставки
	Timeout time.Duration
}

// Dispatcher доставляет события продуктов на подписанные вебхуки
// пулом воркеров фиксированного размера. Очередь ограничена:
// при переполнении старые задания вытесняются новыми, доставка
// никогда не тормозит породившую событие операцию
type Dispatcher struct {
	opts   Options
	client *http.Client
	logger interfaces.LoggerPort

	mu    sync.Mutex // сериализует вытеснение при переполнении
	queue chan *Delivery

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDispatcher создает пул доставки
func NewDispatcher(opts Options, logger interfaces.LoggerPort) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	return &Dispatcher{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger,
		queue:  make(chan *Delivery, opts.QueueSize),
	}
}

// Start запускает воркеры доставки. Воркеры живут до отмены ctx
// и опустошения очереди через Stop
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Info("webhook dispatcher started",
		"workers", d.opts.Workers, "queue_size", d.opts.QueueSize)
}

// Enqueue ставит доставку в очередь. Если очередь заполнена,
// самое старое задание вытесняется, чтобы освободить место новому
func (d *Dispatcher) Enqueue(delivery *Delivery) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		select {
		case d.queue <- delivery:
			queueDepth.Set(float64(len(d.queue)))
			return
		default:
		}

		select {
		case dropped := <-d.queue:
			deliveriesDropped.Inc()
			d.logger.Warn("webhook delivery dropped from full queue",
				"webhook_id", dropped.Webhook.ID, "event_type", dropped.EventType)
		default:
		}
	}
}

// Stop закрывает очередь и дожидается завершения воркеров
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
	d.logger.Info("webhook dispatcher stopped")
}

// worker забирает задания из очереди и доставляет их
func (d *Dispatcher) worker(ctx context.Context, id int) {
	workersActive.Inc()
	defer func() {
		workersActive.Dec()
		d.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-d.queue:
			if !ok {
				return
			}
			queueDepth.Set(float64(len(d.queue)))
			d.deliver(ctx, delivery)
		}
	}
}

// deliver выполняет доставку с экспоненциальными повторами.
// Неудача после всех попыток логируется и не эскалируется:
// доставка вебхуков негарантированная
func (d *Dispatcher) deliver(ctx context.Context, delivery *Delivery) {
	var lastErr error

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := d.opts.RetryBackoff << (attempt - 2)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}

		if err := d.post(ctx, delivery); err != nil {
			lastErr = err
			continue
		}

		deliveriesTotal.WithLabelValues("success").Inc()
		d.logger.Debug("webhook delivered",
			"webhook_id", delivery.Webhook.ID,
			"event_type", delivery.EventType,
			"attempt", attempt)
		return
	}

	deliveriesTotal.WithLabelValues("failure").Inc()
	d.logger.Error("webhook delivery failed after all attempts",
		"webhook_id", delivery.Webhook.ID,
		"url", delivery.Webhook.URL,
		"event_type", delivery.EventType,
		"attempts", d.opts.MaxAttempts,
		"error", lastErr)
}

// post выполняет одну попытку доставки
func (d *Dispatcher) post(ctx context.Context, delivery *Delivery) error {
	reqCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	started := time.Now()
	defer func() {
		deliveryDuration.Observe(time.Since(started).Seconds())
	}()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		delivery.Webhook.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", delivery.EventType)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}
