package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/internal/utils"
	"github.com/athebyme/gomarket-platform/import-service/pkg/interfaces"
)

// JobRegistryInterface определяет реестр заданий импорта: хранение снимков
// состояния и подписку на их обновления
type JobRegistryInterface interface {
	// Create регистрирует новое задание
	Create(ctx context.Context, job *models.ImportJob) error

	// Get возвращает снимок состояния задания.
	// Возвращает utils.ErrJobNotFound, если задание неизвестно
	// или срок его хранения истек
	Get(ctx context.Context, jobID string) (*models.ImportJob, error)

	// Update применяет изменение к заданию и оповещает подписчиков.
	// После перехода в конечный статус каналы подписчиков закрываются,
	// а снимку выставляется срок хранения
	Update(ctx context.Context, jobID string, mutate func(job *models.ImportJob)) (*models.ImportJob, error)

	// Subscribe возвращает канал обновлений задания. Первым в канал
	// попадает текущий снимок. Канал закрывается после конечного
	// статуса задания или по вызову cancel
	Subscribe(ctx context.Context, jobID string) (<-chan *models.ImportJob, func(), error)
}

// jobKey возвращает ключ снимка задания в кэше
func jobKey(jobID string) string {
	return "import:job:" + jobID
}

// jobSubscriber - один подписчик на обновления задания.
// Канал имеет емкость 1 и работает с вытеснением: подписчику важен
// только самый свежий снимок, промежуточные можно терять
type jobSubscriber struct {
	ch     chan *models.ImportJob
	closed bool
}

// JobRegistry хранит снимки заданий в кэше и раздает обновления
// локальным подписчикам SSE.
// Снимок пишется целиком одной операцией, поэтому читатели никогда
// не видят частичного состояния.
type JobRegistry struct {
	cache     interfaces.CachePort
	logger    interfaces.LoggerPort
	retention time.Duration

	mu   sync.Mutex
	subs map[string][]*jobSubscriber
}

// NewJobRegistry создает реестр заданий.
// retention - срок хранения снимка после конечного статуса задания
func NewJobRegistry(cache interfaces.CachePort, logger interfaces.LoggerPort, retention time.Duration) *JobRegistry {
	return &JobRegistry{
		cache:     cache,
		logger:    logger,
		retention: retention,
		subs:      make(map[string][]*jobSubscriber),
	}
}

// Create регистрирует новое задание
func (r *JobRegistry) Create(ctx context.Context, job *models.ImportJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	return r.save(ctx, job)
}

// Get возвращает снимок состояния задания
func (r *JobRegistry) Get(ctx context.Context, jobID string) (*models.ImportJob, error) {
	data, err := r.cache.Get(ctx, jobKey(jobID))
	if err != nil {
		if errors.Is(err, interfaces.ErrCacheMiss) {
			return nil, utils.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}

	var job models.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal import job: %w", err)
	}
	return &job, nil
}

// Update применяет изменение к заданию и оповещает подписчиков.
// Писатель у задания ровно один (его горутина импорта), поэтому
// чтение-изменение-запись здесь не гоняется с другими писателями.
func (r *JobRegistry) Update(ctx context.Context, jobID string, mutate func(job *models.ImportJob)) (*models.ImportJob, error) {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	mutate(job)

	if err := r.save(ctx, job); err != nil {
		return nil, err
	}

	if job.Status.IsTerminal() {
		if err := r.cache.Expire(ctx, jobKey(jobID), r.retention); err != nil {
			r.logger.Warn("failed to set import job retention",
				"job_id", jobID, "error", err)
		}
	}

	r.notify(jobID, job)
	return job, nil
}

// Subscribe возвращает канал обновлений задания
func (r *JobRegistry) Subscribe(ctx context.Context, jobID string) (<-chan *models.ImportJob, func(), error) {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	sub := &jobSubscriber{ch: make(chan *models.ImportJob, 1)}
	sub.ch <- job

	if job.Status.IsTerminal() {
		// Задание уже завершено: подписчик получит конечный снимок
		// и сразу закрытый канал
		close(sub.ch)
		sub.closed = true
		return sub.ch, func() {}, nil
	}

	r.mu.Lock()
	r.subs[jobID] = append(r.subs[jobID], sub)
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.subs[jobID]
		for i, s := range list {
			if s == sub {
				r.subs[jobID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(r.subs[jobID]) == 0 {
			delete(r.subs, jobID)
		}
		if !sub.closed {
			close(sub.ch)
			sub.closed = true
		}
	}

	return sub.ch, cancel, nil
}

// save сериализует снимок задания и пишет его целиком
func (r *JobRegistry) save(ctx context.Context, job *models.ImportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal import job: %w", err)
	}
	if err := r.cache.Set(ctx, jobKey(job.ID), data, 0); err != nil {
		return fmt.Errorf("failed to save import job: %w", err)
	}
	return nil
}

// notify раздает снимок всем подписчикам задания. Если подписчик не
// успел забрать предыдущий снимок, тот вытесняется свежим. После
// конечного статуса все каналы закрываются и подписка снимается.
func (r *JobRegistry) notify(jobID string, job *models.ImportJob) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subs[jobID] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- job:
		default:
			// Вытесняем устаревший снимок
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- job:
			default:
			}
		}
	}

	if job.Status.IsTerminal() {
		for _, sub := range r.subs[jobID] {
			if !sub.closed {
				close(sub.ch)
				sub.closed = true
			}
		}
		delete(r.subs, jobID)
	}
}
