package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/internal/utils"
	"github.com/athebyme/gomarket-platform/import-service/pkg/interfaces"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	importRowsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "import_rows_processed_total",
		Help: "Общее количество обработанных строк CSV",
	})
	importRowsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "import_rows_skipped_total",
		Help: "Общее количество пропущенных строк CSV",
	})
	importJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "import_jobs_total",
		Help: "Количество заданий импорта по конечному статусу",
	}, []string{"status"})
	importDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "import_duration_seconds",
		Help:    "Длительность выполнения задания импорта",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// requiredColumns - колонки, обязанные присутствовать в заголовке CSV.
// Лишние колонки допустимы и игнорируются
var requiredColumns = []string{"sku", "name", "description", "active"}

// ProductUpserter - подмножество хранилища, нужное импорту
type ProductUpserter interface {
	UpsertProductBatch(ctx context.Context, products []*models.Product) error
}

// ImportOptions настраивает поведение импорта
type ImportOptions struct {
	// BatchSize - размер пачки upsert
	BatchSize int
	// MaxRows - потолок строк данных в одном файле
	MaxRows int
	// SkipThreshold - доля пропущенных строк от общего числа,
	// при превышении которой задание завершается ошибкой
	SkipThreshold float64
}

// ImportServiceInterface определяет сервис асинхронного импорта CSV
type ImportServiceInterface interface {
	// StartImport принимает содержимое CSV-файла, регистрирует задание
	// и запускает его выполнение в фоне. Возвращает идентификатор задания
	StartImport(ctx context.Context, file io.Reader, filename string) (string, error)
}

// ImportService выполняет импорт продуктов из CSV.
// Файл сначала целиком сбрасывается во временный файл с подсчетом строк:
// так потолок строк проверяется до создания задания, а прогресс
// считается от точного общего числа строк
type ImportService struct {
	storage  ProductUpserter
	registry JobRegistryInterface
	logger   interfaces.LoggerPort
	opts     ImportOptions
}

// NewImportService создает сервис импорта
func NewImportService(
	storage ProductUpserter,
	registry JobRegistryInterface,
	logger interfaces.LoggerPort,
	opts ImportOptions,
) *ImportService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = 500000
	}
	if opts.SkipThreshold <= 0 {
		opts.SkipThreshold = 0.5
	}
	return &ImportService{
		storage:  storage,
		registry: registry,
		logger:   logger,
		opts:     opts,
	}
}

// StartImport принимает содержимое CSV-файла и запускает импорт в фоне
func (s *ImportService) StartImport(ctx context.Context, file io.Reader, filename string) (string, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return "", utils.ErrNotCSV
	}

	tmpPath, totalRows, err := s.spool(file)
	if err != nil {
		return "", err
	}

	jobID := uuid.New().String()
	job := &models.ImportJob{
		ID:        jobID,
		Status:    models.JobStatusQueued,
		TotalRows: totalRows,
		Message:   "Import queued",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.registry.Create(ctx, job); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to register import job: %w", err)
	}

	s.logger.InfoWithContext(ctx, "import job accepted",
		"job_id", jobID, "filename", filename, "total_rows", totalRows)

	go s.run(jobID, tmpPath, totalRows)

	return jobID, nil
}

// spool сбрасывает загрузку во временный файл, попутно считая строки.
// Потолок строк проверяется еще во время копирования, чтобы не держать
// на диске заведомо отвергаемые файлы целиком
func (s *ImportService) spool(file io.Reader) (string, int, error) {
	tmp, err := os.CreateTemp("", "import-*.csv")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	var (
		newlines    int
		lastByte    byte
		sawAnything bool
	)
	buf := make([]byte, 64*1024)
	for {
		n, readErr := file.Read(buf)
		if n > 0 {
			sawAnything = true
			newlines += bytes.Count(buf[:n], []byte{'\n'})
			lastByte = buf[n-1]

			if newlines-1 > s.opts.MaxRows {
				tmp.Close()
				_ = os.Remove(tmp.Name())
				return "", 0, utils.ErrTooManyRows
			}

			if _, err := tmp.Write(buf[:n]); err != nil {
				tmp.Close()
				_ = os.Remove(tmp.Name())
				return "", 0, fmt.Errorf("failed to spool upload: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmp.Close()
			_ = os.Remove(tmp.Name())
			return "", 0, fmt.Errorf("failed to read upload: %w", readErr)
		}
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("failed to flush temp file: %w", err)
	}

	lines := newlines
	if sawAnything && lastByte != '\n' {
		lines++ // последняя строка без перевода строки
	}

	// Первая строка - заголовок
	totalRows := lines - 1
	if totalRows < 0 {
		totalRows = 0
	}
	if totalRows > s.opts.MaxRows {
		_ = os.Remove(tmp.Name())
		return "", 0, utils.ErrTooManyRows
	}

	return tmp.Name(), totalRows, nil
}

// run выполняет задание импорта. Вызывается в отдельной горутине,
// контекст фоновый: задание живет дольше HTTP-запроса загрузки
func (s *ImportService) run(jobID, tmpPath string, totalRows int) {
	ctx := context.Background()
	started := time.Now()
	defer func() {
		_ = os.Remove(tmpPath)
		importDuration.Observe(time.Since(started).Seconds())
	}()

	f, err := os.Open(tmpPath)
	if err != nil {
		s.fail(ctx, jobID, fmt.Sprintf("failed to open spooled file: %v", err))
		return
	}
	defer f.Close()

	// Количество полей сверяется с заголовком: короткие и длинные
	// строки дают csv.ErrFieldCount и пропускаются
	reader := csv.NewReader(f)

	columns, err := s.readHeader(reader)
	if err != nil {
		s.fail(ctx, jobID, err.Error())
		return
	}

	if _, err := s.registry.Update(ctx, jobID, func(job *models.ImportJob) {
		job.Status = models.JobStatusParsing
		job.Message = "Parsing CSV file"
	}); err != nil {
		s.logger.Error("failed to mark import job as parsing", "job_id", jobID, "error", err)
		return
	}

	var (
		processed int
		skipped   int
		batch     = make([]*models.Product, 0, s.opts.BatchSize)
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.storage.UpsertProductBatch(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	publish := func() {
		if _, err := s.registry.Update(ctx, jobID, func(job *models.ImportJob) {
			job.ProcessedRows = processed
			job.SkippedRows = skipped
			job.Progress = progressPercent(processed, totalRows)
		}); err != nil {
			s.logger.Warn("failed to publish import progress", "job_id", jobID, "error", err)
		}
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) && errors.Is(parseErr.Err, csv.ErrFieldCount) {
				processed++
				skipped++
				importRowsSkipped.Inc()
				if float64(skipped) > s.opts.SkipThreshold*float64(totalRows) {
					_ = flush()
					s.fail(ctx, jobID, fmt.Sprintf("too many invalid rows: %d of %d skipped", skipped, totalRows))
					return
				}
				continue
			}
			// Файл поврежден, продолжать чтение бессмысленно
			_ = flush()
			s.fail(ctx, jobID, fmt.Sprintf("malformed CSV: %v", err))
			return
		}

		processed++
		importRowsProcessed.Inc()

		product, ok := s.parseRow(record, columns)
		if !ok {
			skipped++
			importRowsSkipped.Inc()
			if float64(skipped) > s.opts.SkipThreshold*float64(totalRows) {
				_ = flush()
				s.fail(ctx, jobID, fmt.Sprintf("too many invalid rows: %d of %d skipped", skipped, totalRows))
				return
			}
			continue
		}

		batch = append(batch, product)
		if len(batch) >= s.opts.BatchSize {
			if err := flush(); err != nil {
				s.fail(ctx, jobID, fmt.Sprintf("failed to save products: %v", err))
				return
			}
			publish()
		}
	}

	if err := flush(); err != nil {
		s.fail(ctx, jobID, fmt.Sprintf("failed to save products: %v", err))
		return
	}

	if _, err := s.registry.Update(ctx, jobID, func(job *models.ImportJob) {
		job.Status = models.JobStatusComplete
		job.ProcessedRows = processed
		job.SkippedRows = skipped
		job.Progress = 100
		job.Message = fmt.Sprintf("Import complete: %d rows processed, %d skipped", processed, skipped)
	}); err != nil {
		s.logger.Error("failed to mark import job as complete", "job_id", jobID, "error", err)
		return
	}

	importJobsTotal.WithLabelValues(string(models.JobStatusComplete)).Inc()
	s.logger.Info("import job complete",
		"job_id", jobID, "processed", processed, "skipped", skipped,
		"duration", time.Since(started).String())
}

// readHeader читает заголовок CSV и строит отображение имени колонки
// в ее позицию. Имена сравниваются без учета регистра
func (s *ImportService) readHeader(reader *csv.Reader) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %v", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for _, required := range requiredColumns {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("CSV header is missing required column %q", required)
		}
	}
	return columns, nil
}

// parseRow превращает строку CSV в продукт. Возвращает false, если
// строка подлежит пропуску: пустой SKU или имя, нераспознанный active
func (s *ImportService) parseRow(record []string, columns map[string]int) (*models.Product, bool) {
	field := func(name string) (string, bool) {
		idx := columns[name]
		if idx >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[idx]), true
	}

	sku, ok := field("sku")
	if !ok || sku == "" {
		return nil, false
	}
	name, ok := field("name")
	if !ok || name == "" {
		return nil, false
	}
	description, _ := field("description")

	// Пустой active трактуется как true
	active := true
	if raw, ok := field("active"); ok && raw != "" {
		switch strings.ToLower(raw) {
		case "true":
			active = true
		case "false":
			active = false
		default:
			return nil, false
		}
	}

	return &models.Product{
		SKU:         sku,
		Name:        name,
		Description: description,
		Active:      active,
	}, true
}

// fail переводит задание в конечный статус ошибки
func (s *ImportService) fail(ctx context.Context, jobID, message string) {
	importJobsTotal.WithLabelValues(string(models.JobStatusError)).Inc()
	if _, err := s.registry.Update(ctx, jobID, func(job *models.ImportJob) {
		job.Status = models.JobStatusError
		job.Error = message
		job.Message = "Import failed"
	}); err != nil {
		s.logger.Error("failed to mark import job as failed",
			"job_id", jobID, "reason", message, "error", err)
	}
}

// progressPercent считает процент выполнения c округлением вниз
func progressPercent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	p := processed * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}
