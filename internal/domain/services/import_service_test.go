package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImportFixture(t *testing.T, opts ImportOptions) (*ImportService, *memStorage, *JobRegistry) {
	t.Helper()
	storage := newMemStorage()
	registry := NewJobRegistry(newMemCache(), nopLogger{}, time.Hour)
	service := NewImportService(storage, registry, nopLogger{}, opts)
	return service, storage, registry
}

// waitForTerminal дочитывает поток обновлений задания до конечного статуса
func waitForTerminal(t *testing.T, registry *JobRegistry, jobID string) *models.ImportJob {
	t.Helper()

	updates, cancel, err := registry.Subscribe(context.Background(), jobID)
	require.NoError(t, err)
	defer cancel()

	deadline := time.After(5 * time.Second)
	var last *models.ImportJob
	for {
		select {
		case job, ok := <-updates:
			if !ok {
				require.NotNil(t, last, "channel closed before any update")
				return last
			}
			last = job
			if job.Status.IsTerminal() {
				return job
			}
		case <-deadline:
			t.Fatal("import job did not reach a terminal status")
		}
	}
}

func TestImport_Success(t *testing.T) {
	service, storage, registry := newImportFixture(t, ImportOptions{})

	csv := "sku,name,description,active\n" +
		"ABC-1,Widget,A widget,true\n" +
		"ABC-2,Gadget,A gadget,false\n" +
		"ABC-3,Gizmo,,true\n"

	jobID, err := service.StartImport(context.Background(), strings.NewReader(csv), "products.csv")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job := waitForTerminal(t, registry, jobID)
	assert.Equal(t, models.JobStatusComplete, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 3, job.TotalRows)
	assert.Equal(t, 3, job.ProcessedRows)
	assert.Equal(t, 0, job.SkippedRows)

	product, err := storage.GetProductBySKU(context.Background(), "abc-2")
	require.NoError(t, err)
	require.NotNil(t, product)
	assert.Equal(t, "Gadget", product.Name)
	assert.False(t, product.Active)
}

func TestImport_DuplicateSKULastWins(t *testing.T) {
	service, storage, registry := newImportFixture(t, ImportOptions{})

	csv := "sku,name,description,active\n" +
		"ABC-1,First,old,true\n" +
		"abc-1,Second,new,false\n"

	jobID, err := service.StartImport(context.Background(), strings.NewReader(csv), "dup.csv")
	require.NoError(t, err)

	job := waitForTerminal(t, registry, jobID)
	require.Equal(t, models.JobStatusComplete, job.Status)

	product, err := storage.GetProductBySKU(context.Background(), "ABC-1")
	require.NoError(t, err)
	require.NotNil(t, product)
	assert.Equal(t, "Second", product.Name)
	assert.Equal(t, "new", product.Description)
	assert.False(t, product.Active)
}

func TestImport_SkipsInvalidRows(t *testing.T) {
	// Порог поднят: здесь проверяется пропуск строк, а не обрыв задания
	service, storage, registry := newImportFixture(t, ImportOptions{SkipThreshold: 0.9})

	csv := "sku,name,description,active\n" +
		"ABC-1,Widget,ok,true\n" +
		",NoSKU,skipped,true\n" +
		"ABC-2,,skipped,true\n" +
		"ABC-3,BadActive,skipped,yes\n" +
		"ABC-4,Short\n" +
		"ABC-5,Fine,,false\n"

	jobID, err := service.StartImport(context.Background(), strings.NewReader(csv), "mixed.csv")
	require.NoError(t, err)

	job := waitForTerminal(t, registry, jobID)
	assert.Equal(t, models.JobStatusComplete, job.Status)
	assert.Equal(t, 6, job.ProcessedRows)
	assert.Equal(t, 4, job.SkippedRows)

	for _, sku := range []string{"ABC-1", "ABC-5"} {
		product, err := storage.GetProductBySKU(context.Background(), sku)
		require.NoError(t, err)
		assert.NotNil(t, product, sku)
	}
	for _, sku := range []string{"ABC-2", "ABC-3", "ABC-4"} {
		product, err := storage.GetProductBySKU(context.Background(), sku)
		require.NoError(t, err)
		assert.Nil(t, product, sku)
	}
}

func TestImport_SkipThresholdAborts(t *testing.T) {
	service, _, registry := newImportFixture(t, ImportOptions{SkipThreshold: 0.5})

	// 3 из 4 строк невалидны - порог в половину превышен
	csv := "sku,name,description,active\n" +
		"ABC-1,Widget,ok,true\n" +
		",bad,one,true\n" +
		",bad,two,true\n" +
		",bad,three,true\n"

	jobID, err := service.StartImport(context.Background(), strings.NewReader(csv), "bad.csv")
	require.NoError(t, err)

	job := waitForTerminal(t, registry, jobID)
	assert.Equal(t, models.JobStatusError, job.Status)
	assert.Contains(t, job.Error, "too many invalid rows")
}

func TestImport_MissingHeaderColumn(t *testing.T) {
	service, _, registry := newImportFixture(t, ImportOptions{})

	csv := "sku,name,description\n" +
		"ABC-1,Widget,no active column\n"

	jobID, err := service.StartImport(context.Background(), strings.NewReader(csv), "noheader.csv")
	require.NoError(t, err)

	job := waitForTerminal(t, registry, jobID)
	assert.Equal(t, models.JobStatusError, job.Status)
	assert.Contains(t, job.Error, "active")
}

func TestImport_RejectsNonCSV(t *testing.T) {
	service, _, _ := newImportFixture(t, ImportOptions{})

	_, err := service.StartImport(context.Background(), strings.NewReader("not a csv"), "products.txt")
	assert.ErrorIs(t, err, utils.ErrNotCSV)
}

func TestImport_RejectsTooManyRows(t *testing.T) {
	service, _, _ := newImportFixture(t, ImportOptions{MaxRows: 2})

	csv := "sku,name,description,active\n" +
		"A,one,,true\n" +
		"B,two,,true\n" +
		"C,three,,true\n"

	_, err := service.StartImport(context.Background(), strings.NewReader(csv), "big.csv")
	assert.ErrorIs(t, err, utils.ErrTooManyRows)
}

func TestImport_EmptyActiveDefaultsTrue(t *testing.T) {
	service, storage, registry := newImportFixture(t, ImportOptions{})

	csv := "sku,name,description,active\n" +
		"ABC-1,Widget,,\n"

	jobID, err := service.StartImport(context.Background(), strings.NewReader(csv), "default.csv")
	require.NoError(t, err)

	job := waitForTerminal(t, registry, jobID)
	require.Equal(t, models.JobStatusComplete, job.Status)

	product, err := storage.GetProductBySKU(context.Background(), "ABC-1")
	require.NoError(t, err)
	require.NotNil(t, product)
	assert.True(t, product.Active)
}

func TestImport_ReimportIsIdempotent(t *testing.T) {
	service, storage, registry := newImportFixture(t, ImportOptions{})

	csv := "sku,name,description,active\n" +
		"ABC-1,Widget,,true\n" +
		"ABC-2,Gadget,,true\n"

	for i := 0; i < 2; i++ {
		jobID, err := service.StartImport(context.Background(), strings.NewReader(csv), "again.csv")
		require.NoError(t, err)
		job := waitForTerminal(t, registry, jobID)
		require.Equal(t, models.JobStatusComplete, job.Status)
	}

	_, total, err := storage.ListProducts(context.Background(), nil, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestImport_FileWithoutTrailingNewline(t *testing.T) {
	service, _, registry := newImportFixture(t, ImportOptions{})

	csv := "sku,name,description,active\n" +
		"ABC-1,Widget,,true" // нет завершающего перевода строки

	jobID, err := service.StartImport(context.Background(), strings.NewReader(csv), "tail.csv")
	require.NoError(t, err)

	job := waitForTerminal(t, registry, jobID)
	assert.Equal(t, models.JobStatusComplete, job.Status)
	assert.Equal(t, 1, job.TotalRows)
	assert.Equal(t, 1, job.ProcessedRows)
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		total     int
		want      int
	}{
		{"zero total", 0, 0, 0},
		{"start", 0, 100, 0},
		{"half", 50, 100, 50},
		{"rounds down", 1, 3, 33},
		{"full", 100, 100, 100},
		{"clamped", 200, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, progressPercent(tt.processed, tt.total))
		})
	}
}
