package utils

import "errors"

// ----------------- storage ------------------
var (
	ErrStorageEmptyHostName       = errors.New("host name is empty")
	ErrStorageInvalidPortNumber   = errors.New("port number is empty")
	ErrStorageEmptyUsername       = errors.New("username is empty")
	ErrStorageEmptyPassword       = errors.New("password is empty")
	ErrStorageInvalidDatabaseName = errors.New("database name is empty")
	ErrStorageInvalidSslMode      = errors.New("SSL mode is invalid")
	ErrStorageInvalidPoolSize     = errors.New("pool size is invalid")
	ErrStorageInvalidTimeout      = errors.New("timeout is invalid")
)

// ----------------- import ------------------
var (
	// ErrNotCSV - содержимое загрузки не является CSV-файлом
	ErrNotCSV = errors.New("file must be a CSV file")
	// ErrTooManyRows - файл превышает потолок строк, задание не создается
	ErrTooManyRows = errors.New("file exceeds the maximum row count")
	// ErrJobNotFound - задание неизвестно или срок его хранения истек
	ErrJobNotFound = errors.New("import job not found")
)

// ----------------- products / webhooks ------------------
var (
	ErrProductNotFound = errors.New("product not found")
	ErrDuplicateSKU    = errors.New("product with this SKU already exists")
	ErrWebhookNotFound = errors.New("webhook not found")
	ErrInvalidEvent    = errors.New("unknown webhook event type")
)
