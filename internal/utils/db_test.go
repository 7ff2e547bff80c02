package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateConnectionString(t *testing.T) {
	conn, err := GenerateConnectionString(
		"localhost", "importer", "secret", "products", "disable",
		5432, 10, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t,
		"host=localhost port=5432 user=importer password=secret dbname=products sslmode=disable pool_max_conns=10 connect_timeout=5",
		conn)
}

func TestGenerateConnectionString_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(args *[8]interface{})
		wantErr error
	}{
		{"empty host", func(a *[8]interface{}) { a[0] = "" }, ErrStorageEmptyHostName},
		{"empty user", func(a *[8]interface{}) { a[1] = "" }, ErrStorageEmptyUsername},
		{"empty password", func(a *[8]interface{}) { a[2] = "" }, ErrStorageEmptyPassword},
		{"empty dbname", func(a *[8]interface{}) { a[3] = "" }, ErrStorageInvalidDatabaseName},
		{"empty sslmode", func(a *[8]interface{}) { a[4] = "" }, ErrStorageInvalidSslMode},
		{"bad port", func(a *[8]interface{}) { a[5] = 70000 }, ErrStorageInvalidPortNumber},
		{"negative pool", func(a *[8]interface{}) { a[6] = -1 }, ErrStorageInvalidPoolSize},
		{"negative timeout", func(a *[8]interface{}) { a[7] = -time.Second }, ErrStorageInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := [8]interface{}{"localhost", "u", "p", "db", "disable", 5432, 10, time.Second}
			tt.mutate(&args)
			_, err := GenerateConnectionString(
				args[0].(string), args[1].(string), args[2].(string),
				args[3].(string), args[4].(string),
				args[5].(int), args[6].(int), args[7].(time.Duration))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
