package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basel-ax/orthoview/internal/domain"
)

func envFrom(vars map[string]string) func(string) string {
	return func(key string) string {
		return vars[key]
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envFrom(map[string]string{
		"GEMINI_API_KEY": "secret",
	}))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.GeminiAPIKey)
	assert.Equal(t, "gemini-2.5-flash-image", cfg.GeminiModel)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, time.Duration(0), cfg.GeminiTimeout)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, int64(20<<20), cfg.MaxUploadBytes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.False(t, cfg.ArchiveEnabled())
}

func TestFromEnv_APIKeyFallback(t *testing.T) {
	cfg, err := FromEnv(envFrom(map[string]string{
		"API_KEY": "legacy",
	}))
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.GeminiAPIKey)
}

func TestFromEnv_MissingAPIKey(t *testing.T) {
	_, err := FromEnv(envFrom(map[string]string{}))
	require.Error(t, err)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "GEMINI_API_KEY", cfgErr.Key)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envFrom(map[string]string{
		"GEMINI_API_KEY":         "secret",
		"GEMINI_MODEL":           "custom-model",
		"GEMINI_BASE_URL":        "http://localhost:9999",
		"GEMINI_TIMEOUT":         "45",
		"HTTP_ADDR":              "127.0.0.1:3000",
		"MAX_UPLOAD_BYTES":       "1024",
		"LOG_LEVEL":              "debug",
		"LOG_FORMAT":             "console",
		"ARCHIVE_RETENTION_DAYS": "7",
	}))
	require.NoError(t, err)

	assert.Equal(t, "custom-model", cfg.GeminiModel)
	assert.Equal(t, "http://localhost:9999", cfg.GeminiBaseURL)
	assert.Equal(t, 45*time.Second, cfg.GeminiTimeout)
	assert.Equal(t, "127.0.0.1:3000", cfg.HTTPAddr)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 7, cfg.RetentionDays)
}

func TestFromEnv_Archive(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantKey string
	}{
		{
			name: "complete",
			vars: map[string]string{"DB_HOST": "db", "DB_USER": "u", "DB_PASSWORD": "p", "DB_NAME": "views"},
		},
		{
			name:    "missing user",
			vars:    map[string]string{"DB_HOST": "db", "DB_PASSWORD": "p", "DB_NAME": "views"},
			wantKey: "DB_USER",
		},
		{
			name:    "missing password",
			vars:    map[string]string{"DB_HOST": "db", "DB_USER": "u", "DB_NAME": "views"},
			wantKey: "DB_PASSWORD",
		},
		{
			name:    "missing name",
			vars:    map[string]string{"DB_HOST": "db", "DB_USER": "u", "DB_PASSWORD": "p"},
			wantKey: "DB_NAME",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.vars["GEMINI_API_KEY"] = "secret"
			cfg, err := FromEnv(envFrom(tt.vars))
			if tt.wantKey == "" {
				require.NoError(t, err)
				assert.True(t, cfg.ArchiveEnabled())
				assert.Equal(t, "host=db port=5432 user=u password=p dbname=views sslmode=disable", cfg.GetDSN())
				return
			}

			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}
