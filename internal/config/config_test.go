package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/aura/internal/config"
)

const baseConfig = `
shutdown_timeout = "20s"
version = "1.4.0"

[server]
port = 8080

[database]
name = "aura"
user = "aura"
password = "aura"

[storage]
provider = "azure"
container_name = "reports"
connection_string = "UseDevelopmentStorage=true"

[auth]
secret = "local-secret"

[api]
base_path = "/api"
max_upload_size = "25MB"

[api.pagination]
default_page_size = 25
max_page_size = 50

[pipeline]
stages = ["ingestion", "parsing"]

[structuring]
provider = "rules"

[prediction]
min_confidence = 0.65
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "db.staging"

[pipeline]
stages = ["prediction"]
prediction_url = "http://prediction:8080/api"
`

const minimalConfig = `
[database]
name = "aura"
user = "aura"

[storage]
connection_string = "UseDevelopmentStorage=true"

[auth]
secret = "s"
`

func workspace(t *testing.T, files map[string]string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	t.Chdir(dir)
}

func TestLoad(t *testing.T) {
	workspace(t, map[string]string{config.BaseConfigFile: baseConfig})

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, cfg.ShutdownTimeoutDuration())
	assert.Equal(t, "1.4.0", cfg.Version)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "reports", cfg.Storage.ContainerName)
	assert.Equal(t, int64(25*1024*1024), cfg.API.MaxUploadSizeBytes())
	assert.Equal(t, 25, cfg.API.Pagination.DefaultPageSize)
	assert.Equal(t, "Aura API", cfg.API.OpenAPI.Title)

	assert.True(t, cfg.Pipeline.Enabled(config.StageParsing))
	assert.False(t, cfg.Pipeline.Enabled(config.StagePrediction))
	assert.Equal(t, config.NotifierHTTP, cfg.Pipeline.Notifier)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.Timeout(config.StagePrediction))
	assert.Equal(t, 10*time.Second, cfg.Pipeline.Timeout(config.StageIngestion))

	assert.Equal(t, config.ExtractorRules, cfg.Structuring.Provider)
	assert.Equal(t, config.ClassifierBaseline, cfg.Prediction.Provider)
	assert.InDelta(t, 0.65, cfg.Prediction.MinConfidence, 1e-9)

	assert.False(t, cfg.Cache.Enabled())
	assert.False(t, cfg.Telemetry.Enabled())
}

func TestLoadWithOverlay(t *testing.T) {
	workspace(t, map[string]string{
		config.BaseConfigFile: baseConfig,
		"config.staging.toml": overlayConfig,
	})
	t.Setenv(config.EnvAuraEnv, "staging")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Env())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.staging", cfg.Database.Host)
	assert.Equal(t, "aura", cfg.Database.Name)
	assert.Equal(t, []string{config.StagePrediction}, cfg.Pipeline.Stages)
	assert.Equal(t, "http://prediction:8080/api", cfg.Pipeline.URL(config.StagePrediction))
}

func TestLoadMissingOverlayIgnored(t *testing.T) {
	workspace(t, map[string]string{config.BaseConfigFile: minimalConfig})
	t.Setenv(config.EnvAuraEnv, "production")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromEnvironmentOnly(t *testing.T) {
	workspace(t, nil)
	t.Setenv("AURA_DB_NAME", "aura")
	t.Setenv("AURA_DB_USER", "aura")
	t.Setenv("AURA_STORAGE_PROVIDER", "gcs")
	t.Setenv("AURA_AUTH_SECRET", "env-secret")
	t.Setenv(config.EnvPipelineStages, "structuring, prediction")
	t.Setenv(config.EnvPredictionProvider, config.ClassifierRemote)
	t.Setenv(config.EnvPredictionEndpoint, "http://inference:8000/classify")
	t.Setenv(config.EnvServerPort, "7070")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env())
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "gcs", cfg.Storage.Provider)
	assert.Equal(t, "env-secret", cfg.Auth.Secret)
	assert.Equal(t, []string{config.StageStructuring, config.StagePrediction}, cfg.Pipeline.Stages)
	assert.Equal(t, config.ClassifierRemote, cfg.Prediction.Provider)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeoutDuration())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		env     map[string]string
		wantErr string
	}{
		{"malformed toml", "[server\nport = 1", nil, "parse config"},
		{"bad shutdown timeout", "shutdown_timeout = \"soon\"\n" + minimalConfig, nil, "invalid shutdown_timeout"},
		{"bad shutdown timeout env", minimalConfig, map[string]string{config.EnvAuraShutdownTimeout: "soon"}, "invalid shutdown_timeout"},
		{"missing secret", "[database]\nname = \"a\"\nuser = \"a\"\n[storage]\nconnection_string = \"c\"\n", nil, "auth: secret required"},
		{"bad port", minimalConfig, map[string]string{config.EnvServerPort: "70000"}, "server: invalid port"},
		{"unknown stage", minimalConfig, map[string]string{config.EnvPipelineStages: "billing"}, "unknown stage"},
		{"redis without cache", minimalConfig, map[string]string{config.EnvPipelineNotifier: config.NotifierRedis}, "redis notifier requires cache.addr"},
		{"remote without endpoint", minimalConfig, map[string]string{config.EnvPredictionProvider: config.ClassifierRemote}, "endpoint required"},
		{"vertex without project", minimalConfig, map[string]string{config.EnvStructuringProvider: config.ExtractorVertex}, "project required"},
		{"bad upload size", minimalConfig, map[string]string{"AURA_API_MAX_UPLOAD_SIZE": "lots"}, "invalid max_upload_size"},
		{"relative base path", minimalConfig, map[string]string{"AURA_API_BASE_PATH": "api"}, "must start with /"},
		{"bad log level", minimalConfig, map[string]string{config.EnvLogLevel: "chatty"}, "log: invalid level"},
		{"bad log format", minimalConfig, map[string]string{config.EnvLogFormat: "xml"}, "log: format must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workspace(t, map[string]string{config.BaseConfigFile: tt.config})
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRedisNotifierWithCache(t *testing.T) {
	workspace(t, map[string]string{config.BaseConfigFile: minimalConfig})
	t.Setenv(config.EnvPipelineNotifier, config.NotifierRedis)
	t.Setenv("AURA_REDIS_ADDR", "localhost:6379")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Cache.Enabled())
	assert.Equal(t, config.NotifierRedis, cfg.Pipeline.Notifier)
}

func TestGeminiKeyFallback(t *testing.T) {
	workspace(t, map[string]string{config.BaseConfigFile: minimalConfig})
	t.Setenv(config.EnvGeminiAPIKey, "from-gemini")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-gemini", cfg.Structuring.APIKey)

	t.Setenv(config.EnvStructuringAPIKey, "from-aura")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-aura", cfg.Structuring.APIKey, "AURA_ key wins")
}

func TestMaxUploadSizeFallback(t *testing.T) {
	api := config.APIConfig{MaxUploadSize: "not-a-size"}
	assert.Equal(t, int64(10*1024*1024), api.MaxUploadSizeBytes())
}

func TestLogConfig(t *testing.T) {
	workspace(t, map[string]string{config.BaseConfigFile: minimalConfig + "\n[log]\nlevel = \"WARN\"\n"})
	t.Setenv(config.EnvLogFormat, "json")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, config.LogFormatJSON, cfg.Log.Format)

	var buf bytes.Buffer
	logger := cfg.Log.NewLogger(&buf)
	logger.Info("dropped")
	logger.Warn("kept", "stage", "parsing")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
	assert.Contains(t, buf.String(), `"stage":"parsing"`)
}
