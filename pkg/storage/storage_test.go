package storage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/aura/pkg/lifecycle"
	"github.com/JaimeStill/aura/pkg/storage"
)

const azurite = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;" +
	"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
	"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func TestConfigFinalize(t *testing.T) {
	t.Setenv("T_STORAGE_PROVIDER", "gcs")
	t.Setenv("T_STORAGE_BUCKET", "aura-reports")

	cfg := storage.Config{}
	require.NoError(t, cfg.Finalize(&storage.Env{
		Provider:      "T_STORAGE_PROVIDER",
		ContainerName: "T_STORAGE_BUCKET",
	}))
	assert.Equal(t, storage.ProviderGCS, cfg.Provider)
	assert.Equal(t, "aura-reports", cfg.ContainerName)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     storage.Config
		wantErr string
	}{
		{"azure without credentials", storage.Config{}, "connection_string or service_url"},
		{"unknown provider", storage.Config{Provider: "s3"}, "unsupported provider"},
		{"azure connection string", storage.Config{ConnectionString: azurite}, ""},
		{"azure service url", storage.Config{ServiceURL: "https://acct.blob.core.windows.net"}, ""},
		{"gcs", storage.Config{Provider: storage.ProviderGCS}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize(nil)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "documents", tt.cfg.ContainerName)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfigMerge(t *testing.T) {
	cfg := storage.Config{Provider: storage.ProviderAzure, ContainerName: "documents", ConnectionString: azurite}
	cfg.Merge(&storage.Config{Provider: storage.ProviderGCS, Endpoint: "http://localhost:4443"})

	assert.Equal(t, storage.ProviderGCS, cfg.Provider)
	assert.Equal(t, "documents", cfg.ContainerName)
	assert.Equal(t, azurite, cfg.ConnectionString)
	assert.Equal(t, "http://localhost:4443", cfg.Endpoint)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := storage.New(&storage.Config{Provider: "s3"}, slog.Default())
	assert.ErrorContains(t, err, "unsupported storage provider")
}

func TestKeysValidatedBeforeNetwork(t *testing.T) {
	configs := map[string]*storage.Config{
		"azure": {Provider: storage.ProviderAzure, ContainerName: "documents", ConnectionString: azurite},
		"gcs":   {Provider: storage.ProviderGCS, ContainerName: "documents", Endpoint: "http://127.0.0.1:1/storage/v1/"},
	}

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			sys, err := storage.New(cfg, slog.Default())
			require.NoError(t, err)
			ctx := context.Background()

			assert.ErrorIs(t, sys.Upload(ctx, "", strings.NewReader("x"), "text/plain"), storage.ErrEmptyKey)
			assert.ErrorIs(t, sys.Delete(ctx, "uploads/../secrets"), storage.ErrInvalidKey)

			_, err = sys.Download(ctx, "../parsed/x.md")
			assert.ErrorIs(t, err, storage.ErrInvalidKey)

			_, err = sys.Exists(ctx, "")
			assert.ErrorIs(t, err, storage.ErrEmptyKey)

			lc := lifecycle.New()
			require.NoError(t, sys.Start(lc))
			require.NoError(t, lc.Shutdown(5*time.Second))
		})
	}
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{storage.ErrEmptyKey, http.StatusBadRequest},
		{storage.ErrInvalidKey, http.StatusBadRequest},
		{errors.New("timeout"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, storage.MapHTTPStatus(tt.err), tt.err.Error())
	}
}

type memory struct {
	storage.System
	objects map[string]string
}

func (m *memory) Download(_ context.Context, key string) (io.ReadCloser, error) {
	v, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func TestReadAll(t *testing.T) {
	sys := &memory{objects: map[string]string{"parsed/a.md": "# Findings"}}

	data, err := storage.ReadAll(context.Background(), sys, "parsed/a.md")
	require.NoError(t, err)
	assert.Equal(t, "# Findings", string(data))

	_, err = storage.ReadAll(context.Background(), sys, "parsed/missing.md")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
