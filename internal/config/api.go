package config

import (
	"cmp"
	"fmt"
	"os"
	"strings"

	"github.com/JaimeStill/aura/pkg/formatting"
	"github.com/JaimeStill/aura/pkg/middleware"
	"github.com/JaimeStill/aura/pkg/openapi"
	"github.com/JaimeStill/aura/pkg/pagination"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "AURA_CORS_ENABLED",
	Origins:          "AURA_CORS_ORIGINS",
	AllowedMethods:   "AURA_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "AURA_CORS_ALLOWED_HEADERS",
	AllowCredentials: "AURA_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "AURA_CORS_MAX_AGE",
}

var openAPIEnv = &openapi.ConfigEnv{
	Title:       "AURA_OPENAPI_TITLE",
	Description: "AURA_OPENAPI_DESCRIPTION",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "AURA_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "AURA_PAGINATION_MAX_PAGE_SIZE",
}

const (
	defaultBasePath      = "/api"
	defaultMaxUploadSize = "10MB"
)

// APIConfig holds the /api module settings: mount path, upload limit, CORS,
// pagination and the OpenAPI document.
type APIConfig struct {
	BasePath      string                `toml:"base_path"`
	MaxUploadSize string                `toml:"max_upload_size"`
	CORS          middleware.CORSConfig `toml:"cors"`
	Pagination    pagination.Config     `toml:"pagination"`
	OpenAPI       openapi.Config        `toml:"openapi"`
}

// MaxUploadSizeBytes parses MaxUploadSize, using 10MB when it does not parse.
func (c *APIConfig) MaxUploadSizeBytes() int64 {
	if size, err := formatting.ParseBytes(c.MaxUploadSize); err == nil {
		return size
	}
	size, _ := formatting.ParseBytes(defaultMaxUploadSize)
	return size
}

func (c *APIConfig) Finalize() error {
	c.BasePath = cmpOrEnv("AURA_API_BASE_PATH", c.BasePath, defaultBasePath)
	c.MaxUploadSize = cmpOrEnv("AURA_API_MAX_UPLOAD_SIZE", c.MaxUploadSize, defaultMaxUploadSize)

	if !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("base_path %q must start with /", c.BasePath)
	}
	if _, err := formatting.ParseBytes(c.MaxUploadSize); err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}

	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	if err := c.OpenAPI.Finalize(openAPIEnv); err != nil {
		return fmt.Errorf("openapi: %w", err)
	}
	return nil
}

func (c *APIConfig) Merge(overlay *APIConfig) {
	c.BasePath = cmp.Or(overlay.BasePath, c.BasePath)
	c.MaxUploadSize = cmp.Or(overlay.MaxUploadSize, c.MaxUploadSize)
	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
	c.OpenAPI.Merge(&overlay.OpenAPI)
}

// cmpOrEnv returns the environment value of name, then current, then def.
func cmpOrEnv(name, current, def string) string {
	return cmp.Or(os.Getenv(name), current, def)
}
