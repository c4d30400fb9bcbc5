package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/JaimeStill/aura/pkg/handlers"
	"github.com/JaimeStill/aura/pkg/openapi"
	"github.com/JaimeStill/aura/pkg/routes"
	"github.com/JaimeStill/aura/pkg/storage"
)

var errArtifactKey = errors.New("artifact key must name a parsed or results object")

// artifactTypes maps the readable artifact prefixes to their content type.
var artifactTypes = map[string]string{
	"parsed/":  "text/markdown; charset=utf-8",
	"results/": "application/json",
}

type artifactHandler struct {
	store  storage.System
	logger *slog.Logger
}

func newArtifactHandler(store storage.System, logger *slog.Logger) *artifactHandler {
	return &artifactHandler{
		store:  store,
		logger: logger.With("handler", "artifacts"),
	}
}

func (h *artifactHandler) routes(authn routes.Middleware) routes.Group {
	var mw []routes.Middleware
	if authn != nil {
		mw = append(mw, authn)
	}

	return routes.Group{
		Prefix:      "/artifacts",
		Tags:        []string{"Artifacts"},
		Description: "Parsed text and structured results kept in storage",
		Secured:     authn != nil,
		Middleware:  mw,
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{key...}", Handler: h.download, OpenAPI: downloadOp},
		},
	}
}

func (h *artifactHandler) download(w http.ResponseWriter, r *http.Request) {
	key := path.Clean(r.PathValue("key"))

	contentType, ok := artifactType(key)
	if !ok {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errArtifactKey)
		return
	}

	body, err := h.store.Download(r.Context(), key)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", path.Base(key)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("artifact stream interrupted", "key", key, "error", err)
	}
}

func artifactType(key string) (string, bool) {
	for prefix, ct := range artifactTypes {
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return ct, true
		}
	}
	return "", false
}

var downloadOp = &openapi.Operation{
	Summary:     "Download a stage artifact",
	Description: "Returns the parsed Markdown (parsed/<document_id>.md) or structured result (results/<document_id>.json) of a document.",
	Parameters:  []*openapi.Parameter{openapi.PathParam("key", "Artifact key")},
	Responses: map[int]*openapi.Response{
		200: {Description: "Artifact content"},
		400: openapi.ResponseRef("BadRequest"),
		401: openapi.ResponseRef("Unauthorized"),
		404: openapi.ResponseRef("NotFound"),
	},
}
