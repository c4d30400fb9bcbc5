package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/aura/internal/config"
	"github.com/JaimeStill/aura/internal/documents"
	"github.com/JaimeStill/aura/internal/parsing"
	"github.com/JaimeStill/aura/internal/prediction"
	"github.com/JaimeStill/aura/internal/stage"
	"github.com/JaimeStill/aura/internal/structuring"
	"github.com/JaimeStill/aura/pkg/auth"
	"github.com/JaimeStill/aura/pkg/openapi"
	"github.com/JaimeStill/aura/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) error {
	authn := auth.Authenticate(cfg.Auth.SecretBytes(), runtime.Logger.With("handler", "auth"))

	var groups []routes.Group
	if domain.Documents != nil {
		groups = append(groups, domain.Documents.Handler(cfg.API.MaxUploadSizeBytes()).Routes(authn))
	}
	if domain.Parsing != nil {
		groups = append(groups, domain.Parsing.Routes(authn))
	}
	if domain.Structuring != nil {
		groups = append(groups, domain.Structuring.Routes(authn))
	}
	if domain.Prediction != nil {
		groups = append(groups, domain.Prediction.Routes(authn))
	}
	groups = append(groups, newArtifactHandler(runtime.Storage, runtime.Logger).routes(authn))

	routes.Register(mux, groups...)

	spec, err := buildSpec(cfg, groups)
	if err != nil {
		return err
	}
	mux.HandleFunc("GET /openapi.json", openapi.ServeSpec(spec))
	return nil
}

// buildSpec documents every registered group. Component schemas of all
// stages are included so request bodies resolve in split deployments too.
func buildSpec(cfg *config.Config, groups []routes.Group) ([]byte, error) {
	spec := openapi.NewSpec(cfg.API.OpenAPI.Title, cfg.Version)
	spec.SetDescription(cfg.API.OpenAPI.Description)
	spec.AddServer(cfg.API.BasePath)

	for _, schemas := range []map[string]*openapi.Schema{
		stage.Schemas(),
		documents.Schemas(),
		parsing.Schemas(),
		structuring.Schemas(),
		prediction.Schemas(),
	} {
		spec.Components.AddSchemas(schemas)
	}

	routes.Document(spec, "", groups...)

	data, err := openapi.MarshalJSON(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal openapi spec: %w", err)
	}
	return data, nil
}
