package api

import (
	"net/http"

	"github.com/JaimeStill/taxdraft/internal/config"
	"github.com/JaimeStill/taxdraft/pkg/openapi"
	"github.com/JaimeStill/taxdraft/pkg/routes"
)

const specPattern = "GET /openapi.json"

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) error {
	storageHandler := newStorageHandler(runtime.Storage, runtime.Logger)

	groups := []routes.Group{
		domain.Runs.Handler(cfg.API.MaxUploadSizeBytes()).Routes(),
		domain.Prompts.Handler().Routes(),
		storageHandler.routes(),
	}
	routes.Register(mux, groups...)

	spec := openapi.NewSpec(&cfg.API.OpenAPI, cfg.Version)
	spec.AddServer(cfg.API.BasePath)
	spec.AddPatterns(routes.Patterns(groups...)...)
	spec.SetRequestBody("POST /runs", openapi.MultipartFiles("files"))

	specBytes, err := openapi.MarshalJSON(spec)
	if err != nil {
		return err
	}
	mux.HandleFunc(specPattern, openapi.ServeSpec(specBytes))
	return nil
}
