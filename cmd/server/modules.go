package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/JaimeStill/taxdraft/internal/api"
	"github.com/JaimeStill/taxdraft/internal/config"
	"github.com/JaimeStill/taxdraft/internal/infrastructure"
	"github.com/JaimeStill/taxdraft/pkg/module"
)

type Modules struct {
	API *module.Module
}

func NewModules(ctx context.Context, infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	apiModule, err := api.NewModule(ctx, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Modules{API: apiModule}, nil
}

func (m *Modules) Mount(router *module.Router) {
	router.Mount(m.API)
}

type readiness struct {
	Status   string          `json:"status"`
	Checks   map[string]bool `json:"checks"`
	Progress bool            `json:"progress"`
}

func buildRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// Redis is reported alongside the gating checks but never fails readiness.
	router.HandleNative("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		body := readiness{
			Status:   "ready",
			Checks:   infra.Lifecycle.Readiness(),
			Progress: infra.Progress.Ready(),
		}

		w.Header().Set("Content-Type", "application/json")
		if !infra.Lifecycle.Ready() {
			body.Status = "not ready"
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(body)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(body)
	})

	return router
}
