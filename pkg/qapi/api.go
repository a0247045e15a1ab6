// Package qapi serves the parsed metrics of batches over HTTP.
package qapi

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/quatton/qfold/pkg/qapi/routes"
	"github.com/quatton/qfold/pkg/qapi/services"
	"github.com/quatton/qfold/pkg/qlog"
)

type Api struct {
	Api    huma.API
	Router *chi.Mux
}

func NewApi() *Api {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	api := humachi.New(router, NewConfig())

	return &Api{Api: api, Router: router}
}

// NewConfig is the huma configuration of the report API.
func NewConfig() huma.Config {
	config := huma.DefaultConfig("qfold Reports", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "HS256 token signed with AUTH_SECRET",
		},
	}
	return config
}

// Mount installs token verification and registers every route.
func Mount(api huma.API, svcs *services.Services, logger *qlog.Logger) {
	if svcs != nil && svcs.IAM.Enabled() {
		api.UseMiddleware(svcs.IAM.Middleware(api, logger))
	}
	routes.RegisterAPI(api, svcs)
}
