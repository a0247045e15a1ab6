package routes

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/quatton/qfold/pkg/qapi/services"
)

// RegisterAPI registers every route. A nil svcs registers the operations
// only, which is enough to render the OpenAPI document.
func RegisterAPI(api huma.API, svcs *services.Services) {
	RegisterHealth(api)
	if svcs == nil {
		RegisterBatches(api, nil)
	} else {
		RegisterBatches(api, svcs.Report)
	}
}
