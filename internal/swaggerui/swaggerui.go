package swaggerui

import (
	"net/http"

	swgui "github.com/swaggest/swgui/v5"
)

// Handler serves Swagger UI for the OpenAPI document at docPath under basePath. Assets
// are embedded, no CDN.
func Handler(title, docPath, basePath string) http.Handler {
	return swgui.New(title, docPath, basePath)
}
