// Package routes defines HTTP route constants shared by the server and its clients.
package routes

import (
	"net/url"
	"strings"

	"github.com/debemdeboas/scratchpad/internal/model"
)

// API Routes
const (
	// SSE
	SSEPath = "/sse"

	// Health
	HealthPath = "/healthz"

	// API
	APIScratchpads = "/api/scratchpads"
	APIScratchpad  = "/api/scratchpads/{id}"
)

// ScratchpadURL returns the API address of doc on the server at base.
func ScratchpadURL(base string, doc model.DocumentID) string {
	return strings.TrimRight(base, "/") + APIScratchpads + "/" + url.PathEscape(string(doc))
}

// SSEURL returns the event stream address of doc on the server at base.
func SSEURL(base string, doc model.DocumentID) string {
	return strings.TrimRight(base, "/") + SSEPath + "?doc=" + url.QueryEscape(string(doc))
}
