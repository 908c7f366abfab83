package middleware

import (
	"net/http"

	"github.com/jub0bs/fcors"
)

// CORSConfig lists the origins allowed to call the API from a browser
type CORSConfig struct {
	AllowedOrigins []string
}

var corsMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
}

var corsHeaders = []string{
	"Authorization",
	"Content-Type",
	IdempotencyKeyHeader,
	RequestIDHeader,
}

// CORS wraps an http.Handler (the gin engine) with CORS handling. An empty
// origin list or a single "*" allows any origin without credentials.
func CORS(cfg CORSConfig) (func(http.Handler) http.Handler, error) {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cors, err := fcors.AllowAccess(
			fcors.FromAnyOrigin(),
			fcors.WithMethods(corsMethods[0], corsMethods[1:]...),
			fcors.WithRequestHeaders(corsHeaders[0], corsHeaders[1:]...),
		)
		if err != nil {
			return nil, err
		}
		return cors, nil
	}

	cors, err := fcors.AllowAccess(
		fcors.FromOrigins(origins[0], origins[1:]...),
		fcors.WithMethods(corsMethods[0], corsMethods[1:]...),
		fcors.WithRequestHeaders(corsHeaders[0], corsHeaders[1:]...),
	)
	if err != nil {
		return nil, err
	}
	return cors, nil
}
