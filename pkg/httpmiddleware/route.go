package httpmiddleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// RouteFinder resolves the registered route pattern for a request, such as
// "/api/products/{id}". It reports false for unmatched requests.
type RouteFinder func(r *http.Request) (string, bool)

// MakeRouteFinder returns a RouteFinder backed by the patterns registered
// on mux.
func MakeRouteFinder(mux *http.ServeMux) RouteFinder {
	return func(r *http.Request) (string, bool) {
		_, pattern := mux.Handler(r)
		if pattern == "" {
			return "", false
		}
		// Patterns carry an optional method prefix: "POST /api/orders".
		if _, path, ok := strings.Cut(pattern, " "); ok {
			pattern = path
		}
		return pattern, true
	}
}

// Labeler adds the matched route to the otelhttp metric labels.
func Labeler(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, ok := find(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			labeler, found := otelhttp.LabelerFromContext(r.Context())
			labeler.Add(routeKey.String(route))
			if !found {
				r = r.WithContext(otelhttp.ContextWithLabeler(r.Context(), labeler))
			}
			next.ServeHTTP(w, r)
		})
	}
}

const routeKey = attribute.Key("http.route")

// routeName returns the matched route or "unmatched".
func routeName(find RouteFinder, r *http.Request) string {
	if route, ok := find(r); ok {
		return route
	}
	return "unmatched"
}
