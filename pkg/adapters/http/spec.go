package http

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/aretw0/agentgraph/pkg/runner"
)

//go:embed api/openapi.yaml
var specYAML []byte

// Spec returns the OpenAPI document describing this API.
func Spec() (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	return doc, nil
}

// specRouter matches requests to operations of the embedded document.
var specRouter = sync.OnceValues(func() (routers.Router, error) {
	doc, err := Spec()
	if err != nil {
		return nil, err
	}
	return legacy.NewRouter(doc)
})

// validateRequests rejects requests whose parameters or body do not match the
// OpenAPI document. Paths the document does not describe, such as mounts, pass
// through untouched.
func (s *Server) validateRequests(router routers.Router) func(http.Handler) http.Handler {
	opts := &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, params, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, int64(runner.MaxInputSize())*4)
			}
			in := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: params,
				Route:      route,
				Options:    opts,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), in); err != nil {
				s.logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "err", err)
				s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + requestProblem(err)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestProblem(err error) string {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return err.Error()
	}
	switch {
	case reqErr.Parameter != nil:
		return fmt.Sprintf("parameter %q is invalid", reqErr.Parameter.Name)
	case reqErr.RequestBody != nil:
		return "body does not match schema"
	}
	return reqErr.Error()
}

// GetSpec handles GET /openapi.yaml.
func (s *Server) GetSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(specYAML)
}
