// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/oapi-codegen/oapi-codegen/v2/pkg/codegen"
	"github.com/stretchr/testify/require"
)

var (
	openapiOnce sync.Once
	openapiDoc  *openapi3.T
	openapiErr  error
)

func loadOpenAPIDoc(t *testing.T) *openapi3.T {
	t.Helper()
	openapiOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromFile("openapi.yaml")
		if err != nil {
			openapiErr = err
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			openapiErr = err
			return
		}
		openapiDoc = doc
	})
	if openapiErr != nil {
		t.Fatalf("openapi load failed: %v", openapiErr)
	}
	return openapiDoc
}

func forEachOperation(t *testing.T, doc *openapi3.T, fn func(method, path string, op *openapi3.Operation)) {
	t.Helper()
	for path, pathItem := range doc.Paths.Map() {
		if pathItem == nil {
			continue
		}
		for method, op := range pathItem.Operations() {
			if op == nil || op.OperationID == "" {
				continue
			}
			fn(method, path, op)
		}
	}
}

var pathParamRe = regexp.MustCompile(`\{[^}]+\}`)

func buildContractRequest(t *testing.T, method, path string, withToken bool) *http.Request {
	t.Helper()
	resolved := pathParamRe.ReplaceAllString(path, "sample")
	req := httptest.NewRequest(method, resolved, nil)
	if withToken {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	return req
}

// isPublic reports whether the operation opts out of auth with an
// empty security requirement list.
func isPublic(op *openapi3.Operation) bool {
	return op.Security != nil && len(*op.Security) == 0
}

// Every documented operation must be mounted on the production router.
func TestContractRouteParity(t *testing.T) {
	doc := loadOpenAPIDoc(t)
	f := newServerFixture(t, nil)

	forEachOperation(t, doc, func(method, path string, op *openapi3.Operation) {
		req := buildContractRequest(t, method, path, true)
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)

		if rr.Code == http.StatusNotFound && strings.Contains(path, "{") {
			// Resource-addressed operations may 404 on the sample ID;
			// that still proves the route is mounted.
			return
		}
		if rr.Code == http.StatusNotFound || rr.Code == http.StatusMethodNotAllowed {
			t.Errorf("route not mounted: %s %s -> %d", method, path, rr.Code)
		}
	})
}

// Health and readiness are public; every other operation is token-gated.
func TestContractAuthMatrix(t *testing.T) {
	doc := loadOpenAPIDoc(t)
	f := newServerFixture(t, nil)

	forEachOperation(t, doc, func(method, path string, op *openapi3.Operation) {
		req := buildContractRequest(t, method, path, false)
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)

		if isPublic(op) {
			if rr.Code == http.StatusUnauthorized {
				t.Errorf("public operation blocked by auth: %s %s", method, path)
			}
			return
		}
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 without token: %s %s -> %d", method, path, rr.Code)
		}
	})
}

// Successful responses must match the documented schemas.
func TestContractResponseShapes(t *testing.T) {
	doc := loadOpenAPIDoc(t)
	router, err := legacy.NewRouter(doc)
	require.NoError(t, err)

	f := newServerFixture(t, nil)

	validate := func(t *testing.T, req *http.Request, rr *httptest.ResponseRecorder) {
		t.Helper()
		route, pathParams, err := router.FindRoute(req)
		require.NoError(t, err, "openapi route lookup")

		input := &openapi3filter.ResponseValidationInput{
			RequestValidationInput: &openapi3filter.RequestValidationInput{
				Request:    req,
				PathParams: pathParams,
				Route:      route,
			},
			Status: rr.Code,
			Header: rr.Header(),
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		input.SetBodyBytes(rr.Body.Bytes())
		require.NoError(t, openapi3filter.ValidateResponse(context.Background(), input))
	}

	targets := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/healthz"},
		{http.MethodGet, "/readyz"},
		{http.MethodGet, "/api/v1/status"},
		{http.MethodPost, "/api/v1/run"},
		{http.MethodPost, "/api/v1/pause"},
		{http.MethodPost, "/api/v1/resume"},
		{http.MethodGet, "/api/v1/applications"},
		{http.MethodGet, "/api/v1/answers"},
	}
	for _, tgt := range targets {
		t.Run(tgt.method+" "+tgt.path, func(t *testing.T) {
			req := buildContractRequest(t, tgt.method, tgt.path, true)
			rr := httptest.NewRecorder()
			f.handler.ServeHTTP(rr, req)
			validate(t, req, rr)
		})
	}
}

// Operation IDs follow lowerCamelCase and stay unique after the
// casing applied by code generators.
func TestContractOperationIDs(t *testing.T) {
	doc := loadOpenAPIDoc(t)

	seen := map[string]string{}
	forEachOperation(t, doc, func(method, path string, op *openapi3.Operation) {
		id := op.OperationID
		require.NotEmpty(t, id, "%s %s", method, path)
		require.Equal(t, strings.ToLower(id[:1]), id[:1], "operation ID %q must start lowercase", id)

		cased := codegen.ToCamelCase(id)
		if prev, dup := seen[cased]; dup {
			t.Errorf("operation IDs %q and %q collide after casing", prev, id)
		}
		seen[cased] = id
	})
}
