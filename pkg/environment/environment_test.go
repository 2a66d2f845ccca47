package environment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypeaday/soonish-sub002/pkg/environment"
)

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	assert.Empty(t, environment.FromContext(context.Background()))

	ctx := environment.WithContext(context.Background(), string(environment.Staging))
	assert.Equal(t, "staging", environment.FromContext(ctx))
}

func TestEnvironmentChecks(t *testing.T) {
	t.Parallel()

	prod := environment.WithContext(context.Background(), "production")
	dev := environment.WithContext(context.Background(), "dev")

	assert.True(t, environment.IsProduction(prod))
	assert.False(t, environment.IsDevelopment(prod))
	assert.True(t, environment.IsDevelopment(dev))
	assert.False(t, environment.IsProduction(context.Background()))
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var seen string
	h := environment.Middleware(environment.Production)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = environment.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "production", seen)
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := environment.LoggerExtractor()

	attr, ok := extract(environment.WithContext(context.Background(), "development"))
	require.True(t, ok)
	assert.Equal(t, "env", attr.Key)
	assert.Equal(t, "development", attr.Value.String())

	_, ok = extract(context.Background())
	assert.False(t, ok)
}
