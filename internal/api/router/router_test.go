package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyjurso-collab/attorney-directory/internal/classify"
	"github.com/tonyjurso-collab/attorney-directory/internal/engine"
	"github.com/tonyjurso-collab/attorney-directory/internal/extract"
	"github.com/tonyjurso-collab/attorney-directory/internal/httpapi"
	"github.com/tonyjurso-collab/attorney-directory/internal/llm"
	"github.com/tonyjurso-collab/attorney-directory/internal/schema"
	"github.com/tonyjurso-collab/attorney-directory/internal/session"
)

type emptyClient struct{}

func (emptyClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Text: `{"fields": {}, "confidence": 0.2, "is_legal_question": true}`}, nil
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	s, err := schema.LoadDefault()
	require.NoError(t, err)

	store := session.NewMemoryStore()
	detector := classify.NewDetector(s, nil, time.Second, nil, nil)
	extractor := extract.NewExtractor(s, emptyClient{}, nil, time.Second, nil, nil)
	e := engine.New(s, store, detector, extractor, time.Hour, nil, nil, nil)

	reg := prometheus.NewRegistry()
	return New(&Config{
		Chat:           httpapi.NewHandler(e, nil, nil),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

func TestRouterChatTurn(t *testing.T) {
	r := newRouter(t)

	body, _ := json.Marshal(map[string]string{"message": "I was injured in a crash"})
	req := httptest.NewRequest(http.MethodPost, "/chat/turn", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "session_id")
	assert.Contains(t, rec.Body.String(), "reply_text")
}

func TestRouterHealthAndMetrics(t *testing.T) {
	r := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	r := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterSubmitDisabled(t *testing.T) {
	r := newRouter(t)

	body, _ := json.Marshal(map[string]string{"session_id": "s-1"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/submit", bytes.NewReader(body)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
