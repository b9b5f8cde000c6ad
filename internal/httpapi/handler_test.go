package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonyjurso-collab/attorney-directory/internal/classify"
	"github.com/tonyjurso-collab/attorney-directory/internal/engine"
	"github.com/tonyjurso-collab/attorney-directory/internal/extract"
	"github.com/tonyjurso-collab/attorney-directory/internal/llm"
	"github.com/tonyjurso-collab/attorney-directory/internal/marketplace"
	"github.com/tonyjurso-collab/attorney-directory/internal/schema"
	"github.com/tonyjurso-collab/attorney-directory/internal/session"
)

type emptyClient struct{}

func (emptyClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Text: `{"fields": {}, "confidence": 0.2, "is_legal_question": true}`}, nil
}

type stubSubmitter struct {
	leadID string
	err    error
}

func (s *stubSubmitter) Submit(ctx context.Context, record marketplace.LeadRecord) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.leadID, nil
}

func newHandler(t *testing.T, submitter marketplace.Submitter) (*Handler, *session.MemoryStore) {
	t.Helper()
	s, err := schema.LoadDefault()
	require.NoError(t, err)

	store := session.NewMemoryStore()
	detector := classify.NewDetector(s, nil, time.Second, nil, nil)
	extractor := extract.NewExtractor(s, emptyClient{}, nil, time.Second, nil, nil)
	e := engine.New(s, store, detector, extractor, time.Hour, nil, nil, nil)

	var pipeline *marketplace.Pipeline
	if submitter != nil {
		pipeline = marketplace.NewPipeline(s, store, nil, submitter, nil, nil, nil, nil)
	}
	return NewHandler(e, pipeline, nil), store
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestTurnEndpoint(t *testing.T) {
	h, _ := newHandler(t, nil)

	rec := postJSON(t, h.Turn, "/chat/turn", turnRequest{Message: "I was hurt in a car crash"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp turnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.False(t, resp.Complete)
	assert.Equal(t, "I can help with that. What's your first name?", resp.ReplyText)
	assert.Equal(t, "personal_injury_law", resp.DebugInfo.Category)
}

func TestTurnEndpointKeepsSession(t *testing.T) {
	h, _ := newHandler(t, nil)

	first := postJSON(t, h.Turn, "/chat/turn", turnRequest{Message: "I was hurt in a crash"})
	var firstResp turnResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	second := postJSON(t, h.Turn, "/chat/turn", turnRequest{Message: "hello again", SessionID: firstResp.SessionID})
	var secondResp turnResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	assert.Equal(t, firstResp.SessionID, secondResp.SessionID)
}

func TestTurnEndpointRejectsEmptyBody(t *testing.T) {
	h, _ := newHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat/turn", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	h.Turn(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetEndpoint(t *testing.T) {
	h, _ := newHandler(t, nil)

	first := postJSON(t, h.Turn, "/chat/turn", turnRequest{Message: "I was hurt in a crash"})
	var firstResp turnResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	rec := postJSON(t, h.Reset, "/chat/reset", resetRequest{SessionID: firstResp.SessionID})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp resetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, firstResp.SessionID, resp.SessionID)

	rotated := postJSON(t, h.Reset, "/chat/reset", resetRequest{SessionID: firstResp.SessionID, RotateSession: true})
	var rotatedResp resetResponse
	require.NoError(t, json.Unmarshal(rotated.Body.Bytes(), &rotatedResp))
	assert.NotEqual(t, firstResp.SessionID, rotatedResp.SessionID)
}

func TestSubmitEndpoint(t *testing.T) {
	h, store := newHandler(t, &stubSubmitter{leadID: "MKT-7"})
	ctx := context.Background()

	sess := session.New(time.Hour)
	sess.Category = "general"
	sess.Subcategory = "other"
	sess.Stage = session.StageComplete
	for field, value := range map[string]string{
		"first_name": "Dana", "last_name": "Reyes",
		"phone": "17045550100", "email": "dana@example.com", "zip_code": "28202",
		"issue_description": "contract dispute",
		"tcpa_consent_text": "consent",
	} {
		sess.SetAnswer(field, value)
	}
	require.NoError(t, store.Put(ctx, sess))

	rec := postJSON(t, h.Submit, "/chat/submit", submitRequest{SessionID: sess.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "MKT-7", resp.LeadID)

	// Second submission must be rejected.
	rec = postJSON(t, h.Submit, "/chat/submit", submitRequest{SessionID: sess.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already_submitted")
}

func TestSubmitEndpointIncomplete(t *testing.T) {
	h, store := newHandler(t, &stubSubmitter{leadID: "MKT-7"})

	sess := session.New(time.Hour)
	sess.Category = "general"
	sess.Stage = session.StageCollecting
	require.NoError(t, store.Put(context.Background(), sess))

	rec := postJSON(t, h.Submit, "/chat/submit", submitRequest{SessionID: sess.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_complete")
}

func TestSubmitEndpointMarketplaceFailure(t *testing.T) {
	h, store := newHandler(t, &stubSubmitter{err: &marketplace.SubmitError{Code: "duplicate_phone", Message: "dup"}})

	sess := session.New(time.Hour)
	sess.Category = "general"
	sess.Subcategory = "other"
	sess.Stage = session.StageComplete
	for field, value := range map[string]string{
		"first_name": "Dana", "last_name": "Reyes",
		"phone": "17045550100", "email": "dana@example.com", "zip_code": "28202",
		"issue_description": "contract dispute",
	} {
		sess.SetAnswer(field, value)
	}
	require.NoError(t, store.Put(context.Background(), sess))

	rec := postJSON(t, h.Submit, "/chat/submit", submitRequest{SessionID: sess.ID})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate_phone")
}

func TestSubmitEndpointUnknownSession(t *testing.T) {
	h, _ := newHandler(t, &stubSubmitter{leadID: "MKT-7"})

	rec := postJSON(t, h.Submit, "/chat/submit", submitRequest{SessionID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	h, _ := newHandler(t, nil)

	first := postJSON(t, h.Turn, "/chat/turn", turnRequest{Message: "I was hurt in a crash"})
	var firstResp turnResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	req := httptest.NewRequest(http.MethodGet, "/chat/history?session_id="+firstResp.SessionID, nil)
	rec := httptest.NewRecorder()
	h.History(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Turns, 2)
	assert.Equal(t, session.RoleVisitor, resp.Turns[0].Role)
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
