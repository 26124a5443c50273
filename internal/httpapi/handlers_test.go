package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/capability"
	"github.com/fraktionswerk/draftflow/internal/circuitbreaker"
	"github.com/fraktionswerk/draftflow/internal/clarify"
	"github.com/fraktionswerk/draftflow/internal/config"
	"github.com/fraktionswerk/draftflow/internal/service"
	"github.com/fraktionswerk/draftflow/internal/session"
	"github.com/fraktionswerk/draftflow/internal/workflow"
)

// catalogAI answers only final generation; all research and question calls
// fail so questions come from the static catalog.
type catalogAI struct{}

func (catalogAI) Generate(_ context.Context, req capability.GenerationRequest) (*capability.GenerationResponse, error) {
	if req.Purpose == "final_generation" {
		return &capability.GenerationResponse{
			Success: true,
			Content: "Antrag: Ausbau der Radwege\n\nBeschlussvorschlag: ...",
		}, nil
	}
	return nil, fmt.Errorf("capability unavailable for %s", req.Purpose)
}

type noSearch struct{}

func (noSearch) Search(context.Context, string, capability.SearchOptions) (*capability.SearchResponse, error) {
	return nil, fmt.Errorf("search backend down")
}

type noFetch struct{}

func (noFetch) FetchURL(context.Context, string, capability.FetchOptions) (*capability.FetchResult, error) {
	return nil, fmt.Errorf("fetch backend down")
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	wrapper := circuitbreaker.NewRedisWrapper(client, zap.NewNop())

	catalog, err := clarify.NewCatalog("", zap.NewNop())
	require.NoError(t, err)

	svc, err := service.New(service.Deps{
		AI:       catalogAI{},
		Search:   noSearch{},
		Fetch:    noFetch{},
		Sessions: session.NewManager(wrapper, time.Hour, zap.NewNop()),
		Store:    workflow.NewRedisStore(wrapper, time.Hour, zap.NewNop()),
		Catalog:  catalog,
		Limits: config.LimitsConfig{
			MaxQueries:   3,
			MaxCrawls:    2,
			MinQuestions: 2,
			MaxQuestions: 5,
		},
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewDraftHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	NewHealthHandler(nil, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) service.Result {
	t.Helper()
	var res service.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestDraftLifecycle(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/drafts", "user-1",
		`{"session_id":"sess-1","topic":"Ausbau der Radwege","request_type":"antrag","locale":"de-DE"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	res := decodeResult(t, rec)
	assert.Equal(t, "sess-1", res.SessionID)
	assert.Equal(t, session.StateQuestionsAsked, res.Status)
	require.NotEmpty(t, res.Questions)

	rec = doRequest(t, mux, http.MethodGet, "/api/v1/drafts/sess-1", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status service.StatusResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, session.StateQuestionsAsked, status.Session.State)
	assert.NotEmpty(t, status.Questions)

	answers, err := json.Marshal(map[string]interface{}{
		"answers": map[string]string{res.Questions[0].ID: "50.000 Euro"},
	})
	require.NoError(t, err)
	rec = doRequest(t, mux, http.MethodPost, "/api/v1/drafts/sess-1/answers", "user-1", string(answers))
	require.Equal(t, http.StatusOK, rec.Code)

	res = decodeResult(t, rec)
	assert.Equal(t, session.StateCompleted, res.Status)
	assert.Contains(t, res.Document, "Ausbau der Radwege")

	// Further answers are rejected with a conflict.
	rec = doRequest(t, mux, http.MethodPost, "/api/v1/drafts/sess-1/answers", "user-1", string(answers))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMissingUserHeader(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/drafts", "", `{"topic":"Radwege"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/api/v1/drafts/sess-1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInitiateValidationErrors(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/drafts", "user-1", `{"topic":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/api/v1/drafts", "user-1", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/api/v1/drafts", "user-1",
		`{"topic":"Radwege","request_type":"gutachten"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusUnknownSession(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodGet, "/api/v1/drafts/no-such", "user-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionsAreUserScoped(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/drafts", "user-1",
		`{"session_id":"sess-1","topic":"Radwege"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Another user cannot see or answer the session.
	rec = doRequest(t, mux, http.MethodGet, "/api/v1/drafts/sess-1", "user-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/api/v1/drafts/sess-1/answers", "user-2",
		`{"answers":{"q1":"x"}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDrafts(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/v1/drafts", "user-1",
		`{"session_id":"sess-1","topic":"Radwege"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/api/v1/drafts", "user-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions []*session.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Sessions, 1)
}

func TestProbes(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
