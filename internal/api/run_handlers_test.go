package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/aqsharvest/internal/store"
)

func seededRuns(t *testing.T) (*store.MemoryRuns, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	repo := store.NewMemoryRuns()
	id := uuid.New()
	require.NoError(t, repo.StartRun(ctx, id, "toxics", 4, time.Now().Add(-time.Minute)))
	require.NoError(t, repo.ApplyStep(ctx, id, store.StepDelta{Outcome: store.OutcomeData, Rows: 12, Label: "toxics/Benzene/Bernalillo/2020"}))
	return repo, id
}

func TestRunHandlerListRuns(t *testing.T) {
	t.Parallel()

	repo, id := seededRuns(t)
	server := NewServer(repo, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?status=running&limit=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, id.String(), body.Runs[0].ID)
	require.InDelta(t, 25.0, body.Runs[0].Percent, 0.001)
	require.Equal(t, int64(12), body.Runs[0].Rows)
}

func TestRunHandlerListRunsFiltersStatus(t *testing.T) {
	t.Parallel()

	repo, _ := seededRuns(t)
	server := NewServer(repo, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?status=success", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestRunHandlerListRunsBadQuery(t *testing.T) {
	t.Parallel()

	server := NewServer(store.NewMemoryRuns(), nil, zap.NewNop())
	for _, q := range []string{"?limit=-1", "?offset=x", "?status=paused"} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs"+q, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestRunHandlerGetRun(t *testing.T) {
	t.Parallel()

	repo, id := seededRuns(t)
	server := NewServer(repo, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"profile":"toxics"`)
	require.Contains(t, rec.Body.String(), `"last":"toxics/Benzene/Bernalillo/2020"`)
}

func TestRunHandlerGetRunNotFound(t *testing.T) {
	t.Parallel()

	server := NewServer(store.NewMemoryRuns(), nil, zap.NewNop())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunHandlerGetRunInvalidID(t *testing.T) {
	t.Parallel()

	server := NewServer(store.NewMemoryRuns(), nil, zap.NewNop())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type brokenRuns struct{}

func (brokenRuns) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, errors.New("boom")
}

func (brokenRuns) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, errors.New("boom")
}

func TestRunHandlerRepositoryErrors(t *testing.T) {
	t.Parallel()

	server := NewServer(brokenRuns{}, nil, zap.NewNop())
	for _, path := range []string{"/api/runs", "/api/runs/" + uuid.NewString()} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code, path)
	}
}

func TestRunHandlerWithoutRepository(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(nil, nil)
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
