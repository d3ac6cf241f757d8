package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionkit/wsknn/internal/persist"
	"github.com/sessionkit/wsknn/internal/services"
	"github.com/sessionkit/wsknn/internal/validation"
	"github.com/sessionkit/wsknn/pkg/models"
)

func testModelHandler(t *testing.T) (*ModelHandler, *services.RecommenderService, *services.IngestService) {
	t.Helper()
	rec, ingestSvc := testServices(t)

	schemas, err := validation.NewSchemaValidator()
	require.NoError(t, err)

	return NewModelHandler(testLogger(), rec, ingestSvc, schemas), rec, ingestSvc
}

func TestModelHandler_Fit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler, rec, ingestSvc := testModelHandler(t)

	router := gin.New()
	router.POST("/api/v1/model/fit", handler.Fit)

	payload := `{"sessions": {"a": [["1", "2", "3"], [1, 2, 3]], "b": [["2", "3", "4"], [10, 11, 12]]}}`
	req, _ := http.NewRequest("POST", "/api/v1/model/fit", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response models.FitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Sessions)
	assert.Equal(t, 4, response.Items)
	assert.False(t, response.FittedAt.IsZero())

	info := rec.Info()
	assert.True(t, info.Fitted)
	assert.NotEmpty(t, info.Version)

	// The accumulator is seeded from the upload, so a later event
	// extends it instead of starting from scratch.
	require.NoError(t, ingestSvc.HandleEvent(context.Background(), models.InteractionEvent{
		SessionID: "c", ItemID: "9", Timestamp: 20,
	}, "test"))
	ingestSvc.Rebuild()
	assert.Equal(t, 3, rec.Info().Sessions)
}

func TestModelHandler_FitRejectsMalformedHistories(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler, _, _ := testModelHandler(t)

	router := gin.New()
	router.POST("/api/v1/model/fit", handler.Fit)

	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "Missing sessions",
			payload: `{"items": {}}`,
		},
		{
			name:    "Sessions is not an object",
			payload: `{"sessions": []}`,
		},
		{
			name:    "Record is not an array",
			payload: `{"sessions": {"a": "nope"}}`,
		},
		{
			name:    "Ragged sequences",
			payload: `{"sessions": {"a": [["1", "2"], [1]]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", "/api/v1/model/fit", strings.NewReader(tt.payload))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestModelHandler_SnapshotLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler, rec, _ := testModelHandler(t)
	require.NoError(t, rec.Fit(fixtureIndex(), nil))

	router := gin.New()
	router.POST("/api/v1/model/snapshot", handler.Snapshot)
	router.GET("/api/v1/model/snapshots", handler.Snapshots)
	router.POST("/api/v1/model/snapshot/restore", handler.Restore)

	// Save a snapshot of the fitted model.
	req, _ := http.NewRequest("POST", "/api/v1/model/snapshot", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var saved persist.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.NotEmpty(t, saved.Name)
	assert.Equal(t, 2, saved.Sessions)

	// The snapshot shows up in the listing.
	req, _ = http.NewRequest("GET", "/api/v1/model/snapshots", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var listing struct {
		Snapshots []persist.Info `json:"snapshots"`
		Count     int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Count)

	// Restoring over a fitted model needs force.
	req, _ = http.NewRequest("POST", "/api/v1/model/snapshot/restore", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "MODEL_ALREADY_FITTED")

	req, _ = http.NewRequest("POST", "/api/v1/model/snapshot/restore", bytes.NewBufferString(`{"force": true}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var restored persist.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &restored))
	assert.Equal(t, saved.Name, restored.Name)
}

func TestModelHandler_SnapshotErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler, _, _ := testModelHandler(t)

	router := gin.New()
	router.POST("/api/v1/model/snapshot", handler.Snapshot)
	router.POST("/api/v1/model/snapshot/restore", handler.Restore)

	t.Run("Snapshot requires a fitted model", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/api/v1/model/snapshot", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "MODEL_NOT_FITTED")
	})

	t.Run("Restore without snapshots", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/api/v1/model/snapshot/restore", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "SNAPSHOT_NOT_FOUND")
	})
}

func TestModelHandler_Evaluate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler, rec, _ := testModelHandler(t)
	require.NoError(t, rec.Fit(fixtureIndex(), nil))

	router := gin.New()
	router.POST("/api/v1/model/evaluate", handler.Evaluate)

	t.Run("Scores held-out events", func(t *testing.T) {
		body, _ := json.Marshal(models.EvaluateRequest{
			Sessions: map[string]models.SessionPayload{
				"q": {Items: []string{"1", "2", "3"}, Timestamps: []float64{1, 2, 3}},
			},
			K: 2,
		})
		req, _ := http.NewRequest("POST", "/api/v1/model/evaluate", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var response models.EvaluateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.InDelta(t, 1.0, response.MRR, 0.001)
		assert.InDelta(t, 1.0, response.Precision, 0.001)
		assert.InDelta(t, 1.0, response.Recall, 0.001)
		assert.Equal(t, 2, response.K)
		assert.Equal(t, 1, response.Sessions)
		assert.Equal(t, 1, response.Windows)
	})

	t.Run("All sessions too short for the split", func(t *testing.T) {
		// Default k is the model's recommendation count, which leaves
		// no session long enough to split.
		body, _ := json.Marshal(models.EvaluateRequest{
			Sessions: map[string]models.SessionPayload{
				"q": {Items: []string{"1", "2", "3"}, Timestamps: []float64{1, 2, 3}},
			},
		})
		req, _ := http.NewRequest("POST", "/api/v1/model/evaluate", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "SESSION_TOO_SHORT")
	})
}

func TestModelHandler_InfoAndRebuild(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler, _, ingestSvc := testModelHandler(t)

	router := gin.New()
	router.GET("/api/v1/model", handler.Info)
	router.POST("/api/v1/model/rebuild", handler.Rebuild)

	req, _ := http.NewRequest("GET", "/api/v1/model", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var state struct {
		Model  services.ModelInfo   `json:"model"`
		Ingest services.IngestStats `json:"ingest"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.False(t, state.Model.Fitted)

	_, err := ingestSvc.HandleEvents(context.Background(), []models.InteractionEvent{
		{SessionID: "s1", ItemID: "a", Timestamp: 1},
		{SessionID: "s1", ItemID: "b", Timestamp: 2},
		{SessionID: "s2", ItemID: "a", Timestamp: 3},
	}, "test")
	require.NoError(t, err)

	req, _ = http.NewRequest("POST", "/api/v1/model/rebuild", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.True(t, state.Model.Fitted)
	assert.Equal(t, 2, state.Model.Sessions)
	assert.Equal(t, 0, state.Ingest.Pending)
}

func TestModelHandler_Import(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler, rec, _ := testModelHandler(t)

	router := gin.New()
	router.POST("/api/v1/model/import", handler.Import)

	t.Run("Missing file", func(t *testing.T) {
		body, _ := json.Marshal(gin.H{"path": filepath.Join(t.TempDir(), "absent.jsonl")})
		req, _ := http.NewRequest("POST", "/api/v1/model/import", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "FILE_NOT_FOUND")
	})

	t.Run("Valid history file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.jsonl")
		lines := strings.Join([]string{
			`{"session_id": "s1", "item_id": "a", "timestamp": 1, "action": "view"}`,
			`{"session_id": "s1", "item_id": "b", "timestamp": 2, "action": "view"}`,
			`{"session_id": "s2", "item_id": "a", "timestamp": 3, "action": "view"}`,
		}, "\n")
		require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

		body, _ := json.Marshal(gin.H{"path": path})
		req, _ := http.NewRequest("POST", "/api/v1/model/import", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var stats services.IngestStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, 2, stats.Sessions.Count)
		assert.True(t, rec.Info().Fitted)
	})
}
