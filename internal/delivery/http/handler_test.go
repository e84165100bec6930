package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/cache"
	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/probe"
	mockpub "github.com/Harsh-BH/geocache/internal/publisher/mock"
	mockrepo "github.com/Harsh-BH/geocache/internal/repository/mock"
	"github.com/Harsh-BH/geocache/internal/spatial"
	"github.com/Harsh-BH/geocache/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router    *gin.Engine
	results   *mockrepo.ResultStore
	store     *cache.Store
	jobs      *mockrepo.JobStore
	pub       *mockpub.MockPublisher
	items     *mockrepo.MapItemRepository
	directErr error
	healthErr error
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	env := &testEnv{
		results: mockrepo.NewResultStore(),
		jobs:    mockrepo.NewJobStore(),
		pub:     mockpub.NewMockPublisher(),
		items:   mockrepo.NewMapItemRepository(),
	}
	env.store = cache.NewStore(env.results, time.Second, logger)
	t.Cleanup(env.store.Flush)

	pr := probe.NewBrokerProbe(env.pub, 100*time.Millisecond, true, logger)
	dispatchUC := usecase.NewDispatchUsecase(env.store, env.jobs, pr, env.pub, usecase.TTLs{}, logger)
	resolveUC := usecase.NewResolveUsecase(dispatchUC, env.jobs, usecase.ResolveConfig{
		PollWindow:      30 * time.Millisecond,
		PollInterval:    10 * time.Millisecond,
		ProviderTimeout: time.Second,
	}, logger)
	mapUC := usecase.NewMapItemsUsecase(env.items, spatial.New[domain.MapItem](env.store, logger), nil, logger)

	direct := func(ctx context.Context, kind domain.Kind, in domain.Input) (*domain.GeoResult, error) {
		if env.directErr != nil {
			return nil, env.directErr
		}
		if kind.NeedsPincode() {
			return &domain.GeoResult{Coords: &domain.Coordinates{Lat: 40.7282, Lng: -74.0776}, Pincode: in.Pincode, Provider: "stub"}, nil
		}
		return &domain.GeoResult{Pincode: "07307", Provider: "stub"}, nil
	}

	env.router = NewRouter(Usecases{
		Resolve:  resolveUC,
		Dispatch: dispatchUC,
		GetJob:   usecase.NewGetJobUsecase(env.jobs, logger),
		MapItems: mapUC,
		Direct:   direct,
	}, map[string]Checker{
		"redis": func(ctx context.Context) error { return env.healthErr },
	}, logger, 0)
	return env
}

func (env *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestResolveHandler_Direct(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(http.MethodGet, "/api/v1/geocode/coords?pincode=07307&async=false", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp usecase.Resolution
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Source != usecase.SourceDirect || resp.Result.Coords == nil {
		t.Errorf("unexpected resolution %+v", resp)
	}
	if env.pub.Count() != 0 {
		t.Error("async=false must not publish")
	}
}

func TestResolveHandler_AsyncTimesOutToDirect(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(http.MethodGet, "/api/v1/geocode/reverse?lat=40.7488&lng=-74.03", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.pub.Count() != 1 {
		t.Errorf("expected the job to be published, got %d", env.pub.Count())
	}
	if !strings.Contains(w.Body.String(), `"source":"direct"`) {
		t.Errorf("expected direct source with no worker running, got %s", w.Body.String())
	}
}

func TestResolveHandler_BadInput(t *testing.T) {
	env := setupTestRouter(t)

	for _, path := range []string{
		"/api/v1/geocode/coords",
		"/api/v1/geocode/coords?pincode=abcde",
		"/api/v1/geocode/reverse?lat=95&lng=0",
		"/api/v1/geocode/reverse?lat=north&lng=0",
		"/api/v1/geocode/teleport?pincode=07307",
		"/api/v1/geocode/city?pincode=07307&async=maybe",
	} {
		if w := env.do(http.MethodGet, path, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d: %s", path, w.Code, w.Body.String())
		}
	}
}

func TestResolveHandler_ProviderErrors(t *testing.T) {
	env := setupTestRouter(t)

	env.directErr = domain.ErrProviderNotFound
	if w := env.do(http.MethodGet, "/api/v1/geocode/city?pincode=99999&async=false", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	env.directErr = errors.New("dial tcp 10.0.0.1:443: i/o timeout")
	w := env.do(http.MethodGet, "/api/v1/geocode/city?pincode=99999&async=false", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.1") {
		t.Errorf("internal detail leaked: %s", w.Body.String())
	}
}

func TestSubmitHandler_Queued(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(http.MethodPost, "/api/v1/geocode/jobs", gin.H{"kind": "coords", "input": gin.H{"pincode": "07307"}})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp domain.DispatchResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.JobID == "" || resp.Status != domain.StatusQueued || resp.Cached {
		t.Errorf("unexpected response %+v", resp)
	}

	// Now get the job
	getW := env.do(http.MethodGet, "/api/v1/geocode/jobs/"+resp.JobID, nil)
	if getW.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", getW.Code, getW.Body.String())
	}
	if !strings.Contains(getW.Body.String(), `"status":"queued"`) {
		t.Errorf("expected queued job, got %s", getW.Body.String())
	}
}

func TestSubmitHandler_BrokerDownAnswersDirectly(t *testing.T) {
	env := setupTestRouter(t)
	env.pub.InspectFn = func(ctx context.Context) (int, error) { return 0, errors.New("connection refused") }

	w := env.do(http.MethodPost, "/api/v1/geocode/jobs", gin.H{"kind": "coords", "input": gin.H{"pincode": "07307"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp domain.DispatchResult
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != domain.StatusCompleted || resp.Result == nil {
		t.Errorf("expected completed direct result, got %+v", resp)
	}

	env.store.Flush()
	w = env.do(http.MethodPost, "/api/v1/geocode/jobs", gin.H{"kind": "coords", "input": gin.H{"pincode": "07307"}})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"cached":true`) {
		t.Errorf("expected cached answer, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSubmitHandler_InvalidBody(t *testing.T) {
	env := setupTestRouter(t)

	if w := env.do(http.MethodPost, "/api/v1/geocode/jobs", gin.H{}); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/v1/geocode/jobs", gin.H{"kind": "coords", "input": gin.H{"pincode": "1"}}); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestGetJobHandler_NotFoundAndBadID(t *testing.T) {
	env := setupTestRouter(t)

	if w := env.do(http.MethodGet, "/api/v1/geocode/jobs/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/v1/geocode/jobs/0190b8a4-7c1e-7000-8000-000000000000", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestStreamHandler_ClosesOnTerminal(t *testing.T) {
	env := setupTestRouter(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	id := "0190b8a4-7c1e-7000-8000-000000000001"
	job := &domain.GeocodeJob{JobID: id, Kind: domain.KindCoords, Input: domain.Input{Pincode: "07307"}, Status: domain.StatusQueued}
	env.jobs.Save(context.Background(), job, time.Hour)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/geocode/jobs/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	var first domain.GeocodeJob
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if first.Status != domain.StatusQueued {
		t.Errorf("expected queued frame, got %s", first.Status)
	}

	done, _ := job.Complete(&domain.GeoResult{Pincode: "07307"}, time.Now())
	env.jobs.Save(context.Background(), &done, time.Hour)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var last domain.GeocodeJob
	if err := conn.ReadJSON(&last); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if last.Status != domain.StatusCompleted || last.Result == nil {
		t.Errorf("expected completed frame, got %+v", last)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}

func TestMapHandler_CreateListDelete(t *testing.T) {
	env := setupTestRouter(t)
	list := "/api/v1/map/incident?min_lat=40.74&max_lat=40.76&min_lng=-74.05&max_lng=-74.03&limit=50"

	if w := env.do(http.MethodGet, list, nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":0`) {
		t.Fatalf("expected empty list, got %d: %s", w.Code, w.Body.String())
	}
	env.store.Flush()

	w := env.do(http.MethodPost, "/api/v1/map/incident", gin.H{"title": "Power outage", "lat": 40.75, "lng": -74.04})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var created domain.MapItem
	json.Unmarshal(w.Body.Bytes(), &created)

	if w := env.do(http.MethodGet, list, nil); !strings.Contains(w.Body.String(), `"count":1`) {
		t.Fatalf("expected new item after invalidation, got %s", w.Body.String())
	}
	env.store.Flush()

	if w := env.do(http.MethodDelete, "/api/v1/map/incident/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, list, nil); !strings.Contains(w.Body.String(), `"count":0`) {
		t.Errorf("deleted item still listed: %s", w.Body.String())
	}
	if w := env.do(http.MethodDelete, "/api/v1/map/incident/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestMapHandler_BadQuery(t *testing.T) {
	env := setupTestRouter(t)

	for _, path := range []string{
		"/api/v1/map/incident?min_lat=40.74&max_lat=40.76&min_lng=-74.05",
		"/api/v1/map/incident?min_lat=40.76&max_lat=40.74&min_lng=-74.05&max_lng=-74.03",
		"/api/v1/map/parade?min_lat=40.74&max_lat=40.76&min_lng=-74.05&max_lng=-74.03",
		"/api/v1/map/event?min_lat=40.74&max_lat=40.76&min_lng=-74.05&max_lng=-74.03&limit=-1",
		"/api/v1/map/event?min_lat=40.74&max_lat=40.76&min_lng=-74.05&max_lng=-74.03&refresh=yes",
		"/api/v1/map/event?min_lat=40.74&max_lat=40.76&min_lng=-74.05&max_lng=-74.03&invalidate=maybe",
	} {
		if w := env.do(http.MethodGet, path, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d: %s", path, w.Code, w.Body.String())
		}
	}
}

func TestHealthHandler(t *testing.T) {
	env := setupTestRouter(t)

	if w := env.do(http.MethodGet, "/api/v1/health", nil); w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	env.healthErr = errors.New("redis down")
	w := env.do(http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), `"redis":"down"`) {
		t.Errorf("expected degraded health, got %d: %s", w.Code, w.Body.String())
	}
}
