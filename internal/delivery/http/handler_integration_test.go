package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lostfound/backend/config"
	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/logger"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// --- Fakes ---

type fakeItems struct {
	items      map[string]*domain.Item
	created    []*domain.CreateItemRequest
	lastFilter domain.ItemFilter
	processed  []string
	matches    []domain.Match
	processErr error
}

func newFakeItems(items ...*domain.Item) *fakeItems {
	f := &fakeItems{items: map[string]*domain.Item{}}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return f
}

func (f *fakeItems) CreateItem(ctx context.Context, request *domain.CreateItemRequest) (*domain.Item, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	f.created = append(f.created, request)
	item := &domain.Item{
		ID:          fmt.Sprintf("item-%d", len(f.created)),
		Type:        request.Type,
		Title:       request.Title,
		Description: request.Description,
		ImageRef:    request.ImageRef,
		Status:      domain.ItemStatusOpen,
		CreatedBy:   request.UserID,
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.items[item.ID] = item
	return item, nil
}

func (f *fakeItems) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
	}
	return item, nil
}

func (f *fakeItems) ListItems(ctx context.Context, filter domain.ItemFilter) ([]*domain.Item, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown item type %q", domain.ErrValidation, filter.Type)
	}
	f.lastFilter = filter
	out := make([]*domain.Item, 0, len(f.items))
	for _, it := range f.items {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeItems) ProcessItem(ctx context.Context, id string) ([]domain.Match, error) {
	if _, err := f.GetItem(ctx, id); err != nil {
		return nil, err
	}
	f.processed = append(f.processed, id)
	if f.processErr != nil {
		return nil, f.processErr
	}
	return f.matches, nil
}

type fakeMatches struct {
	byItem     map[string][]domain.MatchWithItem
	resolveErr error
	resolved   []string
}

func (f *fakeMatches) GetMatches(ctx context.Context, itemID string) ([]domain.MatchWithItem, error) {
	matches, ok := f.byItem[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}
	return matches, nil
}

func (f *fakeMatches) ResolveMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	f.resolved = append(f.resolved, matchID)
	now := time.Now()
	return &domain.Match{ID: matchID, Status: domain.MatchStatusResolved, ResolvedAt: &now}, nil
}

type fakeQueue struct {
	enqueued []string
	err      error
}

func (q *fakeQueue) Enqueue(itemID string) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, itemID)
	return nil
}

// --- Setup ---

type testServer struct {
	router  *gin.Engine
	items   *fakeItems
	matches *fakeMatches
	queue   *fakeQueue
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"https://lostfound.*", "http://localhost:3000"},
		},
		RateLimit: config.RateLimitConfig{PerIP: 1000},
	}
}

// setupTestRouter creates a test router backed by fakes
func setupTestRouter(t *testing.T, items ...*domain.Item) *testServer {
	t.Helper()

	s := &testServer{
		items:   newFakeItems(items...),
		matches: &fakeMatches{byItem: map[string][]domain.MatchWithItem{}},
		queue:   &fakeQueue{},
	}

	log := logger.NewTestLogger(t)
	handler := NewHandler(s.items, s.matches, s.queue, log)
	s.router = SetupRouter(testConfig(), handler, log)
	return s
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return response
}

func lostWallet() *domain.Item {
	return &domain.Item{
		ID:          "lost-1",
		Type:        domain.ItemTypeLost,
		Title:       "Black wallet",
		Description: "Leather wallet with student ID",
		ImageRef:    "https://images.example.com/wallet.jpg",
		Status:      domain.ItemStatusOpen,
		CreatedBy:   "user-1",
	}
}

// --- Tests ---

func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		s := setupTestRouter(t)

		w := s.do("GET", "/health", "")
		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		response := decode(t, w)
		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "lostfound-backend" {
			t.Errorf("service = %v, want lostfound-backend", response["service"])
		}
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		s := setupTestRouter(t)

		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			w := s.do(method, "/health", "")
			if w.Code != http.StatusNotFound {
				t.Errorf("Method %s: Status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestRouter(t)

	s.do("GET", "/health", "")
	w := s.do("GET", "/metrics", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "lostfound_http_requests_total") {
		t.Errorf("metrics output does not contain lostfound_http_requests_total")
	}
}

func TestCreateItemEndpoint(t *testing.T) {
	t.Run("creates and schedules the item", func(t *testing.T) {
		s := setupTestRouter(t)

		payload := `{"userId":"user-1","title":"Black wallet","description":"Leather","imageUrl":"https://images.example.com/w.jpg","type":"lost"}`
		w := s.do("POST", "/api/v1/items", payload)

		if w.Code != http.StatusCreated {
			t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
		}
		response := decode(t, w)
		if response["success"] != true {
			t.Errorf("success = %v, want true", response["success"])
		}
		if response["itemId"] != "item-1" {
			t.Errorf("itemId = %v, want item-1", response["itemId"])
		}
		if len(s.queue.enqueued) != 1 || s.queue.enqueued[0] != "item-1" {
			t.Errorf("enqueued = %v, want [item-1]", s.queue.enqueued)
		}
	})

	t.Run("still succeeds when the queue is full", func(t *testing.T) {
		s := setupTestRouter(t)
		s.queue.err = fmt.Errorf("%w: processing queue is full", domain.ErrRateLimited)

		payload := `{"userId":"user-1","title":"Umbrella","description":"Blue","imageUrl":"https://images.example.com/u.jpg","type":"found"}`
		w := s.do("POST", "/api/v1/items", payload)

		if w.Code != http.StatusCreated {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusCreated)
		}
		message, _ := decode(t, w)["message"].(string)
		if !strings.Contains(message, "delayed") {
			t.Errorf("message = %q, want to mention the delay", message)
		}
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		s := setupTestRouter(t)

		w := s.do("POST", "/api/v1/items", `{"userId":"user-1","type":"lost"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		errorMsg, _ := decode(t, w)["error"].(string)
		if !strings.Contains(errorMsg, "title") {
			t.Errorf("error = %q, want to name the missing title", errorMsg)
		}
		if len(s.queue.enqueued) != 0 {
			t.Errorf("invalid item was enqueued")
		}
	})

	t.Run("rejects an unknown type", func(t *testing.T) {
		s := setupTestRouter(t)

		payload := `{"userId":"u","title":"t","description":"d","imageUrl":"i","type":"stolen"}`
		w := s.do("POST", "/api/v1/items", payload)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		s := setupTestRouter(t)

		w := s.do("POST", "/api/v1/items", `{"title":`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestListItemsEndpoint(t *testing.T) {
	t.Run("passes the filter through", func(t *testing.T) {
		s := setupTestRouter(t, lostWallet())

		w := s.do("GET", "/api/v1/items?type=lost&status=open&limit=5", "")
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if s.items.lastFilter.Type != domain.ItemTypeLost || s.items.lastFilter.Limit != 5 {
			t.Errorf("filter = %+v, want type lost and limit 5", s.items.lastFilter)
		}
		if count := decode(t, w)["count"]; count != float64(1) {
			t.Errorf("count = %v, want 1", count)
		}
	})

	t.Run("rejects a bad limit", func(t *testing.T) {
		s := setupTestRouter(t)

		w := s.do("GET", "/api/v1/items?limit=abc", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("rejects an unknown type", func(t *testing.T) {
		s := setupTestRouter(t)

		w := s.do("GET", "/api/v1/items?type=stolen", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestGetItemEndpoint(t *testing.T) {
	s := setupTestRouter(t, lostWallet())

	w := s.do("GET", "/api/v1/items/lost-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	item, _ := decode(t, w)["item"].(map[string]interface{})
	if item["title"] != "Black wallet" {
		t.Errorf("title = %v, want Black wallet", item["title"])
	}

	w = s.do("GET", "/api/v1/items/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestProcessItemEndpoint(t *testing.T) {
	t.Run("returns created matches", func(t *testing.T) {
		s := setupTestRouter(t, lostWallet())
		s.items.matches = []domain.Match{{ID: "match-1", LostItemID: "lost-1", FoundItemID: "found-1", ConfidenceScore: 0.8}}

		w := s.do("POST", "/api/v1/items/lost-1/process", "")
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if count := decode(t, w)["count"]; count != float64(1) {
			t.Errorf("count = %v, want 1", count)
		}
	})

	t.Run("extraction failure is a bad gateway", func(t *testing.T) {
		s := setupTestRouter(t, lostWallet())
		s.items.processErr = domain.NewCollaboratorError(domain.CapabilityFeatureExtraction, errors.New("vision api status 503"))

		w := s.do("POST", "/api/v1/items/lost-1/process", "")
		if w.Code != http.StatusBadGateway {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadGateway)
		}
	})

	t.Run("unexpected failure hides details", func(t *testing.T) {
		s := setupTestRouter(t, lostWallet())
		s.items.processErr = errors.New("pq: connection reset")

		w := s.do("POST", "/api/v1/items/lost-1/process", "")
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if strings.Contains(w.Body.String(), "pq:") {
			t.Errorf("response leaks internal error: %s", w.Body.String())
		}
	})
}

func TestGetMatchesEndpoint(t *testing.T) {
	s := setupTestRouter(t, lostWallet())
	s.matches.byItem["lost-1"] = []domain.MatchWithItem{
		{Match: domain.Match{ID: "match-1", ConfidenceScore: 0.9}, OtherItem: &domain.Item{ID: "found-1"}},
		{Match: domain.Match{ID: "match-2", ConfidenceScore: 0.7}, OtherItem: &domain.Item{ID: "found-2"}},
	}

	w := s.do("GET", "/api/v1/items/lost-1/matches", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	matches, _ := decode(t, w)["matches"].([]interface{})
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	first, _ := matches[0].(map[string]interface{})
	if first["matchId"] != "match-1" {
		t.Errorf("first matchId = %v, want match-1", first["matchId"])
	}

	w = s.do("GET", "/api/v1/items/unknown/matches", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestResolveMatchEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		resolveErr error
		wantStatus int
	}{
		{"resolves", nil, http.StatusOK},
		{"unknown match", fmt.Errorf("%w: match-9", domain.ErrMatchNotFound), http.StatusNotFound},
		{"already resolved", fmt.Errorf("%w: match-1", domain.ErrMatchAlreadyResolved), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestRouter(t)
			s.matches.resolveErr = tt.resolveErr

			w := s.do("POST", "/api/v1/matches/match-1/resolve", "")
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestCORSIntegration(t *testing.T) {
	t.Run("health endpoint has CORS for the campus site", func(t *testing.T) {
		s := setupTestRouter(t)

		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "https://lostfound.campus.edu")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://lostfound.campus.edu" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "https://lostfound.campus.edu")
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, "true")
		}
	})

	t.Run("api endpoint has CORS for localhost", func(t *testing.T) {
		s := setupTestRouter(t, lostWallet())

		req := httptest.NewRequest("GET", "/api/v1/items/lost-1", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
		}
	})
}

func TestRecoveryIntegration(t *testing.T) {
	s := setupTestRouter(t)
	s.router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := s.do("GET", "/panic", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestAPIVersioning(t *testing.T) {
	s := setupTestRouter(t, lostWallet())

	if w := s.do("GET", "/api/v1/items/lost-1", ""); w.Code != http.StatusOK {
		t.Errorf("v1 route: Status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := s.do("GET", "/api/items/lost-1", ""); w.Code != http.StatusNotFound {
		t.Errorf("non-versioned route: Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestJSONResponses(t *testing.T) {
	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/api/v1/items"},
		{"GET", "/api/v1/items/missing"},
		{"POST", "/api/v1/matches/match-1/resolve"},
	}

	for _, endpoint := range endpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			s := setupTestRouter(t)

			w := s.do(endpoint.method, endpoint.path, "")

			gotContentType := w.Header().Get("Content-Type")
			wantContentType := "application/json; charset=utf-8"
			if gotContentType != wantContentType {
				t.Errorf("Content-Type = %q, want %q", gotContentType, wantContentType)
			}
			decode(t, w)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", domain.ErrValidation), http.StatusBadRequest},
		{domain.NewCollaboratorError(domain.CapabilityFeatureExtraction, fmt.Errorf("%w: empty ref", domain.ErrValidation)), http.StatusBadRequest},
		{domain.ErrItemNotFound, http.StatusNotFound},
		{domain.ErrMatchNotFound, http.StatusNotFound},
		{domain.ErrMatchAlreadyResolved, http.StatusConflict},
		{fmt.Errorf("%w: item lost-1 is matched", domain.ErrItemNotOpen), http.StatusConflict},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.NewCollaboratorError(domain.CapabilityFeatureExtraction, errors.New("503")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
