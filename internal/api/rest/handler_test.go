package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/Awuah-B/report-bot/internal/api/middleware"
	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/logger"
	"github.com/Awuah-B/report-bot/internal/poller"
	"github.com/Awuah-B/report-bot/internal/registry"
	"github.com/Awuah-B/report-bot/internal/store"
	"github.com/Awuah-B/report-bot/internal/store/schema"
)

const testAPIKey = "test-key"

func TestMain(m *testing.M) {
	// Initialize logger for tests
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}
	gin.SetMode(gin.TestMode)

	code := m.Run()
	os.Exit(code)
}

// fakeStore serves canned read data and keeps subscriptions in memory
type fakeStore struct {
	store.Store
	records map[domain.Stage][]schema.LiveRecord
	events  []schema.RecentEvent
	counts  map[domain.Stage]int64
	cursors map[domain.Stage]time.Time
	subs    map[string]schema.Subscription
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: map[domain.Stage][]schema.LiveRecord{},
		counts:  map[domain.Stage]int64{},
		cursors: map[domain.Stage]time.Time{},
		subs:    map[string]schema.Subscription{},
	}
}

func (f *fakeStore) ListRecent(_ context.Context, stage domain.Stage, n int) ([]schema.LiveRecord, error) {
	rows := f.records[stage]
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}

func (f *fakeStore) SearchBRV(_ context.Context, brvNumber string) (map[domain.Stage][]schema.LiveRecord, error) {
	matches := map[domain.Stage][]schema.LiveRecord{}
	for stage, rows := range f.records {
		for _, row := range rows {
			if row.BRVNumber == brvNumber {
				matches[stage] = append(matches[stage], row)
			}
		}
	}
	return matches, nil
}

func (f *fakeStore) ListRecentEvents(_ context.Context, limit int) ([]schema.RecentEvent, error) {
	rows := f.events
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeStore) CountAll(_ context.Context) (map[domain.Stage]int64, error) {
	counts := map[domain.Stage]int64{}
	for _, stage := range domain.Stages() {
		counts[stage] = f.counts[stage]
	}
	return counts, nil
}

func (f *fakeStore) GetPollCursor(_ context.Context, stage domain.Stage) (time.Time, error) {
	return f.cursors[stage], nil
}

func (f *fakeStore) CreateSubscription(_ context.Context, chatID, actorID string) error {
	if _, ok := f.subs[chatID]; ok {
		return domain.ErrAlreadySubscribed
	}
	f.subs[chatID] = schema.Subscription{ChatID: chatID, SubscribedBy: actorID, CreatedAt: time.Now()}
	return nil
}

func (f *fakeStore) DeleteSubscription(_ context.Context, chatID string) error {
	if _, ok := f.subs[chatID]; !ok {
		return domain.ErrNotSubscribed
	}
	delete(f.subs, chatID)
	return nil
}

func (f *fakeStore) ListSubscriptions(_ context.Context) ([]schema.Subscription, error) {
	out := make([]schema.Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		out = append(out, sub)
	}
	return out, nil
}

func (f *fakeStore) IsSubscribed(_ context.Context, chatID string) (bool, error) {
	_, ok := f.subs[chatID]
	return ok, nil
}

// fakeTrigger records manual check requests
type fakeTrigger struct {
	err    error
	stages []domain.Stage
}

func (f *fakeTrigger) TriggerNow(_ context.Context, stage domain.Stage) error {
	f.stages = append(f.stages, stage)
	return f.err
}

func newTestRouter(st store.Store, trigger poller.Trigger) *gin.Engine {
	router := gin.New()
	reg := registry.New(st, nil, []string{"1"})
	SetupRoutes(router, NewHandler(st, reg, trigger), middleware.AuthConfig{APIKeys: []string{testAPIKey}})
	return router
}

func perform(router *gin.Engine, method, path, body string, authenticated bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		req.Header.Set("Authorization", "ApiKey "+testAPIKey)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func liveRecord(orderNumber, brv string) schema.LiveRecord {
	return schema.LiveRecord{
		OrderDate:   time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC),
		OrderNumber: orderNumber,
		Products:    "PREMIUM MOTOR SPIRIT",
		Volume:      18000,
		ExRefPrice:  11.23,
		BRVNumber:   brv,
		BDC:         "BDC ALPHA",
		ContentHash: "hash-" + orderNumber,
		CreatedAt:   time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
	}
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(newFakeStore(), nil)

	w := perform(router, http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListStages(t *testing.T) {
	router := newTestRouter(newFakeStore(), nil)

	w := perform(router, http.MethodGet, "/api/v1/stages", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"depot_manager"`)
	assert.Contains(t, w.Body.String(), `"display":"Depot Manager"`)
}

func TestListStageRecords(t *testing.T) {
	st := newFakeStore()
	st.records[domain.StageDepotManager] = []schema.LiveRecord{
		liveRecord("ORD-1", "GT-1111-20"),
		liveRecord("ORD-2", "GT-2222-20"),
	}
	router := newTestRouter(st, nil)

	t.Run("returns the stage's records", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/stages/depot_manager/records", "", false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"order_number":"ORD-1"`)
		assert.Contains(t, w.Body.String(), `"order_date":"2026-08-23"`)
	})

	t.Run("respects the limit parameter", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/stages/depot_manager/records?limit=1", "", false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ORD-1")
		assert.NotContains(t, w.Body.String(), "ORD-2")
	})

	t.Run("unknown stage responds 404", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/stages/shipped/records", "", false)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"not_found"`)
	})

	t.Run("non-positive limit responds 400", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/stages/depot_manager/records?limit=0", "", false)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"bad_request"`)
	})
}

func TestSearchRecords(t *testing.T) {
	st := newFakeStore()
	st.records[domain.StageDepotManager] = []schema.LiveRecord{liveRecord("ORD-1", "GT-1111-20")}
	st.records[domain.StageLoaded] = []schema.LiveRecord{liveRecord("ORD-2", "GT-1111-20")}
	router := newTestRouter(st, nil)

	t.Run("finds a BRV number across stages", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/records/search?brv=GT-1111-20", "", false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total":2`)
		assert.Contains(t, w.Body.String(), `"depot_manager"`)
		assert.Contains(t, w.Body.String(), `"loaded"`)
	})

	t.Run("missing brv parameter responds 400", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/records/search", "", false)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no matches is an empty result, not an error", func(t *testing.T) {
		w := perform(router, http.MethodGet, "/api/v1/records/search?brv=GT-9999-20", "", false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total":0`)
	})
}

func TestListRecentEvents(t *testing.T) {
	st := newFakeStore()
	st.events = []schema.RecentEvent{
		{
			EventID:    "01J0000000000000000000000A",
			Stage:      string(domain.StageLoaded),
			Payload:    datatypes.JSON([]byte(`{"order_number":"ORD-1"}`)),
			DetectedAt: time.Date(2026, 8, 24, 10, 5, 0, 0, time.UTC),
		},
	}
	router := newTestRouter(st, nil)

	w := perform(router, http.MethodGet, "/api/v1/events/recent", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "01J0000000000000000000000A")
	assert.Contains(t, w.Body.String(), `"order_number":"ORD-1"`)
	assert.Contains(t, w.Body.String(), "2026-08-24T10:05:00Z")
}

func TestGetStats(t *testing.T) {
	st := newFakeStore()
	st.counts[domain.StageDepotManager] = 7
	st.cursors[domain.StageDepotManager] = time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.CreateSubscription(context.Background(), "-100", "1"))
	router := newTestRouter(st, nil)

	w := perform(router, http.MethodGet, "/api/v1/stats", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":7`)
	assert.Contains(t, w.Body.String(), `"last_checked":"2026-08-24T10:00:00Z"`)
	assert.Contains(t, w.Body.String(), `"subscribers":1`)
}

func TestTriggerCheck(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		router := newTestRouter(newFakeStore(), &fakeTrigger{})

		w := perform(router, http.MethodPost, "/api/v1/stages/loaded/check", "", false)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("runs the stage's cycle", func(t *testing.T) {
		trigger := &fakeTrigger{}
		router := newTestRouter(newFakeStore(), trigger)

		w := perform(router, http.MethodPost, "/api/v1/stages/loaded/check", "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"completed"`)
		assert.Equal(t, []domain.Stage{domain.StageLoaded}, trigger.stages)
	})

	t.Run("in-flight cycle responds 409", func(t *testing.T) {
		router := newTestRouter(newFakeStore(), &fakeTrigger{err: domain.ErrCycleInFlight})

		w := perform(router, http.MethodPost, "/api/v1/stages/loaded/check", "", true)
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"conflict"`)
	})

	t.Run("unknown stage responds 404", func(t *testing.T) {
		router := newTestRouter(newFakeStore(), &fakeTrigger{})

		w := perform(router, http.MethodPost, "/api/v1/stages/shipped/check", "", true)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("responds 404 without an in-process poller", func(t *testing.T) {
		router := newTestRouter(newFakeStore(), nil)

		w := perform(router, http.MethodPost, "/api/v1/stages/loaded/check", "", true)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSubscriptions(t *testing.T) {
	t.Run("subscribe requires authentication", func(t *testing.T) {
		router := newTestRouter(newFakeStore(), nil)

		w := perform(router, http.MethodPost, "/api/v1/subscriptions", `{"chat_id":"-100","actor_id":"1"}`, false)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("superadmin can subscribe a chat", func(t *testing.T) {
		st := newFakeStore()
		router := newTestRouter(st, nil)

		w := perform(router, http.MethodPost, "/api/v1/subscriptions", `{"chat_id":"-100","actor_id":"1"}`, true)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"subscribed"`)
		assert.Contains(t, st.subs, "-100")
	})

	t.Run("unauthorized actor responds 403", func(t *testing.T) {
		st := newFakeStore()
		router := newTestRouter(st, nil)

		w := perform(router, http.MethodPost, "/api/v1/subscriptions", `{"chat_id":"-100","actor_id":"9"}`, true)
		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, st.subs)
	})

	t.Run("duplicate subscription responds 409", func(t *testing.T) {
		router := newTestRouter(newFakeStore(), nil)

		perform(router, http.MethodPost, "/api/v1/subscriptions", `{"chat_id":"-100","actor_id":"1"}`, true)
		w := perform(router, http.MethodPost, "/api/v1/subscriptions", `{"chat_id":"-100","actor_id":"1"}`, true)
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing body fields respond 400", func(t *testing.T) {
		router := newTestRouter(newFakeStore(), nil)

		w := perform(router, http.MethodPost, "/api/v1/subscriptions", `{"chat_id":"-100"}`, true)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("lists subscriptions", func(t *testing.T) {
		st := newFakeStore()
		require.NoError(t, st.CreateSubscription(context.Background(), "-100", "1"))
		router := newTestRouter(st, nil)

		w := perform(router, http.MethodGet, "/api/v1/subscriptions", "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"-100"`)
	})

	t.Run("unsubscribe removes the chat", func(t *testing.T) {
		st := newFakeStore()
		require.NoError(t, st.CreateSubscription(context.Background(), "-100", "1"))
		router := newTestRouter(st, nil)

		w := perform(router, http.MethodDelete, "/api/v1/subscriptions/-100?actor_id=1", "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, st.subs)
	})

	t.Run("unsubscribing an absent chat responds 404", func(t *testing.T) {
		router := newTestRouter(newFakeStore(), nil)

		w := perform(router, http.MethodDelete, "/api/v1/subscriptions/-404?actor_id=1", "", true)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unsubscribe without an actor responds 400", func(t *testing.T) {
		router := newTestRouter(newFakeStore(), nil)

		w := perform(router, http.MethodDelete, "/api/v1/subscriptions/-100", "", true)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}
