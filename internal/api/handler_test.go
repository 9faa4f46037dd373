package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"makequeue-backend/config"
	"makequeue-backend/internal/clock"
	"makequeue-backend/internal/db"
	"makequeue-backend/internal/identity"
	"makequeue-backend/internal/model"
	"makequeue-backend/internal/quota"
	"makequeue-backend/internal/reserve"
	"makequeue-backend/internal/store"
)

const testSecret = "test-secret"

// testNow mirrors the fixed clock the router fixture runs on. Oslo is UTC+1.
var testNow = time.Date(2026, 3, 25, 9, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticDirectory map[string]*identity.UserDetails

func (d staticDirectory) GetUserDetails(_ context.Context, username string) (*identity.UserDetails, error) {
	return d[username], nil
}

type staticEvents map[string]bool

func (e staticEvents) EventExists(_ context.Context, eventLink string) (bool, error) {
	return e[eventLink], nil
}

type apiFixture struct {
	router *gin.Engine
	store  store.Store
	db     *gorm.DB
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(testDB))

	s := store.NewGormStore(testDB)

	directory := staticDirectory{
		"alice": {Username: "alice", DisplayName: "Alice Member", Role: model.RoleMember},
		"bob":   {Username: "bob", DisplayName: "Bob Member", Role: model.RoleMember},
		"root":  {Username: "root", DisplayName: "Root Maintainer", Role: model.RoleMaintainer},
	}

	localizer, err := clock.NewLocalizer("Europe/Oslo")
	require.NoError(t, err)

	service := reserve.NewService(s, directory, staticEvents{"workshop-night": true},
		quota.NewPolicy(quota.Table{}), localizer, clock.Fixed(testNow))

	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Server.CacheTTLSeconds = 1
	cfg.Auth.JWTSecret = testSecret

	return &apiFixture{
		router: NewRouter(cfg, s, service, directory),
		store:  s,
		db:     testDB,
	}
}

func (f *apiFixture) seed(t *testing.T, streamNames ...string) []model.Machine {
	t.Helper()
	machineType := model.MachineType{
		Name:               "3D printer",
		MinSlotMinutes:     30,
		MaxDurationMinutes: 480,
		Priority:           1,
	}
	require.NoError(t, f.db.Create(&machineType).Error)

	machines := make([]model.Machine, len(streamNames))
	for i, streamName := range streamNames {
		machines[i] = model.Machine{
			Name:          "Printer " + streamName,
			StreamName:    streamName,
			MachineTypeID: machineType.ID,
			Status:        model.StatusAvailable,
		}
		require.NoError(t, f.db.Create(&machines[i]).Error)
	}
	return machines
}

func token(t *testing.T, username string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": username,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path, actor string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if actor != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, actor))
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestKioskUserLookup(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("known user", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/users/alice", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "alice", body["username"])
		assert.Equal(t, "Alice Member", body["display_name"])
		assert.Equal(t, "member", body["role"])
	})

	t.Run("unknown user is a bare 404", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/users/eve", "", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("malformed username", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/users/Not%20A%20User", "", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_identifier", decode(t, w)["kind"])
	})
}

func TestReservationLifecycleHTTP(t *testing.T) {
	f := newAPIFixture(t)
	f.seed(t, "printer-1")

	createForm := func(start, end string) url.Values {
		return url.Values{
			"machine": {"printer-1"},
			"start":   {start},
			"end":     {end},
		}
	}

	w := f.do(t, http.MethodPost, "/api/reservations", "alice",
		createForm("03/26/2026 10:00", "03/26/2026 12:00"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "printer-1", created["machine"])
	assert.Equal(t, "alice", created["user"])
	assert.Equal(t, "03/26/2026 10:00", created["start_local"])
	assert.Equal(t, "scheduled", created["state"])
	require.Contains(t, created, "id", "the owner sees the reservation ID")
	reservationID := int64(created["id"].(float64))

	t.Run("overlap is rejected with the offending slot", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/reservations", "bob",
			createForm("03/26/2026 11:00", "03/26/2026 13:00"))
		require.Equal(t, http.StatusConflict, w.Code)
		body := decode(t, w)
		assert.Equal(t, "conflict", body["kind"])
		offenders := body["offenders"].([]any)
		require.Len(t, offenders, 1)
		offender := offenders[0].(map[string]any)
		assert.Equal(t, "alice", offender["user"])
		assert.Equal(t, "03/26/2026 10:00", offender["start_local"])
		assert.NotContains(t, offender, "id", "third parties never see reservation IDs")
	})

	t.Run("stranger may not cancel", func(t *testing.T) {
		w := f.do(t, http.MethodDelete, fmt.Sprintf("/api/reservations/%d", reservationID), "bob", nil)
		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "forbidden", decode(t, w)["kind"])
	})

	t.Run("owner reschedules", func(t *testing.T) {
		w := f.do(t, http.MethodPut, fmt.Sprintf("/api/reservations/%d", reservationID), "alice",
			url.Values{"start": {"03/26/2026 14:00"}, "end": {"03/26/2026 16:00"}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "03/26/2026 14:00", decode(t, w)["start_local"])
	})

	t.Run("owner cancels, slot frees up", func(t *testing.T) {
		w := f.do(t, http.MethodDelete, fmt.Sprintf("/api/reservations/%d", reservationID), "alice", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "cancelled", decode(t, w)["state"])

		w = f.do(t, http.MethodPost, "/api/reservations", "bob",
			createForm("03/26/2026 14:00", "03/26/2026 16:00"))
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})
}

func TestReservationAuth(t *testing.T) {
	f := newAPIFixture(t)
	f.seed(t, "printer-1")
	form := url.Values{
		"machine": {"printer-1"},
		"start":   {"03/26/2026 10:00"},
		"end":     {"03/26/2026 12:00"},
	}

	t.Run("missing token", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/reservations", "", form)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token for a user the directory does not know", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/reservations", "ghost", form)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/reservations", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer not.a.token")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestMachineAdmin(t *testing.T) {
	f := newAPIFixture(t)
	machines := f.seed(t, "printer-1")
	typeID := machines[0].MachineTypeID

	createBody := func() *strings.Reader {
		return strings.NewReader(fmt.Sprintf(
			`{"name": "Printer Two", "stream_name": "printer-2", "machine_type_id": %d}`, typeID))
	}
	jsonReq := func(method, path, actor string, body *strings.Reader) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token(t, actor))
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}

	t.Run("members may not manage the catalog", func(t *testing.T) {
		w := jsonReq(http.MethodPost, "/api/machines", "alice", createBody())
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("maintainer creates a machine", func(t *testing.T) {
		w := jsonReq(http.MethodPost, "/api/machines", "root", createBody())
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		body := decode(t, w)
		assert.Equal(t, "printer-2", body["stream_name"])
		assert.Equal(t, "available", body["status"])
		assert.Equal(t, "3D printer", body["type"])
	})

	t.Run("duplicate stream name", func(t *testing.T) {
		w := jsonReq(http.MethodPost, "/api/machines", "root", createBody())
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "duplicate_stream_name", decode(t, w)["kind"])
	})

	t.Run("maintainer transitions status", func(t *testing.T) {
		w := jsonReq(http.MethodPut, fmt.Sprintf("/api/machines/%d/status", machines[0].ID), "root",
			strings.NewReader(`{"status": "out_of_order"}`))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "out_of_order", decode(t, w)["status"])
	})

	t.Run("reserving the broken machine is rejected", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/reservations", "alice", url.Values{
			"machine": {"printer-1"},
			"start":   {"03/26/2026 10:00"},
			"end":     {"03/26/2026 12:00"},
		})
		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "machine_unavailable", decode(t, w)["kind"])
	})
}

func TestQueueDisplayHTTP(t *testing.T) {
	f := newAPIFixture(t)
	machines := f.seed(t, "printer-1", "printer-2")

	// printer-1 is in use right now and booked again later today.
	_, err := f.store.Insert(context.Background(), store.ReservationSpec{
		MachineID: machines[0].ID, UserID: "alice",
		Start: testNow.Add(-time.Hour), End: testNow.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = f.store.Insert(context.Background(), store.ReservationSpec{
		MachineID: machines[0].ID, UserID: "bob",
		Start: testNow.Add(3 * time.Hour), End: testNow.Add(4 * time.Hour),
	})
	require.NoError(t, err)

	t.Run("current holder", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/machines/printer-1/current", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["occupied"])
		assert.Equal(t, "alice", body["user"])
		assert.Equal(t, "Alice Member", body["display_name"])
	})

	t.Run("free machine", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/machines/printer-2/current", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decode(t, w)["occupied"])
	})

	t.Run("unknown machine", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/machines/printer-9/current", "", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "unknown_machine", decode(t, w)["kind"])
	})

	t.Run("upcoming excludes the running slot", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/machines/printer-1/upcoming?hours=6", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var views []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
		require.Len(t, views, 1)
		assert.Equal(t, "bob", views[0]["user"])
		assert.NotContains(t, views[0], "id")
	})

	t.Run("free slots", func(t *testing.T) {
		typeID := machines[0].MachineTypeID
		w := f.do(t, http.MethodGet, fmt.Sprintf("/api/free_slots?type=%d&hours=2", typeID), "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var slots []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &slots))
		require.NotEmpty(t, slots)
		assert.Equal(t, "printer-2", slots[0]["machine"])
	})

	t.Run("user schedule", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/users/alice/schedule", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var views []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
		require.Len(t, views, 1)
		assert.Equal(t, "printer-1", views[0]["machine"])
		assert.Equal(t, "active", views[0]["state"])
	})

	t.Run("machine listing", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/machines", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var views []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
		assert.Len(t, views, 2)
	})
}
