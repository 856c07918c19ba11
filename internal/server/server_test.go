package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"cellule-dashboard/cellule"
	"cellule-dashboard/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewWithOutput("error", io.Discard)
	mgr, err := cellule.NewCellManager(filepath.Join(t.TempDir(), "cell.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return New(mgr, log)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestCreateMember(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"valid member", `{"name":"Alice","role":"Leader"}`, http.StatusCreated},
		{"default role", `{"name":"Bob"}`, http.StatusCreated},
		{"empty name", `{"name":"","role":"Member"}`, http.StatusBadRequest},
		{"unknown role", `{"name":"Carl","role":"Bishop"}`, http.StatusBadRequest},
		{"malformed body", `{"name":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupServer(t)
			w := do(t, s, http.MethodPost, "/api/members", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}
}

func TestMembersList(t *testing.T) {
	s := setupServer(t)
	do(t, s, http.MethodPost, "/api/members", `{"name":"Alice","role":"Leader","phone":"555"}`)

	w := do(t, s, http.MethodGet, "/api/members", "")
	require.Equal(t, http.StatusOK, w.Code)
	members := decode[[]cellule.Member](t, w)
	require.Len(t, members, 1)
	assert.Equal(t, "Alice", members[0].Name)
	assert.Equal(t, cellule.RoleLeader, members[0].Role)
	assert.Equal(t, "555", members[0].Phone)
}

func TestAttendanceFlow(t *testing.T) {
	s := setupServer(t)
	do(t, s, http.MethodPost, "/api/members", `{"name":"Alice","role":"Leader"}`)
	do(t, s, http.MethodPost, "/api/members", `{"name":"Bob"}`)

	w := do(t, s, http.MethodPost, "/api/attendance", `{"member_id":1,"date":"2026-10-12","present":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, s, http.MethodPost, "/api/attendance", `{"member_id":2,"date":"2026-10-12","present":false}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, s, http.MethodPost, "/api/attendance", `{"member_id":1,"date":"2026-10-05"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Unknown member and bad dates are rejected before storage.
	w = do(t, s, http.MethodPost, "/api/attendance", `{"member_id":42,"date":"2026-10-12"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodPost, "/api/attendance", `{"member_id":1,"date":"12/10/2026"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/api/attendance/daily", "")
	require.Equal(t, http.StatusOK, w.Code)
	rates := decode[[]cellule.DailyRate](t, w)
	assert.Equal(t, []cellule.DailyRate{
		{Date: "2026-10-05", Rate: 100},
		{Date: "2026-10-12", Rate: 50},
	}, rates)

	w = do(t, s, http.MethodGet, "/api/attendance?from=2026-10-10", "")
	require.Equal(t, http.StatusOK, w.Code)
	records := decode[[]cellule.Attendance](t, w)
	require.Len(t, records, 2)
	require.NotNil(t, records[0].MemberName)
	assert.Equal(t, "Alice", *records[0].MemberName)

	w = do(t, s, http.MethodGet, "/api/attendance?to=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrayerFlow(t *testing.T) {
	s := setupServer(t)

	w := do(t, s, http.MethodPost, "/api/prayers", `{"requester":"","content":"healing"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(t, s, http.MethodPost, "/api/prayers", `{"requester":"Bob","content":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPut, "/api/prayers/1/status", `{"status":"answered"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, s, http.MethodPut, "/api/prayers/999/status", `{"status":"answered"}`)
	assert.Equal(t, http.StatusOK, w.Code, "unknown prayer ids are a no-op")
	w = do(t, s, http.MethodPut, "/api/prayers/1/status", `{"status":"closed"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodPut, "/api/prayers/abc/status", `{"status":"open"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/api/prayers", "")
	prayers := decode[[]cellule.Prayer](t, w)
	require.Len(t, prayers, 1)
	assert.Equal(t, cellule.AnonymousRequester, prayers[0].Requester)
	assert.Equal(t, cellule.StatusAnswered, prayers[0].Status)
}

func TestOverviewWithoutAttendance(t *testing.T) {
	s := setupServer(t)
	do(t, s, http.MethodPost, "/api/prayers", `{"content":"peace"}`)

	w := do(t, s, http.MethodGet, "/api/overview", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Nil(t, body["attendance_rate"])
	assert.Equal(t, "N/A", body["attendance_rate_text"])
	assert.Equal(t, float64(1), body["open_prayers"])
}

func TestExportEndpoints(t *testing.T) {
	s := setupServer(t)
	do(t, s, http.MethodPost, "/api/members", `{"name":"Alice"}`)

	w := do(t, s, http.MethodGet, "/api/export/members", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), cellule.MembersCSV)
	assert.True(t, strings.HasPrefix(w.Body.String(), "id,name,phone,email,role,joined\n"))

	w = do(t, s, http.MethodGet, "/api/export/secrets", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/api/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{cellule.MembersCSV, cellule.AttendanceCSV, cellule.PrayersCSV}, names)
}

func TestReset(t *testing.T) {
	s := setupServer(t)
	do(t, s, http.MethodPost, "/api/members", `{"name":"Alice"}`)

	w := do(t, s, http.MethodPost, "/api/reset", `{"confirmation":"oui"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["reset"])
	assert.Len(t, decode[[]cellule.Member](t, do(t, s, http.MethodGet, "/api/members", "")), 1)

	w = do(t, s, http.MethodPost, "/api/reset", `{"confirmation":"Confirmer"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["reset"])
	assert.Empty(t, decode[[]cellule.Member](t, do(t, s, http.MethodGet, "/api/members", "")))
}

func TestHealthAndMetrics(t *testing.T) {
	s := setupServer(t)
	do(t, s, http.MethodPost, "/api/members", `{"name":"Alice"}`)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", "").Code)

	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cellule_operations_total")
}
