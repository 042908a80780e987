package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tabclip/internal/capture"
	"tabclip/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	toggleErr error
	toggles   int
	stops     int
	selected  model.TabID
	limit     int
	events    []model.Event
}

func (f *fakeService) Toggle() error { f.toggles++; return f.toggleErr }
func (f *fakeService) Stop()         { f.stops++ }

func (f *fakeService) Status() model.Status {
	return model.Status{State: model.StateIdle, Tab: f.selected}
}

func (f *fakeService) SelectTab(tab model.TabID) error {
	if tab != "A" {
		return capture.ErrNoTab
	}
	f.selected = tab
	return nil
}

func (f *fakeService) ListTargets() []model.TargetInfo {
	return []model.TargetInfo{{ID: "A", Type: "page", URL: "https://example.com", IsCurrent: true}}
}

func (f *fakeService) Downloads(ctx context.Context, limit int) ([]model.Download, error) {
	f.limit = limit
	return []model.Download{{ID: 1, Filename: "rec.mjpeg", Size: 42}}, nil
}

func (f *fakeService) SubscribeEvents(buf int) (<-chan model.Event, func()) {
	ch := make(chan model.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, func() {}
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	h := New("", &fakeService{}, nil).Routes()
	rec := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Toggle(t *testing.T) {
	svc := &fakeService{}
	h := New("", svc, nil).Routes()

	rec := do(t, h, http.MethodPost, "/api/toggle")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.toggles)

	svc.toggleErr = capture.ErrNoTab
	rec = do(t, h, http.MethodPost, "/api/toggle")
	assert.Equal(t, http.StatusConflict, rec.Code)

	svc.toggleErr = errors.New("boom")
	rec = do(t, h, http.MethodPost, "/api/toggle")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_ToggleRequiresPost(t *testing.T) {
	h := New("", &fakeService{}, nil).Routes()
	rec := do(t, h, http.MethodGet, "/api/toggle")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_StopAndStatus(t *testing.T) {
	svc := &fakeService{}
	h := New("", svc, nil).Routes()

	rec := do(t, h, http.MethodPost, "/api/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.stops)

	var st model.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, model.StateIdle, st.State)
}

func TestServer_SelectTab(t *testing.T) {
	svc := &fakeService{}
	h := New("", svc, nil).Routes()

	rec := do(t, h, http.MethodPost, "/api/targets/A/select")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.TabID("A"), svc.selected)

	rec = do(t, h, http.MethodPost, "/api/targets/Z/select")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Targets(t *testing.T) {
	h := New("", &fakeService{}, nil).Routes()
	rec := do(t, h, http.MethodGet, "/api/targets")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []model.TargetInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.True(t, list[0].IsCurrent)
}

func TestServer_DownloadsLimit(t *testing.T) {
	svc := &fakeService{}
	h := New("", svc, nil).Routes()

	rec := do(t, h, http.MethodGet, "/api/downloads")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, svc.limit)

	rec = do(t, h, http.MethodGet, "/api/downloads?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.limit)

	rec = do(t, h, http.MethodGet, "/api/downloads?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_EventsStream(t *testing.T) {
	svc := &fakeService{events: []model.Event{
		{Type: "started", Session: "s1", Tab: "A"},
		{Type: "stopped", Session: "s1", Reason: model.ReasonToggle},
	}}
	h := New("", svc, nil).Routes()

	rec := do(t, h, http.MethodGet, "/api/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "data: "))
	assert.Contains(t, body, "event: started\n")
	assert.Contains(t, body, `"reason":"toggle"`)
}

func TestServer_Metrics(t *testing.T) {
	h := New("", &fakeService{}, nil).Routes()
	rec := do(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
