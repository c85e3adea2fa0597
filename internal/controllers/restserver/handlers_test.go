package restserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/segfit/internal/analysis"
	"github.com/chrissnell/segfit/internal/fit"
	"github.com/chrissnell/segfit/internal/samples"
	"github.com/chrissnell/segfit/internal/storage"
	"github.com/chrissnell/segfit/internal/workspace"
	"github.com/chrissnell/segfit/pkg/config"
	"github.com/chrissnell/segfit/pkg/segment"
)

func newTestController(t *testing.T, withStore bool) *Controller {
	t.Helper()

	times := make([]float64, 21)
	temp := make([]float64, 21)
	for i := range times {
		times[i] = float64(i) * 0.5
		temp[i] = 3*times[i] - 1
	}
	table, err := samples.NewMemTable(times)
	require.NoError(t, err)
	require.NoError(t, table.AddColumn("temp", temp))

	calc := analysis.NewCalculator(fit.DefaultOptions(), true, nil)
	ws := workspace.New(table, calc, 1e-6, workspace.WithDefaultDegree(1))
	require.NoError(t, ws.Discover())

	var store storage.ProjectStore
	if withStore {
		s, err := storage.Open(filepath.Join(t.TempDir(), "projects.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		store = s
	}

	cfg := &config.ConfigData{}
	cfg.ApplyDefaults()

	ctrl, err := NewController(context.Background(), &sync.WaitGroup{}, cfg, ws, store, nil)
	require.NoError(t, err)
	return ctrl
}

func do(t *testing.T, ctrl *Controller, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ctrl.Server.Handler.ServeHTTP(rec, r)
	return rec
}

func decodeEdit(t *testing.T, rec *httptest.ResponseRecorder) editResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp editResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Channel)
	return resp
}

func TestSplitAndMerge(t *testing.T) {
	ctrl := newTestController(t, false)

	resp := decodeEdit(t, do(t, ctrl, http.MethodPost, "/api/channels/temp/split", `{"x": 5}`))
	require.NotNil(t, resp.Index)
	assert.Equal(t, 1, *resp.Index)
	require.Len(t, resp.Channel.Segments, 2)
	assert.Equal(t, 5.0, resp.Channel.Segments[0].XEnd)
	assert.Equal(t, 5.0, resp.Channel.Segments[1].XStart)

	require.NotNil(t, resp.Report)
	assert.Equal(t, []int{0, 1}, resp.Report.Fitted)
	for _, s := range resp.Channel.Segments {
		require.NotNil(t, s.FitResult)
		assert.InDelta(t, 0, s.FitResult.RMSE, 1e-6)
		assert.InDelta(t, 3, s.FitResult.Coefficients[0], 1e-6)
	}

	resp = decodeEdit(t, do(t, ctrl, http.MethodPost, "/api/channels/temp/merge", `{"left": 0, "right": 1}`))
	require.Len(t, resp.Channel.Segments, 1)
	assert.Equal(t, 0.0, resp.Channel.Segments[0].XStart)
	assert.Equal(t, 10.0, resp.Channel.Segments[0].XEnd)
}

func TestEditErrorStatus(t *testing.T) {
	ctrl := newTestController(t, false)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown channel", http.MethodPost, "/api/channels/nope/split", `{"x": 5}`, http.StatusNotFound},
		{"split on domain edge", http.MethodPost, "/api/channels/temp/split", `{"x": 0}`, http.StatusConflict},
		{"split without x", http.MethodPost, "/api/channels/temp/split", `{}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/channels/temp/split", `{`, http.StatusBadRequest},
		{"non-adjacent merge", http.MethodPost, "/api/channels/temp/merge", `{"left": 0, "right": 2}`, http.StatusConflict},
		{"delete last segment", http.MethodDelete, "/api/channels/temp/segments/0", "", http.StatusConflict},
		{"delete bad index", http.MethodDelete, "/api/channels/temp/segments/x", "", http.StatusBadRequest},
		{"patch missing segment", http.MethodPatch, "/api/channels/temp/segments/7", `{"label": "a"}`, http.StatusNotFound},
		{"negative degree", http.MethodPatch, "/api/channels/temp/segments/0", `{"poly_degree": -1}`, http.StatusUnprocessableEntity},
		{"bad type", http.MethodPatch, "/api/channels/temp/segments/0", `{"segment_type": "Bogus"}`, http.StatusUnprocessableEntity},
		{"move domain edge", http.MethodPost, "/api/channels/temp/boundary", `{"index": 0, "side": "start", "x": 1}`, http.StatusConflict},
		{"overlapping insert", http.MethodPost, "/api/channels/temp/segments", `{"x_start": 1, "x_end": 2}`, http.StatusConflict},
		{"empty insert", http.MethodPost, "/api/channels/temp/segments", `{"x_start": 2, "x_end": 2}`, http.StatusUnprocessableEntity},
		{"bad continuity order", http.MethodPut, "/api/channels/temp/continuity", `{"enabled": true, "order": 5}`, http.StatusUnprocessableEntity},
		{"offset without value", http.MethodPut, "/api/channels/temp/offset", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, ctrl, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}

	ch, err := ctrl.ws.Channel("temp")
	require.NoError(t, err)
	require.Len(t, ch.Segments, 1)
	assert.Equal(t, 1, ch.Segments[0].PolyDegree)
	assert.Equal(t, segment.TypeNormal, ch.Segments[0].Type)
}

func TestPatchSegment(t *testing.T) {
	ctrl := newTestController(t, false)

	resp := decodeEdit(t, do(t, ctrl, http.MethodPatch, "/api/channels/temp/segments/0",
		`{"poly_degree": 2, "label": "ramp", "color": "#000000", "thickness": 3, "line_style": "--"}`))

	s := resp.Channel.Segments[0]
	assert.Equal(t, 2, s.PolyDegree)
	assert.Equal(t, "ramp", s.Label)
	assert.Equal(t, "#000000", s.Color)
	assert.Equal(t, 3.0, s.Thickness)
	assert.Equal(t, "--", s.LineStyle)
	require.NotNil(t, s.FitResult)
	assert.Len(t, s.FitResult.Coefficients, 3)
}

func TestPatchIsAllOrNothing(t *testing.T) {
	ctrl := newTestController(t, false)

	rec := do(t, ctrl, http.MethodPatch, "/api/channels/temp/segments/0", `{"label": "kept?", "segment_type": "Bogus"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	ch, err := ctrl.ws.Channel("temp")
	require.NoError(t, err)
	assert.Empty(t, ch.Segments[0].Label)
}

func TestMaskMoveAndReset(t *testing.T) {
	ctrl := newTestController(t, false)

	decodeEdit(t, do(t, ctrl, http.MethodPut, "/api/channels/temp/boundaries", `{"boundaries": [0, 4, 6, 10]}`))
	resp := decodeEdit(t, do(t, ctrl, http.MethodPatch, "/api/channels/temp/segments/1", `{"segment_type": "Mask"}`))
	assert.True(t, resp.Channel.Segments[1].IsMask())
	assert.Nil(t, resp.Channel.Segments[1].FitResult)

	resp = decodeEdit(t, do(t, ctrl, http.MethodPost, "/api/channels/temp/boundary", `{"index": 0, "side": "end", "x": 3}`))
	assert.Equal(t, 3.0, resp.Channel.Segments[0].XEnd)
	assert.Equal(t, 3.0, resp.Channel.Segments[1].XStart)

	resp = decodeEdit(t, do(t, ctrl, http.MethodPost, "/api/channels/temp/reset", ""))
	require.Len(t, resp.Channel.Segments, 1)
	assert.Equal(t, segment.TypeNormal, resp.Channel.Segments[0].Type)
}

func TestContinuityAndFit(t *testing.T) {
	ctrl := newTestController(t, false)

	decodeEdit(t, do(t, ctrl, http.MethodPost, "/api/channels/temp/split", `{"x": 5}`))
	resp := decodeEdit(t, do(t, ctrl, http.MethodPut, "/api/channels/temp/continuity", `{"enabled": true, "order": 0}`))
	assert.True(t, resp.Channel.ContinuityEnabled)
	assert.Equal(t, segment.OrderValue, resp.Channel.ContinuityOrder)
	require.NotNil(t, resp.Report)
	assert.Equal(t, analysis.ModeContinuity, resp.Report.Mode)
	assert.False(t, resp.Report.JointFailed)

	left, right := resp.Channel.Segments[0].FitResult, resp.Channel.Segments[1].FitResult
	require.NotNil(t, left)
	require.NotNil(t, right)
	assert.InDelta(t, left.Evaluate(5), right.Evaluate(5), 1e-6)

	resp = decodeEdit(t, do(t, ctrl, http.MethodPost, "/api/channels/temp/fit", ""))
	require.NotNil(t, resp.Report)
	assert.Equal(t, []int{0, 1}, resp.Report.Fitted)
}

func TestOffsetDoesNotRefit(t *testing.T) {
	ctrl := newTestController(t, false)

	resp := decodeEdit(t, do(t, ctrl, http.MethodPut, "/api/channels/temp/offset", `{"time_offset": 100}`))
	assert.Equal(t, 100.0, resp.Channel.TimeOffset)
	assert.Nil(t, resp.Report)
}

func TestGetCurve(t *testing.T) {
	ctrl := newTestController(t, false)
	do(t, ctrl, http.MethodPost, "/api/channels/temp/fit", "")

	rec := do(t, ctrl, http.MethodGet, "/api/channels/temp/curve?points=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var curve curveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &curve))
	require.Len(t, curve.Points, 5)
	assert.Equal(t, 0.0, curve.Points[0].Time)
	assert.InDelta(t, -1, curve.Points[0].Value, 1e-6)
	assert.InDelta(t, 29, curve.Points[4].Value, 1e-6)

	rec = do(t, ctrl, http.MethodGet, "/api/channels/temp/curve?points=3&format=csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "channel,segment,title"))

	rec = do(t, ctrl, http.MethodGet, "/api/channels/temp/curve?points=1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusMsgPack(t *testing.T) {
	ctrl := newTestController(t, false)

	rec := do(t, ctrl, http.MethodGet, "/api/status?format=msgpack", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-msgpack", rec.Header().Get("Content-Type"))

	var status statusResponse
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 1, status.Channels)
	assert.False(t, status.StorageEnabled)
	assert.True(t, status.AutoRecalculate)
}

func TestGetChannels(t *testing.T) {
	ctrl := newTestController(t, false)

	rec := do(t, ctrl, http.MethodGet, "/api/channels", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"channels":["temp"]}`, rec.Body.String())

	rec = do(t, ctrl, http.MethodGet, "/api/channels/temp/segments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var segs segmentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &segs))
	assert.Equal(t, "temp", segs.Channel)
	assert.Len(t, segs.Segments, 1)

	rec = do(t, ctrl, http.MethodGet, "/api/channels/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportImport(t *testing.T) {
	ctrl := newTestController(t, false)
	decodeEdit(t, do(t, ctrl, http.MethodPost, "/api/channels/temp/split", `{"x": 5}`))

	rec := do(t, ctrl, http.MethodGet, "/api/channels/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	exported := rec.Body.String()

	decodeEdit(t, do(t, ctrl, http.MethodPost, "/api/channels/temp/reset", ""))

	rec = do(t, ctrl, http.MethodPost, "/api/channels/import", exported)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ch, err := ctrl.ws.Channel("temp")
	require.NoError(t, err)
	require.Len(t, ch.Segments, 2)
	assert.NotNil(t, ch.Segments[0].FitResult)

	other := segment.NewChannelState("pressure", 0, 10)
	var buf bytes.Buffer
	require.NoError(t, segment.EncodeChannels(&buf, []*segment.ChannelState{other}))
	rec = do(t, ctrl, http.MethodPost, "/api/channels/import", buf.String())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, ctrl, http.MethodPost, "/api/channels/import", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, body := range []string{`[null]`, `{"channels": {"temp": null}}`} {
		rec = do(t, ctrl, http.MethodPost, "/api/channels/import", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	// same channel over a different time range
	shifted := segment.NewChannelState("temp", 0, 40)
	buf.Reset()
	require.NoError(t, segment.EncodeChannels(&buf, []*segment.ChannelState{shifted}))
	rec = do(t, ctrl, http.MethodPost, "/api/channels/import", buf.String())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	ch, err = ctrl.ws.Channel("temp")
	require.NoError(t, err)
	assert.Len(t, ch.Segments, 2)
}

func TestProjectsWithoutStore(t *testing.T) {
	ctrl := newTestController(t, false)

	for _, req := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/projects", ""},
		{http.MethodPost, "/api/projects", `{"name": "a"}`},
		{http.MethodPost, "/api/projects/abc/load", ""},
		{http.MethodDelete, "/api/projects/abc", ""},
	} {
		rec := do(t, ctrl, req.method, req.path, req.body)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, req.path)
	}
}

func TestProjectLifecycle(t *testing.T) {
	ctrl := newTestController(t, true)
	decodeEdit(t, do(t, ctrl, http.MethodPost, "/api/channels/temp/split", `{"x": 5}`))

	rec := do(t, ctrl, http.MethodPost, "/api/projects", `{"name": "two pieces"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id, ok := created["id"].(string)
	require.True(t, ok)

	rec = do(t, ctrl, http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Projects []storage.ProjectInfo `json:"projects"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Projects, 1)
	assert.Equal(t, "two pieces", listed.Projects[0].Name)

	decodeEdit(t, do(t, ctrl, http.MethodPost, "/api/channels/temp/reset", ""))

	rec = do(t, ctrl, http.MethodPost, "/api/projects/"+id+"/load", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ch, err := ctrl.ws.Channel("temp")
	require.NoError(t, err)
	require.Len(t, ch.Segments, 2)
	assert.NotNil(t, ch.Segments[1].FitResult)

	rec = do(t, ctrl, http.MethodPut, "/api/projects/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, ctrl, http.MethodDelete, "/api/projects/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, ctrl, http.MethodPost, "/api/projects/"+id+"/load", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, ctrl, http.MethodPost, "/api/projects", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestion(t *testing.T) {
	ctrl := newTestController(t, false)

	rec := do(t, ctrl, http.MethodGet, "/api/channels/temp/suggest?penalty=5&min_size=3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got suggestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.GreaterOrEqual(t, len(got.Boundaries), 2)
	assert.Equal(t, 0.0, got.Boundaries[0])
	assert.Equal(t, 10.0, got.Boundaries[len(got.Boundaries)-1])
	assert.Equal(t, 5.0, got.Options.Penalty)
	assert.Equal(t, 3, got.Options.MinSize)

	rec = do(t, ctrl, http.MethodGet, "/api/channels/temp/suggest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var defaults suggestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defaults))

	resp := decodeEdit(t, do(t, ctrl, http.MethodPost, "/api/channels/temp/suggest", ""))
	require.Len(t, resp.Channel.Segments, len(defaults.Boundaries)-1)
	for i, s := range resp.Channel.Segments {
		assert.Equal(t, defaults.Boundaries[i], s.XStart)
		assert.Equal(t, defaults.Boundaries[i+1], s.XEnd)
	}

	rec = do(t, ctrl, http.MethodGet, "/api/channels/temp/suggest?filter_kernel=4", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, ctrl, http.MethodGet, "/api/channels/temp/suggest?penalty=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, ctrl, http.MethodGet, "/api/channels/temp/suggest?min_size=20", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
