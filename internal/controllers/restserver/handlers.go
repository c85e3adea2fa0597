package restserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/chrissnell/segfit/internal/analysis"
	"github.com/chrissnell/segfit/internal/changepoint"
	"github.com/chrissnell/segfit/internal/constants"
	"github.com/chrissnell/segfit/internal/editor"
	"github.com/chrissnell/segfit/internal/log"
	"github.com/chrissnell/segfit/pkg/segment"
)

// Handlers contains the HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
}

// NewHandlers creates a new Handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
	}
}

// sendJSON writes data in the requested format with a status code
func (h *Handlers) sendJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if err := h.controller.formatter.WriteResponse(w, r, status, data); err != nil {
		h.controller.logger.Errorf("failed to write response for %s: %v", r.URL.Path, err)
	}
}

// sendError writes an error body; status 0 derives the code from err
func (h *Handlers) sendError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if status == 0 {
		status = statusFor(err)
	}
	if status >= http.StatusInternalServerError {
		h.controller.logger.Errorf("%s %s: %s: %v", r.Method, r.URL.Path, message, err)
	}
	if werr := h.controller.formatter.WriteError(w, r, status, message, err); werr != nil {
		h.controller.logger.Errorf("failed to write error response: %v", werr)
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

// edit runs fn against the named channel's editor under the controller
// lock. When refit is set and auto-recalculation is enabled the channel is
// refit before responding.
func (h *Handlers) edit(w http.ResponseWriter, r *http.Request, message string, refit bool, fn func(ed *editor.Editor) (*int, error)) {
	c := h.controller
	name := mux.Vars(r)["channel"]

	c.mu.Lock()
	defer c.mu.Unlock()

	ed, err := c.ws.Editor(name)
	if err != nil {
		h.sendError(w, r, 0, "channel not found", err)
		return
	}

	index, err := fn(ed)
	if err != nil {
		h.sendError(w, r, 0, message, err)
		return
	}

	resp := editResponse{Index: index}
	if refit && c.fitConfig.Recalculate() {
		report, err := c.ws.Recompute(name)
		if err != nil {
			h.sendError(w, r, http.StatusInternalServerError, "recompute failed", err)
			return
		}
		resp.Report = &report
	}
	resp.Channel = ed.Channel().Clone()
	h.sendJSON(w, r, http.StatusOK, resp)
}

func segmentIndex(r *http.Request) (int, error) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return 0, fmt.Errorf("segment index must be an integer: %w", err)
	}
	return index, nil
}

// GetStatus returns a summary of the server state
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	c := h.controller
	c.mu.Lock()
	n := len(c.ws.Names())
	c.mu.Unlock()

	h.sendJSON(w, r, http.StatusOK, statusResponse{
		Version:         constants.Version,
		Channels:        n,
		StorageEnabled:  c.store != nil,
		AutoRecalculate: c.fitConfig.Recalculate(),
	})
}

// GetHTTPLogs returns the most recent HTTP requests
func (h *Handlers) GetHTTPLogs(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, r, http.StatusOK, map[string]any{
		"entries": log.GetHTTPLogBuffer().Entries(),
	})
}

// GetChannels lists channel names in table order
func (h *Handlers) GetChannels(w http.ResponseWriter, r *http.Request) {
	c := h.controller
	c.mu.Lock()
	names := c.ws.Names()
	c.mu.Unlock()

	if names == nil {
		names = []string{}
	}
	h.sendJSON(w, r, http.StatusOK, channelsResponse{Channels: names})
}

// GetChannel returns the full state of one channel
func (h *Handlers) GetChannel(w http.ResponseWriter, r *http.Request) {
	c := h.controller
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.ws.Channel(mux.Vars(r)["channel"])
	if err != nil {
		h.sendError(w, r, 0, "channel not found", err)
		return
	}
	h.sendJSON(w, r, http.StatusOK, ch)
}

// GetSegments returns the segment list of one channel
func (h *Handlers) GetSegments(w http.ResponseWriter, r *http.Request) {
	c := h.controller
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.ws.Channel(mux.Vars(r)["channel"])
	if err != nil {
		h.sendError(w, r, 0, "channel not found", err)
		return
	}
	h.sendJSON(w, r, http.StatusOK, segmentsResponse{Channel: ch.Name, Segments: ch.Segments})
}

// GetCurve evaluates every fitted segment. points sets the samples per
// segment; format=csv returns the export table instead of JSON.
func (h *Handlers) GetCurve(w http.ResponseWriter, r *http.Request) {
	c := h.controller

	points := c.fitConfig.CurvePoints
	if p := r.URL.Query().Get("points"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 2 {
			h.sendError(w, r, http.StatusBadRequest, "points must be an integer of at least 2", err)
			return
		}
		points = n
	}

	c.mu.Lock()
	ch, err := c.ws.Channel(mux.Vars(r)["channel"])
	if err != nil {
		c.mu.Unlock()
		h.sendError(w, r, 0, "channel not found", err)
		return
	}
	curve := analysis.Curve(ch, points)
	c.mu.Unlock()

	if r.URL.Query().Get("format") == "csv" {
		var buf bytes.Buffer
		if err := analysis.WriteCurveCSV(&buf, curve); err != nil {
			h.sendError(w, r, http.StatusInternalServerError, "failed to write curve", err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ch.Name+".csv"))
		w.Write(buf.Bytes())
		return
	}

	if curve == nil {
		curve = []analysis.CurvePoint{}
	}
	h.sendJSON(w, r, http.StatusOK, curveResponse{Channel: ch.Name, Points: curve})
}

// ExportChannels returns every channel state in the JSON interchange format
func (h *Handlers) ExportChannels(w http.ResponseWriter, r *http.Request) {
	c := h.controller
	c.mu.Lock()
	states := c.ws.States()
	c.mu.Unlock()

	var buf bytes.Buffer
	if err := segment.EncodeChannels(&buf, states); err != nil {
		h.sendError(w, r, http.StatusInternalServerError, "failed to encode channels", err)
		return
	}
	if err := c.formatter.WriteRawJSON(w, r, http.StatusOK, buf.Bytes()); err != nil {
		c.logger.Errorf("failed to write export: %v", err)
	}
}

// ImportChannels replaces channel states from the JSON interchange format
func (h *Handlers) ImportChannels(w http.ResponseWriter, r *http.Request) {
	c := h.controller

	states, err := segment.DecodeChannels(r.Body)
	if err != nil {
		h.sendError(w, r, http.StatusBadRequest, "invalid channel document", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.Restore(states); err != nil {
		h.sendError(w, r, 0, "import rejected", err)
		return
	}

	var reports []analysis.Report
	if c.fitConfig.Recalculate() {
		for _, st := range states {
			report, err := c.ws.Recompute(st.Name)
			if err != nil {
				h.sendError(w, r, http.StatusInternalServerError, "recompute failed", err)
				return
			}
			reports = append(reports, report)
		}
	}
	h.sendJSON(w, r, http.StatusOK, map[string]any{
		"imported": len(states),
		"reports":  reports,
	})
}

// Split divides the segment containing x
func (h *Handlers) Split(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := decodeBody(r, &req); err != nil || req.X == nil {
		h.sendError(w, r, http.StatusBadRequest, "split needs {\"x\": number}", err)
		return
	}
	h.edit(w, r, "split rejected", true, func(ed *editor.Editor) (*int, error) {
		index, err := ed.SplitAt(*req.X)
		return &index, err
	})
}

// Merge joins two adjacent segments
func (h *Handlers) Merge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "merge needs {\"left\": int, \"right\": int}", err)
		return
	}
	h.edit(w, r, "merge rejected", true, func(ed *editor.Editor) (*int, error) {
		return &req.Left, ed.Merge(req.Left, req.Right)
	})
}

// MoveBoundary drags one endpoint of a segment
func (h *Handlers) MoveBoundary(w http.ResponseWriter, r *http.Request) {
	var req boundaryRequest
	if err := decodeBody(r, &req); err != nil || req.X == nil {
		h.sendError(w, r, http.StatusBadRequest, "boundary move needs {\"index\": int, \"side\": \"start\"|\"end\", \"x\": number}", err)
		return
	}
	h.edit(w, r, "boundary move rejected", true, func(ed *editor.Editor) (*int, error) {
		return &req.Index, ed.MoveBoundary(req.Index, editor.Side(req.Side), *req.X)
	})
}

// Regenerate rebuilds the segments from a boundary list
func (h *Handlers) Regenerate(w http.ResponseWriter, r *http.Request) {
	var req boundariesRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "boundaries needs {\"boundaries\": [number, ...]}", err)
		return
	}
	h.edit(w, r, "boundaries rejected", true, func(ed *editor.Editor) (*int, error) {
		return nil, ed.Regenerate(req.Boundaries)
	})
}

// Insert adds a segment filling a gap
func (h *Handlers) Insert(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if err := decodeBody(r, &req); err != nil || req.XStart == nil || req.XEnd == nil {
		h.sendError(w, r, http.StatusBadRequest, "insert needs {\"x_start\": number, \"x_end\": number}", err)
		return
	}
	h.edit(w, r, "insert rejected", true, func(ed *editor.Editor) (*int, error) {
		index, err := ed.Insert(*req.XStart, *req.XEnd)
		return &index, err
	})
}

// DeleteSegment removes a segment, letting a neighbour absorb its range
func (h *Handlers) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	index, err := segmentIndex(r)
	if err != nil {
		h.sendError(w, r, http.StatusBadRequest, "invalid segment index", err)
		return
	}
	h.edit(w, r, "delete rejected", true, func(ed *editor.Editor) (*int, error) {
		return nil, ed.Delete(index)
	})
}

// PatchSegment changes segment attributes. All fields are checked before
// any is applied.
func (h *Handlers) PatchSegment(w http.ResponseWriter, r *http.Request) {
	index, err := segmentIndex(r)
	if err != nil {
		h.sendError(w, r, http.StatusBadRequest, "invalid segment index", err)
		return
	}
	var req patchRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "invalid segment patch", err)
		return
	}

	h.edit(w, r, "segment update rejected", true, func(ed *editor.Editor) (*int, error) {
		segs := ed.Segments()
		if index < 0 || index >= len(segs) {
			return nil, fmt.Errorf("%w: %d", editor.ErrSegmentNotFound, index)
		}
		if req.PolyDegree != nil && *req.PolyDegree < 0 {
			return nil, fmt.Errorf("%w: %d", editor.ErrInvalidDegree, *req.PolyDegree)
		}
		if req.SegmentType != nil && !segment.Type(*req.SegmentType).Valid() {
			return nil, fmt.Errorf("%w: %q", editor.ErrInvalidType, *req.SegmentType)
		}

		if req.PolyDegree != nil {
			if err := ed.SetDegree(index, *req.PolyDegree); err != nil {
				return nil, err
			}
		}
		if req.SegmentType != nil {
			if err := ed.SetType(index, segment.Type(*req.SegmentType)); err != nil {
				return nil, err
			}
		}
		if req.Color != nil {
			if err := ed.Recolor(index, *req.Color); err != nil {
				return nil, err
			}
		}
		if req.Label != nil {
			if err := ed.Relabel(index, *req.Label); err != nil {
				return nil, err
			}
		}
		if req.Thickness != nil || req.LineStyle != nil {
			thickness, lineStyle := segs[index].Thickness, segs[index].LineStyle
			if req.Thickness != nil {
				thickness = *req.Thickness
			}
			if req.LineStyle != nil {
				lineStyle = *req.LineStyle
			}
			if err := ed.SetStyle(index, thickness, lineStyle); err != nil {
				return nil, err
			}
		}
		return &index, nil
	})
}

// Reset collapses the channel to one segment over its domain
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "reset rejected", true, func(ed *editor.Editor) (*int, error) {
		return nil, ed.Reset()
	})
}

// suggestOptions starts from the configured detector settings and applies
// the overrides in req
func (h *Handlers) suggestOptions(req suggestRequest) (changepoint.Options, error) {
	cfg := h.controller.suggest
	opts := changepoint.Options{Penalty: cfg.Penalty, MinSize: cfg.MinSize, FilterKernel: cfg.FilterKernel}
	if req.Penalty != nil {
		opts.Penalty = *req.Penalty
	}
	if req.MinSize != nil {
		opts.MinSize = *req.MinSize
	}
	if req.FilterKernel != nil {
		opts.FilterKernel = *req.FilterKernel
	}
	if opts.Penalty <= 0 || opts.MinSize < 1 {
		return opts, fmt.Errorf("penalty must be positive and min_size at least 1")
	}
	if opts.FilterKernel > 1 && opts.FilterKernel%2 == 0 {
		return opts, fmt.Errorf("filter_kernel must be odd")
	}
	return opts, nil
}

// GetSuggestion proposes boundaries from change points in the channel's
// samples. The query parameters penalty, min_size and filter_kernel
// override the configured detector settings.
func (h *Handlers) GetSuggestion(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	q := r.URL.Query()
	if v := q.Get("penalty"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.sendError(w, r, http.StatusBadRequest, "penalty must be a number", err)
			return
		}
		req.Penalty = &f
	}
	for key, dst := range map[string]**int{"min_size": &req.MinSize, "filter_kernel": &req.FilterKernel} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				h.sendError(w, r, http.StatusBadRequest, key+" must be an integer", err)
				return
			}
			*dst = &n
		}
	}

	opts, err := h.suggestOptions(req)
	if err != nil {
		h.sendError(w, r, http.StatusBadRequest, "invalid detector settings", err)
		return
	}

	c := h.controller
	name := mux.Vars(r)["channel"]
	c.mu.Lock()
	boundaries, err := c.ws.Suggest(name, opts)
	c.mu.Unlock()
	if err != nil {
		h.sendError(w, r, 0, "suggestion failed", err)
		return
	}
	h.sendJSON(w, r, http.StatusOK, suggestResponse{Channel: name, Boundaries: boundaries, Options: opts})
}

// ApplySuggestion regenerates the channel's segments from suggested boundaries
func (h *Handlers) ApplySuggestion(w http.ResponseWriter, r *http.Request) {
	// an empty body keeps the configured settings
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.sendError(w, r, http.StatusBadRequest, "invalid detector settings", err)
		return
	}
	opts, err := h.suggestOptions(req)
	if err != nil {
		h.sendError(w, r, http.StatusBadRequest, "invalid detector settings", err)
		return
	}

	name := mux.Vars(r)["channel"]
	h.edit(w, r, "suggestion rejected", true, func(ed *editor.Editor) (*int, error) {
		boundaries, err := h.controller.ws.Suggest(name, opts)
		if err != nil {
			return nil, err
		}
		return nil, ed.Regenerate(boundaries)
	})
}

// SetContinuity enables or disables the joint fit and sets its order
func (h *Handlers) SetContinuity(w http.ResponseWriter, r *http.Request) {
	var req continuityRequest
	if err := decodeBody(r, &req); err != nil {
		h.sendError(w, r, http.StatusBadRequest, "continuity needs {\"enabled\": bool, \"order\": 0|1|2}", err)
		return
	}
	if req.Order != nil && !segment.Order(*req.Order).Valid() {
		h.sendError(w, r, http.StatusUnprocessableEntity, "continuity order must be 0, 1 or 2", nil)
		return
	}
	h.edit(w, r, "continuity update rejected", true, func(ed *editor.Editor) (*int, error) {
		ch := ed.Channel()
		ch.ContinuityEnabled = req.Enabled
		if req.Order != nil {
			ch.ContinuityOrder = segment.Order(*req.Order)
		}
		return nil, nil
	})
}

// SetOffset changes the display time offset of a channel
func (h *Handlers) SetOffset(w http.ResponseWriter, r *http.Request) {
	var req offsetRequest
	if err := decodeBody(r, &req); err != nil || req.TimeOffset == nil {
		h.sendError(w, r, http.StatusBadRequest, "offset needs {\"time_offset\": number}", err)
		return
	}
	h.edit(w, r, "offset update rejected", false, func(ed *editor.Editor) (*int, error) {
		ed.Channel().TimeOffset = *req.TimeOffset
		return nil, nil
	})
}

// Fit refits a channel regardless of the auto-recalculate setting
func (h *Handlers) Fit(w http.ResponseWriter, r *http.Request) {
	c := h.controller
	name := mux.Vars(r)["channel"]

	c.mu.Lock()
	defer c.mu.Unlock()

	report, err := c.ws.Recompute(name)
	if err != nil {
		h.sendError(w, r, 0, "fit failed", err)
		return
	}
	ch, err := c.ws.Channel(name)
	if err != nil {
		h.sendError(w, r, 0, "channel not found", err)
		return
	}
	h.sendJSON(w, r, http.StatusOK, editResponse{Channel: ch.Clone(), Report: &report})
}

// ListProjects lists stored projects
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	c := h.controller
	if c.store == nil {
		h.sendError(w, r, 0, "storage disabled", errStorageDisabled)
		return
	}
	projects, err := c.store.List(r.Context())
	if err != nil {
		h.sendError(w, r, http.StatusInternalServerError, "failed to list projects", err)
		return
	}
	h.sendJSON(w, r, http.StatusOK, map[string]any{"projects": projects})
}

// SaveProject stores the current channel states as a new project
func (h *Handlers) SaveProject(w http.ResponseWriter, r *http.Request) {
	c := h.controller
	if c.store == nil {
		h.sendError(w, r, 0, "storage disabled", errStorageDisabled)
		return
	}
	var req projectRequest
	if err := decodeBody(r, &req); err != nil || req.Name == "" {
		h.sendError(w, r, http.StatusBadRequest, "project needs {\"name\": string}", err)
		return
	}

	c.mu.Lock()
	states := c.ws.States()
	c.mu.Unlock()

	id, err := c.store.Save(r.Context(), req.Name, states)
	if err != nil {
		h.sendError(w, r, http.StatusInternalServerError, "failed to save project", err)
		return
	}
	h.sendJSON(w, r, http.StatusCreated, map[string]any{"id": id, "name": req.Name, "channels": len(states)})
}

// UpdateProject overwrites a stored project with the current channel states
func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	c := h.controller
	if c.store == nil {
		h.sendError(w, r, 0, "storage disabled", errStorageDisabled)
		return
	}
	id := mux.Vars(r)["id"]

	c.mu.Lock()
	states := c.ws.States()
	c.mu.Unlock()

	if err := c.store.Update(r.Context(), id, states); err != nil {
		h.sendError(w, r, 0, "failed to update project", err)
		return
	}
	h.sendJSON(w, r, http.StatusOK, map[string]any{"id": id, "channels": len(states)})
}

// DeleteProject removes a stored project
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	c := h.controller
	if c.store == nil {
		h.sendError(w, r, 0, "storage disabled", errStorageDisabled)
		return
	}
	id := mux.Vars(r)["id"]
	if err := c.store.Delete(r.Context(), id); err != nil {
		h.sendError(w, r, 0, "failed to delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LoadProject restores a stored project into the workspace
func (h *Handlers) LoadProject(w http.ResponseWriter, r *http.Request) {
	c := h.controller
	if c.store == nil {
		h.sendError(w, r, 0, "storage disabled", errStorageDisabled)
		return
	}
	project, err := c.store.Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, r, 0, "failed to load project", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.Restore(project.Channels); err != nil {
		h.sendError(w, r, http.StatusUnprocessableEntity, "project does not match the loaded data", err)
		return
	}

	var reports []analysis.Report
	if c.fitConfig.Recalculate() {
		for _, st := range project.Channels {
			report, err := c.ws.Recompute(st.Name)
			if err != nil {
				h.sendError(w, r, http.StatusInternalServerError, "recompute failed", err)
				return
			}
			reports = append(reports, report)
		}
	}
	h.sendJSON(w, r, http.StatusOK, map[string]any{
		"project": project.ProjectInfo,
		"reports": reports,
	})
}
