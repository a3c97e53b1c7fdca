package api

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/framecut/framecut/pkg/audio"
	"github.com/framecut/framecut/pkg/edit"
	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/pipeline"
	"github.com/framecut/framecut/pkg/scene"
	"github.com/framecut/framecut/pkg/timeline"
)

// =============================================================================
// Views
// =============================================================================

// elementView flattens an element and tags it with its kind.
type elementView struct {
	Type    string
	Element timeline.Element
}

func (v elementView) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(v.Element)
	if err != nil {
		return nil, err
	}
	head := []byte(`{"type":"` + v.Type + `",`)
	return append(head, b[1:]...), nil
}

type trackView struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Kind     timeline.TrackKind `json:"kind"`
	Main     bool               `json:"main,omitempty"`
	Muted    bool               `json:"muted,omitempty"`
	Volume   float64            `json:"volume"`
	Elements []elementView      `json:"elements"`
}

type timelineView struct {
	FPS      float64     `json:"fps"`
	Duration float64     `json:"duration"`
	Tracks   []trackView `json:"tracks"`
}

func viewTimeline(s *timeline.Snapshot) timelineView {
	v := timelineView{FPS: s.FPS, Duration: s.TotalDuration(), Tracks: []trackView{}}
	for _, tr := range s.Tracks {
		tv := trackView{
			ID:       tr.ID,
			Name:     tr.Name,
			Kind:     tr.Kind,
			Main:     tr.IsMain,
			Muted:    tr.Muted,
			Volume:   tr.Volume,
			Elements: make([]elementView, 0, len(tr.Elements)),
		}
		for _, el := range tr.Elements {
			tv.Elements = append(tv.Elements, elementView{Type: elementType(el), Element: el})
		}
		v.Tracks = append(v.Tracks, tv)
	}
	return v
}

func elementType(el timeline.Element) string {
	if _, ok := el.(*timeline.TextElement); ok {
		return "text"
	}
	return "media"
}

// =============================================================================
// Timeline
// =============================================================================

func (s *Server) listMedia(w http.ResponseWriter, r *http.Request) {
	items := s.ed.Library().Items()
	if items == nil {
		items = []media.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewTimeline(s.ed.Model().Snapshot()))
}

type addTrackRequest struct {
	Kind timeline.TrackKind `json:"kind"`
	Name string             `json:"name"`
}

type idResponse struct {
	ID string `json:"id"`
}

func (s *Server) addTrack(w http.ResponseWriter, r *http.Request) {
	var req addTrackRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.ed.Model().AddTrack(req.Kind, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) removeTrack(w http.ResponseWriter, r *http.Request) {
	if err := s.ed.Model().RemoveTrack(chi.URLParam(r, "trackID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// addElementRequest describes a new element. Type "media" references a
// library item; type "text" creates an overlay with default styling.
type addElementRequest struct {
	Type      string  `json:"type"`
	MediaID   string  `json:"media_id"`
	Content   string  `json:"content"`
	Name      string  `json:"name"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
	FontSize  float64 `json:"font_size"`
	Color     string  `json:"color"`
}

func (req addElementRequest) element(lib media.Provider) (timeline.Element, error) {
	switch req.Type {
	case "text":
		el := timeline.NewText(req.Content)
		if req.Name != "" {
			el.Name = req.Name
		}
		if req.Duration > 0 {
			el.Duration = req.Duration
		}
		if req.FontSize > 0 {
			el.FontSize = req.FontSize
		}
		if req.Color != "" {
			el.Color = req.Color
		}
		el.StartTime = req.StartTime
		return el, nil
	case "media", "":
		it, ok := lib.Media(req.MediaID)
		if !ok {
			return nil, errors.New(errors.ErrCodeNotFound, "media %q not in library", req.MediaID)
		}
		d := req.Duration
		if d <= 0 {
			d = it.Duration
		}
		if d <= 0 {
			d = timeline.DefaultImageLength
		}
		name := req.Name
		if name == "" {
			name = it.Name()
		}
		el := timeline.NewMedia(it.ID, name, d)
		el.StartTime = req.StartTime
		return el, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "unknown element type %q", req.Type)
}

func (s *Server) addElement(w http.ResponseWriter, r *http.Request) {
	var req addElementRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	el, err := req.element(s.ed.Library())
	if err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.ed.Model().AddElement(chi.URLParam(r, "trackID"), el)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

type dropRequest struct {
	timeline.DropPayload
	TrackID string  `json:"track_id"`
	Time    float64 `json:"time"`
}

func (s *Server) drop(w http.ResponseWriter, r *http.Request) {
	var req dropRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.ed.Model().AddFromDrop(req.DropPayload, req.TrackID, req.Time)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) removeElement(w http.ResponseWriter, r *http.Request) {
	if err := s.ed.Model().RemoveElement(chi.URLParam(r, "elementID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type trimRequest struct {
	TrimStart float64 `json:"trim_start"`
	TrimEnd   float64 `json:"trim_end"`
}

func (s *Server) trim(w http.ResponseWriter, r *http.Request) {
	var req trimRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ed.Trim(chi.URLParam(r, "elementID"), req.TrimStart, req.TrimEnd); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeElement(w, chi.URLParam(r, "elementID"))
}

type moveRequest struct {
	StartTime float64 `json:"start_time"`
	TrackID   string  `json:"track_id"`
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	id := chi.URLParam(r, "elementID")
	if err := s.ed.Model().MoveElement(id, req.StartTime, req.TrackID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeElement(w, id)
}

type splitRequest struct {
	Time float64 `json:"time"`
}

func (s *Server) split(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.ed.Model().SplitElement(chi.URLParam(r, "elementID"), req.Time)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) writeElement(w http.ResponseWriter, id string) {
	el, _, ok := s.ed.Model().Element(id)
	if !ok {
		s.writeError(w, errors.New(errors.ErrCodeNotFound, "element %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, elementView{Type: elementType(el), Element: el})
}

// =============================================================================
// Resize
// =============================================================================

type beginResizeRequest struct {
	ElementID string    `json:"element_id"`
	Edge      edit.Edge `json:"edge"`
	X         float64   `json:"x"`
}

type pointerRequest struct {
	X float64 `json:"x"`
}

type resizeResponse struct {
	Applied   bool    `json:"applied"`
	StartTime float64 `json:"start_time"`
	TrimStart float64 `json:"trim_start"`
	TrimEnd   float64 `json:"trim_end"`
	Duration  float64 `json:"duration"`
	Snapped   bool    `json:"snapped"`
	SnapTime  float64 `json:"snap_time"`
}

func (s *Server) beginResize(w http.ResponseWriter, r *http.Request) {
	var req beginResizeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ed.BeginResize(req.ElementID, req.Edge, req.X); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resizeTo(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.ed.ResizeTo(req.X)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resizeResponse{
		Applied:   res.Applied,
		StartTime: res.StartTime,
		TrimStart: res.TrimStart,
		TrimEnd:   res.TrimEnd,
		Duration:  res.Duration,
		Snapped:   res.Snap.DidSnap,
		SnapTime:  res.Snap.Time,
	})
}

func (s *Server) endResize(w http.ResponseWriter, r *http.Request) {
	st, ok := s.ed.EndResize()
	if !ok {
		s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "no resize in progress"))
		return
	}
	s.writeElement(w, st.ElementID)
}

func (s *Server) cancelResize(w http.ResponseWriter, r *http.Request) {
	if err := s.ed.CancelResize(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Playback
// =============================================================================

type playbackView struct {
	Time     float64 `json:"time"`
	Duration float64 `json:"duration"`
	Playing  bool    `json:"playing"`
	Speed    float64 `json:"speed"`
}

func (s *Server) playbackView() playbackView {
	return playbackView{
		Time:     s.ed.Playhead(),
		Duration: s.ed.TotalDuration(),
		Playing:  s.ed.Playing(),
		Speed:    s.ed.Clock().Speed(),
	}
}

func (s *Server) playbackState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.playbackView())
}

func (s *Server) play(w http.ResponseWriter, r *http.Request) {
	s.ed.Play()
	writeJSON(w, http.StatusOK, s.playbackView())
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.ed.Pause()
	writeJSON(w, http.StatusOK, s.playbackView())
}

type seekRequest struct {
	Time float64 `json:"time"`
}

func (s *Server) seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.ed.Seek(req.Time)
	writeJSON(w, http.StatusOK, s.playbackView())
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

func (s *Server) speed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ed.SetSpeed(req.Speed); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.playbackView())
}

// =============================================================================
// Rendering
// =============================================================================

// preview renders the frame at ?t=, defaulting to the playhead.
func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	t, err := queryFloat(r, "t", s.ed.Playhead())
	if err != nil {
		s.writeError(w, err)
		return
	}
	img, err := s.ed.PreviewFrameAt(r.Context(), t)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		s.writeError(w, errors.Render(err, "encode preview"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// audio mixes [start, end) as a WAV file. The window defaults to the whole
// timeline.
func (s *Server) audio(w http.ResponseWriter, r *http.Request) {
	start, err := queryFloat(r, "start", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	end, err := queryFloat(r, "end", s.ed.TotalDuration())
	if err != nil {
		s.writeError(w, err)
		return
	}
	buf, err := s.ed.MixAudio(r.Context(), start, end)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var out bytes.Buffer
	if err := audio.WriteWAV(&out, buf); err != nil {
		s.writeError(w, errors.AudioMix(err, "encode wav"))
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	_, _ = w.Write(out.Bytes())
}

func (s *Server) sceneDOT(w http.ResponseWriter, r *http.Request) {
	sc, err := s.ed.Scene()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = w.Write([]byte(scene.ToDOT(sc)))
}

func (s *Server) sceneSVG(w http.ResponseWriter, r *http.Request) {
	sc, err := s.ed.Scene()
	if err != nil {
		s.writeError(w, err)
		return
	}
	svg, err := scene.RenderSVG(scene.ToDOT(sc))
	if err != nil {
		s.writeError(w, errors.Render(err, "render scene graph"))
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(svg)
}

// =============================================================================
// Export
// =============================================================================

func (s *Server) exportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ed.ExportStatus())
}

// startExport launches an export in the background and answers 202. Poll
// GET /export for progress.
func (s *Server) startExport(w http.ResponseWriter, r *http.Request) {
	var settings pipeline.Settings
	if err := decode(r, &settings); err != nil {
		s.writeError(w, err)
		return
	}
	// Validate a copy so unset canvas fields still come from the project.
	check := settings
	if err := check.ValidateAndSetDefaults(); err != nil {
		s.writeError(w, err)
		return
	}
	if s.ed.ExportStatus().State == pipeline.StateRendering {
		writeJSON(w, http.StatusConflict, errorResponse{Code: errors.ErrCodeEncode, Error: "an export is already running"})
		return
	}

	started := make(chan struct{})
	s.exports.Add(1)
	go func() {
		defer s.exports.Done()
		close(started)
		out, err := s.ed.Export(s.base, settings)
		if err != nil {
			s.logger.Warn("export failed", "format", settings.Format, "code", errors.GetCode(err), "error", err)
			return
		}
		s.logger.Info("export complete", "path", out.Path, "frames", out.Frames, "size", out.Size)
	}()
	<-started
	writeJSON(w, http.StatusAccepted, s.ed.ExportStatus())
}

func (s *Server) cancelExport(w http.ResponseWriter, r *http.Request) {
	s.ed.CancelExport()
	writeJSON(w, http.StatusOK, s.ed.ExportStatus())
}
