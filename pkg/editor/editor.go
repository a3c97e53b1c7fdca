// Package editor is the command surface of the editing core.
//
// An [Editor] owns one project and wires the core components around its
// timeline model: the playback clock and synchronizer, the snapping
// service and resizer for pointer edits, a preview renderer, the audio
// mixer and the exporter. User interfaces (the CLI preview, the HTTP API)
// talk only to the Editor.
//
// Every timeline change is pushed to the synchronizer and invalidates the
// preview scene, so the clock's range and the live renderers always follow
// the model.
package editor

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/framecut/framecut/pkg/audio"
	"github.com/framecut/framecut/pkg/cache"
	"github.com/framecut/framecut/pkg/edit"
	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/observability"
	"github.com/framecut/framecut/pkg/pipeline"
	"github.com/framecut/framecut/pkg/playback"
	"github.com/framecut/framecut/pkg/project"
	"github.com/framecut/framecut/pkg/scene"
	"github.com/framecut/framecut/pkg/snap"
	"github.com/framecut/framecut/pkg/timeline"
)

// Options wires optional collaborators. Zero values select ffmpeg-backed
// defaults found on PATH and headless preview renderers.
type Options struct {
	FFmpegPath string
	Cache      cache.Cache
	Sources    scene.FrameSource
	Decoder    audio.Decoder
	Renderers  playback.RendererFactory
	Negotiator *pipeline.Negotiator
	Encoders   pipeline.EncoderFactory
	Snap       snap.Options
	Edit       edit.Options
	Logger     *log.Logger
}

// Editor is safe for concurrent use.
type Editor struct {
	project *project.Project
	logger  *log.Logger

	clock    *playback.Clock
	sync     *playback.Synchronizer
	snapper  *snap.Service
	resizer  *edit.Resizer
	preview  *scene.Renderer
	mixer    *audio.Mixer
	exporter *pipeline.Exporter

	unsubscribe func()

	mu        sync.Mutex
	scene     *scene.Scene
	lastFrame image.Image
}

// New creates an editor for p.
func New(p *project.Project, opts Options) *Editor {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewNullCache()
	}
	if opts.Sources == nil {
		opts.Sources = scene.DefaultSources(opts.FFmpegPath, opts.Cache)
	}
	if opts.Decoder == nil {
		opts.Decoder = audio.DefaultDecoder(opts.FFmpegPath)
	}
	if opts.Renderers == nil {
		opts.Renderers = playback.VirtualFactory
	}
	if opts.Negotiator == nil {
		opts.Negotiator = pipeline.NewNegotiator(pipeline.NewFFmpegProber(opts.FFmpegPath), logger)
	}
	if opts.Encoders == nil {
		opts.Encoders = pipeline.DefaultEncoders(opts.FFmpegPath, logger)
	}
	opts.Snap.FPS = p.Settings.FPS

	e := &Editor{project: p, logger: logger}
	e.clock = playback.NewClock(p.Model.TotalDuration())
	e.sync = playback.NewSynchronizer(e.clock, p.Library, opts.Renderers, logger)
	e.snapper = snap.New(opts.Snap, logger)
	opts.Edit.Playhead = e.clock.Time
	e.resizer = edit.NewResizer(p.Model, e.snapper, opts.Edit, logger)
	e.preview = scene.NewRenderer(opts.Sources, logger)
	e.mixer = audio.NewMixer(p.Library,
		audio.NewBufferCache(opts.Decoder, opts.Cache, nil, logger),
		audio.Options{SampleRate: p.Settings.SampleRate}, logger)
	e.exporter = pipeline.NewExporter(p.Library, pipeline.ExporterOptions{
		Sources:    opts.Sources,
		Mixer:      e.mixer,
		Negotiator: opts.Negotiator,
		Encoders:   opts.Encoders,
		Logger:     logger,
	})

	e.unsubscribe = p.Model.Subscribe(e.onChange)
	e.sync.Refresh(p.Model.Snapshot())
	return e
}

func (e *Editor) onChange(ch timeline.Change) {
	e.mu.Lock()
	e.scene = nil
	e.mu.Unlock()
	e.sync.Refresh(e.project.Model.Snapshot())
	e.logger.Debug("timeline changed", "kind", ch.Kind, "element", ch.ElementID, "track", ch.TrackID)
}

// Close releases the preview renderers and stops following the model.
func (e *Editor) Close() error {
	e.unsubscribe()
	e.exporter.Cancel()
	return e.sync.Close()
}

// Project returns the edited project.
func (e *Editor) Project() *project.Project { return e.project }

// Model returns the timeline model. Mutations made through it are picked up
// by playback and preview.
func (e *Editor) Model() *timeline.Model { return e.project.Model }

// Library returns the media library.
func (e *Editor) Library() *media.Library { return e.project.Library }

// Clock returns the playback clock for subscribers.
func (e *Editor) Clock() *playback.Clock { return e.clock }

// =============================================================================
// Transport
// =============================================================================

// Play starts playback from the playhead.
func (e *Editor) Play() { e.clock.Play() }

// Pause stops playback.
func (e *Editor) Pause() { e.clock.Pause() }

// Toggle switches between playing and paused.
func (e *Editor) Toggle() { e.clock.Toggle() }

// Seek moves the playhead and returns the time it landed on. The target is
// snapped to an element edge when snapping is on, else rounded to a frame.
func (e *Editor) Seek(t float64) float64 {
	res := e.snapper.SnapSeek(e.project.Model.Snapshot(), t)
	return e.clock.Seek(res.Time)
}

// SetSpeed changes the playback rate.
func (e *Editor) SetSpeed(s float64) error { return e.clock.SetSpeed(s) }

// Playhead returns the current timeline time.
func (e *Editor) Playhead() float64 { return e.clock.Time() }

// Playing reports whether the clock runs.
func (e *Editor) Playing() bool { return e.clock.Playing() }

// TotalDuration returns the end of the last element.
func (e *Editor) TotalDuration() float64 { return e.project.Model.TotalDuration() }

// Tick advances playback by dt. Interactive front ends call it once per
// display frame, or use Run.
func (e *Editor) Tick(dt time.Duration) { e.sync.Tick(dt) }

// Run drives playback until ctx is done, calling onFrame once per tick.
func (e *Editor) Run(ctx context.Context, interval time.Duration, onFrame func(t float64)) error {
	return e.sync.Loop(ctx, interval, onFrame)
}

// =============================================================================
// Editing
// =============================================================================

// Trim sets the trims of an element directly.
func (e *Editor) Trim(id string, trimStart, trimEnd float64) error {
	return e.project.Model.UpdateTrim(id, trimStart, trimEnd)
}

// SetZoom changes the timeline zoom used by snapping and resizing.
func (e *Editor) SetZoom(zoom float64) {
	e.snapper.SetZoom(zoom)
	e.resizer.SetZoom(zoom)
}

// SetSnapping turns snapping on or off.
func (e *Editor) SetSnapping(enabled bool) { e.snapper.SetEnabled(enabled) }

// BeginResize starts dragging one edge of an element at pointer x.
func (e *Editor) BeginResize(id string, edge edit.Edge, x float64) error {
	return e.resizer.Begin(id, edge, x)
}

// ResizeTo moves the dragged edge to pointer x.
func (e *Editor) ResizeTo(x float64) (edit.Result, error) {
	return e.resizer.Move(x)
}

// EndResize finishes the drag, keeping the result.
func (e *Editor) EndResize() (edit.State, bool) { return e.resizer.End() }

// CancelResize finishes the drag and restores the original timing.
func (e *Editor) CancelResize() error { return e.resizer.Cancel() }

// Snap resolves t against the current timeline for a drag of element
// exclude (empty for none).
func (e *Editor) Snap(t float64, exclude string) snap.Result {
	return e.snapper.Snap(e.project.Model.Snapshot(), t, exclude, e.clock.Time())
}

// =============================================================================
// Preview
// =============================================================================

// Scene returns the composition tree for the current timeline.
func (e *Editor) Scene() (*scene.Scene, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scene != nil {
		return e.scene, nil
	}
	sc, err := scene.Build(e.project.Model.Snapshot(), e.project.Library, e.project.Settings.Scene())
	if err != nil {
		return nil, err
	}
	e.scene = sc
	return sc, nil
}

// PreviewFrame renders the frame under the playhead.
func (e *Editor) PreviewFrame(ctx context.Context) (image.Image, error) {
	return e.PreviewFrameAt(ctx, e.clock.Time())
}

// PreviewFrameAt renders the frame at time t. A failed render is logged
// and the last good frame is returned instead, so playback keeps going.
// Only when no frame was ever drawn is the error returned.
func (e *Editor) PreviewFrameAt(ctx context.Context, t float64) (image.Image, error) {
	sc, err := e.Scene()
	if err == nil {
		var img image.Image
		if img, err = e.preview.RenderTime(ctx, sc, t); err == nil {
			e.mu.Lock()
			e.lastFrame = img
			e.mu.Unlock()
			return img, nil
		}
		observability.Playback().OnFrameSkipped(ctx, sc.FrameAt(t), err)
	}
	e.logger.Warn("preview frame skipped", "time", t, "error", err)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastFrame != nil {
		return e.lastFrame, nil
	}
	return nil, err
}

// PreviewStats reports how often the preview redrew.
func (e *Editor) PreviewStats() scene.Stats { return e.preview.Stats() }

// MixAudio mixes the timeline audio between start and end.
func (e *Editor) MixAudio(ctx context.Context, start, end float64) (*audio.Buffer, error) {
	if end < start {
		return nil, errors.New(errors.ErrCodeInvalidInput, "audio window end %.3f before start %.3f", end, start)
	}
	return e.mixer.Mix(ctx, e.project.Model.Snapshot(), start, end)
}

// =============================================================================
// Export
// =============================================================================

// Export renders the current timeline. Canvas, frame rate and sample rate
// not set in s come from the project settings. Editing may continue while
// the export runs; it sees the timeline as it was when Export was called.
func (e *Editor) Export(ctx context.Context, s pipeline.Settings) (*pipeline.Output, error) {
	ps := e.project.Settings
	if s.Width == 0 && s.Height == 0 {
		s.Width, s.Height = ps.Width, ps.Height
	}
	if s.FPS == 0 {
		s.FPS = ps.FPS
	}
	if s.SampleRate == 0 {
		s.SampleRate = ps.SampleRate
	}
	if s.Background == "" {
		s.Background = ps.Background
	}
	return e.exporter.Export(ctx, e.project.Model.Snapshot(), s)
}

// CancelExport stops a running export.
func (e *Editor) CancelExport() { e.exporter.Cancel() }

// ExportStatus reports the progress of the current or last export.
func (e *Editor) ExportStatus() pipeline.Status { return e.exporter.Status() }
