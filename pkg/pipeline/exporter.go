package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/framecut/framecut/pkg/audio"
	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/observability"
	"github.com/framecut/framecut/pkg/scene"
	"github.com/framecut/framecut/pkg/timeline"
)

// AudioWindow is the length in seconds of one mixed audio chunk.
const AudioWindow = 1.0

// ExporterOptions wires the collaborators of an Exporter. Nil fields get
// defaults: ffmpeg-backed sources, probing and encoders found on PATH.
// A nil Mixer exports without audio.
type ExporterOptions struct {
	Sources    scene.FrameSource
	Mixer      *audio.Mixer
	Negotiator *Negotiator
	Encoders   EncoderFactory
	Logger     *log.Logger
}

// Exporter renders timeline snapshots to files. One export runs at a time.
type Exporter struct {
	provider   media.Provider
	sources    scene.FrameSource
	mixer      *audio.Mixer
	negotiator *Negotiator
	encoders   EncoderFactory
	logger     *log.Logger

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
}

// NewExporter creates an exporter resolving media through provider.
func NewExporter(provider media.Provider, opts ExporterOptions) *Exporter {
	logger := discard(opts.Logger)
	if opts.Sources == nil {
		opts.Sources = scene.DefaultSources("", nil)
	}
	if opts.Negotiator == nil {
		opts.Negotiator = NewNegotiator(NewFFmpegProber(""), logger)
	}
	if opts.Encoders == nil {
		opts.Encoders = DefaultEncoders("", logger)
	}
	return &Exporter{
		provider:   provider,
		sources:    opts.Sources,
		mixer:      opts.Mixer,
		negotiator: opts.Negotiator,
		encoders:   opts.Encoders,
		logger:     logger,
		status:     Status{State: StateIdle},
	}
}

// Status returns the current progress report.
func (e *Exporter) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Cancel stops a running export at the next frame boundary. It is a no-op
// when nothing is rendering.
func (e *Exporter) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Exporter) begin(format string, cancel context.CancelFunc) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.State == StateRendering {
		return false
	}
	e.status = Status{State: StateRendering, Format: format}
	e.cancel = cancel
	return true
}

func (e *Exporter) update(s *Settings, fn func(st *Status)) {
	e.mu.Lock()
	fn(&e.status)
	st := e.status
	e.mu.Unlock()
	if s.Progress != nil {
		s.Progress(st)
	}
}

// Export renders snap according to s. The snapshot is only read, so the
// caller may keep editing its model while the export runs.
func (e *Exporter) Export(ctx context.Context, snap *timeline.Snapshot, s Settings) (*Output, error) {
	if err := s.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no timeline to export")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !e.begin(s.Format, cancel) {
		return nil, errors.New(errors.ErrCodeEncode, "an export is already running")
	}

	start := time.Now()
	out, cfg, err := e.run(ctx, snap, &s)
	if err != nil {
		err = e.classify(ctx, err)
	}
	format := cfg.Format
	if format == "" {
		format = s.Format
	}
	observability.Export().OnExportComplete(ctx, format, time.Since(start), err)

	e.update(&s, func(st *Status) {
		st.Format = format
		switch {
		case err == nil:
			st.State = StateComplete
			st.Output = out
		case errors.Is(err, errors.ErrCodeCanceled):
			st.State = StateCanceled
			st.Error = err.Error()
		default:
			st.State = StateFailed
			st.Error = err.Error()
		}
	})
	e.mu.Lock()
	e.cancel = nil
	e.mu.Unlock()

	if err != nil {
		e.logger.Debug("export ended", "format", format, "error", err)
		return nil, err
	}
	e.logger.Info("export complete", "path", out.Path, "format", out.Format, "frames", out.Frames, "elapsed", time.Since(start).Round(time.Millisecond))
	return out, nil
}

// classify maps an export failure onto the error kinds callers handle.
func (e *Exporter) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Wrap(errors.ErrCodeCanceled, ctx.Err(), "export canceled")
	}
	if errors.GetCode(err) != "" {
		return err
	}
	return errors.Encode(err, "export failed")
}

func (e *Exporter) run(ctx context.Context, snap *timeline.Snapshot, s *Settings) (*Output, Config, error) {
	cfg, err := e.negotiator.Negotiate(ctx, s.Format, s.Strict)
	if err != nil {
		return nil, Config{}, err
	}
	if cfg.Fallback {
		s.Path = withExt(s.Path, cfg.Format)
		e.logger.Warn("exporting as GIF instead", "requested", cfg.Requested, "path", s.Path)
	}

	duration := snap.TotalDuration()
	if duration <= 0 {
		return nil, cfg, errors.Timeline("nothing to export: timeline is empty")
	}
	if cfg.AudioOnly && e.mixer == nil {
		return nil, cfg, errors.AudioMix(nil, "no audio mixer configured for %s export", cfg.Format)
	}

	sc, err := scene.Build(snap, e.provider, s.Scene())
	if err != nil {
		return nil, cfg, err
	}
	frames := sc.FrameCount()

	if need := memoryEstimate(cfg, *s, frames, duration); need > MaxMemory {
		return nil, cfg, errors.Resource("%s export needs about %d MiB in memory (limit %d MiB)",
			cfg.Format, need>>20, int64(MaxMemory)>>20)
	}

	withAudio := cfg.HasAudio() && e.mixer != nil
	if withAudio && e.mixer.SampleRate() != s.SampleRate {
		e.logger.Debug("using mixer sample rate", "requested", s.SampleRate, "mixer", e.mixer.SampleRate())
		s.SampleRate = e.mixer.SampleRate()
	}

	enc, err := e.encoders(cfg, *s)
	if err != nil {
		return nil, cfg, errors.Encode(err, "create %s encoder", cfg.Format)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return nil, cfg, errors.Wrap(errors.ErrCodeInvalidPath, err, "create output directory")
	}
	if err := enc.Start(ctx); err != nil {
		_ = enc.Abort()
		return nil, cfg, errors.Encode(err, "start %s encoder", cfg.Format)
	}

	// Audio-only exports report progress in audio windows.
	total := frames
	audioEnd := float64(frames) / s.FPS
	if !cfg.HasVideo() {
		audioEnd = duration
		total = int(math.Ceil(duration / AudioWindow))
	}
	e.update(s, func(st *Status) {
		st.Format = cfg.Format
		st.TotalFrames = total
	})
	observability.Export().OnExportStart(ctx, cfg.Format, total)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.HasVideo() {
		// Frames are requested in order, so sources that can stream do.
		src := e.sources
		if seq, ok := src.(scene.Sequencer); ok {
			stream := seq.Sequential(s.FPS)
			defer stream.Close()
			src = stream
		}
		renderer := scene.NewRenderer(src, e.logger)
		g.Go(func() error { return e.renderVideo(gctx, renderer, sc, enc, s) })
	}
	if withAudio {
		g.Go(func() error { return e.mixAudio(gctx, snap, enc, s, audioEnd, !cfg.HasVideo()) })
	}
	if err := g.Wait(); err != nil {
		_ = enc.Abort()
		return nil, cfg, err
	}
	if err := ctx.Err(); err != nil {
		_ = enc.Abort()
		return nil, cfg, err
	}
	if err := enc.Finish(ctx); err != nil {
		_ = enc.Abort()
		return nil, cfg, errors.Encode(err, "finish %s", cfg.Format)
	}

	out := &Output{
		Path:       s.Path,
		Format:     cfg.Format,
		MimeType:   cfg.MimeType,
		VideoCodec: cfg.VideoCodec,
		AudioCodec: cfg.AudioCodec,
		Fallback:   cfg.Fallback,
		Frames:     frames,
		Duration:   duration,
	}
	if !cfg.HasVideo() {
		out.Frames = 0
	}
	if fi, err := os.Stat(s.Path); err == nil {
		out.Size = fi.Size()
	}
	return out, cfg, nil
}

func (e *Exporter) renderVideo(ctx context.Context, renderer *scene.Renderer, sc *scene.Scene, enc Encoder, s *Settings) error {
	frames := sc.FrameCount()
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t0 := time.Now()
		img, err := renderer.RenderFrame(ctx, sc, i)
		if err != nil {
			return err
		}
		if err := enc.WriteFrame(img); err != nil {
			return errors.Encode(err, "write frame %d", i)
		}
		observability.Export().OnFrame(ctx, i, time.Since(t0))
		e.update(s, func(st *Status) { st.Frame = i + 1 })
	}
	return nil
}

// mixAudio feeds the encoder in windows aligned to AudioWindow. Windows
// share boundaries exactly, so the concatenation equals one long mix.
func (e *Exporter) mixAudio(ctx context.Context, snap *timeline.Snapshot, enc Encoder, s *Settings, end float64, report bool) error {
	for k := 0; float64(k)*AudioWindow < end; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		from := float64(k) * AudioWindow
		to := math.Min(end, from+AudioWindow)
		buf, err := e.mixer.Mix(ctx, snap, from, to)
		if err != nil {
			return err
		}
		if err := enc.WriteAudio(buf); err != nil {
			return errors.Encode(err, "write audio at %.3fs", from)
		}
		if report {
			e.update(s, func(st *Status) { st.Frame = k + 1 })
		}
	}
	return nil
}

// memoryEstimate is the number of bytes a built-in encoder buffers before
// Finish. Streaming encoders report zero.
func memoryEstimate(cfg Config, s Settings, frames int, duration float64) int64 {
	switch cfg.Format {
	case FormatGIF:
		return int64(frames) * int64(s.Width) * int64(s.Height)
	case FormatWAV:
		samples := int64(math.Ceil(duration * float64(s.SampleRate)))
		return samples * audio.Channels * 4
	}
	return 0
}

// withExt replaces the extension of path with format.
func withExt(path, format string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + format
}
