// Package project loads and saves editing projects as TOML files.
//
// A project bundles the canvas settings, the media library and the timeline.
// Media entries only need an id and a url: kind, duration and dimensions are
// filled in by a [MediaProber] (ffprobe in the CLI) when the file leaves them
// out. Relative urls are resolved against the project file's directory.
//
//	[settings]
//	fps = 30
//	width = 1280
//	height = 720
//
//	[[media]]
//	id = "intro"
//	url = "clips/intro.mp4"
//
//	[[track]]
//	id = "main"
//	kind = "media"
//	main = true
//
//	  [[track.element]]
//	  media = "intro"
//	  start = 0.0
//	  trim_start = 1.5
//
//	[[track]]
//	id = "titles"
//	kind = "text"
//
//	  [[track.element]]
//	  content = "Hello"
//	  start = 2.0
//	  duration = 3.0
//
// Tracks are listed top to bottom; audio tracks come last.
package project

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/framecut/framecut/pkg/audio"
	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/scene"
	"github.com/framecut/framecut/pkg/timeline"
)

// =============================================================================
// Settings
// =============================================================================

// Settings are the project-wide output parameters.
type Settings struct {
	FPS        float64 `json:"fps" toml:"fps"`
	Width      int     `json:"width" toml:"width"`
	Height     int     `json:"height" toml:"height"`
	SampleRate int     `json:"sample_rate" toml:"sample_rate"`
	Background string  `json:"background" toml:"background"`
}

// SetDefaults fills zero values.
func (s *Settings) SetDefaults() {
	sc := s.Scene()
	sc.SetDefaults()
	s.FPS, s.Width, s.Height, s.Background = sc.FPS, sc.Width, sc.Height, sc.Background
	if s.SampleRate == 0 {
		s.SampleRate = audio.DefaultSampleRate
	}
}

// Validate checks the settings after defaults are applied.
func (s Settings) Validate() error {
	if err := s.Scene().Validate(); err != nil {
		return err
	}
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		return errors.New(errors.ErrCodeInvalidInput, "sample rate %d outside [8000, 192000]", s.SampleRate)
	}
	return nil
}

// Scene returns the canvas part of the settings.
func (s Settings) Scene() scene.Settings {
	return scene.Settings{Width: s.Width, Height: s.Height, FPS: s.FPS, Background: s.Background}
}

// =============================================================================
// Project
// =============================================================================

// MediaProber reads metadata from a media file. *media.Prober implements it.
type MediaProber interface {
	Probe(ctx context.Context, url string) (media.Item, error)
}

// Options configures loading.
type Options struct {
	Prober MediaProber // optional; without it media entries must be complete
	Logger *log.Logger
}

// Project is an open editing project.
type Project struct {
	Path     string
	Settings Settings
	Library  *media.Library
	Model    *timeline.Model
}

// New creates an empty project.
func New(settings Settings, logger *log.Logger) (*Project, error) {
	settings.SetDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	lib := media.NewLibrary()
	return &Project{
		Settings: settings,
		Library:  lib,
		Model:    timeline.NewModel(timeline.Options{FPS: settings.FPS, Media: lib, Logger: logger}),
	}, nil
}

// Load reads the project file at path.
func Load(ctx context.Context, path string, opts Options) (*Project, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeNotFound, "project %s not found", path)
		}
		return nil, err
	}
	defer f.Close()

	p, err := Decode(ctx, f, filepath.Dir(path), opts)
	if err != nil {
		return nil, err
	}
	p.Path = path
	return p, nil
}

// Decode reads a project from r. Relative media urls resolve against dir.
func Decode(ctx context.Context, r io.Reader, dir string, opts Options) (*Project, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	var doc document
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse project")
	}

	p, err := New(doc.Settings, logger)
	if err != nil {
		return nil, err
	}
	for _, it := range doc.Media {
		it, err := resolveMedia(ctx, it, dir, opts.Prober)
		if err != nil {
			return nil, err
		}
		if err := p.Library.Add(it); err != nil {
			return nil, err
		}
	}

	snap := &timeline.Snapshot{FPS: p.Settings.FPS}
	for _, tf := range doc.Tracks {
		tr, err := tf.track(p.Library)
		if err != nil {
			return nil, err
		}
		snap.Tracks = append(snap.Tracks, tr)
	}
	if err := p.Model.Load(snap); err != nil {
		return nil, err
	}
	logger.Debug("loaded project", "media", len(doc.Media), "tracks", len(snap.Tracks), "duration", snap.TotalDuration())
	return p, nil
}

// resolveMedia makes the url absolute and probes for missing metadata.
func resolveMedia(ctx context.Context, it media.Item, dir string, prober MediaProber) (media.Item, error) {
	if err := errors.ValidateID(it.ID); err != nil {
		return it, err
	}
	if it.URL == "" {
		return it, errors.New(errors.ErrCodeInvalidInput, "media %s: missing url", it.ID)
	}
	if !strings.Contains(it.URL, "://") && !filepath.IsAbs(it.URL) && dir != "" {
		it.URL = filepath.Join(dir, it.URL)
	}
	if it.Kind == "" {
		if k, err := media.KindFromExt(it.URL); err == nil {
			it.Kind = k
		}
	}
	if complete(it) {
		return it, nil
	}
	if prober == nil {
		return it, errors.New(errors.ErrCodeInvalidInput, "media %s: kind and duration required without ffprobe", it.ID)
	}
	probed, err := prober.Probe(ctx, it.URL)
	if err != nil {
		return it, errors.Wrap(errors.ErrCodeInvalidInput, err, "media %s", it.ID)
	}
	if it.Kind == "" {
		it.Kind = probed.Kind
	}
	if it.Duration == 0 {
		it.Duration = probed.Duration
	}
	if it.Width == 0 && it.Height == 0 {
		it.Width, it.Height = probed.Width, probed.Height
	}
	it.HasAudio = it.HasAudio || probed.HasAudio
	return it, nil
}

func complete(it media.Item) bool {
	switch it.Kind {
	case media.KindImage:
		return true
	case media.KindVideo, media.KindAudio:
		return it.Duration > 0
	}
	return false
}

// Save writes the project to path, or to the path it was loaded from when
// path is empty.
func (p *Project) Save(path string) error {
	if path == "" {
		path = p.Path
	}
	if path == "" {
		return errors.New(errors.ErrCodeInvalidPath, "project has no path")
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := p.Encode(f, filepath.Dir(path)); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	p.Path = path
	return nil
}

// Encode writes the project as TOML. Media urls under dir are written
// relative to it.
func (p *Project) Encode(w io.Writer, dir string) error {
	doc := document{Settings: p.Settings}
	for _, it := range p.Library.Items() {
		if dir != "" && filepath.IsAbs(it.URL) {
			if rel, err := filepath.Rel(dir, it.URL); err == nil && !strings.HasPrefix(rel, "..") {
				it.URL = rel
			}
		}
		doc.Media = append(doc.Media, it)
	}
	for _, tr := range p.Model.Snapshot().Tracks {
		doc.Tracks = append(doc.Tracks, fromTrack(tr))
	}
	return toml.NewEncoder(w).Encode(doc)
}

// =============================================================================
// File format
// =============================================================================

type document struct {
	Settings Settings     `toml:"settings"`
	Media    []media.Item `toml:"media"`
	Tracks   []trackDoc   `toml:"track"`
}

type trackDoc struct {
	ID       string             `toml:"id"`
	Name     string             `toml:"name,omitempty"`
	Kind     timeline.TrackKind `toml:"kind"`
	Main     bool               `toml:"main,omitempty"`
	Muted    bool               `toml:"muted,omitempty"`
	Volume   *float64           `toml:"volume,omitempty"`
	Elements []elementDoc       `toml:"element"`
}

// elementDoc is the union of media and text element fields. Type defaults
// to "text" on text tracks and "media" elsewhere.
type elementDoc struct {
	Type      string   `toml:"type,omitempty"`
	ID        string   `toml:"id,omitempty"`
	Name      string   `toml:"name,omitempty"`
	Start     float64  `toml:"start"`
	Duration  float64  `toml:"duration,omitempty"`
	TrimStart float64  `toml:"trim_start,omitempty"`
	TrimEnd   float64  `toml:"trim_end,omitempty"`
	Muted     bool     `toml:"muted,omitempty"`
	Media     string   `toml:"media,omitempty"`
	Volume    *float64 `toml:"volume,omitempty"`
	Pan       float64  `toml:"pan,omitempty"`

	Content    string   `toml:"content,omitempty"`
	FontSize   float64  `toml:"font_size,omitempty"`
	FontFamily string   `toml:"font_family,omitempty"`
	Color      string   `toml:"color,omitempty"`
	Background string   `toml:"background,omitempty"`
	Align      string   `toml:"align,omitempty"`
	Bold       bool     `toml:"bold,omitempty"`
	Italic     bool     `toml:"italic,omitempty"`
	X          float64  `toml:"x,omitempty"`
	Y          float64  `toml:"y,omitempty"`
	Rotation   float64  `toml:"rotation,omitempty"`
	Opacity    *float64 `toml:"opacity,omitempty"`
}

func (d trackDoc) track(lib *media.Library) (*timeline.Track, error) {
	tr := &timeline.Track{
		ID:     d.ID,
		Name:   d.Name,
		Kind:   d.Kind,
		IsMain: d.Main,
		Muted:  d.Muted,
		Volume: 1,
	}
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	if tr.Kind == "" {
		tr.Kind = timeline.TrackMedia
	}
	if d.Volume != nil {
		tr.Volume = *d.Volume
	}
	for _, ed := range d.Elements {
		el, err := ed.element(tr.Kind, lib)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeTimeline, err, "track %s", tr.ID)
		}
		tr.Elements = append(tr.Elements, el)
	}
	return tr, nil
}

func (d elementDoc) element(kind timeline.TrackKind, lib *media.Library) (timeline.Element, error) {
	typ := d.Type
	if typ == "" {
		typ = "media"
		if kind == timeline.TrackText {
			typ = "text"
		}
	}
	base := timeline.Base{
		ID:        d.ID,
		Name:      d.Name,
		Duration:  d.Duration,
		StartTime: d.Start,
		TrimStart: d.TrimStart,
		TrimEnd:   d.TrimEnd,
		Muted:     d.Muted,
	}
	if base.ID == "" {
		base.ID = uuid.NewString()
	}

	switch typ {
	case "media":
		item, ok := lib.Media(d.Media)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "element %s references unknown media %q", base.ID, d.Media)
		}
		if base.Duration == 0 {
			base.Duration = item.Duration
			if item.Kind == media.KindImage {
				base.Duration = timeline.DefaultImageLength
			}
		}
		if base.Name == "" {
			base.Name = item.Name()
		}
		el := &timeline.MediaElement{Base: base, MediaID: item.ID, Volume: 1, Pan: d.Pan}
		if d.Volume != nil {
			el.Volume = *d.Volume
		}
		return el, nil

	case "text":
		el := timeline.NewText(d.Content)
		name := el.Name
		el.Base = base
		if el.Name == "" {
			el.Name = name
		}
		if el.Duration == 0 {
			el.Duration = timeline.DefaultTextDuration
		}
		if d.FontSize > 0 {
			el.FontSize = d.FontSize
		}
		if d.FontFamily != "" {
			el.FontFamily = d.FontFamily
		}
		if d.Color != "" {
			el.Color = d.Color
		}
		if d.Align != "" {
			el.TextAlign = timeline.TextAlign(d.Align)
		}
		if d.Opacity != nil {
			el.Opacity = *d.Opacity
		}
		el.BackgroundColor = d.Background
		el.Bold, el.Italic = d.Bold, d.Italic
		el.X, el.Y, el.Rotation = d.X, d.Y, d.Rotation
		return el, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "element %s: unknown type %q", base.ID, typ)
}

func fromTrack(tr *timeline.Track) trackDoc {
	vol := tr.Volume
	d := trackDoc{ID: tr.ID, Name: tr.Name, Kind: tr.Kind, Main: tr.IsMain, Muted: tr.Muted, Volume: &vol}
	for _, el := range tr.Elements {
		b := el.Common()
		ed := elementDoc{
			ID:        b.ID,
			Name:      b.Name,
			Start:     b.StartTime,
			Duration:  b.Duration,
			TrimStart: b.TrimStart,
			TrimEnd:   b.TrimEnd,
			Muted:     b.Muted,
		}
		switch e := el.(type) {
		case *timeline.MediaElement:
			vol := e.Volume
			ed.Type, ed.Media, ed.Volume, ed.Pan = "media", e.MediaID, &vol, e.Pan
		case *timeline.TextElement:
			op := e.Opacity
			ed.Type, ed.Content, ed.Opacity = "text", e.Content, &op
			ed.FontSize, ed.FontFamily, ed.Color, ed.Background = e.FontSize, e.FontFamily, e.Color, e.BackgroundColor
			ed.Align, ed.Bold, ed.Italic = string(e.TextAlign), e.Bold, e.Italic
			ed.X, ed.Y, ed.Rotation = e.X, e.Y, e.Rotation
		}
		d.Elements = append(d.Elements, ed)
	}
	return d
}
