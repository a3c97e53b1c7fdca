// Package media describes the source material a timeline refers to.
//
// Media items are owned by the [Library] (or any other [Provider]); the
// timeline only ever stores an item's ID. Renderers and the audio mixer look
// items up by ID when they need the URL, dimensions or duration.
package media

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/framecut/framecut/pkg/errors"
)

// Kind classifies a media item.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindVideo, KindAudio, KindImage:
		return true
	}
	return false
}

// Item is the metadata the editor core needs about one source file.
type Item struct {
	ID       string  `json:"id" toml:"id"`
	URL      string  `json:"url" toml:"url"`
	Kind     Kind    `json:"kind" toml:"kind"`
	Duration float64 `json:"duration" toml:"duration"` // seconds; zero for still images
	Width    int     `json:"width,omitempty" toml:"width,omitempty"`
	Height   int     `json:"height,omitempty" toml:"height,omitempty"`
	HasAudio bool    `json:"has_audio" toml:"has_audio"`
}

// Path returns the local filesystem path of the item, stripping a file://
// scheme when present.
func (it Item) Path() string {
	return strings.TrimPrefix(it.URL, "file://")
}

// Name returns a display name derived from the URL.
func (it Item) Name() string {
	return filepath.Base(it.Path())
}

// Provider resolves media items by ID.
type Provider interface {
	Media(id string) (Item, bool)
}

// ReferenceChecker lists timeline elements that refer to a media item.
// The timeline model implements it.
type ReferenceChecker interface {
	MediaReferences(mediaID string) []string
}

// Orphaner flags elements whose media has been removed. The timeline model
// implements it.
type Orphaner interface {
	OrphanMedia(mediaID string) int
}

// Library is an in-memory, concurrency-safe media store.
type Library struct {
	mu    sync.RWMutex
	items map[string]Item
	order []string
}

// NewLibrary returns an empty library.
func NewLibrary(items ...Item) *Library {
	l := &Library{items: make(map[string]Item)}
	for _, it := range items {
		_ = l.Add(it)
	}
	return l
}

// Add registers an item, replacing any previous item with the same ID.
func (l *Library) Add(it Item) error {
	if err := errors.ValidateID(it.ID); err != nil {
		return err
	}
	if !it.Kind.Valid() {
		return errors.New(errors.ErrCodeInvalidInput, "media %s: unknown kind %q", it.ID, it.Kind)
	}
	if it.Duration < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "media %s: negative duration", it.ID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.items[it.ID]; !ok {
		l.order = append(l.order, it.ID)
	}
	l.items[it.ID] = it
	return nil
}

// Media implements Provider.
func (l *Library) Media(id string) (Item, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	it, ok := l.items[id]
	return it, ok
}

// Items returns all items in insertion order.
func (l *Library) Items() []Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Item, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.items[id])
	}
	return out
}

// Remove deletes an item. Removal is rejected while refs reports timeline
// elements that still point at the item.
func (l *Library) Remove(id string, refs ReferenceChecker) error {
	if refs != nil {
		if users := refs.MediaReferences(id); len(users) > 0 {
			return errors.New(errors.ErrCodeTimeline,
				"media %s is used by %d element(s): %s", id, len(users), strings.Join(users, ", "))
		}
	}
	return l.remove(id)
}

// RemoveOrphaning deletes an item and asks o to flag every element that
// referred to it. It returns the number of flagged elements.
func (l *Library) RemoveOrphaning(id string, o Orphaner) (int, error) {
	if err := l.remove(id); err != nil {
		return 0, err
	}
	if o == nil {
		return 0, nil
	}
	return o.OrphanMedia(id), nil
}

func (l *Library) remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.items[id]; !ok {
		return errors.New(errors.ErrCodeNotFound, "media %s not found", id)
	}
	delete(l.items, id)
	l.order = slices.DeleteFunc(l.order, func(s string) bool { return s == id })
	return nil
}

// KindFromExt guesses the media kind from a file extension.
func KindFromExt(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov", ".m4v", ".webm", ".mkv", ".avi", ".gif":
		return KindVideo, nil
	case ".wav", ".mp3", ".m4a", ".aac", ".ogg", ".opus", ".flac":
		return KindAudio, nil
	case ".png", ".jpg", ".jpeg", ".webp", ".bmp":
		return KindImage, nil
	}
	return "", fmt.Errorf("unrecognized media extension %q", filepath.Ext(path))
}
