package timeline

import (
	"math"

	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
)

// validateState checks every structural invariant of s.
func validateState(s *Snapshot) error {
	eps := s.FrameEpsilon()
	trackIDs := make(map[string]bool, len(s.Tracks))
	elementIDs := make(map[string]bool)
	mains := 0
	seenAudio := false

	for _, tr := range s.Tracks {
		if err := errors.ValidateID(tr.ID); err != nil {
			return errors.Timeline("track id: %s", errors.UserMessage(err))
		}
		if trackIDs[tr.ID] {
			return errors.Timeline("duplicate track id %s", tr.ID)
		}
		trackIDs[tr.ID] = true

		if !tr.Kind.Valid() {
			return errors.Timeline("track %s: unknown kind %q", tr.ID, tr.Kind)
		}
		if tr.Kind == TrackAudio {
			seenAudio = true
		} else if seenAudio {
			return errors.Timeline("track %s: audio tracks must stay below %s tracks", tr.ID, tr.Kind)
		}
		if tr.IsMain {
			if tr.Kind != TrackMedia {
				return errors.Timeline("track %s: only a media track can be the main track", tr.ID)
			}
			mains++
		}
		if !finite(tr.Volume) || tr.Volume < 0 {
			return errors.Timeline("track %s: volume must be >= 0", tr.ID)
		}

		for _, el := range tr.Elements {
			id := el.Common().ID
			if elementIDs[id] {
				return errors.Timeline("duplicate element id %s", id)
			}
			elementIDs[id] = true
			if err := validateElement(el, eps); err != nil {
				return err
			}
			if err := checkKind(tr, el); err != nil {
				return err
			}
		}
	}

	if mains > 1 {
		return errors.Timeline("at most one main track is allowed, found %d", mains)
	}
	return nil
}

// validateElement checks the timing and property invariants of one element.
func validateElement(el Element, eps float64) error {
	b := el.Common()
	if err := errors.ValidateID(b.ID); err != nil {
		return errors.Timeline("element id: %s", errors.UserMessage(err))
	}
	for _, v := range []float64{b.Duration, b.StartTime, b.TrimStart, b.TrimEnd} {
		if !finite(v) {
			return errors.Timeline("element %s: timing values must be finite", b.ID)
		}
	}
	switch {
	case b.StartTime < -tolerance:
		return errors.Timeline("element %s: start time %.4f is negative", b.ID, b.StartTime)
	case b.TrimStart < -tolerance:
		return errors.Timeline("element %s: trim start %.4f is negative", b.ID, b.TrimStart)
	case b.TrimEnd < -tolerance:
		return errors.Timeline("element %s: trim end %.4f is negative", b.ID, b.TrimEnd)
	case b.TrimStart+b.TrimEnd > b.Duration+tolerance:
		return errors.Timeline("element %s: trims %.4f+%.4f exceed duration %.4f", b.ID, b.TrimStart, b.TrimEnd, b.Duration)
	case b.EffectiveDuration() < eps-tolerance:
		return errors.Timeline("element %s: effective duration %.4f is shorter than one frame", b.ID, b.EffectiveDuration())
	}

	switch e := el.(type) {
	case *MediaElement:
		if e.MediaID == "" {
			return errors.Timeline("element %s: missing media reference", b.ID)
		}
		if !finite(e.Volume) || e.Volume < 0 {
			return errors.Timeline("element %s: volume must be >= 0", b.ID)
		}
		if !finite(e.Pan) || e.Pan < -1 || e.Pan > 1 {
			return errors.Timeline("element %s: pan %.2f outside [-1, 1]", b.ID, e.Pan)
		}
	case *TextElement:
		if !finite(e.FontSize) || e.FontSize <= 0 {
			return errors.Timeline("element %s: font size must be positive", b.ID)
		}
		if !finite(e.Opacity) || e.Opacity < 0 || e.Opacity > 1 {
			return errors.Timeline("element %s: opacity %.2f outside [0, 1]", b.ID, e.Opacity)
		}
		switch e.TextAlign {
		case AlignLeft, AlignCenter, AlignRight:
		default:
			return errors.Timeline("element %s: unknown text alignment %q", b.ID, e.TextAlign)
		}
		for _, c := range []string{e.Color, e.BackgroundColor} {
			if err := errors.ValidateHexColor(c); err != nil {
				return errors.Timeline("element %s: %s", b.ID, errors.UserMessage(err))
			}
		}
		for _, v := range []float64{e.X, e.Y, e.Rotation} {
			if !finite(v) {
				return errors.Timeline("element %s: position values must be finite", b.ID)
			}
		}
	default:
		return errors.Timeline("element %s: unsupported element type %T", b.ID, el)
	}
	return nil
}

// checkKind enforces element/track compatibility.
func checkKind(tr *Track, el Element) error {
	switch el.(type) {
	case *TextElement:
		if tr.Kind != TrackText {
			return errors.Timeline("text element %s cannot be placed on %s track %s", el.Common().ID, tr.Kind, tr.ID)
		}
	case *MediaElement:
		if tr.Kind != TrackMedia && tr.Kind != TrackAudio {
			return errors.Timeline("media element %s cannot be placed on %s track %s", el.Common().ID, tr.Kind, tr.ID)
		}
	}
	return nil
}

// checkMedia enforces the rules that depend on the referenced media item:
// audio tracks accept audio only, and non-extensible media cannot claim more
// source than exists. A nil provider or an unknown item skips the checks.
func checkMedia(provider media.Provider, tr *Track, el Element) error {
	e, ok := el.(*MediaElement)
	if !ok || provider == nil || e.Orphaned {
		return nil
	}
	item, ok := provider.Media(e.MediaID)
	if !ok {
		return nil
	}
	if tr.Kind == TrackAudio && item.Kind != media.KindAudio {
		return errors.Timeline("%s media %s cannot be placed on audio track %s", item.Kind, item.ID, tr.ID)
	}
	if item.Kind != media.KindImage && item.Duration > 0 && e.Duration > item.Duration+tolerance {
		return errors.Timeline("element %s: duration %.4f exceeds source length %.4f", e.ID, e.Duration, item.Duration)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
