// Package timeline holds the editor's multi-track timeline model.
//
// A timeline is an ordered list of [Track] values, each holding elements
// placed in time. Index 0 is the top (foreground) track; audio tracks are
// always kept at the bottom of the list. Elements are a closed union of
// [*MediaElement] and [*TextElement]; consumers switch on the concrete type.
//
// # Time model
//
// Every element has a source Duration and is trimmed by TrimStart and
// TrimEnd. What the viewer sees is the effective duration:
//
//	effective = Duration - TrimStart - TrimEnd
//
// placed at StartTime on the timeline. An element is active at time t when
// StartTime <= t < StartTime+effective.
//
// # Invariants
//
// After every committed mutation:
//
//   - 0 <= TrimStart, 0 <= TrimEnd, TrimStart+TrimEnd <= Duration
//   - effective >= one frame (1/fps)
//   - StartTime >= 0
//   - text elements live on text tracks, media elements on media or audio
//     tracks (audio tracks accept audio media only)
//   - at most one main track, and only a media track can be main
//
// [Model] enforces these by applying each mutation to a copy of its state,
// validating the copy, and only then swapping it in. A rejected mutation
// returns a TIMELINE error and leaves the model untouched.
//
// Readers that must not race with edits (renderer, mixer, exporter) work on
// a [Snapshot], which is a deep copy.
package timeline
