package cache

// Keyer derives cache keys for editor artifacts.
type Keyer interface {
	// AudioKey identifies decoded PCM for one source at one sample rate.
	AudioKey(mediaID, url string, sampleRate, channels int) string

	// ProbeKey identifies ffprobe metadata for a media URL.
	ProbeKey(url string) string

	// FrameKey identifies an extracted still frame of a video source.
	FrameKey(url string, frame int64, width, height int) string
}

// DefaultKeyer is the standard key layout.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// AudioKey returns "audio:<hash>".
func (DefaultKeyer) AudioKey(mediaID, url string, sampleRate, channels int) string {
	return hashKey("audio", mediaID, url, sampleRate, channels)
}

// ProbeKey returns "probe:<hash>".
func (DefaultKeyer) ProbeKey(url string) string {
	return hashKey("probe", url)
}

// FrameKey returns "frame:<hash>".
func (DefaultKeyer) FrameKey(url string, frame int64, width, height int) string {
	return hashKey("frame", url, frame, width, height)
}

// ScopedKeyer wraps a Keyer with a prefix, so projects sharing one Redis
// instance do not evict each other's entries by accident.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "project:trailer:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// AudioKey returns the prefixed audio key.
func (k *ScopedKeyer) AudioKey(mediaID, url string, sampleRate, channels int) string {
	return k.prefix + k.inner.AudioKey(mediaID, url, sampleRate, channels)
}

// ProbeKey returns the prefixed probe key.
func (k *ScopedKeyer) ProbeKey(url string) string {
	return k.prefix + k.inner.ProbeKey(url)
}

// FrameKey returns the prefixed frame key.
func (k *ScopedKeyer) FrameKey(url string, frame int64, width, height int) string {
	return k.prefix + k.inner.FrameKey(url, frame, width, height)
}
