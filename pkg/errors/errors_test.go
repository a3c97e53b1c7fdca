package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeTimeline, "trim exceeds duration: %s", "el-1")

	if err.Code != ErrCodeTimeline {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTimeline)
	}

	if err.Message != "trim exceeds duration: el-1" {
		t.Errorf("Message = %v, want %v", err.Message, "trim exceeds duration: el-1")
	}

	expected := "TIMELINE: trim exceeds duration: el-1"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("broken pipe")
	err := Encode(cause, "write frame %d", 12)

	if err.Code != ErrCodeEncode {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeEncode)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}

	if got := err.Error(); got != "ENCODE: write frame 12: broken pipe" {
		t.Errorf("Error() = %q", got)
	}
}

func TestKindConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  *Error
		code Code
	}{
		{"timeline", Timeline("x"), ErrCodeTimeline},
		{"render", Render(cause, "x"), ErrCodeRender},
		{"audio mix", AudioMix(cause, "x"), ErrCodeAudioMix},
		{"encode", Encode(cause, "x"), ErrCodeEncode},
		{"platform", PlatformCompatibility("x"), ErrCodePlatformCompatibility},
		{"resource", Resource("x"), ErrCodeResource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
		})
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeTimeline, "test"),
			code:     ErrCodeTimeline,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeTimeline, "test"),
			code:     ErrCodeEncode,
			expected: false,
		},
		{
			name:     "wrapped error",
			err:      Wrap(ErrCodeEncode, New(ErrCodeRender, "inner"), "outer"),
			code:     ErrCodeEncode,
			expected: true,
		},
		{
			name:     "fmt wrapped",
			err:      fmt.Errorf("export: %w", New(ErrCodeCanceled, "stopped")),
			code:     ErrCodeCanceled,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeTimeline,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeTimeline,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{"Error type", New(ErrCodeResource, "test"), ErrCodeResource},
		{"plain error", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "timeline keeps message",
			err:      Timeline("text elements belong on text tracks"),
			expected: "text elements belong on text tracks",
		},
		{
			name:     "platform maps to headline",
			err:      PlatformCompatibility("no encoder for mp4 or gif"),
			expected: "No supported video codecs available on this platform",
		},
		{
			name:     "wrapped encode maps to headline",
			err:      fmt.Errorf("export: %w", Encode(errors.New("exit 1"), "ffmpeg")),
			expected: "Encoding failed",
		},
		{
			name:     "plain error",
			err:      errors.New("plain error"),
			expected: "plain error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}
