package errors

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// ValidateOutputPath validates a caller-supplied export destination.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 1024 characters
//   - No null bytes or control characters
//   - Must name a file (not end in a separator)
//   - Must carry a file extension
func ValidateOutputPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "output path cannot be empty")
	}

	const maxPathLength = 1024
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "output path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "output path contains invalid characters")
		}
	}

	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator)) {
		return New(ErrCodeInvalidPath, "output path must name a file")
	}

	if filepath.Ext(path) == "" {
		return New(ErrCodeInvalidPath, "output path needs a file extension: %q", path)
	}

	return nil
}

// ValidateID validates an element, track or media identifier.
// IDs are opaque but must be printable and reasonably short.
func ValidateID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "id cannot be empty")
	}
	if len(id) > 128 {
		return New(ErrCodeInvalidInput, "id too long (max 128 characters)")
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidInput, "id contains invalid characters: %q", id)
		}
	}
	return nil
}

// hexColorRegex matches #RGB, #RGBA, #RRGGBB and #RRGGBBAA.
var hexColorRegex = regexp.MustCompile(`^#([0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// ValidateHexColor validates a CSS-style hex color. The empty string is
// accepted and means "transparent".
func ValidateHexColor(color string) error {
	if color == "" || color == "transparent" {
		return nil
	}
	if !hexColorRegex.MatchString(color) {
		return New(ErrCodeInvalidInput, "invalid color: %q", color)
	}
	return nil
}
