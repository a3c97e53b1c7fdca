package scene

import (
	"strings"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Fonts resolves text styles to faces. Only the Go font family is bundled;
// any family containing "mono" maps to Go Mono and everything else to Go.
type Fonts struct {
	mu      sync.Mutex
	sources map[string]*text.FontSource
}

// NewFonts returns an empty font registry. Fonts are parsed on first use.
func NewFonts() *Fonts {
	return &Fonts{sources: make(map[string]*text.FontSource)}
}

var fontData = map[string][]byte{
	"regular":     goregular.TTF,
	"bold":        gobold.TTF,
	"italic":      goitalic.TTF,
	"bold-italic": gobolditalic.TTF,
	"mono":        gomono.TTF,
	"mono-bold":   gomonobold.TTF,
}

func fontKey(family string, bold, italic bool) string {
	if strings.Contains(strings.ToLower(family), "mono") {
		if bold {
			return "mono-bold"
		}
		return "mono"
	}
	switch {
	case bold && italic:
		return "bold-italic"
	case bold:
		return "bold"
	case italic:
		return "italic"
	}
	return "regular"
}

// Face returns a face for the style at size points.
func (f *Fonts) Face(family string, bold, italic bool, size float64) (text.Face, error) {
	key := fontKey(family, bold, italic)

	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.sources[key]
	if !ok {
		var err error
		src, err = text.NewFontSource(fontData[key])
		if err != nil {
			return nil, err
		}
		f.sources[key] = src
	}
	return src.Face(size), nil
}
