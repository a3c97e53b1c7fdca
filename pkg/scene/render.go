package scene

import (
	"context"
	"image"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/framecut/framecut/pkg/errors"
	"github.com/framecut/framecut/pkg/media"
	"github.com/framecut/framecut/pkg/timeline"
)

// Stats counts renderer work.
type Stats struct {
	Redraws int           // frames actually rasterized
	Skipped int           // requests answered from the memoized surface
	Last    time.Duration // time spent on the last redraw
}

// Renderer rasterizes scene frames. It remembers the last (scene, frame)
// pair it drew and answers a repeated request without redrawing. A
// Renderer is safe for concurrent use; draws are serialized.
type Renderer struct {
	sources FrameSource
	fonts   *Fonts
	logger  *log.Logger

	mu    sync.Mutex
	last  memo
	stats Stats
}

type memo struct {
	sceneID string
	frame   int
	img     image.Image
}

// NewRenderer creates a renderer drawing media through sources.
func NewRenderer(sources FrameSource, logger *log.Logger) *Renderer {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Renderer{sources: sources, fonts: NewFonts(), logger: logger}
}

// Stats returns a copy of the work counters.
func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// RenderFrame draws frame of sc and returns the surface. The returned image
// is shared with later identical requests and must not be modified.
func (r *Renderer) RenderFrame(ctx context.Context, sc *Scene, frame int) (image.Image, error) {
	if frame < 0 {
		return nil, errors.Render(nil, "frame %d out of range", frame)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.last.img != nil && r.last.sceneID == sc.ID && r.last.frame == frame {
		r.stats.Skipped++
		return r.last.img, nil
	}

	start := time.Now()
	img, err := r.draw(ctx, sc, sc.TimeOf(frame))
	if err != nil {
		return nil, err
	}
	r.stats.Redraws++
	r.stats.Last = time.Since(start)
	r.last = memo{sceneID: sc.ID, frame: frame, img: img}
	return img, nil
}

// RenderTime draws the frame showing time t.
func (r *Renderer) RenderTime(ctx context.Context, sc *Scene, t float64) (image.Image, error) {
	return r.RenderFrame(ctx, sc, sc.FrameAt(math.Max(0, t)))
}

func (r *Renderer) draw(ctx context.Context, sc *Scene, t float64) (image.Image, error) {
	if sc.Width*sc.Height > MaxPixels {
		return nil, errors.Resource("canvas %dx%d exceeds %d megapixels", sc.Width, sc.Height, MaxPixels>>20)
	}
	dc := gg.NewContext(sc.Width, sc.Height)
	defer dc.Close()
	dc.ClearWithColor(parseColor(sc.Background, gg.Black))

	for _, n := range sc.Active(t) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		switch c := n.Child.(type) {
		case *VideoNode:
			err = r.drawMedia(ctx, dc, sc, c.Media, n.LocalTime(t))
		case *ImageNode:
			err = r.drawMedia(ctx, dc, sc, c.Media, 0)
		case *TextNode:
			err = r.drawText(dc, sc, c)
		case nil:
			r.logger.Debug("nothing to draw", "element", n.ElementID)
		}
		if err != nil {
			return nil, errors.Render(err, "element %s at %.3fs", n.ElementID, t)
		}
	}
	return dc.Image(), nil
}

// drawMedia draws the source picture scaled to fit the canvas, centred.
func (r *Renderer) drawMedia(ctx context.Context, dc *gg.Context, sc *Scene, item media.Item, local float64) error {
	if r.sources == nil {
		return errors.New(errors.ErrCodeRender, "no frame source configured")
	}
	img, err := r.sources.Frame(ctx, item, local)
	if err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil
	}
	x, y, w, h := fit(b.Dx(), b.Dy(), sc.Width, sc.Height)
	dc.DrawImageEx(gg.ImageBufFromImage(img), gg.DrawImageOptions{
		X:             x,
		Y:             y,
		DstWidth:      w,
		DstHeight:     h,
		Interpolation: gg.InterpBilinear,
		Opacity:       1,
		BlendMode:     gg.BlendNormal,
	})
	return nil
}

// fit returns the largest rectangle with the source aspect ratio that fits
// inside the canvas, centred.
func fit(sw, sh, cw, ch int) (x, y, w, h float64) {
	scale := math.Min(float64(cw)/float64(sw), float64(ch)/float64(sh))
	w, h = float64(sw)*scale, float64(sh)*scale
	return (float64(cw) - w) / 2, (float64(ch) - h) / 2, w, h
}

// =============================================================================
// Text
// =============================================================================

// drawText renders the text block offscreen, rotates it when needed and
// composites it centred on (canvas centre + X, Y) at the node opacity.
func (r *Renderer) drawText(dc *gg.Context, sc *Scene, n *TextNode) error {
	if n.Opacity <= 0 || strings.TrimSpace(n.Content) == "" {
		return nil
	}
	block, err := r.textBlock(n)
	if err != nil {
		return err
	}
	if n.Rotation != 0 {
		block = rotate(block, n.Rotation)
	}

	b := block.Bounds()
	cx := float64(sc.Width)/2 + n.X
	cy := float64(sc.Height)/2 + n.Y
	opts := gg.DrawImageOptions{
		X:             math.Round(cx - float64(b.Dx())/2),
		Y:             math.Round(cy - float64(b.Dy())/2),
		Interpolation: gg.InterpBilinear,
		Opacity:       1,
		BlendMode:     gg.BlendNormal,
	}
	if n.Opacity < 1 {
		dc.PushLayer(gg.BlendNormal, n.Opacity)
		defer dc.PopLayer()
	}
	dc.DrawImageEx(gg.ImageBufFromImage(block), opts)
	return nil
}

// textBlock draws the text, with its background box, on a transparent
// surface just large enough to hold it.
func (r *Renderer) textBlock(n *TextNode) (image.Image, error) {
	size := n.FontSize
	if size <= 0 {
		size = timeline.DefaultFontSize
	}
	face, err := r.fonts.Face(n.FontFamily, n.Bold, n.Italic, size)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(n.Content, "\n")
	var width, lineHeight float64
	for _, line := range lines {
		w, h := text.Measure(line, face)
		width = math.Max(width, w)
		lineHeight = math.Max(lineHeight, h)
	}

	pad := math.Ceil(size * 0.25)
	bw := int(math.Ceil(width + 2*pad))
	bh := int(math.Ceil(lineHeight*float64(len(lines)) + 2*pad))

	off := gg.NewContext(bw, bh)
	defer off.Close()
	if bg, ok := optionalColor(n.BackgroundColor); ok {
		off.SetRGBA(bg.R, bg.G, bg.B, bg.A)
		off.DrawRoundedRectangle(0, 0, float64(bw), float64(bh), pad/2)
		if err := off.Fill(); err != nil {
			return nil, err
		}
	}

	fg := parseColor(n.Color, gg.White)
	off.SetRGBA(fg.R, fg.G, fg.B, fg.A)
	off.SetFont(face)
	for i, line := range lines {
		x, ax := pad, 0.0
		switch n.Align {
		case timeline.AlignCenter:
			x, ax = float64(bw)/2, 0.5
		case timeline.AlignRight:
			x, ax = float64(bw)-pad, 1
		}
		// Anchor at 80% of the line height approximates the baseline.
		off.DrawStringAnchored(line, x, pad+lineHeight*float64(i), ax, 0.8)
	}
	return off.Image(), nil
}

// rotate returns src rotated clockwise by deg degrees about its centre on a
// surface sized to the rotated bounds.
func rotate(src image.Image, deg float64) image.Image {
	rad := deg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	dw := math.Ceil(math.Abs(sw*cos) + math.Abs(sh*sin))
	dh := math.Ceil(math.Abs(sw*sin) + math.Abs(sh*cos))

	dst := image.NewRGBA(image.Rect(0, 0, int(dw), int(dh)))
	scx, scy := float64(sb.Min.X)+sw/2, float64(sb.Min.Y)+sh/2
	dcx, dcy := dw/2, dh/2
	m := f64.Aff3{
		cos, -sin, dcx - (cos*scx - sin*scy),
		sin, cos, dcy - (sin*scx + cos*scy),
	}
	xdraw.BiLinear.Transform(dst, m, src, sb, xdraw.Over, nil)
	return dst
}

// =============================================================================
// Colours
// =============================================================================

// optionalColor parses a colour that may be unset.
func optionalColor(hex string) (gg.RGBA, bool) {
	if hex == "" || strings.EqualFold(hex, "transparent") {
		return gg.RGBA{}, false
	}
	return gg.Hex(hex), true
}

func parseColor(hex string, fallback gg.RGBA) gg.RGBA {
	if strings.EqualFold(hex, "transparent") {
		return gg.Transparent
	}
	if c, ok := optionalColor(hex); ok {
		return c
	}
	return fallback
}
