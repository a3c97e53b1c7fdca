package scene

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"
)

// ToDOT converts the composition tree to Graphviz DOT: the scene root, one
// cluster per layer (back-to-front, left to right) and one node per
// element. The result can be rendered with [RenderSVG].
func ToDOT(sc *Scene) string {
	var buf bytes.Buffer
	buf.WriteString("digraph Scene {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "  scene [label=%q, fillcolor=lightgrey];\n",
		fmt.Sprintf("scene %dx%d @ %g fps\n%.3fs, %d frames", sc.Width, sc.Height, sc.FPS, sc.Duration, sc.FrameCount()))

	for i, l := range sc.Layers {
		layerID := fmt.Sprintf("layer%d", i)
		fmt.Fprintf(&buf, "  %q [label=%q, shape=folder];\n", layerID, fmt.Sprintf("%s track %s", l.Kind, l.TrackID))
		fmt.Fprintf(&buf, "  scene -> %q;\n", layerID)
		for _, n := range l.Nodes {
			attrs := nodeAttrs(n)
			fmt.Fprintf(&buf, "  %q [%s];\n", n.ElementID, strings.Join(attrs, ", "))
			fmt.Fprintf(&buf, "  %q -> %q;\n", layerID, n.ElementID)
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func nodeAttrs(n *OffsetNode) []string {
	timing := fmt.Sprintf("%.3f → %.3f (trim %.3f)", n.Start, n.Start+n.Duration, n.TrimStart)
	var label string
	attrs := []string{}
	switch c := n.Child.(type) {
	case *VideoNode:
		label = "video " + c.Media.Name()
		attrs = append(attrs, "fillcolor=lightblue")
	case *ImageNode:
		label = "image " + c.Media.Name()
		attrs = append(attrs, "fillcolor=lightyellow")
	case *TextNode:
		label = "text " + strconv.Quote(truncate(c.Content, 24))
		attrs = append(attrs, "fillcolor=mistyrose")
	case nil:
		label = "(empty)"
		attrs = append(attrs, "style=\"rounded,dashed\"")
	}
	return append([]string{fmt.Sprintf("label=%q", label+"\n"+timing)}, attrs...)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the SVG scales cleanly
// when embedded.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
