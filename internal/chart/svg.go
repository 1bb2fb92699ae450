package chart

import (
	"bytes"
	"fmt"
	"math"

	svg "github.com/ajstarks/svgo"
)

const (
	colorLine    = "#3b82f6"
	colorPresent = "#22c55e"
	colorAbsent  = "#ef4444"
	colorMuted   = "#888"
	colorAxis    = "#ccc"
)

func px(f float64) int { return int(math.Round(f)) }

// BarSVG draws a bar chart with value captions above each bar.
func BarSVG(c BarChart) []byte {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(px(c.Box.Width), px(c.Box.Height)+30)
	for _, b := range c.Bars {
		canvas.Rect(px(b.X), px(b.Y)+15, px(b.Width), px(b.Height), "fill:"+colorLine)
		canvas.Text(px(b.X+b.Width/2), px(b.Y)+12, fmt.Sprintf("%s%%", num(b.Value)), "font-size:10px;text-anchor:middle;fill:#222")
		canvas.Text(px(b.X+b.Width/2), px(c.Box.Height)+28, b.Label, "font-size:10px;text-anchor:middle;fill:"+colorMuted)
	}
	canvas.End()
	return buf.Bytes()
}

// LineSVG draws a polyline with a dot at each point and axis labels.
// With axes set it also draws the x and y axes along the padding.
func LineSVG(c LineChart, axes bool) []byte {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	w, h := px(c.Box.Width), px(c.Box.Height)
	canvas.Start(w, h)
	if axes {
		p := c.Padding
		canvas.Line(px(p.X), h-px(p.Y), w-px(p.X), h-px(p.Y), "stroke:"+colorAxis)
		canvas.Line(px(p.X), px(p.Y), px(p.X), h-px(p.Y), "stroke:"+colorAxis)
	}
	xs := make([]int, len(c.Points))
	ys := make([]int, len(c.Points))
	for i, pt := range c.Points {
		xs[i], ys[i] = px(pt.X), px(pt.Y)
	}
	canvas.Polyline(xs, ys, "fill:none;stroke-width:3;stroke:"+colorLine)
	for i := range c.Points {
		canvas.Circle(xs[i], ys[i], 4, "fill:"+colorLine)
	}
	canvas.Text(0, h-px(c.Padding.Y), "0%", "font-size:10px;fill:"+colorMuted)
	canvas.Text(0, px(c.Padding.Y)+10, "100%", "font-size:10px;fill:"+colorMuted)
	for i, label := range c.Labels {
		canvas.Text(xs[i], h, label, "font-size:10px;text-anchor:middle;fill:"+colorMuted)
	}
	canvas.End()
	return buf.Bytes()
}

// PieSVG draws the two sectors as a donut with the percentage in the hole.
func PieSVG(c PieChart) []byte {
	var buf bytes.Buffer
	canvas := svg.New(&buf)
	size := px(c.Center.X * 2)
	canvas.Start(size, size)
	canvas.Path(c.Present.Path, "fill:"+colorPresent)
	canvas.Path(c.Absent.Path, "fill:"+colorAbsent)
	canvas.Circle(px(c.Center.X), px(c.Center.Y), px(c.Radius*0.625), "fill:#fff")
	canvas.Text(px(c.Center.X), px(c.Center.Y)+5, fmt.Sprintf("%d%%", c.Percent), "font-size:16px;text-anchor:middle;fill:#222")
	canvas.End()
	return buf.Bytes()
}
