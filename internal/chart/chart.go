// Package chart computes the geometry of the small attendance charts and
// renders it as SVG. Everything here is a pure function of its inputs.
package chart

import (
	"fmt"
	"math"
)

// Scale is the value that maps to a full-height bar or the top of a line.
const Scale = 100.0

// Box is the drawing area in pixels.
type Box struct {
	Width  float64
	Height float64
}

// Point is a position in the drawing area.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bar is one column of a bar chart, anchored at the bottom of the box.
type Bar struct {
	Label  string  `json:"label"`
	Value  float64 `json:"value"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BarChart is the output of Bars.
type BarChart struct {
	Box  Box   `json:"box"`
	Bars []Bar `json:"bars"`
}

// Bars lays out one bar per value, each value a percentage of Scale.
// Values outside [0, Scale] are clamped.
func Bars(values []float64, labels []string, box Box) BarChart {
	out := BarChart{Box: box, Bars: make([]Bar, len(values))}
	if len(values) == 0 {
		return out
	}
	slot := box.Width / float64(len(values))
	width := slot * 0.8
	for i, v := range values {
		h := clamp(v/Scale) * box.Height
		out.Bars[i] = Bar{
			Label:  labelAt(labels, i),
			Value:  v,
			X:      float64(i)*slot + (slot-width)/2,
			Y:      box.Height - h,
			Width:  width,
			Height: h,
		}
	}
	return out
}

// Padding is the inset of a line chart's plotting area.
type Padding struct {
	X float64
	Y float64
}

// LineChart is the output of Line.
type LineChart struct {
	Box     Box      `json:"box"`
	Points  []Point  `json:"points"`
	Labels  []string `json:"labels"`
	Padding Padding  `json:"-"`
}

// Line maps (index, value) pairs into box: x spreads evenly between the
// horizontal paddings, y runs from the bottom padding (0) to the top one
// (Scale). A single value sits at the horizontal center.
func Line(values []float64, labels []string, box Box, pad Padding) LineChart {
	out := LineChart{Box: box, Points: make([]Point, len(values)), Labels: make([]string, len(values)), Padding: pad}
	n := len(values)
	for i, v := range values {
		var x float64
		if n == 1 {
			x = box.Width / 2
		} else {
			x = float64(i)/float64(n-1)*(box.Width-2*pad.X) + pad.X
		}
		y := box.Height - clamp(v/Scale)*(box.Height-2*pad.Y) - pad.Y
		out.Points[i] = Point{X: x, Y: y}
		out.Labels[i] = labelAt(labels, i)
	}
	return out
}

// Sector is one slice of a pie chart.
type Sector struct {
	StartAngle float64 `json:"startAngle"`
	EndAngle   float64 `json:"endAngle"`
	Start      Point   `json:"start"`
	End        Point   `json:"end"`
	LargeArc   bool    `json:"largeArc"`
	Path       string  `json:"path"`
}

// PieChart splits a circle between present and absent counts.
type PieChart struct {
	Center  Point   `json:"center"`
	Radius  float64 `json:"radius"`
	Present Sector  `json:"present"`
	Absent  Sector  `json:"absent"`
	Percent int     `json:"percent"`
}

// Pie computes the present and absent sectors. With no data both sectors
// collapse to zero sweep and the percentage is 0.
func Pie(present, absent int, center Point, r float64) PieChart {
	total := present + absent
	presentAngle := 0.0
	percent := 0
	if total > 0 {
		presentAngle = float64(present) / float64(total) * 360
		percent = int(math.Round(float64(present) / float64(total) * 100))
	}
	absentEnd := 360.0
	if total == 0 {
		absentEnd = 0
	}
	return PieChart{
		Center:  center,
		Radius:  r,
		Present: sector(center, r, 0, presentAngle),
		Absent:  sector(center, r, presentAngle, absentEnd),
		Percent: percent,
	}
}

func sector(c Point, r, startAngle, endAngle float64) Sector {
	s := Sector{
		StartAngle: startAngle,
		EndAngle:   endAngle,
		Start:      polar(c, r, startAngle),
		End:        polar(c, r, endAngle),
		LargeArc:   endAngle-startAngle > 180,
	}
	large := 0
	if s.LargeArc {
		large = 1
	}
	s.Path = fmt.Sprintf("M%s,%s L%s,%s A%s,%s 0 %d 1 %s,%s Z",
		num(c.X), num(c.Y), num(s.Start.X), num(s.Start.Y),
		num(r), num(r), large, num(s.End.X), num(s.End.Y))
	return s
}

func polar(c Point, r, deg float64) Point {
	rad := math.Pi / 180 * deg
	return Point{X: c.X + r*math.Cos(rad), Y: c.Y + r*math.Sin(rad)}
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func labelAt(labels []string, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return ""
}

// num formats a coordinate with at most two decimals and no trailing zeros.
func num(f float64) string {
	if math.Abs(f) < 0.005 {
		f = 0
	}
	s := fmt.Sprintf("%.2f", f)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
