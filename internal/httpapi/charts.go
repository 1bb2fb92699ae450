package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"smartattend/internal/chart"
	"smartattend/internal/dashboard"
)

var (
	analyticsBox     = chart.Box{Width: 260, Height: 100}
	analyticsPadding = chart.Padding{X: 20, Y: 10}
	weeklyBox        = chart.Box{Width: 320, Height: 140}
	weeklyPadding    = chart.Padding{X: 20, Y: 20}
	pieCenter        = chart.Point{X: 45, Y: 45}
	pieRadius        = 40.0
)

// seriesQuery reads ?values=87,92&labels=CS301,CS302, falling back to the
// course analytics.
func seriesQuery(c *gin.Context) ([]float64, []string, error) {
	a := dashboard.CourseAnalytics()
	values, labels := a.Values(), a.Labels()
	if raw := c.Query("values"); raw != "" {
		parts := strings.Split(raw, ",")
		values = make([]float64, len(parts))
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("values[%d]: %w", i, err)
			}
			values[i] = v
		}
		labels = nil
	}
	if raw := c.Query("labels"); raw != "" {
		labels = strings.Split(raw, ",")
	}
	return values, labels, nil
}

func svgResponse(c *gin.Context, body []byte) {
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/svg+xml", body)
}

func (s *Server) barChart(c *gin.Context) {
	values, labels, err := seriesQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	svgResponse(c, chart.BarSVG(chart.Bars(values, labels, analyticsBox)))
}

func (s *Server) lineChart(c *gin.Context) {
	values, labels, err := seriesQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	svgResponse(c, chart.LineSVG(chart.Line(values, labels, analyticsBox, analyticsPadding), false))
}

func (s *Server) pieChart(c *gin.Context) {
	a := dashboard.CourseAnalytics()
	present, absent := a.Present, a.Absent
	var err error
	if raw := c.Query("present"); raw != "" {
		if present, err = strconv.Atoi(raw); err != nil || present < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "present must be a non-negative integer"})
			return
		}
	}
	if raw := c.Query("absent"); raw != "" {
		if absent, err = strconv.Atoi(raw); err != nil || absent < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "absent must be a non-negative integer"})
			return
		}
	}
	svgResponse(c, chart.PieSVG(chart.Pie(present, absent, pieCenter, pieRadius)))
}

func (s *Server) weeklyChart(c *gin.Context) {
	days := dashboard.DailyPercentages(dashboard.Report())
	values := make([]float64, len(days))
	labels := make([]string, len(days))
	for i, d := range days {
		values[i] = float64(d.Percentage)
		labels[i] = d.Day
	}
	svgResponse(c, chart.LineSVG(chart.Line(values, labels, weeklyBox, weeklyPadding), true))
}
