package report

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/fogleman/gg"

	"github.com/nicktill/damwatch/pkg/config"
)

var palette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

const (
	marginLeft   = 60.0
	marginRight  = 150.0
	marginTop    = 40.0
	marginBottom = 50.0
	gridStep     = 25.0
)

// ChartSink renders the matrix as a grouped bar chart PNG: one group per
// month, one bar per node.
type ChartSink struct {
	W      io.Writer
	Width  int
	Height int
	Title  string
}

// Emit implements Sink.
func (s ChartSink) Emit(_ context.Context, r *Report) error {
	dc := RenderChart(r.Matrix, s.Width, s.Height, s.Title)
	if err := dc.EncodePNG(s.W); err != nil {
		return fmt.Errorf("failed to encode chart: %w", err)
	}
	return nil
}

// RenderChart draws the matrix onto a new canvas. Zero sizes fall back to
// the configured defaults.
func RenderChart(m *Matrix, width, height int, title string) *gg.Context {
	if width <= 0 {
		width = config.ChartWidth
	}
	if height <= 0 {
		height = config.ChartHeight
	}
	if title == "" {
		title = "Monthly data attendance per node (%)"
	}

	dc := gg.NewContext(width, height)
	dc.SetHexColor("#ffffff")
	dc.Clear()

	plotW := float64(width) - marginLeft - marginRight
	plotH := float64(height) - marginTop - marginBottom
	yMax := math.Max(100, math.Ceil(m.Max()/gridStep)*gridStep)
	y := func(v float64) float64 {
		return marginTop + plotH - v/yMax*plotH
	}

	dc.SetHexColor("#222222")
	dc.DrawStringAnchored(title, float64(width)/2, marginTop/2, 0.5, 0.5)

	// Grid and y axis labels.
	dc.SetLineWidth(1)
	for v := 0.0; v <= yMax; v += gridStep {
		dc.SetHexColor("#dddddd")
		dc.DrawLine(marginLeft, y(v), marginLeft+plotW, y(v))
		dc.Stroke()
		dc.SetHexColor("#444444")
		dc.DrawStringAnchored(fmt.Sprintf("%.0f", v), marginLeft-8, y(v), 1, 0.5)
	}

	if m.Empty() {
		dc.SetHexColor("#888888")
		dc.DrawStringAnchored("no data available", marginLeft+plotW/2, marginTop+plotH/2, 0.5, 0.5)
		return dc
	}

	groupW := plotW / float64(len(m.Months))
	barW := groupW * 0.8 / float64(len(m.Nodes))
	for gi, month := range m.Months {
		groupX := marginLeft + float64(gi)*groupW + groupW*0.1
		for ni, node := range m.Nodes {
			v, ok := m.Cell(month, node)
			if !ok {
				continue
			}
			dc.SetHexColor(palette[ni%len(palette)])
			dc.DrawRectangle(groupX+float64(ni)*barW, y(v), barW, y(0)-y(v))
			dc.Fill()
		}
		dc.SetHexColor("#444444")
		dc.DrawStringAnchored(month.String(), marginLeft+float64(gi)*groupW+groupW/2, y(0)+16, 0.5, 0.5)
	}

	// Legend.
	lx := marginLeft + plotW + 20
	for ni, node := range m.Nodes {
		ly := marginTop + float64(ni)*18
		dc.SetHexColor(palette[ni%len(palette)])
		dc.DrawRectangle(lx, ly, 12, 12)
		dc.Fill()
		dc.SetHexColor("#222222")
		dc.DrawStringAnchored(node, lx+18, ly+6, 0, 0.5)
	}

	dc.SetHexColor("#444444")
	dc.DrawLine(marginLeft, y(0), marginLeft+plotW, y(0))
	dc.Stroke()
	return dc
}
