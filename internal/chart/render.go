package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgsvg"
)

// Format is an output image encoding.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// ContentType returns the MIME type of the encoding.
func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// RenderOptions sizes and encodes a rendered figure.
type RenderOptions struct {
	Format Format
	// Width and Height in inches, used when the figure does not set its own.
	Width  float64
	Height float64
	DPI    int
}

// DefaultRenderOptions matches matplotlib's default 6.4x4.8 inch canvas.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{Format: PNG, Width: 6.4, Height: 4.8, DPI: 100}
}

// Image is an encoded figure.
type Image struct {
	Format Format
	Data   []byte
}

// ContentType returns the MIME type of the image.
func (i Image) ContentType() string { return i.Format.ContentType() }

// Render draws every axes of f into one image.
func (f *Figure) Render(opt RenderOptions) (Image, error) {
	if f == nil {
		return Image{}, errors.New("render: nil figure")
	}
	def := DefaultRenderOptions()
	if opt.Format == "" {
		opt.Format = def.Format
	}
	if opt.DPI <= 0 {
		opt.DPI = def.DPI
	}
	wIn, hIn := f.Width, f.Height
	if wIn <= 0 {
		wIn = opt.Width
	}
	if hIn <= 0 {
		hIn = opt.Height
	}
	if wIn <= 0 || hIn <= 0 {
		wIn, hIn = def.Width, def.Height
	}
	w, h := vg.Length(wIn)*vg.Inch, vg.Length(hIn)*vg.Inch

	rows, cols := f.Rows, f.Cols
	if rows < 1 || cols < 1 || rows*cols < len(f.Axes) {
		rows, cols = 1, len(f.Axes)
	}
	plots := make([][]*plot.Plot, rows)
	for r := range plots {
		plots[r] = make([]*plot.Plot, cols)
	}
	for i, ax := range f.Axes {
		p, err := ax.plot()
		if err != nil {
			return Image{}, fmt.Errorf("render axes %d: %w", i, err)
		}
		plots[i/cols][i%cols] = p
	}
	for r := range plots {
		for c := range plots[r] {
			if plots[r][c] == nil {
				plots[r][c] = plot.New()
			}
		}
	}

	var canvas vg.CanvasWriterTo
	switch opt.Format {
	case SVG:
		canvas = vgsvg.New(w, h)
	case PNG:
		canvas = vgimg.PngCanvas{Canvas: vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(opt.DPI))}
	default:
		return Image{}, fmt.Errorf("render: unsupported format %q", opt.Format)
	}
	dc := draw.New(canvas)
	dc.SetColor(color.White)
	dc.Fill(dc.Rectangle.Path())

	if f.Title != "" {
		sty := plot.New().Title.TextStyle
		sty.XAlign = text.XCenter
		sty.YAlign = text.YTop
		top := vg.Point{X: (dc.Min.X + dc.Max.X) / 2, Y: dc.Max.Y - vg.Points(4)}
		dc.FillText(sty, top, f.Title)
		dc.Max.Y -= sty.Height(f.Title) + vg.Points(8)
	}

	tiles := draw.Tiles{Rows: rows, Cols: cols, PadX: vg.Points(12), PadY: vg.Points(12)}
	canvases := plot.Align(plots, tiles, dc)
	for r := range plots {
		for c := range plots[r] {
			plots[r][c].Draw(canvases[r][c])
		}
	}

	var buf bytes.Buffer
	if _, err := canvas.WriteTo(&buf); err != nil {
		return Image{}, fmt.Errorf("encode %s: %w", opt.Format, err)
	}
	return Image{Format: opt.Format, Data: buf.Bytes()}, nil
}

func (a *Axes) plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = a.Title
	p.X.Label.Text = a.XLabel
	p.Y.Label.Text = a.YLabel
	if a.Grid {
		p.Add(plotter.NewGrid())
	}

	var bars, hbars []*Series
	for _, s := range a.Series {
		switch s.Kind {
		case Bar:
			bars = append(bars, s)
		case BarH:
			hbars = append(hbars, s)
		}
	}
	if len(bars) > 0 {
		if err := addBars(p, bars, false, a.Legend); err != nil {
			return nil, err
		}
	}
	if len(hbars) > 0 {
		if err := addBars(p, hbars, true, a.Legend); err != nil {
			return nil, err
		}
	}

	var nominal []string
	for i, s := range a.Series {
		c := resolveColor(s.Color, i)
		switch s.Kind {
		case Bar, BarH:
			continue
		case Scatter, Line:
			xys := pairs(s.X, s.Y)
			if len(xys) == 0 {
				continue
			}
			if len(s.Categories) > 0 && len(bars) == 0 {
				nominal = s.Categories
			}
			if s.Kind == Scatter {
				sc, err := plotter.NewScatter(xys)
				if err != nil {
					return nil, fmt.Errorf("scatter: %w", err)
				}
				sc.GlyphStyle.Color = c
				sc.GlyphStyle.Radius = vg.Points(3)
				sc.GlyphStyle.Shape = draw.CircleGlyph{}
				p.Add(sc)
				if a.Legend && s.Label != "" {
					p.Legend.Add(s.Label, sc)
				}
				continue
			}
			l, err := plotter.NewLine(xys)
			if err != nil {
				return nil, fmt.Errorf("line: %w", err)
			}
			l.LineStyle.Color = c
			l.LineStyle.Width = vg.Points(1.5)
			p.Add(l)
			if a.Legend && s.Label != "" {
				p.Legend.Add(s.Label, l)
			}
		case Hist:
			vals := finite(s.Y)
			if len(vals) == 0 {
				continue
			}
			if constant(vals) {
				// A single distinct value has no bin range; draw its count as one bar.
				one := &Series{Kind: Bar, Label: s.Label, Color: s.Color, Categories: []string{formatTick(vals[0])}, Y: []float64{float64(len(vals))}}
				if err := addBars(p, []*Series{one}, false, a.Legend); err != nil {
					return nil, err
				}
				continue
			}
			bins := s.Bins
			if bins <= 0 {
				bins = 10
			}
			hist, err := plotter.NewHist(plotter.Values(vals), bins)
			if err != nil {
				return nil, fmt.Errorf("hist: %w", err)
			}
			hist.FillColor = c
			p.Add(hist)
			if a.Legend && s.Label != "" {
				p.Legend.Add(s.Label, hist)
			}
		case Box:
			for j, g := range s.Groups {
				vals := finite(g)
				if len(vals) == 0 {
					continue
				}
				b, err := plotter.NewBoxPlot(vg.Points(24), float64(j), plotter.Values(vals))
				if err != nil {
					return nil, fmt.Errorf("boxplot: %w", err)
				}
				b.FillColor = c
				p.Add(b)
			}
			if len(s.Categories) > 0 {
				nominal = s.Categories
			}
		default:
			return nil, fmt.Errorf("unknown series kind %q", s.Kind)
		}
	}
	if nominal != nil {
		p.NominalX(nominal...)
	}
	if a.Legend {
		p.Legend.Top = true
	}
	return p, nil
}

// addBars draws every bar series of one orientation side by side over the
// union of their categories.
func addBars(p *plot.Plot, series []*Series, horizontal, legend bool) error {
	var cats []string
	pos := map[string]int{}
	for _, s := range series {
		for _, c := range s.Categories {
			if _, ok := pos[c]; !ok {
				pos[c] = len(cats)
				cats = append(cats, c)
			}
		}
	}
	if len(cats) == 0 {
		return nil
	}
	width := vg.Points(math.Max(4, math.Min(40, 320/float64(len(cats)*len(series)))))
	for i, s := range series {
		vals := make(plotter.Values, len(cats))
		for j, c := range s.Categories {
			if j < len(s.Y) && !math.IsNaN(s.Y[j]) && !math.IsInf(s.Y[j], 0) {
				vals[pos[c]] += s.Y[j]
			}
		}
		bc, err := plotter.NewBarChart(vals, width)
		if err != nil {
			return fmt.Errorf("bar: %w", err)
		}
		bc.Horizontal = horizontal
		bc.Color = resolveColor(s.Color, i)
		bc.LineStyle.Width = 0
		bc.Offset = vg.Length(float64(i)-float64(len(series)-1)/2) * width
		p.Add(bc)
		if legend && s.Label != "" {
			p.Legend.Add(s.Label, bc)
		}
	}
	if horizontal {
		p.NominalY(cats...)
	} else {
		p.NominalX(cats...)
	}
	return nil
}

func finite(vs []float64) []float64 {
	out := make([]float64, 0, len(vs))
	for _, v := range vs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func pairs(xs, ys []float64) plotter.XYs {
	n := min(len(xs), len(ys))
	out := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		x, y := xs[i], ys[i]
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			continue
		}
		out = append(out, plotter.XY{X: x, Y: y})
	}
	return out
}

func constant(vs []float64) bool {
	for _, v := range vs[1:] {
		if v != vs[0] {
			return false
		}
	}
	return true
}

func formatTick(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
