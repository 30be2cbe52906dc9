package sim

import (
	"fmt"
	"image/color"

	localize "github.com/milosgajdos/go-localize"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// New2DPlot creates new plot of the localization session from the following data sources:
// truth:  ground truth positions of the agent
// filter: filter position estimates
// m:      map of landmarks
// Both truth and filter store x and y coordinates in the first two columns of their rows.
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * either of the supplied data matrices is nil
// * either of the supplied data matrices does not have at least 2 columns
// * gonum plot fails to be created
func New2DPlot(truth, filter *mat.Dense, m localize.Map) (*plot.Plot, error) {
	if truth == nil || filter == nil {
		return nil, fmt.Errorf("invalid data supplied")
	}

	_, ct := truth.Dims()
	_, cf := filter.Dims()

	if ct < 2 || cf < 2 {
		return nil, fmt.Errorf("invalid data dimensions")
	}

	p := plot.New()

	p.Title.Text = "Localization"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	if m != nil && m.Len() > 0 {
		lmScatter, err := plotter.NewScatter(landmarkPoints(m.Landmarks()))
		if err != nil {
			return nil, fmt.Errorf("failed to create landmark scatter: %v", err)
		}
		lmScatter.GlyphStyle.Color = color.RGBA{G: 128, A: 255}
		lmScatter.Shape = draw.PyramidGlyph{}
		lmScatter.GlyphStyle.Radius = vg.Points(4)

		p.Add(lmScatter)
		p.Legend.Add("landmarks", lmScatter)
	}

	// Make a line plotter for ground truth trajectory
	truthLine, err := plotter.NewLine(makePoints(truth))
	if err != nil {
		return nil, fmt.Errorf("failed to create truth line: %v", err)
	}
	truthLine.LineStyle.Color = color.RGBA{R: 255, B: 128, A: 255}
	truthLine.LineStyle.Width = vg.Points(1)

	p.Add(truthLine)
	p.Legend.Add("truth", truthLine)

	// Make a scatter plotter for filter data
	filterScatter, err := plotter.NewScatter(makePoints(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to create filter scatter: %v", err)
	}
	filterScatter.GlyphStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
	filterScatter.Shape = draw.CrossGlyph{}
	filterScatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(filterScatter)
	p.Legend.Add("filtered", filterScatter)

	return p, nil
}

func makePoints(m *mat.Dense) plotter.XYs {
	r, _ := m.Dims()
	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = m.At(i, 0)
		pts[i].Y = m.At(i, 1)
	}

	return pts
}

func landmarkPoints(lms []localize.Landmark) plotter.XYs {
	pts := make(plotter.XYs, len(lms))
	for i, l := range lms {
		pts[i].X = l.X
		pts[i].Y = l.Y
	}

	return pts
}
