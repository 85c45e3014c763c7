package report

import (
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	u "github.com/moratsam/opencl-vector-flow/util"
)

// grid presents an image stored line major (line*nlinesamples + sample) as
// columns of scan lines and rows of depth samples, the first sample on top.
type grid struct {
	values []float64
	nlines int
	nls    int
}

func (g grid) Dims() (c, r int)   { return g.nlines, g.nls }
func (g grid) Z(c, r int) float64 { return g.values[c*g.nls+g.nls-1-r] }
func (g grid) X(c int) float64    { return float64(c) }
func (g grid) Y(r int) float64    { return float64(r - g.nls + 1) }

// SaveHeatMap renders one output image to a PNG file.
func SaveHeatMap(fs afero.Fs, path, title string, img []byte, nlines, nlinesamples int) error {
	if nlines*nlinesamples != len(img) || len(img) == 0 {
		return xerrors.Errorf("image of %d bytes is not %dx%d", len(img), nlines, nlinesamples)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "line"
	p.Y.Label.Text = "sample"

	h := plotter.NewHeatMap(grid{Float64s(img), nlines, nlinesamples}, palette.Heat(64, 1))
	h.Min, h.Max = -128, 127
	p.Add(h)

	wt, err := p.WriterTo(6*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return u.WrapErr("render heat map", err)
	}
	f, err := fs.Create(path)
	if err != nil {
		return u.WrapErr("create "+path, err)
	}
	defer f.Close()
	if _, err := wt.WriteTo(f); err != nil {
		return u.WrapErr("write "+path, err)
	}
	return nil
}
