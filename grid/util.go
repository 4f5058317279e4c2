package grid

import (
	"os"
	"path"
	"strconv"

	"github.com/zeu5/crm/types"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// GridDataSet counts visits per cell, Visits[y][x]
type GridDataSet struct {
	Visits map[int]map[int]int
	Height int
	Width  int
}

var _ plotter.GridXYZ = &GridDataSet{}

func (g *GridDataSet) Dims() (int, int) {
	return g.Width, g.Height
}

func (g *GridDataSet) Z(c, r int) float64 {
	// row 0 is drawn at the bottom, the room's top row is y = 0
	return float64(g.Visits[g.Height-1-r][c])
}

func (g *GridDataSet) X(c int) float64 {
	return float64(c)
}

func (g *GridDataSet) Y(r int) float64 {
	return float64(r)
}

func (g *GridDataSet) Min() float64 {
	return 0.0
}

func (g *GridDataSet) Max() float64 {
	max := 0
	for _, vals := range g.Visits {
		for _, count := range vals {
			if count > max {
				max = count
			}
		}
	}
	return float64(max)
}

func (g *GridDataSet) add(y, x, n int) {
	if _, ok := g.Visits[y]; !ok {
		g.Visits[y] = make(map[int]int)
	}
	g.Visits[y][x] += n
}

// MergeGridDatasets sums the visits of several datasets
func MergeGridDatasets(dataSets []types.DataSet) *GridDataSet {
	merged := &GridDataSet{Visits: make(map[int]map[int]int)}
	for _, d := range dataSets {
		dGrid := d.(*GridDataSet)
		if dGrid.Height > merged.Height {
			merged.Height = dGrid.Height
		}
		if dGrid.Width > merged.Width {
			merged.Width = dGrid.Width
		}
		for y, vals := range dGrid.Visits {
			for x, visits := range vals {
				merged.add(y, x, visits)
			}
		}
	}
	return merged
}

// GridCoverage counts the cells the agent stood on during training
type GridCoverage struct {
	size    int
	dataSet *GridDataSet
}

var _ types.Analyzer = &GridCoverage{}

func NewGridCoverage(size int) *GridCoverage {
	g := &GridCoverage{size: size}
	g.Reset()
	return g
}

func (g *GridCoverage) Analyze(_ int, _ string, _ types.EpisodeStats, trace *types.Trace) {
	for i := 0; i < trace.Len(); i++ {
		state, _, _, _, _ := trace.Get(i)
		obs, err := ParseKey(state.Key)
		if err != nil {
			continue
		}
		g.dataSet.add(obs.Y, obs.X, 1)
	}
}

func (g *GridCoverage) DataSet() types.DataSet {
	return MergeGridDatasets([]types.DataSet{g.dataSet})
}

func (g *GridCoverage) Reset() {
	g.dataSet = &GridDataSet{
		Visits: make(map[int]map[int]int),
		Height: g.size,
		Width:  g.size,
	}
}

// HeatMapComparator draws one visit heat map per experiment and run
func HeatMapComparator(figPath string) types.Comparator {
	return func(run int, names []string, ds []types.DataSet) error {
		if err := os.MkdirAll(figPath, os.ModePerm); err != nil {
			return err
		}
		for i, name := range names {
			dataSet := ds[i].(*GridDataSet)
			p := plot.New()
			p.Title.Text = name
			p.Add(plotter.NewHeatMap(dataSet, palette.Heat(20, 1)))
			if err := p.Save(4*vg.Inch, 4*vg.Inch, path.Join(figPath, strconv.Itoa(run)+"_"+name+"_visits.png")); err != nil {
				return err
			}
		}
		return nil
	}
}
