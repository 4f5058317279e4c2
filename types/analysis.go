package types

import (
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/zeu5/crm/util"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// StateCoverage counts the distinct composite states visited, cumulatively
// after every episode
type StateCoverage struct {
	seen   map[string]bool
	counts []int
}

var _ Analyzer = &StateCoverage{}

func NewStateCoverage() *StateCoverage {
	return &StateCoverage{
		seen:   make(map[string]bool),
		counts: make([]int, 0),
	}
}

func (c *StateCoverage) Analyze(_ int, _ string, _ EpisodeStats, trace *Trace) {
	for j := 0; j < trace.Len(); j++ {
		s, _, _, next, _ := trace.Get(j)
		c.seen[s.Hash()] = true
		c.seen[next.Hash()] = true
	}
	c.counts = append(c.counts, len(c.seen))
}

func (c *StateCoverage) DataSet() DataSet {
	out := make([]int, len(c.counts))
	copy(out, c.counts)
	return out
}

func (c *StateCoverage) Reset() {
	c.seen = make(map[string]bool)
	c.counts = make([]int, 0)
}

// MachineStateVisits counts, per RM state, the steps spent in it
type MachineStateVisits struct {
	visits map[int]int
}

var _ Analyzer = &MachineStateVisits{}

func NewMachineStateVisits() *MachineStateVisits {
	return &MachineStateVisits{visits: make(map[int]int)}
}

func (m *MachineStateVisits) Analyze(_ int, _ string, _ EpisodeStats, trace *Trace) {
	for j := 0; j < trace.Len(); j++ {
		s, _, _, _, _ := trace.Get(j)
		m.visits[s.U] += 1
	}
}

func (m *MachineStateVisits) DataSet() DataSet {
	out := make(map[int]int, len(m.visits))
	for u, v := range m.visits {
		out[u] = v
	}
	return out
}

func (m *MachineStateVisits) Reset() {
	m.visits = make(map[int]int)
}

// CoveragePlotter draws the StateCoverage datasets of one run
func CoveragePlotter(plotPath string) Comparator {
	return func(run int, names []string, ds []DataSet) error {
		if err := os.MkdirAll(plotPath, os.ModePerm); err != nil {
			return err
		}
		p := plot.New()
		p.Title.Text = "Comparison"
		p.X.Label.Text = "Episode"
		p.Y.Label.Text = "States covered"
		for i := 0; i < len(names); i++ {
			counts := ds[i].([]int)
			points := make(plotter.XYs, len(counts))
			for j, v := range counts {
				points[j] = plotter.XY{X: float64(j), Y: float64(v)}
			}
			line, err := plotter.NewLine(points)
			if err != nil {
				return err
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
			p.Legend.Add(names[i], line)
		}
		return p.Save(8*vg.Inch, 8*vg.Inch, path.Join(plotPath, strconv.Itoa(run)+"_coverage.png"))
	}
}

// LogMachineStateVisits logs the MachineStateVisits datasets of one run
func LogMachineStateVisits(logger logrus.FieldLogger) Comparator {
	return func(run int, names []string, ds []DataSet) error {
		for i, name := range names {
			visits := ds[i].(map[int]int)
			fields := logrus.Fields{"run": run, "experiment": name}
			for u, v := range visits {
				fields["u"+strconv.Itoa(u)] = v
			}
			logger.WithFields(fields).Info("machine state visits")
		}
		return nil
	}
}

// MovingAverage smooths xs with a trailing window. Windows below 2 return a copy.
func MovingAverage(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	if window < 2 {
		copy(out, xs)
		return out
	}
	sum := 0.0
	for i, x := range xs {
		sum += x
		if i >= window {
			sum -= xs[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

func curvePlot(title, yLabel string, names []string, series [][]float64, window int) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Episode"
	p.Y.Label.Text = yLabel
	for i, name := range names {
		ys := MovingAverage(series[i], window)
		points := make(plotter.XYs, len(ys))
		for j, y := range ys {
			points[j] = plotter.XY{X: float64(j + 1), Y: y}
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	p.Legend.Top = true
	return p, nil
}

// TrainingCurvesPlotter draws the averaged TD error, reward and episode
// length curves stacked in one image
func TrainingCurvesPlotter(plotFile string, window int) Summarizer {
	return func(names []string, avgs []*Avg) error {
		errs := make([][]float64, len(avgs))
		rewards := make([][]float64, len(avgs))
		steps := make([][]float64, len(avgs))
		for i, a := range avgs {
			errs[i] = a.Errors
			rewards[i] = a.Rewards
			steps[i] = a.Steps
		}
		panels := []struct {
			title, label string
			series       [][]float64
		}{
			{"TD error", "sum |TD error|", errs},
			{"Reward", "total reward", rewards},
			{"Steps", "episode length", steps},
		}

		plots := make([][]*plot.Plot, len(panels))
		for i, panel := range panels {
			p, err := curvePlot(panel.title, panel.label, names, panel.series, window)
			if err != nil {
				return err
			}
			plots[i] = []*plot.Plot{p}
		}

		img := vgimg.New(8*vg.Inch, 12*vg.Inch)
		dc := draw.New(img)
		tiles := draw.Tiles{
			Rows: len(plots),
			Cols: 1,
			PadX: vg.Millimeter,
			PadY: 4 * vg.Millimeter,
		}
		canvases := plot.Align(plots, tiles, dc)
		for i := range plots {
			plots[i][0].Draw(canvases[i][0])
		}

		if err := os.MkdirAll(path.Dir(plotFile), os.ModePerm); err != nil {
			return err
		}
		f, err := os.Create(plotFile)
		if err != nil {
			return err
		}
		png := vgimg.PngCanvas{Canvas: img}
		if _, err := png.WriteTo(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
}

// PrintTestSteps logs the mean greedy evaluation length per experiment
func PrintTestSteps(logger logrus.FieldLogger) Summarizer {
	return func(names []string, avgs []*Avg) error {
		for i, name := range names {
			logger.WithFields(logrus.Fields{
				"experiment": name,
				"runs":       avgs[i].Runs,
				"test_steps": fmt.Sprintf("%.2f ± %.2f", avgs[i].TestSteps, avgs[i].TestStepsStd),
			}).Info("evaluation")
		}
		return nil
	}
}

// SaveAverages writes each experiment's averaged curves as JSON
func SaveAverages(dir string) Summarizer {
	return func(names []string, avgs []*Avg) error {
		for i, name := range names {
			if err := util.WriteJSON(path.Join(dir, name+"_avg.json"), avgs[i]); err != nil {
				return err
			}
		}
		return nil
	}
}
