// Package chart renders run diagnostics as PNG files: time series of the
// wind solution and the flight state, and the velocity circle fitted to the
// final window.
package chart

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	seriesWidth  = 14 * vg.Inch
	seriesHeight = 5 * vg.Inch
	circleSize   = 7 * vg.Inch
)

// Files lists the charts written by Render. A field is empty when there was
// nothing to draw.
type Files struct {
	Wind        string
	GroundSpeed string
	Altitude    string
	Track       string
	Circle      string
}

// Render writes every chart into dir, creating it if needed.
func Render(dir string, samples []domain.SensorSample, observations []domain.Observation) (Files, error) {
	var files Files
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return files, fmt.Errorf("create chart dir: %w", err)
	}

	save := func(p *plot.Plot, w, h vg.Length, name string, dst *string) error {
		path := filepath.Join(dir, name)
		if err := p.Save(w, h, path); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		*dst = path
		return nil
	}

	if len(samples) > 0 {
		p, err := GroundSpeed(samples)
		if err != nil {
			return files, err
		}
		if err := save(p, seriesWidth, seriesHeight, "ground_speed.png", &files.GroundSpeed); err != nil {
			return files, err
		}

		if p, err = Altitude(samples); err != nil {
			return files, err
		}
		if err := save(p, seriesWidth, seriesHeight, "altitude.png", &files.Altitude); err != nil {
			return files, err
		}

		if p, err = Track(samples); err != nil {
			return files, err
		}
		if err := save(p, seriesWidth, seriesHeight, "track.png", &files.Track); err != nil {
			return files, err
		}
	}

	if len(observations) > 0 {
		p, err := Wind(observations)
		if err != nil {
			return files, err
		}
		if err := save(p, seriesWidth, seriesHeight, "wind.png", &files.Wind); err != nil {
			return files, err
		}

		if p, err = VelocityCircle(observations[len(observations)-1]); err != nil {
			return files, err
		}
		if err := save(p, circleSize, circleSize, "velocity_circle.png", &files.Circle); err != nil {
			return files, err
		}
	}
	return files, nil
}

// Wind plots wind speed and fitted airspeed against target time.
func Wind(observations []domain.Observation) (*plot.Plot, error) {
	wind := make(plotter.XYs, len(observations))
	air := make(plotter.XYs, len(observations))
	for i, o := range observations {
		wind[i] = plotter.XY{X: o.Time.Seconds(), Y: o.WindSpeed}
		air[i] = plotter.XY{X: o.Time.Seconds(), Y: o.Solution.Airspeed}
	}

	p := newSeries("Wind estimate", "Speed (m/s)")
	if err := plotutil.AddLines(p, "Wind speed", wind, "Airspeed", air); err != nil {
		return nil, fmt.Errorf("wind lines: %w", err)
	}
	return p, nil
}

// GroundSpeed plots sampled ground speed against time.
func GroundSpeed(samples []domain.SensorSample) (*plot.Plot, error) {
	return sampleSeries(samples, "Ground speed", "Speed (m/s)", func(s domain.SensorSample) float64 { return s.GroundSpeed })
}

// Altitude plots sampled altitude against time.
func Altitude(samples []domain.SensorSample) (*plot.Plot, error) {
	return sampleSeries(samples, "Altitude", "Altitude (m)", func(s domain.SensorSample) float64 { return s.Alt })
}

// Track plots the ground track against time. The line is broken where the
// track wraps through north so a turn from 350° to 10° is not drawn as a
// sweep across the whole axis.
func Track(samples []domain.SensorSample) (*plot.Plot, error) {
	p := newSeries("Ground track", "Track (°)")
	p.Y.Min, p.Y.Max = 0, 360

	c := plotutil.Color(0)
	for _, seg := range trackSegments(samples) {
		line, err := plotter.NewLine(seg)
		if err != nil {
			return nil, fmt.Errorf("track line: %w", err)
		}
		line.Color = c
		line.Width = vg.Points(1)
		p.Add(line)
	}
	return p, nil
}

// trackSegments splits the track wherever consecutive samples differ by
// more than half a turn. Angles are normalized to [0, 360).
func trackSegments(samples []domain.SensorSample) []plotter.XYs {
	var (
		segs []plotter.XYs
		cur  plotter.XYs
	)
	for i, s := range samples {
		y := math.Mod(s.TrackAngle, 360)
		if y < 0 {
			y += 360
		}
		if i > 0 && math.Abs(y-cur[len(cur)-1].Y) > 180 {
			segs = append(segs, cur)
			cur = nil
		}
		cur = append(cur, plotter.XY{X: s.Time.Seconds(), Y: y})
	}
	if len(cur) > 0 {
		segs = append(segs, cur)
	}
	return segs
}

// VelocityCircle plots a window's ground velocities with the fitted circle:
// centered on the wind vector with the airspeed as radius.
func VelocityCircle(o domain.Observation) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Velocity circle at %.0fs: wind %.1f m/s, airspeed %.1f m/s",
		o.Time.Seconds(), o.WindSpeed, o.Solution.Airspeed)
	p.X.Label.Text = "East (m/s)"
	p.Y.Label.Text = "North (m/s)"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(o.Velocities))
	for i, v := range o.Velocities {
		pts[i] = plotter.XY{X: v.East, Y: v.North}
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("velocity points: %w", err)
	}
	scatter.Color = plotutil.Color(0)
	p.Add(scatter)
	p.Legend.Add("Ground velocity", scatter)

	circle, err := plotter.NewLine(circlePoints(o.Solution, 120))
	if err != nil {
		return nil, fmt.Errorf("fitted circle: %w", err)
	}
	circle.Color = plotutil.Color(1)
	circle.Width = vg.Points(1.5)
	p.Add(circle)
	p.Legend.Add("Fitted airspeed", circle)

	wind, err := plotter.NewLine(plotter.XYs{{}, {X: o.Solution.WindEast, Y: o.Solution.WindNorth}})
	if err != nil {
		return nil, fmt.Errorf("wind vector: %w", err)
	}
	wind.Color = plotutil.Color(2)
	wind.Width = vg.Points(2)
	p.Add(wind)
	p.Legend.Add("Wind", wind)

	// Equal axis ranges keep the circle round.
	r := math.Abs(o.Solution.Airspeed)
	for _, pt := range pts {
		r = max(r, math.Abs(pt.X), math.Abs(pt.Y))
	}
	r += math.Hypot(o.Solution.WindEast, o.Solution.WindNorth) + 1
	p.X.Min, p.X.Max = -r, r
	p.Y.Min, p.Y.Max = -r, r

	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// circlePoints returns n+1 points on the fitted circle, closing the loop.
func circlePoints(s domain.WindSolution, n int) plotter.XYs {
	pts := make(plotter.XYs, n+1)
	for i := range pts {
		theta := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = plotter.XY{
			X: s.WindEast + s.Airspeed*math.Sin(theta),
			Y: s.WindNorth + s.Airspeed*math.Cos(theta),
		}
	}
	return pts
}

func sampleSeries(samples []domain.SensorSample, title, ylabel string, value func(domain.SensorSample) float64) (*plot.Plot, error) {
	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i] = plotter.XY{X: s.Time.Seconds(), Y: value(s)}
	}

	p := newSeries(title, ylabel)
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("%s line: %w", title, err)
	}
	line.Color = plotutil.Color(0)
	line.Width = vg.Points(1)
	p.Add(line)
	return p, nil
}

func newSeries(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}
