// Package geojson renders a run's observations as a GeoJSON FeatureCollection:
// one Point per observation at its context sample, followed by a LineString
// through all of them.
package geojson

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection builds the collection for one run. The track feature is
// omitted when there are fewer than two observations.
func FeatureCollection(run domain.Run, observations []domain.Observation) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	track := make(orb.LineString, 0, len(observations))
	for _, o := range observations {
		p := orb.Point{o.Sample.Lng, o.Sample.Lat}
		track = append(track, p)

		f := geojson.NewFeature(p)
		f.Properties["run_id"] = run.ID
		f.Properties["time_s"] = o.Time.Seconds()
		f.Properties["alt"] = o.Sample.Alt
		f.Properties["airspeed"] = o.Solution.Airspeed
		f.Properties["wind_east"] = o.Solution.WindEast
		f.Properties["wind_north"] = o.Solution.WindNorth
		f.Properties["wind_speed"] = o.WindSpeed
		f.Properties["wind_direction"] = o.WindDirection
		f.Properties["wind_from"] = domain.WindFromDirection(o.WindDirection)
		f.Properties["converged"] = o.Converged
		fc.Append(f)
	}

	if len(track) >= 2 {
		f := geojson.NewFeature(track)
		f.Properties["run_id"] = run.ID
		f.Properties["source"] = run.Source
		f.Properties["observations"] = len(observations)
		f.Properties["length_m"] = geo.Length(track)
		fc.Append(f)
	}
	return fc
}

// Encode writes the collection for run to w.
func Encode(w io.Writer, run domain.Run, observations []domain.Observation) error {
	if err := json.NewEncoder(w).Encode(FeatureCollection(run, observations)); err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	return nil
}

// WriteFile writes the collection for run to path, replacing any existing file.
func WriteFile(path string, run domain.Run, observations []domain.Observation) error {
	data, err := json.MarshalIndent(FeatureCollection(run, observations), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal geojson: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
