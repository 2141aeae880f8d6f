// Command genflight writes a synthetic flight log with a known wind and
// airspeed. The output is the CSV layout windest reads, so an estimation run
// over it should recover the parameters given here.
//
// Usage:
//
//	go run ./cmd/genflight -out testdata/thermal.csv
//	go run ./cmd/genflight -out gusty.csv -wind-east -6 -wind-north 2 -speed-noise 0.3 -track-noise 1.5
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"github.com/couchcryptid/wind-estimation-service/internal/synth"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	f := synth.Thermalling()

	out := flag.String("out", "", "output CSV path (stdout when empty)")
	flag.Float64Var(&f.Airspeed, "airspeed", f.Airspeed, "true airspeed in m/s")
	flag.Float64Var(&f.WindEast, "wind-east", f.WindEast, "wind east component in m/s")
	flag.Float64Var(&f.WindNorth, "wind-north", f.WindNorth, "wind north component in m/s")
	flag.DurationVar(&f.Interval, "interval", f.Interval, "time between samples")
	flag.Float64Var(&f.SpeedNoise, "speed-noise", 0, "ground speed noise standard deviation in m/s")
	flag.Float64Var(&f.TrackNoise, "track-noise", 0, "track noise standard deviation in degrees")
	flag.Uint64Var(&f.Seed, "seed", 1, "noise seed")
	flag.Float64Var(&f.StartLat, "lat", f.StartLat, "start latitude")
	flag.Float64Var(&f.StartLng, "lng", f.StartLng, "start longitude")
	flag.Float64Var(&f.StartAlt, "alt", f.StartAlt, "start altitude in m")
	flag.Parse()

	if f.Airspeed <= 0 || f.Interval <= 0 {
		flag.Usage()
		return fmt.Errorf("airspeed and interval must be positive")
	}

	samples := f.Samples()

	w := os.Stdout
	if *out != "" {
		file, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		w = file
	}

	bw := bufio.NewWriter(w)
	if err := synth.WriteCSV(bw, samples); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	if *out != "" {
		windDir := math.Atan2(f.WindEast, f.WindNorth) * 180 / math.Pi
		log.Printf("wrote %d samples to %s", len(samples), *out)
		log.Printf("wind %.2f m/s from %.0f°, airspeed %.2f m/s",
			math.Hypot(f.WindEast, f.WindNorth), domain.WindFromDirection(windDir), f.Airspeed)
	}
	return nil
}
