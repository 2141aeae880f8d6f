package synth

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/couchcryptid/wind-estimation-service/internal/domain"
)

// CSVHeader is the column layout written by WriteCSV.
var CSVHeader = []string{"time", "track_angle", "ground_speed", "lat", "lng", "alt"}

// WriteCSV writes samples as a flight log with a header row. Times are in
// seconds since the start of sampling.
func WriteCSV(w io.Writer, samples []domain.SensorSample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(CSVHeader))
	for _, s := range samples {
		record[0] = formatFloat(s.Time.Seconds())
		record[1] = formatFloat(s.TrackAngle)
		record[2] = formatFloat(s.GroundSpeed)
		record[3] = formatFloat(s.Lat)
		record[4] = formatFloat(s.Lng)
		record[5] = formatFloat(s.Alt)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write sample at %s: %w", s.Time, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
