// Package csvsource reads sensor samples from a CSV flight log.
//
// The first row is a header. Columns are matched by name, case-insensitively,
// so their order does not matter:
//
//	time, t, time_s               seconds since sampling start
//	track_angle, track, heading   degrees clockwise from north
//	ground_speed, speed, gs       meters per second
//	lat, latitude
//	lng, lon, long, longitude
//	alt, altitude                 meters
//
// When no header name is recognized the columns are taken positionally as
// [time,] track_angle, ground_speed, lat, lng, alt. In row-index mode the
// time column is not read; a sample's time is its data row position times
// the sample interval.
//
// Data rows that cannot be parsed are skipped with a warning. A missing or
// unusable header aborts the load.
package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"github.com/couchcryptid/wind-estimation-service/internal/observability"
)

// ErrMissingHeader means the input held no header row.
var ErrMissingHeader = errors.New("csv input has no header row")

// Options controls how sample times are assigned.
type Options struct {
	// RowIndexTime ignores any time column and stamps each data row with
	// its zero-based position times Interval.
	RowIndexTime bool
	Interval     time.Duration
}

// LoadReport counts the rows seen by the most recent load.
type LoadReport struct {
	Loaded    int
	Malformed int
}

// Source loads samples from a CSV file on disk.
// It implements pipeline.SampleSource.
type Source struct {
	path    string
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	report LoadReport
}

// New creates a Source for the file at path.
func New(path string, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Source {
	return &Source{path: path, opts: opts, logger: logger, metrics: metrics}
}

// Name returns the file path.
func (s *Source) Name() string { return s.path }

// LoadSamples reads and parses the whole file.
func (s *Source) LoadSamples(ctx context.Context) ([]domain.SensorSample, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	samples, report, err := Read(ctx, f, s.opts, s.logger, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.report = report
	s.mu.Unlock()
	s.logger.Info("samples loaded", "path", s.path, "loaded", report.Loaded, "malformed", report.Malformed)
	return samples, nil
}

// Report returns the counts from the most recent successful load.
func (s *Source) Report() LoadReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Read parses samples from r. Accepted samples are returned in file order
// and are always non-decreasing in time.
func Read(ctx context.Context, r io.Reader, opts Options, logger *slog.Logger, metrics *observability.Metrics) ([]domain.SensorSample, LoadReport, error) {
	var report LoadReport
	if opts.RowIndexTime && opts.Interval <= 0 {
		return nil, report, fmt.Errorf("row-index time needs a positive interval, got %s", opts.Interval)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, report, ErrMissingHeader
	}
	if err != nil {
		return nil, report, fmt.Errorf("read header: %w", err)
	}
	cols, err := mapColumns(header, !opts.RowIndexTime)
	if err != nil {
		return nil, report, err
	}

	var (
		samples []domain.SensorSample
		prev    = time.Duration(math.MinInt64)
	)
	for index := 0; ; index++ {
		if index%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, report, err
			}
		}

		row := index + 2
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		var sample domain.SensorSample
		var parseErr *csv.ParseError
		switch {
		case errors.As(err, &parseErr):
		case err != nil:
			return nil, report, fmt.Errorf("read row %d: %w", row, err)
		default:
			sample, err = cols.parse(record)
		}
		if err == nil && opts.RowIndexTime {
			sample.Time = time.Duration(index) * opts.Interval
		}
		if err == nil && sample.Time < prev {
			err = fmt.Errorf("time %s precedes previous sample at %s", sample.Time, prev)
		}
		if err != nil {
			malformed := &domain.MalformedSampleError{Row: row, Err: err}
			logger.Warn("skipping malformed sample", "row", row, "error", malformed.Err)
			metrics.SamplesMalformed.Inc()
			report.Malformed++
			continue
		}

		prev = sample.Time
		samples = append(samples, sample)
	}

	report.Loaded = len(samples)
	metrics.SamplesLoaded.Add(float64(report.Loaded))
	return samples, report, nil
}

const (
	colTime = iota
	colTrack
	colSpeed
	colLat
	colLng
	colAlt
	numCols
)

var columnNames = [numCols]string{"time", "track_angle", "ground_speed", "lat", "lng", "alt"}

var aliases = map[string]int{
	"time": colTime, "t": colTime, "time_s": colTime,
	"track_angle": colTrack, "track": colTrack, "heading": colTrack,
	"ground_speed": colSpeed, "speed": colSpeed, "gs": colSpeed,
	"lat": colLat, "latitude": colLat,
	"lng": colLng, "lon": colLng, "long": colLng, "longitude": colLng,
	"alt": colAlt, "altitude": colAlt,
}

// columns maps each sample field to a record index, or -1 when absent.
type columns [numCols]int

func mapColumns(header []string, needTime bool) (columns, error) {
	var cols columns
	for i := range cols {
		cols[i] = -1
	}

	recognized := 0
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		c, ok := aliases[key]
		if !ok {
			continue
		}
		if cols[c] >= 0 {
			return cols, fmt.Errorf("malformed header: duplicate %s column %q", columnNames[c], h)
		}
		cols[c] = i
		recognized++
	}

	if recognized == 0 {
		return positional(len(header), needTime)
	}

	if !needTime {
		cols[colTime] = -1
	}
	for c := range numCols {
		if c == colTime && !needTime {
			continue
		}
		if cols[c] < 0 {
			return cols, fmt.Errorf("malformed header: no %s column in %q", columnNames[c], strings.Join(header, ","))
		}
	}
	return cols, nil
}

func positional(width int, needTime bool) (columns, error) {
	var cols columns
	first := colTrack
	if needTime {
		first = colTime
	} else {
		cols[colTime] = -1
	}
	if want := numCols - first; width < want {
		return cols, fmt.Errorf("malformed header: %d columns, want %d", width, want)
	}
	for c := first; c < numCols; c++ {
		cols[c] = c - first
	}
	return cols, nil
}

func (cols columns) parse(record []string) (domain.SensorSample, error) {
	var v [numCols]float64
	for c, i := range cols {
		if i < 0 {
			continue
		}
		if i >= len(record) {
			return domain.SensorSample{}, fmt.Errorf("missing %s field", columnNames[c])
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return domain.SensorSample{}, fmt.Errorf("invalid %s %q", columnNames[c], record[i])
		}
		v[c] = f
	}

	if v[colSpeed] < 0 {
		return domain.SensorSample{}, fmt.Errorf("negative ground_speed %v", v[colSpeed])
	}
	if v[colTime] < 0 {
		return domain.SensorSample{}, fmt.Errorf("negative time %v", v[colTime])
	}

	return domain.SensorSample{
		Time:        time.Duration(math.Round(v[colTime] * float64(time.Second))),
		TrackAngle:  v[colTrack],
		GroundSpeed: v[colSpeed],
		Lat:         v[colLat],
		Lng:         v[colLng],
		Alt:         v[colAlt],
	}, nil
}
