package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/wind-estimation-service/internal/config"
	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"github.com/couchcryptid/wind-estimation-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRun() domain.Run {
	return domain.Run{
		ID:          "6f1c2b8e-0d7a-4a53-9a55-3f2f1f0c9e11",
		Source:      "flight.csv",
		StartedAt:   time.Date(2024, 7, 14, 11, 30, 0, 0, time.UTC),
		Window:      time.Minute,
		MinAirspeed: 5,
		MaxAirspeed: 25,
	}
}

func testObservation() domain.Observation {
	return domain.NewObservation(
		90*time.Second,
		[]domain.Velocity{{East: 1, North: 2}, {East: 3, North: 4}},
		domain.SensorSample{Time: 90 * time.Second, TrackAngle: 45, GroundSpeed: 5, Lat: -35, Lng: 149, Alt: 1500},
		domain.WindFit{Solution: domain.WindSolution{Airspeed: 18, WindEast: 3, WindNorth: 4}, Converged: true, Iterations: 120},
	)
}

func TestSerializeToMessage(t *testing.T) {
	run := testRun()

	msg, err := serializeToMessage(run, testObservation())
	require.NoError(t, err)

	assert.Equal(t, []byte(run.ID), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "run_id", msg.Headers[0].Key)
	assert.Equal(t, []byte(run.ID), msg.Headers[0].Value)
	assert.Equal(t, "run_started_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2024-07-14T11:30:00Z"), msg.Headers[1].Value)
	assert.Equal(t, "converged", msg.Headers[2].Key)
	assert.Equal(t, []byte("true"), msg.Headers[2].Value)

	var body struct {
		RunID       string         `json:"run_id"`
		Source      string         `json:"source"`
		Observation map[string]any `json:"observation"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, run.ID, body.RunID)
	assert.Equal(t, "flight.csv", body.Source)
	assert.InDelta(t, 90.0, body.Observation["time_s"], 1e-9)
	assert.InDelta(t, 5.0, body.Observation["wind_speed"], 1e-9)
	assert.InDelta(t, 18.0, body.Observation["airspeed"], 1e-9)
	assert.Len(t, body.Observation["window_velocities"], 2)
}

func TestLoadBatch_EmptyIsNoop(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"localhost:1"}, KafkaTopic: "wind-observations"}
	w := NewWriter(cfg, observability.DiscardLogger())
	defer w.Close()

	require.NoError(t, w.LoadBatch(context.Background(), testRun(), nil))
}
