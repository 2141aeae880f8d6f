package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/wind-estimation-service/internal/config"
	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes observations to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured observation topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes a batch of observations in a single WriteMessages
// call. Messages are keyed by run ID so one run stays on one partition and
// keeps its time order.
func (w *Writer) LoadBatch(ctx context.Context, run domain.Run, observations []domain.Observation) error {
	if len(observations) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(observations))
	for i := range observations {
		msg, err := serializeToMessage(run, observations[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d observations: %w", len(msgs), err)
	}
	w.logger.Debug("observations published", "run_id", run.ID, "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// Envelope is the JSON value of each published message.
type Envelope struct {
	RunID       string             `json:"run_id"`
	Source      string             `json:"source"`
	Observation domain.Observation `json:"observation"`
}

// serializeToMessage marshals one observation into a Kafka message.
func serializeToMessage(run domain.Run, obs domain.Observation) (kafkago.Message, error) {
	data, err := json.Marshal(Envelope{RunID: run.ID, Source: run.Source, Observation: obs})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation at %s: %w", obs.Time, err)
	}
	return kafkago.Message{
		Key:   []byte(run.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(run.ID)},
			{Key: "run_started_at", Value: []byte(run.StartedAt.Format(time.RFC3339))},
			{Key: "converged", Value: []byte(strconv.FormatBool(obs.Converged))},
		},
	}, nil
}
