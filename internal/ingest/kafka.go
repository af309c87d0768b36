package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/storeops/lanewatch/internal/config"
	"github.com/storeops/lanewatch/internal/metrics"
	"github.com/storeops/lanewatch/internal/normalize"
)

// KafkaSource consumes JSON frames from a topic and feeds them to the
// sink. Offsets are committed after the frame is handed off.
type KafkaSource struct {
	reader *kafka.Reader
	strict bool
	sink   Sink
	log    *slog.Logger
}

// NewKafkaSource creates a consumer-group reader over conf.Brokers.
func NewKafkaSource(conf config.KafkaConf, strict bool, sink Sink, log *slog.Logger) *KafkaSource {
	if log == nil {
		log = slog.Default()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     conf.Brokers,
		GroupID:     conf.GroupID,
		Topic:       conf.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
	})
	return &KafkaSource{
		reader: reader,
		strict: strict,
		sink:   sink,
		log:    log.With(slog.String("component", "ingest.kafka"), slog.String("topic", conf.Topic)),
	}
}

// Run consumes until ctx is cancelled or, in strict mode, a malformed
// frame arrives.
func (s *KafkaSource) Run(ctx context.Context) error {
	defer func() {
		if err := s.reader.Close(); err != nil {
			s.log.Error("reader close", slog.Any("err", err))
		}
	}()
	s.log.Info("consumer started")

	backoff := time.Second
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			s.log.Error("fetch failed", slog.Any("err", err))
			select {
			case <-time.After(backoff):
				if backoff < 10*time.Second {
					backoff *= 2
				}
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		backoff = time.Second

		metrics.FramesIngested.WithLabelValues("kafka").Inc()
		ev, err := normalize.Line(msg.Value)
		if err != nil {
			metrics.FramesMalformed.WithLabelValues("kafka").Inc()
			if s.strict {
				return fmt.Errorf("malformed frame at offset %d: %w", msg.Offset, err)
			}
			s.log.Warn("skipping malformed frame", slog.Int64("offset", msg.Offset), slog.Any("err", err))
		} else {
			s.sink(ev)
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			s.log.Error("commit failed", slog.Any("err", err))
		}
	}
}
