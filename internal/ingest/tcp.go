// Package ingest streams JSONL frames from the store's sensor feeds
// into the pipeline.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/storeops/lanewatch/internal/config"
	"github.com/storeops/lanewatch/internal/event"
	"github.com/storeops/lanewatch/internal/metrics"
	"github.com/storeops/lanewatch/internal/normalize"
)

// ErrRetryBudgetExhausted reports that reconnect attempts ran out.
var ErrRetryBudgetExhausted = errors.New("ingest: retry budget exhausted")

// Sink receives each normalized event. It must not retain the event
// past the call.
type Sink func(*event.Event)

// TCPSource connects to a host:port emitting one JSON frame per line
// and reconnects with exponential backoff when the stream drops.
type TCPSource struct {
	conf   config.TCPConf
	strict bool
	sink   Sink
	log    *slog.Logger
}

// NewTCPSource creates a source. In strict mode a malformed frame
// stops the source; otherwise malformed frames are counted and skipped.
func NewTCPSource(conf config.TCPConf, strict bool, sink Sink, log *slog.Logger) *TCPSource {
	if log == nil {
		log = slog.Default()
	}
	return &TCPSource{
		conf:   conf,
		strict: strict,
		sink:   sink,
		log:    log.With(slog.String("component", "ingest.tcp")),
	}
}

// Run streams until ctx is cancelled, the retry budget is exhausted,
// or (in strict mode) a malformed frame arrives.
func (s *TCPSource) Run(ctx context.Context) error {
	base := time.Duration(s.conf.BackoffBaseMs) * time.Millisecond
	ceiling := time.Duration(s.conf.BackoffCapMs) * time.Millisecond
	backoff := base
	attempts := 0
	dialer := net.Dialer{Timeout: time.Duration(s.conf.DialTimeoutMs) * time.Millisecond}

	for {
		conn, err := dialer.DialContext(ctx, "tcp", s.conf.Addr)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempts++
			if s.conf.MaxRetries > 0 && attempts >= s.conf.MaxRetries {
				return fmt.Errorf("connect %s after %d attempts: %w: %w", s.conf.Addr, attempts, ErrRetryBudgetExhausted, err)
			}
			s.log.Warn("connect failed",
				slog.String("addr", s.conf.Addr),
				slog.Int("attempt", attempts),
				slog.Duration("backoff", backoff),
				slog.Any("err", err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > ceiling {
				backoff = ceiling
			}
			continue
		}

		attempts = 0
		backoff = base
		s.log.Info("stream connected", slog.String("addr", s.conf.Addr))

		if err := s.consume(ctx, conn); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("stream dropped, reconnecting", slog.String("addr", s.conf.Addr))
	}
}

// consume reads frames until the connection ends. It returns a non-nil
// error only for strict-mode malformed frames; read errors trigger a
// reconnect in Run.
func (s *TCPSource) consume(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), s.conf.MaxLineSizeBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		metrics.FramesIngested.WithLabelValues("tcp").Inc()
		ev, err := normalize.Line(line)
		if err != nil {
			metrics.FramesMalformed.WithLabelValues("tcp").Inc()
			if s.strict {
				return fmt.Errorf("malformed frame: %w", err)
			}
			s.log.Warn("skipping malformed frame", slog.Any("err", err))
			continue
		}
		s.sink(ev)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.log.Warn("stream read error", slog.Any("err", err))
	}
	return nil
}
