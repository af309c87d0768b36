package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storeops/lanewatch/internal/config"
	"github.com/storeops/lanewatch/internal/event"
)

// closedAddr returns a loopback address nothing is listening on.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func fastConf(addr string) config.TCPConf {
	return config.TCPConf{
		Addr:             addr,
		BackoffBaseMs:    1,
		BackoffCapMs:     5,
		MaxRetries:       3,
		DialTimeoutMs:    200,
		MaxLineSizeBytes: 1 << 16,
	}
}

func TestTCPSource_RetryBudgetExhausted(t *testing.T) {
	src := NewTCPSource(fastConf(closedAddr(t)), false, func(*event.Event) {}, nil)

	err := src.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetryBudgetExhausted), "got %v", err)
}

func TestTCPSource_BackoffRespectsCancellation(t *testing.T) {
	conf := fastConf(closedAddr(t))
	conf.MaxRetries = 0 // unlimited
	conf.BackoffBaseMs = 60_000
	src := NewTCPSource(conf, false, func(*event.Event) {}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestTCPSource_StreamsFramesAndSkipsMalformed(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		fmt.Fprintln(conn, `{"dataset":"POS_Transactions","sequence":7,"timestamp":"2025-08-13T16:00:00","event":{"station_id":"SCC1","status":"Active","data":{"sku":"PRD_A_01"}}}`)
		fmt.Fprintln(conn, `not json at all`)
		fmt.Fprintln(conn, `{"dataset":"Queue_monitor","timestamp":"2025-08-13T16:00:05","station_id":"SCC2","status":"Active","data":{"customer_count":3}}`)
		// Leave the connection open; the test cancels when done.
		time.Sleep(5 * time.Second)
		conn.Close()
	}()

	events := make(chan *event.Event, 4)
	src := NewTCPSource(fastConf(l.Addr().String()), false, func(ev *event.Event) { events <- ev }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	var got []*event.Event
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("only received %d events", len(got))
		}
	}
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	assert.Equal(t, event.DatasetPOS, got[0].Dataset)
	assert.Equal(t, int64(7), got[0].Sequence)
	assert.Equal(t, "SCC1", got[0].StationID)
	assert.Equal(t, event.DatasetQueue, got[1].Dataset)
	assert.Equal(t, "SCC2", got[1].StationID)
}

func TestTCPSource_StrictModeStopsOnMalformed(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprintln(conn, `{"dataset":"Unknown_feed","timestamp":"2025-08-13T16:00:00","data":{}}`)
		time.Sleep(time.Second)
	}()

	src := NewTCPSource(fastConf(l.Addr().String()), true, func(*event.Event) {}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = src.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed frame")
	assert.True(t, errors.Is(err, event.ErrUnknownDataset), "got %v", err)
}
