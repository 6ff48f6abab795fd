package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
)

// ingester is the part of *axiom.Client the shipper uses.
type ingester interface {
	IngestEvents(ctx context.Context, dataset string, events []axiom.Event, options ...ingest.Option) (*ingest.Status, error)
}

type shipperOptions struct {
	Dataset    string
	FlushEvery time.Duration
	BatchSize  int
	Buffer     int
	Timeout    time.Duration
}

// shipper batches log events and ingests them when a batch fills, on a
// ticker, and once more on Close. Enqueue never blocks: a full buffer drops
// the event and counts it.
type shipper struct {
	sink    ingester
	opts    shipperOptions
	events  chan axiom.Event
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	dropped atomic.Int64
	failed  atomic.Int64
}

func newShipper(sink ingester, opts shipperOptions) *shipper {
	if opts.Dataset == "" {
		opts.Dataset = "dev_" + defaultService
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 10 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	s := &shipper{
		sink:    sink,
		opts:    opts,
		events:  make(chan axiom.Event, opts.Buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *shipper) enqueue(ev axiom.Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *shipper) run() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.opts.FlushEvery)
	defer ticker.Stop()

	batch := s.newBatch()
	add := func(ev axiom.Event) {
		batch = append(batch, ev)
		if len(batch) >= s.opts.BatchSize {
			batch = s.flush(batch)
		}
	}
	for {
		select {
		case ev := <-s.events:
			add(ev)
		case <-ticker.C:
			batch = s.flush(batch)
		case <-s.done:
			// only what is queued now; late writers do not hold up shutdown
			for n := len(s.events); n > 0; n-- {
				add(<-s.events)
			}
			s.flush(batch)
			return
		}
	}
}

// flush hands the batch to the sink and returns a fresh one; the sink may
// keep the slice it was given.
func (s *shipper) flush(batch []axiom.Event) []axiom.Event {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()
	if _, err := s.sink.IngestEvents(ctx, s.opts.Dataset, batch); err != nil {
		s.failed.Add(int64(len(batch)))
	}
	return s.newBatch()
}

func (s *shipper) newBatch() []axiom.Event {
	return make([]axiom.Event, 0, s.opts.BatchSize)
}

// Close drains queued events, flushes them and stops the loop. It reports
// how many events never reached Axiom.
func (s *shipper) Close() error {
	s.once.Do(func() { close(s.done) })
	<-s.stopped
	dropped, failed := s.dropped.Load(), s.failed.Load()
	if dropped > 0 || failed > 0 {
		return fmt.Errorf("%d log events dropped, %d failed to ingest", dropped, failed)
	}
	return nil
}

// eventWriter turns zerolog JSON lines into Axiom events for the shipper.
type eventWriter struct {
	ship    *shipper
	service string
	min     zerolog.Level
}

func (w *eventWriter) Write(p []byte) (int, error) {
	var ev axiom.Event
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = axiom.Event{zerolog.MessageFieldName: string(p), zerolog.LevelFieldName: zerolog.InfoLevel.String()}
	}
	if lvl, ok := ev[zerolog.LevelFieldName].(string); ok {
		if l, err := zerolog.ParseLevel(lvl); err == nil && l < w.min {
			return len(p), nil
		}
	}
	ev["service"] = w.service
	// zerolog's own timestamp becomes the Axiom event time.
	if ts, ok := ev[zerolog.TimestampFieldName]; ok {
		ev[ingest.TimestampField] = ts
		delete(ev, zerolog.TimestampFieldName)
	} else if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	w.ship.enqueue(ev)
	return len(p), nil
}
