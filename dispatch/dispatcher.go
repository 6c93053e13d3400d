package dispatch

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"storepulse/api/models"
)

const DefaultQueueSize = 256

// Sink delivers one envelope. Errors are logged by the Dispatcher and
// otherwise dropped.
type Sink interface {
	Send(ctx context.Context, env models.Envelope) error
}

type Config struct {
	StoreID   string
	Platform  string
	SessionID string
	QueueSize int
	Now       func() time.Time
}

type Stats struct {
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

// Dispatcher wraps payloads into envelopes and hands them to its sinks from a
// single background worker. Delivery is at most once: a full queue drops the
// event, a failed send is not retried.
type Dispatcher struct {
	cfg   Config
	sinks []Sink
	queue chan models.Envelope

	closeOnce sync.Once
	done      chan struct{}

	sent, dropped, failed atomic.Int64
}

func New(cfg Config, sinks ...Sink) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	d := &Dispatcher{
		cfg:   cfg,
		sinks: sinks,
		queue: make(chan models.Envelope, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) SessionID() string { return d.cfg.SessionID }

// Emit never blocks the caller.
func (d *Dispatcher) Emit(eventType models.EventType, payload models.Payload) {
	env, err := models.NewEnvelope(d.cfg.StoreID, d.cfg.Platform, d.cfg.SessionID, eventType, payload.Clone(), d.cfg.Now())
	if err != nil {
		log.Printf("Error encoding %s event: %v", eventType, err)
		d.failed.Add(1)
		return
	}
	defer func() {
		// Emit after Close sends on a closed channel.
		if recover() != nil {
			d.dropped.Add(1)
		}
	}()
	select {
	case d.queue <- env:
	default:
		d.dropped.Add(1)
		log.Printf("Dispatch queue full, dropping %s event", eventType)
	}
}

// Close stops accepting events and waits for queued ones to be handed to the
// sinks, or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() { close(d.queue) })
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:    d.sent.Load(),
		Dropped: d.dropped.Load(),
		Failed:  d.failed.Load(),
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for env := range d.queue {
		for _, sink := range d.sinks {
			if err := sink.Send(context.Background(), env); err != nil {
				d.failed.Add(1)
				log.Printf("Error dispatching %s event: %v", env.Event, err)
				continue
			}
			d.sent.Add(1)
		}
	}
}
