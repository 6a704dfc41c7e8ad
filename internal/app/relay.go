/**
 * @description
 * This file implements the event relay, the single consumer of the monitoring
 * registry's event stream. For every event it normalizes, conditionally
 * persists, broadcasts to the reference's subscriber group, and publishes
 * terminal outcomes to the message broker. Each step is isolated so one
 * failure cannot block or corrupt another, and no event failure may terminate
 * the stream subscription.
 *
 * Events for the same reference are handled in arrival order on a dedicated
 * lane; lanes for different references run independently, so a slow audit
 * write for one payment never delays another payment's updates.
 */

package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/qrpaylink/payment-relay-service/internal/domain"
)

const auditWriteTimeout = 10 * time.Second

// Broadcaster delivers a message to every channel joined to the reference's
// group and reports how many subscribers received it.
type Broadcaster interface {
	Broadcast(reference string, msg domain.StatusMessage) int
}

// StatusEventPublisher pushes terminal payment outcomes to downstream
// services. Implemented by pkg/rabbitmq; nil disables publishing.
type StatusEventPublisher interface {
	PublishPaymentStatus(ctx context.Context, reference, eventType, status string, occurredAt time.Time) error
}

// Relay fans monitoring events out to subscribers and the audit sink.
// It holds no per-reference payment state of its own.
type Relay struct {
	hub       Broadcaster
	sink      AuditSink
	publisher StatusEventPublisher

	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup
}

// lane is the per-reference FIFO of events awaiting handling. The queue is
// only touched under Relay.mu; the lane goroutine exits once drained.
type lane struct {
	queue []domain.StatusEvent
}

// NewRelay creates a relay. publisher may be nil when no broker is configured.
func NewRelay(hub Broadcaster, sink AuditSink, publisher StatusEventPublisher) *Relay {
	return &Relay{
		hub:       hub,
		sink:      sink,
		publisher: publisher,
		lanes:     make(map[string]*lane),
	}
}

// Run consumes events until the channel closes or the context is cancelled,
// then waits for in-flight lanes to drain. Events already dispatched are
// delivered; cancellation is not propagated into running audit or broadcast
// calls.
func (r *Relay) Run(ctx context.Context, events <-chan domain.StatusEvent) {
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return
		case evt, ok := <-events:
			if !ok {
				r.wg.Wait()
				return
			}
			r.dispatch(evt)
		}
	}
}

// dispatch enqueues the event on its reference's lane, starting a lane
// goroutine if none is running. Enqueueing never blocks, so a backed-up
// reference cannot stall the inbound stream.
func (r *Relay) dispatch(evt domain.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ln, ok := r.lanes[evt.Reference]; ok {
		ln.queue = append(ln.queue, evt)
		return
	}

	ln := &lane{queue: []domain.StatusEvent{evt}}
	r.lanes[evt.Reference] = ln
	r.wg.Add(1)
	go r.runLane(evt.Reference, ln)
}

// runLane drains one reference's queue in FIFO order and removes the lane
// once empty. Removal and the empty check happen under the same mutex as
// enqueueing, so no event can land on an abandoned lane.
func (r *Relay) runLane(reference string, ln *lane) {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		if len(ln.queue) == 0 {
			delete(r.lanes, reference)
			r.mu.Unlock()
			return
		}
		evt := ln.queue[0]
		ln.queue = ln.queue[1:]
		r.mu.Unlock()

		r.handleEvent(evt)
	}
}

// handleEvent runs the normalize / audit / broadcast / publish pipeline for a
// single event. Failures in any step are logged with the reference and
// swallowed; the remaining steps still run.
func (r *Relay) handleEvent(evt domain.StatusEvent) {
	var msg domain.StatusMessage
	if !r.step("normalize", evt.Reference, func() error {
		msg = Normalize(evt)
		return nil
	}) {
		return
	}
	relayedEventsTotal.WithLabelValues(msg.EventType).Inc()

	if auditWorthy(evt) && r.sink != nil {
		r.step("audit", evt.Reference, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
			defer cancel()
			if err := r.sink.Record(ctx, msg); err != nil {
				auditFailuresTotal.Inc()
				return err
			}
			return nil
		})
	}

	r.step("broadcast", evt.Reference, func() error {
		if delivered := r.hub.Broadcast(evt.Reference, msg); delivered == 0 {
			// Not a failure: a message with no live subscriber is dropped.
			broadcastsDroppedTotal.Inc()
			log.Printf("level=info component=relay msg=\"broadcast dropped; no subscribers\" prn=%s event_type=%s", evt.Reference, msg.EventType)
		}
		return nil
	})

	if evt.Kind.Terminal() && r.publisher != nil {
		r.step("publish", evt.Reference, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
			defer cancel()
			return r.publisher.PublishPaymentStatus(ctx, msg.Reference, msg.EventType, msg.Status, msg.Timestamp)
		})
	}
}

// step runs one pipeline stage, converting panics and errors into log lines.
// It reports whether the stage completed without error.
func (r *Relay) step(name, reference string, fn func() error) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			relayStepFailuresTotal.WithLabelValues(name).Inc()
			log.Printf("level=error component=relay step=%s msg=\"step panicked\" prn=%s panic=%v", name, reference, p)
			ok = false
		}
	}()

	if err := fn(); err != nil {
		relayStepFailuresTotal.WithLabelValues(name).Inc()
		log.Printf("level=error component=relay step=%s msg=\"step failed\" prn=%s err=%v", name, reference, err)
		return false
	}
	return true
}
