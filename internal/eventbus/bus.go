package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/tomtom215/fedsync/internal/logging"
)

// topic is the single internal watermill topic every event is published to;
// fan-out to filtered subscribers happens in this package, not in watermill.
const topic = "fedsync.events"

// DefaultSubscriberBuffer is the default bound on a subscriber's channel.
const DefaultSubscriberBuffer = 256

// Bus is the process-wide event broadcaster (spec.md §4.C2). Construct one
// with New and never re-initialize it — global singletons in this codebase
// follow an init-once contract (see internal/logging's sync.Once-guarded
// pattern); tests construct their own Bus instance instead of mutating a
// package-level global.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu   sync.Mutex
	subs map[string]*subscription

	// payloads holds each in-flight event's original, concretely-typed
	// Payload value keyed by event id. The envelope still travels through
	// watermill as JSON (preserving the real publish/subscribe machinery for
	// a future off-process transport), but JSON round-tripping an `any`
	// field loses its concrete type, so in-process fan-out restores the
	// original value from here rather than handing subscribers a bare
	// map[string]interface{}.
	payloads sync.Map
}

type subscription struct {
	id      string
	types   map[EventType]bool // nil means "all events"
	ch      chan Event
	dropped int64
}

// New constructs a Bus backed by watermill's in-memory gochannel transport.
func New() *Bus {
	logger := watermill.NewStdLogger(false, false)
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            int64(DefaultSubscriberBuffer),
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, logger)

	b := &Bus{
		pubsub: pubsub,
		logger: logger,
		subs:   make(map[string]*subscription),
	}

	go b.pump()

	return b
}

// pump reads every message off the internal watermill topic and fans it out
// to each registered subscriber's bounded channel, dropping the oldest
// queued event on overflow (hub.go's broadcast-with-backpressure pattern).
func (b *Bus) pump() {
	messages, err := b.pubsub.Subscribe(context.Background(), topic)
	if err != nil {
		logging.Error().Err(err).Msg("eventbus: failed to subscribe internal topic")
		return
	}

	for msg := range messages {
		var evt Event
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			logging.Warn().Err(err).Msg("eventbus: dropping malformed event")
			msg.Ack()
			continue
		}

		if original, ok := b.payloads.LoadAndDelete(evt.ID); ok {
			evt.Payload = original
		}
		b.fanOut(evt)
		msg.Ack()
	}
}

func (b *Bus) fanOut(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if sub.types != nil && !sub.types[evt.Type] {
			continue
		}
		b.deliver(sub, evt)
	}
}

func (b *Bus) deliver(sub *subscription, evt Event) {
	select {
	case sub.ch <- evt:
		return
	default:
	}

	// Channel full: drop the oldest queued event, then push the new one.
	select {
	case <-sub.ch:
		sub.dropped++
	default:
	}

	select {
	case sub.ch <- evt:
	default:
	}

	b.recordDrop(sub.id)
}

// recordDrop publishes a SystemErrorOccurred event describing the drop. It
// must not recurse through fanOut while holding b.mu, so it publishes async.
func (b *Bus) recordDrop(subscriberID string) {
	go func() {
		_ = b.Publish(context.Background(), Event{
			Type:     SystemErrorOccurred,
			Source:   EventSource{Kind: SourceSystem, Name: "eventbus"},
			Priority: PriorityHigh,
			Payload: SystemPayload{
				Task:    "eventbus.fanout",
				Message: "subscriber backpressure: dropped oldest event for " + subscriberID,
			},
		})
	}()
}

// Publish assigns an id/timestamp if absent and sends evt to every matching
// subscriber. Delivery is best-effort; Publish itself never blocks on a
// slow subscriber.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.Priority == "" {
		evt.Priority = PriorityNormal
	}
	b.payloads.Store(evt.ID, evt.Payload)

	payload, err := json.Marshal(evt)
	if err != nil {
		b.payloads.Delete(evt.ID)
		return err
	}

	msg := message.NewMessage(evt.ID, payload)
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(topic, msg); err != nil {
		b.payloads.Delete(evt.ID)
		return err
	}
	return nil
}

// Subscription is a handle returned by Subscribe/SubscribeFiltered. Call
// Close to stop receiving events; the bus holds no strong reference to
// anything the subscriber owns beyond this handle, so a dropped Subscription
// is eligible for GC and the bus reclaims its slot on the next publish.
type Subscription struct {
	bus *Bus
	id  string
	C   <-chan Event
}

// Close unregisters the subscription. Safe to call multiple times.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
}

// DroppedCount returns how many events were dropped for this subscriber due
// to backpressure.
func (s *Subscription) DroppedCount() int64 {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		return sub.dropped
	}
	return 0
}

// Subscribe registers a subscriber receiving every event type.
func (b *Bus) Subscribe(bufferSize int) *Subscription {
	return b.subscribe(nil, bufferSize)
}

// SubscribeFiltered registers a subscriber receiving only the given types.
func (b *Bus) SubscribeFiltered(types []EventType, bufferSize int) *Subscription {
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return b.subscribe(set, bufferSize)
}

func (b *Bus) subscribe(types map[EventType]bool, bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}

	sub := &subscription{
		id:    uuid.NewString(),
		types: types,
		ch:    make(chan Event, bufferSize),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	return &Subscription{bus: b, id: sub.id, C: sub.ch}
}

// Close releases the bus's internal watermill resources. Call during
// process shutdown only.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
