package event

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/challenge-runtime/pkg/challengedto"
)

// Sequencer hands out per-session sequence numbers. Injected rather than
// ambient so tests and alternative wirings can supply their own.
type Sequencer interface {
	Next(sessionID string) uint64
	Reset(sessionID string)
}

// KeyedSequencer is the default Sequencer: one monotonic counter per
// session id, never reset outside test teardown.
type KeyedSequencer struct {
	mu       sync.Mutex
	counters map[string]uint64
}

func NewKeyedSequencer() *KeyedSequencer {
	return &KeyedSequencer{counters: make(map[string]uint64)}
}

func (k *KeyedSequencer) Next(sessionID string) uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.counters[sessionID]++
	return k.counters[sessionID]
}

func (k *KeyedSequencer) Reset(sessionID string) {
	k.mu.Lock()
	delete(k.counters, sessionID)
	k.mu.Unlock()
}

// Collector assigns sequence numbers to domain events and fans them out
// to stream subscribers. Domain events share nothing with replay event
// numbering; they exist for UI and observability only.
type Collector struct {
	seq    Sequencer
	logger *zap.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan challengedto.DomainEvent
}

func NewCollector(seq Sequencer, logger *zap.Logger) *Collector {
	if seq == nil {
		seq = NewKeyedSequencer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{seq: seq, logger: logger, subs: make(map[int]chan challengedto.DomainEvent)}
}

// Emit stamps and publishes an event, returning it for inclusion in the
// tool-call envelope. Slow subscribers are skipped, never blocked on.
func (c *Collector) Emit(sessionID, eventType string, data map[string]any) challengedto.DomainEvent {
	ev := challengedto.DomainEvent{
		SessionID: sessionID,
		Seq:       c.seq.Next(sessionID),
		Type:      eventType,
		At:        time.Now().UnixMilli(),
		Data:      data,
	}

	c.mu.Lock()
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Warn("event subscriber lagging, dropping event",
				zap.Int("subscriber", id),
				zap.String("session_id", sessionID),
				zap.Uint64("seq", ev.Seq),
			)
		}
	}
	c.mu.Unlock()
	return ev
}

// Subscribe registers a buffered stream of all emitted events. The
// returned cancel func must be called to release the subscription.
func (c *Collector) Subscribe(buffer int) (<-chan challengedto.DomainEvent, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan challengedto.DomainEvent, buffer)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// ResetSession clears the sequence counter for a session. Test teardown
// only; production sequences are never reset.
func (c *Collector) ResetSession(sessionID string) {
	c.seq.Reset(sessionID)
}
