// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/clubsync/internal/log"
	"github.com/ManuGH/clubsync/internal/metrics"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 64

const dropLogEvery = 100

// MemoryBus is an in-process pub/sub. Delivery is best-effort: a subscriber
// whose buffer is full misses the message instead of stalling the publisher.
type MemoryBus struct {
	mu        sync.RWMutex
	subs      map[string][]chan Message
	buffer    int
	dropCount atomic.Uint64
}

// NewMemoryBus creates a bus with the given per-subscriber buffer size.
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &MemoryBus{subs: make(map[string][]chan Message), buffer: buffer}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	if err := ctx.Err(); err != nil {
		metrics.IncBusDropReason(topic, publishDropReason(err))
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	chs := b.subs[topic]
	for _, ch := range chs {
		select {
		case ch <- msg:
		default:
			metrics.IncBusDropReason(topic, "full")
			count := b.dropCount.Add(1)
			if count%dropLogEvery == 1 {
				log.L().Warn().
					Str("topic", topic).
					Uint64("dropped", count).
					Msg("memory bus subscriber buffer full, dropping message")
			}
		}
	}
	if len(chs) > 0 {
		metrics.IncBusPublished(topic)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscriber, error) {
	ch := make(chan Message, b.buffer)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	return &memSub{b: b, topic: topic, ch: ch}, nil
}

// Dropped returns the number of messages dropped due to full buffers.
func (b *MemoryBus) Dropped() uint64 {
	return b.dropCount.Load()
}

type memSub struct {
	b      *MemoryBus
	topic  string
	ch     chan Message
	closed atomic.Bool
}

func (s *memSub) C() <-chan Message {
	return s.ch
}

func (s *memSub) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	lst := s.b.subs[s.topic]
	out := lst[:0]
	for _, c := range lst {
		if c != s.ch {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(s.b.subs, s.topic)
	} else {
		s.b.subs[s.topic] = out
	}
	// Publish holds the read lock while sending, so closing under the write
	// lock cannot race with a send.
	close(s.ch)
	return nil
}

// Ensure compliance
var _ Bus = (*MemoryBus)(nil)
