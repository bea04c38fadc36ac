package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jaa/resource-fetcher/internal/progress"
)

type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Envelope is a decoded event tagged with the stream it arrived on. Seq is
// the arrival position across all producers of one aggregator.
type Envelope struct {
	Stream Stream
	Seq    uint64
	Event  progress.Event
}

// Aggregator fans events from several producers into one ordered stream for
// a single consumer. The queue is unbounded so producers never wait on the
// consumer. Next reports exhaustion once every registered producer is done
// and the queue is empty.
type Aggregator struct {
	mu    sync.Mutex
	queue []Envelope
	live  int
	seq   uint64
	wake  chan struct{}
}

func NewAggregator() *Aggregator {
	return &Aggregator{wake: make(chan struct{}, 1)}
}

// Register adds a live producer. All producers must be registered before the
// consumer starts reading, otherwise Next may report exhaustion early.
func (a *Aggregator) Register(stream Stream) *Producer {
	a.mu.Lock()
	a.live++
	a.mu.Unlock()
	return &Producer{agg: a, stream: stream}
}

// Next blocks until an event is available, every producer is done, or ctx
// ends. The boolean is false once the stream is exhausted.
func (a *Aggregator) Next(ctx context.Context) (Envelope, bool) {
	for {
		a.mu.Lock()
		if len(a.queue) > 0 {
			env := a.queue[0]
			a.queue[0] = Envelope{}
			a.queue = a.queue[1:]
			a.mu.Unlock()
			return env, true
		}
		if a.live == 0 {
			a.mu.Unlock()
			return Envelope{}, false
		}
		a.mu.Unlock()

		select {
		case <-a.wake:
		case <-ctx.Done():
			return Envelope{}, false
		}
	}
}

// Live returns the number of producers that have not called Done.
func (a *Aggregator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

func (a *Aggregator) signal() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Producer is one registered source of events.
type Producer struct {
	agg    *Aggregator
	stream Stream
	done   atomic.Bool
}

// Publish enqueues event without blocking. It returns false after Done.
func (p *Producer) Publish(event progress.Event) bool {
	if p.done.Load() {
		return false
	}
	a := p.agg
	a.mu.Lock()
	a.seq++
	a.queue = append(a.queue, Envelope{Stream: p.stream, Seq: a.seq, Event: event})
	a.mu.Unlock()
	a.signal()
	return true
}

// Done retires the producer. Calling it more than once has no effect.
func (p *Producer) Done() {
	if !p.done.CompareAndSwap(false, true) {
		return
	}
	a := p.agg
	a.mu.Lock()
	a.live--
	a.mu.Unlock()
	a.signal()
}
