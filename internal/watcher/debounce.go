package watcher

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Debouncer groups rapid changes into one batch. A batch is released once
// no event has arrived for the delay. Repeated events for a path collapse
// into the latest one.
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending map[string]ChangeEvent
	mutex   sync.Mutex
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		events:  make(chan ChangeEvent, 256),
		output:  make(chan []ChangeEvent, 16),
		pending: make(map[string]ChangeEvent),
	}
}

// Output returns the batch channel.
func (d *Debouncer) Output() <-chan []ChangeEvent {
	return d.output
}

// Add queues an event, blocking only while the queue is full.
func (d *Debouncer) Add(ctx context.Context, event ChangeEvent) {
	select {
	case d.events <- event:
	case <-ctx.Done():
	}
}

func (d *Debouncer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.mutex.Lock()
			if d.timer != nil {
				d.timer.Stop()
			}
			d.mutex.Unlock()
			return
		case event := <-d.events:
			d.mutex.Lock()
			d.pending[event.Path] = event
			if d.timer != nil {
				d.timer.Stop()
			}
			d.timer = time.AfterFunc(d.delay, func() { d.flush(ctx) })
			d.mutex.Unlock()
		}
	}
}

func (d *Debouncer) flush(ctx context.Context) {
	d.mutex.Lock()
	if len(d.pending) == 0 {
		d.mutex.Unlock()
		return
	}
	batch := make([]ChangeEvent, 0, len(d.pending))
	for _, e := range d.pending {
		batch = append(batch, e)
	}
	d.pending = make(map[string]ChangeEvent)
	d.mutex.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	select {
	case d.output <- batch:
	case <-ctx.Done():
	}
}
