package link

import (
	"sync"
	"time"
)

// DebounceWindow is how long the slider stream must stay quiet before the
// pending edits are flushed to hardware.
const DebounceWindow = 300 * time.Millisecond

// debouncer coalesces rapid slider edits. Pending edits are keyed by the
// room they belong to, with a single slot per source — a newer edit
// replaces the older value and resets the timer, so only the quiescent
// tail of an edit burst reaches the fixtures. Implemented with a
// resettable timer rather than a buffered queue to guarantee coalescing.
type debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]map[string]float64 // room id -> source -> value
	timer   *time.Timer
	// gen invalidates a timer callback that raced a Stop: a fire
	// carrying a stale generation must not flush the newer edit early.
	gen    uint64
	flush  func(roomID string, sliders map[string]float64)
	closed bool
}

func newDebouncer(window time.Duration, flush func(roomID string, sliders map[string]float64)) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]map[string]float64),
		flush:   flush,
	}
}

// edit records the newest value for a source in one room and resets the
// quiescence timer. Edits share one timer across rooms and sources: any
// new edit defers the whole flush.
func (d *debouncer) edit(roomID, source string, value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	room := d.pending[roomID]
	if room == nil {
		room = make(map[string]float64)
		d.pending[roomID] = room
	}
	room[source] = value

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() { d.fire(gen) })
}

func (d *debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	pending := d.pending
	d.pending = make(map[string]map[string]float64)
	d.timer = nil
	d.mu.Unlock()

	for roomID, sliders := range pending {
		if len(sliders) > 0 {
			d.flush(roomID, sliders)
		}
	}
}

func (d *debouncer) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
