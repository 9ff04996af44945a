package events

// historySize is how many recent events per session are replayed to a new
// subscriber.
const historySize = 16

// ring is a fixed-size circular buffer of events. When full, a write
// overwrites the oldest event. It is not safe for concurrent use; the hub
// guards it.
type ring struct {
	buf  []Event
	head int // write position
	tail int // oldest event
	full bool
}

func newRing(size int) *ring {
	if size <= 0 {
		size = historySize
	}
	return &ring{buf: make([]Event, size)}
}

func (r *ring) push(ev Event) {
	if r.full {
		r.tail = (r.tail + 1) % len(r.buf)
	}
	r.buf[r.head] = ev
	r.head = (r.head + 1) % len(r.buf)
	if r.head == r.tail {
		r.full = true
	}
}

func (r *ring) len() int {
	switch {
	case r.full:
		return len(r.buf)
	case r.head >= r.tail:
		return r.head - r.tail
	default:
		return len(r.buf) - r.tail + r.head
	}
}

// events returns the buffered events oldest first.
func (r *ring) events() []Event {
	n := r.len()
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.tail+i)%len(r.buf)]
	}
	return out
}
