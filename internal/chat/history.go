package chat

// history is a fixed-capacity FIFO of messages. Once full, every push
// overwrites the oldest entry in place.
type history struct {
	buf   []Message
	start int
	limit int
}

func newHistory(limit int) *history {
	return &history{limit: limit}
}

// push appends m and reports whether the oldest entry was evicted.
func (h *history) push(m Message) bool {
	if len(h.buf) < h.limit {
		h.buf = append(h.buf, m)
		return false
	}
	h.buf[h.start] = m
	h.start = (h.start + 1) % h.limit
	return true
}

func (h *history) len() int {
	return len(h.buf)
}

// tail returns up to n of the newest messages, oldest first.
func (h *history) tail(n int) []Message {
	if n > len(h.buf) {
		n = len(h.buf)
	}
	out := make([]Message, 0, n)
	for i := len(h.buf) - n; i < len(h.buf); i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}
	return out
}

func (h *history) last() (Message, bool) {
	if len(h.buf) == 0 {
		return Message{}, false
	}
	return h.buf[(h.start+len(h.buf)-1)%len(h.buf)], true
}
