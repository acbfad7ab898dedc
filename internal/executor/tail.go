package executor

import "sync"

const defaultTail = 8 * 1024

// TailBuffer is an io.Writer keeping only the last max bytes written.
type TailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

// NewTailBuffer returns a TailBuffer of max bytes.
func NewTailBuffer(max int) *TailBuffer {
	if max <= 0 {
		max = defaultTail
	}
	return &TailBuffer{max: max}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return len(p), nil
	}
	if len(t.buf)+len(p) > t.max {
		t.buf = t.buf[len(t.buf)+len(p)-t.max:]
	}
	t.buf = append(t.buf, p...)
	return len(p), nil
}

func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
