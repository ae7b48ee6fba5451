package filex

import (
	"errors"
	"sync"
)

// Buffer holds secret bytes outside the Go heap where the platform allows
// it: the memory is mlocked and excluded from core dumps. On platforms or
// sandboxes where locking is refused, the bytes live on the heap and Locked
// reports false.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	length int
	locked bool
	closed bool
}

// NewBuffer copies source into a new Buffer and zeroes source.
func NewBuffer(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, errors.New("secret: cannot create buffer from empty source")
	}

	data, locked := allocLocked(len(source))
	if data == nil {
		data = make([]byte, len(source))
	}
	copy(data, source)
	zero(source)

	return &Buffer{data: data, length: len(source), locked: locked}, nil
}

// Bytes returns the secret. The slice is only valid until Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		panic("secret: read from closed buffer")
	}
	return b.data[:b.length]
}

// Locked reports whether the secret memory is pinned in RAM.
func (b *Buffer) Locked() bool {
	return b.locked
}

// Close zeroes and releases the memory. Calling Close twice is safe.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	zero(b.data)

	var err error
	if b.locked {
		err = freeLocked(b.data)
	}
	b.data = nil
	return err
}
