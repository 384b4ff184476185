// Package mempool pools the byte buffers used to copy uploads to disk.
package mempool

import (
	"io"
	"sync"
)

// CopyBufferSize is the buffer size Copy uses.
const CopyBufferSize = 256 << 10

var bytePools sync.Map // key: size class (int), value: *sync.Pool

// sizeClass rounds n up to the next multiple of 4 KiB.
func sizeClass(n int) int {
	const step = 4 << 10
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func poolFor(cls int) *sync.Pool {
	pAny, _ := bytePools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]byte, cls)
		return &buf
	}})
	return pAny.(*sync.Pool)
}

// GetBytes returns a buffer of length n. The caller must hand it back via
// PutBytes when done; contents are not zeroed.
func GetBytes(n int) []byte {
	cls := sizeClass(n)
	bp, ok := poolFor(cls).Get().(*[]byte)
	if !ok || cap(*bp) < cls {
		return make([]byte, n, cls)
	}
	return (*bp)[:n]
}

// PutBytes returns a buffer to the pool. It is safe to pass a nil slice.
func PutBytes(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	cls := sizeClass(cap(buf))
	if cls != cap(buf) {
		// not one of ours
		return
	}
	buf = buf[:cap(buf)]
	poolFor(cls).Put(&buf)
}

// writerOnly hides a destination's ReadFrom so the pooled buffer is used.
type writerOnly struct{ io.Writer }

// Copy is io.CopyBuffer with a pooled buffer. The buffer is used even when
// dst implements io.ReaderFrom, as *os.File does; src's WriteTo still wins.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := GetBytes(CopyBufferSize)
	defer PutBytes(buf)
	return io.CopyBuffer(writerOnly{dst}, src, buf)
}
