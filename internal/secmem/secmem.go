// Package secmem provides best-effort secure handling of sensitive byte
// buffers: wiping key material and decrypted plaintext from memory, and
// scoped buffers with a guaranteed one-shot release.
//
// In a garbage-collected runtime this is defense in depth, not a guarantee
// against an attacker who can dump process memory. The runtime may have
// copied a buffer before it is wiped (stack growth, GC compaction). Callers
// should still wipe on every release path so that the window during which
// secrets are resident is as small as possible.
package secmem

import (
	"crypto/rand"
	"crypto/subtle"
	"runtime"
	"sync"
)

// Zero overwrites a byte slice with zeros to clear sensitive data from memory.
// Uses runtime.KeepAlive to prevent the compiler from eliding the writes.
func Zero(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// ZeroAll zeroes multiple byte slices.
func ZeroAll(slices ...[]byte) {
	for _, s := range slices {
		Zero(s)
	}
}

// Wipe overwrites a byte slice with cryptographically random bytes and then
// with zeros, synchronously, before returning. The random pass makes residual
// data on reused pages useless even if the zeroing pass is optimized into a
// page-table trick by lower layers.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	// Ignore the error: on rand failure the zeroing pass still runs.
	_, _ = rand.Read(b)
	Zero(b)
}

// Equal performs a constant-time comparison of two byte slices.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Scoped is a sensitive buffer paired with an idempotent release function.
// Release wipes the buffer exactly once, no matter how many times it is
// called or from which goroutine.
type Scoped struct {
	buf  []byte
	once sync.Once
}

// Bytes returns the underlying buffer. The buffer is owned by the Scoped
// value and must not be used after Release.
func (s *Scoped) Bytes() []byte {
	return s.buf
}

// Release wipes the buffer and removes it from the shutdown registry.
// Safe to call multiple times and from multiple goroutines.
func (s *Scoped) Release() {
	s.once.Do(func() {
		Wipe(s.buf)
		registry.mu.Lock()
		delete(registry.bufs, s)
		registry.mu.Unlock()
	})
}

// registry tracks live scoped buffers so ReleaseAll can wipe them on
// abnormal termination.
var registry = struct {
	mu   sync.Mutex
	bufs map[*Scoped]struct{}
}{bufs: make(map[*Scoped]struct{})}

// NewScoped allocates a buffer of the given size and registers it for
// release on process shutdown. The caller should defer Release; the
// registration is a fallback for paths that skip the defer (signal-driven
// exits handled by the host application calling ReleaseAll).
func NewScoped(size int) *Scoped {
	s := &Scoped{buf: make([]byte, size)}
	registry.mu.Lock()
	registry.bufs[s] = struct{}{}
	registry.mu.Unlock()
	runtime.AddCleanup(s, func(buf []byte) { Wipe(buf) }, s.buf)
	return s
}

// ReleaseAll wipes every registered scoped buffer. Intended to be called
// from the application's shutdown hook.
func ReleaseAll() {
	registry.mu.Lock()
	bufs := make([]*Scoped, 0, len(registry.bufs))
	for s := range registry.bufs {
		bufs = append(bufs, s)
	}
	registry.bufs = make(map[*Scoped]struct{})
	registry.mu.Unlock()

	for _, s := range bufs {
		s.Release()
	}
}
