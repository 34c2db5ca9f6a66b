package secmem

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZero(t *testing.T) {
	t.Run("zero non-empty slice", func(t *testing.T) {
		b := []byte{1, 2, 3, 4, 5}
		Zero(b)
		for _, v := range b {
			assert.Equal(t, byte(0), v)
		}
	})

	t.Run("zero nil slice", func(t *testing.T) {
		var b []byte
		assert.NotPanics(t, func() { Zero(b) })
	})

	t.Run("zero large slice", func(t *testing.T) {
		b := make([]byte, 1024)
		for i := range b {
			b[i] = byte(i % 256)
		}
		Zero(b)
		for _, v := range b {
			assert.Equal(t, byte(0), v)
		}
	})
}

func TestZeroAll(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{4, 5, 6}
	ZeroAll(a, b, nil)
	assert.Equal(t, []byte{0, 0, 0}, a)
	assert.Equal(t, []byte{0, 0, 0}, b)
}

func TestWipe(t *testing.T) {
	t.Run("wipe leaves zeros", func(t *testing.T) {
		b := []byte("sensitive key material here!")
		Wipe(b)
		for _, v := range b {
			assert.Equal(t, byte(0), v)
		}
	})

	t.Run("wipe empty slice", func(t *testing.T) {
		assert.NotPanics(t, func() { Wipe(nil) })
		assert.NotPanics(t, func() { Wipe([]byte{}) })
	})
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal([]byte("abc"), []byte("abc")))
	assert.False(t, Equal([]byte("abc"), []byte("abd")))
	assert.False(t, Equal([]byte("abc"), []byte("abcd")))
	assert.True(t, Equal(nil, []byte{}))
}

func TestScoped(t *testing.T) {
	t.Run("release wipes exactly once", func(t *testing.T) {
		s := NewScoped(16)
		copy(s.Bytes(), "0123456789abcdef")

		s.Release()
		for _, v := range s.Bytes() {
			assert.Equal(t, byte(0), v)
		}

		// A second release must not panic or wipe a reused buffer.
		assert.NotPanics(t, func() { s.Release() })
	})

	t.Run("concurrent release is safe", func(t *testing.T) {
		s := NewScoped(32)
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Release()
			}()
		}
		wg.Wait()
		for _, v := range s.Bytes() {
			assert.Equal(t, byte(0), v)
		}
	})
}

func TestReleaseAll(t *testing.T) {
	s1 := NewScoped(8)
	s2 := NewScoped(8)
	copy(s1.Bytes(), "aaaaaaaa")
	copy(s2.Bytes(), "bbbbbbbb")

	ReleaseAll()

	for _, v := range s1.Bytes() {
		assert.Equal(t, byte(0), v)
	}
	for _, v := range s2.Bytes() {
		assert.Equal(t, byte(0), v)
	}
}
