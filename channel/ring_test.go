package channel

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), ChannelName)
	cons, err := Create(path, 1024)
	assert.NoError(t, err)
	defer cons.Close()

	prod, err := Open(path)
	assert.NoError(t, err)
	defer prod.Close()

	assert.True(t, prod.Put([]byte("hello")))
	assert.True(t, prod.Put([]byte("world")))

	frame, ok := cons.Get()
	assert.True(t, ok)
	assert.Equal(t, "hello", string(frame))
	frame, ok = cons.Get()
	assert.True(t, ok)
	assert.Equal(t, "world", string(frame))
	_, ok = cons.Get()
	assert.False(t, ok)
}

func TestWrapAround(t *testing.T) {
	path := filepath.Join(t.TempDir(), ChannelName)
	cons, err := Create(path, 64)
	assert.NoError(t, err)
	defer cons.Close()
	prod, err := Open(path)
	assert.NoError(t, err)
	defer prod.Close()

	// push the cursors far past the capacity
	for i := 0; i < 100; i++ {
		msg := fmt.Sprintf("frame-%02d", i)
		assert.True(t, prod.Put([]byte(msg)))
		got, ok := cons.Get()
		assert.True(t, ok)
		assert.Equal(t, msg, string(got))
	}
}

func TestBackpressure(t *testing.T) {
	path := filepath.Join(t.TempDir(), ChannelName)
	cons, err := Create(path, 64)
	assert.NoError(t, err)
	defer cons.Close()
	prod, err := Open(path)
	assert.NoError(t, err)
	defer prod.Close()

	frame := []byte("0123456789ab") // 16 bytes with header
	assert.True(t, prod.Put(frame))
	assert.True(t, prod.Put(frame))
	assert.True(t, prod.Put(frame))
	assert.True(t, prod.Put(frame))
	// full now
	assert.False(t, prod.Put(frame))

	_, ok := cons.Get()
	assert.True(t, ok)
	// one slot drained, fits again
	assert.True(t, prod.Put(frame))
	assert.False(t, prod.Put(frame))
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "absent"))
	assert.Error(t, err)

	_, err = Create(filepath.Join(dir, "odd"), 100)
	assert.ErrorIs(t, err, ErrRingSize)
}

func TestFollowerPath(t *testing.T) {
	assert.Equal(t, "/run/shm/42/config-follower-channel", FollowerPath("/run/shm", 42))
}
