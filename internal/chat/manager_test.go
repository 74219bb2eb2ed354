package chat

import (
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
)

func TestConnectionManagerRegister(t *testing.T) {
	cm := NewConnectionManager()
	conn := &websocket.Conn{}

	cm.Register("anon_1", "sess-1", conn)

	assert.Same(t, conn, cm.GetActive("anon_1", "sess-1"))
	assert.Nil(t, cm.GetActive("anon_1", "sess-2"))
	assert.Equal(t, 1, cm.Count())
}

func TestConnectionManagerIsLive(t *testing.T) {
	cm := NewConnectionManager()
	conn := &websocket.Conn{}

	cm.Register("anon_1", "sess-1", conn)
	assert.True(t, cm.IsLive("anon_1", "sess-1"))
	assert.False(t, cm.IsLive("anon_2", "sess-1"))

	cm.Unregister("anon_1", "sess-1", conn)
	assert.False(t, cm.IsLive("anon_1", "sess-1"))
}

func TestConnectionManagerUnregister(t *testing.T) {
	cm := NewConnectionManager()
	conn := &websocket.Conn{}

	cm.Register("anon_1", "sess-1", conn)
	cm.Unregister("anon_1", "sess-1", conn)

	assert.Nil(t, cm.GetActive("anon_1", "sess-1"))
	assert.Zero(t, cm.Count())
}

func TestConnectionManagerUnregisterKeepsOtherTabs(t *testing.T) {
	cm := NewConnectionManager()
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	cm.Register("anon_1", "sess-1", conn1)
	cm.Register("anon_1", "sess-2", conn2)
	cm.Unregister("anon_1", "sess-1", conn1)

	assert.Same(t, conn2, cm.GetActive("anon_1", "sess-2"))
	assert.Equal(t, 1, cm.Count())
}

func TestConnectionManagerIgnoresStaleUnregister(t *testing.T) {
	cm := NewConnectionManager()
	conn := &websocket.Conn{}

	cm.Register("anon_1", "sess-1", conn)
	cm.Unregister("anon_1", "sess-1", &websocket.Conn{})

	assert.Same(t, conn, cm.GetActive("anon_1", "sess-1"))
}

func TestConnectionManagerConcurrentAccess(t *testing.T) {
	cm := NewConnectionManager()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			cm.Register("anon_1", "sess-"+strconv.Itoa(i), &websocket.Conn{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			cm.GetActive("anon_1", "sess-"+strconv.Itoa(i))
		}
	}()

	wg.Wait()
	assert.Equal(t, 1000, cm.Count())
}
