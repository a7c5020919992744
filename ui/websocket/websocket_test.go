package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainConnection "github.com/AzielCF/az-wacrm/domains/connection"
	domainInstance "github.com/AzielCF/az-wacrm/domains/instance"
)

type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	failing  bool
	closed   bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if messageType == websocket.CloseMessage {
		return nil
	}
	if c.failing {
		return errors.New("broken pipe")
	}
	c.messages = append(c.messages, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() []BroadcastMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]BroadcastMessage, 0, len(c.messages))
	for _, raw := range c.messages {
		var msg BroadcastMessage
		_ = json.Unmarshal(raw, &msg)
		out = append(out, msg)
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestHub_BroadcastsStatusToEveryClient(t *testing.T) {
	hub := NewHub(nil, "server-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a, b := &fakeConn{}, &fakeConn{}
	hub.register <- a
	hub.register <- b

	hub.BroadcastStatus(domainInstance.StatusResponse{Status: domainConnection.StatusQRReady, Message: "Scan the QR code"})

	require.Eventually(t, func() bool { return len(a.received()) == 1 && len(b.received()) == 1 }, time.Second, 5*time.Millisecond)
	msg := a.received()[0]
	assert.Equal(t, CodeConnectionStatus, msg.Code)
	assert.Equal(t, "Scan the QR code", msg.Message)
	result, ok := msg.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "qr_ready", result["status"])
}

func TestHub_DropsBrokenClients(t *testing.T) {
	hub := NewHub(nil, "server-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	broken, healthy := &fakeConn{failing: true}, &fakeConn{}
	hub.register <- broken
	hub.register <- healthy

	hub.Broadcast(BroadcastMessage{Code: CodeConnectionStatus, Message: "first"})
	require.Eventually(t, broken.isClosed, time.Second, 5*time.Millisecond)

	hub.Broadcast(BroadcastMessage{Code: CodeConnectionStatus, Message: "second"})
	require.Eventually(t, func() bool { return len(healthy.received()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub(nil, "server-1")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c := &fakeConn{}
	hub.register <- c
	cancel()
	<-done
	assert.True(t, c.isClosed())
}
