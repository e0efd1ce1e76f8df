package webchat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// wsConn is the part of *websocket.Conn the pool writes to.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type poolClient struct {
	conn wsConn
	send chan []byte
	once sync.Once
}

func (c *poolClient) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

// ConnectionPool manages websocket connections for a conversation.
// Every connection gets its own buffered writer; a client that cannot keep
// up is dropped instead of stalling the broadcast.
type ConnectionPool struct {
	convID       string
	mu           sync.Mutex
	conns        map[wsConn]*poolClient
	sendBuffer   int
	writeTimeout time.Duration
	idleTimer    *time.Timer
	idleTimeout  time.Duration
	onIdle       func()
}

func NewConnectionPool(convID string, idleTimeout time.Duration, onIdle func()) *ConnectionPool {
	return &ConnectionPool{
		convID:       convID,
		conns:        map[wsConn]*poolClient{},
		sendBuffer:   64,
		writeTimeout: 10 * time.Second,
		idleTimeout:  idleTimeout,
		onIdle:       onIdle,
	}
}

func (cp *ConnectionPool) Add(conn wsConn) {
	if cp == nil || conn == nil {
		return
	}
	client := &poolClient{conn: conn, send: make(chan []byte, cp.sendBuffer)}
	cp.mu.Lock()
	cp.conns[conn] = client
	cp.stopIdleTimerLocked()
	cp.mu.Unlock()
	go cp.writeLoop(client)
}

func (cp *ConnectionPool) Remove(conn wsConn) {
	if cp == nil || conn == nil {
		return
	}
	cp.mu.Lock()
	client, ok := cp.conns[conn]
	delete(cp.conns, conn)
	cp.scheduleIdleTimerLocked()
	cp.mu.Unlock()
	if ok {
		client.close()
	} else {
		_ = conn.Close()
	}
}

func (cp *ConnectionPool) Broadcast(data []byte) {
	if cp == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for conn, client := range cp.conns {
		cp.enqueueLocked(conn, client, data)
	}
}

func (cp *ConnectionPool) SendToOne(conn wsConn, data []byte) {
	if cp == nil || conn == nil || len(data) == 0 {
		return
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if client, ok := cp.conns[conn]; ok {
		cp.enqueueLocked(conn, client, data)
	}
}

func (cp *ConnectionPool) enqueueLocked(conn wsConn, client *poolClient, data []byte) {
	select {
	case client.send <- data:
	default:
		log.Warn().Str("component", "webchat").Str("conv_id", cp.convID).Msg("ws send buffer full, dropping connection")
		delete(cp.conns, conn)
		client.close()
		cp.scheduleIdleTimerLocked()
	}
}

func (cp *ConnectionPool) writeLoop(client *poolClient) {
	for data := range client.send {
		if cp.writeTimeout > 0 {
			_ = client.conn.SetWriteDeadline(time.Now().Add(cp.writeTimeout))
		}
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Str("component", "webchat").Str("conv_id", cp.convID).Msg("ws write failed, dropping connection")
			cp.Remove(client.conn)
			return
		}
	}
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.conns)
}

func (cp *ConnectionPool) IsEmpty() bool {
	return cp.Count() == 0
}

func (cp *ConnectionPool) CloseAll() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	for conn, client := range cp.conns {
		client.close()
		delete(cp.conns, conn)
	}
	cp.stopIdleTimerLocked()
	cp.mu.Unlock()
}

func (cp *ConnectionPool) stopIdleTimerLocked() {
	if cp.idleTimer != nil {
		cp.idleTimer.Stop()
		cp.idleTimer = nil
	}
}

func (cp *ConnectionPool) scheduleIdleTimerLocked() {
	if len(cp.conns) != 0 || cp.idleTimeout <= 0 || cp.onIdle == nil {
		cp.stopIdleTimerLocked()
		return
	}
	if cp.idleTimer != nil {
		return
	}
	cp.idleTimer = time.AfterFunc(cp.idleTimeout, cp.triggerIdle)
}

func (cp *ConnectionPool) triggerIdle() {
	var callback func()
	cp.mu.Lock()
	if len(cp.conns) == 0 {
		callback = cp.onIdle
	}
	cp.idleTimer = nil
	cp.mu.Unlock()
	if callback != nil {
		callback()
	}
}
