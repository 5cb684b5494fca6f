package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/wbms/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer (control messages are JSON)
	maxMessageSize = 4096

	// Messages buffered per peer before new ones are dropped
	sendQueueSize = 256
)

// outbound is one queued WebSocket message
type outbound struct {
	messageType int
	data        []byte
}

// peer is one connected WebSocket client. Only its write pump writes to
// conn.
type peer struct {
	conn       *websocket.Conn
	remoteAddr string
	send       chan outbound
	done       chan struct{}
}

// handleWebSocket upgrades the request and serves the peer until it
// disconnects.
//
// Binary messages carry frames: inbound [deviceId][frame], outbound
// [targetId][frame]. Text messages carry JSON control requests; replies,
// completions and events are sent back as JSON text messages.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	p := &peer{
		conn:       conn,
		remoteAddr: r.RemoteAddr,
		send:       make(chan outbound, sendQueueSize),
		done:       make(chan struct{}),
	}
	s.addPeer(p)
	logging.LogConnection(p.remoteAddr, "websocket_upgraded")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writePump(p)
	}()

	s.readLoop(p)

	s.removePeer(p)
	close(p.done)
	_ = conn.Close()
	logging.LogConnection(p.remoteAddr, "websocket_closed")
}

func (s *Server) addPeer(p *peer) {
	s.peersMu.Lock()
	s.peers[p] = struct{}{}
	s.peersMu.Unlock()
}

func (s *Server) removePeer(p *peer) {
	s.peersMu.Lock()
	delete(s.peers, p)
	s.peersMu.Unlock()
}

// broadcast queues msg for every peer. A peer with a full queue misses it.
func (s *Server) broadcast(msg outbound) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()

	for p := range s.peers {
		p.enqueue(msg)
	}
}

func (p *peer) enqueue(msg outbound) {
	select {
	case p.send <- msg:
	default:
		logging.Warn("Send queue full, dropping message",
			zap.String("remote_addr", p.remoteAddr),
			zap.Int("length", len(msg.data)),
		)
	}
}

// readLoop reads messages until the connection fails or closes
func (s *Server) readLoop(p *peer) {
	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Info("Connection closed with error",
					zap.String("remote_addr", p.remoteAddr),
					zap.Error(err),
				)
			}
			return
		}

		logging.LogWebSocketMessage(p.remoteAddr, "received", messageType, data)

		switch messageType {
		case websocket.BinaryMessage:
			if len(data) < 2 {
				logging.Warn("Bridge message too short",
					zap.String("remote_addr", p.remoteAddr),
					zap.Int("length", len(data)),
				)
				logging.LogRawBytes("Short bridge message", data)
				continue
			}
			s.deliver(data[0], data[1:])

		case websocket.TextMessage:
			s.handleControl(p, data)
		}
	}
}

// writePump writes queued messages and keepalive pings
func (s *Server) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return

		case msg := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				logging.Warn("Failed to send message",
					zap.String("remote_addr", p.remoteAddr),
					zap.Error(err),
				)
				_ = p.conn.Close()
				return
			}
			logging.LogWebSocketMessage(p.remoteAddr, "sent", msg.messageType, msg.data)

		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = p.conn.Close()
				return
			}
		}
	}
}
