package ws

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"metaverse/server/internal/net/proto"
	"metaverse/server/internal/room"
	"metaverse/server/internal/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	defaultSendBuffer = 64
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSlowConsumer  = errors.New("send queue full")
)

const reasonSlowConsumer = "Slow consumer"

type frame struct {
	messageType int
	data        []byte
}

// Session is the room.Session of one websocket connection. Frames are queued
// and written by a single pump goroutine so Send never blocks the room.
type Session struct {
	id      string
	conn    *websocket.Conn
	codec   proto.Codec
	logger  telemetry.Logger
	metrics telemetry.Metrics

	queue   chan frame
	closing chan struct{}
	done    chan struct{}

	closeOnce   sync.Once
	mu          sync.Mutex
	closeCode   int
	closeReason string
}

func newSession(id string, conn *websocket.Conn, codec proto.Codec, buffer int, logger telemetry.Logger, metrics telemetry.Metrics) *Session {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Session{
		id:      id,
		conn:    conn,
		codec:   codec,
		logger:  logger,
		metrics: metrics,
		queue:   make(chan frame, buffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Send encodes a room event and queues it. A full queue closes the session.
func (s *Session) Send(event room.Event) error {
	msgType, payload, err := proto.FromEvent(event)
	if err != nil {
		return err
	}
	return s.sendMessage(msgType, payload)
}

func (s *Session) sendMessage(msgType string, payload any) error {
	data, err := s.codec.Encode(msgType, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	messageType := websocket.TextMessage
	if s.codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	return s.enqueue(frame{messageType: messageType, data: data})
}

func (s *Session) enqueue(f frame) error {
	select {
	case <-s.closing:
		return ErrSessionClosed
	default:
	}
	select {
	case s.queue <- f:
		return nil
	case <-s.closing:
		return ErrSessionClosed
	default:
	}
	s.metrics.Add(telemetry.MetricSlowConsumers, 1)
	s.logger.Printf("[ws] session %s send queue full, disconnecting", s.id)
	s.Close(room.CloseTryAgainLater, reasonSlowConsumer)
	return ErrSlowConsumer
}

// Close asks the pump to flush queued frames, send a close frame with code
// and reason, and drop the connection. Only the first call has an effect.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeCode = code
		s.closeReason = reason
		s.mu.Unlock()
		close(s.closing)
	})
}

// Done is closed once the connection has been released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// CloseStatus reports the code and reason the session was closed with.
func (s *Session) CloseStatus() (int, string, bool) {
	select {
	case <-s.closing:
	default:
		return 0, "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode, s.closeReason, true
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		close(s.done)
	}()

	for {
		select {
		case f := <-s.queue:
			if err := s.write(f); err != nil {
				s.logger.Printf("[ws] failed to send to %s: %v", s.id, err)
				s.Close(room.CloseGoingAway, "")
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.Close(room.CloseGoingAway, "")
				return
			}
		case <-s.closing:
			s.flush()
			code, reason, _ := s.CloseStatus()
			message := websocket.FormatCloseMessage(code, reason)
			s.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Session) flush() {
	for {
		select {
		case f := <-s.queue:
			if err := s.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(f frame) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(f.messageType, f.data); err != nil {
		return err
	}
	s.metrics.Add(telemetry.MetricFramesSent, 1)
	s.metrics.Add(telemetry.MetricBytesSent, uint64(len(f.data)))
	return nil
}

var _ room.Session = (*Session)(nil)
