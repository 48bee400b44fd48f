package ws

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"metaverse/server/internal/net/proto"
	"metaverse/server/internal/registry"
	"metaverse/server/internal/room"
	"metaverse/server/internal/telemetry"
	"metaverse/server/logging"
	"metaverse/server/logging/network"
)

// Rooms places a session into a room.
type Rooms interface {
	JoinOrCreate(ctx context.Context, name string, session room.Session, opts room.JoinOptions) (*room.Room, room.Welcome, error)
}

type HandlerConfig struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Clock     logging.Clock
	// DefaultRoom is joined when the request names no room.
	DefaultRoom string
	SendBuffer  int
	// NewSessionID overrides session id generation. Defaults to random UUIDs.
	NewSessionID func() string
}

type Handler struct {
	rooms     Rooms
	logger    telemetry.Logger
	publisher logging.Publisher
	metrics   telemetry.Metrics
	clock     logging.Clock
	cfg       HandlerConfig
	upgrader  websocket.Upgrader
}

func NewHandler(rooms Rooms, cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.DiscardLogger()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NopMetrics()
	}
	if cfg.Clock == nil {
		cfg.Clock = logging.SystemClock{}
	}
	if cfg.DefaultRoom == "" {
		cfg.DefaultRoom = room.DefaultName
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = uuid.NewString
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		rooms:     rooms,
		logger:    cfg.Logger,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		clock:     cfg.Clock,
		cfg:       cfg,
		upgrader:  upgrader,
	}
}

// Handle upgrades the request, joins the requested room and pumps client
// messages into it until the connection ends.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	query := r.URL.Query()
	codec, err := proto.CodecByName(query.Get("codec"))
	if err != nil {
		nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
		return
	}
	roomName := strings.TrimSpace(query.Get("room"))
	if roomName == "" {
		roomName = h.cfg.DefaultRoom
	}
	opts := room.JoinOptions{
		UserID:    query.Get("userId"),
		AvatarID:  query.Get("avatarId"),
		AvatarURL: query.Get("avatarUrl"),
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for room %s: %v", roomName, err)
		return
	}

	session := newSession(h.cfg.NewSessionID(), conn, codec, h.cfg.SendBuffer, h.logger, h.metrics)
	go session.writePump()

	ctx := context.Background()
	rm, _, err := h.rooms.JoinOrCreate(ctx, roomName, session, opts)
	if err != nil {
		h.rejectJoin(session, roomName, err)
		<-session.Done()
		return
	}

	voluntary := h.readLoop(ctx, rm, session, conn, codec)

	if _, err := rm.Leave(ctx, session.ID(), voluntary); err != nil && !errors.Is(err, room.ErrRoomDisposed) {
		h.logger.Printf("leave failed for %s in room %s: %v", session.ID(), rm.ID(), err)
	}
	session.Close(room.CloseNormal, "")
	<-session.Done()
}

func (h *Handler) rejectJoin(session *Session, roomName string, err error) {
	switch {
	case errors.Is(err, room.ErrRoomFull):
		h.logger.Printf("rejecting %s: room %s is full", session.ID(), roomName)
		session.Close(room.CloseTryAgainLater, room.ReasonRoomFull)
	case errors.Is(err, registry.ErrUnknownRoomName):
		h.logger.Printf("rejecting %s: %v", session.ID(), err)
		session.Close(websocket.ClosePolicyViolation, "Unknown room")
	default:
		// The room already closed the session for join faults; Close is
		// idempotent so this only covers errors raised before the handler ran.
		h.logger.Printf("join failed for %s in %s: %v", session.ID(), roomName, err)
		session.Close(room.CloseServerError, room.ReasonJoinFailed)
	}
}

// readLoop dispatches client messages. It reports whether the client left on
// purpose.
func (h *Handler) readLoop(ctx context.Context, rm *room.Room, session *Session, conn *websocket.Conn, codec proto.Codec) bool {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return websocket.IsCloseError(err, websocket.CloseNormalClosure)
		}

		inbound, err := codec.Decode(data)
		if err != nil {
			h.malformed(ctx, rm, session, codec, err)
			continue
		}

		switch inbound.Type {
		case proto.TypeMove:
			payload, err := inbound.Move()
			if err != nil {
				h.malformed(ctx, rm, session, codec, err)
				continue
			}
			if err := rm.Move(ctx, session.ID(), payload.Move()); errors.Is(err, room.ErrRoomDisposed) {
				return false
			}
		case proto.TypeHeartbeat:
			payload, err := inbound.Heartbeat()
			if err != nil {
				h.malformed(ctx, rm, session, codec, err)
				continue
			}
			ack := proto.NewHeartbeatAck(h.clock.Now(), payload.SentAt)
			if err := session.sendMessage(proto.TypeHeartbeat, ack); err != nil {
				return false
			}
		case proto.TypeLeave:
			return true
		default:
			h.logger.Printf("unknown message type %q from %s", inbound.Type, session.ID())
		}
	}
}

func (h *Handler) malformed(ctx context.Context, rm *room.Room, session *Session, codec proto.Codec, err error) {
	h.metrics.Add(telemetry.MetricMalformedFrames, 1)
	network.MessageMalformed(ctx, h.publisher, rm.ID(), logging.PlayerRef(session.ID()), network.MessageMalformedPayload{
		Codec: codec.Name(),
		Error: err.Error(),
	})
}
