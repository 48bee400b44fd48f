package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"metaverse/server/internal/room"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	// Client message type identifiers.
	TypeMove      = "move"
	TypeHeartbeat = "heartbeat"
	TypeLeave     = "leave"

	// Server message type identifiers.
	TypeWelcome = "welcome"
	TypeState   = "state"
)

var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrMissingType  = errors.New("message type missing")
	ErrUnknownCodec = errors.New("unknown codec")
)

// Vec3 is a position on the wire.
type Vec3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// MovePayload is the client's requested pose. Numeric fields are pointers so
// an omitted field reaches validation as missing rather than zero.
type MovePayload struct {
	X         *float64 `json:"x" msgpack:"x" jsonschema:"description=World x coordinate, exclusive bound 1000"`
	Y         *float64 `json:"y" msgpack:"y" jsonschema:"description=World y coordinate, exclusive bound 1000"`
	Z         *float64 `json:"z" msgpack:"z" jsonschema:"description=World z coordinate, exclusive bound 1000"`
	RotationY *float64 `json:"rotationY" msgpack:"rotationY" jsonschema:"description=Heading in radians"`
	Animation string   `json:"animation,omitempty" msgpack:"animation,omitempty" jsonschema:"enum=idle,enum=walk,enum=run,enum=jump"`
	AvatarURL string   `json:"avatarUrl,omitempty" msgpack:"avatarUrl,omitempty"`
}

// Move converts the payload into the room's move command.
func (p MovePayload) Move() room.Move {
	return room.Move{
		X:         p.X,
		Y:         p.Y,
		Z:         p.Z,
		RotationY: p.RotationY,
		Animation: p.Animation,
		AvatarURL: p.AvatarURL,
	}
}

// HeartbeatPayload carries the client's send timestamp in unix milliseconds.
type HeartbeatPayload struct {
	SentAt int64 `json:"sentAt" msgpack:"sentAt"`
}

// HeartbeatAck echoes timing metadata back to the client.
type HeartbeatAck struct {
	ServerTime int64 `json:"serverTime" msgpack:"serverTime"`
	ClientTime int64 `json:"clientTime" msgpack:"clientTime"`
	RTTMillis  int64 `json:"rtt" msgpack:"rtt"`
}

// NewHeartbeatAck measures the round trip from the client's timestamp.
func NewHeartbeatAck(now time.Time, sentAt int64) HeartbeatAck {
	ack := HeartbeatAck{
		ServerTime: now.UnixMilli(),
		ClientTime: sentAt,
	}
	if sentAt > 0 && ack.ServerTime >= sentAt {
		ack.RTTMillis = ack.ServerTime - sentAt
	}
	return ack
}

// WelcomePayload is sent to the joining session only.
type WelcomePayload struct {
	RoomID        string `json:"roomId" msgpack:"roomId"`
	SessionID     string `json:"sessionId" msgpack:"sessionId"`
	PlayerID      string `json:"playerId" msgpack:"playerId"`
	SpawnPosition Vec3   `json:"spawnPosition" msgpack:"spawnPosition"`
	AvatarID      string `json:"avatarId,omitempty" msgpack:"avatarId,omitempty"`
	AvatarURL     string `json:"avatarUrl,omitempty" msgpack:"avatarUrl,omitempty"`
}

func NewWelcome(w room.Welcome) WelcomePayload {
	return WelcomePayload{
		RoomID:        w.RoomID,
		SessionID:     w.SessionID,
		PlayerID:      w.PlayerID,
		SpawnPosition: vec(w.SpawnPosition),
		AvatarID:      w.AvatarID,
		AvatarURL:     w.AvatarURL,
	}
}

// PlayerState is one participant in a state broadcast.
type PlayerState struct {
	X          float64 `json:"x" msgpack:"x"`
	Y          float64 `json:"y" msgpack:"y"`
	Z          float64 `json:"z" msgpack:"z"`
	RotationY  float64 `json:"rotationY" msgpack:"rotationY"`
	Animation  string  `json:"animation" msgpack:"animation"`
	UserID     string  `json:"userId" msgpack:"userId"`
	AvatarID   string  `json:"avatarId,omitempty" msgpack:"avatarId,omitempty"`
	AvatarURL  string  `json:"avatarUrl,omitempty" msgpack:"avatarUrl,omitempty"`
	LastUpdate int64   `json:"lastUpdate" msgpack:"lastUpdate" jsonschema:"description=Unix milliseconds of the last accepted move or the join"`
}

// StatePayload is the full room state pushed after every mutation.
type StatePayload struct {
	RoomID     string                 `json:"roomId" msgpack:"roomId"`
	MaxPlayers int                    `json:"maxPlayers" msgpack:"maxPlayers"`
	Sequence   uint64                 `json:"seq" msgpack:"seq"`
	ServerTime int64                  `json:"serverTime" msgpack:"serverTime"`
	Players    map[string]PlayerState `json:"players" msgpack:"players"`
}

func NewState(s room.Snapshot) StatePayload {
	players := make(map[string]PlayerState, len(s.Players))
	for id, p := range s.Players {
		players[id] = PlayerState{
			X:          p.Position.X,
			Y:          p.Position.Y,
			Z:          p.Position.Z,
			RotationY:  p.Heading,
			Animation:  string(p.Animation),
			UserID:     p.UserID,
			AvatarID:   p.AvatarID,
			AvatarURL:  p.AvatarURL,
			LastUpdate: p.LastUpdate.UnixMilli(),
		}
	}
	return StatePayload{
		RoomID:     s.RoomID,
		MaxPlayers: s.MaxPlayers,
		Sequence:   s.Sequence,
		ServerTime: s.ServerTime.UnixMilli(),
		Players:    players,
	}
}

// FromEvent maps a room event to its wire type and payload.
func FromEvent(event room.Event) (string, any, error) {
	switch event.Kind {
	case room.EventWelcome:
		if event.Welcome == nil {
			return "", nil, errors.New("welcome event without payload")
		}
		return TypeWelcome, NewWelcome(*event.Welcome), nil
	case room.EventState:
		if event.State == nil {
			return "", nil, errors.New("state event without payload")
		}
		return TypeState, NewState(*event.State), nil
	default:
		return "", nil, fmt.Errorf("unsupported room event %q", event.Kind)
	}
}

func vec(v room.Vec3) Vec3 {
	return Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// Catalog lists every payload on the wire. It only exists to be reflected
// into a JSON Schema.
type Catalog struct {
	Version      int              `json:"version"`
	Move         MovePayload      `json:"move" jsonschema:"description=Client to server: requested pose"`
	Heartbeat    HeartbeatPayload `json:"heartbeat" jsonschema:"description=Client to server: liveness check"`
	HeartbeatAck HeartbeatAck     `json:"heartbeatAck" jsonschema:"description=Server to client: heartbeat reply"`
	Welcome      WelcomePayload   `json:"welcome" jsonschema:"description=Server to client: sent once after joining"`
	State        StatePayload     `json:"state" jsonschema:"description=Server to client: full room state"`
}

// Inbound is a decoded client envelope whose payload has not been decoded yet.
type Inbound struct {
	Type      string
	payload   []byte
	unmarshal func([]byte, any) error
}

func (m Inbound) decode(v any) error {
	if len(m.payload) == 0 || m.unmarshal == nil {
		return nil
	}
	return m.unmarshal(m.payload, v)
}

// Move decodes a move payload. A payload with a wrongly typed field is an
// error; callers treat it like any other invalid move.
func (m Inbound) Move() (MovePayload, error) {
	var payload MovePayload
	if err := m.decode(&payload); err != nil {
		return MovePayload{}, fmt.Errorf("decode move: %w", err)
	}
	return payload, nil
}

func (m Inbound) Heartbeat() (HeartbeatPayload, error) {
	var payload HeartbeatPayload
	if err := m.decode(&payload); err != nil {
		return HeartbeatPayload{}, fmt.Errorf("decode heartbeat: %w", err)
	}
	return payload, nil
}

// Codec frames envelopes for one websocket connection.
type Codec interface {
	Name() string
	// Binary reports whether frames go out as binary websocket messages.
	Binary() bool
	Encode(msgType string, payload any) ([]byte, error)
	Decode(frame []byte) (Inbound, error)
}

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// CodecByName resolves the codec query parameter. Empty selects JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

type jsonEnvelope struct {
	Ver     int             `json:"ver,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JSONCodec speaks text frames.
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Encode(msgType string, payload any) ([]byte, error) {
	frame := struct {
		Ver     int    `json:"ver"`
		Type    string `json:"type"`
		Payload any    `json:"payload,omitempty"`
	}{
		Ver:     Version,
		Type:    msgType,
		Payload: payload,
	}
	return json.Marshal(frame)
}

func (JSONCodec) Decode(frame []byte) (Inbound, error) {
	if len(frame) == 0 {
		return Inbound{}, ErrEmptyFrame
	}
	var env jsonEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Inbound{}, err
	}
	if env.Ver != 0 && env.Ver != Version {
		return Inbound{}, fmt.Errorf("unsupported client protocol version %d", env.Ver)
	}
	if env.Type == "" {
		return Inbound{}, ErrMissingType
	}
	payload := []byte(env.Payload)
	if string(payload) == "null" {
		payload = nil
	}
	return Inbound{Type: env.Type, payload: payload, unmarshal: json.Unmarshal}, nil
}

type msgpackEnvelope struct {
	Ver     int                `msgpack:"ver,omitempty"`
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// MsgpackCodec speaks binary frames.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return CodecMsgpack }

func (MsgpackCodec) Binary() bool { return true }

func (MsgpackCodec) Encode(msgType string, payload any) ([]byte, error) {
	frame := struct {
		Ver     int    `msgpack:"ver"`
		Type    string `msgpack:"type"`
		Payload any    `msgpack:"payload,omitempty"`
	}{
		Ver:     Version,
		Type:    msgType,
		Payload: payload,
	}
	return msgpack.Marshal(&frame)
}

func (MsgpackCodec) Decode(frame []byte) (Inbound, error) {
	if len(frame) == 0 {
		return Inbound{}, ErrEmptyFrame
	}
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(frame, &env); err != nil {
		return Inbound{}, err
	}
	if env.Ver != 0 && env.Ver != Version {
		return Inbound{}, fmt.Errorf("unsupported client protocol version %d", env.Ver)
	}
	if env.Type == "" {
		return Inbound{}, ErrMissingType
	}
	return Inbound{Type: env.Type, payload: []byte(env.Payload), unmarshal: msgpack.Unmarshal}, nil
}
