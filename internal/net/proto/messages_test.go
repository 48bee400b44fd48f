package proto

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"metaverse/server/internal/room"
)

func TestJSONCodecDecodesMove(t *testing.T) {
	inbound, err := JSONCodec{}.Decode([]byte(`{"type":"move","payload":{"x":5,"y":2,"z":0,"rotationY":1.2,"animation":"walk"}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if inbound.Type != TypeMove {
		t.Fatalf("expected move type, got %q", inbound.Type)
	}
	payload, err := inbound.Move()
	if err != nil {
		t.Fatalf("decode move failed: %v", err)
	}
	move := payload.Move()
	if move.X == nil || *move.X != 5 || move.RotationY == nil || *move.RotationY != 1.2 {
		t.Fatalf("unexpected move: %+v", payload)
	}
	if move.Animation != "walk" {
		t.Fatalf("unexpected animation %q", move.Animation)
	}
	if err := room.ValidateMove(move); err != nil {
		t.Fatalf("expected decoded move to validate: %v", err)
	}
}

func TestJSONCodecMoveMissingAndMistypedFields(t *testing.T) {
	inbound, err := JSONCodec{}.Decode([]byte(`{"type":"move","payload":{"x":5,"z":0,"rotationY":0}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	payload, err := inbound.Move()
	if err != nil {
		t.Fatalf("decode move failed: %v", err)
	}
	if payload.Y != nil {
		t.Fatalf("expected missing y to stay nil")
	}
	if err := room.ValidateMove(payload.Move()); err == nil {
		t.Fatalf("expected move with missing y to be rejected")
	}

	inbound, err = JSONCodec{}.Decode([]byte(`{"type":"move","payload":{"x":"abc","y":0,"z":0,"rotationY":0}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if _, err := inbound.Move(); err == nil {
		t.Fatalf("expected string coordinate to fail decoding")
	}
}

func TestJSONCodecRejectsMalformedFrames(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  error
	}{
		{"empty", ``, ErrEmptyFrame},
		{"missing type", `{"payload":{}}`, ErrMissingType},
		{"not json", `move please`, nil},
		{"future version", `{"ver":9,"type":"move"}`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := JSONCodec{}.Decode([]byte(tc.frame))
			if err == nil {
				t.Fatalf("expected decode error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestJSONCodecLeaveWithoutPayload(t *testing.T) {
	inbound, err := JSONCodec{}.Decode([]byte(`{"type":"leave","payload":null}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if inbound.Type != TypeLeave {
		t.Fatalf("expected leave, got %q", inbound.Type)
	}
	if _, err := inbound.Heartbeat(); err != nil {
		t.Fatalf("decoding an absent payload should be a no-op: %v", err)
	}
}

func TestJSONCodecEncodesEnvelope(t *testing.T) {
	data, err := JSONCodec{}.Encode(TypeHeartbeat, HeartbeatAck{ServerTime: 2000, ClientTime: 1500, RTTMillis: 500})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var decoded struct {
		Ver     int            `json:"ver"`
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	if decoded.Ver != Version || decoded.Type != TypeHeartbeat {
		t.Fatalf("unexpected envelope: %+v", decoded)
	}
	if decoded.Payload["rtt"] != float64(500) {
		t.Fatalf("unexpected payload: %+v", decoded.Payload)
	}
}

func TestMsgpackCodecDecodesMove(t *testing.T) {
	frame, err := msgpack.Marshal(map[string]any{
		"type": TypeMove,
		"payload": map[string]any{
			"x":         5,
			"y":         2.5,
			"z":         -3,
			"rotationY": 0.25,
			"avatarUrl": "https://cdn/a.glb",
		},
	})
	if err != nil {
		t.Fatalf("failed to build frame: %v", err)
	}
	inbound, err := MsgpackCodec{}.Decode(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	payload, err := inbound.Move()
	if err != nil {
		t.Fatalf("decode move failed: %v", err)
	}
	if payload.X == nil || *payload.X != 5 || payload.Z == nil || *payload.Z != -3 {
		t.Fatalf("unexpected move payload: %+v", payload)
	}
	if payload.AvatarURL != "https://cdn/a.glb" {
		t.Fatalf("unexpected avatar url %q", payload.AvatarURL)
	}
}

func TestMsgpackCodecEncodesState(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	snapshot := room.Snapshot{
		RoomID:     "r1",
		MaxPlayers: 20,
		Sequence:   7,
		ServerTime: now,
		Players: map[string]room.Participant{
			"s1": {
				SessionID:  "s1",
				UserID:     "u1",
				Position:   room.Vec3{X: 1, Y: 2, Z: 3},
				Heading:    0.5,
				Animation:  room.AnimationRun,
				LastUpdate: now,
			},
		},
	}
	msgType, payload, err := FromEvent(room.Event{Kind: room.EventState, State: &snapshot})
	if err != nil {
		t.Fatalf("FromEvent failed: %v", err)
	}
	data, err := MsgpackCodec{}.Encode(msgType, payload)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded struct {
		Type    string       `msgpack:"type"`
		Payload StatePayload `msgpack:"payload"`
	}
	if err := msgpack.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	if decoded.Type != TypeState || decoded.Payload.Sequence != 7 || decoded.Payload.RoomID != "r1" {
		t.Fatalf("unexpected state envelope: %+v", decoded)
	}
	player := decoded.Payload.Players["s1"]
	if player.X != 1 || player.Z != 3 || player.Animation != "run" || player.UserID != "u1" {
		t.Fatalf("unexpected player state: %+v", player)
	}
	if player.LastUpdate != now.UnixMilli() {
		t.Fatalf("expected lastUpdate %d, got %d", now.UnixMilli(), player.LastUpdate)
	}
}

func TestFromEventWelcome(t *testing.T) {
	welcome := room.Welcome{RoomID: "r1", SessionID: "s1", PlayerID: "u1", SpawnPosition: room.Vec3{X: 5, Y: 2}}
	msgType, payload, err := FromEvent(room.Event{Kind: room.EventWelcome, Welcome: &welcome})
	if err != nil {
		t.Fatalf("FromEvent failed: %v", err)
	}
	if msgType != TypeWelcome {
		t.Fatalf("expected welcome type, got %q", msgType)
	}
	data, err := JSONCodec{}.Encode(msgType, payload)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var decoded struct {
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	if decoded.Payload["sessionId"] != "s1" || decoded.Payload["playerId"] != "u1" {
		t.Fatalf("unexpected welcome payload: %+v", decoded.Payload)
	}
	if _, ok := decoded.Payload["avatarId"]; ok {
		t.Fatalf("expected empty avatar id to be omitted")
	}

	if _, _, err := FromEvent(room.Event{Kind: room.EventWelcome}); err == nil {
		t.Fatalf("expected error for welcome without payload")
	}
}

func TestFromEventRejectsUnknownKind(t *testing.T) {
	_, _, err := FromEvent(room.Event{Kind: "bogus"})
	if err == nil {
		t.Fatalf("expected error for unknown event kind")
	}
	if !strings.Contains(err.Error(), `"bogus"`) {
		t.Fatalf("expected error to name the event kind, got %q", err)
	}
}

func TestNewHeartbeatAck(t *testing.T) {
	now := time.UnixMilli(10_000)
	ack := NewHeartbeatAck(now, 9_250)
	if ack.ServerTime != 10_000 || ack.ClientTime != 9_250 || ack.RTTMillis != 750 {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if ack := NewHeartbeatAck(now, 20_000); ack.RTTMillis != 0 {
		t.Fatalf("expected clock skew to report zero rtt, got %d", ack.RTTMillis)
	}
}

func TestCodecByName(t *testing.T) {
	for name, want := range map[string]string{"": CodecJSON, "json": CodecJSON, "MsgPack": CodecMsgpack} {
		codec, err := CodecByName(name)
		if err != nil {
			t.Fatalf("CodecByName(%q) failed: %v", name, err)
		}
		if codec.Name() != want {
			t.Fatalf("CodecByName(%q) = %s, want %s", name, codec.Name(), want)
		}
	}
	if _, err := CodecByName("xml"); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("expected ErrUnknownCodec, got %v", err)
	}
}
