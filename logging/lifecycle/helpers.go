package lifecycle

import (
	"context"

	"metaverse/server/logging"
)

const (
	// EventRoomCreated is emitted when a room becomes active.
	EventRoomCreated logging.EventType = "lifecycle.room_created"
	// EventRoomDisposed is emitted once a room has been torn down.
	EventRoomDisposed logging.EventType = "lifecycle.room_disposed"
	// EventPlayerJoined is emitted when a participant record is created.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerLeft is emitted when a participant record is removed.
	EventPlayerLeft logging.EventType = "lifecycle.player_left"
	// EventPlayerEvicted is emitted when the liveness sweep closes an idle session.
	EventPlayerEvicted logging.EventType = "lifecycle.player_evicted"
	// EventJoinFailed is emitted when a join could not complete.
	EventJoinFailed logging.EventType = "lifecycle.join_failed"
)

// RoomPayload describes the room being created or disposed.
type RoomPayload struct {
	Name         string `json:"name"`
	MaxPlayers   int    `json:"maxPlayers"`
	Participants int    `json:"participants"`
}

// PlayerJoinedPayload captures identity and spawn metadata for a new participant.
type PlayerJoinedPayload struct {
	UserID string  `json:"userId"`
	SpawnX float64 `json:"spawnX"`
	SpawnY float64 `json:"spawnY"`
	SpawnZ float64 `json:"spawnZ"`
	Total  int     `json:"total"`
}

// PlayerLeftPayload captures why a participant left.
type PlayerLeftPayload struct {
	UserID    string `json:"userId"`
	Voluntary bool   `json:"voluntary"`
	Remaining int    `json:"remaining"`
}

// PlayerEvictedPayload captures how long an evicted participant had been idle.
type PlayerEvictedPayload struct {
	IdleMillis    int64 `json:"idleMillis"`
	TimeoutMillis int64 `json:"timeoutMillis"`
}

// JoinFailedPayload captures the join failure reason.
type JoinFailedPayload struct {
	Reason string `json:"reason"`
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategoryLifecycle
	pub.Publish(ctx, event)
}

// RoomCreated publishes a room activation event.
func RoomCreated(ctx context.Context, pub logging.Publisher, roomID string, payload RoomPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventRoomCreated,
		Room:     roomID,
		Actor:    logging.RoomRef(roomID),
		Severity: logging.SeverityInfo,
		Payload:  payload,
	})
}

// RoomDisposed publishes a room disposal event.
func RoomDisposed(ctx context.Context, pub logging.Publisher, roomID string, seq uint64, payload RoomPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventRoomDisposed,
		Seq:      seq,
		Room:     roomID,
		Actor:    logging.RoomRef(roomID),
		Severity: logging.SeverityInfo,
		Payload:  payload,
	})
}

// PlayerJoined publishes a participant join event.
func PlayerJoined(ctx context.Context, pub logging.Publisher, roomID string, seq uint64, actor logging.EntityRef, payload PlayerJoinedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventPlayerJoined,
		Seq:      seq,
		Room:     roomID,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
	})
}

// PlayerLeft publishes a participant removal event.
func PlayerLeft(ctx context.Context, pub logging.Publisher, roomID string, seq uint64, actor logging.EntityRef, payload PlayerLeftPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventPlayerLeft,
		Seq:      seq,
		Room:     roomID,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
	})
}

// PlayerEvicted publishes an inactivity eviction.
func PlayerEvicted(ctx context.Context, pub logging.Publisher, roomID string, seq uint64, actor logging.EntityRef, payload PlayerEvictedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventPlayerEvicted,
		Seq:      seq,
		Room:     roomID,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Payload:  payload,
	})
}

// JoinFailed publishes an error level event for a join that was rolled back.
func JoinFailed(ctx context.Context, pub logging.Publisher, roomID string, actor logging.EntityRef, payload JoinFailedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventJoinFailed,
		Room:     roomID,
		Actor:    actor,
		Severity: logging.SeverityError,
		Payload:  payload,
	})
}
