package network

import (
	"context"

	"metaverse/server/logging"
)

const (
	// EventMoveRejected is emitted when a move message fails validation.
	EventMoveRejected logging.EventType = "network.move_rejected"
	// EventMoveThrottled is emitted when a session exceeds the move rate limit.
	EventMoveThrottled logging.EventType = "network.move_throttled"
	// EventMessageMalformed is emitted when an inbound frame cannot be decoded.
	EventMessageMalformed logging.EventType = "network.message_malformed"
)

// MoveRejectedPayload captures the validation failure.
type MoveRejectedPayload struct {
	Reason string `json:"reason"`
}

// MoveThrottledPayload captures throttle counters for a session.
type MoveThrottledPayload struct {
	Dropped uint64 `json:"dropped"`
	Limit   int    `json:"limit"`
}

// MessageMalformedPayload captures the decode failure.
type MessageMalformedPayload struct {
	Codec string `json:"codec"`
	Error string `json:"error"`
}

// MoveRejected publishes a debug event for a dropped move.
func MoveRejected(ctx context.Context, pub logging.Publisher, roomID string, actor logging.EntityRef, payload MoveRejectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMoveRejected,
		Room:     roomID,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// MoveThrottled publishes a warning for a throttled session.
func MoveThrottled(ctx context.Context, pub logging.Publisher, roomID string, actor logging.EntityRef, payload MoveThrottledPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMoveThrottled,
		Room:     roomID,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// MessageMalformed publishes a debug event for an undecodable frame.
func MessageMalformed(ctx context.Context, pub logging.Publisher, roomID string, actor logging.EntityRef, payload MessageMalformedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMessageMalformed,
		Room:     roomID,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
