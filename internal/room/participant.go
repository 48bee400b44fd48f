package room

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

// AvatarSentinel is the placeholder avatar value clients send when no avatar
// was chosen. It is never stored.
const AvatarSentinel = "default"

// Vec3 is a position in world units.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Animation is the closed vocabulary of participant animation states.
type Animation string

const (
	AnimationIdle Animation = "idle"
	AnimationWalk Animation = "walk"
	AnimationRun  Animation = "run"
	AnimationJump Animation = "jump"
)

// ParseAnimation coerces a client supplied animation name into the closed
// vocabulary. Unknown and empty values become AnimationIdle.
func ParseAnimation(raw string) Animation {
	switch Animation(strings.ToLower(strings.TrimSpace(raw))) {
	case AnimationWalk:
		return AnimationWalk
	case AnimationRun:
		return AnimationRun
	case AnimationJump:
		return AnimationJump
	default:
		return AnimationIdle
	}
}

// Participant is the server owned record of one connected session.
type Participant struct {
	SessionID  string
	UserID     string
	AvatarID   string
	AvatarURL  string
	Position   Vec3
	Heading    float64
	Animation  Animation
	LastUpdate time.Time
}

// JoinOptions are the profile attributes a client supplies when joining.
// They are advisory and not authenticated here.
type JoinOptions struct {
	UserID    string
	AvatarID  string
	AvatarURL string
}

// Welcome is sent to the joining session only.
type Welcome struct {
	RoomID        string
	SessionID     string
	PlayerID      string
	SpawnPosition Vec3
	AvatarID      string
	AvatarURL     string
}

func avatarValue(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == AvatarSentinel {
		return ""
	}
	return trimmed
}

// spawnPosition draws a point on the horizontal ring of the given radius
// around the origin, at the given height.
func spawnPosition(rng *rand.Rand, radius, height float64) Vec3 {
	angle := rng.Float64() * 2 * math.Pi
	return Vec3{
		X: math.Cos(angle) * radius,
		Y: height,
		Z: math.Sin(angle) * radius,
	}
}

func newParticipant(sessionID string, opts JoinOptions, spawn Vec3, now time.Time) Participant {
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		userID = sessionID
	}
	return Participant{
		SessionID:  sessionID,
		UserID:     userID,
		AvatarID:   avatarValue(opts.AvatarID),
		AvatarURL:  avatarValue(opts.AvatarURL),
		Position:   spawn,
		Animation:  AnimationIdle,
		LastUpdate: now,
	}
}
