package room

import (
	"errors"
	"fmt"
	"math"
)

// PositionLimit bounds every coordinate: |x|, |y|, |z| must stay below it.
const PositionLimit = 1000.0

var (
	errMissingField = errors.New("missing numeric field")
	errNotFinite    = errors.New("non-finite value")
	errOutOfBounds  = errors.New("coordinate out of bounds")
)

// Move is a decoded move message. Numeric fields are pointers so a field the
// client omitted, or sent with a non-numeric type, is distinguishable from zero.
type Move struct {
	X         *float64
	Y         *float64
	Z         *float64
	RotationY *float64
	Animation string
	AvatarURL string
}

// ValidateMove reports why a move must be dropped, or nil when every rule
// holds: all four fields present, none NaN or infinite, and each coordinate
// strictly inside (-PositionLimit, PositionLimit). The heading is unbounded.
func ValidateMove(m Move) error {
	fields := []struct {
		name    string
		value   *float64
		bounded bool
	}{
		{"x", m.X, true},
		{"y", m.Y, true},
		{"z", m.Z, true},
		{"rotationY", m.RotationY, false},
	}
	for _, field := range fields {
		if field.value == nil {
			return fmt.Errorf("%w: %s", errMissingField, field.name)
		}
		v := *field.value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s", errNotFinite, field.name)
		}
		if field.bounded && math.Abs(v) >= PositionLimit {
			return fmt.Errorf("%w: %s=%g", errOutOfBounds, field.name, v)
		}
	}
	return nil
}

// applyMove overwrites the pose of p with a validated move.
func applyMove(p Participant, m Move) Participant {
	p.Position = Vec3{X: *m.X, Y: *m.Y, Z: *m.Z}
	p.Heading = *m.RotationY
	p.Animation = ParseAnimation(m.Animation)
	if avatar := avatarValue(m.AvatarURL); avatar != "" {
		p.AvatarURL = avatar
	}
	return p
}
