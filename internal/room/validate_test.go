package room

import (
	"errors"
	"math"
	"testing"
)

func TestValidateMove(t *testing.T) {
	cases := []struct {
		name string
		move Move
		want error
	}{
		{"valid", Move{X: f(5), Y: f(2), Z: f(0), RotationY: f(1.2)}, nil},
		{"negative inside bound", Move{X: f(-999.99), Y: f(0), Z: f(999.99), RotationY: f(0)}, nil},
		{"large heading", Move{X: f(0), Y: f(0), Z: f(0), RotationY: f(1e6)}, nil},
		{"missing x", Move{Y: f(0), Z: f(0), RotationY: f(0)}, errMissingField},
		{"missing rotation", Move{X: f(0), Y: f(0), Z: f(0)}, errMissingField},
		{"nan x", Move{X: f(math.NaN()), Y: f(0), Z: f(0), RotationY: f(0)}, errNotFinite},
		{"infinite z", Move{X: f(0), Y: f(0), Z: f(math.Inf(-1)), RotationY: f(0)}, errNotFinite},
		{"nan heading", Move{X: f(0), Y: f(0), Z: f(0), RotationY: f(math.NaN())}, errNotFinite},
		{"infinite heading", Move{X: f(0), Y: f(0), Z: f(0), RotationY: f(math.Inf(1))}, errNotFinite},
		{"x beyond bound", Move{X: f(2000), Y: f(0), Z: f(0), RotationY: f(0)}, errOutOfBounds},
		{"y on bound", Move{X: f(0), Y: f(1000), Z: f(0), RotationY: f(0)}, errOutOfBounds},
		{"z on negative bound", Move{X: f(0), Y: f(0), Z: f(-1000), RotationY: f(0)}, errOutOfBounds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateMove(tc.move)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected move to be accepted, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyMoveKeepsIdentity(t *testing.T) {
	p := Participant{SessionID: "s1", UserID: "u1", AvatarID: "a1", AvatarURL: "https://cdn/a.glb", Animation: AnimationRun}
	moved := applyMove(p, Move{X: f(1), Y: f(2), Z: f(3), RotationY: f(0.5), Animation: "walk"})

	if moved.SessionID != "s1" || moved.UserID != "u1" || moved.AvatarID != "a1" {
		t.Fatalf("move changed identity fields: %+v", moved)
	}
	if moved.Position != (Vec3{X: 1, Y: 2, Z: 3}) || moved.Heading != 0.5 || moved.Animation != AnimationWalk {
		t.Fatalf("unexpected pose after move: %+v", moved)
	}
	if moved.AvatarURL != "https://cdn/a.glb" {
		t.Fatalf("empty avatar url must keep the stored value, got %q", moved.AvatarURL)
	}
}
