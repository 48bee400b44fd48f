package room

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestParseAnimation(t *testing.T) {
	cases := map[string]Animation{
		"":         AnimationIdle,
		"idle":     AnimationIdle,
		"walk":     AnimationWalk,
		" Run ":    AnimationRun,
		"JUMP":     AnimationJump,
		"dance":    AnimationIdle,
		"<script>": AnimationIdle,
	}
	for raw, want := range cases {
		if got := ParseAnimation(raw); got != want {
			t.Fatalf("ParseAnimation(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestSpawnPositionOnRing(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		spawn := spawnPosition(rng, 5, 2)
		if d := math.Hypot(spawn.X, spawn.Z); math.Abs(d-5) > 1e-9 {
			t.Fatalf("spawn %d at horizontal distance %v", i, d)
		}
		if spawn.Y != 2 {
			t.Fatalf("spawn %d at height %v", i, spawn.Y)
		}
	}
}

func TestNewParticipantDefaults(t *testing.T) {
	now := time.Unix(10, 0)
	p := newParticipant("s1", JoinOptions{UserID: "  ", AvatarID: " default ", AvatarURL: "https://cdn/x.glb"}, Vec3{X: 5, Y: 2}, now)

	if p.UserID != "s1" {
		t.Fatalf("expected blank user id to fall back to session id, got %q", p.UserID)
	}
	if p.AvatarID != "" {
		t.Fatalf("expected sentinel avatar id to be dropped, got %q", p.AvatarID)
	}
	if p.AvatarURL != "https://cdn/x.glb" {
		t.Fatalf("unexpected avatar url %q", p.AvatarURL)
	}
	if p.Animation != AnimationIdle || p.Heading != 0 || !p.LastUpdate.Equal(now) {
		t.Fatalf("unexpected initial pose: %+v", p)
	}
}
