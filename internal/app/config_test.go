package app

import (
	"testing"
	"time"

	"metaverse/server/internal/room"
	"metaverse/server/internal/telemetry"
	"metaverse/server/logging"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadSettingsDefaults(t *testing.T) {
	s := loadSettings(envFrom(nil), telemetry.DiscardLogger())
	if s.Addr != ":3000" {
		t.Fatalf("expected default addr :3000, got %q", s.Addr)
	}
	defaults := room.DefaultConfig()
	if s.Room.Name != defaults.Name || s.Room.MaxPlayers != defaults.MaxPlayers || !s.Room.EnforceCapacity {
		t.Fatalf("unexpected room defaults: %+v", s.Room)
	}
	if !s.Logging.HasSink(sinkConsole) || s.Observability.EnablePprofTrace {
		t.Fatalf("unexpected ambient defaults: %+v %+v", s.Logging, s.Observability)
	}
}

func TestLoadSettingsOverrides(t *testing.T) {
	s := loadSettings(envFrom(map[string]string{
		"PORT":                    "8080",
		"ROOM_NAME":               " lobby ",
		"ROOM_MAX_PLAYERS":        "4",
		"ROOM_ENFORCE_CAPACITY":   "false",
		"ROOM_INACTIVITY_TIMEOUT": "30s",
		"ROOM_SWEEP_INTERVAL":     "2s",
		"ROOM_MOVE_RATE_LIMIT":    "20",
		"ENABLE_PPROF_TRACE":      "true",
		"LOG_SINKS":               "JSON, memory",
		"LOG_JSON_PATH":           "/tmp/events.jsonl",
		"LOG_MIN_SEVERITY":        "debug",
	}), telemetry.DiscardLogger())

	if s.Addr != ":8080" {
		t.Fatalf("expected addr :8080, got %q", s.Addr)
	}
	if s.Room.Name != "lobby" || s.Room.MaxPlayers != 4 || s.Room.EnforceCapacity {
		t.Fatalf("unexpected room identity: %+v", s.Room)
	}
	if s.Room.InactivityTimeout != 30*time.Second || s.Room.SweepInterval != 2*time.Second || s.Room.MoveRateLimit != 20 {
		t.Fatalf("unexpected room timing: %+v", s.Room)
	}
	if !s.Observability.EnablePprofTrace {
		t.Fatalf("expected pprof to be enabled")
	}
	if s.Logging.HasSink(sinkConsole) || !s.Logging.HasSink(sinkJSON) || !s.Logging.HasSink(sinkMemory) {
		t.Fatalf("unexpected sinks: %v", s.Logging.EnabledSinks)
	}
	if s.Logging.JSON.FilePath != "/tmp/events.jsonl" || s.Logging.MinimumSeverity != logging.SeverityDebug {
		t.Fatalf("unexpected logging config: %+v", s.Logging)
	}
}

func TestLoadSettingsZeroRateLimitDisablesThrottle(t *testing.T) {
	s := loadSettings(envFrom(map[string]string{"ROOM_MOVE_RATE_LIMIT": "0"}), telemetry.DiscardLogger())
	if s.Room.MoveRateLimit >= 0 {
		t.Fatalf("expected throttle to be disabled, got %d", s.Room.MoveRateLimit)
	}
}

func TestLoadSettingsIgnoresInvalidValues(t *testing.T) {
	s := loadSettings(envFrom(map[string]string{
		"PORT":                    "99999",
		"ROOM_MAX_PLAYERS":        "-3",
		"ROOM_ENFORCE_CAPACITY":   "maybe",
		"ROOM_INACTIVITY_TIMEOUT": "soon",
		"ROOM_SWEEP_INTERVAL":     "-1s",
		"ROOM_MOVE_RATE_LIMIT":    "fast",
		"LOG_SINKS":               "console,syslog",
		"LOG_MIN_SEVERITY":        "loud",
	}), telemetry.DiscardLogger())

	defaults := defaultSettings()
	if s.Addr != defaults.Addr || s.Room.MaxPlayers != defaults.Room.MaxPlayers || !s.Room.EnforceCapacity {
		t.Fatalf("expected invalid values to be ignored, got %+v", s)
	}
	if s.Room.InactivityTimeout != defaults.Room.InactivityTimeout || s.Room.SweepInterval != defaults.Room.SweepInterval {
		t.Fatalf("expected default timing, got %+v", s.Room)
	}
	if s.Room.MoveRateLimit != defaults.Room.MoveRateLimit {
		t.Fatalf("expected default rate limit, got %d", s.Room.MoveRateLimit)
	}
	if len(s.Logging.EnabledSinks) != 1 || s.Logging.EnabledSinks[0] != sinkConsole {
		t.Fatalf("expected unknown sinks to be dropped, got %v", s.Logging.EnabledSinks)
	}
	if s.Logging.MinimumSeverity != defaults.Logging.MinimumSeverity {
		t.Fatalf("expected default severity, got %v", s.Logging.MinimumSeverity)
	}
}
