package app

import (
	"strconv"
	"strings"
	"time"

	"metaverse/server/internal/observability"
	"metaverse/server/internal/room"
	"metaverse/server/internal/telemetry"
	"metaverse/server/logging"
)

const defaultPort = 3000

// settings is the process configuration resolved from the environment.
type settings struct {
	Addr          string
	Room          room.Config
	Logging       logging.Config
	Observability observability.Config
}

func defaultSettings() settings {
	return settings{
		Addr:    ":" + strconv.Itoa(defaultPort),
		Room:    room.DefaultConfig(),
		Logging: logging.DefaultConfig(),
	}
}

// loadSettings overlays environment variables on the defaults. Invalid values
// are logged and ignored.
func loadSettings(getenv func(string) string, logger telemetry.Logger) settings {
	s := defaultSettings()

	if raw := getenv("PORT"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 && value < 65536 {
			s.Addr = ":" + strconv.Itoa(value)
		} else {
			logger.Printf("invalid PORT=%q", raw)
		}
	}

	if raw := strings.TrimSpace(getenv("ROOM_NAME")); raw != "" {
		s.Room.Name = raw
	}
	if raw := getenv("ROOM_MAX_PLAYERS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			s.Room.MaxPlayers = value
		} else {
			logger.Printf("invalid ROOM_MAX_PLAYERS=%q", raw)
		}
	}
	if raw := getenv("ROOM_ENFORCE_CAPACITY"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			s.Room.EnforceCapacity = value
		} else {
			logger.Printf("invalid ROOM_ENFORCE_CAPACITY=%q: %v", raw, err)
		}
	}
	if raw := getenv("ROOM_INACTIVITY_TIMEOUT"); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil && value > 0 {
			s.Room.InactivityTimeout = value
		} else {
			logger.Printf("invalid ROOM_INACTIVITY_TIMEOUT=%q", raw)
		}
	}
	if raw := getenv("ROOM_SWEEP_INTERVAL"); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil && value > 0 {
			s.Room.SweepInterval = value
		} else {
			logger.Printf("invalid ROOM_SWEEP_INTERVAL=%q", raw)
		}
	}
	if raw := getenv("ROOM_MOVE_RATE_LIMIT"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			if value == 0 {
				value = -1
			}
			s.Room.MoveRateLimit = value
		} else {
			logger.Printf("invalid ROOM_MOVE_RATE_LIMIT=%q: %v", raw, err)
		}
	}

	if raw := getenv("ENABLE_PPROF_TRACE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			s.Observability.EnablePprofTrace = value
		} else {
			logger.Printf("invalid ENABLE_PPROF_TRACE=%q: %v", raw, err)
		}
	}

	if raw := getenv("LOG_SINKS"); raw != "" {
		var sinks []string
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			switch name {
			case "":
			case sinkConsole, sinkJSON, sinkMemory:
				sinks = append(sinks, name)
			default:
				logger.Printf("ignoring unknown log sink %q", name)
			}
		}
		s.Logging.EnabledSinks = sinks
	}
	if raw := strings.TrimSpace(getenv("LOG_JSON_PATH")); raw != "" {
		s.Logging.JSON.FilePath = raw
	}
	if raw := getenv("LOG_MIN_SEVERITY"); raw != "" {
		if severity, ok := logging.ParseSeverity(raw); ok {
			s.Logging.MinimumSeverity = severity
		} else {
			logger.Printf("invalid LOG_MIN_SEVERITY=%q", raw)
		}
	}

	return s
}
