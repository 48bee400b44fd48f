package net

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/pprof"
	"strings"
	"time"

	"metaverse/server/internal/observability"
	"metaverse/server/internal/registry"
	"metaverse/server/internal/room"
	"metaverse/server/internal/telemetry"
	"metaverse/server/logging"
)

// RoomDirectory is the registry surface the HTTP API needs.
type RoomDirectory interface {
	Names() []string
	Rooms() []room.Info
	Dispose(ctx context.Context, id string) error
}

type HTTPHandlerConfig struct {
	Logger telemetry.Logger
	// WebSocket serves /ws.
	WebSocket nethttp.Handler
	// Metrics is reported under "telemetry" on /diagnostics.
	Metrics *logging.Metrics
	// RouterStats reports logging router counters on /diagnostics.
	RouterStats   func() logging.RouterStats
	Observability observability.Config
	Clock         logging.Clock
	// DisposeTimeout bounds DELETE /rooms/{id}.
	DisposeTimeout time.Duration
}

func NewHTTPHandler(rooms RoomDirectory, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	disposeTimeout := cfg.DisposeTimeout
	if disposeTimeout <= 0 {
		disposeTimeout = 5 * time.Second
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		infos := rooms.Rooms()
		participants := 0
		for _, info := range infos {
			participants += info.Participants
		}
		payload := struct {
			Status       string               `json:"status"`
			ServerTime   int64                `json:"serverTime"`
			Definitions  []string             `json:"definitions"`
			Rooms        []room.Info          `json:"rooms"`
			Participants int                  `json:"participants"`
			Telemetry    map[string]uint64    `json:"telemetry"`
			Logging      *logging.RouterStats `json:"logging,omitempty"`
		}{
			Status:       "ok",
			ServerTime:   clock.Now().UnixMilli(),
			Definitions:  rooms.Names(),
			Rooms:        infos,
			Participants: participants,
			Telemetry:    cfg.Metrics.Snapshot(),
		}
		if cfg.RouterStats != nil {
			stats := cfg.RouterStats()
			payload.Logging = &stats
		}
		writeJSON(w, nethttp.StatusOK, payload)
	})

	mux.HandleFunc("/rooms", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		payload := struct {
			Rooms []room.Info `json:"rooms"`
		}{Rooms: rooms.Rooms()}
		writeJSON(w, nethttp.StatusOK, payload)
	})

	mux.HandleFunc("/rooms/", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/rooms/"), "/")
		if id == "" || strings.Contains(id, "/") {
			httpError(w, "not found", nethttp.StatusNotFound)
			return
		}
		switch r.Method {
		case nethttp.MethodGet:
			for _, info := range rooms.Rooms() {
				if info.ID == id {
					writeJSON(w, nethttp.StatusOK, info)
					return
				}
			}
			httpError(w, "room not found", nethttp.StatusNotFound)
		case nethttp.MethodDelete:
			ctx, cancel := context.WithTimeout(r.Context(), disposeTimeout)
			defer cancel()
			err := rooms.Dispose(ctx, id)
			switch {
			case errors.Is(err, registry.ErrRoomNotFound):
				httpError(w, "room not found", nethttp.StatusNotFound)
				return
			case err != nil:
				logger.Printf("failed to dispose room %s: %v", id, err)
				httpError(w, "failed to dispose room", nethttp.StatusInternalServerError)
				return
			}
			logger.Printf("room %s disposed via http", id)
			payload := struct {
				Status string `json:"status"`
				RoomID string `json:"roomId"`
			}{Status: "disposed", RoomID: id}
			writeJSON(w, nethttp.StatusOK, payload)
		default:
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
		}
	})

	if cfg.WebSocket != nil {
		mux.Handle("/ws", cfg.WebSocket)
	}

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
