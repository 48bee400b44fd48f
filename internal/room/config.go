package room

import (
	"math/rand"
	"time"

	"metaverse/server/internal/telemetry"
	"metaverse/server/logging"
)

const (
	DefaultName              = "metaverse_room"
	DefaultMaxPlayers        = 20
	DefaultInactivityTimeout = 120 * time.Second
	DefaultSweepInterval     = 5 * time.Second
	DefaultSpawnRadius       = 5.0
	DefaultSpawnHeight       = 2.0
	DefaultMoveRateLimit     = 60
	DefaultCommandBuffer     = 256
)

// Config tunes a room. Zero values are replaced by defaults in Normalized,
// except SpawnHeight, which is used as given so rooms can spawn at ground
// level. DefaultConfig sets it to DefaultSpawnHeight.
type Config struct {
	Name       string
	MaxPlayers int
	// EnforceCapacity rejects joins beyond MaxPlayers with ErrRoomFull. When
	// false MaxPlayers is advisory metadata only.
	EnforceCapacity   bool
	InactivityTimeout time.Duration
	// SweepInterval is the liveness sweep period. A negative value disables
	// the timer; Room.Sweep still runs a sweep on demand.
	SweepInterval time.Duration
	// SpawnRadius is the ring joiners spawn on. Values <= 0 select
	// DefaultSpawnRadius.
	SpawnRadius float64
	SpawnHeight float64
	// MoveRateLimit caps accepted moves per session per second. Negative
	// disables throttling.
	MoveRateLimit int
	CommandBuffer int

	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Clock     logging.Clock
	// Rand drives spawn angles. It is only used from the room goroutine.
	Rand *rand.Rand
}

// DefaultConfig returns the configuration used for the metaverse room.
func DefaultConfig() Config {
	return Config{
		Name:              DefaultName,
		MaxPlayers:        DefaultMaxPlayers,
		EnforceCapacity:   true,
		InactivityTimeout: DefaultInactivityTimeout,
		SweepInterval:     DefaultSweepInterval,
		SpawnRadius:       DefaultSpawnRadius,
		SpawnHeight:       DefaultSpawnHeight,
		MoveRateLimit:     DefaultMoveRateLimit,
		CommandBuffer:     DefaultCommandBuffer,
	}
}

// Normalized fills unset fields with defaults.
func (c Config) Normalized() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = DefaultMaxPlayers
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.SpawnRadius <= 0 {
		c.SpawnRadius = DefaultSpawnRadius
	}
	if c.MoveRateLimit == 0 {
		c.MoveRateLimit = DefaultMoveRateLimit
	}
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = DefaultCommandBuffer
	}
	if c.Logger == nil {
		c.Logger = telemetry.DiscardLogger()
	}
	if c.Publisher == nil {
		c.Publisher = logging.NopPublisher()
	}
	if c.Metrics == nil {
		c.Metrics = telemetry.NopMetrics()
	}
	if c.Clock == nil {
		c.Clock = logging.SystemClock{}
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}
