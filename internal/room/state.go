package room

import (
	"sort"
	"time"
)

// Snapshot is an immutable copy of the shared state. Players is freshly
// allocated for every snapshot and never mutated afterwards, so it can be
// handed to sessions on other goroutines.
type Snapshot struct {
	RoomID     string
	MaxPlayers int
	Sequence   uint64
	ServerTime time.Time
	Players    map[string]Participant
}

// SessionIDs returns the participant keys in sorted order.
func (s Snapshot) SessionIDs() []string {
	ids := make([]string, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// State is the single source of truth for one room. It stores participants by
// value so callers only ever receive copies. State is not safe for
// concurrent use; the owning Room serialises every access.
type State struct {
	roomID       string
	maxPlayers   int
	participants map[string]Participant
	sequence     uint64
}

func NewState(roomID string, maxPlayers int) *State {
	return &State{
		roomID:       roomID,
		maxPlayers:   maxPlayers,
		participants: make(map[string]Participant),
	}
}

func (s *State) RoomID() string {
	return s.roomID
}

func (s *State) MaxPlayers() int {
	return s.maxPlayers
}

// Sequence increases by one on every mutation.
func (s *State) Sequence() uint64 {
	return s.sequence
}

func (s *State) Len() int {
	return len(s.participants)
}

// Set inserts or wholesale replaces the record keyed by p.SessionID.
func (s *State) Set(p Participant) {
	s.participants[p.SessionID] = p
	s.sequence++
}

// Remove deletes the record for sessionID. Removing an absent record is a
// no-op and does not advance the sequence.
func (s *State) Remove(sessionID string) (Participant, bool) {
	p, ok := s.participants[sessionID]
	if !ok {
		return Participant{}, false
	}
	delete(s.participants, sessionID)
	s.sequence++
	return p, true
}

func (s *State) Get(sessionID string) (Participant, bool) {
	p, ok := s.participants[sessionID]
	return p, ok
}

// Each visits every participant until fn returns false.
func (s *State) Each(fn func(Participant) bool) {
	for _, p := range s.participants {
		if !fn(p) {
			return
		}
	}
}

// SnapshotAll copies the whole state.
func (s *State) SnapshotAll(now time.Time) Snapshot {
	players := make(map[string]Participant, len(s.participants))
	for id, p := range s.participants {
		players[id] = p
	}
	return Snapshot{
		RoomID:     s.roomID,
		MaxPlayers: s.maxPlayers,
		Sequence:   s.sequence,
		ServerTime: now,
		Players:    players,
	}
}

func (s *State) clear() {
	if len(s.participants) == 0 {
		return
	}
	s.participants = make(map[string]Participant)
	s.sequence++
}
