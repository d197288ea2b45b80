// Package game defines the contract every deterministic board/physics rule
// set implements. Match orchestration depends only on Engine; concrete games
// live in sub-packages and self-register from init().
package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Validation errors. A move rejected with one of these leaves no trace.
var (
	ErrInvalidMove      = errors.New("invalid move")
	ErrCellOccupied     = errors.New("cell occupied")
	ErrMalformedWitness = errors.New("malformed win witness")
	ErrWinNotProven     = errors.New("win not proven")
	ErrBadState         = errors.New("malformed state blob")
	ErrSeats            = errors.New("unsupported seat count")
)

// ErrInvariant marks a value that escaped its declared range. It should be
// unreachable after validation; callers abort the whole operation.
var ErrInvariant = errors.New("game invariant violated")

// NoWinner is returned by Resolve when a terminal state has no winning seat.
const NoWinner = -1

// Transition is the result of applying one move.
type Transition struct {
	States     [][]byte
	Terminal   bool
	ScoreDelta uint64
}

// Engine is a pure, deterministic state-transition rule set.
//
// States are opaque fixed-width blobs. Per-player games return one blob per
// seat from NewStates; shared-board games return a single blob. Apply must
// not modify its input slices.
type Engine interface {
	ID() string
	NewStates(players int) ([][]byte, error)
	Apply(states [][]byte, seat int, move json.RawMessage) (Transition, error)
	// Resolve interprets a terminal state reached by seat's move and returns
	// the winning seat, or NoWinner.
	Resolve(states [][]byte, seat int) int
}

// Describer is implemented by engines that can decode a state blob for
// display.
type Describer interface {
	Describe(blob []byte) (any, error)
}

// SeatLimiter is implemented by engines that cannot seat an arbitrary number
// of players.
type SeatLimiter interface {
	MaxPlayers() int
}

// CheckSeats reports whether a match of e can be played by n players.
// Every match needs at least two.
func CheckSeats(e Engine, n int) error {
	if n < 2 {
		return fmt.Errorf("%w: %s needs at least 2 players, got %d", ErrSeats, e.ID(), n)
	}
	if l, ok := e.(SeatLimiter); ok && n > l.MaxPlayers() {
		return fmt.Errorf("%w: %s seats at most %d players, got %d", ErrSeats, e.ID(), l.MaxPlayers(), n)
	}
	return nil
}

// Registry maps game ids to engines.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register adds e. Panics on duplicate ids.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engines[e.ID()]; exists {
		panic(fmt.Sprintf("game: engine already registered for %q", e.ID()))
	}
	r.engines[e.ID()] = e
}

// Lookup returns the engine registered under id.
func (r *Registry) Lookup(id string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[id]
	return e, ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var defaultRegistry = NewRegistry()

// Register adds e to the default registry. Engine packages call this from
// init().
func Register(e Engine) { defaultRegistry.Register(e) }

// Lookup finds an engine in the default registry.
func Lookup(id string) (Engine, bool) { return defaultRegistry.Lookup(id) }

// IDs lists the ids in the default registry.
func IDs() []string { return defaultRegistry.IDs() }

// CloneStates deep-copies a state slice so engines can build their output
// without aliasing the caller's blobs.
func CloneStates(states [][]byte) [][]byte {
	out := make([][]byte, len(states))
	for i, s := range states {
		out[i] = append([]byte(nil), s...)
	}
	return out
}

// NextSeat returns the seat after seat in round-robin order.
func NextSeat(seat, players int) int {
	return (seat + 1) % players
}
