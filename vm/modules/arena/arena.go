// Package arena runs paid matches: players queue in per-(game, fee) lobbies,
// full lobbies become matches with an escrowed pot, and moves are checked by
// the game engine before they touch state. Every caller is resolved through
// the session module so a session key plays for its account.
package arena

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/game"
	"github.com/tolelom/arcadechain/vm"
	"github.com/tolelom/arcadechain/vm/modules/economy"

	// built-in engines
	_ "github.com/tolelom/arcadechain/game/arkanoid"
	_ "github.com/tolelom/arcadechain/game/randzu"
	_ "github.com/tolelom/arcadechain/game/tile"
)

var (
	ErrUnknownGame           = errors.New("unknown game")
	ErrFeeTier               = errors.New("fee is not a configured tier")
	ErrDuplicateRegistration = errors.New("player already queued or in a match")
	ErrInsufficientFunds     = economy.ErrInsufficientFunds

	ErrMatchNotFound     = errors.New("match not found")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrMatchFinished     = errors.New("match finished")
	ErrClaimantHoldsTurn = errors.New("claimant holds the turn")
	ErrNotParticipant    = errors.New("not a participant")
	ErrTimeoutNotReached = errors.New("timeout not reached")
)

func init() {
	vm.Register(core.TxRegister, handleRegister)
	vm.Register(core.TxApplyMove, handleApplyMove)
	vm.Register(core.TxClaimTimeout, handleClaimTimeout)
}

func handleRegister(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RegisterPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode register payload: %w", err)
	}
	_, err := JoinLobby(ctx, p.GameID, p.Fee)
	return err
}

func handleApplyMove(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ApplyMovePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode apply_move payload: %w", err)
	}
	return ApplyMove(ctx, p.MatchID, p.Move)
}

func handleClaimTimeout(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ClaimTimeoutPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode claim_timeout payload: %w", err)
	}
	return ClaimTimeout(ctx, p.MatchID)
}

// gameConfig returns the parameters and engine of gameID.
func gameConfig(st core.State, gameID string) (*core.Params, core.GameParams, game.Engine, error) {
	params, err := st.GetParams()
	if err != nil {
		return nil, core.GameParams{}, nil, err
	}
	gp, ok := params.Games[gameID]
	if !ok {
		return nil, core.GameParams{}, nil, fmt.Errorf("%w: %q", ErrUnknownGame, gameID)
	}
	eng, ok := game.Lookup(gameID)
	if !ok {
		return nil, core.GameParams{}, nil, fmt.Errorf("%w: no engine for %q", ErrUnknownGame, gameID)
	}
	return params, gp, eng, nil
}

func loadMatch(st core.State, id uint64) (*core.Match, error) {
	m, err := st.GetMatch(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrMatchNotFound, id)
	}
	return m, err
}
