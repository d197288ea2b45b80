package arena

import (
	"fmt"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/vm"
	"github.com/tolelom/arcadechain/vm/modules/session"
)

// ClaimTimeout lets a seated player who is waiting on someone else end a
// stalled match. The claim succeeds once more than timeout_blocks blocks
// have passed since the last move; the claimant wins by forfeit.
func ClaimTimeout(ctx *vm.Context, matchID uint64) error {
	st := ctx.State
	m, err := loadMatch(st, matchID)
	if err != nil {
		return err
	}
	if m.Status != core.MatchActive {
		return fmt.Errorf("%w: match %d is %s", ErrMatchFinished, m.ID, m.Status)
	}
	claimant, err := session.Resolve(st, ctx.Tx.From)
	if err != nil {
		return err
	}
	if m.Seat(claimant) < 0 {
		return fmt.Errorf("%w: %s in match %d", ErrNotParticipant, claimant, m.ID)
	}
	if claimant == m.CurrentTurn {
		return fmt.Errorf("%w: match %d", ErrClaimantHoldsTurn, m.ID)
	}

	params, gp, _, err := gameConfig(st, m.GameID)
	if err != nil {
		return err
	}
	idle := ctx.Height() - m.LastActivityHeight
	if idle <= gp.TimeoutBlocks {
		return fmt.Errorf("%w: %d of %d blocks idle", ErrTimeoutNotReached, idle, gp.TimeoutBlocks)
	}

	m.Winner = claimant
	m.Outcome = core.OutcomeForfeit
	m.Status = core.MatchResolving
	return settle(ctx, m, gp.Shares, params.ProtocolPool)
}
