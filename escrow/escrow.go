// Package escrow holds match entry fees and pays them out exactly once when
// the match resolves. Shares are expressed in basis points of the pool; any
// rounding remainder goes to the protocol pool account.
package escrow

import (
	"errors"
	"fmt"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/fixedpoint"
	"github.com/tolelom/arcadechain/vm/modules/economy"
)

var (
	ErrAlreadySettled = errors.New("escrow already settled")
	ErrInvalidShares  = errors.New("invalid share table")
)

// Settlement describes one payout.
type Settlement struct {
	MatchID uint64            `json:"match_id"`
	Outcome core.Outcome      `json:"outcome"`
	Payouts map[string]uint64 `json:"payouts"`
	Paid    uint64            `json:"paid"`
	Swept   uint64            `json:"swept"`
}

// Validate rejects share tables that would pay out more than the pool.
func Validate(s core.ShareTable) error {
	if s.WinnerBps > core.BasisPoints || s.LoserBps > core.BasisPoints-s.WinnerBps {
		return fmt.Errorf("%w: winner %d + loser %d bps exceeds %d", ErrInvalidShares, s.WinnerBps, s.LoserBps, core.BasisPoints)
	}
	if s.DrawBps > core.BasisPoints {
		return fmt.Errorf("%w: draw %d bps exceeds %d", ErrInvalidShares, s.DrawBps, core.BasisPoints)
	}
	return nil
}

// Credit adds amount to the escrow of matchID, creating it on first use.
func Credit(st core.State, matchID, amount uint64) error {
	e, err := st.GetEscrow(matchID)
	if errors.Is(err, core.ErrNotFound) {
		e = &core.Escrow{MatchID: matchID}
	} else if err != nil {
		return err
	}
	if e.Settled {
		return fmt.Errorf("%w: match %d", ErrAlreadySettled, matchID)
	}
	staked, err := fixedpoint.CheckedAddU64(e.Staked, amount)
	if err != nil {
		return fmt.Errorf("%w: escrow %d: %v", core.ErrInvariant, matchID, err)
	}
	e.Staked = staked
	return st.SetEscrow(e)
}

// Split computes the per-player payouts of staked for the given winner
// (EmptyPlayer for a draw). It does not touch state.
func Split(staked uint64, players []string, winner string, s core.ShareTable) (map[string]uint64, uint64, error) {
	if err := Validate(s); err != nil {
		return nil, 0, err
	}
	if len(players) == 0 {
		return nil, 0, fmt.Errorf("%w: no players", core.ErrInvariant)
	}
	payouts := make(map[string]uint64, len(players))
	var paid uint64

	pay := func(bps uint64, members []string) error {
		if len(members) == 0 || bps == 0 {
			return nil
		}
		pool, err := fixedpoint.MulDiv(staked, bps, core.BasisPoints)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrInvariant, err)
		}
		each := pool / uint64(len(members))
		for _, m := range members {
			payouts[m] += each
			paid += each
		}
		return nil
	}

	if winner == core.EmptyPlayer {
		if err := pay(s.DrawBps, players); err != nil {
			return nil, 0, err
		}
	} else {
		losers := make([]string, 0, len(players)-1)
		found := false
		for _, p := range players {
			if p == winner {
				found = true
				continue
			}
			losers = append(losers, p)
		}
		if !found {
			return nil, 0, fmt.Errorf("%w: winner %s is not a participant", core.ErrInvariant, winner)
		}
		if err := pay(s.WinnerBps, []string{winner}); err != nil {
			return nil, 0, err
		}
		if err := pay(s.LoserBps, losers); err != nil {
			return nil, 0, err
		}
	}
	if paid > staked {
		return nil, 0, fmt.Errorf("%w: payout %d exceeds stake %d", core.ErrInvariant, paid, staked)
	}
	return payouts, paid, nil
}

// Settle pays out the escrow of m according to m.Winner and m.Outcome and
// sweeps the remainder to pool. A second call fails with ErrAlreadySettled
// and moves nothing.
func Settle(st core.State, m *core.Match, s core.ShareTable, pool string, height int64) (*Settlement, error) {
	e, err := st.GetEscrow(m.ID)
	if err != nil {
		return nil, fmt.Errorf("escrow for match %d: %w", m.ID, err)
	}
	if e.Settled {
		return nil, fmt.Errorf("%w: match %d", ErrAlreadySettled, m.ID)
	}
	if pool == "" {
		return nil, fmt.Errorf("%w: protocol pool not configured", core.ErrInvariant)
	}

	payouts, paid, err := Split(e.Staked, m.Players, m.Winner, s)
	if err != nil {
		return nil, err
	}
	for _, p := range m.Players {
		if amt := payouts[p]; amt > 0 {
			if err := economy.Credit(st, p, amt); err != nil {
				return nil, err
			}
		}
	}
	swept := e.Staked - paid
	if swept > 0 {
		if err := economy.Credit(st, pool, swept); err != nil {
			return nil, err
		}
	}

	e.Settled = true
	e.Payouts = payouts
	e.Paid = paid
	e.Swept = swept
	e.SettledHeight = height
	if err := st.SetEscrow(e); err != nil {
		return nil, err
	}
	return &Settlement{MatchID: m.ID, Outcome: m.Outcome, Payouts: payouts, Paid: paid, Swept: swept}, nil
}
