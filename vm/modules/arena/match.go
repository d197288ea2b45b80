package arena

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/escrow"
	"github.com/tolelom/arcadechain/events"
	"github.com/tolelom/arcadechain/fixedpoint"
	"github.com/tolelom/arcadechain/game"
	"github.com/tolelom/arcadechain/vm"
	"github.com/tolelom/arcadechain/vm/modules/session"
)

// ApplyMove validates move with the match's engine and, if it is legal,
// advances the match. A terminal move resolves and settles the match in
// the same transaction.
func ApplyMove(ctx *vm.Context, matchID uint64, move json.RawMessage) error {
	st := ctx.State
	m, err := loadMatch(st, matchID)
	if err != nil {
		return err
	}
	caller, err := session.Resolve(st, ctx.Tx.From)
	if err != nil {
		return err
	}
	if caller != m.CurrentTurn {
		return fmt.Errorf("%w: match %d waits for %s", ErrNotYourTurn, m.ID, m.CurrentTurn)
	}
	if m.Status != core.MatchActive {
		return fmt.Errorf("%w: match %d is %s", ErrMatchFinished, m.ID, m.Status)
	}
	seat := m.Seat(caller)
	if seat < 0 {
		return fmt.Errorf("%w: turn holder %s not seated in match %d", core.ErrInvariant, caller, m.ID)
	}

	params, gp, eng, err := gameConfig(st, m.GameID)
	if err != nil {
		return err
	}
	tr, err := eng.Apply(m.States, seat, move)
	if err != nil {
		return err
	}
	if len(tr.States) != len(m.States) {
		return fmt.Errorf("%w: %s returned %d states, want %d", core.ErrInvariant, m.GameID, len(tr.States), len(m.States))
	}

	score, err := fixedpoint.CheckedAddU64(m.Scores[seat], tr.ScoreDelta)
	if err != nil {
		return fmt.Errorf("%w: score of seat %d: %v", core.ErrInvariant, seat, err)
	}
	m.States = tr.States
	m.Scores[seat] = score
	m.Moves++
	m.LastActivityHeight = ctx.Height()

	ctx.Emit(events.EventMoveApplied, map[string]any{
		"match_id": m.ID,
		"game_id":  m.GameID,
		"player":   caller,
		"seat":     seat,
		"score":    score,
		"terminal": tr.Terminal,
	})

	if tr.Terminal {
		w := eng.Resolve(m.States, seat)
		switch {
		case w == game.NoWinner:
			m.Winner = core.EmptyPlayer
			m.Outcome = core.OutcomeDraw
		case w >= 0 && w < len(m.Players):
			m.Winner = m.Players[w]
			m.Outcome = core.OutcomeWin
		default:
			return fmt.Errorf("%w: %s resolved seat %d of %d", core.ErrInvariant, m.GameID, w, len(m.Players))
		}
		m.Status = core.MatchResolving
		return settle(ctx, m, gp.Shares, params.ProtocolPool)
	}

	m.CurrentTurn = m.Players[game.NextSeat(seat, len(m.Players))]
	return st.SetMatch(m)
}

// settle pays out the escrow of a resolving match, records it on every
// player, frees them and closes it. The turn stays with its last holder.
func settle(ctx *vm.Context, m *core.Match, shares core.ShareTable, pool string) error {
	st := ctx.State
	if m.Status != core.MatchResolving {
		return fmt.Errorf("%w: settle match %d in status %s", core.ErrInvariant, m.ID, m.Status)
	}
	s, err := escrow.Settle(st, m, shares, pool, ctx.Height())
	if err != nil {
		return err
	}
	for seat, addr := range m.Players {
		p, err := st.GetPlayer(addr)
		if err != nil {
			return err
		}
		if p.ActiveMatch == m.ID {
			p.ActiveMatch = 0
		}
		p.RecordMatch(m.GameID, m.Scores[seat])
		if err := st.SetPlayer(p); err != nil {
			return err
		}
		if err := session.Clear(st, addr); err != nil {
			return err
		}
	}
	m.Status = core.MatchClosed
	m.ClosedHeight = ctx.Height()
	if err := st.SetMatch(m); err != nil {
		return err
	}

	ctx.Log.Info("match settled",
		zap.Uint64("match", m.ID),
		zap.String("game", m.GameID),
		zap.String("outcome", string(m.Outcome)),
		zap.String("winner", m.Winner),
		zap.Uint64("paid", s.Paid),
		zap.Uint64("swept", s.Swept))
	ctx.Emit(events.EventMatchResolved, map[string]any{
		"match_id": m.ID,
		"game_id":  m.GameID,
		"outcome":  string(m.Outcome),
		"winner":   m.Winner,
		"players":  m.Players,
		"scores":   m.Scores,
		"payouts":  s.Payouts,
		"paid":     s.Paid,
		"swept":    s.Swept,
	})
	return nil
}
