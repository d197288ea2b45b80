package arena

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/escrow"
	"github.com/tolelom/arcadechain/events"
	"github.com/tolelom/arcadechain/fixedpoint"
	"github.com/tolelom/arcadechain/game"
	"github.com/tolelom/arcadechain/vm"
	"github.com/tolelom/arcadechain/vm/modules/economy"
	"github.com/tolelom/arcadechain/vm/modules/session"
)

// lobbyNamespace seeds the name-based lobby ids. Ids are derived from the
// creating tx so every replica computes the same one.
var lobbyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("arcadechain/lobby"))

// LobbyID returns the id of a lobby opened by txID.
func LobbyID(txID string) string {
	return uuid.NewSHA1(lobbyNamespace, []byte(txID)).String()
}

// JoinLobby debits fee from the caller's account and adds the caller to the
// waiting lobby of (gameID, fee), opening one if needed. The lobby is
// promoted to a match as soon as it is full. It returns the lobby id.
func JoinLobby(ctx *vm.Context, gameID string, fee uint64) (string, error) {
	st := ctx.State
	_, gp, eng, err := gameConfig(st, gameID)
	if err != nil {
		return "", err
	}
	if !gp.HasFeeTier(fee) {
		return "", fmt.Errorf("%w: %d for %q", ErrFeeTier, fee, gameID)
	}
	if err := game.CheckSeats(eng, gp.Capacity); err != nil {
		return "", err
	}

	caller, err := session.Resolve(st, ctx.Tx.From)
	if err != nil {
		return "", err
	}
	player, err := st.GetPlayer(caller)
	if err != nil {
		return "", err
	}
	if player.Busy() {
		return "", fmt.Errorf("%w: %s", ErrDuplicateRegistration, caller)
	}

	lobby, err := waitingLobby(ctx, gameID, fee, gp.Capacity)
	if err != nil {
		return "", err
	}
	for _, p := range lobby.Players {
		if p == caller {
			return "", fmt.Errorf("%w: %s already in lobby %s", core.ErrInvariant, caller, lobby.ID)
		}
	}

	if err := economy.Debit(st, caller, fee); err != nil {
		return "", err
	}
	held, err := fixedpoint.CheckedAddU64(lobby.Held, fee)
	if err != nil {
		return "", fmt.Errorf("%w: lobby %s: %v", core.ErrInvariant, lobby.ID, err)
	}
	lobby.Held = held
	lobby.Players = append(lobby.Players, caller)

	player.PendingLobby = lobby.ID
	if err := st.SetPlayer(player); err != nil {
		return "", err
	}

	ctx.Emit(events.EventLobbyJoined, map[string]any{
		"lobby_id": lobby.ID,
		"game_id":  gameID,
		"fee":      fee,
		"player":   caller,
		"seats":    len(lobby.Players),
		"capacity": lobby.Capacity,
	})

	if !lobby.Full() {
		return lobby.ID, st.SetLobby(lobby)
	}
	if _, err := promote(ctx, lobby, eng); err != nil {
		return "", err
	}
	return lobby.ID, nil
}

func waitingLobby(ctx *vm.Context, gameID string, fee uint64, capacity int) (*core.Lobby, error) {
	st := ctx.State
	id, err := st.GetWaitingLobby(gameID, fee)
	switch {
	case err == nil:
		l, err := st.GetLobby(id)
		if err != nil {
			return nil, fmt.Errorf("%w: waiting lobby %s: %v", core.ErrInvariant, id, err)
		}
		return l, nil
	case !errors.Is(err, core.ErrNotFound):
		return nil, err
	}

	l := &core.Lobby{
		ID:            LobbyID(ctx.Tx.ID),
		GameID:        gameID,
		Fee:           fee,
		Capacity:      capacity,
		Players:       []string{},
		CreatedAt:     ctx.Tx.Timestamp,
		CreatedHeight: ctx.Height(),
	}
	if err := st.SetWaitingLobby(gameID, fee, l.ID); err != nil {
		return nil, err
	}
	return l, nil
}

// promote turns a full lobby into an active match. The first registrant
// holds the first turn.
func promote(ctx *vm.Context, lobby *core.Lobby, eng game.Engine) (*core.Match, error) {
	st := ctx.State
	want, err := fixedpoint.CheckedMulU64(uint64(lobby.Capacity), lobby.Fee)
	if err != nil || want != lobby.Held {
		return nil, fmt.Errorf("%w: lobby %s holds %d, want %d x %d", core.ErrInvariant, lobby.ID, lobby.Held, lobby.Capacity, lobby.Fee)
	}

	id, err := st.NextMatchID()
	if err != nil {
		return nil, err
	}
	states, err := eng.NewStates(len(lobby.Players))
	if err != nil {
		return nil, fmt.Errorf("%w: new states for %q: %v", core.ErrInvariant, lobby.GameID, err)
	}
	height := ctx.Height()
	m := &core.Match{
		ID:                 id,
		GameID:             lobby.GameID,
		Fee:                lobby.Fee,
		Players:            append([]string(nil), lobby.Players...),
		CurrentTurn:        lobby.Players[0],
		States:             states,
		Scores:             make([]uint64, len(lobby.Players)),
		Status:             core.MatchActive,
		Outcome:            core.OutcomeNone,
		Winner:             core.EmptyPlayer,
		LastActivityHeight: height,
		CreatedHeight:      height,
	}
	if err := escrow.Credit(st, id, lobby.Held); err != nil {
		return nil, err
	}
	for _, addr := range m.Players {
		p, err := st.GetPlayer(addr)
		if err != nil {
			return nil, err
		}
		if p.PendingLobby != lobby.ID || p.ActiveMatch != 0 {
			return nil, fmt.Errorf("%w: player %s not pending in lobby %s", core.ErrInvariant, addr, lobby.ID)
		}
		p.PendingLobby = ""
		p.ActiveMatch = id
		if err := st.SetPlayer(p); err != nil {
			return nil, err
		}
	}
	if err := st.SetMatch(m); err != nil {
		return nil, err
	}
	if err := st.DeleteLobby(lobby.ID); err != nil {
		return nil, err
	}
	if err := st.DeleteWaitingLobby(lobby.GameID, lobby.Fee); err != nil {
		return nil, err
	}

	ctx.Log.Debug("lobby promoted",
		zap.String("lobby", lobby.ID),
		zap.Uint64("match", id),
		zap.String("game", m.GameID))
	ctx.Emit(events.EventMatchStarted, map[string]any{
		"match_id": id,
		"lobby_id": lobby.ID,
		"game_id":  m.GameID,
		"fee":      m.Fee,
		"players":  m.Players,
		"staked":   lobby.Held,
	})
	return m, nil
}
