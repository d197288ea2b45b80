package core

import "fmt"

// EmptyPlayer is the null address used for unset turn holders and winners.
const EmptyPlayer = ""

// BasisPoints is the denominator of every share in a ShareTable.
const BasisPoints = 10_000

// Account holds a participant's token balance and replay-protection nonce.
// Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Player is the arena-facing record of an account. ActiveMatch 0 means idle.
type Player struct {
	Address      string               `json:"address"`
	ActiveMatch  uint64               `json:"active_match"`
	PendingLobby string               `json:"pending_lobby,omitempty"`
	SessionKey   string               `json:"session_key,omitempty"`
	Stats        map[string]GameStats `json:"stats,omitempty"` // game id → record
}

// GameStats is a player's record in one game across closed matches.
type GameStats struct {
	Played    uint64 `json:"played"`
	BestScore uint64 `json:"best_score"`
}

// RecordMatch counts a closed match of gameID and keeps the best score.
func (p *Player) RecordMatch(gameID string, score uint64) {
	if p.Stats == nil {
		p.Stats = make(map[string]GameStats)
	}
	s := p.Stats[gameID]
	s.Played++
	if score > s.BestScore {
		s.BestScore = score
	}
	p.Stats[gameID] = s
}

// Busy reports whether the player is queued or playing.
func (p *Player) Busy() bool {
	return p.ActiveMatch != 0 || p.PendingLobby != ""
}

// Lobby gathers registrants for one (game, fee) pair until it fills.
type Lobby struct {
	ID            string   `json:"id"`
	GameID        string   `json:"game_id"`
	Fee           uint64   `json:"fee"`
	Capacity      int      `json:"capacity"`
	Players       []string `json:"players"`
	Held          uint64   `json:"held"`
	CreatedAt     int64    `json:"created_at"`
	CreatedHeight int64    `json:"created_height"`
}

// Full reports whether the lobby is ready for promotion.
func (l *Lobby) Full() bool { return len(l.Players) >= l.Capacity }

// MatchStatus is the lifecycle of a match. It only moves forward.
type MatchStatus string

const (
	MatchActive    MatchStatus = "active"
	MatchResolving MatchStatus = "resolving"
	MatchClosed    MatchStatus = "closed"
)

// Outcome records how a closed match ended.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeWin     Outcome = "win"
	OutcomeDraw    Outcome = "draw"
	OutcomeForfeit Outcome = "forfeit"
)

// Match is a running or finished game. States holds the engine blobs, one
// per seat or a single shared blob.
type Match struct {
	ID                 uint64      `json:"id"`
	GameID             string      `json:"game_id"`
	Fee                uint64      `json:"fee"`
	Players            []string    `json:"players"`
	CurrentTurn        string      `json:"current_turn"`
	States             [][]byte    `json:"states"`
	Scores             []uint64    `json:"scores"`
	Status             MatchStatus `json:"status"`
	Winner             string      `json:"winner"`
	Outcome            Outcome     `json:"outcome"`
	LastActivityHeight int64       `json:"last_activity_height"`
	CreatedHeight      int64       `json:"created_height"`
	ClosedHeight       int64       `json:"closed_height,omitempty"`
	Moves              uint64      `json:"moves"`
}

// Seat returns the index of addr in Players, or -1.
func (m *Match) Seat(addr string) int {
	for i, p := range m.Players {
		if p == addr {
			return i
		}
	}
	return -1
}

// Escrow holds the pooled fees of one match until settlement.
type Escrow struct {
	MatchID       uint64            `json:"match_id"`
	Staked        uint64            `json:"staked"`
	Settled       bool              `json:"settled"`
	Payouts       map[string]uint64 `json:"payouts,omitempty"`
	Paid          uint64            `json:"paid"`
	Swept         uint64            `json:"swept"`
	SettledHeight int64             `json:"settled_height,omitempty"`
}

// ShareTable splits an escrow pool by outcome category, in basis points.
type ShareTable struct {
	WinnerBps uint64 `json:"winner_bps"`
	LoserBps  uint64 `json:"loser_bps"`
	DrawBps   uint64 `json:"draw_bps"`
}

// GameParams configures one game in the arena.
type GameParams struct {
	Capacity      int        `json:"capacity"`
	FeeTiers      []uint64   `json:"fee_tiers"`
	TimeoutBlocks int64      `json:"timeout_blocks"`
	Shares        ShareTable `json:"shares"`
}

// HasFeeTier reports whether fee is one of the configured tiers.
func (g GameParams) HasFeeTier(fee uint64) bool {
	for _, f := range g.FeeTiers {
		if f == fee {
			return true
		}
	}
	return false
}

// Params is the arena configuration stored in state.
type Params struct {
	ProtocolPool string                `json:"protocol_pool"`
	Games        map[string]GameParams `json:"games"`
}

// Validate checks the structure of every game entry. Share tables are
// checked by the escrow package.
func (p *Params) Validate() error {
	if p.ProtocolPool == "" {
		return fmt.Errorf("protocol_pool is required")
	}
	for id, g := range p.Games {
		if g.Capacity < 2 {
			return fmt.Errorf("game %q: capacity must be at least 2", id)
		}
		if len(g.FeeTiers) == 0 {
			return fmt.Errorf("game %q: at least one fee tier required", id)
		}
		if g.TimeoutBlocks < 1 {
			return fmt.Errorf("game %q: timeout_blocks must be positive", id)
		}
	}
	return nil
}
