package core

import "errors"

var (
	// ErrNotFound is returned when a requested object does not exist in storage.
	ErrNotFound = errors.New("not found")
	// ErrInvariant marks a broken ledger invariant. The transaction that hit
	// it is reverted as a whole.
	ErrInvariant = errors.New("invariant violated")
)

// State is the full ledger state. Implementations must be snapshot-able so
// the executor can roll back failed transactions.
type State interface {
	// Accounts. Missing accounts read as zero-balance accounts.
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Players. Missing players read as idle players.
	GetPlayer(address string) (*Player, error)
	SetPlayer(p *Player) error

	// Session keys: key -> owning account.
	GetSessionOwner(sessionKey string) (string, error)
	SetSessionOwner(sessionKey, owner string) error
	DeleteSessionOwner(sessionKey string) error

	// Lobbies, plus the index of the waiting lobby per (game, fee).
	GetLobby(id string) (*Lobby, error)
	SetLobby(l *Lobby) error
	DeleteLobby(id string) error
	GetWaitingLobby(gameID string, fee uint64) (string, error)
	SetWaitingLobby(gameID string, fee uint64, lobbyID string) error
	DeleteWaitingLobby(gameID string, fee uint64) error

	// Matches. NextMatchID advances the persistent counter; ids start at 1.
	GetMatch(id uint64) (*Match, error)
	SetMatch(m *Match) error
	NextMatchID() (uint64, error)

	// Escrow
	GetEscrow(matchID uint64) (*Escrow, error)
	SetEscrow(e *Escrow) error

	// Arena parameters, written at genesis.
	GetParams() (*Params, error)
	SetParams(p *Params) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root including the write
	// buffer without flushing it.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
	// Discard drops the write buffer without flushing.
	Discard()
}
