package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/crypto"
)

// registerPrefix records a state-key prefix so ComputeRoot covers it. Every
// state prefix must be declared through this function.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

var statePrefixes []string

var (
	prefixAccount = registerPrefix("acct:")
	prefixPlayer  = registerPrefix("player:")
	prefixSession = registerPrefix("skey:")
	prefixLobby   = registerPrefix("lobby:")
	prefixWaiting = registerPrefix("wait:")
	prefixMatch   = registerPrefix("match:")
	prefixEscrow  = registerPrefix("escrow:")
	prefixMeta    = registerPrefix("meta:")

	keyParams   = prefixMeta + "params"
	keyMatchSeq = prefixMeta + "match_seq"
)

func idKey(prefix string, id uint64) string { return fmt.Sprintf("%s%020d", prefix, id) }

func waitingKey(gameID string, fee uint64) string {
	return prefixWaiting + gameID + ":" + strconv.FormatUint(fee, 10)
}

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with an in-memory write
// buffer, snapshot/rollback and deterministic state-root computation.
//
// A StateDB is owned by a single writer (the executor). Readers on other
// goroutines use Committed.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// Committed returns a fresh view over the persisted state only. Writes made
// through the view are never committed.
func (s *StateDB) Committed() *StateDB {
	return NewStateDB(s.db)
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	delete(s.dirty, key)
	s.deleted[key] = true
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.set(key, data)
	return nil
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Player ----

func (s *StateDB) GetPlayer(address string) (*core.Player, error) {
	var p core.Player
	err := s.getJSON(prefixPlayer+address, &p)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Player{Address: address}, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *StateDB) SetPlayer(p *core.Player) error {
	return s.setJSON(prefixPlayer+p.Address, p)
}

// ---- Session keys ----

func (s *StateDB) GetSessionOwner(sessionKey string) (string, error) {
	owner, err := s.get(prefixSession + sessionKey)
	if err != nil {
		return "", err
	}
	return string(owner), nil
}

func (s *StateDB) SetSessionOwner(sessionKey, owner string) error {
	s.set(prefixSession+sessionKey, []byte(owner))
	return nil
}

func (s *StateDB) DeleteSessionOwner(sessionKey string) error {
	s.del(prefixSession + sessionKey)
	return nil
}

// ---- Lobby ----

func (s *StateDB) GetLobby(id string) (*core.Lobby, error) {
	var l core.Lobby
	if err := s.getJSON(prefixLobby+id, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *StateDB) SetLobby(l *core.Lobby) error {
	return s.setJSON(prefixLobby+l.ID, l)
}

func (s *StateDB) DeleteLobby(id string) error {
	s.del(prefixLobby + id)
	return nil
}

func (s *StateDB) GetWaitingLobby(gameID string, fee uint64) (string, error) {
	id, err := s.get(waitingKey(gameID, fee))
	if err != nil {
		return "", err
	}
	return string(id), nil
}

func (s *StateDB) SetWaitingLobby(gameID string, fee uint64, lobbyID string) error {
	s.set(waitingKey(gameID, fee), []byte(lobbyID))
	return nil
}

func (s *StateDB) DeleteWaitingLobby(gameID string, fee uint64) error {
	s.del(waitingKey(gameID, fee))
	return nil
}

// ---- Match ----

func (s *StateDB) GetMatch(id uint64) (*core.Match, error) {
	var m core.Match
	if err := s.getJSON(idKey(prefixMatch, id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *StateDB) SetMatch(m *core.Match) error {
	return s.setJSON(idKey(prefixMatch, m.ID), m)
}

func (s *StateDB) NextMatchID() (uint64, error) {
	var last uint64
	raw, err := s.get(keyMatchSeq)
	switch {
	case errors.Is(err, core.ErrNotFound):
	case err != nil:
		return 0, err
	case len(raw) != 8:
		return 0, fmt.Errorf("%w: match counter is %d bytes", core.ErrInvariant, len(raw))
	default:
		last = binary.BigEndian.Uint64(raw)
	}
	next := last + 1
	if next == 0 {
		return 0, fmt.Errorf("%w: match counter exhausted", core.ErrInvariant)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	s.set(keyMatchSeq, buf)
	return next, nil
}

// ---- Escrow ----

func (s *StateDB) GetEscrow(matchID uint64) (*core.Escrow, error) {
	var e core.Escrow
	if err := s.getJSON(idKey(prefixEscrow, matchID), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *StateDB) SetEscrow(e *core.Escrow) error {
	return s.setJSON(idKey(prefixEscrow, e.MatchID), e)
}

// ---- Params ----

func (s *StateDB) GetParams() (*core.Params, error) {
	var p core.Params
	if err := s.getJSON(keyParams, &p); err != nil {
		return nil, fmt.Errorf("arena params: %w", err)
	}
	return &p, nil
}

func (s *StateDB) SetParams(p *core.Params) error {
	return s.setJSON(keyParams, p)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	s.snapshots = append(s.snapshots, stateSnapshot{
		dirty:   cloneDirty(s.dirty),
		deleted: cloneDeleted(s.deleted),
	})
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to snapshot id and discards
// every later snapshot.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]
	s.dirty = cloneDirty(snap.dirty)
	s.deleted = cloneDeleted(snap.deleted)
	s.snapshots = s.snapshots[:id]
	return nil
}

// Discard drops the write buffer and every snapshot.
func (s *StateDB) Discard() {
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
}

func cloneDirty(in map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(in))
	for k, v := range in {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

func cloneDeleted(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ComputeRoot hashes the sorted, length-prefixed key/value pairs of the full
// state: persisted entries under every state prefix merged with the write
// buffer. It does not flush.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			merged[string(it.Key())] = append([]byte(nil), it.Value()...)
		}
		it.Release()
	}
	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit flushes the write buffer in one batch and clears it. Call
// ComputeRoot first and Commit only after the block is stored.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.Discard()
	return nil
}
