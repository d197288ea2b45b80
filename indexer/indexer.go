// Package indexer maintains secondary indexes over committed events so
// clients can list a player's matches without scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tolelom/arcadechain/core"
	"github.com/tolelom/arcadechain/events"
	"github.com/tolelom/arcadechain/storage"
)

const (
	prefixPlayerMatches = "idx:player:match:"
	prefixGameFinished  = "idx:game:finished:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db  storage.DB
	log *zap.Logger
	mu  sync.Mutex
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	idx := &Indexer{db: db, log: logger.Named("indexer")}
	emitter.Subscribe(events.EventMatchStarted, idx.onMatchStarted)
	emitter.Subscribe(events.EventMatchResolved, idx.onMatchResolved)
	return idx
}

// MatchesByPlayer returns the ids of every match player was seated in, oldest
// first.
func (idx *Indexer) MatchesByPlayer(player string) ([]uint64, error) {
	return idx.getList(prefixPlayerMatches + player)
}

// FinishedMatches returns the ids of the closed matches of gameID, oldest
// first, keeping at most the last limit (0 = all).
func (idx *Indexer) FinishedMatches(gameID string, limit int) ([]uint64, error) {
	ids, err := idx.getList(prefixGameFinished + gameID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	return ids, nil
}

// ---- event handlers ----

func (idx *Indexer) onMatchStarted(ev events.Event) {
	id, ok := matchID(ev.Data["match_id"])
	if !ok {
		return
	}
	for _, p := range players(ev.Data["players"]) {
		if err := idx.addToList(prefixPlayerMatches+p, id); err != nil {
			idx.log.Warn("index player match", zap.String("player", p), zap.Uint64("match", id), zap.Error(err))
		}
	}
}

func (idx *Indexer) onMatchResolved(ev events.Event) {
	id, ok := matchID(ev.Data["match_id"])
	gameID, _ := ev.Data["game_id"].(string)
	if !ok || gameID == "" {
		return
	}
	if err := idx.addToList(prefixGameFinished+gameID, id); err != nil {
		idx.log.Warn("index finished match", zap.String("game", gameID), zap.Uint64("match", id), zap.Error(err))
	}
}

func matchID(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, n != 0
	case float64:
		return uint64(n), n > 0
	}
	return 0, false
}

func players(v any) []string {
	switch ps := v.(type) {
	case []string:
		return ps
	case []any:
		out := make([]string, 0, len(ps))
		for _, p := range ps {
			if s, ok := p.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]uint64, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []uint64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

// addToList appends value unless it is already the last entry, so a
// replayed event does not duplicate it.
func (idx *Indexer) addToList(key string, value uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ids, err := idx.getList(key)
	if err != nil {
		return err
	}
	if n := len(ids); n > 0 && ids[n-1] == value {
		return nil
	}
	data, err := json.Marshal(append(ids, value))
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
