package indexer

import (
	"testing"

	"github.com/tolelom/arcadechain/events"
	"github.com/tolelom/arcadechain/internal/testutil"
)

func TestIndexesMatchesByPlayerAndGame(t *testing.T) {
	em := events.NewEmitter(nil)
	idx := New(testutil.NewMemDB(), em, nil)

	em.EmitAll([]events.Event{
		{Type: events.EventMatchStarted, Data: map[string]any{"match_id": uint64(1), "players": []string{"a", "b"}}},
		{Type: events.EventMatchStarted, Data: map[string]any{"match_id": uint64(2), "players": []string{"a", "c"}}},
		{Type: events.EventMatchResolved, Data: map[string]any{"match_id": uint64(2), "game_id": "randzu"}},
		{Type: events.EventMatchResolved, Data: map[string]any{"match_id": uint64(1), "game_id": "randzu"}},
	})

	got, err := idx.MatchesByPlayer("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("a: got %v, want [1 2]", got)
	}
	if got, _ := idx.MatchesByPlayer("c"); len(got) != 1 || got[0] != 2 {
		t.Errorf("c: got %v, want [2]", got)
	}
	if got, _ := idx.MatchesByPlayer("nobody"); len(got) != 0 {
		t.Errorf("nobody: got %v, want empty", got)
	}

	fin, err := idx.FinishedMatches("randzu", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(fin) != 2 || fin[0] != 2 || fin[1] != 1 {
		t.Errorf("finished: got %v, want [2 1]", fin)
	}
	if last, _ := idx.FinishedMatches("randzu", 1); len(last) != 1 || last[0] != 1 {
		t.Errorf("finished limit 1: got %v, want [1]", last)
	}
}

func TestIgnoresMalformedEventsAndDuplicates(t *testing.T) {
	em := events.NewEmitter(nil)
	idx := New(testutil.NewMemDB(), em, nil)

	ev := events.Event{Type: events.EventMatchStarted, Data: map[string]any{"match_id": uint64(3), "players": []any{"a", 7}}}
	em.Emit(ev)
	em.Emit(ev)
	em.Emit(events.Event{Type: events.EventMatchStarted, Data: map[string]any{"players": []string{"a"}}})

	got, _ := idx.MatchesByPlayer("a")
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("got %v, want [3]", got)
	}
}
