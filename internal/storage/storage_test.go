package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ontime/pkg/logx"
)

func openAll(t *testing.T, max int) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for driver, path := range map[string]string{
		"diskv":  filepath.Join(dir, "kv"),
		"sqlite": filepath.Join(dir, "ontime.db"),
	} {
		st, err := Open(Config{Driver: driver, Path: path, MaxTransitions: max}, logx.Nop())
		if err != nil {
			t.Fatalf("open %s: %v", driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func TestOpenDisabled(t *testing.T) {
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: got (%v, %v), want (nil, nil)", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestTransitionJournalRoundTrip(t *testing.T) {
	base := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	for driver, st := range openAll(t, 0) {
		ctx := context.Background()
		recs := []Transition{
			{ID: "a", At: base, Kind: KindSchedule, ScopeID: "s1", TaskID: "t1", OK: true, TookMS: 12},
			{ID: "b", At: base.Add(time.Minute), Kind: KindUnschedule, ScopeID: "s1", TaskID: "t1", EntryID: "e1", Error: "status 502"},
			{ID: "c", At: base.Add(2 * time.Minute), Kind: KindDeleteTask, ScopeID: "s1", TaskID: "t2", OK: true},
		}
		for _, r := range recs {
			if err := st.AppendTransition(ctx, r); err != nil {
				t.Fatalf("%s append: %v", driver, err)
			}
		}
		got, err := st.Transitions(ctx, 2)
		if err != nil {
			t.Fatalf("%s list: %v", driver, err)
		}
		if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
			t.Fatalf("%s: newest-first order broken: %+v", driver, got)
		}
		b := got[1]
		if b.OK || b.Error != "status 502" || b.EntryID != "e1" || !b.At.Equal(recs[1].At) {
			t.Fatalf("%s: fields lost: %+v", driver, b)
		}
		all, _ := st.Transitions(ctx, 0)
		if len(all) != 3 {
			t.Fatalf("%s: expected 3 records, got %d", driver, len(all))
		}
	}
}

func TestJournalPrunesOldest(t *testing.T) {
	base := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	for driver, st := range openAll(t, 10) {
		ctx := context.Background()
		for i := 0; i < pruneEvery; i++ {
			rec := Transition{At: base.Add(time.Duration(i) * time.Second), Kind: KindSchedule, ScopeID: "s1"}
			if err := st.AppendTransition(ctx, rec); err != nil {
				t.Fatalf("%s append %d: %v", driver, i, err)
			}
		}
		got, err := st.Transitions(ctx, 0)
		if err != nil {
			t.Fatalf("%s list: %v", driver, err)
		}
		if len(got) != 10 {
			t.Fatalf("%s: expected 10 records after prune, got %d", driver, len(got))
		}
		if want := base.Add(time.Duration(pruneEvery-1) * time.Second); !got[0].At.Equal(want) {
			t.Fatalf("%s: newest record pruned: %v", driver, got[0].At)
		}
	}
}

func TestSnapshots(t *testing.T) {
	for driver, st := range openAll(t, 0) {
		ctx := context.Background()
		if _, ok, err := st.GetSnapshot(ctx, "s/1", SnapshotTasks); ok || err != nil {
			t.Fatalf("%s: empty store returned ok=%v err=%v", driver, ok, err)
		}
		if err := st.PutSnapshot(ctx, "s/1", SnapshotTasks, []byte(`[1]`)); err != nil {
			t.Fatalf("%s put: %v", driver, err)
		}
		if err := st.PutSnapshot(ctx, "s/1", SnapshotTasks, []byte(`[1,2]`)); err != nil {
			t.Fatalf("%s overwrite: %v", driver, err)
		}
		b, ok, err := st.GetSnapshot(ctx, "s/1", SnapshotTasks)
		if err != nil || !ok || string(b) != `[1,2]` {
			t.Fatalf("%s get: %q ok=%v err=%v", driver, b, ok, err)
		}
		if _, ok, _ := st.GetSnapshot(ctx, "s/1", SnapshotEntries); ok {
			t.Fatalf("%s: kinds must not collide", driver)
		}
	}
}
