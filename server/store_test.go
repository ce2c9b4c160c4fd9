package server

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/pumpkin/pkg/bytecode"
	"github.com/chazu/pumpkin/pkg/runtime"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

const defineDouble = `{"kind":"Program","body":[
	{"kind":"FuncDecl","name":{"kind":"Identifier","name":"double"},
	 "params":[{"kind":"Identifier","name":"n"}],
	 "body":{"kind":"Block","body":[{"kind":"ReturnStmt","argument":{"kind":"BinaryExpr","operator":"*",
		"left":{"kind":"Identifier","name":"n"},"right":{"kind":"Literal","value":2}}}]}},
	{"kind":"LetStmt","name":{"kind":"Identifier","name":"xs"},"value":{"kind":"ArrayLiteral","elements":[
		{"kind":"Literal","value":1},{"kind":"Literal","value":"two"}]}}
]}`

const callDouble = `{"kind":"Program","body":[
	{"kind":"ShowStmt","expression":{"kind":"CallExpr","callee":{"kind":"Identifier","name":"double"},
		"arguments":[{"kind":"Literal","value":21}]}},
	{"kind":"ShowStmt","expression":{"kind":"Identifier","name":"xs"}}
]}`

func TestStore_SaveAndLoad(t *testing.T) {
	store := openTestStore(t)

	rt := runtime.NewSession()
	if res := rt.RunJSON(context.Background(), []byte(defineDouble)); !res.Success {
		t.Fatalf("defining globals failed: %v", res.Error)
	}
	created := time.Unix(1700000000, 42)
	if err := store.Save(SessionRecord{ID: "one", Name: "first", Created: created, Globals: rt.Globals()}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rec, err := store.Load("one")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec.Name != "first" || !rec.Created.Equal(created) {
		t.Errorf("record = %+v, want name first created %v", rec, created)
	}
	if len(rec.Globals) != 2 {
		t.Fatalf("Globals = %v, want double and xs", rec.Globals)
	}

	// Functions survive the round trip and still run.
	restored := runtime.NewSession()
	restored.Restore(rec.Globals)
	res := restored.RunJSON(context.Background(), []byte(callDouble))
	if !res.Success {
		t.Fatalf("running restored globals failed: %v", res.Error)
	}
	if !equalStrings(res.Output, []string{"42", `[1, "two"]`}) {
		t.Errorf("Output = %q, want [42 [1, \"two\"]]", res.Output)
	}
}

func TestStore_SaveReplacesGlobals(t *testing.T) {
	store := openTestStore(t)
	rec := SessionRecord{ID: "s", Created: time.Now(), Globals: map[string]bytecode.Value{
		"a": bytecode.NumberValue(1),
		"b": bytecode.NumberValue(2),
	}}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	rec.Globals = map[string]bytecode.Value{"b": bytecode.StringValue("bee")}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load("s")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Globals) != 1 || loaded.Globals["b"].Str() != "bee" {
		t.Errorf("Globals = %v, want only b=bee", loaded.Globals)
	}
}

func TestStore_NotFound(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.Load("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrSessionNotFound", err)
	}
	if err := store.Delete("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_LoadAllAndDelete(t *testing.T) {
	store := openTestStore(t)
	base := time.Now()
	for i, id := range []string{"late", "early"} {
		created := base.Add(-time.Duration(i) * time.Hour)
		if err := store.Save(SessionRecord{ID: id, Created: created}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	all, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "early" || all[1].ID != "late" {
		t.Errorf("LoadAll order = %v, want early then late", all)
	}

	if err := store.Delete("early"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	all, err = store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(all) != 1 || all[0].ID != "late" {
		t.Errorf("LoadAll after delete = %v, want only late", all)
	}
}

func TestSessionStore_RestoresFromStore(t *testing.T) {
	store := openTestStore(t)

	first := NewSessionStore(store)
	session, err := first.Create("persistent")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	res, err := first.Run(bg(), session, []byte(defineDouble))
	if err != nil || !res.Success {
		t.Fatalf("Run failed: %v / %v", err, res)
	}
	first.Close()

	second := NewSessionStore(store)
	defer second.Close()
	n, err := second.Restore()
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Restore() = %d, want 1", n)
	}
	restored, ok := second.Get(session.ID)
	if !ok || restored.Name != "persistent" {
		t.Fatalf("restored session = %+v", restored)
	}
	res, err = second.Run(bg(), restored, []byte(callDouble))
	if err != nil || !res.Success {
		t.Fatalf("Run after restore failed: %v / %v", err, res)
	}
	if !equalStrings(res.Output, []string{"42", `[1, "two"]`}) {
		t.Errorf("Output = %q, want [42 [1, \"two\"]]", res.Output)
	}

	if !second.Destroy(session.ID) {
		t.Fatal("Destroy returned false")
	}
	if _, err := store.Load(session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load after Destroy error = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_SkipsUndecodableGlobals(t *testing.T) {
	store := openTestStore(t)
	rec := SessionRecord{ID: "s", Name: "kept", Created: time.Now(), Globals: map[string]bytecode.Value{
		"good": bytecode.NumberValue(7),
	}}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := store.db.Exec("INSERT INTO globals (session_id, name, value) VALUES (?, ?, ?)",
		"s", "bad", []byte{0xff}); err != nil {
		t.Fatalf("inserting corrupt global: %v", err)
	}

	loaded, err := store.Load("s")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Globals) != 1 || loaded.Globals["good"].Number() != 7 {
		t.Errorf("Globals = %v, want only good=7", loaded.Globals)
	}

	all, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(all) != 1 || all[0].ID != "s" {
		t.Errorf("LoadAll = %v, want session s", all)
	}

	sessions := NewSessionStore(store)
	defer sessions.Close()
	n, err := sessions.Restore()
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Restore() = %d, want 1", n)
	}
}

func TestStore_DeeplyNestedGlobalSurvivesRestart(t *testing.T) {
	store := openTestStore(t)

	v := bytecode.NumberValue(1)
	for i := 0; i < 21; i++ {
		v = bytecode.NewListValue(v)
	}
	if err := store.Save(SessionRecord{ID: "deep", Created: time.Now(), Globals: map[string]bytecode.Value{"v": v}}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rec, err := store.Load("deep")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got, ok := rec.Globals["v"]
	if !ok || got.Inspect() != v.Inspect() {
		t.Errorf("restored v = %s, want %s", got.Inspect(), v.Inspect())
	}
}
