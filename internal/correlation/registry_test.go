package correlation

import (
	"reflect"
	"slices"
	"testing"
)

func TestResolveNamespace(t *testing.T) {
	r := New("tools:", 16)

	if id, ok := r.ResolveNamespace([]string{"tools:abc123"}); !ok || id != "abc123" {
		t.Errorf("expected abc123, got %q %v", id, ok)
	}
	if id, ok := r.ResolveNamespace([]string{"model", "tools:outer", "tools:inner"}); !ok || id != "inner" {
		t.Errorf("expected innermost segment 'inner', got %q %v", id, ok)
	}
	if _, ok := r.ResolveNamespace(nil); ok {
		t.Error("empty namespace should resolve to root")
	}
	if _, ok := r.ResolveNamespace([]string{"model:xyz", "tools:"}); ok {
		t.Error("prefix without identifier should resolve to root")
	}
}

func TestRegisterAndResolveCompletion(t *testing.T) {
	r := New("tools:", 16)

	p, replaced := r.RegisterDispatch("t1", "ls", "list files")
	if replaced {
		t.Error("first registration should not replace")
	}
	if p.Token != "t1" || p.Action != "ls" || p.Started.IsZero() {
		t.Errorf("unexpected pending %+v", p)
	}

	if _, replaced := r.RegisterDispatch("t1", "ls", "again"); !replaced {
		t.Error("duplicate token should report replacement")
	}
	if r.PendingCount() != 1 {
		t.Errorf("expected 1 pending, got %d", r.PendingCount())
	}

	got, ok := r.ResolveCompletion("t1")
	if !ok || got.Description != "again" {
		t.Errorf("expected overwritten pending, got %+v %v", got, ok)
	}
	if _, ok := r.ResolveCompletion("t1"); ok {
		t.Error("completion should remove the pending entry")
	}
	if _, ok := r.ResolveCompletion("zz"); ok {
		t.Error("unknown token should be orphaned")
	}
}

func TestDispatchThenContentBindsNamespace(t *testing.T) {
	r := New("tools:", 16)

	id, adopted := r.AdoptForDispatch("t1", "")
	if id != "t1" || adopted {
		t.Fatalf("dispatch with no prior content should create sub t1, got %q adopted=%v", id, adopted)
	}

	sub, created, bound := r.SubExecutionFor("ns-a")
	if sub != "t1" || created || !bound {
		t.Errorf("first content should bind to dispatched sub, got %q created=%v bound=%v", sub, created, bound)
	}
	sub, created, bound = r.SubExecutionFor("ns-a")
	if sub != "t1" || created || bound {
		t.Errorf("repeat content should resolve directly, got %q created=%v bound=%v", sub, created, bound)
	}
}

func TestContentThenDispatchAdopts(t *testing.T) {
	r := New("tools:", 16)

	sub, created, _ := r.SubExecutionFor("ns-a")
	if sub != "ns-a" || !created {
		t.Fatalf("content before dispatch should create a sub-execution, got %q created=%v", sub, created)
	}

	id, adopted := r.AdoptForDispatch("t1", "")
	if id != "ns-a" || !adopted {
		t.Errorf("dispatch should adopt content-spawned sub, got %q adopted=%v", id, adopted)
	}

	match, heuristic, ok := r.MatchDispatchCompletion("t1")
	if !ok || heuristic || match != "ns-a" {
		t.Errorf("expected strict match on adopted token, got %q heuristic=%v ok=%v", match, heuristic, ok)
	}
}

func TestNamespaceEqualToToken(t *testing.T) {
	r := New("tools:", 16)
	r.AdoptForDispatch("t1", "")
	r.AdoptForDispatch("t2", "")

	sub, created, _ := r.SubExecutionFor("t2")
	if sub != "t2" || created {
		t.Errorf("namespace equal to a token should bind to it, got %q created=%v", sub, created)
	}
	sub, _, _ = r.SubExecutionFor("other")
	if sub != "t1" {
		t.Errorf("unknown namespace should bind to oldest unbound dispatch, got %q", sub)
	}
}

func TestMatchDispatchCompletion_Fallback(t *testing.T) {
	r := New("tools:", 16)
	r.SubExecutionFor("ns-old")
	r.SubExecutionFor("ns-new")

	id, heuristic, ok := r.MatchDispatchCompletion("unknown")
	if !ok || !heuristic || id != "ns-old" {
		t.Errorf("expected heuristic match on oldest token-less sub, got %q heuristic=%v ok=%v", id, heuristic, ok)
	}

	r.Finish("ns-old")
	id, _, _ = r.MatchDispatchCompletion("unknown")
	if id != "ns-new" {
		t.Errorf("finished subs should not match, got %q", id)
	}

	r.Finish("ns-new")
	if _, _, ok := r.MatchDispatchCompletion("unknown"); ok {
		t.Error("no active subs should mean no match")
	}
}

func TestMatchDispatchCompletion_TerminalTokenFallsThrough(t *testing.T) {
	r := New("tools:", 16)
	r.AdoptForDispatch("t1", "")
	r.Finish("t1")

	if _, _, ok := r.MatchDispatchCompletion("t1"); ok {
		t.Error("token of a finished sub-execution should not match")
	}
}

func TestFinishKeepsNamespaceBinding(t *testing.T) {
	r := New("tools:", 16)
	r.SubExecutionFor("ns-a")
	r.Finish("ns-a")

	if slices.Contains(r.Active(), "ns-a") {
		t.Error("finished sub should not be active")
	}
	sub, created, _ := r.SubExecutionFor("ns-a")
	if sub != "ns-a" || created {
		t.Errorf("late content should map to the finished sub, got %q created=%v", sub, created)
	}
	r.Finish("missing") // no-op
}

func TestActiveOrder(t *testing.T) {
	r := New("tools:", 16)
	r.SubExecutionFor("a")
	r.AdoptForDispatch("t-b", "") // adopts "a"
	r.AdoptForDispatch("t-c", "") // new
	r.SubExecutionFor("d")        // binds to t-c (dispatched, no content)
	r.SubExecutionFor("e")        // new

	want := []string{"a", "t-c", "e"}
	if got := r.Active(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestResolvedDedup(t *testing.T) {
	r := New("tools:", 2)
	if r.WasResolved("t1") {
		t.Error("nothing resolved yet")
	}
	r.MarkResolved("t1")
	if !r.WasResolved("t1") {
		t.Error("t1 should be remembered")
	}
	r.MarkResolved("t2")
	r.MarkResolved("t3")
	if r.WasResolved("t1") {
		t.Error("bounded cache should evict the oldest token")
	}
	r.MarkResolved("")
	if r.WasResolved("") {
		t.Error("empty token is never remembered")
	}
}

func TestResolvedDedup_DispatchTokenOutlivesCache(t *testing.T) {
	r := New("tools:", 1)
	r.AdoptForDispatch("t1", "")
	r.MarkResolved("t1")
	r.Finish("t1")

	r.MarkResolved("t2")
	r.MarkResolved("t3")
	if !r.WasResolved("t1") {
		t.Error("token of a finished sub-execution should stay resolved after eviction")
	}

	r.AdoptForDispatch("t4", "")
	if r.WasResolved("t4") {
		t.Error("token of a running sub-execution is not resolved")
	}
}

func TestAdoptForDispatch_SkipsParent(t *testing.T) {
	r := New("tools:", 16)
	r.SubExecutionFor("outer") // content seen before any dispatch

	id, adopted := r.AdoptForDispatch("t-inner", "outer")
	if adopted || id != "t-inner" {
		t.Errorf("a sub-execution must not adopt its own dispatch, got %q adopted=%v", id, adopted)
	}

	id, adopted = r.AdoptForDispatch("t-outer", "")
	if !adopted || id != "outer" {
		t.Errorf("root dispatch should adopt the content-spawned sub-execution, got %q adopted=%v", id, adopted)
	}
}

func TestDispatchedBy(t *testing.T) {
	r := New("tools:", 16)
	r.AdoptForDispatch("t1", "")

	if id, ok := r.DispatchedBy("t1"); !ok || id != "t1" {
		t.Errorf("expected t1, got %q %v", id, ok)
	}
	if _, ok := r.DispatchedBy("missing"); ok {
		t.Error("unknown token should not match")
	}
	r.Finish("t1")
	if _, ok := r.DispatchedBy("t1"); ok {
		t.Error("finished sub-execution should not match")
	}
}
