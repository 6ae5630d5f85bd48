// Package correlation resolves the engine's two weak correlation signals,
// namespace strings on content events and single-use tokens shared between
// action requests and their completions, into stable entity identities.
//
// The registry is pure bookkeeping. It performs no I/O and is owned by a
// single consumption loop, so it is not safe for concurrent use.
package correlation

import (
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Pending is an action request awaiting its completion record.
type Pending struct {
	Token       string
	Action      string
	Description string
	Started     time.Time
}

// activeSub is a sub-execution that has not reached a terminal state.
type activeSub struct {
	id    string
	token string // dispatch token, empty when only seen through content
	nsID  string // namespace identifier, empty until content is observed
}

// Registry maps correlation tokens and namespace fragments to live entities.
type Registry struct {
	prefix string

	pending   map[string]Pending
	nsToSub   map[string]string
	tokenToID map[string]string

	// active is ordered by first observation; "oldest" lookups scan it.
	active []*activeSub
	byID   map[string]*activeSub

	resolved *lru.Cache[string, struct{}]
}

// New creates a registry. prefix is the namespace segment prefix that marks
// a sub-execution (e.g. "tools:"); dedupSize bounds how many resolved tokens
// are remembered for duplicate suppression.
func New(prefix string, dedupSize int) *Registry {
	if dedupSize <= 0 {
		dedupSize = 1024
	}
	// lru.New only errors on non-positive size which we guard above.
	resolved, _ := lru.New[string, struct{}](dedupSize)
	return &Registry{
		prefix:    prefix,
		pending:   make(map[string]Pending),
		nsToSub:   make(map[string]string),
		tokenToID: make(map[string]string),
		byID:      make(map[string]*activeSub),
		resolved:  resolved,
	}
}

// ResolveNamespace returns the sub-execution identifier carried by the
// innermost namespace segment of the form prefix+id, so content of a nested
// sub-execution is attributed to it and not to its parent. ok is false when
// the event belongs to the root execution.
func (r *Registry) ResolveNamespace(namespace []string) (string, bool) {
	for i := len(namespace) - 1; i >= 0; i-- {
		seg := namespace[i]
		if !strings.HasPrefix(seg, r.prefix) {
			continue
		}
		id := strings.TrimSpace(strings.TrimPrefix(seg, r.prefix))
		if id != "" {
			return id, true
		}
	}
	return "", false
}

// RegisterDispatch records a pending action request keyed by token. A token
// that is already pending is a protocol violation; the new request replaces
// it and replaced is true so the caller can log it.
func (r *Registry) RegisterDispatch(token, action, description string) (p Pending, replaced bool) {
	_, replaced = r.pending[token]
	p = Pending{
		Token:       token,
		Action:      action,
		Description: description,
		Started:     time.Now(),
	}
	r.pending[token] = p
	return p, replaced
}

// ResolveCompletion removes and returns the pending request for token. ok is
// false for an orphaned completion.
func (r *Registry) ResolveCompletion(token string) (Pending, bool) {
	p, ok := r.pending[token]
	if ok {
		delete(r.pending, token)
	}
	return p, ok
}

// SubExecutionFor maps a namespace identifier to a sub-execution id. The
// first time an identifier is seen it is bound to the oldest active
// sub-execution that was dispatched but has produced no content yet
// (adopted), or else it becomes a new sub-execution (created).
func (r *Registry) SubExecutionFor(nsID string) (id string, created, adopted bool) {
	if id, ok := r.nsToSub[nsID]; ok {
		return id, false, false
	}
	// Engines that reuse the dispatch token as the namespace id give an
	// exact match.
	if id, ok := r.tokenToID[nsID]; ok {
		if s, active := r.byID[id]; active && s.nsID == "" {
			s.nsID = nsID
		}
		r.nsToSub[nsID] = id
		return id, false, true
	}
	for _, s := range r.active {
		if s.token != "" && s.nsID == "" {
			s.nsID = nsID
			r.nsToSub[nsID] = s.id
			return s.id, false, true
		}
	}
	s := &activeSub{id: nsID, nsID: nsID}
	r.track(s)
	r.nsToSub[nsID] = s.id
	return s.id, true, false
}

// AdoptForDispatch assigns a dispatch token to a sub-execution. When content
// for a not-yet-dispatched sub-execution has already been observed, the
// oldest such sub-execution takes the token (adopted); otherwise the token
// itself becomes the id of a new sub-execution. parent is the sub-execution
// issuing the dispatch, empty at root; it is never adopted by its own
// dispatch.
func (r *Registry) AdoptForDispatch(token, parent string) (id string, adopted bool) {
	if id, ok := r.tokenToID[token]; ok {
		return id, false
	}
	for _, s := range r.active {
		if s.token == "" && s.id != parent {
			s.token = token
			r.tokenToID[token] = s.id
			return s.id, true
		}
	}
	s := &activeSub{id: token, token: token}
	r.track(s)
	r.tokenToID[token] = s.id
	return s.id, false
}

// MatchDispatchCompletion finds the sub-execution a dispatch completion
// belongs to. A strict token match wins. Otherwise the oldest active
// sub-execution with no token is returned with heuristic set, a best-effort
// fallback for completions that cannot be strictly matched.
func (r *Registry) MatchDispatchCompletion(token string) (id string, heuristic, ok bool) {
	if id, found := r.DispatchedBy(token); found {
		return id, false, true
	}
	for _, s := range r.active {
		if s.token == "" {
			return s.id, true, true
		}
	}
	return "", false, false
}

// DispatchedBy returns the non-terminal sub-execution dispatched with token.
func (r *Registry) DispatchedBy(token string) (string, bool) {
	id, ok := r.tokenToID[token]
	if !ok {
		return "", false
	}
	if _, active := r.byID[id]; !active {
		return "", false
	}
	return id, true
}

// Finish removes a sub-execution from the active set. Its namespace binding
// is kept so late content is still attributed to it rather than spawning a
// new entity.
func (r *Registry) Finish(id string) {
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, s := range r.active {
		if s.id == id {
			r.active = append(r.active[:i], r.active[i+1:]...)
			break
		}
	}
}

// MarkResolved remembers that a completion for token has been applied.
func (r *Registry) MarkResolved(token string) {
	if token == "" {
		return
	}
	r.resolved.Add(token, struct{}{})
}

// WasResolved reports whether a completion for token was already applied.
// Dispatch tokens stay resolved for as long as the registry lives; other
// tokens are remembered only while they remain in the bounded cache.
func (r *Registry) WasResolved(token string) bool {
	if token == "" {
		return false
	}
	if r.resolved.Contains(token) {
		return true
	}
	if id, ok := r.tokenToID[token]; ok {
		_, active := r.byID[id]
		return !active
	}
	return false
}

// Active returns the ids of non-terminal sub-executions, oldest first.
func (r *Registry) Active() []string {
	ids := make([]string, len(r.active))
	for i, s := range r.active {
		ids[i] = s.id
	}
	return ids
}

// PendingCount returns the number of action requests awaiting completion.
func (r *Registry) PendingCount() int {
	return len(r.pending)
}

func (r *Registry) track(s *activeSub) {
	r.active = append(r.active, s)
	r.byID[s.id] = s
}
