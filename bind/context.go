package bind

import (
	"sync"

	"github.com/chazu/mbind/vm"
)

// Tokens carry a 16-bit tag in the high bits and the slot number below it.
const tokenTag = 0x6D62

// Context is the native state behind a token: named global references,
// named integer state and an optional destructor run on Destroy.
type Context struct {
	globals    map[string]GlobalObject
	state      map[string]int64
	destructor func()
}

// ContextStore maps opaque tokens held by managed objects to native
// contexts. Tokens cannot be forged: an unknown or untagged token is a
// contract violation. After teardown every issued token reads as destroyed
// and operations that would store state fail with ErrTornDown.
type ContextStore struct {
	jvm      *Jvm
	mu       sync.Mutex
	next     int64
	contexts map[int64]*Context
	dead     map[int64]struct{}
	closed   bool
}

func newContextStore(j *Jvm) *ContextStore {
	return &ContextStore{
		jvm:      j,
		contexts: make(map[int64]*Context),
		dead:     make(map[int64]struct{}),
	}
}

// Create allocates a context and returns its token. destructor may be nil.
func (s *ContextStore) Create(destructor func()) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrTornDown
	}
	s.next++
	token := tokenTag<<48 | s.next
	s.contexts[token] = &Context{
		globals:    make(map[string]GlobalObject),
		state:      make(map[string]int64),
		destructor: destructor,
	}
	return token, nil
}

// find returns the context of token. A destroyed token yields nil; known is
// false for a token this store never issued. Caller holds s.mu.
func (s *ContextStore) find(token int64) (c *Context, known bool) {
	if uint64(token)>>48 != tokenTag {
		return nil, false
	}
	if c, ok := s.contexts[token]; ok {
		return c, true
	}
	_, dead := s.dead[token]
	return nil, dead
}

// with runs fn on token's context under the store lock. fn receives nil for
// a destroyed token. It reports whether the store was already torn down.
func (s *ContextStore) with(token int64, fn func(c *Context)) (closed bool) {
	s.mu.Lock()
	c, known := s.find(token)
	closed = s.closed
	if known {
		fn(c)
	}
	s.mu.Unlock()
	if !known {
		s.jvm.vm.Fatal(vm.ContractTokenForgery, "token %#x was not issued by this store", token)
	}
	return closed
}

// Store keeps g under key, replacing and deleting an earlier global. The
// context takes ownership of g unless ErrTornDown is returned. Storing into
// a destroyed context deletes g.
func (s *ContextStore) Store(env *Env, token int64, key string, g GlobalObject) error {
	var old GlobalObject
	stored := false
	closed := s.with(token, func(c *Context) {
		if c == nil || s.closed {
			return
		}
		old = c.globals[key]
		c.globals[key] = g
		stored = true
	})
	if closed {
		return ErrTornDown
	}
	if !stored {
		g.Delete(env)
		return nil
	}
	if old.ref != g.ref {
		old.Delete(env)
	}
	return nil
}

// PromoteInto takes o over into the context: a local is promoted and
// deleted. After teardown o is left untouched.
func (s *ContextStore) PromoteInto(env *Env, token int64, key string, o Object) error {
	if err := s.live(token); err != nil {
		return err
	}
	return s.storeOwned(env, token, key, Promote(env, o))
}

// CopyInto stores a new global reference to o, leaving o valid.
func (s *ContextStore) CopyInto(env *Env, token int64, key string, o Object) error {
	if err := s.live(token); err != nil {
		return err
	}
	return s.storeOwned(env, token, key, NewGlobal(env, o))
}

// storeOwned is Store for a global created on the caller's behalf; it is
// deleted again if the store closed in the meantime.
func (s *ContextStore) storeOwned(env *Env, token int64, key string, g GlobalObject) error {
	err := s.Store(env, token, key, g)
	if err != nil {
		g.Delete(env)
	}
	return err
}

// live checks token and fails with ErrTornDown once the store is closed.
func (s *ContextStore) live(token int64) error {
	if s.with(token, func(*Context) {}) {
		return ErrTornDown
	}
	return nil
}

// Query returns a local reference to the object stored under key, or a null
// local if there is none.
func (s *ContextStore) Query(env *Env, token int64, key string) LocalObject {
	var g GlobalObject
	s.with(token, func(c *Context) {
		if c != nil {
			g = c.globals[key]
		}
	})
	return Demote(env, g)
}

// Extract removes the object stored under key and hands its global to the
// caller.
func (s *ContextStore) Extract(token int64, key string) (g GlobalObject, ok bool) {
	s.with(token, func(c *Context) {
		if c == nil {
			return
		}
		g, ok = c.globals[key]
		delete(c.globals, key)
	})
	return g, ok
}

// SetState stores an integer under key.
func (s *ContextStore) SetState(token int64, key string, v int64) error {
	closed := s.with(token, func(c *Context) {
		if c != nil {
			c.state[key] = v
		}
	})
	if closed {
		return ErrTornDown
	}
	return nil
}

// State returns the integer stored under key.
func (s *ContextStore) State(token int64, key string) (v int64, ok bool) {
	s.with(token, func(c *Context) {
		if c != nil {
			v, ok = c.state[key]
		}
	})
	return v, ok
}

// Destroy deletes every global the context holds and runs its destructor.
// Destroying a token twice is a no-op.
func (s *ContextStore) Destroy(env *Env, token int64) {
	var dying *Context
	s.with(token, func(c *Context) {
		if c == nil {
			return
		}
		dying = c
		delete(s.contexts, token)
		s.dead[token] = struct{}{}
	})
	if dying == nil {
		return
	}
	for _, g := range dying.globals {
		g.Delete(env)
	}
	if dying.destructor != nil {
		dying.destructor()
	}
}

// Len returns the number of live contexts.
func (s *ContextStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}

// clear drops every context at teardown and closes the store. Leaked
// contexts are reported.
func (s *ContextStore) clear(raw *vm.Env) {
	s.mu.Lock()
	contexts := s.contexts
	s.contexts = make(map[int64]*Context)
	for token := range contexts {
		s.dead[token] = struct{}{}
	}
	s.closed = true
	s.mu.Unlock()

	if len(contexts) > 0 {
		log.Warningf("%d context(s) still live at teardown", len(contexts))
	}
	for _, c := range contexts {
		if raw != nil {
			for _, g := range c.globals {
				if !g.ref.IsNull() {
					raw.DeleteGlobalRef(g.ref)
				}
			}
		}
		if c.destructor != nil {
			c.destructor()
		}
	}
}
