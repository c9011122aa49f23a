package csvdb

import "errors"

// Loader is implemented by stores that can be loaded from their backing
// stream.
type Loader interface {
	Load() error
}

// Persister is implemented by stores that can flush their records.
type Persister interface {
	Commit() error
}

// Closer releases the resources of a store.
type Closer interface {
	Close() error
}

// Session is the capability set driven by Hooks. *Store implements it.
type Session interface {
	Loader
	Persister
	Closer
}

// Hooks binds a session to the two lifecycle moments of its owner.
type Hooks struct {
	s Session
}

// NewHooks returns the lifecycle hooks of s.
func NewHooks(s Session) *Hooks {
	return &Hooks{s: s}
}

// OnInit is called once after construction. It loads the records.
func (h *Hooks) OnInit() error {
	return h.s.Load()
}

// OnDestroy is called once before teardown. It commits the records then
// releases the resources, even when the commit failed.
func (h *Hooks) OnDestroy() error {
	err := h.s.Commit()
	return errors.Join(err, h.s.Close())
}
