package repository

import (
	"errors"
	"sync"
	"time"

	"github.com/openclaw/wagate/internal/engine"
	"github.com/openclaw/wagate/internal/model"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// SessionRecord is the mutable state of one live session. It is only handed
// out inside Update and Delete callbacks, under the session's lock.
type SessionRecord struct {
	Session    model.Session
	Handle     engine.Handle
	Credential *model.Credential
}

// SessionStore is the in-memory registry of live sessions.
//
// Each session has its own lock; the registry lock is only held to insert,
// look up or remove an entry. Callbacks passed to Update and Delete run under
// the session lock and must not call back into the store.
type SessionStore interface {
	Insert(session model.Session, handle engine.Handle) error
	Get(id string) (*model.Session, error)
	Update(id string, fn func(rec *SessionRecord) error) error
	Delete(id string, fn func(rec *SessionRecord) error) (*SessionRecord, error)
	Watch(id string) (*model.Session, <-chan struct{}, error)
	Credential(id string) (*model.Credential, error)
	ReadyHandle(id string) (engine.Handle, model.SessionStatus, error)
	List() []model.Session
	Count() int
}

type sessionEntry struct {
	mu      sync.Mutex
	rec     SessionRecord
	deleted bool
	changed chan struct{}
}

// notify wakes every watcher. Caller holds e.mu.
func (e *sessionEntry) notify() {
	close(e.changed)
	if !e.deleted {
		e.changed = make(chan struct{})
	}
}

func (e *sessionEntry) snapshot() *model.Session {
	s := e.rec.Session
	if s.AuthCode != nil {
		code := *s.AuthCode
		s.AuthCode = &code
	}
	if e.rec.Credential != nil {
		token := e.rec.Credential.Token
		s.Token = &token
	} else {
		s.Token = nil
	}
	return &s
}

type memorySessionStore struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
}

func NewSessionStore() SessionStore {
	return &memorySessionStore{entries: make(map[string]*sessionEntry)}
}

func (s *memorySessionStore) Insert(session model.Session, handle engine.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[session.ID]; exists {
		return ErrSessionExists
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	s.entries[session.ID] = &sessionEntry{
		rec:     SessionRecord{Session: session, Handle: handle},
		changed: make(chan struct{}),
	}
	return nil
}

func (s *memorySessionStore) lookup(id string) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *memorySessionStore) Get(id string) (*model.Session, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrSessionNotFound
	}
	return e.snapshot(), nil
}

// Update runs fn under the session lock. Watchers are notified when fn succeeds.
func (s *memorySessionStore) Update(id string, fn func(rec *SessionRecord) error) error {
	e, ok := s.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return ErrSessionNotFound
	}
	if err := fn(&e.rec); err != nil {
		return err
	}
	e.rec.Session.UpdatedAt = time.Now()
	e.notify()
	return nil
}

// Delete runs fn under the session lock and, when it succeeds, removes the
// session together with its credential in one step. The removed record is
// returned so the caller can release the engine handle outside any lock.
func (s *memorySessionStore) Delete(id string, fn func(rec *SessionRecord) error) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if fn != nil {
		if err := fn(&e.rec); err != nil {
			return nil, err
		}
	}
	e.rec.Session.UpdatedAt = time.Now()
	removed := e.rec
	e.rec.Credential = nil
	e.rec.Handle = nil
	e.deleted = true
	delete(s.entries, id)
	e.notify()
	return &removed, nil
}

// Watch returns the current snapshot and a channel closed on the next change,
// including removal.
func (s *memorySessionStore) Watch(id string) (*model.Session, <-chan struct{}, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, nil, ErrSessionNotFound
	}
	return e.snapshot(), e.changed, nil
}

func (s *memorySessionStore) Credential(id string) (*model.Credential, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted || e.rec.Credential == nil {
		return nil, ErrSessionNotFound
	}
	cred := *e.rec.Credential
	return &cred, nil
}

// ReadyHandle returns the engine handle together with the status it was read under.
func (s *memorySessionStore) ReadyHandle(id string) (engine.Handle, model.SessionStatus, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, model.SessionStatusNotFound, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, model.SessionStatusNotFound, ErrSessionNotFound
	}
	return e.rec.Handle, e.rec.Session.Status, nil
}

func (s *memorySessionStore) List() []model.Session {
	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sessions := make([]model.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			sessions = append(sessions, *e.snapshot())
		}
		e.mu.Unlock()
	}
	return sessions
}

func (s *memorySessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
