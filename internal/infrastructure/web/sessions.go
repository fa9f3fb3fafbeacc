package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"ContractDesk/internal/domain"
	"ContractDesk/internal/ports"
	"ContractDesk/internal/usecase"
)

// WorkflowBuilder creates the workflow for a newly opened session store.
type WorkflowBuilder func(store ports.SessionStore) *usecase.Workflow

// browserSession is the state held for one identity on one browser.
type browserSession struct {
	workflow *usecase.Workflow
	reader   ports.SessionReader
	lastSeen time.Time
	// carried holds summary views attached to an upload redirect, keyed by document id.
	// Each is consumed by the first summary view request for that document.
	carried map[string]*usecase.SummaryView
}

// Sessions maps session cookies and identities to browser sessions and evicts idle ones.
type Sessions struct {
	factory    ports.SessionStoreFactory
	build      WorkflowBuilder
	cookieName string
	ttl        time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*browserSession
}

// NewSessions builds the session registry.
func NewSessions(factory ports.SessionStoreFactory, build WorkflowBuilder, cookieName string, ttl time.Duration) *Sessions {
	return &Sessions{
		factory:    factory,
		build:      build,
		cookieName: cookieName,
		ttl:        ttl,
		now:        time.Now,
		entries:    map[string]*browserSession{},
	}
}

// resolve returns the browser session for the request and its signed-in identity,
// opening a new one and setting the cookie when the request carries none.
// Each identity signed in on a browser gets its own session: the store key is
// derived from the cookie id and the owner.
func (s *Sessions) resolve(w http.ResponseWriter, r *http.Request) *browserSession {
	owner := ownerKey(identityFrom(r.Context()))
	cookieID := uuid.Nil
	if c, err := r.Cookie(s.cookieName); err == nil {
		if parsed, err := uuid.Parse(c.Value); err == nil {
			cookieID = parsed
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	fresh := cookieID == uuid.Nil
	if fresh {
		cookieID = uuid.New()
	}
	key := uuid.NewSHA1(cookieID, []byte(owner)).String()
	if sess, ok := s.entries[key]; ok {
		sess.lastSeen = now
		return sess
	}

	// A known cookie without an entry reopens the store, so a Redis-backed session
	// survives a restart of this process.
	store := s.factory.Open(key)
	sess := &browserSession{
		workflow: s.build(store),
		reader:   store,
		lastSeen: now,
		carried:  map[string]*usecase.SummaryView{},
	}
	s.entries[key] = sess

	if fresh {
		http.SetCookie(w, &http.Cookie{
			Name:     s.cookieName,
			Value:    cookieID.String(),
			Path:     "/",
			MaxAge:   int(s.ttl / time.Second),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

func ownerKey(identity *domain.Identity) string {
	if identity == nil {
		return ""
	}
	return string(identity.AuthProvider) + ":" + identity.DisplayName
}

// Sweep drops sessions idle for longer than the TTL and reports how many were removed.
// Redis-backed state expires on its own; this only releases the in-process workflow.
func (s *Sessions) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.entries {
		if now.Sub(sess.lastSeen) > s.ttl {
			delete(s.entries, id)
			evicted++
		}
	}
	return evicted
}

func (s *Sessions) carry(sess *browserSession, view *usecase.SummaryView) {
	if view == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.carried[view.DocumentID] = view
}

func (s *Sessions) takeCarried(sess *browserSession, docID string) *usecase.SummaryView {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := sess.carried[docID]
	delete(sess.carried, docID)
	return view
}

// Len reports the number of live browser sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
