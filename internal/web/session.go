package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"faq-rag/internal/helper"
	"faq-rag/internal/quiz"
)

const (
	sessionCookie     = "faq_session"
	sessionContextKey = "faq.session"
	issuerContextKey  = "faq.session_issuer"
	sessionTTL        = 12 * time.Hour
	sweepInterval     = time.Minute
	maxSessions       = 10000
)

// UserSession is everything the server remembers about one browser.
// Handlers lock it for the whole request so quiz transitions stay ordered.
type UserSession struct {
	mu sync.Mutex

	ID       string
	Username string
	Admin    bool
	Quiz     quiz.Session
	lastSeen time.Time
}

// identity reads the login under the session lock.
func (s *UserSession) identity() (username string, admin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Username, s.Admin
}

// logout drops the login and any quiz in progress.
func (s *UserSession) logout() {
	s.Username = ""
	s.Admin = false
	s.Quiz.Reset()
}

// SessionStore keeps sessions in memory, keyed by the cookie value.
// Expired sessions are swept at most once per sweepInterval, and the oldest
// session is evicted once maxSessions is reached.
type SessionStore struct {
	mu        sync.Mutex
	sessions  map[string]*UserSession
	ttl       time.Duration
	limit     int
	now       func() time.Time
	lastSweep time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*UserSession),
		ttl:      sessionTTL,
		limit:    maxSessions,
		now:      time.Now,
	}
}

// Get returns the live session for id, or nil.
func (s *SessionStore) Get(id string) *UserSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	now := s.now()
	if now.Sub(sess.lastSeen) > s.ttl {
		delete(s.sessions, id)
		return nil
	}
	sess.lastSeen = now
	return sess
}

func (s *SessionStore) Create() (*UserSession, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	sess := &UserSession{ID: id, Quiz: quiz.Session{State: quiz.StateIdle}}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) >= sweepInterval {
		s.sweepLocked(now)
	}
	if s.limit > 0 && len(s.sessions) >= s.limit {
		s.evictOldestLocked()
	}
	sess.lastSeen = now
	s.sessions[id] = sess
	return sess, nil
}

func (s *SessionStore) sweepLocked(now time.Time) {
	s.lastSweep = now
	for key, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.ttl {
			delete(s.sessions, key)
		}
	}
}

func (s *SessionStore) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for key, sess := range s.sessions {
		if oldestID == "" || sess.lastSeen.Before(oldest) {
			oldestID, oldest = key, sess.lastSeen
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
		log.Debug().Str("session", oldestID).Msg("Session evicted")
	}
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// sessionMiddleware attaches the browser's existing session, if any. It never
// creates one; handlers that keep state call ensureSession.
func sessionMiddleware(store *SessionStore, secure bool) gin.HandlerFunc {
	issuer := &sessionIssuer{store: store, secure: secure}
	return func(c *gin.Context) {
		c.Set(issuerContextKey, issuer)
		if id, err := c.Cookie(sessionCookie); err == nil && helper.IsUUID(id) {
			if sess := store.Get(id); sess != nil {
				issuer.setCookie(c, sess.ID)
				c.Set(sessionContextKey, sess)
			}
		}
		c.Next()
	}
}

type sessionIssuer struct {
	store  *SessionStore
	secure bool
}

// setCookie (re)issues the cookie so it lives as long as the sliding TTL.
func (i *sessionIssuer) setCookie(c *gin.Context, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, id, int(sessionTTL.Seconds()), "/", "", i.secure || c.Request.TLS != nil, true)
}

// ensureSession returns the request's session, creating it and setting the
// cookie when the browser has none.
func ensureSession(c *gin.Context) (*UserSession, error) {
	if sess := sessionFrom(c); sess != nil {
		return sess, nil
	}
	v, _ := c.Get(issuerContextKey)
	issuer, ok := v.(*sessionIssuer)
	if !ok {
		return nil, NewHTTPError(http.StatusInternalServerError, "session_failed", "sessions are not enabled on this route", nil)
	}
	sess, err := issuer.store.Create()
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "session_failed", "could not start a session", err)
	}
	log.Debug().Str("session", sess.ID).Msg("Session created")

	issuer.setCookie(c, sess.ID)
	c.Set(sessionContextKey, sess)
	return sess, nil
}

func sessionFrom(c *gin.Context) *UserSession {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*UserSession)
	return sess
}
