package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/justestif/vibestream/internal/db"
	"github.com/justestif/vibestream/internal/logging"
)

const (
	sessionCookieName = "session_id"
	sessionTTL        = 24 * time.Hour
)

// Session represents an authenticated user session.
type Session struct {
	ID        string
	Token     *oauth2.Token
	UserID    string
	UserName  string
	CreatedAt time.Time
}

// SessionManager defines the interface for session management.
type SessionManager interface {
	Create(ctx context.Context, token *oauth2.Token, userID, userName string) (*Session, error)
	Get(ctx context.Context, id string) *Session
	Delete(ctx context.Context, id string)
	// DeleteExpired drops sessions past their TTL and reports how many went.
	DeleteExpired(ctx context.Context) (int64, error)
	GetFromRequest(r *http.Request) *Session
	SetCookie(w http.ResponseWriter, session *Session)
	ClearCookie(w http.ResponseWriter)
}

// SessionStore keeps sessions in process memory. It backs the memory
// storage driver and the handler tests.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create generates a new session with the given token and user info.
func (s *SessionStore) Create(_ context.Context, token *oauth2.Token, userID, userName string) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:        id,
		Token:     token,
		UserID:    userID,
		UserName:  userName,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	return session, nil
}

// Get retrieves a live session by ID.
func (s *SessionStore) Get(_ context.Context, id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || s.expired(session) {
		return nil
	}
	return session
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// DeleteExpired removes every session older than the TTL.
func (s *SessionStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) expired(session *Session) bool {
	return s.now().Sub(session.CreatedAt) > sessionTTL
}

// GetFromRequest extracts the session from the request cookie.
func (s *SessionStore) GetFromRequest(r *http.Request) *Session {
	return sessionFromCookie(r, s)
}

// SetCookie sets the session cookie on the response.
func (s *SessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setCookie(w, session)
}

// ClearCookie removes the session cookie from the response.
func (s *SessionStore) ClearCookie(w http.ResponseWriter) {
	clearCookie(w)
}

// DBSessionStore manages user sessions in PostgreSQL.
type DBSessionStore struct {
	database *db.DB
}

// NewDBSessionStore creates a new database-backed session store.
func NewDBSessionStore(database *db.DB) *DBSessionStore {
	return &DBSessionStore{database: database}
}

// Create generates a new session and stores it in the database. The user
// row must already exist.
func (s *DBSessionStore) Create(ctx context.Context, token *oauth2.Token, userID, userName string) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	row := &db.Session{
		ID:           id,
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		CreatedAt:    now,
		ExpiresAt:    now.Add(sessionTTL),
	}
	if err := s.database.Sessions().Create(ctx, row); err != nil {
		return nil, err
	}

	return &Session{
		ID:        id,
		Token:     token,
		UserID:    userID,
		UserName:  userName,
		CreatedAt: now,
	}, nil
}

// Get retrieves a live session by ID from the database.
func (s *DBSessionStore) Get(ctx context.Context, id string) *Session {
	row, err := s.database.Sessions().Get(ctx, id)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Msg("session lookup failed")
		}
		return nil
	}

	user, err := s.database.Users().Get(ctx, row.UserID)
	if err != nil {
		return nil
	}

	return &Session{
		ID: row.ID,
		Token: &oauth2.Token{
			AccessToken:  row.AccessToken,
			RefreshToken: row.RefreshToken,
			Expiry:       row.TokenExpiry,
			TokenType:    "Bearer",
		},
		UserID:    row.UserID,
		UserName:  displayName(user),
		CreatedAt: row.CreatedAt,
	}
}

// Delete removes a session from the database.
func (s *DBSessionStore) Delete(ctx context.Context, id string) {
	if err := s.database.Sessions().Delete(ctx, id); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("session delete failed")
	}
}

// DeleteExpired removes expired session rows.
func (s *DBSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	return s.database.Sessions().DeleteExpired(ctx)
}

// GetFromRequest extracts the session from the request cookie.
func (s *DBSessionStore) GetFromRequest(r *http.Request) *Session {
	return sessionFromCookie(r, s)
}

// SetCookie sets the session cookie on the response.
func (s *DBSessionStore) SetCookie(w http.ResponseWriter, session *Session) {
	setCookie(w, session)
}

// ClearCookie removes the session cookie from the response.
func (s *DBSessionStore) ClearCookie(w http.ResponseWriter) {
	clearCookie(w)
}

func sessionFromCookie(r *http.Request, sm SessionManager) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return sm.Get(r.Context(), cookie.Value)
}

func displayName(u *db.User) string {
	var parts []string
	if u.FirstName != nil && *u.FirstName != "" {
		parts = append(parts, *u.FirstName)
	}
	if u.LastName != nil && *u.LastName != "" {
		parts = append(parts, *u.LastName)
	}
	if len(parts) == 0 {
		return u.ID
	}
	return strings.Join(parts, " ")
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func setCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

func clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

var (
	_ SessionManager = (*SessionStore)(nil)
	_ SessionManager = (*DBSessionStore)(nil)
)
