package auth

import (
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

// Roles known to the remote API.
const (
	RoleUser     = "user"
	RolePromotor = "promotor"
	RoleScanner  = "scanner"
	RoleOwner    = "owner"
	RoleAdmin    = "admin"
)

var scanRoles = map[string]bool{
	RoleScanner:  true,
	RolePromotor: true,
	RoleOwner:    true,
	RoleAdmin:    true,
}

type EventKind int

const (
	LoggedIn EventKind = iota
	LoggedOut
)

func (k EventKind) String() string {
	if k == LoggedIn {
		return "login"
	}
	return "logout"
}

type Event struct {
	Kind EventKind
	Role string
}

// Session holds the bearer credential of the current user together with its
// role. Components that care about login/logout subscribe explicitly and
// drop their subscription on teardown.
type Session struct {
	mu           sync.RWMutex
	token        string
	role         string
	roleOverride string

	nextID      int
	subscribers map[int]func(Event)
}

// NewSession builds a session from a bearer token. The role is read from the
// token claims unless roleOverride is set. An empty token yields an anonymous
// session.
func NewSession(token, roleOverride string) *Session {
	s := &Session{
		roleOverride: strings.ToLower(strings.TrimSpace(roleOverride)),
		subscribers:  make(map[int]func(Event)),
	}
	s.token, s.role = s.resolve(token)
	return s
}

func (s *Session) resolve(token string) (string, string) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return "", ""
	}
	if s.roleOverride != "" {
		return token, s.roleOverride
	}
	return token, RoleFromToken(token)
}

// RoleFromToken extracts the role claim without verifying the signature. The
// server verifies the token on every call; the client only needs the claim
// to decide which screens to offer.
func RoleFromToken(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		log.WithError(err).Debug("auth: token is not a readable JWT")
		return RoleUser
	}
	for _, key := range []string{"role", "rol", "tipo_usuario"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return strings.ToLower(v)
		}
	}
	return RoleUser
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) Role() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// CanScan reports whether the current user may validate tickets at a gate.
func (s *Session) CanScan() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && scanRoles[s.role]
}

// Subscribe registers fn for login/logout notifications and returns the
// function that removes it.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) Login(token string) {
	s.mu.Lock()
	s.token, s.role = s.resolve(token)
	ev := Event{Kind: LoggedIn, Role: s.role}
	s.mu.Unlock()

	s.emit(ev)
}

func (s *Session) Logout() {
	s.mu.Lock()
	s.token, s.role = "", ""
	s.mu.Unlock()

	s.emit(Event{Kind: LoggedOut})
}

func (s *Session) emit(ev Event) {
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	log.WithFields(log.Fields{"event": ev.Kind.String(), "role": ev.Role}).Debug("auth: session changed")
	for _, fn := range fns {
		fn(ev)
	}
}
