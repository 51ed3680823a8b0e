package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestNewSession_RoleFromClaims(t *testing.T) {
	tests := []struct {
		name    string
		claims  jwt.MapClaims
		role    string
		canScan bool
	}{
		{"Scanner", jwt.MapClaims{"sub": "7", "role": "scanner"}, RoleScanner, true},
		{"Promotor upper case", jwt.MapClaims{"sub": "7", "role": "PROMOTOR"}, RolePromotor, true},
		{"Admin via rol", jwt.MapClaims{"sub": "7", "rol": "admin"}, RoleAdmin, true},
		{"Plain user", jwt.MapClaims{"sub": "7", "role": "user"}, RoleUser, false},
		{"No role claim", jwt.MapClaims{"sub": "7"}, RoleUser, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("Bearer "+signedToken(t, tt.claims), "")
			assert.True(t, s.Authenticated())
			assert.Equal(t, tt.role, s.Role())
			assert.Equal(t, tt.canScan, s.CanScan())
		})
	}
}

func TestNewSession_OpaqueTokenAndOverride(t *testing.T) {
	s := NewSession("opaque-token", "")
	assert.Equal(t, "opaque-token", s.Token())
	assert.Equal(t, RoleUser, s.Role())
	assert.False(t, s.CanScan())

	s = NewSession("opaque-token", "Scanner")
	assert.Equal(t, RoleScanner, s.Role())
	assert.True(t, s.CanScan())
}

func TestNewSession_Anonymous(t *testing.T) {
	s := NewSession("", RoleAdmin)
	assert.False(t, s.Authenticated())
	assert.Empty(t, s.Role())
	assert.False(t, s.CanScan())
}

func TestSession_SubscribeAndUnsubscribe(t *testing.T) {
	s := NewSession("", "")

	var got []Event
	unsubscribe := s.Subscribe(func(ev Event) { got = append(got, ev) })

	s.Login(signedToken(t, jwt.MapClaims{"role": "owner"}))
	assert.True(t, s.CanScan())

	s.Logout()
	assert.False(t, s.Authenticated())

	require.Len(t, got, 2)
	assert.Equal(t, LoggedIn, got[0].Kind)
	assert.Equal(t, RoleOwner, got[0].Role)
	assert.Equal(t, LoggedOut, got[1].Kind)

	unsubscribe()
	unsubscribe()
	s.Login("other")
	assert.Len(t, got, 2)
}
