package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
)

var testSecret = []byte("dispatch-secret")

func signToken(t *testing.T, secret []byte, claims SessionClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func claimsFor(subject, role, state string) SessionClaims {
	return SessionClaims{
		Role:  role,
		State: state,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func serveWithAuth(opts AuthOptions, req *http.Request) (*httptest.ResponseRecorder, *entities.ActorContext) {
	var seen *entities.ActorContext
	handler := AuthMiddleware(opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, ok := entities.ActorFromContext(r.Context()); ok {
			seen = &actor
		}
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, seen
}

func TestAuthMiddleware(t *testing.T) {
	opts := AuthOptions{Secret: testSecret}

	t.Run("valid state admin token", func(t *testing.T) {
		// Arrange
		token := signToken(t, testSecret, claimsFor("sa-7", "stateAdmin", "Maharashtra"))
		req := httptest.NewRequest(http.MethodGet, "/api/dispatch/view", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		// Act
		w, actor := serveWithAuth(opts, req)

		// Assert
		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, actor)
		assert.Equal(t, "sa-7", actor.Subject)
		assert.Equal(t, entities.RoleStateAdmin, actor.Role)
		assert.Equal(t, "Maharashtra", actor.State)
		assert.Equal(t, token, actor.Token)
	})

	t.Run("state claim ignored for system admin", func(t *testing.T) {
		// Arrange
		token := signToken(t, testSecret, claimsFor("root", "systemAdmin", "Goa"))
		req := httptest.NewRequest(http.MethodGet, "/api/dispatch/view", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		// Act
		w, actor := serveWithAuth(opts, req)

		// Assert
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, actor.State)
	})

	t.Run("token in query for event streams", func(t *testing.T) {
		// Arrange
		token := signToken(t, testSecret, claimsFor("staff-1", "staff", ""))
		req := httptest.NewRequest(http.MethodGet, "/api/dispatch/stream?access_token="+token, nil)

		// Act
		w, actor := serveWithAuth(opts, req)

		// Assert
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, entities.RoleStaff, actor.Role)
	})

	t.Run("rejects", func(t *testing.T) {
		expired := claimsFor("sa-7", "stateAdmin", "Goa")
		expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

		cases := map[string]string{
			"missing token":           "",
			"wrong secret":            "Bearer " + signToken(t, []byte("other"), claimsFor("a", "staff", "")),
			"expired":                 "Bearer " + signToken(t, testSecret, expired),
			"unknown role":            "Bearer " + signToken(t, testSecret, claimsFor("a", "driver", "")),
			"state admin no state":    "Bearer " + signToken(t, testSecret, claimsFor("a", "stateAdmin", "")),
			"missing subject":         "Bearer " + signToken(t, testSecret, claimsFor("", "staff", "")),
			"not a bearer credential": "Basic dXNlcjpwYXNz",
		}
		for name, header := range cases {
			t.Run(name, func(t *testing.T) {
				// Arrange
				req := httptest.NewRequest(http.MethodGet, "/api/dispatch/view", nil)
				if header != "" {
					req.Header.Set("Authorization", header)
				}

				// Act
				w, actor := serveWithAuth(opts, req)

				// Assert
				assert.Equal(t, http.StatusUnauthorized, w.Code)
				assert.Nil(t, actor)
			})
		}
	})

	t.Run("unverified tokens in development", func(t *testing.T) {
		// Arrange
		token := signToken(t, []byte("issued-elsewhere"), claimsFor("dev", "systemAdmin", ""))
		req := httptest.NewRequest(http.MethodGet, "/api/dispatch/view", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		// Act
		w, actor := serveWithAuth(AuthOptions{AllowUnverified: true}, req)

		// Assert
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "dev", actor.Subject)
	})
}
