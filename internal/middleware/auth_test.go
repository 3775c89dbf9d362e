package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/pkg/jwt"
)

type stubVerifier map[string]uint64

func (s stubVerifier) Verify(token string) (*domain.Identity, error) {
	id, ok := s[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &domain.Identity{UserID: id}, nil
}

func newAuthRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw)
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": GetUserID(c)})
	})
	return r
}

func TestJWTAuth(t *testing.T) {
	r := newAuthRouter(JWTAuth(stubVerifier{"good": 4}))

	cases := []struct {
		header string
		status int
	}{
		{"Bearer good", http.StatusOK},
		{"bearer good", http.StatusOK},
		{"Bearer bad", http.StatusUnauthorized},
		{"Basic good", http.StatusUnauthorized},
		{"Bearer ", http.StatusUnauthorized},
		{"", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, "header %q", tc.header)
	}
}

func TestOptionalAuth_NeverAborts(t *testing.T) {
	r := newAuthRouter(OptionalAuth(stubVerifier{"good": 4}))

	for path, want := range map[string]string{
		"/whoami?token=good": `{"userId":4}`,
		"/whoami?token=bad":  `{"userId":0}`,
		"/whoami":            `{"userId":0}`,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, want, w.Body.String(), path)
	}
}

func TestJWTVerifier(t *testing.T) {
	manager := jwt.NewManager("verifier-test-secret", "linguaschool", time.Minute)
	token, err := manager.GenerateToken(42, "t@school.test", "TEACHER")
	require.NoError(t, err)

	identity, err := NewJWTVerifier(manager).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), identity.UserID)
	assert.Equal(t, "TEACHER", identity.Role)

	_, err = NewJWTVerifier(manager).Verify(token + "x")
	assert.Error(t, err)
}
