package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ems-calendar/backend/internal/store/memory"
)

type memRevoker struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

func (m *memRevoker) Revoke(_ context.Context, id string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id] = exp
	return nil
}

func (m *memRevoker) IsRevoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[id]
	return ok, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func setup(t *testing.T) (*gin.Engine, *JWTService, *memRevoker) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jwtSvc := NewJWTService("secret", 10, 60)
	rev := &memRevoker{ids: map[string]time.Time{}}
	h := NewHandler(memory.New().Users(), jwtSvc, rev, nil)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.Refresh)
	withClaims := func(c *gin.Context) {
		claims, err := jwtSvc.Validate(c.GetHeader("X-Token"), TokenAccess)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextClaims, claims)
	}
	r.POST("/auth/logout", withClaims, h.Logout)
	r.GET("/auth/me", withClaims, h.Me)
	return r, jwtSvc, rev
}

func do(t *testing.T, r http.Handler, method, path string, body any, token string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Token", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func TestRegisterLoginFlow(t *testing.T) {
	r, jwtSvc, rev := setup(t)

	code, _ := do(t, r, http.MethodPost, "/auth/register", gin.H{"username": "alice", "email": "alice@example.com", "password": "correct-horse"}, "")
	if code != http.StatusCreated {
		t.Fatalf("register = %d", code)
	}
	code, env := do(t, r, http.MethodPost, "/auth/register", gin.H{"username": "alice", "email": "other@example.com", "password": "correct-horse"}, "")
	if code != http.StatusBadRequest {
		t.Fatalf("duplicate register = %d %s", code, env.Error)
	}
	code, _ = do(t, r, http.MethodPost, "/auth/register", gin.H{"username": "bob", "email": "bob@example.com", "password": "short"}, "")
	if code != http.StatusBadRequest {
		t.Fatalf("short password = %d", code)
	}

	code, _ = do(t, r, http.MethodPost, "/auth/login", gin.H{"username_or_email": "alice", "password": "wrong-password"}, "")
	if code != http.StatusUnauthorized {
		t.Fatalf("bad password = %d", code)
	}
	code, env = do(t, r, http.MethodPost, "/auth/login", gin.H{"username_or_email": "alice@example.com", "password": "correct-horse"}, "")
	if code != http.StatusOK {
		t.Fatalf("login = %d %s", code, env.Error)
	}
	var login LoginResponse
	if err := json.Unmarshal(env.Data, &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.User.Username != "alice" || login.TokenType != "bearer" {
		t.Fatalf("login = %+v", login)
	}

	code, _ = do(t, r, http.MethodGet, "/auth/me", nil, login.AccessToken)
	if code != http.StatusOK {
		t.Fatalf("me = %d", code)
	}

	code, env = do(t, r, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": login.RefreshToken}, "")
	if code != http.StatusOK {
		t.Fatalf("refresh = %d %s", code, env.Error)
	}
	code, _ = do(t, r, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": login.AccessToken}, "")
	if code != http.StatusUnauthorized {
		t.Fatalf("refresh with access token = %d", code)
	}

	code, _ = do(t, r, http.MethodPost, "/auth/logout", nil, login.AccessToken)
	if code != http.StatusOK {
		t.Fatalf("logout = %d", code)
	}
	claims, _ := jwtSvc.Validate(login.AccessToken, TokenAccess)
	if ok, _ := rev.IsRevoked(context.Background(), claims.ID); !ok {
		t.Fatalf("access token not blacklisted")
	}
}
