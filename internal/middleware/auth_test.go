package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ducminhle/gridnote/internal/model"
	"github.com/ducminhle/gridnote/internal/service"
	"github.com/ducminhle/gridnote/pkg/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*model.DeviceToken // by hash
}

func newStubTokenStore() *stubTokenStore {
	return &stubTokenStore{tokens: make(map[string]*model.DeviceToken)}
}

func (s *stubTokenStore) Insert(token *model.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	copied := *token
	s.tokens[token.TokenHash] = &copied
	return nil
}

func (s *stubTokenStore) FindByHash(hash string) (*model.DeviceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[hash]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, nil
}

func (s *stubTokenStore) Touch(uuid.UUID, time.Time) error        { return nil }
func (s *stubTokenStore) Supersede(uuid.UUID, time.Time) error    { return nil }
func (s *stubTokenStore) Revoke(uuid.UUID, uuid.UUID) error       { return nil }
func (s *stubTokenStore) DeleteExpired() error                    { return nil }
func (s *stubTokenStore) ListByUser(uuid.UUID) ([]model.DeviceToken, error) {
	return nil, nil
}
func (s *stubTokenStore) Rename(uuid.UUID, uuid.UUID, string) (int64, error) {
	return 0, nil
}

type stubUsers struct {
	users map[uuid.UUID]*model.User
}

func (s *stubUsers) FindByID(id uuid.UUID) (*model.User, error) {
	if u, ok := s.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func newAuthTestRig(t *testing.T) (*gin.Engine, *service.TokenService, *auth.JWTManager, *model.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	user := &model.User{ID: uuid.New(), Email: "alice@gridnote.local"}
	users := &stubUsers{users: map[uuid.UUID]*model.User{user.ID: user}}
	tokens := service.NewTokenService(newStubTokenStore(), users, time.Hour)
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	router := gin.New()
	protected := router.Group("", AuthMiddleware(tokens, jwtManager))
	protected.GET("/whoami", func(c *gin.Context) {
		principal, _ := PrincipalFrom(c)
		c.JSON(http.StatusOK, principal)
	})
	protected.POST("/link", RequireSession(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return router, tokens, jwtManager, user
}

func TestAuthMiddlewareBearer(t *testing.T) {
	router, tokens, _, user := newAuthTestRig(t)

	issued, err := tokens.Issue(user.ID, user.Email, uuid.New(), "Clipper")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); !containsSource(body, model.PrincipalSourceDeviceToken) {
		t.Errorf("body = %s, want device-token source", body)
	}
}

func TestAuthMiddlewareSessionCookie(t *testing.T) {
	router, _, jwtManager, user := newAuthTestRig(t)

	session, err := jwtManager.GenerateToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: session})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); !containsSource(body, model.PrincipalSourceSession) {
		t.Errorf("body = %s, want session source", body)
	}
}

func TestAuthMiddlewareInvalidBearerFallsThroughToSession(t *testing.T) {
	router, _, jwtManager, user := newAuthTestRig(t)

	session, _ := jwtManager.GenerateToken(user.ID, user.Email)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: session})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); !containsSource(body, model.PrincipalSourceSession) {
		t.Errorf("body = %s, want session source", body)
	}
}

func TestAuthMiddlewareUnauthenticated(t *testing.T) {
	router, _, _, _ := newAuthTestRig(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRequireSessionRejectsDeviceToken(t *testing.T) {
	router, tokens, jwtManager, user := newAuthTestRig(t)

	issued, _ := tokens.Issue(user.ID, user.Email, uuid.New(), "Clipper")
	req := httptest.NewRequest(http.MethodPost, "/link", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("device-token caller: status = %d, want 403", w.Code)
	}

	session, _ := jwtManager.GenerateToken(user.ID, user.Email)
	req = httptest.NewRequest(http.MethodPost, "/link", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: session})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("session caller: status = %d, want 200", w.Code)
	}
}

func containsSource(body string, source model.PrincipalSource) bool {
	return strings.Contains(body, `"source":"`+string(source)+`"`)
}
