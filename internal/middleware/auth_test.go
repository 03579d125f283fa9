package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meddev-qms/meddev-qms/internal/auth"
)

func authedRouter() (*gin.Engine, *gin.Context) {
	r := gin.New()
	r.Use(AuthMiddleware())
	var captured gin.Context
	r.GET("/protected", func(c *gin.Context) {
		captured = *c.Copy()
		c.Status(http.StatusOK)
	})
	return r, &captured
}

// ---------------------------------------------------------------------------
// AuthMiddleware
// ---------------------------------------------------------------------------

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	r, _ := authedRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_NotBearer(t *testing.T) {
	r, _ := authedRouter()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	r, _ := authedRouter()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	token, err := auth.GenerateJWT("user-1", "Alice QA", "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	r, captured := authedRouter()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if captured.GetString("user_id") != "user-1" {
		t.Errorf("user_id = %q", captured.GetString("user_id"))
	}
	if captured.GetString("user_name") != "Alice QA" {
		t.Errorf("user_name = %q", captured.GetString("user_name"))
	}
}

// ---------------------------------------------------------------------------
// AdminTokenMiddleware
// ---------------------------------------------------------------------------

func adminRouter(tokenHash string) *gin.Engine {
	r := gin.New()
	r.Use(AdminTokenMiddleware(tokenHash))
	r.POST("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAdminTokenMiddleware_DisabledWithoutHash(t *testing.T) {
	r := adminRouter("")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestAdminTokenMiddleware_WrongToken(t *testing.T) {
	hash, err := auth.HashAdminToken("right-token")
	if err != nil {
		t.Fatalf("HashAdminToken: %v", err)
	}
	r := adminRouter(hash)

	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set(AdminTokenHeader, "wrong-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestAdminTokenMiddleware_CorrectToken(t *testing.T) {
	hash, err := auth.HashAdminToken("right-token")
	if err != nil {
		t.Fatalf("HashAdminToken: %v", err)
	}
	r := adminRouter(hash)

	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set(AdminTokenHeader, "right-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAdminTokenMiddleware_AttemptLimit(t *testing.T) {
	hash, err := auth.HashAdminToken("right-token")
	if err != nil {
		t.Fatalf("HashAdminToken: %v", err)
	}
	r := adminRouter(hash)

	// Five failed attempts consume the window; the sixth is throttled before
	// the token is even checked.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set(AdminTokenHeader, "wrong-token")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("attempt %d: status = %d, want 403", i+1, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set(AdminTokenHeader, "right-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status after limit = %d, want 429", w.Code)
	}
}
