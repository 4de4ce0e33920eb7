package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-market-backend/internal/auth"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *auth.Verifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	v := auth.NewVerifier("test-secret")

	r := gin.New()
	r.Use(RequestID())
	r.Use(Auth(v))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"identity": Identity(c)})
	})
	return r, v
}

func TestAuth_ValidTokenBindsIdentity(t *testing.T) {
	r, v := newAuthRouter(t)

	tok, err := v.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != `{"identity":"alice"}` {
		t.Fatalf("body=%s", got)
	}
}

func TestAuth_RejectsMissingOrInvalidCredential(t *testing.T) {
	r, _ := newAuthRouter(t)

	for name, header := range map[string]string{
		"missing": "",
		"garbage": "Bearer nonsense",
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			r.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status=%d", w.Code)
			}
		})
	}
}

func TestIdentity_EmptyWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := Identity(c); got != "" {
		t.Fatalf("Identity on bare context = %q", got)
	}
}
