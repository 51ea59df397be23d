package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deskify/internal/config"

	"github.com/gin-gonic/gin"
)

func signToken(t *testing.T, payload map[string]interface{}, secret string) string {
	t.Helper()
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	hj, _ := json.Marshal(header)
	pj, _ := json.Marshal(payload)
	enc := base64.RawURLEncoding.EncodeToString
	signing := enc(hj) + "." + enc(pj)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signing))
	return signing + "." + enc(mac.Sum(nil))
}

func authRouter(secret string) *gin.Engine {
	cfg := config.GetDefaultConfig()
	cfg.JWT.Secret = secret
	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetUint("user_id"),
			"tenant":  c.GetString("tenant"),
		})
	})
	return r
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := authRouter("s3cret")

	token := signToken(t, map[string]interface{}{
		"user_id": float64(7),
		"tenant":  "acme",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, "s3cret")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		UserID uint   `json:"user_id"`
		Tenant string `json:"tenant"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.UserID != 7 || resp.Tenant != "acme" {
		t.Errorf("claims not injected: %+v", resp)
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := authRouter("s3cret")

	expired := signToken(t, map[string]interface{}{
		"user_id": float64(1),
		"exp":     time.Now().Add(-time.Minute).Unix(),
	}, "s3cret")
	wrongKey := signToken(t, map[string]interface{}{
		"user_id": float64(1),
	}, "other-secret")

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
		{"expired", "Bearer " + expired},
		{"wrong signature", "Bearer " + wrongKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
		})
	}
}

func TestValidateHS256JWTNotBefore(t *testing.T) {
	token := signToken(t, map[string]interface{}{
		"nbf": time.Now().Add(time.Hour).Unix(),
	}, "k")
	if _, err := validateHS256JWT(token, "k", time.Now()); err == nil {
		t.Error("token used before nbf must fail")
	}
	if _, err := validateHS256JWT(token, "k", time.Now().Add(2*time.Hour)); err != nil {
		t.Errorf("token after nbf must pass: %v", err)
	}
}
