package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"crmboard/internal/authz"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, exp *time.Time) string {
	t.Helper()
	claims := Claims{UserID: 7, RoleID: authz.RoleSales}
	if exp != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*exp)
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(testSecret))
	h := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":  c.GetInt(CtxUserID),
			"role":  c.GetInt(CtxRoleID),
			"token": c.GetString(CtxToken),
		})
	}
	r.GET("/healthz", h)
	r.GET("/leads", h)
	r.GET("/boards/:id/ws", h)
	r.POST("/boards", RequireRoles(authz.RoleAdmin), h)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)
	valid := signToken(t, jwt.SigningMethodHS256, testSecret, &future)

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"public healthz", http.MethodGet, "/healthz", "", http.StatusOK},
		{"missing header", http.MethodGet, "/leads", "", http.StatusUnauthorized},
		{"not bearer", http.MethodGet, "/leads", "Basic abc", http.StatusUnauthorized},
		{"valid token", http.MethodGet, "/leads", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", http.MethodGet, "/leads", "bearer " + valid, http.StatusOK},
		{"expired", http.MethodGet, "/leads", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, &past), http.StatusUnauthorized},
		{"no exp", http.MethodGet, "/leads", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, nil), http.StatusUnauthorized},
		{"wrong secret", http.MethodGet, "/leads", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), &future), http.StatusUnauthorized},
		{"ws query token", http.MethodGet, "/boards/x/ws?access_token=" + valid, "", http.StatusOK},
		{"query token outside ws", http.MethodGet, "/leads?access_token=" + valid, "", http.StatusUnauthorized},
		{"role not allowed", http.MethodPost, "/boards", "Bearer " + valid, http.StatusForbidden},
	}

	r := newTestRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareSetsContext(t *testing.T) {
	future := time.Now().Add(time.Hour)
	tok := signToken(t, jwt.SigningMethodHS256, testSecret, &future)

	req := httptest.NewRequest(http.MethodGet, "/leads", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, req)

	want := `{"role":10,"token":"` + tok + `","user":7}`
	if w.Body.String() != want {
		t.Errorf("body = %s, want %s", w.Body.String(), want)
	}
}
