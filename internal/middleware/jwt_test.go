package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tasktrack-api/internal/models"
	"github.com/noah-isme/tasktrack-api/internal/token"
	appErrors "github.com/noah-isme/tasktrack-api/pkg/errors"
)

type stubValidator map[string]*token.Claims

func (s stubValidator) ValidateAccessToken(raw string) (*token.Claims, error) {
	if raw == "expired" {
		return nil, appErrors.ErrTokenExpired
	}
	claims, ok := s[raw]
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}

func newTestValidator() stubValidator {
	return stubValidator{
		"user-token":    {UserID: 7, Roles: []string{string(models.RoleUser)}, Permissions: perms(models.RoleUser)},
		"manager-token": {UserID: 8, Roles: []string{string(models.RoleManager)}, Permissions: perms(models.RoleManager)},
		"admin-token":   {UserID: 1, Roles: []string{string(models.RoleAdmin)}, Permissions: perms(models.RoleAdmin)},
	}
}

func perms(role models.UserRole) []string {
	u := models.User{Role: role}
	return u.PermissionNames()
}

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/secure", JWT(newTestValidator()), func(c *gin.Context) {
		claims := Claims(c)
		require.NotNil(t, claims)
		c.JSON(http.StatusOK, gin.H{"uid": claims.UserID})
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"unknown token", "nope", http.StatusUnauthorized},
		{"expired token", "expired", http.StatusUnauthorized},
		{"valid token", "user-token", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := perform(r, http.MethodGet, "/secure", tc.header)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestJWTRejectsWrongScheme(t *testing.T) {
	r := gin.New()
	r.GET("/secure", JWT(newTestValidator()), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Basic user-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrUnauthorized.Code)
}

func TestExpiredTokenReportsExpiredCode(t *testing.T) {
	r := gin.New()
	r.GET("/secure", JWT(newTestValidator()), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodGet, "/secure", "expired")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrTokenExpired.Code)
}

func TestBearerToken(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := BearerToken(c)
	assert.False(t, ok)

	c.Request.Header.Set("Authorization", "bearer   abc ")
	raw, ok := BearerToken(c)
	assert.True(t, ok)
	assert.Equal(t, "abc", raw)

	c.Request.Header.Set("Authorization", "Bearer ")
	_, ok = BearerToken(c)
	assert.False(t, ok)
}
