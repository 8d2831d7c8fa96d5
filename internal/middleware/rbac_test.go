package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/bfm-api/internal/models"
)

func rbacContext(t *testing.T, claims *models.JWTClaims, paramID string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodGet, "/users/"+paramID, nil)
	assert.NoError(t, err)
	c.Request = req
	if paramID != "" {
		c.Params = gin.Params{{Key: "id", Value: paramID}}
	}
	if claims != nil {
		c.Set(ContextUserKey, claims)
	}
	return c, w
}

func TestRBACAllowsMatchingRole(t *testing.T) {
	c, w := rbacContext(t, &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin}, "")
	RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)(c)
	assert.False(t, c.IsAborted())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACRejectsOtherRole(t *testing.T) {
	c, w := rbacContext(t, &models.JWTClaims{UserID: "u-1", Role: models.RoleAnalyst}, "")
	RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACSelfMatchesPathParam(t *testing.T) {
	c, w := rbacContext(t, &models.JWTClaims{UserID: "u-7", Role: models.RoleAnalyst}, "u-7")
	RBAC(string(models.RoleAdmin), "SELF")(c)
	assert.False(t, c.IsAborted())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACSelfRejectsOtherUser(t *testing.T) {
	c, w := rbacContext(t, &models.JWTClaims{UserID: "u-7", Role: models.RoleAnalyst}, "u-9")
	RBAC(string(models.RoleAdmin), "SELF")(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACRequiresClaims(t *testing.T) {
	c, w := rbacContext(t, nil, "")
	RequireRoles(models.RoleAdmin)(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
