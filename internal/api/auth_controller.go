package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fscabinet/server/internal/services"
)

// AuthController управляет API endpoints для авторизации сотрудников
type AuthController struct {
	auth         *services.AuthService
	secureCookie bool
}

// NewAuthController создает новый контроллер авторизации
func NewAuthController(auth *services.AuthService, secureCookie bool) *AuthController {
	return &AuthController{auth: auth, secureCookie: secureCookie}
}

// Login обрабатывает вход сотрудника. Токен возвращается в теле и в cookie для страниц и WebSocket.
// POST /api/v1/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req services.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := ac.auth.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	maxAge := int(time.Until(time.Unix(resp.ExpiresAt, 0)).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(StaffTokenCookie, resp.Token, maxAge, "/", "", ac.secureCookie, true)
	c.JSON(http.StatusOK, resp)
}

// Logout удаляет cookie с токеном
// POST /api/v1/auth/logout
func (ac *AuthController) Logout(c *gin.Context) {
	c.SetCookie(StaffTokenCookie, "", -1, "/", "", ac.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// Me возвращает текущего сотрудника
// GET /api/v1/auth/me
func (ac *AuthController) Me(c *gin.Context) {
	claims := staffClaims(c)
	staff, err := ac.auth.ActiveStaff(c.Request.Context(), claims.StaffID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, staff.ToMap())
}
