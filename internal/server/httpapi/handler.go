package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

const cookiePath = "/api/v1/auth"

type userDTO struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func toUserDTO(u *models.User) userDTO {
	return userDTO{ID: u.ID, Email: u.Email, Role: u.Role, FirstName: u.FirstName, LastName: u.LastName}
}

type authResponse struct {
	AccessToken string  `json:"access_token"`
	User        userDTO `json:"user"`
}

func (s *HTTPServer) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.RefreshTokenCookieName, token, int(s.opts.RefreshTTL.Seconds()), cookiePath, "", !s.opts.Development, true)
}

func (s *HTTPServer) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(common.RefreshTokenCookieName, "", -1, cookiePath, "", !s.opts.Development, true)
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// bindJSON decodes the body into dst. On failure the response is written
// and false is returned.
func (s *HTTPServer) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if tooLarge(err) {
			abortTooLarge(c)
			return false
		}
		s.writeError(c, &services.Error{Kind: services.KindValidation, Msg: "invalid request body"})
		return false
	}
	return true
}

// refreshToken reads the cookie first and falls back to a JSON body field.
// ok is false when the response was already written.
func refreshToken(c *gin.Context) (token string, ok bool) {
	if v, err := c.Cookie(common.RefreshTokenCookieName); err == nil && v != "" {
		return v, true
	}
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && tooLarge(err) {
			abortTooLarge(c)
			return "", false
		}
	}
	return req.RefreshToken, true
}

func (s *HTTPServer) Register(c *gin.Context) {
	var req struct {
		Email           string `json:"email"`
		FirstName       string `json:"first_name"`
		LastName        string `json:"last_name"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if !s.bindJSON(c, &req) {
		return
	}

	res, err := s.users.Register(c.Request.Context(), services.RegisterInput{
		Email:           req.Email,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	}, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.setRefreshCookie(c, res.RefreshToken)
	writeOK(c, http.StatusCreated, "registered", authResponse{AccessToken: res.AccessToken, User: toUserDTO(res.User)})
}

func (s *HTTPServer) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.bindJSON(c, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(c, &services.Error{Kind: services.KindValidation, Msg: "email and password are required"})
		return
	}

	res, err := s.users.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.setRefreshCookie(c, res.RefreshToken)
	writeOK(c, http.StatusOK, "logged in", authResponse{AccessToken: res.AccessToken, User: toUserDTO(res.User)})
}

func (s *HTTPServer) Refresh(c *gin.Context) {
	raw, ok := refreshToken(c)
	if !ok {
		return
	}
	access, err := s.users.Refresh(c.Request.Context(), raw, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		s.writeError(c, err)
		return
	}

	writeOK(c, http.StatusOK, "token refreshed", gin.H{"access_token": access})
}

func (s *HTTPServer) Logout(c *gin.Context) {
	raw, ok := refreshToken(c)
	if !ok {
		return
	}
	if err := s.users.Logout(c.Request.Context(), raw, c.ClientIP(), c.Request.UserAgent()); err != nil {
		s.writeError(c, err)
		return
	}

	s.clearRefreshCookie(c)
	writeOK(c, http.StatusOK, "logged out", nil)
}

func (s *HTTPServer) Profile(c *gin.Context) {
	user, err := s.users.Profile(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	writeOK(c, http.StatusOK, "profile", toUserDTO(user))
}

func (s *HTTPServer) UpdatePassword(c *gin.Context) {
	var req struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if !s.bindJSON(c, &req) {
		return
	}

	if err := s.users.UpdatePassword(c.Request.Context(), currentUser(c).ID, req.Password, req.ConfirmPassword); err != nil {
		s.writeError(c, err)
		return
	}

	writeOK(c, http.StatusOK, "password updated", nil)
}

func (s *HTTPServer) Admin(c *gin.Context) {
	writeOK(c, http.StatusOK, "welcome, admin", toUserDTO(currentUser(c)))
}

func (s *HTTPServer) healthz(c *gin.Context) {
	writeOK(c, http.StatusOK, "ok", nil)
}

func (s *HTTPServer) readyz(c *gin.Context) {
	if s.db != nil {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			s.logger.Error(c.Request.Context(), "readiness check failed", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, envelope{Success: false, Message: "database unavailable"})
			return
		}
	}
	writeOK(c, http.StatusOK, "ready", nil)
}
