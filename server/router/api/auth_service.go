package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/pcplabs/pcpchat/server/auth"
	"github.com/pcplabs/pcpchat/store"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (s *APIService) register(c *echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "username and password required"})
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	user, err := s.Store.CreateUser(c.Request().Context(), &store.User{
		ID:           shortuuid.New(),
		Username:     req.Username,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return c.JSON(http.StatusConflict, errorResponse{Error: "username already taken"})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	slog.Info("user registered", "user", user.ID, "username", user.Username)

	if err := s.openSession(c, user.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, userResponse{ID: user.ID, Username: user.Username})
}

func (s *APIService) login(c *echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request"})
	}
	user, err := s.Store.GetUser(c.Request().Context(), &store.FindUser{Username: &req.Username})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
	}
	if err := s.openSession(c, user.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, userResponse{ID: user.ID, Username: user.Username})
}

func (s *APIService) logout(c *echo.Context) error {
	http.SetCookie(c.Response(), &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.NoContent(http.StatusNoContent)
}

// openSession issues a token for userID and sets the session cookie.
func (s *APIService) openSession(c *echo.Context, userID string) error {
	token, err := s.Auth.IssueToken(userID)
	if err != nil {
		return err
	}
	http.SetCookie(c.Response(), &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(30 * 24 * time.Hour),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
