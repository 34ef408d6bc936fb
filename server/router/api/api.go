// Package api exposes the HTTP surface: session endpoints, conversation
// management, the chat orchestrator, and image generation.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/pcplabs/pcpchat/server/auth"
	"github.com/pcplabs/pcpchat/store"
)

// CompletionProvider is the narrow contract the orchestrator needs from a
// text-generation provider.
type CompletionProvider interface {
	Complete(ctx context.Context, systemPrompt, userText string) (string, error)
}

// ImageProvider is the narrow contract for an image-generation provider.
type ImageProvider interface {
	Generate(ctx context.Context, prompt, model string) (string, error)
}

// APIService carries the handlers' dependencies.
type APIService struct {
	Store       *store.Store
	Auth        *auth.Authenticator
	Completions CompletionProvider
	Images      ImageProvider
}

// NewAPIService wires the service together.
func NewAPIService(s *store.Store, a *auth.Authenticator, completions CompletionProvider, images ImageProvider) *APIService {
	return &APIService{Store: s, Auth: a, Completions: completions, Images: images}
}

// RegisterRoutes attaches every endpoint to e.
func (s *APIService) RegisterRoutes(e *echo.Echo) {
	e.POST("/register", s.register)
	e.POST("/login", s.login)
	e.POST("/logout", s.logout)

	e.POST("/new_chat", s.newChat)
	e.GET("/chats", s.listChats)
	e.GET("/get_chat/:id", s.getChat)
	e.POST("/rename_chat", s.renameChat)
	e.DELETE("/delete_chat/:id", s.deleteChat)
	e.POST("/chat", s.chat)
	e.POST("/generate-image", s.generateImage)
}

type errorResponse struct {
	Error string `json:"error"`
}

// currentUser resolves the request's session, or nil when unauthenticated.
func (s *APIService) currentUser(c *echo.Context) *store.User {
	user, err := s.Auth.AuthenticateToUser(
		c.Request().Context(),
		c.Request().Header.Get("Authorization"),
		c.Request().Header.Get("Cookie"),
	)
	if err != nil {
		return nil
	}
	return user
}

func unauthorized(c *echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
}
