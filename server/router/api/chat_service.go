package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/pkg/errors"

	"github.com/pcplabs/pcpchat/plugin/llm"
	"github.com/pcplabs/pcpchat/store"
)

// titleMaxRunes caps auto-derived conversation titles.
const titleMaxRunes = 60

type newChatResponse struct {
	ChatID string `json:"chat_id"`
}

type chatListItem struct {
	ChatID  string `json:"chat_id"`
	Title   string `json:"title"`
	Updated int64  `json:"updated"`
}

type messageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type renameRequest struct {
	ChatID string `json:"chat_id"`
	Title  string `json:"title"`
}

type chatRequest struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *APIService) newChat(c *echo.Context) error {
	user := s.currentUser(c)
	if user == nil {
		return unauthorized(c)
	}
	conv, err := s.Store.CreateConversation(c.Request().Context(), user.ID, "")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	slog.Info("conversation created", "chat", conv.UID, "user", user.ID)
	return c.JSON(http.StatusOK, newChatResponse{ChatID: conv.UID})
}

func (s *APIService) listChats(c *echo.Context) error {
	user := s.currentUser(c)
	if user == nil {
		return unauthorized(c)
	}
	convs, err := s.Store.ListConversations(c.Request().Context(), user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	resp := make([]chatListItem, 0, len(convs))
	for _, conv := range convs {
		resp = append(resp, chatListItem{ChatID: conv.UID, Title: conv.Title, Updated: conv.UpdatedTs})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIService) getChat(c *echo.Context) error {
	user := s.currentUser(c)
	if user == nil {
		return unauthorized(c)
	}
	// A missing or unowned chat yields an empty history, not an error.
	msgs, err := s.Store.ListMessages(c.Request().Context(), c.Param("id"), user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse{Role: m.Role, Content: m.Content})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIService) renameChat(c *echo.Context) error {
	user := s.currentUser(c)
	if user == nil {
		return unauthorized(c)
	}
	var req renameRequest
	if err := c.Bind(&req); err != nil || req.ChatID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "chat_id required"})
	}
	if _, err := s.Store.RenameConversation(c.Request().Context(), req.ChatID, user.ID, req.Title); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (s *APIService) deleteChat(c *echo.Context) error {
	user := s.currentUser(c)
	if user == nil {
		return unauthorized(c)
	}
	if err := s.Store.DeleteConversation(c.Request().Context(), c.Param("id"), user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// chat runs one orchestration turn: validate, dispatch to the completion
// gateway, then persist the user and assistant messages as one append. The
// store is only written after a successful gateway response, so a failed
// completion never leaves an orphaned user-only turn behind.
func (s *APIService) chat(c *echo.Context) error {
	user := s.currentUser(c)
	if user == nil {
		return unauthorized(c)
	}
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request"})
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "empty message"})
	}

	ctx := c.Request().Context()
	conv, err := s.Store.GetConversation(ctx, req.ChatID, user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	if conv == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "chat not found"})
	}
	prior, err := s.Store.ListMessages(ctx, conv.UID, user.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	reply, err := s.Completions.Complete(ctx, store.SystemPrompt, text)
	if err != nil {
		slog.Warn("completion failed", "chat", conv.UID, "err", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: completionErrorMessage(err)})
	}

	if err := s.Store.AppendMessages(ctx, conv.UID, user.ID, []*store.Message{
		{Role: store.RoleUser, Content: text},
		{Role: store.RoleAssistant, Content: reply},
	}); err != nil {
		slog.Warn("turn persistence failed", "chat", conv.UID, "err", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to save conversation"})
	}

	// First turn of an untitled chat names it after the first user line.
	if len(prior) == 0 && conv.Title == store.DefaultTitle {
		if title := deriveTitle(text); title != "" {
			if _, err := s.Store.RenameConversation(ctx, conv.UID, user.ID, title); err != nil {
				slog.Warn("auto-title failed", "chat", conv.UID, "err", err)
			}
		}
	}

	return c.JSON(http.StatusOK, chatResponse{Reply: reply})
}

// completionErrorMessage maps gateway failures to client-safe text; upstream
// bodies are logged, never echoed back.
func completionErrorMessage(err error) string {
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		return "completion provider is not configured"
	case errors.Is(err, llm.ErrUnauthorized):
		return "completion provider rejected credentials"
	case errors.Is(err, llm.ErrRateLimited):
		return "completion provider rate limited the request"
	case errors.Is(err, llm.ErrTimeout):
		return "completion provider timed out"
	default:
		return "completion provider request failed"
	}
}

func deriveTitle(text string) string {
	line := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	runes := []rune(line)
	if len(runes) > titleMaxRunes {
		line = string(runes[:titleMaxRunes])
	}
	return line
}
