package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/pkg/errors"

	"github.com/pcplabs/pcpchat/plugin/imagegen"
)

type imageRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

type imageResponse struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"image_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *APIService) generateImage(c *echo.Context) error {
	user := s.currentUser(c)
	if user == nil {
		return c.JSON(http.StatusUnauthorized, imageResponse{Success: false, Error: "unauthorized"})
	}
	var req imageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, imageResponse{Success: false, Error: "malformed request"})
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return c.JSON(http.StatusBadRequest, imageResponse{Success: false, Error: "prompt required"})
	}

	payload, err := s.Images.Generate(c.Request().Context(), req.Prompt, req.Model)
	if err != nil {
		slog.Warn("image generation failed", "model", req.Model, "err", err)
		return c.JSON(http.StatusInternalServerError, imageResponse{Success: false, Error: imageErrorMessage(err)})
	}
	return c.JSON(http.StatusOK, imageResponse{
		Success:  true,
		ImageURL: "data:image/png;base64," + payload,
	})
}

func imageErrorMessage(err error) string {
	switch {
	case errors.Is(err, imagegen.ErrMissingToken):
		return "image provider is not configured"
	case errors.Is(err, imagegen.ErrModelLoading):
		return "model is loading, try again shortly"
	case errors.Is(err, imagegen.ErrUnauthorized):
		return "image provider rejected credentials"
	case errors.Is(err, imagegen.ErrNotFound):
		return "model not found"
	case errors.Is(err, imagegen.ErrTimeout):
		return "image provider timed out"
	case errors.Is(err, imagegen.ErrEmptyImage):
		return "provider returned no image data"
	default:
		return "image provider request failed"
	}
}
