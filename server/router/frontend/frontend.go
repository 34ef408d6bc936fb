// Package frontend serves the embedded single-page client. The page keeps an
// optimistic mirror of the conversation list and active chat: the user's
// outgoing message is rendered before the server round-trip and is never
// retracted; failures append a synthetic assistant error bubble instead.
package frontend

import (
	"embed"
	"net/http"

	"github.com/labstack/echo/v5"
)

//go:embed dist
var distFS embed.FS

// RegisterRoutes serves the client at the site root.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/", func(c *echo.Context) error {
		data, err := distFS.ReadFile("dist/index.html")
		if err != nil {
			return err
		}
		rw := c.Response()
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		rw.WriteHeader(http.StatusOK)
		_, err = rw.Write(data)
		return err
	})
}
