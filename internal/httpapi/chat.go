package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/sharedmem/controller/internal/inferrouter"
)

// ChatHandler exposes the OpenAI-shaped /v1 proxy surface (spec §4.7,
// §6). It forwards to inferrouter.Router, which decides the active
// backend per-request.
type ChatHandler struct {
	router *inferrouter.Router
}

func NewChatHandler(router *inferrouter.Router) *ChatHandler {
	return &ChatHandler{router: router}
}

func (h *ChatHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/chat/completions", func(c *gin.Context) {
		h.router.ChatCompletions(c.Writer, c.Request)
	})
	r.GET("/v1/models", func(c *gin.Context) {
		h.router.ListModels(c.Writer, c.Request)
	})
}
