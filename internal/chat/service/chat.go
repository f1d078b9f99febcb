package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parley-ai/parley/internal/ai/provider/registry"
	"github.com/parley-ai/parley/internal/chat/biz"
	"github.com/parley-ai/parley/internal/chat/types"
	"github.com/parley-ai/parley/internal/mode"
	apperrors "github.com/parley-ai/parley/internal/pkg/errors"
)

// ChatService exposes conversations over HTTP
type ChatService struct {
	manager   *biz.Manager
	modes     *mode.Registry
	providers *registry.Registry
	logger    *zap.Logger
}

// NewChatService creates a ChatService
func NewChatService(manager *biz.Manager, modes *mode.Registry, providers *registry.Registry, logger *zap.Logger) *ChatService {
	return &ChatService{
		manager:   manager,
		modes:     modes,
		providers: providers,
		logger:    logger,
	}
}

// RegisterRoutes mounts the conversation API on a router group
func (s *ChatService) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/conversations/:id/turn", s.Turn)
	rg.GET("/conversations", s.ListConversations)
	rg.GET("/conversations/:id/messages", s.GetMessages)
	rg.DELETE("/conversations/:id", s.ClearConversation)
	rg.GET("/conversations/:id/prompt", s.GetPrompt)
	rg.PUT("/conversations/:id/prompt", s.SetPrompt)
	rg.PUT("/conversations/:id/mode", s.SetMode)
	rg.GET("/modes", s.ListModes)
	rg.GET("/models", s.ListModels)
}

type turnRequest struct {
	Message      string `json:"message" binding:"required"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
	Mode         string `json:"mode"`
}

// Turn runs one conversation turn and streams TurnEvents as SSE. The
// event name is the TurnEvent type; the data is the JSON-encoded event.
func (s *ChatService) Turn(c *gin.Context) {
	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	events, err := s.manager.StartTurn(c.Request.Context(), id, req.Message, types.TurnOptions{
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Mode:         req.Mode,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for ev := range events {
		if ev.Type == types.TurnEventError && ev.Err != nil {
			// the marshalled event drops the error; carry the text
			ev.Content = ev.Err.Error()
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("encode turn event failed", zap.Error(err))
			continue
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, payload)
		c.Writer.Flush()
	}
}

// GetMessages returns the conversation history, creating the
// conversation implicitly for unseen IDs
func (s *ChatService) GetMessages(c *gin.Context) {
	id := c.Param("id")

	messages, err := s.manager.GetHistory(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "messages": messages})
}

// ClearConversation empties the history but keeps the record
func (s *ChatService) ClearConversation(c *gin.Context) {
	id := c.Param("id")

	if err := s.manager.ClearHistory(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "cleared": true})
}

// ListConversations returns the known conversation IDs
func (s *ChatService) ListConversations(c *gin.Context) {
	ids, err := s.manager.ListConversations(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": ids})
}

// GetPrompt returns the effective system prompt for a conversation
func (s *ChatService) GetPrompt(c *gin.Context) {
	id := c.Param("id")

	conv, err := s.manager.GetConversation(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	prompt := conv.SystemPrompt
	if prompt == "" {
		prompt = s.modes.Prompt(conv.Mode)
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": id,
		"system_prompt":   prompt,
		"custom":          conv.SystemPrompt != "",
		"mode":            conv.Mode,
	})
}

type promptRequest struct {
	SystemPrompt string `json:"system_prompt" binding:"required"`
}

// SetPrompt overrides the system prompt, effective next turn
func (s *ChatService) SetPrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if err := s.manager.SetSystemPrompt(c.Request.Context(), id, req.SystemPrompt); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "system_prompt": req.SystemPrompt})
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// SetMode switches the conversation mode, effective next turn
func (s *ChatService) SetMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if err := s.manager.SetMode(c.Request.Context(), id, req.Mode); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "mode": req.Mode})
}

// ListModes returns the configured modes
func (s *ChatService) ListModes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"modes": s.modes.All()})
}

// ListModels returns the models with a registered provider
func (s *ChatService) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":    s.providers.ListModels(),
		"providers": s.providers.List(),
	})
}

func (s *ChatService) respondError(c *gin.Context, err error) {
	var code int
	switch {
	case errors.Is(err, types.ErrConversationBusy):
		code = apperrors.ErrConversationBusy
	case errors.Is(err, types.ErrUnknownModel):
		code = apperrors.ErrUnknownModel
	case errors.Is(err, types.ErrUnknownMode):
		code = apperrors.ErrUnknownMode
	case errors.Is(err, types.ErrEmptyMessage):
		code = apperrors.ErrEmptyMessage
	default:
		code = apperrors.ErrInternalServer
		s.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}

	appErr := apperrors.New(code, err.Error())
	c.JSON(appErr.HTTPStatus(), gin.H{"code": code, "error": appErr.Message})
}
