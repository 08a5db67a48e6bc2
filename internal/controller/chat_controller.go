package controller

import (
	"errors"
	"io"
	"learnai_backend/internal/service"
	"learnai_backend/internal/util"
	"learnai_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ChatController struct {
	ChatService *service.ChatService
}

func NewChatController(chatService *service.ChatService) *ChatController {
	return &ChatController{ChatService: chatService}
}

type ChatRequest struct {
	Question string `json:"question" binding:"required"`
}

// authorizeSession 校验会话归属当前用户；失败时已写好响应，返回false
func (c *ChatController) authorizeSession(ctx *gin.Context, sessionID string) bool {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return false
	}

	owner, err := c.ChatService.SessionOwner(sessionID)
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return false
	}

	if owner != claims.UserID {
		util.Unauthorized(ctx)
		return false
	}
	return true
}

// Ask godoc
// @Summary 学习助手问答
// @Description 基于会话笔记回答问题,保留最近的对话上下文
// @Tags 助手
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   sessionId path string true "会话ID"
// @Param   request body ChatRequest true "问题"
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 401 {object} util.Response "无权访问该会话"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/chat/{sessionId} [post]
func (c *ChatController) Ask(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")
	if !c.authorizeSession(ctx, sessionID) {
		return
	}

	var req ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "Question is required")
		return
	}

	answer, err := c.ChatService.Ask(ctx.Request.Context(), sessionID, req.Question)
	if err != nil {
		c.handleError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"answer": answer})
}

// AskStream godoc
// @Summary 学习助手问答(流式)
// @Description 以 SSE 流式返回回答片段,结束时发送 [DONE]
// @Tags 助手
// @Accept  json
// @Produce  text/event-stream
// @Security ApiKeyAuth
// @Param   sessionId path string true "会话ID"
// @Param   request body ChatRequest true "问题"
// @Success 200 {string} string "SSE流"
// @Failure 401 {object} util.Response "无权访问该会话"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/chat/{sessionId}/stream [post]
func (c *ChatController) AskStream(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")
	if !c.authorizeSession(ctx, sessionID) {
		return
	}

	var req ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "Question is required")
		return
	}

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")

	deltas := make(chan string, 16)
	done := make(chan error, 1)

	streamCtx := ctx.Request.Context()
	go func() {
		_, err := c.ChatService.AskStream(streamCtx, sessionID, req.Question, func(delta string) {
			// 客户端断开后Stream不再消费,发送必须能退出
			select {
			case deltas <- delta:
			case <-streamCtx.Done():
			}
		})
		close(deltas)
		done <- err
	}()

	ctx.Stream(func(w io.Writer) bool {
		delta, ok := <-deltas
		if !ok {
			if err := <-done; err != nil {
				logger.Log.Error("Chat stream failed",
					zap.String("session_id", sessionID),
					zap.Error(err))
				ctx.SSEvent("error", "stream failed")
				return false
			}
			ctx.SSEvent("message", "[DONE]")
			return false
		}
		ctx.SSEvent("message", delta)
		return true
	})
}

func (c *ChatController) handleError(ctx *gin.Context, err error) {
	var gatewayErr *service.GatewayError
	switch {
	case errors.Is(err, util.ErrSessionNotFound):
		util.NotFound(ctx)
	case errors.As(err, &gatewayErr):
		logger.Log.Error("AI gateway error", zap.Error(err))
		util.Error(ctx, 500, "Assistant is temporarily unavailable")
	default:
		util.LogInternalError(ctx, err)
	}
}
