package controller

import (
	"errors"
	"learnai_backend/internal/service"
	"learnai_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type DashboardController struct {
	UserService *service.UserService
	QuizService *service.QuizService
}

func NewDashboardController(userService *service.UserService, quizService *service.QuizService) *DashboardController {
	return &DashboardController{
		UserService: userService,
		QuizService: quizService,
	}
}

// ListDashboards godoc
// @Summary 当前用户的全部测验会话
// @Tags 会话
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]service.DashboardSummary} "成功"
// @Router /api/dashboards [get]
func (c *DashboardController) ListDashboards(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	summaries, err := c.UserService.ListDashboards(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, summaries)
}

// GetDashboard godoc
// @Summary 单个会话详情
// @Tags 会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   sessionId path string true "会话ID"
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/dashboard/{sessionId} [get]
func (c *DashboardController) GetDashboard(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")

	dashboard, err := c.UserService.GetDashboard(sessionID)
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil || claims.UserID != dashboard.UserID {
		util.Unauthorized(ctx)
		return
	}

	util.Success(ctx, gin.H{
		"session_id": dashboard.ID,
		"notes":      dashboard.Notes,
		"created_at": dashboard.CreatedAt,
	})
}

// DeleteDashboard godoc
// @Summary 删除会话
// @Description 删除会话及其全部答题记录
// @Tags 会话
// @Produce  json
// @Security ApiKeyAuth
// @Param   sessionId path string true "会话ID"
// @Success 200 {object} util.Response "成功"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/dashboard/{sessionId} [delete]
func (c *DashboardController) DeleteDashboard(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")

	dashboard, err := c.UserService.GetDashboard(sessionID)
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil || claims.UserID != dashboard.UserID {
		util.Unauthorized(ctx)
		return
	}

	if err := c.QuizService.DeleteSession(sessionID); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"success": true, "message": "Dashboard deleted successfully"})
}
