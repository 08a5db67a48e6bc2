package controller

import (
	"errors"
	"learnai_backend/internal/service"
	"learnai_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	QuizService *service.QuizService
}

func NewQuizController(quizService *service.QuizService) *QuizController {
	return &QuizController{QuizService: quizService}
}

// authorizeSession 校验会话归属当前用户；失败时已写好响应，返回false
func (c *QuizController) authorizeSession(ctx *gin.Context, sessionID string) bool {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return false
	}

	owner, err := c.QuizService.SessionOwner(sessionID)
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

// swagger:model GenerateQuizRequest
type GenerateQuizRequest struct {
	Notes string `json:"notes" binding:"required"`
}

// GenerateQuiz godoc
// @Summary 创建测验会话
// @Description 根据笔记同步生成首批10题并创建会话，后台继续补充题目缓冲
// @Tags 测验
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body GenerateQuizRequest true "笔记文本"
// @Success 201 {object} util.Response{data=object} "创建成功"
// @Failure 400 {object} util.Response "笔记为空"
// @Failure 500 {object} util.Response "首批题目生成失败"
// @Router /api/generate-quiz [post]
func (c *QuizController) GenerateQuiz(ctx *gin.Context) {
	var req GenerateQuizRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	dashboard, err := c.QuizService.CreateSession(ctx.Request.Context(), claims.UserID, req.Notes)
	if err != nil {
		// 首批生成失败对本请求是致命的
		var formatErr *service.QuizFormatError
		if errors.As(err, &formatErr) {
			util.Error(ctx, 500, "Failed to generate quiz questions. Please try again.")
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, gin.H{
		"quiz_id":    dashboard.ID,
		"questions":  dashboard.BufferedQuestions,
		"set_number": 0,
	})
}

// GetQuestions godoc
// @Summary 获取一组题目
// @Description 按组号取10道题；该组尚未生成完时返回202，客户端应稍后重试
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Param   sessionId path string true "会话ID"
// @Param   set query int false "组号，从0开始"
// @Success 200 {object} util.Response{data=object} "整组题目"
// @Success 202 {object} util.Response "题目生成中，请稍后重试"
// @Failure 401 {object} util.Response "无权访问该会话"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/quiz/{sessionId}/questions [get]
func (c *QuizController) GetQuestions(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")
	if !c.authorizeSession(ctx, sessionID) {
		return
	}

	set, err := strconv.Atoi(ctx.DefaultQuery("set", "0"))
	if err != nil || set < 0 {
		util.BadRequest(ctx, "invalid set number")
		return
	}

	questions, _, err := c.QuizService.GetQuestionSet(sessionID, set)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrSessionNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrSetNotReady):
			util.Accepted(ctx, "Questions are being generated. Please try again in a moment.")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{
		"questions":  questions,
		"set_number": set,
		// 序列按需无限增长，永远还有下一组
		"has_next": true,
	})
}

// swagger:model SubmitResultsRequest
type SubmitResultsRequest struct {
	TotalQuestions int `json:"total_questions" binding:"required,min=1"`
	CorrectAnswers int `json:"correct_answers" binding:"min=0"`
	Streak         int `json:"streak" binding:"min=0"`
}

// SubmitResults godoc
// @Summary 提交答题结果
// @Description 记录一次答题并累积会话统计
// @Tags 测验
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   sessionId path string true "会话ID"
// @Param   body body SubmitResultsRequest true "答题结果"
// @Success 200 {object} util.Response "成功"
// @Failure 401 {object} util.Response "无权访问该会话"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/quiz/{sessionId}/results [post]
func (c *QuizController) SubmitResults(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")
	if !c.authorizeSession(ctx, sessionID) {
		return
	}

	var req SubmitResultsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	err := c.QuizService.SubmitResults(sessionID, req.TotalQuestions, req.CorrectAnswers, req.Streak)
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"success": true})
}

// GetStats godoc
// @Summary 获取会话统计
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Param   sessionId path string true "会话ID"
// @Success 200 {object} util.Response{data=service.QuizStats} "成功"
// @Failure 401 {object} util.Response "无权访问该会话"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/quiz/{sessionId}/stats [get]
func (c *QuizController) GetStats(ctx *gin.Context) {
	sessionID := ctx.Param("sessionId")
	if !c.authorizeSession(ctx, sessionID) {
		return
	}

	stats, err := c.QuizService.Stats(sessionID)
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, stats)
}
