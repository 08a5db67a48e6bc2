package controller

import (
	"errors"
	"learnai_backend/internal/service"
	"learnai_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type NotesController struct {
	NoteService *service.NoteService
}

func NewNotesController(noteService *service.NoteService) *NotesController {
	return &NotesController{NoteService: noteService}
}

// swagger:model NotesRequest
type NotesRequest struct {
	Text       string `json:"text"`
	YouTubeURL string `json:"youtube_url"`
}

// swagger:model NotesResponse
type NotesResponse struct {
	Transcription string `json:"transcription,omitempty"`
	CleanedText   string `json:"cleaned_text"`
	Notes         string `json:"notes"`
}

// GenerateNotes godoc
// @Summary 生成学习笔记
// @Description 根据原始文本或YouTube链接生成笔记，两者必须二选一
// @Tags 笔记
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body NotesRequest true "文本或YouTube链接"
// @Success 200 {object} util.Response{data=NotesResponse} "成功"
// @Failure 400 {object} util.Response "参数错误或字幕获取失败"
// @Router /api/generate-notes [post]
func (c *NotesController) GenerateNotes(ctx *gin.Context) {
	var req NotesRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if req.Text == "" && req.YouTubeURL == "" {
		util.BadRequest(ctx, "Please provide either text or a YouTube URL")
		return
	}

	if req.YouTubeURL != "" {
		transcript, cleaned, notes, err := c.NoteService.GenerateFromYouTube(ctx.Request.Context(), req.YouTubeURL)
		if err != nil {
			if errors.Is(err, util.ErrNoTranscript) {
				util.BadRequest(ctx, "Failed to transcribe the YouTube video. Please check the URL and try again.")
				return
			}
			var gatewayErr *service.GatewayError
			if errors.As(err, &gatewayErr) {
				util.LogInternalError(ctx, err)
				return
			}
			util.BadRequest(ctx, "Failed to process YouTube URL: "+err.Error())
			return
		}

		util.Success(ctx, NotesResponse{
			Transcription: transcript,
			CleanedText:   cleaned,
			Notes:         notes,
		})
		return
	}

	cleaned := c.NoteService.PreprocessText(req.Text)
	if cleaned == "" {
		util.BadRequest(ctx, "The processed text is empty. Please provide valid input.")
		return
	}

	notes, err := c.NoteService.GenerateNotes(ctx.Request.Context(), cleaned)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, NotesResponse{
		CleanedText: cleaned,
		Notes:       notes,
	})
}
