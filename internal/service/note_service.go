package service

import (
	"context"
	"regexp"
	"strings"
)

const notesSystemPrompt = `Take detailed and comprehensive notes on everything given to you.
Explain everything clearly and in great detail. You will receive transcripts of YouTube videos.
Only include the notes. Take notes on EVERY ASPECT of the transcript. Do not miss one. Don't include "[" or "]" at all in the notes.`

var (
	multiNewlinePattern  = regexp.MustCompile(`\n\s*\n`)
	singleNewlinePattern = regexp.MustCompile(`([^\n])\n([^\n])`)
	whitespacePattern    = regexp.MustCompile(`\s+`)
)

// NoteService 将原始文本或YouTube转写稿整理成学习笔记
type NoteService struct {
	ai      *AIService
	youtube *YouTubeService
}

func NewNoteService(ai *AIService, youtube *YouTubeService) *NoteService {
	return &NoteService{ai: ai, youtube: youtube}
}

// PreprocessText 规整空白：多个空行并成段落分隔，段内换行变空格
func (s *NoteService) PreprocessText(text string) string {
	text = multiNewlinePattern.ReplaceAllString(text, "\n\n")
	text = singleNewlinePattern.ReplaceAllString(text, "$1 $2")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func (s *NoteService) GenerateNotes(ctx context.Context, text string) (string, error) {
	return s.ai.ChatCompletion(ctx, notesSystemPrompt, text, 4096, 0.7)
}

// GenerateFromYouTube 拉取字幕转写稿后生成笔记，返回(转写稿, 清洗后文本, 笔记)
func (s *NoteService) GenerateFromYouTube(ctx context.Context, url string) (string, string, string, error) {
	transcript, err := s.youtube.FetchTranscript(ctx, url)
	if err != nil {
		return "", "", "", err
	}

	cleaned := s.PreprocessText(transcript)
	notes, err := s.GenerateNotes(ctx, cleaned)
	if err != nil {
		return transcript, cleaned, "", err
	}
	return transcript, cleaned, notes, nil
}
