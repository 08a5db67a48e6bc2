package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"learnai_backend/internal/repository"
	"learnai_backend/internal/util"
	"learnai_backend/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	chatHistoryPrefix = "chat:history:"
	chatHistoryTTL    = 24 * time.Hour

	// 历史记录只保留最近20条消息（10轮对话）
	chatHistoryLimit = 20
)

const chatSystemPromptFormat = `You are a helpful study assistant.
Please answer questions using only the information in the notes below:
---
%s
---
If you're not sure about the answer, it's okay to say "I don't know."
If the question is unrelated to the notes, just let me know that it's outside the scope.`

// ChatService 基于会话笔记的学习问答助手，多轮历史存Redis
type ChatService struct {
	dashboardRepo *repository.DashboardRepository
	ai            *AIService
	redis         *redis.Client
}

func NewChatService(dashboardRepo *repository.DashboardRepository, ai *AIService, rdb *redis.Client) *ChatService {
	return &ChatService{
		dashboardRepo: dashboardRepo,
		ai:            ai,
		redis:         rdb,
	}
}

// SessionOwner 返回会话归属的用户ID
func (s *ChatService) SessionOwner(sessionID string) (uint, error) {
	dashboard, err := s.dashboardRepo.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, util.ErrSessionNotFound
		}
		return 0, err
	}
	return dashboard.UserID, nil
}

// Ask 回答一个以会话笔记为依据的问题，并把问答写入历史
func (s *ChatService) Ask(ctx context.Context, sessionID, question string) (string, error) {
	system, history, err := s.prepare(ctx, sessionID)
	if err != nil {
		return "", err
	}

	answer, err := s.ai.ChatWithHistory(ctx, system, history, question)
	if err != nil {
		return "", err
	}

	s.appendHistory(ctx, sessionID, question, answer)
	return answer, nil
}

// AskStream 流式版本。完整回答在流结束后写入历史。
func (s *ChatService) AskStream(ctx context.Context, sessionID, question string, onDelta func(string)) (string, error) {
	system, history, err := s.prepare(ctx, sessionID)
	if err != nil {
		return "", err
	}

	stream, errChan := s.ai.ChatStream(ctx, system, history, question)

	var answer string
	for delta := range stream {
		answer += delta
		onDelta(delta)
	}
	if err := <-errChan; err != nil {
		return "", err
	}

	s.appendHistory(ctx, sessionID, question, answer)
	return answer, nil
}

func (s *ChatService) prepare(ctx context.Context, sessionID string) (string, []AIChatMessage, error) {
	dashboard, err := s.dashboardRepo.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, util.ErrSessionNotFound
		}
		return "", nil, err
	}

	system := fmt.Sprintf(chatSystemPromptFormat, dashboard.Notes)
	return system, s.loadHistory(ctx, sessionID), nil
}

func (s *ChatService) loadHistory(ctx context.Context, sessionID string) []AIChatMessage {
	entries, err := s.redis.LRange(ctx, chatHistoryPrefix+sessionID, 0, -1).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Log.Warn("failed to load chat history",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil
	}

	history := make([]AIChatMessage, 0, len(entries))
	for _, entry := range entries {
		var msg AIChatMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			continue
		}
		history = append(history, msg)
	}
	return history
}

// appendHistory 历史写入失败只降级为无记忆对话，不影响本次回答
func (s *ChatService) appendHistory(ctx context.Context, sessionID, question, answer string) {
	key := chatHistoryPrefix + sessionID

	userMsg, _ := json.Marshal(AIChatMessage{Role: "user", Content: question})
	assistantMsg, _ := json.Marshal(AIChatMessage{Role: "assistant", Content: answer})

	pipe := s.redis.Pipeline()
	pipe.RPush(ctx, key, userMsg, assistantMsg)
	pipe.LTrim(ctx, key, -chatHistoryLimit, -1)
	pipe.Expire(ctx, key, chatHistoryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("failed to append chat history",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}
