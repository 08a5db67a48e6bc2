package service

import (
	"context"
	"errors"
	"learnai_backend/internal/model"
	"learnai_backend/internal/repository"
	"learnai_backend/internal/util"
	"learnai_backend/pkg/logger"
	"learnai_backend/pkg/monitoring"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// QuestionsPerSet 每页（每组）题目数，与单批生成数一致
	QuestionsPerSet = QuestionsPerBatch

	// BufferAheadSets 低水位线：请求页之后缓冲不足3整页时触发后台补充
	BufferAheadSets = 3

	// ReplenishBatches 单次补充任务最多连续生成的批次数
	ReplenishBatches = 3

	// ReplenishTimeout 整个补充任务的兜底超时，防止挂起的网关调用永久占用生成标志
	ReplenishTimeout = 10 * time.Minute
)

// QuizService 题目缓冲管理：对外呈现无限分页序列，背后是惰性增长的有限缓冲区
type QuizService struct {
	dashboardRepo *repository.DashboardRepository
	attemptRepo   *repository.QuizAttemptRepository
	generator     *QuizGenerator
}

func NewQuizService(dashboardRepo *repository.DashboardRepository, attemptRepo *repository.QuizAttemptRepository, generator *QuizGenerator) *QuizService {
	return &QuizService{
		dashboardRepo: dashboardRepo,
		attemptRepo:   attemptRepo,
		generator:     generator,
	}
}

// CreateSession 同步生成首批10题并创建会话，随后在后台补充缓冲。
// 首批生成失败对本次请求是致命的，错误直接上抛。
func (s *QuizService) CreateSession(ctx context.Context, userID uint, notes string) (*model.Dashboard, error) {
	questions, err := s.generator.Generate(ctx, notes)
	if err != nil {
		return nil, err
	}

	dashboard := &model.Dashboard{
		UserID:            userID,
		Notes:             notes,
		BufferedQuestions: questions,
		CurrentSet:        0,
	}
	if err := s.dashboardRepo.Create(dashboard); err != nil {
		return nil, err
	}

	s.EnsureReplenishment(dashboard.ID, notes)
	return dashboard, nil
}

// SessionOwner 返回会话归属的用户ID
func (s *QuizService) SessionOwner(sessionID string) (uint, error) {
	dashboard, err := s.dashboardRepo.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, util.ErrSessionNotFound
		}
		return 0, err
	}
	return dashboard.UserID, nil
}

// GetQuestionSet 返回第set组（从0开始）的10道题。
// 缓冲不足以凑满整页时返回ErrSetNotReady，调用方应答复"稍后重试"；
// 无论哪种情况，只要剩余缓冲低于水位线就触发一次补充。
func (s *QuizService) GetQuestionSet(sessionID string, set int) ([]model.Question, bool, error) {
	dashboard, err := s.dashboardRepo.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, util.ErrSessionNotFound
		}
		return nil, false, err
	}

	start := set * QuestionsPerSet
	end := start + QuestionsPerSet
	buffered := len(dashboard.BufferedQuestions)

	needsMore := buffered-start < BufferAheadSets*QuestionsPerSet
	if needsMore {
		s.EnsureReplenishment(dashboard.ID, dashboard.Notes)
	}

	// 整页齐了才返回，不返回不足10题的尾巴
	if start < buffered && end <= buffered {
		if err := s.dashboardRepo.UpdateCurrentSet(sessionID, set); err != nil {
			logger.Log.Warn("failed to update current set",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		return dashboard.BufferedQuestions[start:end], needsMore, nil
	}

	return nil, true, util.ErrSetNotReady
}

// EnsureReplenishment 触发后台补充。以CAS抢占生成标志实现互斥：
// 同一会话同时至多一个补充任务，抢占失败直接no-op返回。
// 对触发它的请求而言是fire-and-forget，绝不阻塞。
func (s *QuizService) EnsureReplenishment(sessionID, notes string) {
	acquired, err := s.dashboardRepo.TryMarkGenerating(sessionID)
	if err != nil {
		logger.Log.Error("failed to acquire generating flag",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if !acquired {
		// 已有补充任务在跑
		return
	}

	go s.replenish(sessionID, notes)
}

// replenish 持有生成标志的前提下连续生成最多3批并逐批落库。
// 单批失败只记日志并继续下一批；无论结果如何，defer保证标志被清除。
func (s *QuizService) replenish(sessionID, notes string) {
	ctx, cancel := context.WithTimeout(context.Background(), ReplenishTimeout)
	defer cancel()

	defer func() {
		if err := s.dashboardRepo.SetGenerating(sessionID, false); err != nil {
			logger.Log.Error("failed to clear generating flag",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}()

	logger.Log.Info("replenishing question buffer", zap.String("session_id", sessionID))

	for i := 0; i < ReplenishBatches; i++ {
		start := time.Now()
		batch, err := s.generator.Generate(ctx, notes)
		monitoring.QuizGenerationDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			outcome := "gateway_error"
			var formatErr *QuizFormatError
			if errors.As(err, &formatErr) {
				outcome = "format_error"
			}
			monitoring.QuizBatchCounter.WithLabelValues(outcome).Inc()
			logger.Log.Warn("quiz batch generation failed",
				zap.String("session_id", sessionID), zap.Int("batch", i+1), zap.Error(err))
			continue
		}

		// 每批生成成功立即追加，部分完成的补充对读者同样可见
		if err := s.dashboardRepo.AppendQuestions(sessionID, batch); err != nil {
			logger.Log.Error("failed to append questions",
				zap.String("session_id", sessionID), zap.Int("batch", i+1), zap.Error(err))
			continue
		}

		monitoring.QuizBatchCounter.WithLabelValues("ok").Inc()
	}

	logger.Log.Info("finished replenishing question buffer", zap.String("session_id", sessionID))
}

// SubmitResults 记录一次答题并单调累积dashboard统计
func (s *QuizService) SubmitResults(sessionID string, answered, correct, streak int) error {
	dashboard, err := s.dashboardRepo.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrSessionNotFound
		}
		return err
	}

	score := 0.0
	if answered > 0 {
		score = float64(correct) / float64(answered) * 100
	}

	attempt := &model.QuizAttempt{
		DashboardID:       sessionID,
		QuestionsAnswered: answered,
		CorrectAnswers:    correct,
		Score:             score,
		Streak:            streak,
	}
	if err := s.attemptRepo.Create(attempt); err != nil {
		return err
	}

	bestStreak := dashboard.BestStreak
	if streak > bestStreak {
		bestStreak = streak
	}

	return s.dashboardRepo.UpdateStats(
		sessionID,
		dashboard.TotalQuestions+answered,
		dashboard.TotalCorrect+correct,
		bestStreak,
	)
}

type QuizStats struct {
	TotalQuestions int     `json:"total_questions"`
	AverageScore   float64 `json:"average_score"`
	BestStreak     int     `json:"best_streak"`
}

func (s *QuizService) Stats(sessionID string) (*QuizStats, error) {
	dashboard, err := s.dashboardRepo.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}

	avg := 0.0
	if dashboard.TotalQuestions > 0 {
		avg = math.Round(float64(dashboard.TotalCorrect)/float64(dashboard.TotalQuestions)*1000) / 10
	}

	return &QuizStats{
		TotalQuestions: dashboard.TotalQuestions,
		AverageScore:   avg,
		BestStreak:     dashboard.BestStreak,
	}, nil
}

// DeleteSession 删除会话及其全部答题记录
func (s *QuizService) DeleteSession(sessionID string) error {
	if _, err := s.dashboardRepo.FindByID(sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrSessionNotFound
		}
		return err
	}
	return s.dashboardRepo.Delete(sessionID)
}
