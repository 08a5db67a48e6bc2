package service

import (
	"errors"
	"learnai_backend/internal/model"
	"learnai_backend/internal/repository"
	"learnai_backend/internal/util"
	"math"
	"time"

	"gorm.io/gorm"
)

type UserService struct {
	userRepo      *repository.UserRepository
	dashboardRepo *repository.DashboardRepository
}

func NewUserService(userRepo *repository.UserRepository, dashboardRepo *repository.DashboardRepository) *UserService {
	return &UserService{
		userRepo:      userRepo,
		dashboardRepo: dashboardRepo,
	}
}

// DashboardSummary 用户dashboard列表项，带笔记预览和总体正确率
type DashboardSummary struct {
	ID             string    `json:"id"`
	NotesPreview   string    `json:"notes_preview"`
	CreatedAt      time.Time `json:"created_at"`
	TotalQuestions int       `json:"total_questions"`
	Accuracy       float64   `json:"accuracy"`
	BestStreak     int       `json:"best_streak"`
}

func (s *UserService) ListDashboards(userID uint) ([]DashboardSummary, error) {
	dashboards, err := s.dashboardRepo.FindByUser(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]DashboardSummary, 0, len(dashboards))
	for _, d := range dashboards {
		preview := d.Notes
		// 按字符截断,避免把多字节字符劈成无效UTF-8
		if runes := []rune(preview); len(runes) > 100 {
			preview = string(runes[:100]) + "..."
		}

		accuracy := 0.0
		if d.TotalQuestions > 0 {
			accuracy = math.Round(float64(d.TotalCorrect)/float64(d.TotalQuestions)*1000) / 10
		}

		summaries = append(summaries, DashboardSummary{
			ID:             d.ID,
			NotesPreview:   preview,
			CreatedAt:      d.CreatedAt,
			TotalQuestions: d.TotalQuestions,
			Accuracy:       accuracy,
			BestStreak:     d.BestStreak,
		})
	}
	return summaries, nil
}

func (s *UserService) GetDashboard(sessionID string) (*model.Dashboard, error) {
	dashboard, err := s.dashboardRepo.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	return dashboard, nil
}

// Profile 用户资料页聚合：跨全部dashboard的统计
type Profile struct {
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	JoinedDate      time.Time `json:"joined_date"`
	TotalDashboards int       `json:"total_dashboards"`
	TotalQuizzes    int       `json:"total_quizzes"`
	AverageScore    float64   `json:"avg_score"`
	BestStreak      int       `json:"best_streak"`
}

func (s *UserService) GetProfile(userID uint) (*Profile, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}

	dashboards, err := s.dashboardRepo.FindByUser(userID)
	if err != nil {
		return nil, err
	}

	totalQuizzes := 0
	totalCorrect := 0
	totalQuestions := 0
	bestStreak := 0
	for _, d := range dashboards {
		if d.TotalQuestions > 0 {
			totalQuizzes++
		}
		totalCorrect += d.TotalCorrect
		totalQuestions += d.TotalQuestions
		if d.BestStreak > bestStreak {
			bestStreak = d.BestStreak
		}
	}

	avgScore := 0.0
	if totalQuestions > 0 {
		avgScore = math.Round(float64(totalCorrect)/float64(totalQuestions)*1000) / 10
	}

	return &Profile{
		Username:        user.Username,
		Email:           user.Email,
		JoinedDate:      user.CreatedAt,
		TotalDashboards: len(dashboards),
		TotalQuizzes:    totalQuizzes,
		AverageScore:    avgScore,
		BestStreak:      bestStreak,
	}, nil
}

// DeleteAccount 删除账号：先逐个级联删除dashboard（含答题记录），再删用户
func (s *UserService) DeleteAccount(userID uint) error {
	dashboards, err := s.dashboardRepo.FindByUser(userID)
	if err != nil {
		return err
	}

	for _, d := range dashboards {
		if err := s.dashboardRepo.Delete(d.ID); err != nil {
			return err
		}
	}

	return s.userRepo.Delete(userID)
}
