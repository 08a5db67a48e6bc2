package repository

import (
	"learnai_backend/internal/model"

	"gorm.io/gorm"
)

type DashboardRepository struct {
	DB *gorm.DB
}

func NewDashboardRepository(db *gorm.DB) *DashboardRepository {
	return &DashboardRepository{DB: db}
}

func (r *DashboardRepository) Create(dashboard *model.Dashboard) error {
	return r.DB.Create(dashboard).Error
}

func (r *DashboardRepository) FindByID(id string) (*model.Dashboard, error) {
	var dashboard model.Dashboard
	err := r.DB.First(&dashboard, "id = ?", id).Error
	return &dashboard, err
}

func (r *DashboardRepository) FindByUser(userID uint) ([]model.Dashboard, error) {
	var dashboards []model.Dashboard
	err := r.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&dashboards).Error
	return dashboards, err
}

// AppendQuestions 将一批新题目追加到缓冲区末尾。
// 只更新buffered_questions单列，避免覆盖并发写入的统计列。
// 同一会话的追加由生成标志（TryMarkGenerating）保证单写者，读-改-写不会丢失更新。
func (r *DashboardRepository) AppendQuestions(id string, batch []model.Question) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var dashboard model.Dashboard
		if err := tx.First(&dashboard, "id = ?", id).Error; err != nil {
			return err
		}

		updated := make(model.QuestionList, 0, len(dashboard.BufferedQuestions)+len(batch))
		updated = append(updated, dashboard.BufferedQuestions...)
		updated = append(updated, batch...)

		return tx.Model(&dashboard).Update("buffered_questions", updated).Error
	})
}

// TryMarkGenerating 以CAS方式抢占生成标志：仅当is_generating为false时置true。
// 返回true表示抢占成功，调用方获得该会话的补充生成所有权。
func (r *DashboardRepository) TryMarkGenerating(id string) (bool, error) {
	result := r.DB.Model(&model.Dashboard{}).
		Where("id = ? AND is_generating = ?", id, false).
		Update("is_generating", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *DashboardRepository) SetGenerating(id string, generating bool) error {
	return r.DB.Model(&model.Dashboard{}).
		Where("id = ?", id).
		Update("is_generating", generating).Error
}

func (r *DashboardRepository) IsGenerating(id string) (bool, error) {
	var dashboard model.Dashboard
	err := r.DB.Select("is_generating").First(&dashboard, "id = ?", id).Error
	if err != nil {
		return false, err
	}
	return dashboard.IsGenerating, nil
}

func (r *DashboardRepository) UpdateCurrentSet(id string, set int) error {
	return r.DB.Model(&model.Dashboard{}).
		Where("id = ?", id).
		Update("current_set", set).Error
}

// UpdateStats 三个统计列在同一条UPDATE中写入，不会部分生效
func (r *DashboardRepository) UpdateStats(id string, totalQuestions, totalCorrect, bestStreak int) error {
	return r.DB.Model(&model.Dashboard{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_questions": totalQuestions,
			"total_correct":   totalCorrect,
			"best_streak":     bestStreak,
		}).Error
}

// Delete 删除dashboard及其全部答题记录（应用层级联）
func (r *DashboardRepository) Delete(id string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("dashboard_id = ?", id).Delete(&model.QuizAttempt{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Dashboard{}, "id = ?", id).Error
	})
}
