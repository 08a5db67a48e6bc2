package model

import "time"

// QuizAttempt 一次答题记录，创建后不再修改，随其dashboard级联删除
type QuizAttempt struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DashboardID       string    `gorm:"index;type:varchar(36);not null" json:"dashboardId"`
	QuestionsAnswered int       `gorm:"not null" json:"questionsAnswered"`
	CorrectAnswers    int       `gorm:"not null" json:"correctAnswers"`
	Score             float64   `gorm:"not null" json:"score"`
	Streak            int       `gorm:"default:0" json:"streak"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}
