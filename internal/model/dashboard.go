package model

// Dashboard 一次测验会话：固定的笔记文本 + 持续增长的题目缓冲区
// swagger:model Dashboard
type Dashboard struct {
	UUIDBase
	UserID            uint         `gorm:"index;not null" json:"userId"`
	Notes             string       `gorm:"type:longtext;not null" json:"notes"`
	BufferedQuestions QuestionList `gorm:"type:json" json:"-"`
	CurrentSet        int          `gorm:"default:0" json:"currentSet"`
	TotalQuestions    int          `gorm:"default:0" json:"totalQuestions"`
	TotalCorrect      int          `gorm:"default:0" json:"totalCorrect"`
	BestStreak        int          `gorm:"default:0" json:"bestStreak"`
	IsGenerating      bool         `gorm:"default:false" json:"isGenerating"`

	Attempts []QuizAttempt `gorm:"foreignKey:DashboardID" json:"-"`
}

func (Dashboard) TableName() string {
	return "dashboards"
}
