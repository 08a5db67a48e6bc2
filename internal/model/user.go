package model

import "time"

// swagger:model User
type User struct {
	BaseModel
	Email     string    `gorm:"size:100;unique;not null" json:"email"`
	Username  string    `gorm:"size:100;unique;not null" json:"username"`
	Password  string    `gorm:"size:100;not null" json:"-"`
	IsActive  bool      `gorm:"default:true" json:"isActive"`
	LastLogin time.Time `json:"lastLogin"`

	Dashboards []Dashboard `gorm:"foreignKey:UserID" json:"-"`
}

func (User) TableName() string {
	return "users"
}
