package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel provides common fields for all database models
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`
}

// User 用户模型
// Owner record only: accounts, authentication and profile management live in the
// account service. We keep the email here as the notification address.
type User struct {
	BaseModel
	Email string `json:"email" gorm:"uniqueIndex;not null"`
	Name  string `json:"name"`
}
