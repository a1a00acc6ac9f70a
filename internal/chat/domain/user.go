package domain

import (
	"strings"
	"time"
)

// Role 使用者角色
type Role string

const (
	// RolePatient 病患
	RolePatient Role = "patient"
	// RoleDoctor 醫師
	RoleDoctor Role = "doctor"
	// RoleAdmin 管理者
	RoleAdmin Role = "admin"
)

// ParseRole token 內的角色不分大小寫
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// User 由帳號服務維護, chat 只讀取並更新在線欄位
type User struct {
	ID                string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	FirstName         string     `gorm:"type:varchar(100)" json:"firstName"`
	LastName          string     `gorm:"type:varchar(100)" json:"lastName"`
	Email             string     `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Profile           string     `gorm:"type:varchar(255)" json:"profile,omitempty"`
	Role              Role       `gorm:"type:varchar(16);index" json:"role"`
	IsActive          bool       `json:"isActive"`
	IsCurrentlyOnline bool       `json:"isCurrentlyOnline"`
	LastSeen          *time.Time `json:"lastSeen,omitempty"`
}

// TableName gorm table
func (User) TableName() string {
	return "users"
}

// DisplayName first + last name
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DirectoryQuery 使用者目錄查詢條件
type DirectoryQuery struct {
	ViewerID     string
	AllowedRoles []Role
	Search       string
	Page         int
	Limit        int
}

// DirectoryPage 使用者目錄分頁結果
type DirectoryPage struct {
	Users []User `json:"users"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Pages int    `json:"pages"`
}
