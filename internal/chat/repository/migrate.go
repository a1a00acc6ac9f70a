package repository

import (
	"time"

	"hospital_chat_service/internal/chat/domain"

	"gorm.io/gorm"
)

// messageRow chat_messages schema, 讀寫走 pgx
type messageRow struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	SenderID    string    `gorm:"type:varchar(64);not null;index:idx_chat_pair,priority:1"`
	ReceiverID  string    `gorm:"type:varchar(64);not null;index:idx_chat_pair,priority:2;index:idx_chat_unread,priority:1"`
	Content     string    `gorm:"type:text;not null"`
	ClientMsgID *string   `gorm:"type:varchar(64)"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_chat_pair,priority:3"`
	IsRead      bool      `gorm:"not null;default:false;index:idx_chat_unread,priority:2"`
}

func (messageRow) TableName() string {
	return "chat_messages"
}

// Migrate 建立 users / chat_messages, 已存在時只補欄位與索引
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.User{}, &messageRow{})
}
