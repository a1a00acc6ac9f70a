package repository

import (
	"context"
	"strings"
	"time"

	"hospital_chat_service/pkg/database"
	"hospital_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// AvatarRepository 將 users.profile 的 object key 轉為可存取的網址
type AvatarRepository interface {
	URL(ctx context.Context, profile string) string
}

type minioAvatarRepository struct {
	client *database.MinIOClient
	expiry time.Duration
}

// NewAvatarRepository create a presigned AvatarRepository
func NewAvatarRepository(client *database.MinIOClient, expiry time.Duration) AvatarRepository {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &minioAvatarRepository{client: client, expiry: expiry}
}

func (r *minioAvatarRepository) URL(ctx context.Context, profile string) string {
	if profile == "" || isAbsoluteURL(profile) {
		return profile
	}

	u, err := r.client.PresignGetURL(ctx, profile, r.expiry)
	if err != nil {
		logger.Log.Warn("presign avatar failed", zap.String("object", profile), zap.Error(err))
		return ""
	}
	return u
}

type staticAvatarRepository struct{}

// NewStaticAvatarRepository minio 未啟用時原樣回傳
func NewStaticAvatarRepository() AvatarRepository {
	return staticAvatarRepository{}
}

func (staticAvatarRepository) URL(_ context.Context, profile string) string {
	return profile
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
