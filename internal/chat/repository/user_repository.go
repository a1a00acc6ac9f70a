package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hospital_chat_service/internal/chat/domain"

	"gorm.io/gorm"
)

// UserRepository 使用者 (帳號服務維護) 的讀取與在線狀態
type UserRepository interface {
	// FindByID 只回傳 active user, 否則 domain.ErrUserNotFound
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.User, error)
	SetOnline(ctx context.Context, id string, online bool, at time.Time) error
	ListDirectory(ctx context.Context, q domain.DirectoryQuery) ([]domain.User, int64, error)
	ListActive(ctx context.Context, viewerID string, roles []domain.Role) ([]domain.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository create a UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	return &u, nil
}

func (r *userRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.User, error) {
	users := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	var list []domain.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	for _, u := range list {
		users[u.ID] = u
	}
	return users, nil
}

func (r *userRepository) SetOnline(ctx context.Context, id string, online bool, at time.Time) error {
	updates := map[string]interface{}{"is_currently_online": online}
	if !online {
		updates["last_seen"] = at
	}
	err := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("set online %s: %w", id, err)
	}
	return nil
}

func (r *userRepository) ListDirectory(ctx context.Context, q domain.DirectoryQuery) ([]domain.User, int64, error) {
	base := func() *gorm.DB {
		tx := r.db.WithContext(ctx).Model(&domain.User{}).
			Where("id <> ? AND is_active = ?", q.ViewerID, true)
		if len(q.AllowedRoles) > 0 {
			tx = tx.Where("role IN ?", q.AllowedRoles)
		}
		if s := strings.TrimSpace(q.Search); s != "" {
			like := "%" + escapeLike(s) + "%"
			tx = tx.Where("first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ?", like, like, like)
		}
		return tx
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count directory: %w", err)
	}

	var users []domain.User
	err := base().
		Order("first_name ASC").Order("id ASC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list directory: %w", err)
	}
	return users, total, nil
}

func (r *userRepository) ListActive(ctx context.Context, viewerID string, roles []domain.Role) ([]domain.User, error) {
	tx := r.db.WithContext(ctx).Where("id <> ? AND is_active = ?", viewerID, true)
	if len(roles) > 0 {
		tx = tx.Where("role IN ?", roles)
	}

	var users []domain.User
	if err := tx.Order("first_name ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return users, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
