package app

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/pkg/database"
)

// memMessageRepository 記憶體版 chat_messages, 依 id 排序
type memMessageRepository struct {
	mu   sync.Mutex
	rows []domain.Message
	next int64
}

func (r *memMessageRepository) Insert(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	msg.ID = r.next
	msg.CreatedAt = time.Now().UTC()
	msg.IsRead = false
	r.rows = append(r.rows, *msg)
	return nil
}

func (r *memMessageRepository) ListBetween(_ context.Context, userA, userB string, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.rows {
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]domain.Message{}, out...), nil
}

func (r *memMessageRepository) MarkRead(_ context.Context, senderID, receiverID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.rows {
		if r.rows[i].SenderID == senderID && r.rows[i].ReceiverID == receiverID && !r.rows[i].IsRead {
			r.rows[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *memMessageRepository) UnreadCountFor(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.rows {
		if m.ReceiverID == userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *memMessageRepository) UnreadBetween(_ context.Context, viewerID, otherID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.rows {
		if m.SenderID == otherID && m.ReceiverID == viewerID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *memMessageRepository) Recent(_ context.Context, viewerID string) ([]domain.ConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]int{}
	var out []domain.ConversationSummary
	for i := len(r.rows) - 1; i >= 0; i-- {
		m := r.rows[i]
		if m.SenderID != viewerID && m.ReceiverID != viewerID {
			continue
		}
		other := m.CounterpartOf(viewerID)
		if _, ok := seen[other]; !ok {
			seen[other] = len(out)
			out = append(out, domain.ConversationSummary{
				OtherUserID:   other,
				LastMessage:   m.Content,
				LastMessageID: m.ID,
				LastSenderID:  m.SenderID,
				LastMessageAt: m.CreatedAt,
			})
		}
		if m.ReceiverID == viewerID && !m.IsRead {
			out[seen[other]].UnreadCount++
		}
	}
	return out, nil
}

func (r *memMessageRepository) count(userA, userB string) int {
	list, _ := r.ListBetween(context.Background(), userA, userB, 1<<30)
	return len(list)
}

// memUserRepository 記憶體版 users
type memUserRepository struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUserRepository(users ...domain.User) *memUserRepository {
	r := &memUserRepository{users: map[string]domain.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || !u.IsActive {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r *memUserRepository) FindByIDs(_ context.Context, ids []string) (map[string]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]domain.User{}
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (r *memUserRepository) SetOnline(_ context.Context, id string, online bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil
	}
	u.IsCurrentlyOnline = online
	if !online {
		u.LastSeen = &at
	}
	r.users[id] = u
	return nil
}

func (r *memUserRepository) ListDirectory(ctx context.Context, q domain.DirectoryQuery) ([]domain.User, int64, error) {
	all, _ := r.ListActive(ctx, q.ViewerID, q.AllowedRoles)
	var matched []domain.User
	for _, u := range all {
		s := strings.ToLower(q.Search)
		if s == "" || strings.Contains(strings.ToLower(u.FirstName+" "+u.LastName+" "+u.Email), s) {
			matched = append(matched, u)
		}
	}
	total := int64(len(matched))
	start := (q.Page - 1) * q.Limit
	if start >= len(matched) {
		return []domain.User{}, total, nil
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *memUserRepository) ListActive(_ context.Context, viewerID string, roles []domain.Role) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, u := range r.users {
		if u.ID == viewerID || !u.IsActive || !containsRole(roles, u.Role) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstName < out[j].FirstName })
	return out, nil
}

// memRedis 記憶體版 database.RedisRepository, 不處理 TTL
type memRedis[T any] struct {
	mu   sync.Mutex
	data map[string]T
}

func newMemRedis[T any]() *memRedis[T] {
	return &memRedis[T]{data: map[string]T{}}
}

func (r *memRedis[T]) Set(_ context.Context, key string, value T, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = value
	return nil
}

func (r *memRedis[T]) SetNX(_ context.Context, key string, value T, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[key]; ok {
		return false, nil
	}
	r.data[key] = value
	return true, nil
}

func (r *memRedis[T]) Get(_ context.Context, key string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[key]
	if !ok {
		var zero T
		return zero, database.ErrRedisNil
	}
	return v, nil
}

func (r *memRedis[T]) Del(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}

func (r *memRedis[T]) GetTTL(context.Context, string) (int, error) { return -1, nil }

func (r *memRedis[T]) ExtendTTL(context.Context, string, time.Duration) error { return nil }
