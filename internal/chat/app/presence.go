package app

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/pkg/logger"

	"go.uber.org/zap"
)

const (
	persistTimeout = 5 * time.Second
	statusStripes  = 32
)

// Handle 一條已 join 的連線
type Handle interface {
	ID() string
	UserID() string
	// Send 非阻塞, 連線已關閉或已被取代時回傳 false
	Send(ev domain.Event) bool
	// Retire 被新的連線取代或逾時, 之後的 Send 皆為 no-op
	Retire()
}

// OnlineStatusWriter 寫回 users 的在線欄位
type OnlineStatusWriter interface {
	SetOnline(ctx context.Context, id string, online bool, at time.Time) error
}

type presenceEntry struct {
	handle         Handle
	joinedAt       time.Time
	lastActivityAt time.Time
}

// PresenceRegistry userID -> 連線, 每個 user 最多一筆
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[string]*presenceEntry
	status  OnlineStatusWriter
	now     func() time.Time

	// 同一 user 的寫回與上下線廣播依序執行
	statusLocks [statusStripes]sync.Mutex
}

// NewPresenceRegistry create PresenceRegistry
func NewPresenceRegistry(status OnlineStatusWriter) *PresenceRegistry {
	return &PresenceRegistry{
		entries: make(map[string]*presenceEntry),
		status:  status,
		now:     time.Now,
	}
}

// Join 註冊或取代 handle.UserID() 的連線, 回傳被取代的舊 handle
func (p *PresenceRegistry) Join(ctx context.Context, h Handle) Handle {
	userID := h.UserID()
	now := p.now()

	p.mu.Lock()
	old := p.entries[userID]
	p.entries[userID] = &presenceEntry{handle: h, joinedAt: now, lastActivityAt: now}
	count := len(p.entries)
	p.mu.Unlock()
	onlineUsers.Set(float64(count))

	var replaced Handle
	if old != nil && old.handle.ID() != h.ID() {
		replaced = old.handle
		replaced.Retire()
		logger.Log.Info("presence replaced", zap.String("userID", userID), zap.String("old", replaced.ID()), zap.String("new", h.ID()))
	}

	p.publish(ctx, userID, true)
	return replaced
}

// Leave 只有 handle 仍是目前連線時才移除, 舊連線關閉為 no-op
func (p *PresenceRegistry) Leave(ctx context.Context, h Handle) bool {
	userID := h.UserID()

	p.mu.Lock()
	e, ok := p.entries[userID]
	if !ok || e.handle.ID() != h.ID() {
		p.mu.Unlock()
		return false
	}
	delete(p.entries, userID)
	count := len(p.entries)
	p.mu.Unlock()
	onlineUsers.Set(float64(count))

	p.publish(ctx, userID, false)
	return true
}

// Touch 更新活動時間
func (p *PresenceRegistry) Touch(userID string) {
	now := p.now()
	p.mu.Lock()
	if e, ok := p.entries[userID]; ok {
		e.lastActivityAt = now
	}
	p.mu.Unlock()
}

// IsOnline userID 是否有連線
func (p *PresenceRegistry) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[userID]
	return ok
}

// Snapshot 在線 userID, 已排序
func (p *PresenceRegistry) Snapshot() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Deliver 送到 userID 目前的連線, 不在線回傳 false
func (p *PresenceRegistry) Deliver(userID string, ev domain.Event) bool {
	p.mu.RLock()
	e, ok := p.entries[userID]
	p.mu.RUnlock()
	if !ok {
		droppedEvents.WithLabelValues("offline").Inc()
		return false
	}
	return e.handle.Send(ev)
}

// Broadcast 送給所有在線連線, 略過 exclude
func (p *PresenceRegistry) Broadcast(ev domain.Event, exclude string) {
	p.mu.RLock()
	handles := make([]Handle, 0, len(p.entries))
	for id, e := range p.entries {
		if id != exclude {
			handles = append(handles, e.handle)
		}
	}
	p.mu.RUnlock()

	for _, h := range handles {
		h.Send(ev)
	}
}

// Reap 移除超過 grace 沒有活動的連線, 回傳被移除的 userID
func (p *PresenceRegistry) Reap(ctx context.Context, grace time.Duration) []string {
	deadline := p.now().Add(-grace)

	p.mu.RLock()
	var stale []Handle
	for _, e := range p.entries {
		if e.lastActivityAt.Before(deadline) {
			stale = append(stale, e.handle)
		}
	}
	p.mu.RUnlock()

	var reaped []string
	for _, h := range stale {
		if p.Leave(ctx, h) {
			h.Retire()
			reaped = append(reaped, h.UserID())
		}
	}
	sort.Strings(reaped)
	return reaped
}

// publish 寫回 users 並廣播上下線. 等鎖或寫回期間若已有更新的 join/leave,
// 由後來者負責, 避免舊的離線狀態蓋掉重新連線
func (p *PresenceRegistry) publish(ctx context.Context, userID string, online bool) {
	l := p.statusLock(userID)
	l.Lock()
	defer l.Unlock()

	if p.IsOnline(userID) != online {
		return
	}
	p.persist(ctx, userID, online, p.now())
	if p.IsOnline(userID) != online {
		return
	}

	typ := domain.EventUserDisconnected
	if online {
		typ = domain.EventUserConnected
	}
	ev := domain.NewEvent(typ)
	ev.UserID = userID
	p.Broadcast(ev, userID)
}

func (p *PresenceRegistry) statusLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &p.statusLocks[h.Sum32()%statusStripes]
}

func (p *PresenceRegistry) persist(ctx context.Context, userID string, online bool, at time.Time) {
	if p.status == nil {
		return
	}
	// 連線關閉時 ctx 可能已取消, 仍要寫回離線狀態
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := p.status.SetOnline(ctx, userID, online, at); err != nil {
		logger.Log.Warn("persist presence failed", zap.String("userID", userID), zap.Bool("online", online), zap.Error(err))
	}
}
