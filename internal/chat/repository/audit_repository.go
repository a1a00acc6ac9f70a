package repository

import (
	"context"
	"fmt"

	"hospital_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditRepository chat 操作稽核 (不含訊息內容)
type AuditRepository interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
	ListByActor(ctx context.Context, actorID string, limit int64) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	coll *mongo.Collection
}

// NewAuditRepository create a AuditRepository
func NewAuditRepository(db *mongo.Database) AuditRepository {
	return &auditRepository{
		coll: db.Collection("chat_audit"),
	}
}

func (r *auditRepository) Record(ctx context.Context, entry domain.AuditEntry) error {
	if _, err := r.coll.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// ListByActor 最新在前
func (r *auditRepository) ListByActor(ctx context.Context, actorID string, limit int64) ([]domain.AuditEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, bson.M{"actor_id": actorID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find audit: %w", err)
	}

	entries := []domain.AuditEntry{}
	if err := cur.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode audit: %w", err)
	}
	return entries, nil
}
