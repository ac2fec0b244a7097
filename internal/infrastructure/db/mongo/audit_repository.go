package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medisync/session-gateway/internal/core/domain"
	"github.com/medisync/session-gateway/internal/core/ports"
)

const (
	auditCollection = "security_events"
	auditRetention  = 90 * 24 * time.Hour
)

// AuditRepository implements ports.AuditRepository using MongoDB.
type AuditRepository struct {
	coll *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) ports.AuditRepository {
	return &AuditRepository{coll: db.Collection(auditCollection)}
}

// EnsureAuditIndexes creates the lookup index by identity and the TTL index
// that expires old security events.
func EnsureAuditIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := db.Collection(auditCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "uid", Value: 1}, {Key: "occurred_at", Value: -1}}},
		{
			Keys:    bson.D{{Key: "occurred_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(auditRetention.Seconds())),
		},
	})
	if err != nil {
		return fmt.Errorf("create audit indexes: %w", err)
	}
	return nil
}

// Insert persists a security event to the audit collection.
func (r *AuditRepository) Insert(ctx context.Context, ev domain.SecurityEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	doc := bson.M{
		"_id":         uuid.NewString(),
		"type":        string(ev.Type),
		"uid":         ev.UID,
		"occurred_at": occurred.UTC(),
		"recorded_at": time.Now().UTC(),
	}
	if ev.ActorUID != "" {
		doc["actor_uid"] = ev.ActorUID
	}
	if ev.SessionID != "" {
		doc["session_id"] = ev.SessionID
	}
	if ev.Reason != "" {
		doc["reason"] = ev.Reason
	}
	if ev.RequestID != "" {
		doc["request_id"] = ev.RequestID
	}
	if ev.RemoteIP != "" {
		doc["remote_ip"] = ev.RemoteIP
	}
	if len(ev.Attributes) > 0 {
		doc["attributes"] = ev.Attributes
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}
