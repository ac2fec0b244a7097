package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medisync/session-gateway/internal/core/domain"
	"github.com/medisync/session-gateway/internal/core/ports"
)

const claimsCollection = "session_claims"

// ClaimsRepository keeps one document per identity keyed by uid. Every
// operation is a single-document update so epochs are never torn.
type ClaimsRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ ports.ClaimsStore = (*ClaimsRepository)(nil)

func NewClaimsRepository(db *mongo.Database) *ClaimsRepository {
	return &ClaimsRepository{coll: db.Collection(claimsCollection), now: time.Now}
}

type mongoClaims struct {
	UID         string  `bson:"_id"`
	TenantID    *string `bson:"tenant_id"`
	Role        string  `bson:"role"`
	Epoch       int64   `bson:"epoch"`
	Outstanding bool    `bson:"outstanding"`
	CreatedAt   int64   `bson:"created_at"`
	UpdatedAt   int64   `bson:"updated_at"`
}

func (m mongoClaims) toDomain() *domain.ClaimsRecord {
	rec := &domain.ClaimsRecord{
		UID:         m.UID,
		Claims:      domain.Claims{Role: domain.Role(m.Role)},
		Epoch:       m.Epoch,
		Outstanding: m.Outstanding,
		CreatedAt:   unixToTime(m.CreatedAt),
		UpdatedAt:   unixToTime(m.UpdatedAt),
	}
	if m.TenantID != nil {
		rec.Claims.TenantID = *m.TenantID
	}
	return rec
}

func tenantValue(c domain.Claims) interface{} {
	if !c.HasTenant() {
		return nil
	}
	return c.TenantID
}

func (r *ClaimsRepository) Get(ctx context.Context, uid string) (*domain.ClaimsRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoClaims
	if err := r.coll.FindOne(ctx, bson.M{"_id": uid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrClaimsNotFound
		}
		return nil, fmt.Errorf("find claims: %w", err)
	}
	return doc.toDomain(), nil
}

// Provision inserts the record only when absent. Concurrent first logins for
// the same uid race on the _id index; the loser retries and reads the winner.
func (r *ClaimsRepository) Provision(ctx context.Context, uid string, claims domain.Claims) (*domain.ClaimsRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := r.now().UTC().Unix()
	update := bson.M{
		"$setOnInsert": bson.M{
			"tenant_id":   tenantValue(claims),
			"role":        string(claims.Role),
			"epoch":       int64(0),
			"outstanding": false,
			"created_at":  now,
			"updated_at":  now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc mongoClaims
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": uid}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		err = r.coll.FindOne(ctx, bson.M{"_id": uid}).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("provision claims: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *ClaimsRepository) SetClaims(ctx context.Context, uid string, claims domain.Claims) (*domain.ClaimsRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := r.now().UTC().Unix()
	update := bson.M{
		"$set": bson.M{
			"tenant_id":  tenantValue(claims),
			"role":       string(claims.Role),
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"epoch":       int64(0),
			"outstanding": false,
			"created_at":  now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc mongoClaims
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": uid}, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("set claims: %w", err)
	}
	return doc.toDomain(), nil
}

// ReserveEpoch returns the full post-update document so the caller embeds
// claims and epoch from the same write.
func (r *ClaimsRepository) ReserveEpoch(ctx context.Context, uid string) (*domain.ClaimsRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoClaims
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": uid},
		bson.M{"$set": bson.M{"outstanding": true}},
		opts,
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrClaimsNotFound
		}
		return nil, fmt.Errorf("reserve epoch: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *ClaimsRepository) CurrentEpoch(ctx context.Context, uid string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoClaims
	opts := options.FindOne().SetProjection(bson.M{"epoch": 1})
	if err := r.coll.FindOne(ctx, bson.M{"_id": uid}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, domain.ErrClaimsNotFound
		}
		return 0, fmt.Errorf("read epoch: %w", err)
	}
	return doc.Epoch, nil
}

// Revoke advances the epoch only for a record with an outstanding artifact,
// which makes repeated calls leave the same state behind.
func (r *ClaimsRepository) Revoke(ctx context.Context, uid string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": uid, "outstanding": true},
		bson.M{
			"$inc": bson.M{"epoch": int64(1)},
			"$set": bson.M{"outstanding": false, "updated_at": r.now().UTC().Unix()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("revoke: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
