package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/medisync/session-gateway/internal/core/domain"
)

const profileCollection = "users"

// ProfileRepository reads user documents written by the clinic application.
type ProfileRepository struct {
	coll *mongo.Collection
}

func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{coll: db.Collection(profileCollection)}
}

type mongoProfile struct {
	UID        string `bson:"_id"`
	Name       string `bson:"name"`
	Email      string `bson:"email"`
	ClinicID   string `bson:"clinic_id,omitempty"`
	ClinicName string `bson:"clinic_name,omitempty"`
	PhotoURL   string `bson:"photo_url,omitempty"`
	Role       string `bson:"role,omitempty"`
}

func (r *ProfileRepository) GetProfile(ctx context.Context, uid string) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc mongoProfile
	if err := r.coll.FindOne(ctx, bson.M{"_id": uid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &domain.Profile{
		UID:        doc.UID,
		Name:       doc.Name,
		Email:      doc.Email,
		ClinicID:   doc.ClinicID,
		ClinicName: doc.ClinicName,
		PhotoURL:   doc.PhotoURL,
		Role:       domain.Role(doc.Role),
	}, nil
}
