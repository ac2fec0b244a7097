package mongo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/medisync/session-gateway/internal/core/domain"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newMockRepo(mt *mtest.T) *ClaimsRepository {
	return &ClaimsRepository{coll: mt.Coll, now: func() time.Time { return fixedNow }}
}

func claimsDoc(uid, tenant, role string, epoch int64, outstanding bool) bson.D {
	return bson.D{
		{Key: "_id", Value: uid},
		{Key: "tenant_id", Value: tenant},
		{Key: "role", Value: role},
		{Key: "epoch", Value: epoch},
		{Key: "outstanding", Value: outstanding},
		{Key: "created_at", Value: fixedNow.Unix()},
		{Key: "updated_at", Value: fixedNow.Unix()},
	}
}

func TestClaimsRepository_ReserveEpoch(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns claims and epoch from the updated document", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: claimsDoc("u1", "c1", "admin", 4, true)},
		))

		rec, err := newMockRepo(mt).ReserveEpoch(context.Background(), "u1")
		require.NoError(mt, err)
		assert.Equal(mt, "u1", rec.UID)
		assert.Equal(mt, int64(4), rec.Epoch)
		assert.True(mt, rec.Outstanding)
		assert.Equal(mt, "c1", rec.Claims.TenantID)
		assert.Equal(mt, domain.RoleAdmin, rec.Claims.Role)
		assert.Equal(mt, fixedNow, rec.UpdatedAt)
	})

	mt.Run("unknown uid", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		_, err := newMockRepo(mt).ReserveEpoch(context.Background(), "nobody")
		assert.True(mt, errors.Is(err, domain.ErrClaimsNotFound), "got %v", err)
	})

	mt.Run("server error is wrapped", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 2, Name: "BadValue", Message: "bad value",
		}))

		_, err := newMockRepo(mt).ReserveEpoch(context.Background(), "u1")
		require.Error(mt, err)
		assert.False(mt, errors.Is(err, domain.ErrClaimsNotFound))
		assert.Contains(mt, err.Error(), "reserve epoch")
	})
}

func TestClaimsRepository_Revoke(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("outstanding artifact advances the epoch", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		revoked, err := newMockRepo(mt).Revoke(context.Background(), "u1")
		require.NoError(mt, err)
		assert.True(mt, revoked)
	})

	mt.Run("nothing outstanding leaves the record alone", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		revoked, err := newMockRepo(mt).Revoke(context.Background(), "u1")
		require.NoError(mt, err)
		assert.False(mt, revoked)
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 13, Name: "Unauthorized", Message: "not authorized",
		}))

		revoked, err := newMockRepo(mt).Revoke(context.Background(), "u1")
		require.Error(mt, err)
		assert.False(mt, revoked)
	})
}

func TestClaimsRepository_Provision(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserts defaults for a new uid", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: claimsDoc("u1", "", "staff", 0, false)},
		))

		rec, err := newMockRepo(mt).Provision(context.Background(), "u1", domain.DefaultClaims())
		require.NoError(mt, err)
		assert.Equal(mt, int64(0), rec.Epoch)
		assert.Equal(mt, domain.RoleStaff, rec.Claims.Role)
	})

	mt.Run("duplicate key reads the concurrent winner", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCommandErrorResponse(mtest.CommandError{
				Code: 11000, Name: "DuplicateKey", Message: "E11000 duplicate key error collection: session_claims",
			}),
			mtest.CreateCursorResponse(0, "session_gateway.session_claims", mtest.FirstBatch,
				claimsDoc("u1", "c1", "admin", 2, true),
			),
		)

		rec, err := newMockRepo(mt).Provision(context.Background(), "u1", domain.DefaultClaims())
		require.NoError(mt, err)
		assert.Equal(mt, "c1", rec.Claims.TenantID)
		assert.Equal(mt, domain.RoleAdmin, rec.Claims.Role)
		assert.Equal(mt, int64(2), rec.Epoch)
	})

	mt.Run("other write errors are returned", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 121, Name: "DocumentValidationFailure", Message: "document failed validation",
		}))

		_, err := newMockRepo(mt).Provision(context.Background(), "u1", domain.DefaultClaims())
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "provision claims")
	})
}
