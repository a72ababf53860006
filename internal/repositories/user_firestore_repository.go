package repositories

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/petercegoh/cs203-MatchMage/internal/models"
)

// FirestoreUserRepository keeps profiles in a Firestore collection; the
// document id is the uid.
type FirestoreUserRepository struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreUserRepository targets the given collection (normally "user").
func NewFirestoreUserRepository(client *firestore.Client, collection string) *FirestoreUserRepository {
	return &FirestoreUserRepository{client: client, collection: collection}
}

func (r *FirestoreUserRepository) doc(uid string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(uid)
}

func (r *FirestoreUserRepository) Exists(ctx context.Context, uid string) (bool, error) {
	snap, err := r.doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check profile %s: %w", uid, err)
	}
	return snap.Exists(), nil
}

func (r *FirestoreUserRepository) GetByID(ctx context.Context, uid string) (*models.User, error) {
	snap, err := r.doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("profile %s: %w", uid, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile %s: %w", uid, err)
	}
	return decode(snap)
}

func (r *FirestoreUserRepository) GetAll(ctx context.Context) ([]models.User, error) {
	snaps, err := r.client.Collection(r.collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return decodeAll(snaps)
}

func (r *FirestoreUserRepository) GetByUsername(ctx context.Context, userName string) (*models.User, error) {
	snaps, err := r.client.Collection(r.collection).
		Where("userName", "==", userName).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile by username %s: %w", userName, err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("profile with username %s: %w", userName, ErrNotFound)
	}
	return decode(snaps[0])
}

func (r *FirestoreUserRepository) FindByUsernameKey(ctx context.Context, key string) ([]models.User, error) {
	snaps, err := r.client.Collection(r.collection).
		Where("userNameLower", "==", key).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query username %s: %w", key, err)
	}
	return decodeAll(snaps)
}

func (r *FirestoreUserRepository) Save(ctx context.Context, uid string, user *models.User) (time.Time, error) {
	res, err := r.doc(uid).Set(ctx, user)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to save profile %s: %w", uid, err)
	}
	return res.UpdateTime, nil
}

func (r *FirestoreUserRepository) Delete(ctx context.Context, uid string) error {
	if _, err := r.doc(uid).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete profile %s: %w", uid, err)
	}
	return nil
}

func decode(snap *firestore.DocumentSnapshot) (*models.User, error) {
	if !snap.Exists() {
		return nil, fmt.Errorf("profile %s: %w", snap.Ref.ID, ErrNotFound)
	}
	var user models.User
	if err := snap.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", snap.Ref.ID, err)
	}
	user.ID = snap.Ref.ID
	user.UpdatedAt = snap.UpdateTime
	user.CreatedAt = snap.CreateTime
	return &user, nil
}

func decodeAll(snaps []*firestore.DocumentSnapshot) ([]models.User, error) {
	users := make([]models.User, 0, len(snaps))
	for _, snap := range snaps {
		user, err := decode(snap)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, nil
}
