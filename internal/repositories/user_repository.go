package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/petercegoh/cs203-MatchMage/internal/models"
)

// ErrNotFound is returned when no profile document exists for a key.
var ErrNotFound = errors.New("profile not found")

// UserRepository defines access to the profile documents, keyed by uid.
type UserRepository interface {
	Exists(ctx context.Context, uid string) (bool, error)
	GetByID(ctx context.Context, uid string) (*models.User, error)
	GetAll(ctx context.Context) ([]models.User, error)
	// GetByUsername matches the stored username exactly.
	GetByUsername(ctx context.Context, userName string) (*models.User, error)
	// FindByUsernameKey matches the lower-cased username key.
	FindByUsernameKey(ctx context.Context, key string) ([]models.User, error)
	// Save creates or overwrites the document and returns its update time.
	Save(ctx context.Context, uid string, user *models.User) (time.Time, error)
	// Delete removes the document; deleting a missing document is not an error.
	Delete(ctx context.Context, uid string) error
}
