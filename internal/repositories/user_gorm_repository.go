package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/petercegoh/cs203-MatchMage/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMUserRepository is a GORM implementation of UserRepository for
// deployments that keep profiles in Postgres or SQLite.
type GORMUserRepository struct {
	db *gorm.DB
}

// NewGORMUserRepository creates a new instance of GORMUserRepository.
func NewGORMUserRepository(db *gorm.DB) *GORMUserRepository {
	return &GORMUserRepository{
		db: db,
	}
}

// Migrate creates or updates the profile table.
func (r *GORMUserRepository) Migrate() error {
	if err := r.db.AutoMigrate(&models.User{}); err != nil {
		return fmt.Errorf("failed to migrate user profiles: %w", err)
	}
	return nil
}

func (r *GORMUserRepository) Exists(ctx context.Context, uid string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", uid).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check profile %s: %w", uid, err)
	}
	return count > 0, nil
}

// GetByID retrieves a profile by uid.
func (r *GORMUserRepository) GetByID(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("profile %s: %w", uid, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile %s: %w", uid, err)
	}
	return &user, nil
}

func (r *GORMUserRepository) GetAll(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Order("created_at").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return users, nil
}

// GetByUsername retrieves the first profile whose username matches exactly.
func (r *GORMUserRepository) GetByUsername(ctx context.Context, userName string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "user_name = ?", userName).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("profile with username %s: %w", userName, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile by username %s: %w", userName, err)
	}
	return &user, nil
}

func (r *GORMUserRepository) FindByUsernameKey(ctx context.Context, key string) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Where("user_name_lower = ?", key).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to query username %s: %w", key, err)
	}
	return users, nil
}

// Save upserts the profile, keeping the original creation time.
func (r *GORMUserRepository) Save(ctx context.Context, uid string, user *models.User) (time.Time, error) {
	row := *user
	row.ID = uid
	row.UpdatedAt = time.Now()
	row.CreatedAt = row.UpdatedAt
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_name", "user_name_lower", "name", "birthday", "gender", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to save profile %s: %w", uid, err)
	}
	return row.UpdatedAt, nil
}

func (r *GORMUserRepository) Delete(ctx context.Context, uid string) error {
	if err := r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", uid).Error; err != nil {
		return fmt.Errorf("failed to delete profile %s: %w", uid, err)
	}
	return nil
}
