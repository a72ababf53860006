package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/petercegoh/cs203-MatchMage/internal/models"
)

// MockUserRepository is an in-memory implementation of UserRepository.
type MockUserRepository struct {
	users map[string]models.User
	mu    sync.RWMutex
}

// NewMockUserRepository creates a new instance of MockUserRepository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users: make(map[string]models.User),
	}
}

func (r *MockUserRepository) Exists(_ context.Context, uid string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.users[uid]
	return ok, nil
}

// GetByID returns a profile by its uid.
func (r *MockUserRepository) GetByID(_ context.Context, uid string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[uid]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", uid, ErrNotFound)
	}
	return &user, nil
}

// GetAll returns all profiles, oldest first.
func (r *MockUserRepository) GetAll(_ context.Context) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userList := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		userList = append(userList, u)
	}
	sortByCreation(userList)
	return userList, nil
}

func (r *MockUserRepository) GetByUsername(_ context.Context, userName string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.UserName == userName {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("profile with username %s: %w", userName, ErrNotFound)
}

func (r *MockUserRepository) FindByUsernameKey(_ context.Context, key string) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []models.User
	for _, u := range r.users {
		if u.UserNameLower == key {
			matches = append(matches, u)
		}
	}
	sortByCreation(matches)
	return matches, nil
}

// Save creates or overwrites the profile stored under uid.
func (r *MockUserRepository) Save(_ context.Context, uid string, user *models.User) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	row := *user
	row.ID = uid
	row.CreatedAt = now
	if existing, ok := r.users[uid]; ok {
		row.CreatedAt = existing.CreatedAt
	}
	row.UpdatedAt = now
	r.users[uid] = row
	return now, nil
}

// Delete removes a profile by its uid.
func (r *MockUserRepository) Delete(_ context.Context, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.users, uid)
	return nil
}

func sortByCreation(users []models.User) {
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
}
