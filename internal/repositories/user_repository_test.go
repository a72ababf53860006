package repositories_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/petercegoh/cs203-MatchMage/internal/models"
	"github.com/petercegoh/cs203-MatchMage/internal/repositories"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newGORMRepository(t *testing.T) repositories.UserRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := repositories.NewGORMUserRepository(db)
	require.NoError(t, repo.Migrate())
	return repo
}

// newFirestoreRepository runs against the Firestore emulator when
// FIRESTORE_EMULATOR_HOST is set, each test in its own collection.
func newFirestoreRepository(t *testing.T) repositories.UserRepository {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := firestore.NewClient(context.Background(), "matchmage-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return repositories.NewFirestoreUserRepository(client, "user_"+uuid.NewString())
}

func newMockRepository(t *testing.T) repositories.UserRepository {
	return repositories.NewMockUserRepository()
}

func profile(userName string) *models.User {
	return &models.User{
		UserName:      userName,
		UserNameLower: strings.ToLower(userName),
		Name:          "Player " + userName,
		Birthday:      "01/01/2000",
		Gender:        "Female",
	}
}

func TestUserRepositories(t *testing.T) {
	implementations := map[string]func(t *testing.T) repositories.UserRepository{
		"gorm":      newGORMRepository,
		"memory":    newMockRepository,
		"firestore": newFirestoreRepository,
	}

	for name, newRepo := range implementations {
		t.Run(name, func(t *testing.T) {
			t.Run("get missing profile", func(t *testing.T) {
				repo := newRepo(t)
				ctx := context.Background()

				_, err := repo.GetByID(ctx, "missing")
				assert.ErrorIs(t, err, repositories.ErrNotFound)

				_, err = repo.GetByUsername(ctx, "nobody")
				assert.ErrorIs(t, err, repositories.ErrNotFound)

				exists, err := repo.Exists(ctx, "missing")
				require.NoError(t, err)
				assert.False(t, exists)

				assert.NoError(t, repo.Delete(ctx, "missing"))
			})

			t.Run("save and read back", func(t *testing.T) {
				repo := newRepo(t)
				ctx := context.Background()

				updated, err := repo.Save(ctx, "uid-1", profile("MageKnight"))
				require.NoError(t, err)
				assert.False(t, updated.IsZero())

				exists, err := repo.Exists(ctx, "uid-1")
				require.NoError(t, err)
				assert.True(t, exists)

				got, err := repo.GetByID(ctx, "uid-1")
				require.NoError(t, err)
				assert.Equal(t, "uid-1", got.ID)
				assert.Equal(t, "MageKnight", got.UserName)
				assert.Equal(t, "mageknight", got.UserNameLower)
				assert.Equal(t, "Female", got.Gender)
			})

			t.Run("save overwrites and keeps creation time", func(t *testing.T) {
				repo := newRepo(t)
				ctx := context.Background()

				_, err := repo.Save(ctx, "uid-1", profile("MageKnight"))
				require.NoError(t, err)
				first, err := repo.GetByID(ctx, "uid-1")
				require.NoError(t, err)

				time.Sleep(5 * time.Millisecond)
				changed := profile("ArchMage")
				changed.Gender = "Male"
				second, err := repo.Save(ctx, "uid-1", changed)
				require.NoError(t, err)

				got, err := repo.GetByID(ctx, "uid-1")
				require.NoError(t, err)
				assert.Equal(t, "ArchMage", got.UserName)
				assert.Equal(t, "Male", got.Gender)
				assert.True(t, got.CreatedAt.Equal(first.CreatedAt), "creation time must survive an overwrite")
				assert.True(t, second.After(first.UpdatedAt) || second.Equal(first.UpdatedAt))

				all, err := repo.GetAll(ctx)
				require.NoError(t, err)
				assert.Len(t, all, 1)
			})

			t.Run("username lookups", func(t *testing.T) {
				repo := newRepo(t)
				ctx := context.Background()

				_, err := repo.Save(ctx, "uid-1", profile("MageKnight"))
				require.NoError(t, err)
				_, err = repo.Save(ctx, "uid-2", profile("Sorceress"))
				require.NoError(t, err)

				got, err := repo.GetByUsername(ctx, "MageKnight")
				require.NoError(t, err)
				assert.Equal(t, "uid-1", got.ID)

				// Exact lookup is case-sensitive.
				_, err = repo.GetByUsername(ctx, "mageknight")
				assert.ErrorIs(t, err, repositories.ErrNotFound)

				matches, err := repo.FindByUsernameKey(ctx, "mageknight")
				require.NoError(t, err)
				require.Len(t, matches, 1)
				assert.Equal(t, "uid-1", matches[0].ID)

				matches, err = repo.FindByUsernameKey(ctx, "nobody")
				require.NoError(t, err)
				assert.Empty(t, matches)
			})

			t.Run("get all and delete", func(t *testing.T) {
				repo := newRepo(t)
				ctx := context.Background()

				_, err := repo.Save(ctx, "uid-1", profile("First"))
				require.NoError(t, err)
				time.Sleep(5 * time.Millisecond)
				_, err = repo.Save(ctx, "uid-2", profile("Second"))
				require.NoError(t, err)

				all, err := repo.GetAll(ctx)
				require.NoError(t, err)
				require.Len(t, all, 2)
				assert.Equal(t, "uid-1", all[0].ID)
				assert.Equal(t, "uid-2", all[1].ID)

				require.NoError(t, repo.Delete(ctx, "uid-1"))
				_, err = repo.GetByID(ctx, "uid-1")
				assert.ErrorIs(t, err, repositories.ErrNotFound)

				all, err = repo.GetAll(ctx)
				require.NoError(t, err)
				assert.Len(t, all, 1)
			})
		})
	}
}
