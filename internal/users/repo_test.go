package users

import (
	"context"
	"fmt"
	"testing"

	"github.com/briefwire/briefwire-backend/pkg/db/models"
	"github.com/briefwire/briefwire-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupUsersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	usersTable := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  tier TEXT NOT NULL DEFAULT 'standard',
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(usersTable).Error)
	return db
}

func newUser(t *testing.T, db *gorm.DB, tier enums.Tier) *models.User {
	t.Helper()

	user := &models.User{
		ID:    uuid.New(),
		Email: fmt.Sprintf("%s@example.com", uuid.NewString()),
		Tier:  tier,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestFindByID(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	created := newUser(t, db, enums.TierStandard)

	found, err := repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, enums.TierStandard, found.Tier)
}

func TestFindByIDNotFoundReturnsNil(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)

	user, err := repo.FindByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUpdateTier(t *testing.T) {
	db := setupUsersTestDB(t)
	repo := NewRepository(db)
	user := newUser(t, db, enums.TierStandard)

	require.NoError(t, repo.UpdateTier(context.Background(), user.ID, enums.TierPremium))

	reloaded, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, enums.TierPremium, reloaded.Tier)

	require.NoError(t, repo.UpdateTier(context.Background(), user.ID, enums.TierStandard))
	reloaded, err = repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TierStandard, reloaded.Tier)
}
