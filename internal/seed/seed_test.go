package seed

import (
	"context"
	"testing"
	"time"

	"chirp/internal/models"
	"chirp/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func smallOptions() Options {
	opts := DefaultOptions()
	opts.NumUsers = 8
	opts.MaxLikesPerUser = 5
	opts.MaxFollowersPerUser = 4
	opts.BcryptCost = bcrypt.MinCost
	opts.RandSeed = 42
	return opts
}

func TestSeeder_Run(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s, err := NewSeeder(db, smallOptions())
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, res.Users)
	assert.GreaterOrEqual(t, res.Posts, 8)
	assert.LessOrEqual(t, res.Posts, 24)
	assert.GreaterOrEqual(t, res.Likes, 8)
	assert.GreaterOrEqual(t, res.Follows, 8)

	var users, posts, likes, follows int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	require.NoError(t, db.Model(&models.Like{}).Count(&likes).Error)
	require.NoError(t, db.Model(&models.Follow{}).Count(&follows).Error)
	assert.Equal(t, int64(res.Users), users)
	assert.Equal(t, int64(res.Posts), posts)
	assert.Equal(t, int64(res.Likes), likes)
	assert.Equal(t, int64(res.Follows), follows)

	var selfFollows int64
	require.NoError(t, db.Model(&models.Follow{}).Where("follower_id = followed_id").Count(&selfFollows).Error)
	assert.Zero(t, selfFollows)

	var withoutFollowers int64
	require.NoError(t, db.Model(&models.User{}).
		Where("id NOT IN (?)", db.Model(&models.Follow{}).Select("followed_id")).
		Count(&withoutFollowers).Error)
	assert.Zero(t, withoutFollowers)

	var u models.User
	require.NoError(t, db.First(&u).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(DefaultPassword)))
}

func TestSeeder_RunCleansFirst(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	testutil.CreateUser(t, db, "leftover")
	ctx := context.Background()

	s, err := NewSeeder(db, smallOptions())
	require.NoError(t, err)
	_, err = s.Run(ctx)
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.Model(&models.User{}).Where("username = ?", "leftover").Count(&n).Error)
	assert.Zero(t, n)

	require.NoError(t, s.ClearAll(ctx))
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSeeder_DryRun(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	opts := smallOptions()
	opts.DryRun = true

	s, err := NewSeeder(db, opts)
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, res.Users)
	assert.Positive(t, res.Follows)

	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSeeder_RejectsBadOptions(t *testing.T) {
	opts := smallOptions()
	opts.MinPostsPerUser, opts.MaxPostsPerUser = 3, 1
	_, err := NewSeeder(nil, opts)
	assert.Error(t, err)

	opts = smallOptions()
	opts.NumUsers = 0
	opts.DryRun = true
	s, err := NewSeeder(nil, opts)
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, ErrNothingToSeed)
}

func TestFactory_BuildPostRespectsLimits(t *testing.T) {
	opts := smallOptions()
	opts.MaxDays = 30
	f, err := NewFactory(nil, opts)
	require.NoError(t, err)
	user := &models.User{ID: 1}

	for i := 0; i < 50; i++ {
		p := f.BuildPost(user)
		assert.NotEmpty(t, p.Title)
		assert.LessOrEqual(t, len([]rune(p.Title)), models.PostTitleMaxLen)
		assert.LessOrEqual(t, len([]rune(p.Content)), models.PostContentMaxLen)
		assert.Equal(t, uint(1), p.UserID)
		assert.WithinDuration(t, time.Now(), p.CreatedAt, 31*24*time.Hour)
	}
}

func TestFactory_UsernamesAreUnique(t *testing.T) {
	f, err := NewFactory(nil, smallOptions())
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		u := f.BuildUser()
		require.False(t, seen[u.Username], u.Username)
		seen[u.Username] = true
	}
	assert.Equal(t, "pinned", f.BuildUser(func(u *models.User) { u.Username = "pinned" }).Username)
}
