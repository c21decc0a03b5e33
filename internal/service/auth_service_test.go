package service

import (
	"context"
	"testing"
	"time"

	"school_lms_backend/internal/config"
	"school_lms_backend/internal/model"
	"school_lms_backend/internal/repository"
	"school_lms_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	cfg := &config.Config{JWT: config.JWTConfig{Secret: testSecret, ExpireTime: time.Hour}}
	return NewAuthService(repository.NewUserRepository(setupTestDB(t)), cfg)
}

func TestAuthService_CreateUser(t *testing.T) {
	s := newAuthService(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, CreateUserRequest{Name: "Amy", Email: "  Amy@School.TEST ", Password: "password1", Role: model.Student})
	require.NoError(t, err)
	assert.Equal(t, "amy@school.test", u.Email)
	assert.NotEqual(t, "password1", u.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("password1")))

	_, err = s.CreateUser(ctx, CreateUserRequest{Name: "Amy", Email: "amy@school.test", Password: "password2", Role: model.Student})
	assert.ErrorIs(t, err, util.ErrEmailRegistered)

	_, err = s.CreateUser(ctx, CreateUserRequest{Name: "X", Email: "x@school.test", Password: "password1", Role: "janitor"})
	assert.ErrorIs(t, err, util.ErrValidation)
}

func TestAuthService_Login(t *testing.T) {
	s := newAuthService(t)
	ctx := context.Background()
	created, err := s.CreateUser(ctx, CreateUserRequest{Name: "Tom", Email: "tom@school.test", Password: "password1", Role: model.Teacher})
	require.NoError(t, err)

	token, user, err := s.Login(ctx, "TOM@school.test", "password1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	claims, err := util.ParseJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, created.ID, claims.UserID)
	assert.Equal(t, model.Teacher, claims.Role)

	_, err = util.ParseJWT(token, "another-secret")
	assert.Error(t, err)

	profile, err := s.Profile(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.LastLogin)

	_, _, err = s.Login(ctx, "tom@school.test", "wrong")
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)
	_, _, err = s.Login(ctx, "nobody@school.test", "password1")
	assert.ErrorIs(t, err, util.ErrInvalidCredentials)

	require.NoError(t, s.UserRepo.DB.Model(&model.User{}).Where("id = ?", created.ID).Update("disabled", true).Error)
	_, _, err = s.Login(ctx, "tom@school.test", "password1")
	assert.ErrorIs(t, err, util.ErrForbidden)

	_, err = s.Profile(ctx, 9999)
	assert.ErrorIs(t, err, util.ErrNotFound)
}
