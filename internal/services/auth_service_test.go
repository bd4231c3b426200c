package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T) (*AuthService, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	auth := NewAuthService(env.db, "test-secret", time.Hour)
	auth.SetClock(func() time.Time { return testNow })
	return auth, env
}

func TestLogin(t *testing.T) {
	auth, env := newAuthService(t)
	staff, err := auth.CreateStaff(env.ctx, CreateStaffRequest{Username: "manager", Password: "secret-pass", Email: "m@example.com"})
	require.NoError(t, err)

	resp, err := auth.Login(env.ctx, LoginRequest{Username: "manager", Password: "secret-pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, testNow.Add(time.Hour).Unix(), resp.ExpiresAt)
	assert.Equal(t, staff.ID, resp.Staff["id"])

	claims, err := auth.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, staff.ID, claims.StaffID)
	assert.Equal(t, "manager", claims.Username)

	stored, err := auth.ActiveStaff(env.ctx, staff.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)

	_, err = auth.Login(env.ctx, LoginRequest{Username: "manager", Password: "wrong-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(env.ctx, LoginRequest{Username: "ghost", Password: "secret-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginInactiveStaff(t *testing.T) {
	auth, env := newAuthService(t)
	staff, err := auth.CreateStaff(env.ctx, CreateStaffRequest{Username: "former", Password: "secret-pass"})
	require.NoError(t, err)

	inactive := false
	_, err = auth.UpdateStaff(env.ctx, staff.ID, UpdateStaffRequest{IsActive: &inactive})
	require.NoError(t, err)

	_, err = auth.Login(env.ctx, LoginRequest{Username: "former", Password: "secret-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.ActiveStaff(env.ctx, staff.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	auth, env := newAuthService(t)
	staff, err := auth.CreateStaff(env.ctx, CreateStaffRequest{Username: "manager", Password: "secret-pass"})
	require.NoError(t, err)

	token, _, err := auth.IssueToken(staff)
	require.NoError(t, err)

	auth.SetClock(func() time.Time { return testNow.Add(2 * time.Hour) })
	_, err = auth.ParseToken(token)
	assert.Error(t, err)

	auth.SetClock(func() time.Time { return testNow })
	other := NewAuthService(env.db, "other-secret", time.Hour)
	other.SetClock(func() time.Time { return testNow })
	_, err = other.ParseToken(token)
	assert.Error(t, err)

	_, err = auth.ParseToken("not-a-token")
	assert.Error(t, err)
}

func TestCreateAndUpdateStaff(t *testing.T) {
	auth, env := newAuthService(t)
	_, err := auth.CreateStaff(env.ctx, CreateStaffRequest{Username: "cook", Password: "secret-pass"})
	require.NoError(t, err)

	_, err = auth.CreateStaff(env.ctx, CreateStaffRequest{Username: "cook", Password: "another-pass"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "username")

	staff, err := auth.CreateStaff(env.ctx, CreateStaffRequest{Username: "boss", Password: "secret-pass", IsSuperuser: true})
	require.NoError(t, err)
	assert.True(t, staff.IsActive)
	assert.True(t, staff.IsSuperuser)

	email := "boss@example.com"
	password := "new-secret-pass"
	updated, err := auth.UpdateStaff(env.ctx, staff.ID, UpdateStaffRequest{Email: &email, Password: &password})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)

	_, err = auth.Login(env.ctx, LoginRequest{Username: "boss", Password: password})
	require.NoError(t, err)

	_, err = auth.UpdateStaff(env.ctx, "missing", UpdateStaffRequest{Email: &email})
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := auth.ListStaff(env.ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "boss", list[0].Username)
}
