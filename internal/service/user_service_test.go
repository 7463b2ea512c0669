package service

import (
	"testing"

	"heartalk-go/internal/repository"
	"heartalk-go/pkg/token"

	"github.com/stretchr/testify/require"
)

func newUserFixture(t *testing.T) UserService {
	t.Helper()
	repo := repository.NewUserRepository(newTestDB(t))
	jwtManager := token.NewJWTManager("test-secret", 1, 7)
	return NewUserService(repo, jwtManager)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newUserFixture(t)

	user, err := svc.Register("alice", "secret123", "小艾")
	require.NoError(t, err)
	require.NotZero(t, user.ID)
	// 密码以哈希形式存储
	require.NotEqual(t, "secret123", user.Password)

	access, refresh, err := svc.Login("alice", "secret123")
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	_, _, err = svc.Login("alice", "wrong")
	require.Error(t, err)
	_, _, err = svc.Login("nobody", "secret123")
	require.Error(t, err)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := newUserFixture(t)

	_, err := svc.Register("bob", "pw123456", "")
	require.NoError(t, err)
	_, err = svc.Register("bob", "other123", "")
	require.Error(t, err)
}

func TestRefreshToken(t *testing.T) {
	svc := newUserFixture(t)

	_, err := svc.Register("carol", "pw123456", "")
	require.NoError(t, err)
	_, refresh, err := svc.Login("carol", "pw123456")
	require.NoError(t, err)

	access, newRefresh, err := svc.RefreshToken(refresh)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, newRefresh)

	_, _, err = svc.RefreshToken("not-a-token")
	require.Error(t, err)
}
