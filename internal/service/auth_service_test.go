package service

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-auth-service/internal/kvstore"
	"go-auth-service/internal/model"
	"go-auth-service/internal/password"
	"go-auth-service/internal/ratelimit"
	"go-auth-service/internal/repository"
	"go-auth-service/internal/token"
)

const testSecret = "service-test-secret-service-test-secret"

type memoryDirectory struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{users: map[string]model.User{}}
}

func (d *memoryDirectory) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, err := d.FindByEmail(context.Background(), email)
	return err == nil, nil
}

func (d *memoryDirectory) Create(_ context.Context, u model.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return model.ErrUserAlreadyExists
		}
	}
	d.users[u.ID] = u
	return nil
}

func (d *memoryDirectory) FindByEmail(_ context.Context, email string) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (d *memoryDirectory) FindByID(_ context.Context, id string) (model.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (d *memoryDirectory) delete(id string) {
	d.mu.Lock()
	delete(d.users, id)
	d.mu.Unlock()
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	service *AuthService
	users   *memoryDirectory
	codec   *token.Codec
	clock   *testClock
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := kvstore.NewMemory().WithClock(clock.Now)

	codec, err := token.NewCodec(testSecret)
	require.NoError(t, err)
	codec = codec.WithClock(clock.Now)

	users := newMemoryDirectory()
	svc, err := NewAuthService(AuthServiceDeps{
		Users:      users,
		Hasher:     password.NewBcrypt(bcrypt.MinCost),
		Codec:      codec,
		Refresh:    repository.NewTokenRepository(store, 24*time.Hour),
		Limiter:    ratelimit.NewLoginLimiter(store),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	svc.now = clock.Now

	return testEnv{service: svc, users: users, codec: codec, clock: clock}
}

func (e testEnv) subjectOf(t *testing.T, accessToken string) string {
	t.Helper()
	subject, err := e.codec.Verify(accessToken, token.KindAccess)
	require.NoError(t, err)
	return subject
}

func TestNewAuthService_RequiresDeps(t *testing.T) {
	_, err := NewAuthService(AuthServiceDeps{})
	assert.Error(t, err)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", view.Email)
	assert.NotEmpty(t, view.ID)

	_, err = env.service.Signup(ctx, "a@x.com", "pw2")
	assert.ErrorIs(t, err, model.ErrUserAlreadyExists)

	_, err = env.service.Signup(ctx, "A@X.com", "pw3")
	assert.ErrorIs(t, err, model.ErrUserAlreadyExists)
}

func TestSignup_StoresHashNotSecret(t *testing.T) {
	env := newTestEnv(t)

	view, err := env.service.Signup(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)

	stored, err := env.users.FindByID(context.Background(), view.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pw1")))
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	_, err = env.service.Login(ctx, "nobody@x.com", "pw1", "1.2.3.4")
	assert.ErrorIs(t, err, model.ErrUserNotFound)

	_, err = env.service.Login(ctx, "a@x.com", "wrong", "1.2.3.4")
	assert.ErrorIs(t, err, model.ErrInvalidPassword)
}

func TestLogin_IssuesPairBoundToAccountID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	pair, err := env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.Equal(t, view.ID, env.subjectOf(t, pair.AccessToken))

	subject, err := env.codec.Verify(pair.RefreshToken, token.KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, view.ID, subject)

	subject, err = env.service.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, view.ID, subject)

	_, err = env.service.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestLogin_RateLimitPrecedesCredentialCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	for i := 0; i < ratelimit.MaxLoginAttempts; i++ {
		_, err := env.service.Login(ctx, "a@x.com", "wrong", "1.2.3.4")
		require.ErrorIs(t, err, model.ErrInvalidPassword)
	}

	_, err = env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	assert.ErrorIs(t, err, model.ErrRateLimited)

	_, err = env.service.Login(ctx, "a@x.com", "pw1", "5.6.7.8")
	assert.NoError(t, err)

	env.clock.Advance(61 * time.Second)

	_, err = env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	assert.NoError(t, err)
}

func TestLogin_SuccessfulAttemptsAlsoCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	for i := 0; i < ratelimit.MaxLoginAttempts; i++ {
		_, err := env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
		require.NoError(t, err)
	}

	_, err = env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	assert.ErrorIs(t, err, model.ErrRateLimited)
}

func TestRefresh_RotatesTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	first, err := env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	require.NoError(t, err)

	second, err := env.service.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = env.service.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, model.ErrRefreshTokenInvalid)

	third, err := env.service.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, second.RefreshToken, third.RefreshToken)
}

func TestRefresh_NewLoginInvalidatesOlderRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	first, err := env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	require.NoError(t, err)
	_, err = env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	require.NoError(t, err)

	_, err = env.service.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, model.ErrRefreshTokenInvalid)
}

func TestRefresh_AfterLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	pair, err := env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	require.NoError(t, err)

	subject := env.subjectOf(t, pair.AccessToken)
	require.NoError(t, env.service.Logout(ctx, subject))
	require.NoError(t, env.service.Logout(ctx, subject))

	_, err = env.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, model.ErrRefreshTokenInvalid)

	// Logout does not revoke the access token.
	assert.Equal(t, subject, env.subjectOf(t, pair.AccessToken))
}

func TestRefresh_RejectsAccessTokenAndGarbage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	pair, err := env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	require.NoError(t, err)

	_, err = env.service.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)

	_, err = env.service.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	pair, err := env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	require.NoError(t, err)

	env.clock.Advance(25 * time.Hour)

	_, err = env.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestRefresh_DeletedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	pair, err := env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	require.NoError(t, err)

	env.users.delete(view.ID)

	_, err = env.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, model.ErrUserNotFound)

	_, err = env.service.Me(ctx, view.ID)
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}

type failingRemoveStore struct {
	RefreshTokenStore
}

func (failingRemoveStore) Remove(context.Context, string) error {
	return kvstore.ErrUnavailable
}

func TestRefresh_DeletedAccountLogsFailedCleanup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var logs bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	view, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	pair, err := env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	require.NoError(t, err)

	env.users.delete(view.ID)
	env.service.refresh = failingRemoveStore{RefreshTokenStore: env.service.refresh}

	_, err = env.service.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, model.ErrUserNotFound)
	assert.Contains(t, logs.String(), "refresh record of deleted account not removed")
	assert.Contains(t, logs.String(), "user_id="+view.ID)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	got, err := env.service.Me(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, view, got)
}

func TestRefresh_ConcurrentRotationLeavesOneValidToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Signup(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	pair, err := env.service.Login(ctx, "a@x.com", "pw1", "1.2.3.4")
	require.NoError(t, err)

	results := make([]model.TokenPair, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = env.service.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	valid := 0
	for _, r := range results {
		if r.RefreshToken == "" {
			continue
		}
		if _, err := env.service.Refresh(ctx, r.RefreshToken); err == nil {
			valid++
		}
	}
	assert.Equal(t, 1, valid)
}
