package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/store"
)

// accountBook is a UserStore that records password rewrites.
type accountBook struct {
	mu       sync.Mutex
	accounts map[string]domain.UserAccount
	rehashed []string
	failList bool
}

func newAccountBook(seed ...domain.UserAccount) *accountBook {
	b := &accountBook{accounts: make(map[string]domain.UserAccount)}
	for _, u := range seed {
		b.accounts[u.Username] = u
	}
	return b
}

func (b *accountBook) CreateUser(_ context.Context, user domain.UserAccount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.accounts[user.Username]; ok {
		return store.Conflict("user %q already exists", user.Username)
	}
	b.accounts[user.Username] = user
	return nil
}

func (b *accountBook) ListUsers(context.Context) ([]domain.UserAccount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failList {
		return nil, errors.New("disk on fire")
	}
	out := make([]domain.UserAccount, 0, len(b.accounts))
	for _, u := range b.accounts {
		out = append(out, u)
	}
	return out, nil
}

func (b *accountBook) UpdateUserPassword(_ context.Context, username string, password string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.accounts[username]
	u.Password = password
	b.accounts[username] = u
	b.rehashed = append(b.rehashed, username)
	return nil
}

func (b *accountBook) password(username string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[username].Password
}

func plainAccount(username, password, role string) domain.UserAccount {
	return domain.UserAccount{Username: username, Password: password, Role: role, Active: true, CreatedAt: time.Now().UTC()}
}

func TestClearTextSeedPasswordsAreHashedOnStartup(t *testing.T) {
	book := newAccountBook(plainAccount("admin", "admin123", domain.RoleAdmin))
	manager := NewAuthManager(context.Background(), "k", time.Hour, book)

	assert.Equal(t, []string{"admin"}, book.rehashed)
	assert.True(t, isPasswordHash(book.password("admin")))

	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	require.NoError(t, err)
}

func TestLoginHashesAccountsAddedLater(t *testing.T) {
	book := newAccountBook()
	manager := NewAuthManager(context.Background(), "k", time.Hour, book)
	require.NoError(t, book.CreateUser(context.Background(), plainAccount("hana", "till-pass", domain.RoleCashier)))

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "hana", Password: "till-pass"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCashier, resp.Role)
	assert.True(t, strings.HasPrefix(book.password("hana"), "$2"))
}

func TestLoginFailures(t *testing.T) {
	inactive := plainAccount("gone", "secret99", domain.RoleCashier)
	inactive.Active = false
	book := newAccountBook(plainAccount("admin", "admin123", domain.RoleAdmin), inactive)
	manager := NewAuthManager(context.Background(), "k", time.Hour, book)

	for name, req := range map[string]domain.LoginRequest{
		"wrong password": {Username: "admin", Password: "admin124"},
		"unknown user":   {Username: "nobody", Password: "admin123"},
		"blank password": {Username: "admin", Password: "  "},
		"inactive":       {Username: "gone", Password: "secret99"},
	} {
		_, err := manager.Login(context.Background(), req)
		assert.Error(t, err, name)
	}

	book.failList = true
	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	assert.EqualError(t, err, "disk on fire")
}

func TestCreateCashier(t *testing.T) {
	book := newAccountBook()
	manager := NewAuthManager(context.Background(), "k", time.Hour, book)
	ctx := context.Background()

	cashier, err := manager.CreateCashier(ctx, domain.CashierCreateRequest{Username: "Selam", Password: "pass1234"})
	require.NoError(t, err)
	assert.Equal(t, "selam", cashier.Username)
	assert.Equal(t, domain.RoleCashier, cashier.Role)
	assert.NotEqual(t, "pass1234", book.password("selam"))

	_, err = manager.Login(ctx, domain.LoginRequest{Username: "selam", Password: "pass1234"})
	require.NoError(t, err)

	rejected := map[string]domain.CashierCreateRequest{
		"duplicate":       {Username: "SELAM", Password: "pass1234"},
		"short username":  {Username: "ab", Password: "pass1234"},
		"space in name":   {Username: "sel am", Password: "pass1234"},
		"short password":  {Username: "dawit", Password: "12345"},
		"padded password": {Username: "dawit", Password: "  12  "},
	}
	for name, req := range rejected {
		_, err := manager.CreateCashier(ctx, req)
		assert.Error(t, err, name)
	}
	_, err = manager.CreateCashier(ctx, rejected["duplicate"])
	assert.ErrorIs(t, err, store.ErrConflict)

	list, err := manager.ListCashiers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "selam", list[0].Username)
}

func TestListCashiersSkipsAdminsAndSorts(t *testing.T) {
	book := newAccountBook(
		plainAccount("zeni", "pw123456", domain.RoleCashier),
		plainAccount("owner", "pw123456", domain.RoleAdmin),
		plainAccount("abebe", "pw123456", domain.RoleCashier),
	)
	manager := NewAuthManager(context.Background(), "k", time.Hour, book)

	list, err := manager.ListCashiers(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "abebe", list[0].Username)
	assert.Equal(t, "zeni", list[1].Username)
}

func TestEnsureAdminOnlySeedsOnce(t *testing.T) {
	manager := NewAuthManager(context.Background(), "k", time.Hour, newAccountBook())
	ctx := context.Background()

	created, err := manager.EnsureAdmin(ctx, "", "whatever")
	require.NoError(t, err)
	assert.False(t, created, "blank username is ignored")

	created, err = manager.EnsureAdmin(ctx, "Owner", "correct-horse-battery")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = manager.EnsureAdmin(ctx, "second", "another-password")
	require.NoError(t, err)
	assert.False(t, created)

	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "owner", Password: "correct-horse-battery"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, resp.Role)
}

func TestParseToken(t *testing.T) {
	book := newAccountBook(plainAccount("admin", "admin-password", domain.RoleAdmin))
	issuer := NewAuthManager(context.Background(), "secret-one", time.Hour, book)
	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin-password"})
	require.NoError(t, err)

	actor, err := issuer.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{Username: "admin", Role: domain.RoleAdmin}, actor)

	other := NewAuthManager(context.Background(), "secret-two", time.Hour, book)
	_, err = other.ParseToken(resp.AccessToken)
	assert.Error(t, err, "foreign secret")

	expired, err := issuer.issue("admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = issuer.ParseToken(expired)
	assert.Error(t, err, "expired")

	oddRole, err := issuer.issue("admin", "owner", time.Now().Add(time.Minute))
	require.NoError(t, err)
	_, err = issuer.ParseToken(oddRole)
	assert.Error(t, err, "unknown role")

	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, tokenClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Issuer: tokenIssuer, Subject: "admin", ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             domain.RoleAdmin,
	}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.ParseToken(unsigned)
	assert.Error(t, err, "alg none")
}
