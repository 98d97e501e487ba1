package httpapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/store"
)

const tokenIssuer = "mobile-pos"

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInvalidToken       = errors.New("invalid or expired token")
)

// UserStore is the slice of the repository that owns login accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager issues HS256 access tokens for accounts kept in a UserStore.
// Accounts are read through on every call so that users added by another
// process (posctl, a second server) can log in without a restart.
type AuthManager struct {
	secret []byte
	ttl    time.Duration
	users  UserStore

	// createMu serialises the check-then-insert in addUser.
	createMu sync.Mutex
}

type tokenClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(ctx context.Context, secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	a := &AuthManager{secret: []byte(secret), ttl: tokenTTL, users: users}
	a.upgradePlainPasswords(ctx)
	return a
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// accounts returns every stored account keyed by normalised username.
func (a *AuthManager) accounts(ctx context.Context) (map[string]domain.UserAccount, error) {
	out := make(map[string]domain.UserAccount)
	if a.users == nil {
		return out, nil
	}
	list, err := a.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range list {
		if name := normalizeUsername(u.Username); name != "" {
			u.Username = name
			out[name] = u
		}
	}
	return out, nil
}

func (a *AuthManager) lookup(ctx context.Context, username string) (domain.UserAccount, bool, error) {
	all, err := a.accounts(ctx)
	if err != nil {
		return domain.UserAccount{}, false, err
	}
	u, ok := all[username]
	return u, ok, nil
}

// upgradePlainPasswords rehashes accounts seeded with a clear-text password.
func (a *AuthManager) upgradePlainPasswords(ctx context.Context) {
	all, err := a.accounts(ctx)
	if err != nil {
		return
	}
	for name, u := range all {
		if isPasswordHash(u.Password) || u.Password == "" {
			continue
		}
		if hashed, err := hashPassword(u.Password); err == nil {
			_ = a.users.UpdateUserPassword(ctx, name, hashed)
		}
	}
}

// EnsureAdmin creates the first admin account. It reports false and does
// nothing when credentials are missing or an admin already exists.
func (a *AuthManager) EnsureAdmin(ctx context.Context, username string, password string) (bool, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return false, nil
	}
	all, err := a.accounts(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range all {
		if u.Role == domain.RoleAdmin {
			return false, nil
		}
	}
	if _, err := a.addUser(ctx, username, password, domain.RoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := normalizeUsername(req.Username)
	account, ok, err := a.lookup(ctx, username)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if !ok {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	stored := account.Password
	if !isPasswordHash(stored) {
		// Accounts written after NewAuthManager ran may still be in clear text.
		if stored == "" || stored != req.Password {
			return domain.LoginResponse{}, errInvalidCredentials
		}
		if hashed, err := hashPassword(stored); err == nil {
			_ = a.users.UpdateUserPassword(ctx, username, hashed)
		}
	} else if !verifyPassword(stored, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !account.Active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.ttl)
	token, err := a.issue(username, account.Role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        account.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) issue(username string, role string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken verifies signature, issuer and expiry and returns the caller.
func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	var claims tokenClaims
	_, err := jwtlib.ParseWithClaims(raw, &claims, func(*jwtlib.Token) (any, error) {
		return a.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Actor{}, errInvalidToken
	}
	if claims.Subject == "" {
		return domain.Actor{}, errInvalidToken
	}
	if claims.Role != domain.RoleAdmin && claims.Role != domain.RoleCashier {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (a *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	username := normalizeUsername(req.Username)
	switch {
	case len(username) < 4:
		return domain.CashierUser{}, store.Invalid("username", "must be at least 4 characters")
	case strings.ContainsAny(username, " \t\r\n"):
		return domain.CashierUser{}, store.Invalid("username", "must not contain spaces")
	case len(strings.TrimSpace(req.Password)) < 6:
		return domain.CashierUser{}, store.Invalid("password", "must be at least 6 characters")
	}

	account, err := a.addUser(ctx, username, req.Password, domain.RoleCashier)
	if err != nil {
		return domain.CashierUser{}, err
	}
	return cashierView(account), nil
}

func (a *AuthManager) addUser(ctx context.Context, username string, password string, role string) (domain.UserAccount, error) {
	if a.users == nil {
		return domain.UserAccount{}, errors.New("no user store configured")
	}
	a.createMu.Lock()
	defer a.createMu.Unlock()

	if _, exists, err := a.lookup(ctx, username); err != nil {
		return domain.UserAccount{}, err
	} else if exists {
		return domain.UserAccount{}, store.Conflict("username %q already exists", username)
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("hash password: %w", err)
	}
	account := domain.UserAccount{
		Username:  username,
		Password:  hashed,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.users.CreateUser(ctx, account); err != nil {
		return domain.UserAccount{}, err
	}
	return account, nil
}

// ListCashiers returns cashier accounts sorted by username.
func (a *AuthManager) ListCashiers(ctx context.Context) ([]domain.CashierUser, error) {
	all, err := a.accounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CashierUser, 0, len(all))
	for _, u := range all {
		if u.Role == domain.RoleCashier {
			out = append(out, cashierView(u))
		}
	}
	slices.SortFunc(out, func(x, y domain.CashierUser) int {
		return strings.Compare(x.Username, y.Username)
	})
	return out, nil
}

func cashierView(u domain.UserAccount) domain.CashierUser {
	return domain.CashierUser{
		Username:  u.Username,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

func verifyPassword(hash string, input string) bool {
	if strings.TrimSpace(input) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(out), err
}

func isPasswordHash(value string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
