package handlers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bookhaven/apiserver/internal/auth"
	"github.com/bookhaven/apiserver/internal/services"
	"github.com/bookhaven/apiserver/internal/store"
	"github.com/bookhaven/apiserver/types"
)

// memUserRepo is a minimal in-memory services.UserRepository for
// routing tests.
type memUserRepo struct {
	seq   int
	users map[string]types.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]types.User)}
}

func (r *memUserRepo) Insert(_ context.Context, user types.User) (types.User, error) {
	for _, u := range r.users {
		if !u.DeletedAt.Valid && u.Username == user.Username {
			return types.User{}, store.ErrConflict
		}
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	user, ok := r.users[id]
	if !ok || user.DeletedAt.Valid {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	for _, user := range r.users {
		if !user.DeletedAt.Valid && user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if !user.DeletedAt.Valid && user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) GetByResetToken(_ context.Context, token string) (types.User, error) {
	for _, user := range r.users {
		if !user.DeletedAt.Valid && user.ResetToken.Valid && user.ResetToken.String == token {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) List(_ context.Context, filter store.UserFilter, offset, limit int) ([]types.User, error) {
	var all []types.User
	for _, user := range r.users {
		if user.DeletedAt.Valid {
			continue
		}
		if filter.Username != "" && user.Username != filter.Username {
			continue
		}
		if filter.Email != "" && user.Email != filter.Email {
			continue
		}
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		all = append(all, user)
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *memUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	existing, ok := r.users[user.ID]
	if !ok || existing.DeletedAt.Valid {
		return types.User{}, store.ErrNotFound
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	user, ok := r.users[id]
	if !ok || user.DeletedAt.Valid {
		return store.ErrNotFound
	}
	user.DeletedAt.Time = at
	user.DeletedAt.Valid = true
	r.users[id] = user
	return nil
}

// seed inserts a user with a real bcrypt hash, bypassing the service.
func (r *memUserRepo) seed(t *testing.T, username, password, role string) types.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	r.seq++
	user := types.User{
		ID:           username + "-id",
		Username:     username,
		Email:        username + "@x.com",
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	r.users[user.ID] = user
	return user
}

type testEnv struct {
	router *chi.Mux
	repo   *memUserRepo
	issuer *auth.TokenIssuer
	svc    *services.UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := newMemUserRepo()
	hasher := auth.NewPasswordHasherWithCost(bcrypt.MinCost)
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	svc := services.NewUserService(repo, hasher, issuer, nil, slog.Default())

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, svc, issuer)
	})
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, svc, RequireAuth(issuer))
	})

	return &testEnv{router: router, repo: repo, issuer: issuer, svc: svc}
}

// login returns a valid session token for a seeded user.
func (e *testEnv) login(t *testing.T, user types.User) string {
	t.Helper()

	token, err := e.issuer.Issue(user.ID, user.Username)
	require.NoError(t, err)
	return token
}
