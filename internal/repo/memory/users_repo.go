package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo is an in-process identity store. Each method runs under one lock,
// which gives the same match-and-set guarantees as the Postgres statements.
type UsersRepo struct {
	mu    sync.RWMutex
	items map[string]user.User
	now   func() time.Time
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items: make(map[string]user.User),
		now:   time.Now,
	}
}

func (r *UsersRepo) Create(_ context.Context, in user.NewUser) (user.User, error) {
	now := r.now().UTC()
	u := user.User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(in.Username),
		Email:        user.NormalizeEmail(in.Email),
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		IsVerified:   in.IsVerified,
		IsFirstLogin: in.IsFirstLogin,
		OTPCode:      in.OTPCode,
		OTPExpiresAt: in.OTPExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.Username == u.Username {
			return user.User{}, user.ErrUsernameTaken
		}
		if existing.Email == u.Email {
			return user.User{}, user.ErrEmailTaken
		}
	}

	r.items[u.ID] = u
	return u, nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) find(match func(user.User) bool) (user.User, bool) {
	for _, u := range r.items {
		if match(u) {
			return u, true
		}
	}
	return user.User{}, false
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	email = user.NormalizeEmail(email)

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.find(func(u user.User) bool { return u.Email == email })
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) GetByLogin(ctx context.Context, login string) (user.User, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		return r.GetByEmail(ctx, login)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.find(func(u user.User) bool { return u.Username == login })
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) SetOTP(_ context.Context, id, code string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok || u.IsVerified {
		return user.ErrStateChanged
	}

	u.OTPCode = &code
	u.OTPExpiresAt = &expiresAt
	u.UpdatedAt = r.now().UTC()
	r.items[id] = u
	return nil
}

func (r *UsersRepo) ConsumeOTP(_ context.Context, id, code string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok || u.IsVerified || u.OTPCode == nil || *u.OTPCode != code ||
		u.OTPExpiresAt == nil || !u.OTPExpiresAt.After(now) {
		return user.ErrStateChanged
	}

	u.IsVerified = true
	u.OTPCode = nil
	u.OTPExpiresAt = nil
	u.UpdatedAt = r.now().UTC()
	r.items[id] = u
	return nil
}

func (r *UsersRepo) SetResetToken(_ context.Context, email, token string, expiresAt time.Time) (user.User, error) {
	email = user.NormalizeEmail(email)

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.find(func(u user.User) bool { return u.Email == email })
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	u.ResetToken = &token
	u.ResetTokenExpiresAt = &expiresAt
	u.UpdatedAt = r.now().UTC()
	r.items[u.ID] = u
	return u, nil
}

func (r *UsersRepo) ResetPassword(_ context.Context, token, passwordHash string, now time.Time) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.find(func(u user.User) bool {
		return u.ResetToken != nil && *u.ResetToken == token &&
			u.ResetTokenExpiresAt != nil && u.ResetTokenExpiresAt.After(now)
	})
	if !ok {
		return user.User{}, user.ErrResetTokenInvalid
	}

	u.PasswordHash = passwordHash
	u.ResetToken = nil
	u.ResetTokenExpiresAt = nil
	u.IsFirstLogin = false
	u.UpdatedAt = r.now().UTC()
	r.items[u.ID] = u
	return u, nil
}

func (r *UsersRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}

	u.PasswordHash = passwordHash
	u.IsFirstLogin = false
	u.UpdatedAt = r.now().UTC()
	r.items[id] = u
	return nil
}

func (r *UsersRepo) countAdmins() int {
	n := 0
	for _, u := range r.items {
		if u.Role == user.RoleAdmin {
			n++
		}
	}
	return n
}

func (r *UsersRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}

	if u.Role == user.RoleAdmin && r.countAdmins() <= 1 {
		return user.ErrLastAdmin
	}

	delete(r.items, id)
	return nil
}

func (r *UsersRepo) UpdateRole(_ context.Context, id string, role user.Role) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	if u.Role == user.RoleAdmin && role != user.RoleAdmin && r.countAdmins() <= 1 {
		return user.User{}, user.ErrLastAdmin
	}

	u.Role = role
	u.UpdatedAt = r.now().UTC()
	r.items[id] = u
	return u, nil
}

func (r *UsersRepo) List(_ context.Context, f user.ListFilter) ([]user.User, error) {
	r.mu.RLock()
	all := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		all = append(all, u)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	out := make([]user.User, 0, limit)
	for _, u := range all {
		if f.OnlyID != "" && u.ID != f.OnlyID {
			continue
		}
		if !f.AfterCreatedAt.IsZero() && f.AfterID != "" {
			if u.CreatedAt.Before(f.AfterCreatedAt) ||
				(u.CreatedAt.Equal(f.AfterCreatedAt) && u.ID <= f.AfterID) {
				continue
			}
		}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}

	return out, nil
}

func (r *UsersRepo) Ping(context.Context) error {
	return nil
}
