package user

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("user already exists with this email")
	ErrEmailInUse         = errors.New("email already in use")
	ErrForbidden          = errors.New("cannot act on another user")
	ErrNoChanges          = errors.New("no fields to update")
)

// Repository persists users. FindByEmail is the only read that returns the
// password hash; every other read is projected.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int) (*User, error)
	Create(ctx context.Context, user *User) error
	UpdatePartial(ctx context.Context, id int, changes Changes) (*User, error)
	Delete(ctx context.Context, id int) error
	List(ctx context.Context) ([]User, error)
}

type InMemoryRepository struct {
	mu     sync.RWMutex
	users  []User
	nextID int
	now    func() time.Time
}

var _ Repository = (*InMemoryRepository)(nil)

func NewInMemoryRepository(seed []User) *InMemoryRepository {
	repo := &InMemoryRepository{
		users:  make([]User, 0, len(seed)),
		nextID: 1,
		now:    time.Now,
	}

	maxID := 0
	for _, user := range seed {
		user.Email = NormalizeEmail(user.Email)
		repo.users = append(repo.users, user)
		if user.ID > maxID {
			maxID = user.ID
		}
	}

	repo.nextID = maxID + 1
	return repo
}

func (r *InMemoryRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = NormalizeEmail(email)
	for _, user := range r.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}

	return nil, ErrNotFound
}

func (r *InMemoryRepository) FindByID(ctx context.Context, id int) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	u := sanitizeUser(r.users[i])
	return &u, nil
}

func (r *InMemoryRepository) Create(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user.Email = NormalizeEmail(user.Email)
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return ErrEmailExists
		}
	}

	now := r.now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.nextID++

	r.users = append(r.users, *user)
	return nil
}

func (r *InMemoryRepository) UpdatePartial(ctx context.Context, id int, changes Changes) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	if changes.Email != nil {
		for _, other := range r.users {
			if other.ID != id && other.Email == *changes.Email {
				return nil, ErrEmailExists
			}
		}
	}

	changes.apply(&r.users[i], r.now())
	u := sanitizeUser(r.users[i])
	return &u, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	r.users = append(r.users[:i], r.users[i+1:]...)
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, sanitizeUser(user))
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID > users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (r *InMemoryRepository) indexOf(id int) int {
	for i, user := range r.users {
		if user.ID == id {
			return i
		}
	}
	return -1
}
