package user

import (
	"context"
	"errors"
	"time"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

type TokenIssuer interface {
	Issue(id int, email string) (string, error)
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Address   *string
	Country   *string
	Gender    *string
	Birthday  *time.Time
}

// UpdateInput carries a validated partial update. Password is plaintext here
// and only ever leaves the service hashed.
type UpdateInput struct {
	Email     *string
	Password  *string
	FirstName *string
	LastName  *string
	Address   Field[string]
	Country   Field[string]
	Gender    Field[string]
	Birthday  Field[time.Time]
}

type Service struct {
	repo   Repository
	hasher PasswordHasher
	tokens TokenIssuer
}

func NewService(repo Repository, hasher PasswordHasher, tokens TokenIssuer) *Service {
	return &Service{repo: repo, hasher: hasher, tokens: tokens}
}

// Register creates the account and returns it with a freshly issued token.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, string, error) {
	email := NormalizeEmail(input.Email)

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, "", ErrEmailExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, "", err
	}

	hashed, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, "", err
	}

	user := &User{
		Email:        email,
		PasswordHash: hashed,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Address:      input.Address,
		Country:      input.Country,
		Gender:       input.Gender,
		Birthday:     input.Birthday,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}

	created := sanitizeUser(*user)
	return &created, token, nil
}

// Login answers ErrInvalidCredentials for both an unknown email and a wrong
// password.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

func (s *Service) GetByID(ctx context.Context, id int) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// Update applies a self-service partial update. The actor must be the target.
func (s *Service) Update(ctx context.Context, actorID, targetID int, input UpdateInput) (*User, error) {
	if actorID != targetID {
		return nil, ErrForbidden
	}

	if _, err := s.repo.FindByID(ctx, targetID); err != nil {
		return nil, err
	}

	changes := Changes{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Address:   input.Address,
		Country:   input.Country,
		Gender:    input.Gender,
		Birthday:  input.Birthday,
	}

	if input.Email != nil {
		email := NormalizeEmail(*input.Email)
		other, err := s.repo.FindByEmail(ctx, email)
		if err == nil && other.ID != targetID {
			return nil, ErrEmailInUse
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		changes.Email = &email
	}

	if input.Password != nil {
		hashed, err := s.hasher.Hash(*input.Password)
		if err != nil {
			return nil, err
		}
		changes.PasswordHash = &hashed
	}

	if changes.IsEmpty() {
		return nil, ErrNoChanges
	}

	updated, err := s.repo.UpdatePartial(ctx, targetID, changes)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}
	return updated, nil
}

// Delete removes the actor's own account and returns what was deleted.
func (s *Service) Delete(ctx context.Context, actorID, targetID int) (*User, error) {
	if actorID != targetID {
		return nil, ErrForbidden
	}

	existing, err := s.repo.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Delete(ctx, targetID); err != nil {
		return nil, err
	}
	return existing, nil
}
