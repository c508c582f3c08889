package user

import (
	"strings"
	"time"
)

// User is the persisted account. PasswordHash never leaves the process: it is
// excluded from JSON and from every outward-facing query.
type User struct {
	ID           int        `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string     `gorm:"column:password_hash;size:255;not null" json:"-"`
	FirstName    string     `gorm:"size:255;not null" json:"firstName"`
	LastName     string     `gorm:"size:255;not null" json:"lastName"`
	Address      *string    `json:"address"`
	Country      *string    `gorm:"size:255" json:"country"`
	Gender       *string    `gorm:"size:16" json:"gender"`
	Birthday     *time.Time `gorm:"type:date" json:"birthday"`
	CreatedAt    time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (User) TableName() string { return "users" }

var Genders = []string{"male", "female", "other"}

// NormalizeEmail is applied before every store and every comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sanitizeUser(user User) User {
	user.PasswordHash = ""
	return user
}

// Changes is a partial update. Required columns use plain pointers (nil means
// untouched), nullable columns use Field so an explicit null can clear them.
type Changes struct {
	Email        *string
	PasswordHash *string
	FirstName    *string
	LastName     *string
	Address      Field[string]
	Country      Field[string]
	Gender       Field[string]
	Birthday     Field[time.Time]
}

func (c Changes) IsEmpty() bool {
	return c.Email == nil && c.PasswordHash == nil && c.FirstName == nil && c.LastName == nil &&
		!c.Address.Present && !c.Country.Present && !c.Gender.Present && !c.Birthday.Present
}

// Columns maps the change set to column values, always refreshing updated_at.
func (c Changes) Columns(now time.Time) map[string]any {
	cols := map[string]any{"updated_at": now}
	if c.Email != nil {
		cols["email"] = *c.Email
	}
	if c.PasswordHash != nil {
		cols["password_hash"] = *c.PasswordHash
	}
	if c.FirstName != nil {
		cols["first_name"] = *c.FirstName
	}
	if c.LastName != nil {
		cols["last_name"] = *c.LastName
	}
	if c.Address.Present {
		cols["address"] = c.Address.Value
	}
	if c.Country.Present {
		cols["country"] = c.Country.Value
	}
	if c.Gender.Present {
		cols["gender"] = c.Gender.Value
	}
	if c.Birthday.Present {
		cols["birthday"] = c.Birthday.Value
	}
	return cols
}

func (c Changes) apply(u *User, now time.Time) {
	if c.Email != nil {
		u.Email = *c.Email
	}
	if c.PasswordHash != nil {
		u.PasswordHash = *c.PasswordHash
	}
	if c.FirstName != nil {
		u.FirstName = *c.FirstName
	}
	if c.LastName != nil {
		u.LastName = *c.LastName
	}
	if c.Address.Present {
		u.Address = c.Address.Value
	}
	if c.Country.Present {
		u.Country = c.Country.Value
	}
	if c.Gender.Present {
		u.Gender = c.Gender.Value
	}
	if c.Birthday.Present {
		u.Birthday = c.Birthday.Value
	}
	u.UpdatedAt = now
}
