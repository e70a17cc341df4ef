package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Identity is an authenticated principal.
type Identity struct {
	ID    string
	Name  string
	Email string
	Role  string
}

// Admin is the single configured administrator account.
type Admin struct {
	identity Identity
	hash     []byte
}

// NewAdmin builds the admin account. passwordHash, a bcrypt hash, wins over
// the plain password when both are given.
func NewAdmin(email, password, passwordHash string) (*Admin, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("admin email required")
	}
	hash := []byte(passwordHash)
	if passwordHash == "" {
		if password == "" {
			return nil, errors.New("admin password or password hash required")
		}
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
	} else if _, err := bcrypt.Cost(hash); err != nil {
		return nil, err
	}
	return &Admin{
		identity: Identity{ID: "admin-1", Name: "Admin User", Email: email, Role: RoleAdmin},
		hash:     hash,
	}, nil
}

// Authenticate checks the credential pair and returns the admin identity.
func (a *Admin) Authenticate(email, password string) (Identity, error) {
	emailOK := subtle.ConstantTimeCompare(
		[]byte(strings.ToLower(strings.TrimSpace(email))),
		[]byte(strings.ToLower(a.identity.Email)),
	) == 1
	passOK := bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	if !emailOK || !passOK {
		return Identity{}, ErrInvalidCredentials
	}
	return a.identity, nil
}
