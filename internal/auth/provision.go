package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/metrics"
	"github.com/david/pimm/internal/models"
	"github.com/david/pimm/internal/names"
)

// AccountStore is the storage the provisioner needs.
type AccountStore interface {
	FindUserByName(ctx context.Context, name string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

// Provisioner finds and creates the accounts of principal investigators.
type Provisioner struct {
	store          AccountStore
	emailDomain    string
	passwordLength int
	log            *zap.Logger
}

func NewProvisioner(store AccountStore, emailDomain string, passwordLength int, log *zap.Logger) *Provisioner {
	return &Provisioner{
		store:          store,
		emailDomain:    strings.TrimPrefix(strings.TrimSpace(emailDomain), "@"),
		passwordLength: passwordLength,
		log:            log,
	}
}

// Find looks a user up by exact username.
func (p *Provisioner) Find(ctx context.Context, name string) (*models.User, error) {
	return p.store.FindUserByName(ctx, name)
}

// SynthesizeEmail builds first.last@domain for a normalized name.
func (p *Provisioner) SynthesizeEmail(name string) string {
	local := names.EmailLocalPart(name)
	if local == "" {
		return ""
	}
	return local + "@" + p.emailDomain
}

// Ensure returns the user named name, creating it with a random password
// when missing. created reports whether a new account was made.
func (p *Provisioner) Ensure(ctx context.Context, name, email, source string) (user *models.User, created bool, err error) {
	if strings.TrimSpace(name) == "" {
		return nil, false, errors.New("user name is empty")
	}

	existing, err := p.store.FindUserByName(ctx, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, false, err
	}

	password, err := GeneratePassword(p.passwordLength)
	if err != nil {
		return nil, false, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, fmt.Errorf("hashing failed: %w", err)
	}

	if strings.TrimSpace(email) == "" {
		email = p.SynthesizeEmail(name)
	}
	u := &models.User{Name: name, Email: strings.TrimSpace(email), PasswordHash: string(hash), Active: true}
	if err := p.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, db.ErrConflict) {
			if again, findErr := p.store.FindUserByName(ctx, name); findErr == nil {
				return again, false, nil
			}
		}
		return nil, false, err
	}

	metrics.UsersCreated.WithLabelValues(source).Inc()
	p.log.Info("created account",
		zap.Int64("user_id", u.ID),
		zap.String("name", u.Name),
		zap.String("email", u.Email),
		zap.String("source", source),
	)
	return u, true, nil
}
