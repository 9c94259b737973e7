package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"github.com/iliyamo/pixvault/internal/kv"
	"github.com/iliyamo/pixvault/internal/model"
)

// DefaultMinPasswordLength applies when AccountRepo.MinPasswordLen is unset.
const DefaultMinPasswordLength = 6

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// PasswordHasher is the one-way credential primitive. Hash must be
// non-deterministic (salted); Verify must run in time independent of where
// the inputs differ.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// AccountRepo owns account records and the username/email uniqueness
// indices. Uniqueness is checked first and then claimed with a conditional
// put on each index key, so a concurrent registration that slips past the
// checks loses at the claim instead of silently overwriting the index.
type AccountRepo struct {
	Store          kv.Store
	Hasher         PasswordHasher
	MinPasswordLen int
	Now            func() time.Time

	dummyOnce   sync.Once
	dummyDigest string
}

// NewAccountRepo returns an AccountRepo using the wall clock.
func NewAccountRepo(s kv.Store, h PasswordHasher, minPasswordLen int) *AccountRepo {
	return &AccountRepo{Store: s, Hasher: h, MinPasswordLen: minPasswordLen, Now: time.Now}
}

func (r *AccountRepo) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

type registration struct {
	Username string
	Email    string
	Password string
}

func (reg *registration) validate(minLen int) error {
	if err := validation.ValidateStruct(reg,
		validation.Field(&reg.Username, validation.Required),
		validation.Field(&reg.Email, validation.Required),
		validation.Field(&reg.Password, validation.Required),
	); err != nil {
		return fmt.Errorf("%w (%v)", ErrMissingField, err)
	}
	if err := validation.Validate(reg.Password, validation.RuneLength(minLen, 0)); err != nil {
		return fmt.Errorf("%w: at least %d characters required", ErrWeakPassword, minLen)
	}
	if len(reg.Password) > MaxPasswordBytes {
		return fmt.Errorf("%w: at most %d bytes allowed", ErrValidation, MaxPasswordBytes)
	}
	if err := validation.ValidateStruct(reg,
		validation.Field(&reg.Username, validation.RuneLength(3, 32), validation.Match(usernamePattern)),
		validation.Field(&reg.Email, validation.RuneLength(3, 254), is.Email),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Register creates an account. Field and password checks run before any
// store access; the email index is checked before the username index.
func (r *AccountRepo) Register(ctx context.Context, username, email, password string) (*model.Account, error) {
	reg := registration{
		Username: strings.TrimSpace(username),
		Email:    strings.TrimSpace(email),
		Password: password,
	}
	minLen := r.MinPasswordLen
	if minLen <= 0 {
		minLen = DefaultMinPasswordLength
	}
	if err := reg.validate(minLen); err != nil {
		return nil, err
	}

	emailKey := emailIndexKey(reg.Email)
	userKey := usernameIndexKey(reg.Username)

	if taken, err := r.exists(ctx, emailKey); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrDuplicateEmail
	}
	if taken, err := r.exists(ctx, userKey); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrDuplicateUsername
	}

	digest, err := r.Hasher.Hash(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acct := &model.Account{
		ID:               uuid.NewString(),
		Username:         reg.Username,
		Email:            reg.Email,
		CredentialDigest: digest,
		CreatedAt:        r.now(),
	}
	if err := kv.SetJSON(ctx, r.Store, accountKey(acct.ID), acct); err != nil {
		return nil, fmt.Errorf("write account: %w", err)
	}

	ok, err := r.Store.SetNX(ctx, emailKey, []byte(acct.ID))
	if err != nil || !ok {
		r.rollback(ctx, accountKey(acct.ID))
		if err != nil {
			return nil, fmt.Errorf("claim email: %w", err)
		}
		return nil, ErrDuplicateEmail
	}
	ok, err = r.Store.SetNX(ctx, userKey, []byte(acct.ID))
	if err != nil || !ok {
		r.rollback(ctx, emailKey, accountKey(acct.ID))
		if err != nil {
			return nil, fmt.Errorf("claim username: %w", err)
		}
		return nil, ErrDuplicateUsername
	}
	return acct, nil
}

// Authenticate resolves email to an account and checks password. Unknown
// emails still pay for one digest comparison.
func (r *AccountRepo) Authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	id, err := r.Store.Get(ctx, emailIndexKey(email))
	if errors.Is(err, kv.ErrNotFound) {
		r.burnVerify(password)
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	acct, err := r.GetByID(ctx, string(id))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			r.burnVerify(password)
		}
		return nil, err
	}
	if !r.Hasher.Verify(password, acct.CredentialDigest) {
		return nil, ErrBadCredential
	}
	return acct, nil
}

// GetByID loads an account record.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*model.Account, error) {
	if id == "" {
		return nil, ErrAccountNotFound
	}
	var acct model.Account
	if err := kv.GetJSON(ctx, r.Store, accountKey(id), &acct); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

// TouchLogin stamps lastLoginAt. It is a plain read-modify-write; a
// concurrent touch may win, which only affects the timestamp.
func (r *AccountRepo) TouchLogin(ctx context.Context, id string) error {
	acct, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := r.now()
	acct.LastLoginAt = &now
	return kv.SetJSON(ctx, r.Store, accountKey(id), acct)
}

func (r *AccountRepo) exists(ctx context.Context, key string) (bool, error) {
	_, err := r.Store.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, kv.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// rollback undoes a partial registration. Failures are ignored: the keys it
// leaves behind are unreachable through either index.
func (r *AccountRepo) rollback(ctx context.Context, keys ...string) {
	for _, k := range keys {
		_ = r.Store.Delete(ctx, k)
	}
}

func (r *AccountRepo) burnVerify(password string) {
	r.dummyOnce.Do(func() {
		r.dummyDigest, _ = r.Hasher.Hash(uuid.NewString())
	})
	if r.dummyDigest != "" {
		r.Hasher.Verify(password, r.dummyDigest)
	}
}
