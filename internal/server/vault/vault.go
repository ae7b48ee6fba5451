// Package vault keeps the encrypted record of identities allowed to use the
// wiki. The whole collection is sealed as one blob on disk, decrypted once
// at startup and rewritten atomically whenever a record is added.
package vault

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	"github.com/dmitrijs2005/gitwiki/internal/cryptox"
	"github.com/dmitrijs2005/gitwiki/internal/filex"
	"github.com/dmitrijs2005/gitwiki/internal/logging"
)

// Observer is notified with a snapshot of all records after a successful Add.
type Observer func(ctx context.Context, records []Record)

// Vault is an unlocked credential vault. It is safe for concurrent use.
type Vault struct {
	mu        sync.RWMutex
	path      string
	secret    []byte
	records   []Record
	byURL     map[string]int
	byEmail   map[string]int
	observers []Observer

	now    func() time.Time
	logger logging.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(v *Vault) { v.logger = l.With("module", "vault") }
}

func newVault(path string, secret []byte, opts ...Option) *Vault {
	v := &Vault{
		path:    path,
		secret:  secret,
		byURL:   make(map[string]int),
		byEmail: make(map[string]int),
		now:     time.Now,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Unlock reads and decrypts the vault at path. The secret slice is retained
// for re-sealing on Add and must stay valid for the vault's lifetime.
//
// Errors: ErrNotFound when the file does not exist, ErrDecryptFailed when
// the secret does not open it, ErrCorrupt when it cannot be parsed or holds
// invalid records.
func Unlock(path string, secret []byte, opts ...Option) (*Vault, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Kind: KindNotFound, Path: path}
		}
		return nil, &Error{Kind: KindCorrupt, Path: path, Err: err}
	}

	var records []Record
	if err := cryptox.Open(data, secret, &records); err != nil {
		if errors.Is(err, cryptox.ErrDecrypt) {
			return nil, &Error{Kind: KindDecryptFailed, Path: path}
		}
		return nil, &Error{Kind: KindCorrupt, Path: path, Err: err}
	}

	v := newVault(path, secret, opts...)
	for _, r := range records {
		if err := r.Identity.Validate(); err != nil {
			return nil, newError(KindCorrupt, path, "record %q: %w", r.ProfileURL, err)
		}
		if !r.Role.Valid() {
			return nil, newError(KindCorrupt, path, "record %q: invalid role %q", r.ProfileURL, r.Role)
		}
		if _, dup := v.byURL[r.ProfileURL]; dup {
			return nil, newError(KindCorrupt, path, "duplicate profile url %q", r.ProfileURL)
		}
		v.insert(r)
	}
	return v, nil
}

// Open unlocks the vault at path, bootstrapping it when the file does not
// exist: a new vault is sealed holding exactly one administrator built from
// seed. This is the only implicit way an identity is ever created.
func Open(ctx context.Context, path string, secret []byte, seed Identity, opts ...Option) (*Vault, error) {
	v, err := Unlock(path, secret, opts...)
	if err == nil {
		v.logger.Info(ctx, "vault unlocked", "path", path, "records", v.Len())
		return v, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := seed.Validate(); err != nil {
		return nil, newError(KindNotFound, path, "cannot bootstrap, seed identity: %w", err)
	}
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, newError(KindNotFound, path, "cannot bootstrap: %w", err)
	}

	v = newVault(path, secret, opts...)
	v.insert(Record{Identity: seed, Role: RoleAdministrator, CreatedAt: v.now().UTC()})
	if err := v.persist(); err != nil {
		return nil, err
	}

	v.logger.Info(ctx, "vault bootstrapped", "path", path, "administrator", seed.ProfileURL)
	return v, nil
}

// Lookup returns the record for profileURL. The URL is normalized first.
func (v *Vault) Lookup(profileURL string) (Record, bool) {
	key, err := common.NormalizeProfileURL(profileURL)
	if err != nil {
		return Record{}, false
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	i, ok := v.byURL[key]
	if !ok {
		return Record{}, false
	}
	return v.records[i], true
}

// LookupEmail returns the first record with the given email, compared
// case-insensitively.
func (v *Vault) LookupEmail(email string) (Record, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	i, ok := v.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return Record{}, false
	}
	return v.records[i], true
}

// Add appends a new identity and re-persists the vault. It fails with
// ErrAlreadyExists when the profile URL is taken. On a persistence failure
// the in-memory state is left unchanged.
func (v *Vault) Add(ctx context.Context, identity Identity, role Role) (Record, error) {
	if err := identity.Validate(); err != nil {
		return Record{}, err
	}
	if !role.Valid() {
		return Record{}, errors.New("vault: invalid role " + string(role))
	}

	v.mu.Lock()
	if _, dup := v.byURL[identity.ProfileURL]; dup {
		v.mu.Unlock()
		return Record{}, &Error{Kind: KindAlreadyExists, Path: v.path, Err: errors.New(identity.ProfileURL)}
	}

	rec := Record{Identity: identity, Role: role, CreatedAt: v.now().UTC()}
	v.insert(rec)
	if err := v.persist(); err != nil {
		v.removeLast()
		v.mu.Unlock()
		return Record{}, err
	}
	snapshot := v.snapshotLocked()
	observers := append([]Observer(nil), v.observers...)
	v.mu.Unlock()

	v.logger.Info(ctx, "identity added", "profile_url", rec.ProfileURL, "role", rec.Role)
	for _, o := range observers {
		o(ctx, snapshot)
	}
	return rec, nil
}

// Records returns a copy of all records in insertion order.
func (v *Vault) Records() []Record {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshotLocked()
}

// Len returns the number of records.
func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}

// OnChange registers an observer for successful Adds.
func (v *Vault) OnChange(o Observer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observers = append(v.observers, o)
}

// Path returns the vault file location.
func (v *Vault) Path() string {
	return v.path
}

func (v *Vault) insert(r Record) {
	v.records = append(v.records, r)
	i := len(v.records) - 1
	v.byURL[r.ProfileURL] = i
	if r.Email != "" {
		key := strings.ToLower(r.Email)
		if _, taken := v.byEmail[key]; !taken {
			v.byEmail[key] = i
		}
	}
}

func (v *Vault) removeLast() {
	i := len(v.records) - 1
	r := v.records[i]
	v.records = v.records[:i]
	delete(v.byURL, r.ProfileURL)
	key := strings.ToLower(r.Email)
	if idx, ok := v.byEmail[key]; ok && idx == i {
		delete(v.byEmail, key)
	}
}

func (v *Vault) snapshotLocked() []Record {
	out := make([]Record, len(v.records))
	copy(out, v.records)
	return out
}

// persist seals all records and atomically replaces the vault file.
// Callers hold the write lock.
func (v *Vault) persist() error {
	data, err := cryptox.Seal(v.records, v.secret)
	if err != nil {
		return newError(KindWriteFailed, v.path, "seal: %w", err)
	}
	if err := filex.WriteFileAtomic(v.path, data, 0o600); err != nil {
		return newError(KindWriteFailed, v.path, "write: %w", err)
	}
	return nil
}
