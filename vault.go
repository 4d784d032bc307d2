package kvault

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/benaskins/kvault/internal/keychain"
	"github.com/benaskins/kvault/internal/prefs"
)

type (
	// Backend is the native facility a Vault stores bytes in.
	Backend = keychain.Backend
	// Scope is the (service, access group) partition of a Backend.
	Scope = keychain.Scope
	// Accessibility is the unlock policy attached to items at insert.
	Accessibility = keychain.Accessibility
)

// Accessibility levels, from most to least available. WhenUnlocked is the
// default. The ThisDeviceOnly variants are never migrated to another device.
const (
	WhenUnlocked                   = keychain.WhenUnlocked
	WhenUnlockedThisDeviceOnly     = keychain.WhenUnlockedThisDeviceOnly
	AfterFirstUnlock               = keychain.AfterFirstUnlock
	AfterFirstUnlockThisDeviceOnly = keychain.AfterFirstUnlockThisDeviceOnly
	WhenPasscodeSetThisDeviceOnly  = keychain.WhenPasscodeSetThisDeviceOnly
)

// Option configures a Vault.
type Option func(*Vault)

// WithService scopes the vault to a service name. Without one the vault
// sees the facility's default scope.
func WithService(name string) Option {
	return func(v *Vault) { v.scope.Service = name }
}

// WithAccessGroup scopes the vault to a Keychain access group shared
// between apps.
func WithAccessGroup(group string) Option {
	return func(v *Vault) { v.scope.AccessGroup = group }
}

// WithAccessibility sets the policy attached to newly inserted items.
// Updates keep the policy the item was created with.
func WithAccessibility(a Accessibility) Option {
	return func(v *Vault) { v.access = a }
}

// WithLogger sets the logger for debug output about failed calls.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) { v.logger = l }
}

// Vault is a typed key-value store over one scope of a Backend. It holds
// no state besides its identity and is not internally synchronized;
// concurrent calls get whatever atomicity the backend provides.
type Vault struct {
	backend Backend
	scope   Scope
	access  Accessibility
	logger  *slog.Logger
}

// New returns a vault storing through backend.
func New(backend Backend, opts ...Option) *Vault {
	v := &Vault{backend: backend}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.With("component", "kvault", "scope", v.scope.String())
	}
	return v
}

// NewSystem returns a vault over the platform Keychain. On platforms
// without one it falls back to process memory and logs a warning.
func NewSystem(opts ...Option) *Vault {
	return New(keychain.NewSystemBackend(), opts...)
}

// NewMemory returns a vault whose items live only in this process.
func NewMemory(opts ...Option) *Vault {
	return New(keychain.NewMemoryBackend(), opts...)
}

// OpenFile returns a vault over the encrypted preferences file at path,
// creating it if needed. Close the vault to wipe the derived key.
func OpenFile(path, passphrase string, opts ...Option) (*Vault, error) {
	f, err := prefs.Open(path, passphrase, nil)
	if err != nil {
		return nil, err
	}
	return New(f, opts...), nil
}

// Scope returns the partition this vault reads and writes.
func (v *Vault) Scope() Scope { return v.scope }

// Close releases the backend if it holds anything worth releasing.
func (v *Vault) Close() error {
	if c, ok := v.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SetString stores a string under key. See Set.
func (v *Vault) SetString(key, value string) error {
	return v.Set(key, StringValue(value))
}

// SetInt stores a 32-bit integer under key. See Set.
func (v *Vault) SetInt(key string, value int32) error {
	return v.Set(key, Int32Value(value))
}

// SetLong stores a 64-bit integer under key. See Set.
func (v *Vault) SetLong(key string, value int64) error {
	return v.Set(key, Int64Value(value))
}

// SetFloat stores a 32-bit float under key. See Set.
func (v *Vault) SetFloat(key string, value float32) error {
	return v.Set(key, Float32Value(value))
}

// SetDouble stores a 64-bit float under key. See Set.
func (v *Vault) SetDouble(key string, value float64) error {
	return v.Set(key, Float64Value(value))
}

// SetBool stores a bool under key. See Set.
func (v *Vault) SetBool(key string, value bool) error {
	return v.Set(key, BoolValue(value))
}

// Set stores value under key, replacing whatever was there. The existence
// probe and the write are separate calls: a concurrent writer can make
// the insert fail with ErrDuplicateItem or the update with ErrNotFound.
// Neither is retried.
func (v *Vault) Set(key string, value Value) error {
	if key == "" {
		return ErrEmptyKey
	}
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}

	exists, err := v.backend.Exists(v.scope, key)
	if err != nil {
		return fmt.Errorf("checking %q: %w", key, err)
	}
	if exists {
		err = v.backend.Update(v.scope, key, data)
	} else {
		err = v.backend.Insert(v.scope, key, data, v.access)
	}
	if err != nil {
		v.logger.Debug("write rejected", "key", key, "update", exists, "error", err)
		return fmt.Errorf("storing %q: %w", key, err)
	}
	return nil
}

// Exists reports whether key holds a value. Backend failures read as
// absent.
func (v *Vault) Exists(key string) bool {
	if key == "" {
		return false
	}
	ok, err := v.backend.Exists(v.scope, key)
	if err != nil {
		v.logger.Debug("exists failed", "key", key, "error", err)
		return false
	}
	return ok
}

// Get returns the value stored under key. ErrNotFound and ErrTypeMismatch
// (bytes that decode as nothing) are distinguishable with errors.Is.
func (v *Vault) Get(key string) (Value, error) {
	if key == "" {
		return Value{}, ErrEmptyKey
	}
	data, err := v.backend.Read(v.scope, key)
	if err != nil {
		return Value{}, fmt.Errorf("reading %q: %w", key, err)
	}
	value, err := decode(data)
	if err != nil {
		return Value{}, fmt.Errorf("decoding %q: %w", key, err)
	}
	return value, nil
}

// lookup backs the typed accessors, which report absence and mismatch
// alike as !ok.
func lookup[T any](v *Vault, key string, as func(Value) (T, error)) (T, bool) {
	var zero T
	value, err := v.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			v.logger.Debug("read failed", "key", key, "error", err)
		}
		return zero, false
	}
	out, err := as(value)
	if err != nil {
		v.logger.Debug("typed read mismatch", "key", key, "stored", value.Kind(), "error", err)
		return zero, false
	}
	return out, true
}

// The typed accessors below report ok=false both when key is absent and
// when its value cannot be read as the requested type. Use Get to tell
// the two apart.

// String reads key as a string. Numbers are never rendered as strings.
func (v *Vault) String(key string) (string, bool) {
	return lookup(v, key, Value.AsString)
}

// Int reads key as a 32-bit integer, narrowing wider numbers and truncating floats.
func (v *Vault) Int(key string) (int32, bool) {
	return lookup(v, key, Value.AsInt32)
}

// Long reads key as a 64-bit integer, truncating floats.
func (v *Vault) Long(key string) (int64, bool) {
	return lookup(v, key, Value.AsInt64)
}

// Float reads key as a 32-bit float.
func (v *Vault) Float(key string) (float32, bool) {
	return lookup(v, key, Value.AsFloat32)
}

// Double reads key as a 64-bit float.
func (v *Vault) Double(key string) (float64, bool) {
	return lookup(v, key, Value.AsFloat64)
}

// Bool reads key as a bool; numbers are true when non-zero.
func (v *Vault) Bool(key string) (bool, bool) {
	return lookup(v, key, Value.AsBool)
}

// Keys lists the keys visible in this vault's scope, in the order the
// backend enumerates them.
func (v *Vault) Keys() ([]string, error) {
	keys, err := v.backend.Accounts(v.scope)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// Delete removes key. Deleting an absent key succeeds.
func (v *Vault) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := v.backend.Delete(v.scope, key); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

// Clear removes every item visible in this vault's scope. With no
// service or access group set that is the whole default scope.
func (v *Vault) Clear() error {
	if err := v.backend.DeleteAll(v.scope); err != nil {
		return fmt.Errorf("clearing %s: %w", v.scope, err)
	}
	return nil
}
