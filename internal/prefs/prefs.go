// Package prefs implements an encrypted preferences file: a single bolt
// database whose records are sealed under a key derived from a passphrase.
//
// Layout:
//   - bucket "meta": "kdf" (scrypt parameters and salt, JSON) and "check"
//     (a sealed constant used to reject wrong passphrases)
//   - bucket "entries": HMAC(service, group, account) -> nonce || sealed record
//
// The database handle is opened and closed around every call so several
// processes can share one file; bolt's file lock serializes them.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/benaskins/kvault/internal/keychain"
)

var (
	metaBucket    = []byte("meta")
	entriesBucket = []byte("entries")
	kdfKey        = []byte("kdf")
	checkKey      = []byte("check")

	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("preferences file is closed")
)

// Options tunes how a preferences file is opened.
type Options struct {
	// Timeout bounds how long a call waits for another process's file lock.
	Timeout time.Duration

	// scrypt cost parameters used when creating a new file. Existing files
	// keep the parameters they were created with.
	ScryptN int
	ScryptR int
	ScryptP int

	Logger *slog.Logger
}

// DefaultOptions returns the options used when Open is given nil.
func DefaultOptions() *Options {
	return &Options{
		Timeout: 2 * time.Second,
		ScryptN: 1 << 15,
		ScryptR: 8,
		ScryptP: 1,
	}
}

// record is the plaintext sealed into each entry.
type record struct {
	Service string `json:"s,omitempty"`
	Group   string `json:"g,omitempty"`
	Account string `json:"a"`
	Data    []byte `json:"d"`
}

func (r *record) scope() keychain.Scope {
	return keychain.Scope{Service: r.Service, AccessGroup: r.Group}
}

// File is an encrypted preferences file. It implements keychain.Backend.
type File struct {
	mu      sync.Mutex
	path    string
	timeout time.Duration
	keys    *keys
	logger  *slog.Logger
}

var _ keychain.Backend = (*File)(nil)

// Open creates or opens the preferences file at path. A new file is
// initialized with fresh KDF parameters; an existing one must be opened
// with the passphrase it was created with.
func Open(path, passphrase string, opts *Options) (*File, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.With("component", "prefs")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating preferences dir: %w", err)
	}

	f := &File{path: path, timeout: opts.Timeout, logger: logger}

	err := f.withDB(func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			meta, err := tx.CreateBucketIfNotExists(metaBucket)
			if err != nil {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists(entriesBucket); err != nil {
				return err
			}

			if raw := meta.Get(kdfKey); raw != nil {
				kb, err := parseKDFBlob(raw)
				if err != nil {
					return err
				}
				k, err := deriveKeys(passphrase, kb)
				if err != nil {
					return err
				}
				check, err := k.open(meta.Get(checkKey), checkAAD)
				if err != nil {
					k.wipe()
					return err
				}
				wipe(check)
				f.keys = k
				return nil
			}

			kb, err := newKDFBlob(opts.ScryptN, opts.ScryptR, opts.ScryptP)
			if err != nil {
				return err
			}
			k, err := deriveKeys(passphrase, kb)
			if err != nil {
				return err
			}
			sealed, err := k.seal(checkPlaintext, checkAAD)
			if err != nil {
				k.wipe()
				return err
			}
			raw, err := json.Marshal(kb)
			if err != nil {
				k.wipe()
				return err
			}
			if err := meta.Put(kdfKey, raw); err != nil {
				k.wipe()
				return err
			}
			if err := meta.Put(checkKey, sealed); err != nil {
				k.wipe()
				return err
			}
			logger.Info("initialized preferences file", "path", path)
			f.keys = k
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("opening preferences %s: %w", path, err)
	}
	return f, nil
}

// Path returns the location of the preferences file.
func (f *File) Path() string {
	return f.path
}

// Close wipes the derived key material. The file itself is not held open.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys != nil {
		f.keys.wipe()
		f.keys = nil
	}
	return nil
}

// withDB opens the database for the duration of fn.
func (f *File) withDB(fn func(db *bolt.DB) error) error {
	db, err := bolt.Open(f.path, 0600, &bolt.Options{Timeout: f.timeout})
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func (f *File) view(fn func(b *bolt.Bucket) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		return ErrClosed
	}
	return f.withDB(func(db *bolt.DB) error {
		return db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(entriesBucket)
			if b == nil {
				return errors.New("preferences file has no entries bucket")
			}
			return fn(b)
		})
	})
}

func (f *File) update(fn func(b *bolt.Bucket) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		return ErrClosed
	}
	return f.withDB(func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists(entriesBucket)
			if err != nil {
				return err
			}
			return fn(b)
		})
	})
}

type match struct {
	id  []byte
	rec *record
}

// scan decrypts every entry and returns those visible to scope, optionally
// narrowed to one account. Entries that fail to open are skipped.
func (f *File) scan(b *bolt.Bucket, scope keychain.Scope, account string) ([]match, error) {
	var matches []match
	err := b.ForEach(func(k, v []byte) error {
		plain, err := f.keys.open(v, k)
		if err != nil {
			f.logger.Warn("skipping unreadable entry", "error", err)
			return nil
		}
		defer wipe(plain)

		var rec record
		if err := json.Unmarshal(plain, &rec); err != nil {
			f.logger.Warn("skipping malformed entry", "error", err)
			return nil
		}
		if account != "" && rec.Account != account {
			wipe(rec.Data)
			return nil
		}
		if !scope.Matches(rec.scope()) {
			wipe(rec.Data)
			return nil
		}
		matches = append(matches, match{id: append([]byte(nil), k...), rec: &rec})
		return nil
	})
	return matches, err
}

func (f *File) put(b *bolt.Bucket, id []byte, rec *record) error {
	plain, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	defer wipe(plain)
	sealed, err := f.keys.seal(plain, id)
	if err != nil {
		return err
	}
	return b.Put(id, sealed)
}

func wipeMatches(matches []match) {
	for _, m := range matches {
		wipe(m.rec.Data)
	}
}

func (f *File) Exists(scope keychain.Scope, account string) (bool, error) {
	var found bool
	err := f.view(func(b *bolt.Bucket) error {
		matches, err := f.scan(b, scope, account)
		defer wipeMatches(matches)
		found = len(matches) > 0
		return err
	})
	if err != nil {
		return false, fmt.Errorf("prefs exists %q: %w", account, err)
	}
	return found, nil
}

// Insert stores a new item. Accessibility has no meaning for a file and
// is ignored.
func (f *File) Insert(scope keychain.Scope, account string, data []byte, access keychain.Accessibility) error {
	f.logger.Debug("accessibility ignored by preferences file", "accessibility", access)
	return f.update(func(b *bolt.Bucket) error {
		id := f.keys.itemID(scope.Service, scope.AccessGroup, account)
		if b.Get(id) != nil {
			return fmt.Errorf("%w: %s", keychain.ErrDuplicateItem, account)
		}
		return f.put(b, id, &record{
			Service: scope.Service,
			Group:   scope.AccessGroup,
			Account: account,
			Data:    data,
		})
	})
}

func (f *File) Update(scope keychain.Scope, account string, data []byte) error {
	return f.update(func(b *bolt.Bucket) error {
		matches, err := f.scan(b, scope, account)
		defer wipeMatches(matches)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return fmt.Errorf("%w: %s", keychain.ErrNotFound, account)
		}
		for _, m := range matches {
			wipe(m.rec.Data)
			m.rec.Data = data
			err := f.put(b, m.id, m.rec)
			// data belongs to the caller; keep it away from wipeMatches.
			m.rec.Data = nil
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *File) Read(scope keychain.Scope, account string) ([]byte, error) {
	var data []byte
	err := f.view(func(b *bolt.Bucket) error {
		matches, err := f.scan(b, scope, account)
		defer wipeMatches(matches)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return fmt.Errorf("%w: %s", keychain.ErrNotFound, account)
		}
		data = append([]byte{}, matches[0].rec.Data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *File) Delete(scope keychain.Scope, account string) error {
	return f.deleteMatching(scope, account)
}

func (f *File) DeleteAll(scope keychain.Scope) error {
	return f.deleteMatching(scope, "")
}

func (f *File) deleteMatching(scope keychain.Scope, account string) error {
	return f.update(func(b *bolt.Bucket) error {
		matches, err := f.scan(b, scope, account)
		defer wipeMatches(matches)
		if err != nil {
			return err
		}
		// Deleting inside ForEach is not allowed, hence the collected ids.
		for _, m := range matches {
			if err := b.Delete(m.id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (f *File) Accounts(scope keychain.Scope) ([]string, error) {
	var accounts []string
	err := f.view(func(b *bolt.Bucket) error {
		matches, err := f.scan(b, scope, "")
		defer wipeMatches(matches)
		for _, m := range matches {
			accounts = append(accounts, m.rec.Account)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("prefs list %s: %w", scope, err)
	}
	sort.Strings(accounts)
	return accounts, nil
}
