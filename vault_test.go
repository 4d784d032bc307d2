package kvault

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/benaskins/kvault/internal/keychain"
	"github.com/benaskins/kvault/internal/prefs"
)

// backends returns a fresh backend of each kind the vault is tested over.
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	f, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.db"), "test passphrase", &prefs.Options{
		Timeout: time.Second,
		ScryptN: 1 << 10,
		ScryptR: 8,
		ScryptP: 1,
	})
	if err != nil {
		t.Fatalf("prefs.Open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return map[string]Backend{
		"memory": keychain.NewMemoryBackend(),
		"file":   f,
	}
}

func TestRoundTrip(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			v := New(backend, WithService("com.example.app"))

			texts := []string{"", "hello", "héllo wörld ✓", "line\nbreak"}
			for _, s := range texts {
				if err := v.SetString("s", s); err != nil {
					t.Fatalf("SetString(%q): %v", s, err)
				}
				if got, ok := v.String("s"); !ok || got != s {
					t.Errorf("String: expected %q, got %q (ok=%v)", s, got, ok)
				}
			}

			for _, n := range []int32{0, -1, 42, math.MinInt32, math.MaxInt32} {
				v.SetInt("i", n)
				if got, ok := v.Int("i"); !ok || got != n {
					t.Errorf("Int: expected %d, got %d (ok=%v)", n, got, ok)
				}
			}

			for _, n := range []int64{0, -1, math.MinInt64, math.MaxInt64} {
				v.SetLong("l", n)
				if got, ok := v.Long("l"); !ok || got != n {
					t.Errorf("Long: expected %d, got %d (ok=%v)", n, got, ok)
				}
			}

			for _, f := range []float32{0, -1.5, math.SmallestNonzeroFloat32, math.MaxFloat32, -math.MaxFloat32} {
				v.SetFloat("f", f)
				if got, ok := v.Float("f"); !ok || got != f {
					t.Errorf("Float: expected %g, got %g (ok=%v)", f, got, ok)
				}
			}

			for _, d := range []float64{0, 3.141592653589793, math.SmallestNonzeroFloat64, math.MaxFloat64, -math.MaxFloat64} {
				v.SetDouble("d", d)
				if got, ok := v.Double("d"); !ok || got != d {
					t.Errorf("Double: expected %g, got %g (ok=%v)", d, got, ok)
				}
			}

			for _, b := range []bool{true, false} {
				v.SetBool("b", b)
				if got, ok := v.Bool("b"); !ok || got != b {
					t.Errorf("Bool: expected %v, got %v (ok=%v)", b, got, ok)
				}
			}
		})
	}
}

func TestExistsOverwriteDelete(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			v := New(backend, WithService("com.example.app"))

			if v.Exists("k") {
				t.Fatal("expected k absent before set")
			}
			if err := v.SetString("k", "v1"); err != nil {
				t.Fatalf("SetString: %v", err)
			}
			if !v.Exists("k") {
				t.Fatal("expected k present after set")
			}
			if err := v.SetString("k", "v2"); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			if got, _ := v.String("k"); got != "v2" {
				t.Errorf("expected v2 after overwrite, got %q", got)
			}

			if err := v.Delete("k"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if v.Exists("k") {
				t.Error("expected k absent after delete")
			}
			if err := v.Delete("k"); err != nil {
				t.Errorf("deleting absent key: %v", err)
			}
			if _, ok := v.String("k"); ok {
				t.Error("expected missing after delete")
			}
		})
	}
}

func TestClearIsScoped(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a := New(backend, WithService("com.example.a"))
			b := New(backend, WithService("com.example.b"))

			a.SetString("x", "1")
			a.SetInt("y", 2)
			b.SetString("x", "other")

			keys, err := a.Keys()
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if len(keys) != 2 {
				t.Errorf("expected 2 keys in a, got %v", keys)
			}

			if err := a.Clear(); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if a.Exists("x") || a.Exists("y") {
				t.Error("expected a empty after clear")
			}
			if got, ok := b.String("x"); !ok || got != "other" {
				t.Errorf("expected b untouched, got %q (ok=%v)", got, ok)
			}

			keys, err = a.Keys()
			if err != nil || keys == nil || len(keys) != 0 {
				t.Errorf("expected empty non-nil key list, got %v, %v", keys, err)
			}
		})
	}
}

func TestUserScenario(t *testing.T) {
	v := NewMemory(WithService("com.example.app"))

	if err := v.SetInt("user_id", 42); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	if got, ok := v.Int("user_id"); !ok || got != 42 {
		t.Errorf("expected 42, got %d (ok=%v)", got, ok)
	}
	if _, ok := v.String("user_id"); ok {
		t.Error("expected string read of an int to be missing")
	}

	if err := v.SetBool("flag", true); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	if got, ok := v.Bool("flag"); !ok || !got {
		t.Error("expected flag true")
	}
	if !v.Exists("flag") {
		t.Error("expected flag to exist")
	}

	if err := v.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if v.Exists("flag") || v.Exists("user_id") {
		t.Error("expected both keys gone after clear")
	}
}

func TestCrossTypeReads(t *testing.T) {
	v := NewMemory(WithService("com.example.app"))
	v.SetString("name", "alice")
	v.SetLong("big", math.MaxInt64)
	v.SetDouble("pi", 3.75)
	v.SetBool("on", true)

	if _, ok := v.Int("name"); ok {
		t.Error("expected int read of a string to be missing")
	}
	if _, ok := v.Bool("name"); ok {
		t.Error("expected bool read of a string to be missing")
	}
	if got, ok := v.Int("pi"); !ok || got != 3 {
		t.Errorf("expected double to truncate to 3, got %d (ok=%v)", got, ok)
	}
	if got, ok := v.Float("pi"); !ok || got != 3.75 {
		t.Errorf("expected float 3.75, got %g (ok=%v)", got, ok)
	}
	if got, ok := v.Double("big"); !ok || got != float64(math.MaxInt64) {
		t.Errorf("expected widened long, got %g (ok=%v)", got, ok)
	}
	if got, ok := v.Long("on"); !ok || got != 1 {
		t.Errorf("expected bool as long 1, got %d (ok=%v)", got, ok)
	}

	if _, err := v.Get("name"); err != nil {
		t.Errorf("Get: %v", err)
	}
	if _, err := v.Get("absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUndecodableBytes(t *testing.T) {
	backend := keychain.NewMemoryBackend()
	scope := Scope{Service: "com.example.app"}
	backend.Insert(scope, "raw", []byte{0xC3, 0x28}, WhenUnlocked)
	backend.Insert(scope, "junk", append([]byte{0xFF, 'k', 'v', 0x01}, 0xFF, 0xFF), WhenUnlocked)

	v := New(backend, WithService(scope.Service))
	for _, key := range []string{"raw", "junk"} {
		if _, err := v.Get(key); !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("%s: expected ErrTypeMismatch, got %v", key, err)
		}
		if _, ok := v.String(key); ok {
			t.Errorf("%s: expected typed read to be missing", key)
		}
		if _, ok := v.Int(key); ok {
			t.Errorf("%s: expected typed read to be missing", key)
		}
	}
}

func TestSetRejects(t *testing.T) {
	v := NewMemory()

	if err := v.SetString("", "x"); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if err := v.Delete(""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey from Delete, got %v", err)
	}
	if err := v.SetString("bad", string([]byte{0xff, 0xfe})); !errors.Is(err, ErrInvalidString) {
		t.Errorf("expected ErrInvalidString, got %v", err)
	}
	if v.Exists("bad") {
		t.Error("rejected write must not store anything")
	}
	if err := v.Set("missing", Value{}); err == nil {
		t.Error("expected error storing a missing value")
	}
}

// racingBackend makes the probe lie, the way a concurrent writer would.
type racingBackend struct {
	*keychain.MemoryBackend
	exists bool
}

func (b *racingBackend) Exists(Scope, string) (bool, error) { return b.exists, nil }

func TestSetSurfacesRaces(t *testing.T) {
	mem := keychain.NewMemoryBackend()
	scope := Scope{Service: "com.example.app"}
	mem.Insert(scope, "k", []byte("theirs"), WhenUnlocked)

	insert := New(&racingBackend{MemoryBackend: mem, exists: false}, WithService(scope.Service))
	if err := insert.SetString("k", "mine"); !errors.Is(err, ErrDuplicateItem) {
		t.Errorf("expected ErrDuplicateItem, got %v", err)
	}

	update := New(&racingBackend{MemoryBackend: mem, exists: true}, WithService(scope.Service))
	if err := update.SetString("gone", "mine"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAccessibilityAppliedOnInsert(t *testing.T) {
	mem := keychain.NewMemoryBackend()
	v := New(mem, WithService("com.example.app"), WithAccessibility(AfterFirstUnlock))

	v.SetString("k", "v")
	got, ok := mem.Accessibility(v.Scope(), "k")
	if !ok || got != AfterFirstUnlock {
		t.Errorf("expected after-first-unlock, got %v (ok=%v)", got, ok)
	}
}

func TestOpenFileVault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")

	v, err := OpenFile(path, "pass", WithService("com.example.app"))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	v.SetDouble("ratio", 0.25)
	v.Close()

	v, err = OpenFile(path, "pass", WithService("com.example.app"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer v.Close()
	if got, ok := v.Double("ratio"); !ok || got != 0.25 {
		t.Errorf("expected 0.25 after reopen, got %g (ok=%v)", got, ok)
	}

	if _, err := OpenFile(path, "wrong"); !errors.Is(err, prefs.ErrWrongPassphrase) {
		t.Errorf("expected ErrWrongPassphrase, got %v", err)
	}
}
