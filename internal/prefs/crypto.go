package prefs

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"
)

const (
	// The current supported version of the key-derivation blob stored in the meta bucket.
	formatVersion = 1

	saltSize = 16
)

var (
	// ErrWrongPassphrase is returned when the passphrase does not open the file.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted preferences file")

	checkPlaintext = []byte("kvault-prefs-check")
	checkAAD       = []byte("check")
)

// kdfBlob is the JSON structure in the meta bucket holding KDF parameters.
type kdfBlob struct {
	V    int    `json:"v"`
	Salt []byte `json:"salt"`
	N    int    `json:"scrypt_N"`
	R    int    `json:"scrypt_r"`
	P    int    `json:"scrypt_p"`
}

func newKDFBlob(n, r, p int) (kdfBlob, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return kdfBlob{}, err
	}
	return kdfBlob{V: formatVersion, Salt: salt, N: n, R: r, P: p}, nil
}

func parseKDFBlob(b []byte) (kdfBlob, error) {
	var kb kdfBlob
	if err := json.Unmarshal(b, &kb); err != nil {
		return kdfBlob{}, fmt.Errorf("parsing kdf parameters: %w", err)
	}
	if kb.V > formatVersion {
		return kdfBlob{}, fmt.Errorf("unsupported preferences format version %d", kb.V)
	}
	if len(kb.Salt) != saltSize {
		return kdfBlob{}, fmt.Errorf("invalid salt length %d", len(kb.Salt))
	}
	return kb, nil
}

// keys holds the material derived from the passphrase.
type keys struct {
	record []byte // XChaCha20-Poly1305 key for record bodies
	id     []byte // HMAC-SHA256 key for record ids
}

// deriveKeys runs scrypt over the passphrase and splits the result with HKDF.
func deriveKeys(passphrase string, kb kdfBlob) (*keys, error) {
	master, err := scrypt.Key([]byte(passphrase), kb.Salt, kb.N, kb.R, kb.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	defer wipe(master)

	k := &keys{
		record: make([]byte, chacha20poly1305.KeySize),
		id:     make([]byte, sha256.Size),
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, kb.Salt, []byte("kvault record key")), k.record); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, kb.Salt, []byte("kvault id key")), k.id); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *keys) wipe() {
	wipe(k.record)
	wipe(k.id)
}

// itemID is the bucket key for an item: an HMAC over its identifying
// attributes, so the file does not reveal service or account names.
func (k *keys) itemID(service, group, account string) []byte {
	mac := hmac.New(sha256.New, k.id)
	mac.Write([]byte(group))
	mac.Write([]byte{0})
	mac.Write([]byte(service))
	mac.Write([]byte{0})
	mac.Write([]byte(account))
	return mac.Sum(nil)
}

// seal encrypts plain with a random nonce; output is nonce || ciphertext.
func (k *keys) seal(plain, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(k.record)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, aad), nil
}

func (k *keys) open(blob, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(k.record)
	if err != nil {
		return nil, err
	}
	if len(blob) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrWrongPassphrase
	}
	nonce, ct := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return pt, nil
}

// wipe zeroes the provided buffer. Best-effort.
//
//go:noinline
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
