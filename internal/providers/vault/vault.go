// Package vault keeps server secrets encrypted on disk.
//
// The file holds a single AES-256-GCM sealed JSON document, written as
// "iv:tag:ciphertext" in hex. The key is derived from the server's API key
// with scrypt, so rotating the API key invalidates the vault.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"golang.org/x/crypto/scrypt"
)

const (
	salt      = "bastion-salt"
	nonceSize = 16
	tagSize   = 16
	keySize   = 32
)

// ErrCorrupt is returned when the vault file cannot be decrypted.
var ErrCorrupt = errors.New("vault: corrupt or wrong key")

// Secrets is the document stored in the vault.
type Secrets struct {
	VTKey string `json:"vtKey,omitempty"`
}

// Vault reads and writes the secrets file.
type Vault struct {
	path string
	aead cipher.AEAD
	mu   sync.Mutex
}

// Open derives the vault key from masterKey. The file need not exist yet.
func Open(path, masterKey string) (*Vault, error) {
	key, err := scrypt.Key([]byte(masterKey), []byte(salt), 16384, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive vault key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}
	return &Vault{path: path, aead: aead}, nil
}

// Load returns the stored secrets, or empty secrets when the file is absent.
func (v *Vault) Load() (Secrets, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.load()
}

// Save replaces the stored secrets.
func (v *Vault) Save(s Secrets) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.save(s)
}

// VTKey returns the stored VirusTotal key, or "".
func (v *Vault) VTKey() (string, error) {
	s, err := v.Load()
	return s.VTKey, err
}

// SetVTKey updates the VirusTotal key, keeping other secrets.
func (v *Vault) SetVTKey(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	s, err := v.load()
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return err
	}
	s.VTKey = key
	return v.save(s)
}

func (v *Vault) load() (Secrets, error) {
	raw, err := os.ReadFile(v.path)
	if errors.Is(err, os.ErrNotExist) {
		return Secrets{}, nil
	}
	if err != nil {
		return Secrets{}, err
	}

	plain, err := v.open(strings.TrimSpace(string(raw)))
	if err != nil {
		return Secrets{}, err
	}
	var s Secrets
	if err := sonic.Unmarshal(plain, &s); err != nil {
		return Secrets{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return s, nil
}

func (v *Vault) save(s Secrets) error {
	plain, err := sonic.Marshal(s)
	if err != nil {
		return err
	}
	sealed, err := v.seal(plain)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(v.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sealed), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, v.path)
}

func (v *Vault) seal(plain []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := v.aead.Seal(nil, nonce, plain, nil)
	ct, tag := out[:len(out)-tagSize], out[len(out)-tagSize:]
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

func (v *Vault) open(data string) ([]byte, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return nil, ErrCorrupt
	}
	nonce, err1 := hex.DecodeString(parts[0])
	tag, err2 := hex.DecodeString(parts[1])
	ct, err3 := hex.DecodeString(parts[2])
	if err := errors.Join(err1, err2, err3); err != nil || len(nonce) != nonceSize || len(tag) != tagSize {
		return nil, ErrCorrupt
	}
	plain, err := v.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return nil, ErrCorrupt
	}
	return plain, nil
}
