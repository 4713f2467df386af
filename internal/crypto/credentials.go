// Package crypto handles exchange API credentials: loading them from disk,
// optionally password-encrypted, and signing requests with them.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// Sealed file parameters. Iterations are stored per file so the default can
// be raised without breaking existing files.
const (
	sealVersion       = 2
	defaultIterations = 600_000
	saltSize          = 16
	keySize           = 32
)

var errNoPassword = errors.New("crypto: password must not be empty")

// Credentials is the API key pair stored in a credentials file.
type Credentials struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

func (c Credentials) Auth() *HMACAuth {
	return &HMACAuth{Key: c.Key, Secret: c.Secret}
}

func (c Credentials) validate() error {
	if c.Key == "" || c.Secret == "" {
		return errors.New("crypto: credentials need both key and secret")
	}
	return nil
}

// sealedFile is the encrypted on-disk form: AES-256-GCM under a key derived
// with PBKDF2-HMAC-SHA256. Byte fields are base64 in JSON.
type sealedFile struct {
	Version    int    `json:"version"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func aead(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptCredentials seals creds under password and returns the file body.
func EncryptCredentials(creds Credentials, password string) ([]byte, error) {
	if password == "" {
		return nil, errNoPassword
	}
	if err := creds.validate(); err != nil {
		return nil, err
	}
	plain, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("crypto: encode credentials: %w", err)
	}

	f := sealedFile{Version: sealVersion, Iterations: defaultIterations, Salt: make([]byte, saltSize)}
	if _, err := rand.Read(f.Salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := aead(password, f.Salt, f.Iterations)
	if err != nil {
		return nil, err
	}
	f.Nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(f.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	f.Ciphertext = gcm.Seal(nil, f.Nonce, plain, nil)
	return json.MarshalIndent(f, "", "  ")
}

// DecryptCredentials opens a file body produced by EncryptCredentials.
func DecryptCredentials(blob []byte, password string) (Credentials, error) {
	if password == "" {
		return Credentials{}, errNoPassword
	}
	var f sealedFile
	if err := json.Unmarshal(blob, &f); err != nil {
		return Credentials{}, fmt.Errorf("crypto: parse sealed credentials: %w", err)
	}
	if f.Version != sealVersion || f.Iterations <= 0 {
		return Credentials{}, fmt.Errorf("crypto: unsupported sealed credentials (version %d)", f.Version)
	}

	gcm, err := aead(password, f.Salt, f.Iterations)
	if err != nil {
		return Credentials{}, err
	}
	if len(f.Nonce) != gcm.NonceSize() {
		return Credentials{}, fmt.Errorf("crypto: nonce is %d bytes, want %d", len(f.Nonce), gcm.NonceSize())
	}
	plain, err := gcm.Open(nil, f.Nonce, f.Ciphertext, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("crypto: open sealed credentials (wrong password?): %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return Credentials{}, fmt.Errorf("crypto: decode credentials: %w", err)
	}
	return creds, creds.validate()
}

// LoadCredentials reads a credentials file, plain {"key","secret"} JSON or
// a sealed file opened with password.
func LoadCredentials(path, password string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("crypto: read credentials: %w", err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return Credentials{}, fmt.Errorf("crypto: parse credentials: %w", err)
	}
	if _, sealed := probe["ciphertext"]; sealed {
		return DecryptCredentials(data, password)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("crypto: parse credentials: %w", err)
	}
	return creds, creds.validate()
}
