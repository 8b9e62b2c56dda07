// Package filecrypt encrypts and decrypts evidence files with AES-256-GCM
// under a key derived from a local master key file.
package filecrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

const (
	// EncryptedSuffix is appended to encrypted file names.
	EncryptedSuffix = ".enc"
	// DecryptedSuffix is appended to decrypted file names.
	DecryptedSuffix = ".dec"

	keyInfo   = "muletrace-file-encryption"
	keyLength = 32
	nonceSize = 12
)

// Codec derives its file key from the master key stored at KeyPath. The
// master key is created on first use.
type Codec struct {
	keyPath string
}

func New(keyPath string) *Codec {
	return &Codec{keyPath: keyPath}
}

// EncryptFile encrypts the file at path and writes <path>.enc with the nonce
// prefixed to the ciphertext. It returns the output path.
func (c *Codec) EncryptFile(path string) (string, error) {
	aead, err := c.newAEAD()
	if err != nil {
		return "", fmt.Errorf("encrypt %q: %w", path, err)
	}

	plaintext, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("encrypt %q: read: %w", path, err)
	}

	nonce := make([]byte, nonceSize)
	_, err = io.ReadFull(rand.Reader, nonce)
	if err != nil {
		return "", fmt.Errorf("encrypt %q: generate nonce: %w", path, err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	out := path + EncryptedSuffix
	err = os.WriteFile(out, append(nonce, ciphertext...), 0o600)
	if err != nil {
		return "", fmt.Errorf("encrypt %q: write: %w", path, err)
	}

	return out, nil
}

// DecryptFile decrypts a nonce-prefixed file produced by EncryptFile and
// writes <path>.dec. It returns the output path.
func (c *Codec) DecryptFile(path string) (string, error) {
	aead, err := c.newAEAD()
	if err != nil {
		return "", fmt.Errorf("decrypt %q: %w", path, err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("decrypt %q: read: %w", path, err)
	}
	if len(raw) < nonceSize {
		return "", fmt.Errorf("decrypt %q: file too short to carry a nonce", path)
	}

	plaintext, err := aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt %q: %w", path, err)
	}

	out := path + DecryptedSuffix
	err = os.WriteFile(out, plaintext, 0o600)
	if err != nil {
		return "", fmt.Errorf("decrypt %q: write: %w", path, err)
	}

	return out, nil
}

func (c *Codec) newAEAD() (cipher.AEAD, error) {
	master, err := c.ensureMasterKey()
	if err != nil {
		return nil, err
	}

	key := make([]byte, keyLength)
	_, err = io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(keyInfo)), key)
	if err != nil {
		return nil, fmt.Errorf("derive file key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	return aead, nil
}

func (c *Codec) ensureMasterKey() ([]byte, error) {
	master, err := os.ReadFile(c.keyPath)
	if err == nil {
		if len(master) != keyLength {
			return nil, fmt.Errorf("master key at %q has unexpected length %d", c.keyPath, len(master))
		}
		return master, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read master key: %w", err)
	}

	err = os.MkdirAll(filepath.Dir(c.keyPath), 0o700)
	if err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	master = make([]byte, keyLength)
	_, err = io.ReadFull(rand.Reader, master)
	if err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	err = os.WriteFile(c.keyPath, master, 0o600)
	if err != nil {
		return nil, fmt.Errorf("write master key: %w", err)
	}

	return master, nil
}
