// ABOUTME: Device identity keys for challenge-response authentication.
// ABOUTME: ed25519 keys in OpenSSH format; signatures over "signedAt|nonce".

package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
)

// Credentials is the material a connection presents during handshake.
// Either field may be empty/nil; the gateway decides what it requires.
type Credentials struct {
	Token  string
	Device *DeviceKey
}

// DeviceKey is a locally held ed25519 device identity.
type DeviceKey struct {
	priv   ed25519.PrivateKey
	signer ssh.Signer
}

// GenerateDeviceKey creates a fresh ed25519 device key.
func GenerateDeviceKey() (*DeviceKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating device key: %w", err)
	}
	return newDeviceKey(priv)
}

// LoadDeviceKey reads an OpenSSH-format private key from path.
func LoadDeviceKey(path string) (*DeviceKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device key: %w", err)
	}

	raw, err := ssh.ParseRawPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing device key: %w", err)
	}

	switch k := raw.(type) {
	case ed25519.PrivateKey:
		return newDeviceKey(k)
	case *ed25519.PrivateKey:
		return newDeviceKey(*k)
	default:
		return nil, fmt.Errorf("device key must be ed25519, got %T", raw)
	}
}

// LoadOrCreateDeviceKey loads the key at path, generating and saving a new
// one when the file does not exist.
func LoadOrCreateDeviceKey(path string) (*DeviceKey, error) {
	key, err := LoadDeviceKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key, err = GenerateDeviceKey()
	if err != nil {
		return nil, err
	}
	if err := key.Save(path); err != nil {
		return nil, err
	}
	return key, nil
}

func newDeviceKey(priv ed25519.PrivateKey) (*DeviceKey, error) {
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("building signer: %w", err)
	}
	return &DeviceKey{priv: priv, signer: signer}, nil
}

// Save writes the key to path in OpenSSH private key format, 0600, creating
// the parent directory when needed.
func (k *DeviceKey) Save(path string) error {
	block, err := ssh.MarshalPrivateKey(k.priv, "clawdeck device key")
	if err != nil {
		return fmt.Errorf("marshaling device key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating device key dir: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("writing device key: %w", err)
	}
	return nil
}

// PublicKeyString returns the public key in authorized-key form.
func (k *DeviceKey) PublicKeyString() string {
	return string(ssh.MarshalAuthorizedKey(k.signer.PublicKey()))
}

// Fingerprint returns the SHA256 fingerprint of the public key as lowercase
// hex, matching the gateway's registration format.
func (k *DeviceKey) Fingerprint() string {
	sum := sha256.Sum256(k.signer.PublicKey().Marshal())
	return hex.EncodeToString(sum[:])
}

// ChallengeProof is a signed challenge ready to embed in connect params.
type ChallengeProof struct {
	PublicKey string
	Signature string
	SignedAt  int64
	Nonce     string
}

// SignChallenge signs the gateway-supplied nonce at time at. The signed
// message is "<signedAtMs>|<nonce>" and the signature is the base64-encoded
// SSH signature wire format.
func (k *DeviceKey) SignChallenge(nonce string, at time.Time) (ChallengeProof, error) {
	signedAt := at.UnixMilli()
	message := fmt.Sprintf("%d|%s", signedAt, nonce)

	sig, err := k.signer.Sign(rand.Reader, []byte(message))
	if err != nil {
		return ChallengeProof{}, fmt.Errorf("signing challenge: %w", err)
	}

	return ChallengeProof{
		PublicKey: k.PublicKeyString(),
		Signature: base64.StdEncoding.EncodeToString(ssh.Marshal(sig)),
		SignedAt:  signedAt,
		Nonce:     nonce,
	}, nil
}
