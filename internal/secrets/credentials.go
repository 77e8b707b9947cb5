// Package secrets stores registry credentials in age-encrypted files so
// they never sit on disk in the clear.
package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"gopkg.in/yaml.v3"

	"github.com/forgefleet/archforge/pkg/logger"
)

var (
	// ErrNoRecipient is returned when sealing without a public key.
	ErrNoRecipient = errors.New("no age recipient configured for sealing")
	// ErrNoIdentity is returned when opening without a private key.
	ErrNoIdentity = errors.New("no age identity configured for opening")
	// ErrSealFailed is returned when encryption fails.
	ErrSealFailed = errors.New("sealing credentials failed")
	// ErrOpenFailed is returned when decryption fails.
	ErrOpenFailed = errors.New("opening credentials failed")
	// ErrInvalidKey is returned when a key does not parse.
	ErrInvalidKey = errors.New("invalid age key")
)

// Credentials is the payload of an encrypted credentials file. Token takes
// precedence over Password when both are present.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

// Keeper seals and opens credentials files with an age X25519 key pair.
// Sealing needs the recipient, opening needs the identity; a keeper built
// from an identity can do both.
type Keeper struct {
	recipient *age.X25519Recipient
	identity  *age.X25519Identity
	logger    *logger.Logger
}

// NewKeeper parses the given keys. Either may be empty; at least one must
// be present.
func NewKeeper(publicKey, privateKey string, log *logger.Logger) (*Keeper, error) {
	if log == nil {
		log = logger.Default()
	}
	k := &Keeper{logger: log.WithComponent("secrets")}

	if publicKey != "" {
		recipient, err := age.ParseX25519Recipient(publicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: recipient: %v", ErrInvalidKey, err)
		}
		k.recipient = recipient
	}
	if privateKey != "" {
		identity, err := age.ParseX25519Identity(privateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: identity: %v", ErrInvalidKey, err)
		}
		k.identity = identity
		k.recipient = identity.Recipient()
	}

	if k.recipient == nil && k.identity == nil {
		return nil, ErrInvalidKey
	}
	return k, nil
}

// NewKeeperFromIdentityFile reads an age identity file, skipping comment
// lines, and builds a keeper that can both seal and open.
func NewKeeperFromIdentityFile(path string, log *logger.Logger) (*Keeper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "AGE-SECRET-KEY-") {
			return NewKeeper("", line, log)
		}
	}
	return nil, fmt.Errorf("%w: %s holds no AGE-SECRET-KEY line", ErrInvalidKey, path)
}

// CanSeal reports whether the keeper can encrypt.
func (k *Keeper) CanSeal() bool {
	return k.recipient != nil
}

// CanOpen reports whether the keeper can decrypt.
func (k *Keeper) CanOpen() bool {
	return k.identity != nil
}

// Seal marshals the credentials to YAML and encrypts them for the
// configured recipient.
func (k *Keeper) Seal(creds Credentials) ([]byte, error) {
	if k.recipient == nil {
		return nil, ErrNoRecipient
	}

	payload, err := yaml.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealFailed, err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, k.recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealFailed, err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealFailed, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealFailed, err)
	}
	return buf.Bytes(), nil
}

// Open decrypts a sealed credentials payload and unmarshals it.
func (k *Keeper) Open(ciphertext []byte) (Credentials, error) {
	if k.identity == nil {
		return Credentials{}, ErrNoIdentity
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), k.identity)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(payload, &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	return creds, nil
}

// LoadCredentialsFile opens the sealed file at path with the identity file
// at identityPath.
func LoadCredentialsFile(path, identityPath string, log *logger.Logger) (Credentials, error) {
	keeper, err := NewKeeperFromIdentityFile(identityPath, log)
	if err != nil {
		return Credentials{}, err
	}
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("reading credentials file: %w", err)
	}
	return keeper.Open(ciphertext)
}

// GenerateKeyPair generates a fresh age key pair for sealing credentials.
func GenerateKeyPair() (publicKey, privateKey string, err error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("generating age key pair: %w", err)
	}
	return identity.Recipient().String(), identity.String(), nil
}
