package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/forgefleet/archforge/pkg/logger"
)

// genCredentials generates credentials payloads, with and without tokens.
func genCredentials() gopter.Gen {
	return gopter.CombineGens(
		gen.Identifier().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString(),
		gen.AlphaString(),
	).Map(func(vals []interface{}) Credentials {
		return Credentials{
			Username: vals[0].(string),
			Password: vals[1].(string),
			Token:    vals[2].(string),
		}
	})
}

func newTestKeeper(t *testing.T) *Keeper {
	t.Helper()
	publicKey, privateKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generating key pair: %v", err)
	}
	keeper, err := NewKeeper(publicKey, privateKey, logger.Discard())
	if err != nil {
		t.Fatalf("creating keeper: %v", err)
	}
	return keeper
}

func TestCredentialsSealOpenRoundTrip(t *testing.T) {
	keeper := newTestKeeper(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("seal then open returns the original credentials", prop.ForAll(
		func(creds Credentials) bool {
			sealed, err := keeper.Seal(creds)
			if err != nil {
				t.Logf("seal failed: %v", err)
				return false
			}
			opened, err := keeper.Open(sealed)
			if err != nil {
				t.Logf("open failed: %v", err)
				return false
			}
			return opened == creds
		},
		genCredentials(),
	))

	properties.Property("sealed output never contains the secret in the clear", prop.ForAll(
		func(creds Credentials) bool {
			if creds.Password == "" && creds.Token == "" {
				return true
			}
			sealed, err := keeper.Seal(creds)
			if err != nil {
				return false
			}
			secret := creds.Token
			if secret == "" {
				secret = creds.Password
			}
			if len(secret) < 4 {
				return true
			}
			return !containsBytes(sealed, []byte(secret))
		},
		genCredentials(),
	))

	properties.TestingRun(t)
}

func containsBytes(haystack, needle []byte) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestOpenWithWrongIdentityFails(t *testing.T) {
	sealing := newTestKeeper(t)
	other := newTestKeeper(t)

	sealed, err := sealing.Seal(Credentials{Username: "builder", Token: "tok"})
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if _, err := other.Open(sealed); !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("open with wrong identity = %v, want ErrOpenFailed", err)
	}
}

func TestKeeperCapabilities(t *testing.T) {
	publicKey, privateKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generating key pair: %v", err)
	}

	sealOnly, err := NewKeeper(publicKey, "", logger.Discard())
	if err != nil {
		t.Fatalf("NewKeeper(public only) failed: %v", err)
	}
	if !sealOnly.CanSeal() || sealOnly.CanOpen() {
		t.Error("public-only keeper should seal but not open")
	}
	if _, err := sealOnly.Open([]byte("x")); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("Open without identity = %v, want ErrNoIdentity", err)
	}

	openAndSeal, err := NewKeeper("", privateKey, logger.Discard())
	if err != nil {
		t.Fatalf("NewKeeper(private only) failed: %v", err)
	}
	if !openAndSeal.CanSeal() || !openAndSeal.CanOpen() {
		t.Error("identity keeper should both seal and open")
	}

	if _, err := NewKeeper("", "", logger.Discard()); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("NewKeeper with no keys = %v, want ErrInvalidKey", err)
	}
	if _, err := NewKeeper("not-a-key", "", logger.Discard()); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("NewKeeper with garbage = %v, want ErrInvalidKey", err)
	}
}

func TestLoadCredentialsFile(t *testing.T) {
	dir := t.TempDir()
	publicKey, privateKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generating key pair: %v", err)
	}

	identityPath := filepath.Join(dir, "identity.txt")
	identityContent := "# created for tests\n# public key: " + publicKey + "\n" + privateKey + "\n"
	if err := os.WriteFile(identityPath, []byte(identityContent), 0o600); err != nil {
		t.Fatalf("writing identity file: %v", err)
	}

	keeper, err := NewKeeperFromIdentityFile(identityPath, logger.Discard())
	if err != nil {
		t.Fatalf("NewKeeperFromIdentityFile failed: %v", err)
	}

	want := Credentials{Username: "builder", Password: "hunter2"}
	sealed, err := keeper.Seal(want)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	credsPath := filepath.Join(dir, "credentials.age")
	if err := os.WriteFile(credsPath, sealed, 0o600); err != nil {
		t.Fatalf("writing credentials file: %v", err)
	}

	got, err := LoadCredentialsFile(credsPath, identityPath, logger.Discard())
	if err != nil {
		t.Fatalf("LoadCredentialsFile failed: %v", err)
	}
	if got != want {
		t.Errorf("LoadCredentialsFile = %+v, want %+v", got, want)
	}
}

func TestNewKeeperFromIdentityFile_NoKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.txt")
	if err := os.WriteFile(path, []byte("# only comments here\n"), 0o600); err != nil {
		t.Fatalf("writing identity file: %v", err)
	}

	if _, err := NewKeeperFromIdentityFile(path, logger.Discard()); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("err = %v, want ErrInvalidKey", err)
	}
}
