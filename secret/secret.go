// Package secret implements an encrypted on-disk key/value store for API keys
// and credentials. The file holds one AES-256-GCM sealed JSON object encoded
// as "ivhex:taghex:cipherhex", keyed by scrypt(password, salt).
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/scrypt"
)

const (
	// DefaultFile is the secrets file name used when none is configured.
	DefaultFile = ".secrets.enc"
	// DefaultPassword is the development fallback encryption password.
	DefaultPassword = "default-dev-key-change-in-prod"

	keySalt   = "claude-libre-salt"
	nonceSize = 16
	tagSize   = 16
)

var (
	// ErrNotFound is returned for an unknown secret name.
	ErrNotFound = errors.New("secret not found")
	// ErrInvalidName is returned for names that are not valid environment
	// variable names.
	ErrInvalidName = errors.New("invalid secret name")
	// ErrDecrypt is returned when the secrets file cannot be decrypted.
	ErrDecrypt = errors.New("cannot decrypt secrets file")
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Env is the process environment secrets are loaded into.
type Env interface {
	Getenv(key string) string
	Setenv(key, value string) error
	Unsetenv(key string) error
}

// OSEnv is the real process environment.
type OSEnv struct{}

func (OSEnv) Getenv(key string) string       { return os.Getenv(key) }
func (OSEnv) Setenv(key, value string) error { return os.Setenv(key, value) }
func (OSEnv) Unsetenv(key string) error      { return os.Unsetenv(key) }

// Options configures a FileStore.
type Options struct {
	Path     string
	Password string
	Env      Env
}

// Preview is the masked listing form of a secret.
type Preview struct {
	Name    string `json:"name"`
	Length  int    `json:"length"`
	Preview string `json:"preview"`
}

// FileStore reads and writes the encrypted secrets file. Each operation
// loads the file, so edits by other processes are picked up.
type FileStore struct {
	mu   sync.Mutex
	path string
	key  []byte
	env  Env
}

// NewFileStore derives the encryption key and returns a store.
func NewFileStore(optFns ...func(o *Options)) (*FileStore, error) {
	opts := Options{Path: DefaultFile, Password: DefaultPassword, Env: OSEnv{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	key, err := deriveKey(opts.Password)
	if err != nil {
		return nil, err
	}

	return &FileStore{path: opts.Path, key: key, env: opts.Env}, nil
}

// Path returns the secrets file location.
func (s *FileStore) Path() string { return s.path }

// List returns masked previews sorted by name.
func (s *FileStore) List() ([]Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make([]Preview, 0, len(secrets))
	for _, name := range sortedNames(secrets) {
		v := secrets[name]
		out = append(out, Preview{Name: name, Length: len(v), Preview: Mask(v)})
	}

	return out, nil
}

// Get returns a secret and exports it into the environment.
func (s *FileStore) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return "", err
	}

	v, ok := secrets[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err := s.env.Setenv(name, v); err != nil {
		return "", fmt.Errorf("export %s: %w", name, err)
	}

	return v, nil
}

// Set stores a secret, exports it and reports whether it was new.
func (s *FileStore) Set(name, value string) (bool, error) {
	if !namePattern.MatchString(name) {
		return false, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return false, err
	}

	_, existed := secrets[name]
	secrets[name] = value

	if err := s.save(secrets); err != nil {
		return false, err
	}

	if err := s.env.Setenv(name, value); err != nil {
		return false, fmt.Errorf("export %s: %w", name, err)
	}

	return !existed, nil
}

// Delete removes a secret from the file and the environment.
func (s *FileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := secrets[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	delete(secrets, name)

	if err := s.save(secrets); err != nil {
		return err
	}

	return s.env.Unsetenv(name)
}

// LoadAll exports every secret and returns their names.
func (s *FileStore) LoadAll() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return nil, err
	}

	names := sortedNames(secrets)
	for _, name := range names {
		if err := s.env.Setenv(name, secrets[name]); err != nil {
			return nil, fmt.Errorf("export %s: %w", name, err)
		}
	}

	return names, nil
}

// CheckRequired partitions required names into those available (stored or
// already in the environment) and those missing.
func (s *FileStore) CheckRequired(required []string) (present, missing []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return nil, nil, err
	}

	present, missing = []string{}, []string{}

	for _, name := range required {
		if _, ok := secrets[name]; ok || s.env.Getenv(name) != "" {
			present = append(present, name)
		} else {
			missing = append(missing, name)
		}
	}

	return present, missing, nil
}

// Mask renders the first and last four characters of v.
func Mask(v string) string {
	r := []rune(v)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}

	return string(r[:4]) + "..." + string(r[len(r)-4:])
}

func (s *FileStore) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}

	plain, err := open(s.key, strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, err
	}

	secrets := map[string]string{}
	if err := json.Unmarshal(plain, &secrets); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return secrets, nil
}

func (s *FileStore) save(secrets map[string]string) error {
	plain, err := json.Marshal(secrets)
	if err != nil {
		return err
	}

	sealed, err := seal(s.key, plain)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create secrets dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sealed), 0o600); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace secrets file: %w", err)
	}

	return nil
}

func deriveKey(password string) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), []byte(keySalt), 16384, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive secrets key: %w", err)
	}

	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

func seal(key, plain []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	out := gcm.Seal(nil, iv, plain, nil)
	ct, tag := out[:len(out)-tagSize], out[len(out)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

func open(key []byte, sealed string) ([]byte, error) {
	fields := strings.Split(sealed, ":")
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: malformed envelope", ErrDecrypt)
	}

	var parts [3][]byte
	for i, f := range fields {
		b, err := hex.DecodeString(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
		}
		parts[i] = b
	}

	iv, tag, ct := parts[0], parts[1], parts[2]
	if len(iv) != nonceSize || len(tag) != tagSize {
		return nil, fmt.Errorf("%w: malformed envelope", ErrDecrypt)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plain, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return plain, nil
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}
