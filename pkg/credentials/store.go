// Package credentials manages the local store of Encapsia hosts and session
// tokens, conventionally kept in ~/.encapsia/credentials.toml.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
)

// Entry is one stored credential: a host and the session token for it.
type Entry struct {
	Host  string `toml:"host"`
	Token string `toml:"token"`
}

// LabelNotFoundError is returned when a label has no stored credentials.
type LabelNotFoundError struct {
	Label string
}

func (e *LabelNotFoundError) Error() string {
	return fmt.Sprintf("no stored credentials for label %q", e.Label)
}

// Store reads and writes labelled credentials in a TOML file. The file is
// re-read when its modification time advances, so concurrent processes see
// each other's changes.
type Store struct {
	mu      sync.Mutex
	fs      afero.Fs
	path    string
	mtime   time.Time
	entries map[string]Entry
}

// DefaultPath returns the conventional credentials file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".encapsia", "credentials.toml"), nil
}

// Open opens (creating if needed) the store at the default path.
func Open() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return OpenAt(afero.NewOsFs(), path)
}

// OpenAt opens (creating if needed) a store at the given path. The directory
// is created 0700 and the file 0600; tokens are secrets.
func OpenAt(fs afero.Fs, path string) (*Store, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credentials dir: %w", err)
	}
	if _, err := fs.Stat(path); os.IsNotExist(err) {
		if err := afero.WriteFile(fs, path, nil, 0o600); err != nil {
			return nil, fmt.Errorf("failed to create credentials file: %w", err)
		}
	}

	s := &Store{fs: fs, path: path, entries: map[string]Entry{}}
	if err := s.refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// refresh reloads the file if it changed on disk. Callers hold the lock.
func (s *Store) refresh() error {
	info, err := s.fs.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to stat credentials file: %w", err)
	}
	if !info.ModTime().After(s.mtime) {
		return nil
	}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return fmt.Errorf("failed to read credentials file: %w", err)
	}
	entries := map[string]Entry{}
	if err := toml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}

	s.entries = entries
	s.mtime = info.ModTime()
	return nil
}

func (s *Store) save() error {
	data, err := toml.Marshal(s.entries)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}

	info, err := s.fs.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to stat credentials file: %w", err)
	}
	s.mtime = info.ModTime()
	return nil
}

// Get returns the host and token stored under label.
func (s *Store) Get(label string) (host, token string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return "", "", err
	}
	entry, ok := s.entries[label]
	if !ok {
		return "", "", &LabelNotFoundError{Label: label}
	}
	return entry.Host, entry.Token, nil
}

// Set stores the host and token under label.
func (s *Store) Set(label, host, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return err
	}
	s.entries[label] = Entry{Host: host, Token: token}
	return s.save()
}

// Remove deletes the credentials stored under label, if any.
func (s *Store) Remove(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return err
	}
	delete(s.entries, label)
	return s.save()
}

// Labels returns the stored labels.
func (s *Store) Labels() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(s.entries))
	for label := range s.entries {
		labels = append(labels, label)
	}
	return labels, nil
}

// Discover resolves a host name or store label to (url, token).
//
// The ENCAPSIA_URL and ENCAPSIA_TOKEN environment variables win when both
// are set and hostOrLabel is empty. A value containing a dot or scheme is
// taken as a host, with the token from ENCAPSIA_TOKEN; anything else is
// looked up as a label in the default store.
func Discover(hostOrLabel string) (string, string, error) {
	envURL, envToken := os.Getenv("ENCAPSIA_URL"), os.Getenv("ENCAPSIA_TOKEN")

	if hostOrLabel == "" {
		if envURL != "" && envToken != "" {
			return envURL, envToken, nil
		}
		return "", "", fmt.Errorf("no host given and ENCAPSIA_URL/ENCAPSIA_TOKEN not set")
	}

	if strings.Contains(hostOrLabel, "://") || strings.Contains(hostOrLabel, ".") {
		if envToken == "" {
			return "", "", fmt.Errorf("host %q given but ENCAPSIA_TOKEN not set", hostOrLabel)
		}
		return hostOrLabel, envToken, nil
	}

	store, err := Open()
	if err != nil {
		return "", "", err
	}
	return store.Get(hostOrLabel)
}
