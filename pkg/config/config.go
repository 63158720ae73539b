// Package config stores named connection profiles
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"serialmon/pkg/serial"
)

// ErrProfileNotFound is returned when a named profile does not exist
var ErrProfileNotFound = errors.New("profile not found")

// AppName names the per-user configuration directory
const AppName = "serialmon"

// ProfileManager interface defines the contract for profile operations
type ProfileManager interface {
	Save(name string, cfg serial.SerialConfig, description string) error
	Load(name string) (Profile, error)
	List() ([]Profile, error)
	Delete(name string) error
	Exists(name string) bool
	UpdateLastUsed(name string) error
	Export(name, filePath string) error
	Import(filePath string) (Profile, error)
}

// Profile is a named set of connection parameters
type Profile struct {
	Name        string              `json:"name"`
	Config      serial.SerialConfig `json:"config"`
	CreatedAt   time.Time           `json:"created_at"`
	LastUsedAt  time.Time           `json:"last_used_at"`
	Description string              `json:"description,omitempty"`
}

// Validate checks if the profile is valid
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	if err := p.Config.Validate(); err != nil {
		return fmt.Errorf("invalid serial config: %w", err)
	}

	if p.CreatedAt.IsZero() {
		return fmt.Errorf("created_at timestamp cannot be zero")
	}

	return nil
}

type profileStorage struct {
	Profiles map[string]Profile `json:"profiles"`
	Version  string             `json:"version"`
}

// FileConfigManager implements ProfileManager on a JSON file
type FileConfigManager struct {
	mu         sync.Mutex
	configDir  string
	configFile string
	now        func() time.Time
}

// DefaultConfigDir returns the per-user directory for serialmon files
func DefaultConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// NewFileConfigManager creates a manager storing profiles.json in configDir
func NewFileConfigManager(configDir string) *FileConfigManager {
	return &FileConfigManager{
		configDir:  configDir,
		configFile: "profiles.json",
		now:        time.Now,
	}
}

// Dir returns the directory holding the profile file
func (m *FileConfigManager) Dir() string {
	return m.configDir
}

// Path returns the full path to the profile file
func (m *FileConfigManager) Path() string {
	return filepath.Join(m.configDir, m.configFile)
}

// Save stores cfg under name. A new profile has never been used; an existing
// one keeps its creation and last-used times, and its description unless a
// new one is given.
func (m *FileConfigManager) Save(name string, cfg serial.SerialConfig, description string) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	storage, err := m.loadStorage()
	if err != nil {
		return err
	}

	now := m.now()
	profile := Profile{
		Name:        name,
		Config:      cfg,
		CreatedAt:   now,
		Description: description,
	}

	if existing, exists := storage.Profiles[name]; exists {
		profile.CreatedAt = existing.CreatedAt
		profile.LastUsedAt = existing.LastUsedAt
		if description == "" {
			profile.Description = existing.Description
		}
	}

	storage.Profiles[name] = profile

	if err := m.saveStorage(storage); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Load returns the named profile
func (m *FileConfigManager) Load(name string) (Profile, error) {
	if name == "" {
		return Profile{}, fmt.Errorf("profile name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	storage, err := m.loadStorage()
	if err != nil {
		return Profile{}, err
	}

	profile, exists := storage.Profiles[name]
	if !exists {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return profile, nil
}

// List returns all profiles sorted by name
func (m *FileConfigManager) List() ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	storage, err := m.loadStorage()
	if err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(storage.Profiles))
	for _, p := range storage.Profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Name < profiles[j].Name
	})
	return profiles, nil
}

// Delete removes the named profile
func (m *FileConfigManager) Delete(name string) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	storage, err := m.loadStorage()
	if err != nil {
		return err
	}

	if _, exists := storage.Profiles[name]; !exists {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	delete(storage.Profiles, name)

	if err := m.saveStorage(storage); err != nil {
		return fmt.Errorf("failed to save profiles after deletion: %w", err)
	}
	return nil
}

// Exists reports whether a profile with the given name exists
func (m *FileConfigManager) Exists(name string) bool {
	if name == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	storage, err := m.loadStorage()
	if err != nil {
		return false
	}

	_, exists := storage.Profiles[name]
	return exists
}

// UpdateLastUsed stamps the named profile with the current time
func (m *FileConfigManager) UpdateLastUsed(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	storage, err := m.loadStorage()
	if err != nil {
		return err
	}

	profile, exists := storage.Profiles[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	profile.LastUsedAt = m.now()
	storage.Profiles[name] = profile
	return m.saveStorage(storage)
}

// Export writes the named profile to filePath as JSON
func (m *FileConfigManager) Export(name, filePath string) error {
	if filePath == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	profile, err := m.Load(name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}
	return nil
}

// Import reads a profile exported by Export and saves it
func (m *FileConfigManager) Import(filePath string) (Profile, error) {
	if filePath == "" {
		return Profile{}, fmt.Errorf("file path cannot be empty")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read profile file: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("failed to parse profile file: %w", err)
	}

	if err := profile.Validate(); err != nil {
		return Profile{}, fmt.Errorf("invalid profile in file: %w", err)
	}

	if err := m.Save(profile.Name, profile.Config, profile.Description); err != nil {
		return Profile{}, err
	}
	return m.Load(profile.Name)
}

func (m *FileConfigManager) loadStorage() (profileStorage, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return profileStorage{Profiles: make(map[string]Profile), Version: "1.0"}, nil
		}
		return profileStorage{}, fmt.Errorf("failed to read profile file: %w", err)
	}

	var storage profileStorage
	if err := json.Unmarshal(data, &storage); err != nil {
		return profileStorage{}, fmt.Errorf("failed to parse profile file: %w", err)
	}

	if storage.Profiles == nil {
		storage.Profiles = make(map[string]Profile)
	}
	return storage, nil
}

func (m *FileConfigManager) saveStorage(storage profileStorage) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(storage, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	// Write to temporary file first, then rename for atomic operation
	path := m.Path()
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary profile file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary profile file: %w", err)
	}
	return nil
}
