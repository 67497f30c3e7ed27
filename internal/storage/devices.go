package storage

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/netops-tools/panos-ike/internal/crypto"
	"github.com/netops-tools/panos-ike/internal/validation"
	"github.com/netops-tools/panos-ike/pkg/types"
)

// Ensure FileStore implements DeviceStore
var _ DeviceStore = (*FileStore)(nil)

const (
	// DevicesFileName is the filename for the device profiles database
	DevicesFileName = "devices.json"

	databaseVersion = 1
)

// FileStore keeps device profiles in a JSON file, sealing each entry when a
// protection password is set
type FileStore struct {
	mu        sync.Mutex
	path      string
	sealer    *crypto.Sealer
	validator *validation.Validator
	devices   map[string]*types.DeviceProfile
}

// storedDevice is a profile as written to disk; Data is sealed JSON or plain JSON
type storedDevice struct {
	Name      string    `json:"name"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type devicesDatabase struct {
	Version   int                      `json:"version"`
	Encrypted bool                     `json:"encrypted"`
	Salt      string                   `json:"salt,omitempty"`
	Devices   map[string]*storedDevice `json:"devices"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// OpenFileStore loads configDir/devices.json. With an empty password entries
// are stored in plain text; an existing encrypted file then fails with ErrLocked.
func OpenFileStore(configDir, password string) (*FileStore, error) {
	store := &FileStore{
		path:      filepath.Join(configDir, DevicesFileName),
		validator: validation.NewValidator(),
		devices:   make(map[string]*types.DeviceProfile),
	}

	db, err := store.readDatabase()
	if err != nil {
		return nil, err
	}

	if password != "" {
		if err := crypto.ValidatePassword(password); err != nil {
			return nil, fmt.Errorf("invalid protection password: %w", err)
		}
		var salt []byte
		if db != nil && db.Encrypted {
			if salt, err = base64.StdEncoding.DecodeString(db.Salt); err != nil {
				return nil, fmt.Errorf("invalid salt in %s: %w", DevicesFileName, err)
			}
		}
		if store.sealer, err = crypto.NewSealer(password, salt); err != nil {
			return nil, err
		}
	}

	if db == nil {
		return store, nil
	}
	if db.Encrypted && store.sealer == nil {
		return nil, ErrLocked
	}

	for name, stored := range db.Devices {
		profile, err := store.decode(stored, db.Encrypted)
		if err != nil {
			if errors.Is(err, crypto.ErrDecrypt) {
				return nil, fmt.Errorf("failed to unlock device '%s': %w", name, err)
			}
			return nil, fmt.Errorf("failed to load device '%s': %w", name, err)
		}
		store.devices[name] = profile
	}

	return store, nil
}

// Path returns the database file location
func (s *FileStore) Path() string {
	return s.path
}

// Encrypted reports whether entries are sealed on save
func (s *FileStore) Encrypted() bool {
	return s.sealer != nil
}

// Get retrieves a copy of a device profile
func (s *FileStore) Get(name string) (*types.DeviceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.devices[name]
	if !exists {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, name)
	}
	cp := *p
	return &cp, nil
}

// Add validates and stores a new profile
func (s *FileStore) Add(profile types.DeviceProfile) error {
	if err := s.validate(profile); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.devices[profile.Name]; exists {
		return fmt.Errorf("%w: '%s'", ErrExists, profile.Name)
	}

	now := time.Now().UTC()
	profile.CreatedAt, profile.UpdatedAt = now, now
	s.devices[profile.Name] = &profile

	return s.save()
}

// Update replaces an existing profile, keeping its creation time
func (s *FileStore) Update(profile types.DeviceProfile) error {
	if err := s.validate(profile); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.devices[profile.Name]
	if !exists {
		return fmt.Errorf("%w: '%s'", ErrNotFound, profile.Name)
	}
	profile.CreatedAt = existing.CreatedAt
	profile.UpdatedAt = time.Now().UTC()
	s.devices[profile.Name] = &profile

	return s.save()
}

// Delete removes a profile
func (s *FileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.devices[name]; !exists {
		return fmt.Errorf("%w: '%s'", ErrNotFound, name)
	}
	delete(s.devices, name)

	return s.save()
}

// List returns metadata sorted by name
func (s *FileStore) List() []types.DeviceMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.DeviceMetadata, 0, len(s.devices))
	for _, p := range s.devices {
		out = append(out, p.Metadata())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Exists checks if a profile exists
func (s *FileStore) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.devices[name]
	return exists
}

// Close clears credentials from memory and wipes the key
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, p := range s.devices {
		p.Password = ""
		p.APIKey = ""
		delete(s.devices, name)
	}
	if s.sealer != nil {
		s.sealer.Close()
	}
	return nil
}

func (s *FileStore) validate(p types.DeviceProfile) error {
	if err := s.validator.ValidateDeviceName(p.Name); err != nil {
		return fmt.Errorf("invalid device name: %w", err)
	}
	if err := s.validator.ValidateAddress(p.Address); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	if p.Username != "" {
		if err := s.validator.ValidateUsername(p.Username); err != nil {
			return fmt.Errorf("invalid username: %w", err)
		}
	}
	for field, secret := range map[string]string{"password": p.Password, "api key": p.APIKey} {
		if secret == "" {
			continue
		}
		if err := s.validator.ValidateSecret(secret); err != nil {
			return fmt.Errorf("invalid %s: %w", field, err)
		}
	}
	return nil
}

// readDatabase returns nil when the file does not exist yet
func (s *FileStore) readDatabase() (*devicesDatabase, error) {
	data, err := os.ReadFile(s.path) // #nosec G304 - path constructed from the config directory
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read devices file: %w", err)
	}

	var db devicesDatabase
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("failed to parse devices database: %w", err)
	}
	if db.Version != databaseVersion {
		return nil, fmt.Errorf("unsupported devices database version %d", db.Version)
	}
	return &db, nil
}

func (s *FileStore) decode(stored *storedDevice, encrypted bool) (*types.DeviceProfile, error) {
	payload := []byte(stored.Data)
	if encrypted {
		opened, err := s.sealer.Open(stored.Data, []byte(stored.Name))
		if err != nil {
			return nil, err
		}
		payload = opened
	}

	var profile types.DeviceProfile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return nil, fmt.Errorf("failed to deserialize: %w", err)
	}
	if profile.Name != stored.Name {
		return nil, fmt.Errorf("entry name mismatch: %s", profile.Name)
	}
	return &profile, nil
}

// save writes every profile through a temp file and rename. Caller holds mu.
func (s *FileStore) save() error {
	db := &devicesDatabase{
		Version:   databaseVersion,
		Encrypted: s.sealer != nil,
		Devices:   make(map[string]*storedDevice, len(s.devices)),
		UpdatedAt: time.Now().UTC(),
	}
	if s.sealer != nil {
		db.Salt = base64.StdEncoding.EncodeToString(s.sealer.Salt())
	}

	for name, profile := range s.devices {
		payload, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("failed to serialize device '%s': %w", name, err)
		}

		data := string(payload)
		if s.sealer != nil {
			if data, err = s.sealer.Seal(payload, []byte(name)); err != nil {
				return fmt.Errorf("failed to encrypt device '%s': %w", name, err)
			}
		}
		crypto.SecureZero(payload)

		db.Devices[name] = &storedDevice{
			Name:      name,
			Data:      data,
			CreatedAt: profile.CreatedAt,
			UpdatedAt: profile.UpdatedAt,
		}
	}

	out, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize devices database: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, out, 0600); err != nil {
		return fmt.Errorf("failed to write devices to temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to atomically update devices file: %w", err)
	}
	return nil
}
