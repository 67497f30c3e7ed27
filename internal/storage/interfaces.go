package storage

import (
	"errors"

	"github.com/netops-tools/panos-ike/pkg/types"
)

var (
	// ErrNotFound is returned when a device profile does not exist
	ErrNotFound = errors.New("device profile not found")
	// ErrExists is returned when adding a name that is already taken
	ErrExists = errors.New("device profile already exists")
	// ErrLocked is returned when an encrypted store is opened without a password
	ErrLocked = errors.New("device store is encrypted; a protection password is required")
)

// DeviceStore defines the interface for device profile storage
type DeviceStore interface {
	Get(name string) (*types.DeviceProfile, error)
	Add(profile types.DeviceProfile) error
	Update(profile types.DeviceProfile) error
	Delete(name string) error
	List() []types.DeviceMetadata
	Exists(name string) bool
}
