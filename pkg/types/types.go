package types

import "time"

// DeviceProfile is a named set of connection settings for one firewall
type DeviceProfile struct {
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Username  string    `json:"username,omitempty"`
	Password  string    `json:"password,omitempty"` // literal or keeper:// reference
	APIKey    string    `json:"api_key,omitempty"`  // literal or keeper:// reference
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata returns the non-secret view of the profile
func (p *DeviceProfile) Metadata() DeviceMetadata {
	return DeviceMetadata{
		Name:        p.Name,
		Address:     p.Address,
		Username:    p.Username,
		HasPassword: p.Password != "",
		HasAPIKey:   p.APIKey != "",
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// DeviceMetadata is what listing commands may print
type DeviceMetadata struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	Username    string    `json:"username,omitempty"`
	HasPassword bool      `json:"has_password"`
	HasAPIKey   bool      `json:"has_api_key"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Confirmation represents user confirmation settings
type Confirmation struct {
	BatchMode   bool          `json:"batch_mode"`
	AutoApprove bool          `json:"auto_approve"`
	Timeout     time.Duration `json:"timeout"`
	DefaultDeny bool          `json:"default_deny"`
}
