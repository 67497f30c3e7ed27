package ike

import (
	"fmt"
	"slices"

	"github.com/netops-tools/panos-ike/internal/validation"
)

// DefaultUsername is used when no username is supplied
const DefaultUsername = "admin"

var (
	defaultDHGroups       = []string{string(Group2)}
	defaultAuthentication = []string{string(HashSHA1)}
	defaultEncryption     = []string{string(CipherAES256CBC), string(Cipher3DES)}
)

// ConfigError reports bad or contradictory input detected before any remote call
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Params is the full set of invocation parameters for one profile.
// Lifetime fields are pointers so "unset" differs from zero.
type Params struct {
	Address  string `toml:"address"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	APIKey   string `toml:"api_key"`

	State          State    `toml:"state"`
	Name           string   `toml:"name"`
	DHGroups       []string `toml:"dh_group"`
	Authentication []string `toml:"authentication"`
	Encryption     []string `toml:"encryption"`

	LifetimeSeconds *int `toml:"lifetime_seconds"`
	LifetimeMinutes *int `toml:"lifetime_minutes"`
	LifetimeHours   *int `toml:"lifetime_hours"`
	LifetimeDays    *int `toml:"lifetime_days"`

	Commit bool `toml:"commit"`
}

// DefaultParams returns parameters with every documented default applied
func DefaultParams() Params {
	return Params{
		Username:       DefaultUsername,
		State:          StatePresent,
		DHGroups:       slices.Clone(defaultDHGroups),
		Authentication: slices.Clone(defaultAuthentication),
		Encryption:     slices.Clone(defaultEncryption),
		Commit:         true,
	}
}

// Request is a validated, fully defaulted reconciliation request
type Request struct {
	Conn    Connection
	Profile Profile
	State   State
	Commit  bool
}

// Validate checks the parameters and builds the effective request.
// It never contacts the device.
func (p Params) Validate() (*Request, error) {
	v := validation.NewValidator()

	if p.Password == "" && p.APIKey == "" {
		return nil, &ConfigError{Field: "password", Reason: "one of password or api_key is required"}
	}
	if p.Password != "" {
		if err := v.ValidateSecret(p.Password); err != nil {
			return nil, &ConfigError{Field: "password", Reason: err.Error()}
		}
	}
	if p.APIKey != "" {
		if err := v.ValidateSecret(p.APIKey); err != nil {
			return nil, &ConfigError{Field: "api_key", Reason: err.Error()}
		}
	}

	lifetime, err := p.lifetime()
	if err != nil {
		return nil, err
	}

	if err := v.ValidateAddress(p.Address); err != nil {
		return nil, &ConfigError{Field: "address", Reason: err.Error()}
	}

	username := p.Username
	if username == "" {
		username = DefaultUsername
	}
	if err := v.ValidateUsername(username); err != nil {
		return nil, &ConfigError{Field: "username", Reason: err.Error()}
	}

	if err := v.ValidateObjectName(p.Name); err != nil {
		return nil, &ConfigError{Field: "name", Reason: err.Error()}
	}

	dhGroups, err := parseMembers("dh_group", orDefault(p.DHGroups, defaultDHGroups), DHGroups)
	if err != nil {
		return nil, err
	}
	hashes, err := parseMembers("authentication", orDefault(p.Authentication, defaultAuthentication), Hashes)
	if err != nil {
		return nil, err
	}
	ciphers, err := parseMembers("encryption", orDefault(p.Encryption, defaultEncryption), Ciphers)
	if err != nil {
		return nil, err
	}

	state := p.State
	if state == "" {
		state = StatePresent
	}

	return &Request{
		Conn: Connection{
			Address:  p.Address,
			Username: username,
			Password: p.Password,
			APIKey:   p.APIKey,
		},
		Profile: Profile{
			Name:           p.Name,
			DHGroups:       dhGroups,
			Authentication: hashes,
			Encryption:     ciphers,
			Lifetime:       lifetime,
		},
		State:  state,
		Commit: p.Commit,
	}, nil
}

// lifetime enforces that at most one unit is set, then applies the 8 hour default
func (p Params) lifetime() (Lifetime, error) {
	candidates := []struct {
		unit  LifetimeUnit
		value *int
	}{
		{Seconds, p.LifetimeSeconds},
		{Minutes, p.LifetimeMinutes},
		{Hours, p.LifetimeHours},
		{Days, p.LifetimeDays},
	}

	var set []Lifetime
	for _, c := range candidates {
		if c.value != nil {
			set = append(set, Lifetime{Unit: c.unit, Value: *c.value})
		}
	}

	switch len(set) {
	case 0:
		return DefaultLifetime, nil
	case 1:
		if err := set[0].Validate(); err != nil {
			return Lifetime{}, &ConfigError{Field: "lifetime_" + string(set[0].Unit), Reason: err.Error()}
		}
		return set[0], nil
	default:
		return Lifetime{}, &ConfigError{
			Field:  "lifetime",
			Reason: "lifetime_seconds, lifetime_minutes, lifetime_hours and lifetime_days are mutually exclusive",
		}
	}
}

func orDefault(values, def []string) []string {
	if len(values) == 0 {
		return def
	}
	return values
}

// parseMembers converts raw strings to enum values, rejecting unknown values and duplicates
func parseMembers[T ~string](field string, raw []string, allowed []T) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		val := T(r)
		if !slices.Contains(allowed, val) {
			return nil, &ConfigError{Field: field, Reason: fmt.Sprintf("unsupported value '%s' (choose from %s)", r, join(allowed))}
		}
		if slices.Contains(out, val) {
			return nil, &ConfigError{Field: field, Reason: fmt.Sprintf("duplicate value '%s'", r)}
		}
		out = append(out, val)
	}
	return out, nil
}

// IntPtr is a helper for populating lifetime fields
func IntPtr(v int) *int {
	return &v
}
