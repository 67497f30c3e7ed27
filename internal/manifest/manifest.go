// Package manifest loads a TOML file declaring many IKE crypto profiles for one device.
//
//	commit = true
//
//	[device]
//	name = "lab-fw"          # stored device, or address/username/password/api_key
//
//	[[profile]]
//	name = "ike-aes256"
//	dh_group = ["group14"]
//	authentication = ["sha256"]
//	encryption = ["aes-256-cbc"]
//	lifetime_hours = 8
package manifest

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/netops-tools/panos-ike/internal/ike"
)

// Device selects the target firewall. Name refers to a stored device profile;
// the remaining fields override or replace it.
type Device struct {
	Name     string `toml:"name"`
	Address  string `toml:"address"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	APIKey   string `toml:"api_key"`
}

// Profile is one [[profile]] entry
type Profile struct {
	Name           string    `toml:"name"`
	State          ike.State `toml:"state"`
	DHGroups       []string  `toml:"dh_group"`
	Authentication []string  `toml:"authentication"`
	Encryption     []string  `toml:"encryption"`

	LifetimeSeconds *int `toml:"lifetime_seconds"`
	LifetimeMinutes *int `toml:"lifetime_minutes"`
	LifetimeHours   *int `toml:"lifetime_hours"`
	LifetimeDays    *int `toml:"lifetime_days"`
}

// Manifest is a parsed manifest file
type Manifest struct {
	Commit   bool
	Device   Device
	Profiles []Profile
}

type fileManifest struct {
	Commit   bool      `toml:"commit"`
	Device   Device    `toml:"device"`
	Profiles []Profile `toml:"profile"`
}

// Load reads and parses the manifest at path
func Load(path string) (*Manifest, error) {
	var raw fileManifest
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	return build(raw, meta)
}

// Parse parses manifest content
func Parse(data string) (*Manifest, error) {
	var raw fileManifest
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return build(raw, meta)
}

func build(raw fileManifest, meta toml.MetaData) (*Manifest, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, &ike.ConfigError{Field: "manifest", Reason: "unknown keys: " + strings.Join(keys, ", ")}
	}
	if len(raw.Profiles) == 0 {
		return nil, &ike.ConfigError{Field: "manifest", Reason: "no [[profile]] entries"}
	}

	seen := make(map[string]bool, len(raw.Profiles))
	for i, p := range raw.Profiles {
		if p.Name == "" {
			return nil, &ike.ConfigError{Field: fmt.Sprintf("profile[%d].name", i), Reason: "is required"}
		}
		if seen[p.Name] {
			return nil, &ike.ConfigError{Field: fmt.Sprintf("profile[%d].name", i), Reason: fmt.Sprintf("'%s' is declared more than once", p.Name)}
		}
		seen[p.Name] = true
	}

	m := &Manifest{
		Commit:   true,
		Device:   raw.Device,
		Profiles: raw.Profiles,
	}
	if meta.IsDefined("commit") {
		m.Commit = raw.Commit
	}
	return m, nil
}

// Params merges each profile onto base, which carries the connection settings
func (m *Manifest) Params(base ike.Params) []ike.Params {
	out := make([]ike.Params, 0, len(m.Profiles))
	for _, p := range m.Profiles {
		params := base
		params.Name = p.Name
		params.State = p.State
		params.DHGroups = p.DHGroups
		params.Authentication = p.Authentication
		params.Encryption = p.Encryption
		params.LifetimeSeconds = p.LifetimeSeconds
		params.LifetimeMinutes = p.LifetimeMinutes
		params.LifetimeHours = p.LifetimeHours
		params.LifetimeDays = p.LifetimeDays
		params.Commit = m.Commit
		out = append(out, params)
	}
	return out
}

// Requests validates every profile against base and returns them in file order
func (m *Manifest) Requests(base ike.Params) ([]*ike.Request, error) {
	params := m.Params(base)
	out := make([]*ike.Request, 0, len(params))
	for _, p := range params {
		req, err := p.Validate()
		if err != nil {
			return nil, fmt.Errorf("profile '%s': %w", p.Name, err)
		}
		out = append(out, req)
	}
	return out, nil
}
