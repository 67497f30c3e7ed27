// Package ike models IKE phase 1 crypto profiles and the parameters used to
// declare one.
package ike

import (
	"fmt"
	"slices"
	"strings"
)

// DHGroup is a Diffie-Hellman group identifier
type DHGroup string

// Supported DH groups, in the order PAN-OS lists them
const (
	Group1  DHGroup = "group1"
	Group2  DHGroup = "group2"
	Group5  DHGroup = "group5"
	Group14 DHGroup = "group14"
	Group19 DHGroup = "group19"
	Group20 DHGroup = "group20"
)

// Hash is an IKE phase 1 authentication hash
type Hash string

const (
	HashMD5    Hash = "md5"
	HashSHA1   Hash = "sha1"
	HashSHA256 Hash = "sha256"
	HashSHA384 Hash = "sha384"
	HashSHA512 Hash = "sha512"
)

// Cipher is an IKE phase 1 encryption algorithm
type Cipher string

const (
	CipherDES       Cipher = "des"
	Cipher3DES      Cipher = "3des"
	CipherAES128CBC Cipher = "aes-128-cbc"
	CipherAES192CBC Cipher = "aes-192-cbc"
	CipherAES256CBC Cipher = "aes-256-cbc"
)

// LifetimeUnit is the unit of a key lifetime
type LifetimeUnit string

const (
	Seconds LifetimeUnit = "seconds"
	Minutes LifetimeUnit = "minutes"
	Hours   LifetimeUnit = "hours"
	Days    LifetimeUnit = "days"
)

var (
	// DHGroups lists every accepted DH group
	DHGroups = []DHGroup{Group1, Group2, Group5, Group14, Group19, Group20}
	// Hashes lists every accepted authentication hash
	Hashes = []Hash{HashMD5, HashSHA1, HashSHA256, HashSHA384, HashSHA512}
	// Ciphers lists every accepted encryption algorithm
	Ciphers = []Cipher{CipherDES, Cipher3DES, CipherAES128CBC, CipherAES192CBC, CipherAES256CBC}
	// LifetimeUnits lists the lifetime units in ascending size
	LifetimeUnits = []LifetimeUnit{Seconds, Minutes, Hours, Days}
)

// lifetimeRanges holds the inclusive value range PAN-OS accepts per unit
var lifetimeRanges = map[LifetimeUnit][2]int{
	Seconds: {180, 65535},
	Minutes: {3, 65535},
	Hours:   {1, 65535},
	Days:    {1, 365},
}

// DefaultLifetime matches the firewall's own default key lifetime
var DefaultLifetime = Lifetime{Unit: Hours, Value: 8}

// Lifetime is an IKE phase 1 key lifetime. Exactly one unit is ever set.
type Lifetime struct {
	Unit  LifetimeUnit `json:"unit" toml:"unit"`
	Value int          `json:"value" toml:"value"`
}

// IsZero reports whether no lifetime has been set
func (l Lifetime) IsZero() bool {
	return l.Unit == "" && l.Value == 0
}

// String renders the lifetime as "8 hours"
func (l Lifetime) String() string {
	if l.IsZero() {
		return "unset"
	}
	return fmt.Sprintf("%d %s", l.Value, l.Unit)
}

// Validate checks the unit and the value range for that unit
func (l Lifetime) Validate() error {
	r, ok := lifetimeRanges[l.Unit]
	if !ok {
		return fmt.Errorf("unknown lifetime unit '%s'", l.Unit)
	}
	if l.Value < r[0] || l.Value > r[1] {
		return fmt.Errorf("lifetime %s must be between %d and %d", l.Unit, r[0], r[1])
	}
	return nil
}

// Profile is an IKE crypto profile as configured on a firewall.
// Slices are ordered by proposal priority.
type Profile struct {
	Name           string    `json:"name"`
	DHGroups       []DHGroup `json:"dh_group"`
	Authentication []Hash    `json:"authentication"`
	Encryption     []Cipher  `json:"encryption"`
	Lifetime       Lifetime  `json:"lifetime"`
}

// Equal compares every setting except the name. Proposal order is significant.
func (p Profile) Equal(other Profile) bool {
	return slices.Equal(p.DHGroups, other.DHGroups) &&
		slices.Equal(p.Authentication, other.Authentication) &&
		slices.Equal(p.Encryption, other.Encryption) &&
		p.Lifetime == other.Lifetime
}

// Clone returns a deep copy
func (p Profile) Clone() Profile {
	return Profile{
		Name:           p.Name,
		DHGroups:       slices.Clone(p.DHGroups),
		Authentication: slices.Clone(p.Authentication),
		Encryption:     slices.Clone(p.Encryption),
		Lifetime:       p.Lifetime,
	}
}

// Summary renders a single-line description for logs and CLI output
func (p Profile) Summary() string {
	return fmt.Sprintf("dh-group=[%s] authentication=[%s] encryption=[%s] lifetime=%s",
		join(p.DHGroups), join(p.Authentication), join(p.Encryption), p.Lifetime)
}

func join[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

// State is the desired presence of a profile on the device
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// Valid reports whether s is one of the supported states
func (s State) Valid() bool {
	return s == StatePresent || s == StateAbsent
}

// Connection holds what is needed to reach and authenticate to a device
type Connection struct {
	Address  string
	Username string
	Password string
	APIKey   string
}

// String never includes credentials
func (c Connection) String() string {
	return fmt.Sprintf("%s@%s", c.Username, c.Address)
}
