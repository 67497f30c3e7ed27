package validation

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	// MaxObjectNameLength is the longest name PAN-OS accepts for a crypto profile
	MaxObjectNameLength = 31
	// MaxDeviceNameLength bounds locally stored device profile names
	MaxDeviceNameLength = 64
)

// Validator provides input validation for device and profile parameters
type Validator struct {
	objectNamePattern *regexp.Regexp
	deviceNamePattern *regexp.Regexp
	hostnamePattern   *regexp.Regexp

	// Patterns that must never reach an XML API query string
	injectionPatterns []*regexp.Regexp
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		// PAN-OS object names: start alphanumeric, then alphanumerics, dot, underscore, hyphen or space
		objectNamePattern: regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._ -]*$`),

		// Device profile name: alphanumeric with underscores, hyphens, dots (1-64 chars)
		deviceNamePattern: regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`),

		// RFC 1123 hostname labels
		hostnamePattern: regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`),

		injectionPatterns: []*regexp.Regexp{
			regexp.MustCompile(`['"]`),  // Quotes break xpath predicates
			regexp.MustCompile(`[<>&]`), // XML markup
			regexp.MustCompile(`\[|\]`), // Xpath predicates
			regexp.MustCompile(`\n|\r`), // Newlines
			regexp.MustCompile(`\x00`),  // Null bytes
		},
	}
}

// ValidateObjectName validates a PAN-OS object name such as an IKE crypto profile name
func (v *Validator) ValidateObjectName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if len(name) > MaxObjectNameLength {
		return fmt.Errorf("name too long: maximum %d characters", MaxObjectNameLength)
	}

	if v.containsInjection(name) {
		return fmt.Errorf("name contains invalid characters")
	}

	if !v.objectNamePattern.MatchString(name) {
		return fmt.Errorf("invalid name: must start with an alphanumeric character and contain only alphanumerics, dots, underscores, hyphens and spaces")
	}

	return nil
}

// ValidateDeviceName validates the name of a locally stored device profile
func (v *Validator) ValidateDeviceName(name string) error {
	if name == "" {
		return fmt.Errorf("device name cannot be empty")
	}

	if len(name) > MaxDeviceNameLength {
		return fmt.Errorf("device name too long: maximum %d characters", MaxDeviceNameLength)
	}

	if !v.deviceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid device name: must contain only alphanumeric characters, dots, underscores, and hyphens")
	}

	reservedNames := []string{"config", "devices", "default"}
	nameLower := strings.ToLower(name)
	for _, reserved := range reservedNames {
		if nameLower == reserved {
			return fmt.Errorf("device name '%s' is reserved", name)
		}
	}

	return nil
}

// ValidateAddress validates a management address: hostname, IPv4, IPv6 or any of them with a port.
// An http:// or https:// prefix is accepted.
func (v *Validator) ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	// Brackets are legal here for IPv6 literals
	if strings.ContainsAny(address, "'\"<>&\x00\n\r \t") {
		return fmt.Errorf("address contains invalid characters")
	}

	host := address
	if i := strings.Index(host, "://"); i >= 0 {
		scheme := strings.ToLower(host[:i])
		if scheme != "http" && scheme != "https" {
			return fmt.Errorf("unsupported address scheme '%s'", scheme)
		}
		host = host[i+3:]
	}
	host = strings.TrimSuffix(host, "/")

	if h, port, err := net.SplitHostPort(host); err == nil {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("invalid port '%s'", port)
		}
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")

	if host == "" {
		return fmt.Errorf("address has no host")
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if len(host) > 253 || !v.hostnamePattern.MatchString(host) {
		return fmt.Errorf("invalid host '%s'", host)
	}

	return nil
}

// ValidateUsername validates a device administrator username
func (v *Validator) ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if len(username) > 255 {
		return fmt.Errorf("username cannot exceed 255 characters")
	}

	if v.containsInjection(username) {
		return fmt.Errorf("username contains invalid characters")
	}

	for _, r := range username {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("username contains invalid characters")
		}
	}

	return nil
}

// ValidateSecret checks that a password or API key is usable as a form value
func (v *Validator) ValidateSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("secret cannot be empty")
	}
	if strings.ContainsAny(secret, "\x00\n\r") {
		return fmt.Errorf("secret contains invalid characters")
	}
	return nil
}

// containsInjection checks if input contains characters that would escape an xpath or XML element
func (v *Validator) containsInjection(input string) bool {
	for _, pattern := range v.injectionPatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}

// TruncateString safely truncates a string to a maximum length
func (v *Validator) TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}

	return string(runes[:maxLen-3]) + "..."
}
