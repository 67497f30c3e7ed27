package validation

import (
	"strings"
	"testing"
)

func TestNewValidator(t *testing.T) {
	v := NewValidator()
	if v == nil {
		t.Fatal("NewValidator returned nil")
	}

	if v.objectNamePattern == nil {
		t.Error("Object name pattern not initialized")
	}
	if v.hostnamePattern == nil {
		t.Error("Hostname pattern not initialized")
	}
	if len(v.injectionPatterns) == 0 {
		t.Error("Injection patterns not initialized")
	}
}

func TestValidateObjectName(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name       string
		objectName string
		wantErr    bool
	}{
		// Valid names
		{"simple", "default", false},
		{"aws style", "vpn-0cc61dd8c06f95cfd-0", false},
		{"with dot and underscore", "ike_phase1.v2", false},
		{"with space", "branch office", false},
		{"max length", strings.Repeat("a", 31), false},

		// Invalid names
		{"empty", "", true},
		{"too long", strings.Repeat("a", 32), true},
		{"leading hyphen", "-vpn", true},
		{"leading space", " vpn", true},
		{"single quote", "vpn'1", true},
		{"xpath predicate", "vpn[1]", true},
		{"xml markup", "<entry>", true},
		{"newline", "vpn\n1", true},
		{"slash", "vpn/1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateObjectName(tt.objectName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateObjectName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDeviceName(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name       string
		deviceName string
		wantErr    bool
	}{
		{"simple name", "edge-fw", false},
		{"with dot", "fw.lab", false},
		{"mixed", "DC1-fw_02.mgmt", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 65), true},
		{"with spaces", "edge fw", true},
		{"with slash", "edge/fw", true},
		{"reserved default", "default", true},
		{"reserved uppercase", "CONFIG", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateDeviceName(tt.deviceName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDeviceName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"ipv4", "192.0.2.10", false},
		{"ipv4 with port", "192.0.2.10:8443", false},
		{"hostname", "fw01.example.net", false},
		{"https url", "https://fw01.example.net/", false},
		{"ipv6", "2001:db8::1", false},
		{"bracketed ipv6 with port", "[2001:db8::1]:443", false},

		{"empty", "", true},
		{"bad scheme", "ftp://fw01", true},
		{"bad port", "fw01:99999", true},
		{"non numeric port", "fw01:https", true},
		{"space", "fw 01", true},
		{"quote", "fw01'", true},
		{"underscore host", "fw_01.example.net", true},
		{"scheme only", "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateAddress(tt.address)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"admin", "admin", false},
		{"domain style", "corp\\netops", false},
		{"email style", "netops@example.com", false},

		{"empty", "", true},
		{"too long", strings.Repeat("u", 256), true},
		{"with space", "net ops", true},
		{"with quote", "admin'", true},
		{"with tab", "admin\t", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateUsername(tt.username)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSecret(t *testing.T) {
	v := NewValidator()

	if err := v.ValidateSecret("p@ss'w<o>rd"); err != nil {
		t.Errorf("markup characters are legal in secrets: %v", err)
	}
	if err := v.ValidateSecret(""); err == nil {
		t.Error("expected error for empty secret")
	}
	if err := v.ValidateSecret("abc\n"); err == nil {
		t.Error("expected error for newline in secret")
	}
}

func TestTruncateString(t *testing.T) {
	v := NewValidator()

	if got := v.TruncateString("short", 10); got != "short" {
		t.Errorf("TruncateString() = %q, want %q", got, "short")
	}
	if got := v.TruncateString("abcdefghijkl", 8); got != "abcde..." {
		t.Errorf("TruncateString() = %q, want %q", got, "abcde...")
	}
}
