// Package secrets resolves keeper:// credential references through Keeper Secrets Manager.
package secrets

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sm "github.com/keeper-security/secrets-manager-go/core"

	"github.com/netops-tools/panos-ike/internal/ike"
)

// Prefix marks a value as a Keeper notation reference, e.g.
// keeper://XXXXXXXXXXXXXXXXXXXXXX/field/password
const Prefix = "keeper://"

// ErrNoKeeperConfig is returned when a reference is used without keeper.config set
var ErrNoKeeperConfig = errors.New("keeper:// reference used but no Keeper config is set (keeper.config)")

// NotationGetter is the part of the Secrets Manager client the resolver needs
type NotationGetter interface {
	GetNotation(notation string) ([]interface{}, error)
}

// Resolver replaces keeper:// references with the secret they point at.
// The Secrets Manager client is only built when the first reference is seen.
type Resolver struct {
	source string

	once   sync.Once
	getter NotationGetter
	err    error
}

// NewResolver creates a resolver for a KSM config given as a file path or base64 JSON
func NewResolver(source string) *Resolver {
	return &Resolver{source: source}
}

// NewResolverWithClient uses an existing client
func NewResolverWithClient(getter NotationGetter) *Resolver {
	r := &Resolver{getter: getter}
	r.once.Do(func() {})
	return r
}

// IsReference reports whether value is a keeper:// reference
func IsReference(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Resolve returns value unchanged unless it is a reference
func (r *Resolver) Resolve(value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}

	notation := strings.TrimPrefix(value, Prefix)
	if notation == "" {
		return "", errors.New("empty keeper:// reference")
	}

	getter, err := r.client()
	if err != nil {
		return "", err
	}

	results, err := getter.GetNotation(notation)
	if err != nil {
		return "", fmt.Errorf("failed to resolve keeper reference: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("keeper reference '%s' returned no value", notation)
	}

	s, ok := results[0].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("keeper reference '%s' is not a non-empty string", notation)
	}
	return s, nil
}

// ResolveConnection resolves the password and API key of conn in place
func (r *Resolver) ResolveConnection(conn *ike.Connection) error {
	password, err := r.Resolve(conn.Password)
	if err != nil {
		return fmt.Errorf("password: %w", err)
	}
	apiKey, err := r.Resolve(conn.APIKey)
	if err != nil {
		return fmt.Errorf("api_key: %w", err)
	}
	conn.Password, conn.APIKey = password, apiKey
	return nil
}

func (r *Resolver) client() (NotationGetter, error) {
	r.once.Do(func() {
		if r.source == "" {
			r.err = ErrNoKeeperConfig
			return
		}
		config, err := LoadConfig(r.source)
		if err != nil {
			r.err = err
			return
		}
		client := sm.NewSecretsManager(&sm.ClientOptions{
			Config: sm.NewMemoryKeyValueStorage(config),
		})
		if client == nil {
			r.err = errors.New("failed to create secrets manager client")
			return
		}
		r.getter = client
	})
	return r.getter, r.err
}

// LoadConfig reads a KSM config from a file path or a base64-encoded JSON string
func LoadConfig(source string) (map[string]string, error) {
	var data []byte
	var err error

	if strings.ContainsAny(source, "/\\") || strings.HasPrefix(source, "~") || strings.HasPrefix(source, ".") {
		path := source
		if strings.HasPrefix(path, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			path = filepath.Join(home, path[1:])
		}
		data, err = os.ReadFile(filepath.Clean(path)) // #nosec G304 - operator-provided config path
		if err != nil {
			return nil, fmt.Errorf("failed to read Keeper config file: %w", err)
		}
	} else {
		data, err = base64.StdEncoding.DecodeString(source)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 Keeper config: %w", err)
		}
	}

	var config map[string]string
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse Keeper config: %w", err)
	}

	for _, field := range []string{"clientId", "privateKey", "appKey"} {
		if config[field] == "" {
			return nil, fmt.Errorf("Keeper config is missing required field: %s", field)
		}
	}
	return config, nil
}
