package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/netops-tools/panos-ike/internal/audit"
	"github.com/netops-tools/panos-ike/internal/config"
	"github.com/netops-tools/panos-ike/internal/crypto"
	"github.com/netops-tools/panos-ike/internal/ike"
	"github.com/netops-tools/panos-ike/internal/logging"
	"github.com/netops-tools/panos-ike/internal/metrics"
	"github.com/netops-tools/panos-ike/internal/panos"
	"github.com/netops-tools/panos-ike/internal/reconcile"
	"github.com/netops-tools/panos-ike/internal/secrets"
	"github.com/netops-tools/panos-ike/internal/storage"
	"github.com/netops-tools/panos-ike/internal/tracing"
	"github.com/netops-tools/panos-ike/internal/ui"
	"github.com/netops-tools/panos-ike/internal/validation"
	"github.com/netops-tools/panos-ike/pkg/types"
)

// ProtectionPasswordEnv unlocks an encrypted device store without prompting
const ProtectionPasswordEnv = "PANOS_IKE_PROTECTION_PASSWORD"

// Compile-time check that the XML API client satisfies the reconciler
var _ reconcile.DeviceClient = (*panos.Client)(nil)

// app is the per-invocation state shared by every command
type app struct {
	cfg        *config.Config
	configFile string
	configDir  string

	log     zerolog.Logger
	audit   *audit.Logger
	metrics *metrics.Recorder
	secrets *secrets.Resolver

	in  io.Reader
	out io.Writer
	err io.Writer

	// httpClient overrides the PAN-OS transport; nil uses the default
	httpClient *http.Client
	store      storage.DeviceStore
	closeStore func() error

	shutdownTracing func(context.Context) error
}

// loadApp reads configuration and starts logging, audit, metrics and tracing
func loadApp(ctx context.Context, configFile string, verbose, batch bool) (*app, error) {
	cfg, err := config.LoadOrCreate(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	configDir := config.GetConfigDir()
	if configFile != "" {
		configDir = filepath.Dir(configFile)
	}

	if batch {
		cfg.Security.BatchMode = true
	}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger := logging.New(os.Stderr, level, cfg.Logging.Format)

	a := &app{
		cfg:        cfg,
		configFile: configFile,
		configDir:  configDir,
		log:        logger,
		secrets:    secrets.NewResolver(cfg.Keeper.Config),
		in:         os.Stdin,
		out:        os.Stdout,
		err:        os.Stderr,
	}

	if cfg.Logging.AuditFile != "" {
		auditLogger, err := audit.NewLogger(audit.Config{
			FilePath: cfg.Logging.AuditFile,
			MaxSize:  10 * 1024 * 1024,
			MaxAge:   30 * 24 * time.Hour,
		})
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.Logging.AuditFile).Msg("audit log disabled")
		} else {
			a.audit = auditLogger
		}
	}

	if cfg.Metrics.Textfile != "" {
		a.metrics = metrics.NewRecorder()
	}

	shutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint: cfg.Tracing.Endpoint,
		URLPath:  cfg.Tracing.URLPath,
		Insecure: cfg.Tracing.Insecure,
		Version:  version,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	} else {
		a.shutdownTracing = shutdown
	}

	return a, nil
}

// close flushes metrics, audit and traces; it never fails the command
func (a *app) close(ctx context.Context) {
	if a.metrics != nil {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.log.Warn().Err(err).Msg("failed to write metrics")
		}
	}
	if a.closeStore != nil {
		_ = a.closeStore()
	}
	if a.audit != nil {
		_ = a.audit.Close()
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.log.Warn().Err(err).Msg("failed to flush traces")
		}
	}
}

func (a *app) confirmer() *ui.Confirmer {
	return ui.NewConfirmerWithIO(types.Confirmation{
		BatchMode:   a.cfg.Security.BatchMode,
		DefaultDeny: true,
	}, a.in, a.err)
}

// devices opens the device store, unlocking it when a protection password is configured
func (a *app) devices() (storage.DeviceStore, error) {
	if a.store != nil {
		return a.store, nil
	}

	password := ""
	if hash := a.cfg.Security.ProtectionPasswordHash; hash != "" {
		var err error
		if password, err = a.protectionPassword(); err != nil {
			return nil, err
		}
		ok, err := crypto.VerifyPassword(password, hash)
		if err != nil {
			return nil, fmt.Errorf("invalid protection password hash in config: %w", err)
		}
		if !ok {
			return nil, errors.New("incorrect protection password")
		}
	}

	store, err := storage.OpenFileStore(a.configDir, password)
	if err != nil {
		if errors.Is(err, storage.ErrLocked) {
			return nil, fmt.Errorf("device store is encrypted but no protection password is configured: %w", err)
		}
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}
	a.store = store
	a.closeStore = store.Close
	return store, nil
}

func (a *app) protectionPassword() (string, error) {
	if password := os.Getenv(ProtectionPasswordEnv); password != "" {
		return password, nil
	}
	if a.cfg.Security.BatchMode {
		return "", fmt.Errorf("device store is locked; set %s in batch mode", ProtectionPasswordEnv)
	}
	return a.readPassword("Enter protection password: ")
}

// readPassword prompts on the error stream and reads a secret without echo
// when the input is a terminal
func (a *app) readPassword(prompt string) (string, error) {
	fmt.Fprint(a.err, prompt)
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.err)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	return readLine(a.in)
}

// readLine reads a single line from non-terminal input without the trailing
// newline. It reads byte by byte so consecutive calls see consecutive lines.
func readLine(r io.Reader) (string, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				break
			}
			line = append(line, buf[0])
			continue
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
	}
	return strings.TrimRight(string(line), "\r"), nil
}

// withDevice fills connection settings missing from params with those of a stored device.
// Explicit values always win. An empty name falls back to the configured default.
func (a *app) withDevice(params *ike.Params, name string) error {
	if name == "" && params.Address == "" {
		name = a.cfg.Profiles.Default
	}
	if name == "" {
		return nil
	}

	store, err := a.devices()
	if err != nil {
		return err
	}
	device, err := store.Get(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &ike.ConfigError{Field: "device", Reason: fmt.Sprintf("device '%s' is not configured", name)}
		}
		return err
	}

	if params.Address == "" {
		params.Address = device.Address
	}
	if params.Username == "" {
		params.Username = device.Username
	}
	if params.Password == "" && params.APIKey == "" {
		params.Password = device.Password
		params.APIKey = device.APIKey
	}
	a.log.Debug().Str("device", name).Str("address", params.Address).Msg("using stored device")
	return nil
}

// resolve replaces keeper:// references in the connection
func (a *app) resolve(conn *ike.Connection) error {
	if !secrets.IsReference(conn.Password) && !secrets.IsReference(conn.APIKey) {
		return nil
	}
	if err := a.secrets.ResolveConnection(conn); err != nil {
		return &ike.ConfigError{Field: "credentials", Reason: err.Error()}
	}
	v := validation.NewValidator()
	for _, secret := range []string{conn.Password, conn.APIKey} {
		if secret == "" {
			continue
		}
		if err := v.ValidateSecret(secret); err != nil {
			return &ike.ConfigError{Field: "credentials", Reason: "resolved keeper value: " + err.Error()}
		}
	}
	return nil
}

func (a *app) client() *panos.Client {
	return panos.NewClient(panos.Options{
		Timeout:            a.cfg.Device.Timeout,
		InsecureSkipVerify: a.cfg.Device.InsecureSkipVerify,
		PollInterval:       a.cfg.Device.PollInterval,
		CommitTimeout:      a.cfg.Device.CommitTimeout,
		Logger:             &a.log,
		HTTPClient:         a.httpClient,
	})
}

func (a *app) reconciler(client reconcile.DeviceClient) *reconcile.Reconciler {
	return reconcile.New(client, reconcile.Options{
		Logger:  &a.log,
		Audit:   a.audit,
		Metrics: a.metrics,
	})
}

// saveConfig writes the configuration back to where it was loaded from
func (a *app) saveConfig() error {
	path := a.configFile
	if path == "" {
		if err := config.EnsureConfigDir(); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		path = filepath.Join(config.GetConfigDir(), "config.yaml")
	}
	return a.cfg.Save(path)
}
