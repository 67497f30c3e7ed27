// Package panos is a minimal PAN-OS XML API client for IKE crypto profiles.
package panos

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/netops-tools/panos-ike/internal/ike"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultPollInterval  = 2 * time.Second
	defaultCommitTimeout = 10 * time.Minute
	maxResponseSize      = 16 << 20
)

var (
	// ErrNotConnected is returned by every call made before Connect succeeds
	ErrNotConnected = errors.New("not connected to a device")
	// ErrPanorama is returned when the target is a Panorama rather than a firewall
	ErrPanorama = errors.New("device is a Panorama; only firewalls are supported")
)

// APIError is a response with status="error"
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return "PAN-OS API error: " + e.Message
	}
	return fmt.Sprintf("PAN-OS API error (code %s): %s", e.Code, e.Message)
}

// JobError is returned when a commit job finishes with a result other than OK
type JobError struct {
	ID      string
	Result  string
	Details string
}

func (e *JobError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("commit job %s finished with %s", e.ID, e.Result)
	}
	return fmt.Sprintf("commit job %s finished with %s: %s", e.ID, e.Result, e.Details)
}

// Options configures a Client
type Options struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	PollInterval       time.Duration
	CommitTimeout      time.Duration
	Logger             *zerolog.Logger
	// HTTPClient replaces the default client; its transport is used as is
	HTTPClient *http.Client
}

// Client talks to a single firewall. It is not safe for concurrent Connect calls.
type Client struct {
	http          *http.Client
	log           zerolog.Logger
	pollInterval  time.Duration
	commitTimeout time.Duration

	endpoint string
	apiKey   string
	info     SystemInfo
}

// NewClient creates a client; no network traffic happens until Connect
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.CommitTimeout <= 0 {
		opts.CommitTimeout = defaultCommitTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: opts.InsecureSkipVerify, // #nosec G402 - firewalls commonly use self-signed certificates
		}
		httpClient = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(base),
		}
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "panos").Logger()
	}

	return &Client{
		http:          httpClient,
		log:           logger,
		pollInterval:  opts.PollInterval,
		commitTimeout: opts.CommitTimeout,
	}
}

// Endpoint turns an address into the XML API URL, defaulting to https
func Endpoint(address string) (string, error) {
	raw := address
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid address '%s': %w", address, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("invalid address '%s': unsupported scheme %s", address, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid address '%s': missing host", address)
	}
	u.Path = "/api/"
	u.RawQuery = ""
	return u.String(), nil
}

// Connect authenticates and verifies the target is a firewall.
// An API key takes precedence over username and password.
func (c *Client) Connect(ctx context.Context, conn ike.Connection) error {
	endpoint, err := Endpoint(conn.Address)
	if err != nil {
		return err
	}
	c.endpoint = endpoint
	c.apiKey = ""

	if conn.APIKey != "" {
		c.apiKey = conn.APIKey
	} else {
		key, err := c.keygen(ctx, conn.Username, conn.Password)
		if err != nil {
			return err
		}
		c.apiKey = key
	}

	var resp systemInfoResponse
	if err := c.call(ctx, url.Values{
		"type": {"op"},
		"cmd":  {"<show><system><info></info></system></show>"},
	}, &resp); err != nil {
		c.apiKey = ""
		return err
	}

	if isPanorama(resp.System.Model) {
		c.apiKey = ""
		return ErrPanorama
	}
	c.info = resp.System

	c.log.Debug().
		Str("hostname", c.info.Hostname).
		Str("model", c.info.Model).
		Str("version", c.info.SWVersion).
		Msg("connected to firewall")
	return nil
}

// SystemInfo returns what the device reported during Connect
func (c *Client) SystemInfo() SystemInfo {
	return c.info
}

func isPanorama(model string) bool {
	return model == "Panorama" || strings.HasPrefix(model, "M-")
}

func (c *Client) keygen(ctx context.Context, username, password string) (string, error) {
	var resp keygenResponse
	if err := c.do(ctx, url.Values{
		"type":     {"keygen"},
		"user":     {username},
		"password": {password},
	}, &resp); err != nil {
		return "", err
	}
	if resp.Key == "" {
		return "", errors.New("keygen response did not contain a key")
	}
	return resp.Key, nil
}

// ListProfiles returns every IKE crypto profile in device order
func (c *Client) ListProfiles(ctx context.Context) ([]ike.Profile, error) {
	var resp listResponse
	if err := c.call(ctx, url.Values{
		"type":   {"config"},
		"action": {"get"},
		"xpath":  {ProfilesXPath},
	}, &resp); err != nil {
		return nil, err
	}

	profiles := make([]ike.Profile, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		profiles = append(profiles, e.profile())
	}
	return profiles, nil
}

// FindByName returns the named profile, or nil when it does not exist
func (c *Client) FindByName(ctx context.Context, name string) (*ike.Profile, error) {
	var resp entryResponse
	if err := c.call(ctx, url.Values{
		"type":   {"config"},
		"action": {"get"},
		"xpath":  {EntryXPath(name)},
	}, &resp); err != nil {
		return nil, err
	}

	for _, e := range resp.Entries {
		if e.Name == name {
			p := e.profile()
			return &p, nil
		}
	}
	return nil, nil
}

// Create adds a new profile to the candidate configuration
func (c *Client) Create(ctx context.Context, profile ike.Profile) error {
	element, err := entryFromProfile(profile).element()
	if err != nil {
		return err
	}
	return c.call(ctx, url.Values{
		"type":    {"config"},
		"action":  {"set"},
		"xpath":   {ProfilesXPath},
		"element": {element},
	}, nil)
}

// Apply replaces an existing profile in the candidate configuration
func (c *Client) Apply(ctx context.Context, profile ike.Profile) error {
	element, err := entryFromProfile(profile).element()
	if err != nil {
		return err
	}
	return c.call(ctx, url.Values{
		"type":    {"config"},
		"action":  {"edit"},
		"xpath":   {EntryXPath(profile.Name)},
		"element": {element},
	}, nil)
}

// Delete removes a profile from the candidate configuration
func (c *Client) Delete(ctx context.Context, profile ike.Profile) error {
	return c.call(ctx, url.Values{
		"type":   {"config"},
		"action": {"delete"},
		"xpath":  {EntryXPath(profile.Name)},
	}, nil)
}

// CommitSync commits the candidate configuration and waits for the job to finish
func (c *Client) CommitSync(ctx context.Context) error {
	var resp commitResponse
	if err := c.call(ctx, url.Values{
		"type": {"commit"},
		"cmd":  {"<commit></commit>"},
	}, &resp); err != nil {
		return err
	}

	if resp.Job == "" {
		c.log.Info().Msg("no changes to commit")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.commitTimeout)
	defer cancel()

	return c.waitForJob(ctx, resp.Job)
}

func (c *Client) waitForJob(ctx context.Context, id string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var resp jobResponse
		if err := c.call(ctx, url.Values{
			"type": {"op"},
			"cmd":  {fmt.Sprintf("<show><jobs><id>%s</id></jobs></show>", id)},
		}, &resp); err != nil {
			return err
		}

		job := resp.Job
		c.log.Debug().Str("job", id).Str("status", job.Status).Str("progress", job.Progress).Msg("commit job")

		if job.Status == "FIN" {
			if job.Result == "OK" {
				return nil
			}
			return &JobError{ID: id, Result: job.Result, Details: job.Details.String()}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for commit job %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// call is do for authenticated requests
func (c *Client) call(ctx context.Context, form url.Values, out interface{}) error {
	if c.apiKey == "" || c.endpoint == "" {
		return ErrNotConnected
	}
	return c.do(ctx, form, out)
}

func (c *Client) do(ctx context.Context, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.apiKey != "" {
		req.Header.Set("X-PAN-KEY", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debug().
		Str("type", form.Get("type")).
		Str("action", form.Get("action")).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("api request")

	var env envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if env.Status != "success" {
		msg := env.message()
		if msg == "" {
			msg = fmt.Sprintf("request failed with HTTP status %d", resp.StatusCode)
		}
		return &APIError{Code: env.Code, Message: msg}
	}

	if out != nil {
		if err := xml.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
