package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netops-tools/panos-ike/internal/ike"
)

func parseProfileFlags(t *testing.T, withCommit bool, args ...string) ike.Params {
	t.Helper()
	var f profileFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd.Flags(), withCommit)
	require.NoError(t, cmd.ParseFlags(args))
	return f.params(cmd.Flags())
}

func TestProfileFlagDefaults(t *testing.T) {
	params := parseProfileFlags(t, true, "--name", "ike-default", "--address", "192.0.2.1", "--password", "secret")

	assert.Equal(t, "ike-default", params.Name)
	assert.Equal(t, ike.StatePresent, params.State)
	assert.Equal(t, []string{"group2"}, params.DHGroups)
	assert.Equal(t, []string{"sha1"}, params.Authentication)
	assert.Equal(t, []string{"aes-256-cbc", "3des"}, params.Encryption)
	assert.True(t, params.Commit)
	assert.Empty(t, params.Username, "an unset username is left for the stored device")
	assert.Nil(t, params.LifetimeSeconds)
	assert.Nil(t, params.LifetimeHours)

	req, err := params.Validate()
	require.NoError(t, err)
	assert.Equal(t, ike.DefaultUsername, req.Conn.Username)
	assert.Equal(t, ike.DefaultLifetime, req.Profile.Lifetime)
}

func TestProfileFlagValues(t *testing.T) {
	params := parseProfileFlags(t, true,
		"--name", "ike-strong",
		"--username", "ops",
		"--api-key", "LUFRPT1key",
		"--state", "absent",
		"--dh-group", "group19,group14",
		"--authentication", "sha384",
		"--authentication", "sha256",
		"--encryption", "aes-128-cbc",
		"--lifetime-minutes", "90",
		"--commit=false",
	)

	assert.Equal(t, "ops", params.Username)
	assert.Equal(t, "LUFRPT1key", params.APIKey)
	assert.Equal(t, ike.StateAbsent, params.State)
	assert.Equal(t, []string{"group19", "group14"}, params.DHGroups)
	assert.Equal(t, []string{"sha384", "sha256"}, params.Authentication)
	assert.Equal(t, []string{"aes-128-cbc"}, params.Encryption)
	require.NotNil(t, params.LifetimeMinutes)
	assert.Equal(t, 90, *params.LifetimeMinutes)
	assert.False(t, params.Commit)
}

func TestProfileFlagAliases(t *testing.T) {
	params := parseProfileFlags(t, true, "--dhgroup", "group5", "--lifetime-sec", "3600")

	assert.Equal(t, []string{"group5"}, params.DHGroups)
	require.NotNil(t, params.LifetimeSeconds)
	assert.Equal(t, 3600, *params.LifetimeSeconds)
}

func TestProfileFlagsExplicitZeroLifetime(t *testing.T) {
	params := parseProfileFlags(t, true, "--name", "p", "--password", "x", "--address", "192.0.2.1", "--lifetime-days", "0")

	require.NotNil(t, params.LifetimeDays, "an explicit zero is still set")
	_, err := params.Validate()
	var cfgErr *ike.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestMultipleLifetimeFlagsRejected(t *testing.T) {
	params := parseProfileFlags(t, true, "--name", "p", "--password", "x", "--address", "192.0.2.1",
		"--lifetime-hours", "8", "--lifetime-minutes", "30")

	_, err := params.Validate()
	var cfgErr *ike.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "lifetime", cfgErr.Field)
}

func TestPlanFlagsHaveNoCommit(t *testing.T) {
	var f profileFlags
	cmd := &cobra.Command{Use: "plan"}
	f.register(cmd.Flags(), false)
	assert.Nil(t, cmd.Flags().Lookup("commit"))
	assert.NotNil(t, cmd.Flags().Lookup("file"))
}

func TestCheckFileFlags(t *testing.T) {
	var f profileFlags
	cmd := &cobra.Command{Use: "apply"}
	f.register(cmd.Flags(), true)
	require.NoError(t, cmd.ParseFlags([]string{"--file", "profiles.toml", "--address", "192.0.2.1"}))
	assert.NoError(t, checkFileFlags(cmd, f.file))

	require.NoError(t, cmd.ParseFlags([]string{"--name", "x"}))
	err := checkFileFlags(cmd, f.file)
	var cfgErr *ike.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "name", cfgErr.Field)

	assert.NoError(t, checkFileFlags(cmd, ""))
}
