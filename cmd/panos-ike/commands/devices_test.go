package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netops-tools/panos-ike/internal/config"
	"github.com/netops-tools/panos-ike/internal/storage"
	"github.com/netops-tools/panos-ike/pkg/types"
)

func TestAddAndListDevices(t *testing.T) {
	ta := newTestApp(t)

	require.NoError(t, ta.addDevice(ta.device("edge-fw"), false))
	apiKeyDevice := types.DeviceProfile{Name: "dc-fw", Address: "198.51.100.7", Username: "ops", APIKey: "LUFRPT1abc=="}
	require.NoError(t, ta.addDevice(apiKeyDevice, false))
	assert.Contains(t, ta.stdout.String(), "Device 'edge-fw' stored")

	ta.cfg.Profiles.Default = "dc-fw"
	ta.stdout.Reset()
	require.NoError(t, ta.listDevices(ta.stdout))

	lines := strings.Split(strings.TrimSpace(ta.stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.Regexp(t, `^DEVICE\s+ADDRESS`, lines[0])
	assert.Regexp(t, `^dc-fw\s+198\.51\.100\.7\s+ops\s+api-key\s+\*$`, lines[1])
	assert.Regexp(t, `^edge-fw\s+\S+\s+admin\s+password\s*$`, lines[2])
	assert.NotContains(t, ta.stdout.String(), "LUFRPT1abc==")
}

func TestAddDeviceErrors(t *testing.T) {
	ta := newTestApp(t)

	err := ta.addDevice(types.DeviceProfile{Name: "fw", Address: "192.0.2.1", Username: "admin"}, false)
	assert.ErrorContains(t, err, "--password or --api-key")

	require.NoError(t, ta.addDevice(ta.device("fw"), false))
	err = ta.addDevice(ta.device("fw"), false)
	assert.ErrorContains(t, err, "--update")

	updated := ta.device("fw")
	updated.Username = "ops"
	require.NoError(t, ta.addDevice(updated, true))
	got, err := ta.store.Get("fw")
	require.NoError(t, err)
	assert.Equal(t, "ops", got.Username)
}

func TestAddDeviceWarnsAboutKeeperConfig(t *testing.T) {
	ta := newTestApp(t)

	require.NoError(t, ta.addDevice(ta.device("fw"), false))
	assert.Contains(t, ta.stderr.String(), "keeper.config")

	ta.stderr.Reset()
	ta.cfg.Keeper.Config = "/etc/panos-ike/ksm.json"
	require.NoError(t, ta.addDevice(ta.device("fw2"), false))
	assert.Empty(t, ta.stderr.String())
}

func TestListDevicesEmpty(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.listDevices(ta.stdout))
	assert.Contains(t, ta.stdout.String(), "No devices configured.")
}

func TestShowDevice(t *testing.T) {
	literal := types.DeviceProfile{Name: "lab", Address: "192.0.2.1", Username: "admin", Password: "Sup3rS3cret!"}
	ta := newTestApp(t, literal)
	require.NoError(t, ta.store.Add(ta.device("edge-fw")))

	require.NoError(t, ta.showDevice(ta.stdout, "lab"))
	out := ta.stdout.String()
	assert.Contains(t, out, "Address:  192.0.2.1")
	assert.Contains(t, out, "Password: ********")
	assert.NotContains(t, out, "Sup3rS3cret!")

	ta.stdout.Reset()
	require.NoError(t, ta.showDevice(ta.stdout, "edge-fw"))
	assert.Contains(t, ta.stdout.String(), "Password: keeper://FWUID/field/password")

	assert.Error(t, ta.showDevice(ta.stdout, "missing"))
}

func TestDeleteDevicesConfirm(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.store.Add(ta.device("a")))
	require.NoError(t, ta.store.Add(ta.device("b")))

	ta.in = strings.NewReader("n\n")
	require.NoError(t, ta.deleteDevices(context.Background(), []string{"a", "b"}, false))
	assert.Contains(t, ta.stdout.String(), "Deletion cancelled.")
	assert.Contains(t, ta.stderr.String(), "Confirm delete device for 2 items:")
	assert.True(t, ta.store.Exists("a"))

	ta.in = strings.NewReader("y\n")
	require.NoError(t, ta.deleteDevices(context.Background(), []string{"a"}, false))
	assert.False(t, ta.store.Exists("a"))
	assert.True(t, ta.store.Exists("b"))
}

func TestDeleteDevicesDefaultDeny(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.store.Add(ta.device("a")))

	ta.in = strings.NewReader("\n")
	require.NoError(t, ta.deleteDevices(context.Background(), []string{"a"}, false))
	assert.True(t, ta.store.Exists("a"), "pressing enter keeps the device")
}

func TestDeleteDevicesYesAndBatch(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.store.Add(ta.device("a")))
	require.NoError(t, ta.store.Add(ta.device("b")))

	require.NoError(t, ta.deleteDevices(context.Background(), []string{"a"}, true))
	assert.False(t, ta.store.Exists("a"))

	ta.cfg.Security.BatchMode = true
	require.NoError(t, ta.deleteDevices(context.Background(), []string{"b"}, false))
	assert.True(t, ta.store.Exists("b"), "batch mode denies by default without --yes")
}

func TestDeleteDevicesUnknown(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.store.Add(ta.device("a")))

	err := ta.deleteDevices(context.Background(), []string{"a", "ghost"}, true)
	assert.ErrorContains(t, err, "ghost")
	assert.True(t, ta.store.Exists("a"), "nothing is deleted when a name is unknown")
}

func TestDeleteDefaultDeviceClearsConfig(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.store.Add(ta.device("a")))
	require.NoError(t, ta.setDefaultDevice("a"))

	saved, err := config.Load(ta.configFile)
	require.NoError(t, err)
	assert.Equal(t, "a", saved.Profiles.Default)

	require.NoError(t, ta.deleteDevices(context.Background(), []string{"a"}, true))
	assert.Empty(t, ta.cfg.Profiles.Default)
	assert.Contains(t, ta.stderr.String(), "default device cleared")

	saved, err = config.Load(ta.configFile)
	require.NoError(t, err)
	assert.Empty(t, saved.Profiles.Default)
}

func TestSetDefaultDeviceUnknown(t *testing.T) {
	ta := newTestApp(t)
	assert.ErrorContains(t, ta.setDefaultDevice("ghost"), "does not exist")
	assert.NoFileExists(t, ta.configFile)
}

func TestProtectedDeviceStore(t *testing.T) {
	const password = "protection-password-1"

	ta := newTestApp(t)
	ta.store = nil
	require.NoError(t, ta.protect(password))
	require.NoError(t, ta.addDevice(ta.device("edge-fw"), false))
	ta.close(context.Background())

	raw, err := os.ReadFile(filepath.Join(ta.configDir, storage.DevicesFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "FWUID")

	saved, err := config.Load(ta.configFile)
	require.NoError(t, err)
	require.NotEmpty(t, saved.Security.ProtectionPasswordHash)

	reopen := func(pw string) *app {
		t.Setenv(ProtectionPasswordEnv, pw)
		return &app{cfg: saved, configDir: ta.configDir, in: strings.NewReader(""), out: ta.stdout, err: ta.stderr}
	}

	_, err = reopen("wrong-password-123").devices()
	assert.ErrorContains(t, err, "incorrect protection password")

	store, err := reopen(password).devices()
	require.NoError(t, err)
	got, err := store.Get("edge-fw")
	require.NoError(t, err)
	assert.Equal(t, "keeper://FWUID/field/password", got.Password)
}

func TestProtectionPasswordPrompt(t *testing.T) {
	t.Setenv(ProtectionPasswordEnv, "")

	ta := newTestApp(t)
	ta.in = strings.NewReader("protection-password-1\nprotection-password-1\n")
	password, err := ta.newProtectionPassword()
	require.NoError(t, err)
	assert.Equal(t, "protection-password-1", password)
	assert.Contains(t, ta.stderr.String(), "Confirm protection password")

	ta.in = strings.NewReader("protection-password-1\nsomething-else-123\n")
	_, err = ta.newProtectionPassword()
	assert.ErrorContains(t, err, "do not match")

	ta.in = strings.NewReader("short\nshort\n")
	_, err = ta.newProtectionPassword()
	assert.Error(t, err)

	ta.cfg.Security.BatchMode = true
	_, err = ta.newProtectionPassword()
	assert.ErrorContains(t, err, ProtectionPasswordEnv)
}
