package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netops-tools/panos-ike/internal/crypto"
	"github.com/netops-tools/panos-ike/pkg/types"
)

const testPassword = "protection-password-1"

func labDevice() types.DeviceProfile {
	return types.DeviceProfile{
		Name:     "lab-fw",
		Address:  "192.0.2.1",
		Username: "admin",
		Password: "Sup3rS3cret!",
	}
}

func TestOpenFileStoreEmpty(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenFileStore(dir, "")
	require.NoError(t, err)
	defer store.Close()

	assert.Empty(t, store.List())
	assert.False(t, store.Encrypted())
	assert.Equal(t, filepath.Join(dir, DevicesFileName), store.Path())
	assert.NoFileExists(t, store.Path(), "nothing is written until the first change")
}

func TestOpenFileStoreRejectsShortPassword(t *testing.T) {
	_, err := OpenFileStore(t.TempDir(), "short")
	assert.Error(t, err)
}

func TestAddGetDelete(t *testing.T) {
	store, err := OpenFileStore(t.TempDir(), "")
	require.NoError(t, err)

	require.NoError(t, store.Add(labDevice()))
	assert.True(t, store.Exists("lab-fw"))

	got, err := store.Get("lab-fw")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", got.Address)
	assert.Equal(t, "Sup3rS3cret!", got.Password)
	assert.False(t, got.CreatedAt.IsZero())

	// Returned profiles are copies
	got.Address = "198.51.100.1"
	again, _ := store.Get("lab-fw")
	assert.Equal(t, "192.0.2.1", again.Address)

	err = store.Add(labDevice())
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, store.Delete("lab-fw"))
	assert.False(t, store.Exists("lab-fw"))

	_, err = store.Get("lab-fw")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete("lab-fw"), ErrNotFound)
}

func TestAddValidation(t *testing.T) {
	store, err := OpenFileStore(t.TempDir(), "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		profile types.DeviceProfile
	}{
		{"empty name", types.DeviceProfile{Address: "192.0.2.1"}},
		{"reserved name", types.DeviceProfile{Name: "default", Address: "192.0.2.1"}},
		{"bad name", types.DeviceProfile{Name: "fw one", Address: "192.0.2.1"}},
		{"empty address", types.DeviceProfile{Name: "fw1"}},
		{"bad address", types.DeviceProfile{Name: "fw1", Address: "fw<1>"}},
		{"bad username", types.DeviceProfile{Name: "fw1", Address: "192.0.2.1", Username: "ad min"}},
		{"newline in password", types.DeviceProfile{Name: "fw1", Address: "192.0.2.1", Password: "pw\nkey=x"}},
		{"nul in api key", types.DeviceProfile{Name: "fw1", Address: "192.0.2.1", APIKey: "LUFRPT\x00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.Add(tt.profile))
		})
	}
	assert.Empty(t, store.List())
}

func TestUpdate(t *testing.T) {
	store, err := OpenFileStore(t.TempDir(), "")
	require.NoError(t, err)

	require.NoError(t, store.Add(labDevice()))
	before, _ := store.Get("lab-fw")

	updated := labDevice()
	updated.Address = "fw.example.com:8443"
	updated.Password = ""
	updated.APIKey = "keeper://abc123/field/password"
	require.NoError(t, store.Update(updated))

	after, err := store.Get("lab-fw")
	require.NoError(t, err)
	assert.Equal(t, "fw.example.com:8443", after.Address)
	assert.Equal(t, "keeper://abc123/field/password", after.APIKey)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)

	missing := labDevice()
	missing.Name = "other"
	assert.ErrorIs(t, store.Update(missing), ErrNotFound)
}

func TestListSortedMetadata(t *testing.T) {
	store, err := OpenFileStore(t.TempDir(), "")
	require.NoError(t, err)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		p := labDevice()
		p.Name = name
		require.NoError(t, store.Add(p))
	}

	list := store.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "mid", list[1].Name)
	assert.Equal(t, "zeta", list[2].Name)
	assert.True(t, list[0].HasPassword)
	assert.False(t, list[0].HasAPIKey)
}

func TestPlaintextPersistence(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenFileStore(dir, "")
	require.NoError(t, err)
	require.NoError(t, store.Add(labDevice()))
	require.NoError(t, store.Close())

	reopened, err := OpenFileStore(dir, "")
	require.NoError(t, err)
	got, err := reopened.Get("lab-fw")
	require.NoError(t, err)
	assert.Equal(t, "Sup3rS3cret!", got.Password)

	info, err := os.Stat(filepath.Join(dir, DevicesFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.NoFileExists(t, filepath.Join(dir, DevicesFileName+".tmp"))
}

func TestEncryptedPersistence(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenFileStore(dir, testPassword)
	require.NoError(t, err)
	assert.True(t, store.Encrypted())
	require.NoError(t, store.Add(labDevice()))
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(filepath.Join(dir, DevicesFileName))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "Sup3rS3cret!"), "password must not be stored in clear text")
	assert.False(t, strings.Contains(string(raw), "192.0.2.1"), "address is sealed too")

	var db devicesDatabase
	require.NoError(t, json.Unmarshal(raw, &db))
	assert.True(t, db.Encrypted)
	assert.NotEmpty(t, db.Salt)

	reopened, err := OpenFileStore(dir, testPassword)
	require.NoError(t, err)
	got, err := reopened.Get("lab-fw")
	require.NoError(t, err)
	assert.Equal(t, "Sup3rS3cret!", got.Password)

	t.Run("without password", func(t *testing.T) {
		_, err := OpenFileStore(dir, "")
		assert.ErrorIs(t, err, ErrLocked)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := OpenFileStore(dir, "another-password-2")
		require.Error(t, err)
		assert.True(t, errors.Is(err, crypto.ErrDecrypt))
	})
}

func TestEntriesCannotBeSwapped(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenFileStore(dir, testPassword)
	require.NoError(t, err)
	a := labDevice()
	a.Name = "fw-a"
	b := labDevice()
	b.Name = "fw-b"
	require.NoError(t, store.Add(a))
	require.NoError(t, store.Add(b))

	path := filepath.Join(dir, DevicesFileName)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var db devicesDatabase
	require.NoError(t, json.Unmarshal(raw, &db))
	db.Devices["fw-a"].Data, db.Devices["fw-b"].Data = db.Devices["fw-b"].Data, db.Devices["fw-a"].Data
	raw, err = json.Marshal(db)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0600))

	_, err = OpenFileStore(dir, testPassword)
	assert.ErrorIs(t, err, crypto.ErrDecrypt)
}

func TestPlaintextStoreUpgradesOnWrite(t *testing.T) {
	dir := t.TempDir()

	plain, err := OpenFileStore(dir, "")
	require.NoError(t, err)
	require.NoError(t, plain.Add(labDevice()))

	upgraded, err := OpenFileStore(dir, testPassword)
	require.NoError(t, err)
	got, err := upgraded.Get("lab-fw")
	require.NoError(t, err)
	assert.Equal(t, "Sup3rS3cret!", got.Password)

	second := labDevice()
	second.Name = "dc-fw"
	require.NoError(t, upgraded.Add(second))

	_, err = OpenFileStore(dir, "")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestCorruptDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DevicesFileName)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err := OpenFileStore(dir, "")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"devices":{}}`), 0600))
	_, err = OpenFileStore(dir, "")
	assert.ErrorContains(t, err, "unsupported devices database version")
}

func TestClose(t *testing.T) {
	store, err := OpenFileStore(t.TempDir(), testPassword)
	require.NoError(t, err)
	require.NoError(t, store.Add(labDevice()))

	require.NoError(t, store.Close())
	assert.Empty(t, store.List())
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(labDevice())

	assert.True(t, store.Exists("lab-fw"))
	assert.ErrorIs(t, store.Add(labDevice()), ErrExists)

	updated := labDevice()
	updated.Username = "ops"
	require.NoError(t, store.Update(updated))
	got, err := store.Get("lab-fw")
	require.NoError(t, err)
	assert.Equal(t, "ops", got.Username)

	assert.Len(t, store.List(), 1)
	require.NoError(t, store.Delete("lab-fw"))
	assert.ErrorIs(t, store.Delete("lab-fw"), ErrNotFound)
	_, err = store.Get("lab-fw")
	assert.ErrorIs(t, err, ErrNotFound)
}
