package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/netops-tools/panos-ike/internal/audit"
	"github.com/netops-tools/panos-ike/internal/crypto"
	"github.com/netops-tools/panos-ike/internal/secrets"
	"github.com/netops-tools/panos-ike/internal/storage"
	"github.com/netops-tools/panos-ike/pkg/types"
)

var (
	deviceFlags   connFlags
	deviceUpdate  bool
	deviceProtect bool
	deleteYes     bool
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage stored firewall connections",
	Long: `Add, list, show and delete stored firewall connections.

A stored device keeps an address, a username and either a password or an
API key. Credentials may be literal or keeper:// references resolved through
Keeper Secrets Manager at run time. With a protection password every entry
is encrypted at rest.`,
}

var devicesAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add or update a stored device",
	Long: `Store connection settings for a firewall under a name.

Examples:
  panos-ike devices add edge-fw --address 192.0.2.1 --username ops \
    --password keeper://XXXXXXXXXXXXXXXXXXXXXX/field/password

  # Encrypt the store with a protection password
  panos-ike devices add lab-fw --address 198.51.100.7 --api-key LUFRPT... --protect`,
	Args: cobra.ExactArgs(1),
	RunE: runDevicesAdd,
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored devices",
	RunE:  runDevicesList,
}

var devicesShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a stored device without its secrets",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesShow,
}

var devicesDeleteCmd = &cobra.Command{
	Use:   "delete [name...]",
	Short: "Delete stored devices",
	Long:  `Delete one or more stored devices. This action cannot be undone.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDevicesDelete,
}

var devicesSetDefaultCmd = &cobra.Command{
	Use:   "set-default [name]",
	Short: "Set the device used when --device is not given",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesSetDefault,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.AddCommand(devicesAddCmd, devicesListCmd, devicesShowCmd, devicesDeleteCmd, devicesSetDefaultCmd)

	deviceFlags.register(devicesAddCmd.Flags())
	devicesAddCmd.Flags().BoolVar(&deviceUpdate, "update", false, "replace an existing device")
	devicesAddCmd.Flags().BoolVar(&deviceProtect, "protect", false, "encrypt the device store with a protection password")

	devicesDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "do not ask for confirmation")
}

func runDevicesAdd(cmd *cobra.Command, args []string) error {
	profile := types.DeviceProfile{
		Name:     args[0],
		Address:  deviceFlags.address,
		Username: deviceFlags.username,
		Password: deviceFlags.password,
		APIKey:   deviceFlags.apiKey,
	}

	if deviceProtect && env.cfg.Security.ProtectionPasswordHash == "" {
		password, err := env.newProtectionPassword()
		if err != nil {
			return err
		}
		if err := env.protect(password); err != nil {
			return err
		}
	}

	return env.addDevice(profile, deviceUpdate)
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	return env.listDevices(env.out)
}

func runDevicesShow(cmd *cobra.Command, args []string) error {
	return env.showDevice(env.out, args[0])
}

func runDevicesDelete(cmd *cobra.Command, args []string) error {
	return env.deleteDevices(cmd.Context(), args, deleteYes)
}

func runDevicesSetDefault(cmd *cobra.Command, args []string) error {
	return env.setDefaultDevice(args[0])
}

// newProtectionPassword reads a new protection password, asking twice when interactive
func (a *app) newProtectionPassword() (string, error) {
	if password := os.Getenv(ProtectionPasswordEnv); password != "" {
		return password, crypto.ValidatePassword(password)
	}
	if a.cfg.Security.BatchMode {
		return "", fmt.Errorf("set %s to protect the device store in batch mode", ProtectionPasswordEnv)
	}

	fmt.Fprintln(a.err, "Create a protection password for the local device store.")
	password, err := a.readPassword("Enter protection password: ")
	if err != nil {
		return "", err
	}
	confirm, err := a.readPassword("Confirm protection password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, crypto.ValidatePassword(password)
}

// protect opens the store with password and records its hash in the config.
// Existing plain-text entries are encrypted on the next write.
func (a *app) protect(password string) error {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}
	store, err := storage.OpenFileStore(a.configDir, password)
	if err != nil {
		return fmt.Errorf("failed to open device store: %w", err)
	}
	if a.closeStore != nil {
		_ = a.closeStore()
	}
	a.store, a.closeStore = store, store.Close

	a.cfg.Security.ProtectionPasswordHash = hash
	if err := a.saveConfig(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func (a *app) addDevice(profile types.DeviceProfile, update bool) error {
	if profile.Password == "" && profile.APIKey == "" {
		return errors.New("one of --password or --api-key is required")
	}
	if (secrets.IsReference(profile.Password) || secrets.IsReference(profile.APIKey)) && a.cfg.Keeper.Config == "" {
		a.confirmer().DisplayWarning("keeper:// credentials need keeper.config set before they can be resolved")
	}

	store, err := a.devices()
	if err != nil {
		return err
	}

	if update && store.Exists(profile.Name) {
		err = store.Update(profile)
	} else {
		err = store.Add(profile)
	}
	if err != nil {
		if errors.Is(err, storage.ErrExists) {
			return fmt.Errorf("device '%s' already exists (use --update to replace it)", profile.Name)
		}
		return fmt.Errorf("failed to store device: %w", err)
	}

	if a.audit != nil {
		a.audit.LogDeviceChange(audit.EventDeviceAdd, profile.Name, profile.Address)
	}
	fmt.Fprintf(a.out, "Device '%s' stored\n", profile.Name)
	return nil
}

func (a *app) listDevices(w io.Writer) error {
	store, err := a.devices()
	if err != nil {
		return err
	}

	devices := store.List()
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices configured.")
		fmt.Fprintln(w, "\nTo add one, run:")
		fmt.Fprintln(w, "  panos-ike devices add <name> --address <host> --password <password>")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tADDRESS\tUSERNAME\tAUTH\tDEFAULT")
	for _, d := range devices {
		isDefault := ""
		if d.Name == a.cfg.Profiles.Default {
			isDefault = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name, d.Address, d.Username, authKind(d), isDefault)
	}
	return tw.Flush()
}

func authKind(d types.DeviceMetadata) string {
	switch {
	case d.HasAPIKey:
		return "api-key"
	case d.HasPassword:
		return "password"
	default:
		return "-"
	}
}

func (a *app) showDevice(w io.Writer, name string) error {
	store, err := a.devices()
	if err != nil {
		return err
	}
	device, err := store.Get(name)
	if err != nil {
		return fmt.Errorf("device '%s' not found", name)
	}

	fmt.Fprintf(w, "Device:   %s\n", device.Name)
	fmt.Fprintf(w, "Default:  %v\n", device.Name == a.cfg.Profiles.Default)
	fmt.Fprintf(w, "Address:  %s\n", device.Address)
	fmt.Fprintf(w, "Username: %s\n", device.Username)
	if device.Password != "" {
		fmt.Fprintf(w, "Password: %s\n", maskCredential(device.Password))
	}
	if device.APIKey != "" {
		fmt.Fprintf(w, "API key:  %s\n", maskCredential(device.APIKey))
	}
	if !device.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:  %s\n", device.CreatedAt.Format(time.RFC3339))
	}
	if !device.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated:  %s\n", device.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

// maskCredential hides literal secrets but shows keeper:// references, which are not secret
func maskCredential(value string) string {
	if secrets.IsReference(value) {
		return value
	}
	return "********"
}

func (a *app) deleteDevices(ctx context.Context, names []string, yes bool) error {
	store, err := a.devices()
	if err != nil {
		return err
	}
	for _, name := range names {
		if !store.Exists(name) {
			return fmt.Errorf("device '%s' not found", name)
		}
	}

	if !yes {
		result := a.confirmer().ConfirmBatchOperation(ctx, "delete device", names)
		if result.Error != nil {
			return result.Error
		}
		if !result.Approved {
			fmt.Fprintln(a.out, "Deletion cancelled.")
			return nil
		}
	}

	for _, name := range names {
		device, _ := store.Get(name)
		if err := store.Delete(name); err != nil {
			return fmt.Errorf("failed to delete device '%s': %w", name, err)
		}
		if a.audit != nil {
			address := ""
			if device != nil {
				address = device.Address
			}
			a.audit.LogDeviceChange(audit.EventDeviceDelete, name, address)
		}
		fmt.Fprintf(a.out, "Device '%s' deleted\n", name)

		if a.cfg.Profiles.Default == name {
			a.cfg.Profiles.Default = ""
			if err := a.saveConfig(); err != nil {
				return fmt.Errorf("failed to update config: %w", err)
			}
			a.confirmer().DisplayWarning("default device cleared")
		}
	}
	return nil
}

func (a *app) setDefaultDevice(name string) error {
	store, err := a.devices()
	if err != nil {
		return err
	}
	if !store.Exists(name) {
		return fmt.Errorf("device '%s' does not exist", name)
	}

	a.cfg.Profiles.Default = name
	if err := a.saveConfig(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Fprintf(a.out, "Default device set to '%s'\n", name)
	return nil
}
