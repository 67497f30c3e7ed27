package commands

import (
	"github.com/spf13/pflag"

	"github.com/netops-tools/panos-ike/internal/ike"
)

// connFlags are the device connection flags shared by every device command
type connFlags struct {
	address  string
	username string
	password string
	apiKey   string
}

func (f *connFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.address, "address", "", "firewall IP address or hostname, optionally with :port")
	fs.StringVar(&f.username, "username", ike.DefaultUsername, "username for authentication")
	fs.StringVar(&f.password, "password", "", "password for authentication (literal or keeper:// reference)")
	fs.StringVar(&f.apiKey, "api-key", "", "API key, used instead of username/password (literal or keeper:// reference)")
}

// apply copies the connection flags into params. An unchanged username is left
// empty so a stored device can provide it.
func (f *connFlags) apply(fs *pflag.FlagSet, params *ike.Params) {
	params.Address = f.address
	params.Username = ""
	if fs.Changed("username") {
		params.Username = f.username
	}
	params.Password = f.password
	params.APIKey = f.apiKey
}

// profileFlags declare one IKE crypto profile
type profileFlags struct {
	connFlags

	state          string
	name           string
	dhGroups       []string
	authentication []string
	encryption     []string

	lifetimeSeconds int
	lifetimeMinutes int
	lifetimeHours   int
	lifetimeDays    int

	commit bool
	file   string
}

func (f *profileFlags) register(fs *pflag.FlagSet, withCommit bool) {
	f.connFlags.register(fs)

	fs.StringVar(&f.state, "state", string(ike.StatePresent), "desired state: present or absent")
	fs.StringVar(&f.name, "name", "", "name of the IKE crypto profile")
	fs.StringSliceVar(&f.dhGroups, "dh-group", []string{string(ike.Group2)}, "DH groups in priority order")
	fs.StringSliceVar(&f.authentication, "authentication", []string{string(ike.HashSHA1)}, "authentication hashes in priority order")
	fs.StringSliceVar(&f.encryption, "encryption", []string{string(ike.CipherAES256CBC), string(ike.Cipher3DES)}, "encryption algorithms in priority order")
	fs.IntVar(&f.lifetimeSeconds, "lifetime-seconds", 0, "key lifetime in seconds")
	fs.IntVar(&f.lifetimeMinutes, "lifetime-minutes", 0, "key lifetime in minutes")
	fs.IntVar(&f.lifetimeHours, "lifetime-hours", 0, "key lifetime in hours (default 8 when no lifetime is set)")
	fs.IntVar(&f.lifetimeDays, "lifetime-days", 0, "key lifetime in days")
	fs.StringVar(&f.file, "file", "", "TOML manifest declaring several profiles")
	if withCommit {
		fs.BoolVar(&f.commit, "commit", true, "commit the candidate configuration when something changed")
	}

	fs.SetNormalizeFunc(flagAliases)
}

// flagAliases accepts the historical flag spellings
func flagAliases(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "dhgroup":
		name = "dh-group"
	case "lifetime-sec":
		name = "lifetime-seconds"
	}
	return pflag.NormalizedName(name)
}

// params builds the invocation parameters; only lifetime flags given on the
// command line are set
func (f *profileFlags) params(fs *pflag.FlagSet) ike.Params {
	params := ike.DefaultParams()
	f.connFlags.apply(fs, &params)

	params.State = ike.State(f.state)
	params.Name = f.name
	params.DHGroups = f.dhGroups
	params.Authentication = f.authentication
	params.Encryption = f.encryption
	params.Commit = f.commit

	if fs.Changed("lifetime-seconds") {
		params.LifetimeSeconds = ike.IntPtr(f.lifetimeSeconds)
	}
	if fs.Changed("lifetime-minutes") {
		params.LifetimeMinutes = ike.IntPtr(f.lifetimeMinutes)
	}
	if fs.Changed("lifetime-hours") {
		params.LifetimeHours = ike.IntPtr(f.lifetimeHours)
	}
	if fs.Changed("lifetime-days") {
		params.LifetimeDays = ike.IntPtr(f.lifetimeDays)
	}
	return params
}
