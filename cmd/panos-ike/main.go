package main

import (
	"os"

	"github.com/netops-tools/panos-ike/cmd/panos-ike/commands"
)

// Version is the current version of panos-ike
// This must match the git tag when creating releases
const Version = "v0.1.0"

func main() {
	commands.SetVersion(Version)

	err := commands.Execute()
	os.Exit(commands.ExitCode(err))
}
