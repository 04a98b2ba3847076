// Package cmd holds what the discoverer commands share: build information
// and the command line flags bound to the configuration.
package cmd

// Build information, set by main from linker flags.
var (
	Version string
	Branch  string
	Commit  string
)
