// discoverer collects portal observations and keeps them synchronized with a
// shared portal index.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/portaldiscoverer/discoverer/cmd"
	"github.com/portaldiscoverer/discoverer/node"
)

// set with -ldflags "-X main.version=..."
var version, commit, branch string

func main() {
	cmd.Version, cmd.Commit, cmd.Branch = version, commit, branch
	if cmd.Version == "" {
		cmd.Version = "dev"
	}
	if err := node.GetCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "discoverer:", err)
		os.Exit(1)
	}
}
