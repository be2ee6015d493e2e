// Package cmd wires the proxy's command-line entry points with cobra and
// viper, following the teacher's cmd/serve.go flag-binding and
// graceful-shutdown pattern.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/couchmongo/bridge/pkg/config"
)

// NewRootCmd builds the root cobra command; serve is its only
// subcommand today, matching the scope of this proxy (no admin CLI
// beyond starting the server).
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "couchmongo-bridge",
		Short: "CouchDB-compatible HTTP proxy backed by MongoDB",
	}

	serveCmd := newServeCmd()
	if err := config.BindFlags(serveCmd); err != nil {
		panic(err)
	}

	root.AddCommand(serveCmd)
	return root
}
