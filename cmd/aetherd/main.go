// Command aetherd runs the Project Aether audit engine: the worker pool,
// the HTTP API, and the cache gateway, configured from the environment.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Local development reads a .env file; production sets real
	// environment variables and has no file to load.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "aetherd",
		Short:         "Project Aether audit engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newCacheCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "aetherd:", err)
		os.Exit(1)
	}
}
