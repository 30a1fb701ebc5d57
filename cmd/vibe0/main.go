// vibe0 - session orchestration for AI app building.
//
// Each session is a cloud sandbox running a dev server and a coding agent.
// Describe what you want, watch it build, open a pull request.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "vibe0",
	Short: "vibe0 - build apps in sandboxed sessions",
	Long: `vibe0 manages AI app-building sessions. Each session provisions a cloud
sandbox, boots a dev server behind a tunnel, and runs a coding agent against
your instructions.

  vibe0 serve                                   Start the server
  vibe0 create --template nextjs "a todo app"   Create a session
  vibe0 list                                    List sessions
  vibe0 status <id>                             Check session status
  vibe0 logs <id>                               Stream session events`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("VIBE0_SERVER", "http://localhost:8090"), "vibe0 server URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
