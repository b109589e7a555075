package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newLookupCmd creates the lookup command: resolve one record by name.
func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <name>",
		Short: "Resolve a record by exact name, cache first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())
			if a == nil {
				return fmt.Errorf("application not initialized")
			}
			rec, ok := a.Resolver.Resolve(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("no record named %q", args[0])
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}
