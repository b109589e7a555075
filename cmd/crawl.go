package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newCrawlCmd creates the crawl command: one crawl cycle, then exit.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run a single crawl cycle and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFromContext(cmd.Context())
			if a == nil {
				return fmt.Errorf("application not initialized")
			}
			stats, err := a.Crawler.RunCycle(cmd.Context())
			if err != nil {
				return fmt.Errorf("crawl cycle: %w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}
