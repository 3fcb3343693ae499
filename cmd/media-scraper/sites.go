package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/media-scraper/pkg/orchestrate"
)

// NewListSitesCmd creates the list-sites command
func NewListSitesCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list-sites",
		Short: "List the sites defined in a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if doListSites(configPath, cmd.OutOrStdout(), cmd.ErrOrStderr()) != 0 {
				return errSilent
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to YAML config file")
	return cmd
}

// doListSites prints each configured site with its seed URL and media types.
// Returns the process exit code.
func doListSites(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	keys := orchestrate.GetAllSiteKeys(appCfg)
	if len(keys) == 0 {
		fmt.Fprintln(stdout, "No sites configured.")
		return 0
	}

	fmt.Fprintf(stdout, "Sites in %s:\n", configPath)
	for _, key := range keys {
		site := appCfg.Sites[key]
		types := "all"
		if len(site.MediaTypes) > 0 {
			types = strings.Join(site.MediaTypes, ", ")
		}
		fmt.Fprintf(stdout, "  %s\n    seed:  %s\n    types: %s\n", key, site.SeedURL, types)
	}
	return 0
}
