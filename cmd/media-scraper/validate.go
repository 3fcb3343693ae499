package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/media-scraper/pkg/config"
	"github.com/Sriram-PR/media-scraper/pkg/orchestrate"
)

// NewValidateCmd creates the validate command
func NewValidateCmd() *cobra.Command {
	var configPath, siteKey string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file without crawling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if doValidate(configPath, siteKey, cmd.OutOrStdout(), cmd.ErrOrStderr()) != 0 {
				return errSilent
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to YAML config file")
	cmd.Flags().StringVar(&siteKey, "site", "", "Validate only this site (default all sites)")
	return cmd
}

// doValidate checks the config and every selected site, printing one line per site.
// Returns the process exit code.
func doValidate(configPath, siteKey string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	siteKeys := orchestrate.GetAllSiteKeys(appCfg)
	if siteKey != "" {
		if err := orchestrate.ValidateSiteKeys(appCfg, []string{siteKey}); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 1
		}
		siteKeys = []string{siteKey}
	}
	if len(siteKeys) == 0 {
		fmt.Fprintln(stderr, "ERROR: config defines no sites")
		return 1
	}

	hasErrors := false
	for _, key := range siteKeys {
		siteCfg := appCfg.Sites[key]
		siteWarnings, err := siteCfg.Validate()
		for _, w := range siteWarnings {
			fmt.Fprintf(stdout, "WARN: [%s] %s\n", key, w)
		}
		if err == nil {
			_, err = config.NewResolvedSiteConfig(*appCfg, key, siteCfg)
		}
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
			hasErrors = true
			continue
		}
		fmt.Fprintf(stdout, "OK: [%s]\n", key)
	}

	if hasErrors {
		return 1
	}
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}
