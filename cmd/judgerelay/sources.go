package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/judgerelay/adapter"
	"pkt.systems/judgerelay/adapter/boj"
	"pkt.systems/judgerelay/internal/appconfig"
)

func newSourcesCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the judges this build can drive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			registry, err := buildRegistry(cfg.Adapters)
			if err != nil {
				return err
			}
			for _, source := range registry.Sources() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), source); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

// buildRegistry registers every built-in adapter.
func buildRegistry(cfg appconfig.AdaptersConfig) (*adapter.Registry, error) {
	judge, err := boj.New(boj.Options{
		BaseURL:        cfg.BOJ.BaseURL,
		LanguageSettle: time.Duration(cfg.BOJ.LanguageSettleMs) * time.Millisecond,
		CodeSettle:     time.Duration(cfg.BOJ.CodeSettleMs) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	return adapter.NewRegistry(judge), nil
}
