package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newURLsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "urls",
		Short: "List discovered entry URLs",
		Long:  "Print the discovered-URL cache merged from every configured backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runURLs(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")

	return cmd
}

func runURLs(ctx context.Context, jsonOutput bool) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	urls, err := a.urlCache.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to load part of the discovered-URL cache")
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(urls)
	}

	if len(urls) == 0 {
		fmt.Println("No discovered URLs.")
		return nil
	}
	for _, name := range sortedKeys(urls) {
		fmt.Printf("%-20s %s\n", name, urls[name])
	}
	return nil
}
