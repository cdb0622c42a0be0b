package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func evictCmd(configPath *string) *cobra.Command {
	var (
		fingerprints []string
		feeds        []string
		all          bool
	)

	cmd := &cobra.Command{
		Use:   "evict",
		Short: "Evict cached pages",
		Long:  "Evict cached pages by query fingerprint, by feed id through the feed index, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(fingerprints) == 0 && len(feeds) == 0 {
				return errors.New("one of --fingerprint, --feed or --all is required")
			}

			container, err := loadContainer(*configPath)
			if err != nil {
				return err
			}
			defer container.Close()

			ctx, stop := exitOnSignal(cmd.Context())
			defer stop()
			store := container.Store()

			if all {
				if err := store.EvictAll(ctx); err != nil {
					return fmt.Errorf("evict all: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "evicted every cached page")
				return nil
			}

			for _, feed := range feeds {
				fps, err := container.FeedIndex().Lookup(ctx, feed)
				if err != nil {
					return fmt.Errorf("lookup feed %s: %w", feed, err)
				}
				fingerprints = append(fingerprints, fps...)
			}
			for _, fp := range fingerprints {
				if err := store.Evict(ctx, fp); err != nil {
					return fmt.Errorf("evict %s: %w", fp, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "evicted %s\n", fp)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&fingerprints, "fingerprint", nil, "Query fingerprint to evict (repeatable)")
	cmd.Flags().StringSliceVar(&feeds, "feed", nil, "Feed id whose registered queries are evicted (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Evict every cached page")
	return cmd
}
