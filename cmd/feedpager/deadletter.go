package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func deadLetterCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dead-letter",
		Short: "Inspect undecodable mutation events",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "len",
		Short: "Print the number of dead lettered events",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := loadContainer(*configPath)
			if err != nil {
				return err
			}
			defer container.Close()

			n, err := container.DeadLetter().Len(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	})

	var count int
	drain := &cobra.Command{
		Use:   "drain",
		Short: "Remove and print the oldest dead lettered events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := loadContainer(*configPath)
			if err != nil {
				return err
			}
			defer container.Close()

			records, err := container.DeadLetter().Drain(cmd.Context(), count)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range records {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	drain.Flags().IntVar(&count, "count", 100, "Maximum number of events to drain")
	cmd.AddCommand(drain)

	return cmd
}
