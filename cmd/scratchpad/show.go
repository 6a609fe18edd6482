package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/debemdeboas/scratchpad/internal/scratchpad"
)

func newShowCmd(a *app) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the document",
		Long:  "Print the document without its heading. Use --raw to print the stored content as is.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			doc, err := s.provider.FetchContent(ctx)
			if err != nil {
				return err
			}

			out := string(doc.Content)
			if !raw {
				_, out = scratchpad.StripHeading(out, a.cfg.Scratchpad.Headings)
			}
			if out != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the stored content including the heading")
	return cmd
}
