package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/debemdeboas/scratchpad/internal/model"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the document version every time it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			s, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, statusStyle.Render(fmt.Sprintf("Watching %s", a.doc())))
			return s.follow(ctx, func(v model.Version) {
				if v == 0 {
					fmt.Fprintln(out, "changed")
					return
				}
				fmt.Fprintf(out, "version %d\n", v)
			})
		},
	}
}
