package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soocke/beam-profiler-go/store"
)

func newReportCmd(env *Env) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report [SESSION]",
		Short: "List stored sessions or write the history report for one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := store.OpenExisting(env.Config.DatabasePath)
			if err != nil {
				return err
			}
			defer ws.Close()
			ctx := cmd.Context()
			if len(args) == 0 {
				sessions, err := ws.Sessions(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SESSION\tSTARTED\tDEVICE\tPITCH (mm)")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%g\n", s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.Device, s.PixelPitchMM)
				}
				return tw.Flush()
			}
			path := out
			if path == "" {
				path = filepath.Join(env.Config.ExportDir, "waists-"+shortID(args[0])+".html")
			}
			if err := writeReport(ctx, ws, args[0], path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "report path")
	return cmd
}
