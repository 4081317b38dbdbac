package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quizdesk/internal/domain"
)

func NewCertificatesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "certificates",
		Short: "List earned certificates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), *configPath, func(d *deps) error {
				certs, err := d.service.Certificates(cmd.Context())
				if err != nil {
					return err
				}
				if len(certs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No certificates yet.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "HISTORY\tSUBJECT\tSCORE\tDATE")
				for _, c := range certs {
					fmt.Fprintf(tw, "%d\t%s\t%d%%\t%s\n", c.HistoryID, c.QuizSubject, c.Score, c.Date)
				}
				return tw.Flush()
			})
		},
	}
}

func NewDownloadCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "download HISTORY_ID",
		Short: "Download the certificate of a completed quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			historyID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: invalid history id %q", domain.ErrValidation, args[0])
			}
			return withSession(cmd.Context(), *configPath, func(d *deps) error {
				path, err := d.service.DownloadCertificate(cmd.Context(), historyID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
				return nil
			})
		},
	}
}
