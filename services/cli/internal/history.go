package internal

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent analyses stored by the gateway",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of entries")
}

func runHistory(cmd *cobra.Command, args []string) error {
	api, _ := cmd.Flags().GetString("api")
	limit, _ := cmd.Flags().GetInt("limit")

	rows, err := newAPIClient(api, 10*time.Second).history(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No analyses yet.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSMELL\tRATING\tSOURCE\tSNIPPET")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04"),
			r.Smell,
			r.Metrics.MaintainabilityRating,
			r.Source,
			strings.Join(strings.Fields(r.Snippet), " "),
		)
	}
	return tw.Flush()
}
