package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/pipeline"
	"github.com/sells-group/visibility-cli/internal/store"
)

var (
	listStatus string
	listURL    string
	listLimit  int
	showJSON   bool
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect stored visibility reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		reports, err := st.ListReports(ctx, store.ReportFilter{
			Status:     model.ReportStatus(listStatus),
			CompanyURL: listURL,
			Limit:      listLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list reports")
		}

		for _, r := range reports {
			fmt.Printf("%s  %-10s  prompts=%d runs=%d  %s\n",
				r.ID, r.Status, r.PromptCount, r.RunsPerPrompt, r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		if len(reports) == 0 {
			fmt.Println("no reports found")
		}
		return nil
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show one report with its full prompt tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reportID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		full, err := st.GetFullReport(ctx, reportID)
		if err != nil {
			return eris.Wrap(err, "get report")
		}
		if full == nil {
			return eris.Errorf("report %s not found", reportID)
		}

		if showJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(full)
		}

		competitors, err := st.CompetitorLeaderboard(ctx, reportID)
		if err != nil {
			return eris.Wrap(err, "competitor leaderboard")
		}
		sources, err := st.TopSources(ctx, reportID, 10)
		if err != nil {
			return eris.Wrap(err, "top sources")
		}

		fmt.Print(pipeline.FormatReport(full, competitors, sources))
		return nil
	},
}

func init() {
	reportsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (generating|completed|failed)")
	reportsListCmd.Flags().StringVar(&listURL, "url", "", "filter by company URL")
	reportsListCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum reports to list")
	reportsShowCmd.Flags().BoolVar(&showJSON, "json", false, "emit the full report as JSON")
	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	rootCmd.AddCommand(reportsCmd)
}
