package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/pipeline"
)

var (
	runURL            string
	runName           string
	runDescription    string
	runIndustry       string
	runProducts       string
	runTargetCustomer string
	runLocation       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate a visibility report for a single company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Engine.Run(ctx, pipeline.ReportRequest{
			Company: model.Company{
				URL:            runURL,
				Name:           runName,
				Description:    runDescription,
				Industry:       runIndustry,
				Products:       runProducts,
				TargetCustomer: runTargetCustomer,
				Location:       runLocation,
			},
		})
		if err != nil {
			return eris.Wrap(err, "run report")
		}

		zap.L().Info("report complete",
			zap.String("report_id", report.ID),
			zap.Int64("execution_ms", report.ExecutionMs),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "company website URL (required)")
	runCmd.Flags().StringVar(&runName, "name", "", "company name (required)")
	runCmd.Flags().StringVar(&runDescription, "description", "", "what the company does")
	runCmd.Flags().StringVar(&runIndustry, "industry", "", "industry label")
	runCmd.Flags().StringVar(&runProducts, "products", "", "main products or services")
	runCmd.Flags().StringVar(&runTargetCustomer, "target-customer", "", "who the company sells to")
	runCmd.Flags().StringVar(&runLocation, "location", "", "primary location")
	_ = runCmd.MarkFlagRequired("url")
	_ = runCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(runCmd)
}
