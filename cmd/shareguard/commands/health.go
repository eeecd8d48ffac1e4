package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shareguard/shareguard/internal/cli/output"
	"github.com/shareguard/shareguard/pkg/health"
	"github.com/shareguard/shareguard/pkg/store"
)

var healthOutput string

var healthCmd = &cobra.Command{
	Use:   "health PATH [PATH...]",
	Short: "Run the ACL health analyzer",
	Long: `Analyze the given paths, persist findings, and print the health score
with the detected issues.

Examples:
  # Analyze two shares
  shareguard health 'C:\Shares\Finance' 'C:\Shares\HR'

  # Machine-readable output
  shareguard health 'C:\Shares\Finance' --output json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().StringVarP(&healthOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	format, err := output.ParseFormat(healthOutput)
	if err != nil {
		return err
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() { _ = st.Close() }()

	sc, err := buildScanner(cfg)
	if err != nil {
		return err
	}

	analyzer := health.New(st, sc, health.Config{
		MaxACECount:       cfg.Health.MaxACECount,
		MaxDirectUserACEs: cfg.Health.MaxDirectUserACEs,
		CriticalGroups:    cfg.Health.CriticalGroups,
		CacheTTL:          cfg.Cache.TTL,
	})

	result, err := analyzer.Run(context.Background(), args)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, result)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, result)
	}

	fmt.Printf("Health score: %.1f\n", result.Score)
	fmt.Printf("Issues: %d", result.TotalIssues)
	if len(result.BySeverity) > 0 {
		parts := make([]string, 0, len(result.BySeverity))
		for sev, n := range result.BySeverity {
			parts = append(parts, fmt.Sprintf("%s=%d", sev, n))
		}
		fmt.Printf(" (%s)", strings.Join(parts, ", "))
	}
	fmt.Println()
	if result.PathErrors > 0 {
		fmt.Printf("Unscannable paths: %d\n", result.PathErrors)
	}
	if len(result.Issues) == 0 {
		return nil
	}
	fmt.Println()

	table := output.NewTableData("PATH", "ISSUE", "SEVERITY", "RISK", "DESCRIPTION")
	for _, issue := range result.Issues {
		table.AddRow(
			issue.Path,
			string(issue.IssueType),
			string(issue.Severity),
			strconv.FormatFloat(issue.RiskScore, 'f', 1, 64),
			issue.Description,
		)
	}
	return output.PrintTable(os.Stdout, table)
}
