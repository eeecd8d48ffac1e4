package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shareguard/shareguard/internal/cli/output"
	"github.com/shareguard/shareguard/pkg/acl"
	"github.com/shareguard/shareguard/pkg/scanner"
)

var (
	scanSubfolders       bool
	scanMaxDepth         int
	scanAnnotate         bool
	scanInherited        bool
	scanSimplifiedSystem bool
	scanOutput           string
)

var scanCmd = &cobra.Command{
	Use:   "scan PATH",
	Short: "Run a one-shot ACL scan",
	Long: `Scan a folder's access control list and print the normalized snapshot.

Examples:
  # Scan a single folder
  shareguard scan 'C:\Shares\Finance'

  # Scan with subfolders and access-path annotation
  shareguard scan 'C:\Shares\Finance' --subfolders --annotate

  # Machine-readable output
  shareguard scan 'C:\Shares\Finance' --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanSubfolders, "subfolders", false, "Recurse into subfolders")
	scanCmd.Flags().IntVar(&scanMaxDepth, "max-depth", scanner.DefaultMaxDepth, "Subfolder recursion limit")
	scanCmd.Flags().BoolVar(&scanAnnotate, "annotate", false, "Trace access paths for every trustee")
	scanCmd.Flags().BoolVar(&scanInherited, "include-inherited", true, "Show inherited entries")
	scanCmd.Flags().BoolVar(&scanSimplifiedSystem, "simplified-system", false, "Hide system-trustee entries")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	format, err := output.ParseFormat(scanOutput)
	if err != nil {
		return err
	}

	sc, err := buildScanner(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	path := args[0]

	if !scanSubfolders {
		snap, scanErr := sc.Scan(ctx, path)
		if scanErr != nil {
			return scanErr
		}
		if scanAnnotate {
			sc.Annotate(ctx, snap)
		}
		scanner.ApplyView(snap, !scanInherited, scanSimplifiedSystem)
		return printSnapshot(format, snap)
	}

	result := sc.ScanTree(ctx, path, scanner.Options{
		IncludeSubfolders: true,
		MaxDepth:          scanMaxDepth,
		AnnotatePaths:     scanAnnotate,
		ExcludeInherited:  !scanInherited,
		SimplifiedSystem:  scanSimplifiedSystem,
	})
	if !result.Success {
		return fmt.Errorf("scan failed: %s", result.Reason)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, result)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, result)
	}

	snapshots := append([]*acl.Snapshot{result.Root}, result.Children...)
	for _, snap := range snapshots {
		if err := printSnapshot(output.FormatTable, snap); err != nil {
			return err
		}
		fmt.Println()
	}
	fmt.Printf("Scanned %d of %d folders, %d errors\n",
		result.Stats.ProcessedFolders, result.Stats.TotalFolders, result.Stats.ErrorCount)
	return nil
}

func printSnapshot(format output.Format, snap *acl.Snapshot) error {
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, snap)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, snap)
	}

	fmt.Printf("%s\n", snap.Path)
	fmt.Printf("  Owner:       %s\n", snap.Owner.FullName)
	fmt.Printf("  Inheritance: %s\n", enabledWord(snap.InheritanceEnabled))
	fmt.Printf("  Checksum:    %s\n\n", snap.Checksum)

	table := output.NewTableData("TRUSTEE", "TYPE", "INHERITED", "RIGHTS")
	for _, ace := range snap.ACEs {
		table.AddRow(
			ace.Trustee.FullName,
			string(ace.Type),
			yesNo(ace.Inherited),
			rightsColumn(ace.Permissions),
		)
	}
	return output.PrintTable(os.Stdout, table)
}

func rightsColumn(ps acl.PermissionSet) string {
	rights := ps.All()
	parts := make([]string, 0, len(rights))
	for _, r := range rights {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ", ")
}

func enabledWord(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
