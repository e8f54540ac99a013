package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/buildloop/buildloop/internal/services"
	"github.com/buildloop/buildloop/internal/theme"
)

// MetricsCmd shows per-request cost and turn statistics of a project
type MetricsCmd struct {
	Format    string `help:"Output format: table or json" enum:"table,json" default:"table"`
	Limit     int    `help:"Number of recent requests (max 200)" default:"30"`
	ProjectID string `arg:"" help:"Project ID"`
}

// Run executes the metrics command
func (m *MetricsCmd) Run(cli *CLI) error {
	report, err := cli.Container.MetricsService.Project(context.Background(), m.ProjectID, m.Limit)
	if err != nil {
		return fmt.Errorf("failed to compute metrics: %w", err)
	}

	if m.Format == "json" {
		return printJSON(report)
	}
	return m.printTable(report)
}

func (m *MetricsCmd) printTable(report *services.MetricsReport) error {
	fmt.Println(theme.TitleStyle.Render(fmt.Sprintf("Metrics of %s (last %d completed requests)", report.ProjectID, report.Count)))
	fmt.Println(theme.HeaderStyle.Render(fmt.Sprintf("Median cost $%.4f, median turns %.1f, outlier at %.1fx",
		report.Medians.CostUSD, report.Medians.NumTurns, report.OutlierMultiplier)))
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tTYPE\tCOST\tTURNS\tDURATION\tNOTICE")
	for _, item := range report.Items {
		cost := fmt.Sprintf("$%.4f", item.CostUSD)
		if item.Outlier.Cost {
			cost = theme.OutlierStyle.Render(cost)
		}
		turns := strconv.Itoa(item.NumTurns)
		if item.Outlier.Turns {
			turns = theme.OutlierStyle.Render(turns)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\t%s\n",
			item.CreatedAt.Format("2006-01-02 15:04:05"),
			item.RequestType,
			cost,
			turns,
			item.DurationMS,
			checkmark(item.CostNoticeTriggered))
	}
	return w.Flush()
}
