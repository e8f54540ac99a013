package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/theme"
)

// StatusCmd shows provider readiness
type StatusCmd struct {
	CLI     string `help:"Only check this CLI" default:""`
	Format  string `help:"Output format: table or json" enum:"table,json" default:"table"`
	Model   string `help:"Validate this model against the CLI" default:""`
	Project string `help:"Project ID; uses the cached per-project status" default:""`
}

// Run executes the status command
func (s *StatusCmd) Run(cli *CLI) error {
	ctx := context.Background()

	clis := domain.AllCLIs
	if s.CLI != "" {
		t, err := domain.ParseCLIType(s.CLI)
		if err != nil {
			return err
		}
		clis = []domain.CLIType{t}
	}

	statuses := make([]domain.CLIStatus, 0, len(clis))
	for _, t := range clis {
		if s.Project != "" {
			statuses = append(statuses, cli.Container.CLIStatusService.Status(ctx, s.Project, t, s.Model))
			continue
		}
		statuses = append(statuses, cli.Container.CLIManager.CheckCLIStatus(ctx, t, s.Model))
	}

	if s.Format == "json" {
		return printJSON(statuses)
	}
	return s.printTable(statuses)
}

func (s *StatusCmd) printTable(statuses []domain.CLIStatus) error {
	fmt.Println(theme.TitleStyle.Render("CLI providers"))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLI\tSTATUS\tMODELS\tDETAIL")
	for _, st := range statuses {
		detail := st.Error
		if st.ModelWarning != "" {
			detail = st.ModelWarning
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			st.CLI,
			theme.ReadinessLabel(st.Availability),
			strings.Join(st.Models, ", "),
			theme.MutedStyle.Render(detail))
	}
	return w.Flush()
}
