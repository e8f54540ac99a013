package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/buildloop/buildloop/internal/domain"
	"github.com/buildloop/buildloop/internal/services"
)

// ProjectsCmd manages projects
type ProjectsCmd struct {
	Add  ProjectsAddCmd  `cmd:"add" help:"Create a project and initialize its repository"`
	List ProjectsListCmd `cmd:"list" help:"List projects" default:"1"`
	Set  ProjectsSetCmd  `cmd:"set" help:"Change the CLI, model or fallback of a project"`
	View ProjectsViewCmd `cmd:"view" help:"View a specific project"`
}

// ProjectsAddCmd creates a project
type ProjectsAddCmd struct {
	CLI        string `help:"Preferred CLI" default:"claude"`
	Model      string `help:"Selected model" default:""`
	Name       string `arg:"" help:"Project name"`
	NoFallback bool   `help:"Disable fallback to the default CLI"`
	Owner      string `help:"Owner of the project and its credits" default:"local"`
	RepoPath   string `help:"Repository path (defaults to <projects root>/<id>/repo)" default:""`
}

// Run executes the add command
func (p *ProjectsAddCmd) Run(cli *CLI) error {
	ctx := context.Background()

	project, err := cli.Container.ProjectService.Create(ctx, services.CreateProjectParams{
		FallbackEnabled: !p.NoFallback,
		Name:            p.Name,
		OwnerID:         p.Owner,
		PreferredCLI:    p.CLI,
		RepoPath:        p.RepoPath,
		SelectedModel:   p.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	account, err := cli.Container.CreditService.EnsureAccount(ctx, project.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to open credit account: %w", err)
	}

	fmt.Printf("Project '%s' created with ID %s\n", project.Name, project.ID)
	fmt.Printf("Repository: %s\n", project.RepoPath)
	fmt.Printf("Credits of %s: %s\n", account.OwnerID, account.Balance.String())
	return nil
}

// ProjectsListCmd lists projects
type ProjectsListCmd struct {
	Format string `help:"Output format: table or json" enum:"table,json" default:"table"`
	Owner  string `help:"Only list projects of this owner" default:""`
}

// Run executes the list command
func (p *ProjectsListCmd) Run(cli *CLI) error {
	projects, err := cli.Container.ProjectService.List(context.Background(), p.Owner)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}

	if p.Format == "json" {
		views := make([]projectJSON, 0, len(projects))
		for _, project := range projects {
			views = append(views, projectView(project))
		}
		return printJSON(views)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOWNER\tCLI\tMODEL\tFALLBACK\tCREATED")
	for _, project := range projects {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			project.ID,
			project.Name,
			project.OwnerID,
			project.PreferredCLI,
			project.SelectedModel,
			checkmark(project.FallbackEnabled),
			project.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d projects\n", len(projects))
	return nil
}

// ProjectsSetCmd updates project preferences
type ProjectsSetCmd struct {
	ClearModel bool   `help:"Clear the selected model"`
	CLI        string `help:"Preferred CLI" default:""`
	Fallback   string `help:"Enable or disable fallback to the default CLI" enum:"on,off,unchanged" default:"unchanged"`
	ID         string `arg:"" help:"Project ID"`
	Model      string `help:"Selected model" default:""`
}

// Run executes the set command
func (p *ProjectsSetCmd) Run(cli *CLI) error {
	var params services.UpdatePreferencesParams
	if p.CLI != "" {
		params.PreferredCLI = &p.CLI
	}
	if p.Fallback != "unchanged" {
		enabled := p.Fallback == "on"
		params.FallbackEnabled = &enabled
	}
	switch {
	case p.ClearModel:
		cleared := ""
		params.SelectedModel = &cleared
	case p.Model != "":
		params.SelectedModel = &p.Model
	}

	project, err := cli.Container.ProjectService.UpdatePreferences(context.Background(), p.ID, params)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	fmt.Printf("Project '%s' now uses %s", project.Name, project.PreferredCLI)
	if project.SelectedModel != "" {
		fmt.Printf(" (%s)", project.SelectedModel)
	}
	fmt.Printf(", fallback %s\n", onOff(project.FallbackEnabled))
	return nil
}

// ProjectsViewCmd shows one project
type ProjectsViewCmd struct {
	ID string `arg:"" help:"Project ID"`
}

// Run executes the view command
func (p *ProjectsViewCmd) Run(cli *CLI) error {
	project, err := cli.Container.ProjectService.Get(context.Background(), p.ID)
	if err != nil {
		return fmt.Errorf("failed to get project: %w", err)
	}
	return printJSON(projectView(*project))
}

type projectJSON struct {
	CreatedAt       string         `json:"created_at"`
	FallbackEnabled bool           `json:"fallback_enabled"`
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	OwnerID         string         `json:"owner_id"`
	PreferredCLI    domain.CLIType `json:"preferred_cli"`
	RepoPath        string         `json:"repo_path"`
	SelectedModel   string         `json:"selected_model,omitempty"`
	Status          string         `json:"status"`
}

func projectView(p domain.Project) projectJSON {
	return projectJSON{
		CreatedAt:       p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		FallbackEnabled: p.FallbackEnabled,
		ID:              p.ID,
		Name:            p.Name,
		OwnerID:         p.OwnerID,
		PreferredCLI:    p.PreferredCLI,
		RepoPath:        p.RepoPath,
		SelectedModel:   p.SelectedModel,
		Status:          p.Status,
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func checkmark(b bool) string {
	if b {
		return "✓"
	}
	return ""
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
