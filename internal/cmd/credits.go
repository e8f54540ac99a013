package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/buildloop/buildloop/internal/theme"
)

// CreditsCmd inspects and grants credits
type CreditsCmd struct {
	Balance CreditsBalanceCmd `cmd:"balance" help:"Show the balance and recent ledger entries" default:"1"`
	Grant   CreditsGrantCmd   `cmd:"grant" help:"Grant credits to an owner"`
}

// CreditsBalanceCmd shows an owner's balance
type CreditsBalanceCmd struct {
	Limit int    `help:"Number of ledger entries to show" default:"20"`
	Owner string `arg:"" optional:"" help:"Owner ID" default:"local"`
}

// Run executes the balance command
func (c *CreditsBalanceCmd) Run(cli *CLI) error {
	account, txs, err := cli.Container.CreditService.Balance(context.Background(), c.Owner, c.Limit)
	if err != nil {
		return fmt.Errorf("failed to load credits: %w", err)
	}

	fmt.Println(theme.TitleStyle.Render(fmt.Sprintf("Credits of %s: %s", account.OwnerID, account.Balance.String())))
	if account.HasActiveSubscription() {
		fmt.Printf("Plan: %s (%s)\n\n", account.Plan, account.SubscriptionStatus)
	}

	if len(txs) == 0 {
		fmt.Println(theme.MutedStyle.Render("No ledger entries yet."))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tTYPE\tAMOUNT\tBALANCE\tDESCRIPTION")
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			tx.CreatedAt.Format("2006-01-02 15:04:05"),
			tx.Type,
			tx.Amount.String(),
			tx.BalanceAfter.String(),
			tx.Description)
	}
	return w.Flush()
}

// CreditsGrantCmd grants credits
type CreditsGrantCmd struct {
	Amount      string `arg:"" help:"Number of credits to grant"`
	Description string `help:"Ledger description" default:"Manual grant"`
	Owner       string `help:"Owner ID" default:"local"`
}

// Run executes the grant command
func (c *CreditsGrantCmd) Run(cli *CLI) error {
	amount, err := decimal.NewFromString(c.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", c.Amount, err)
	}

	balance, err := cli.Container.CreditService.Grant(context.Background(), c.Owner, amount, c.Description)
	if err != nil {
		return fmt.Errorf("failed to grant credits: %w", err)
	}

	fmt.Printf("Granted %s credits to %s, balance is now %s\n", amount.String(), c.Owner, balance.String())
	return nil
}
