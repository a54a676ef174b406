package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iris-network/iris/internal/daemon"
)

func init() {
	accountCmd.AddCommand(accountGenerateCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountSuspendCmd)
	accountCmd.AddCommand(accountReactivateCmd)
	rootCmd.AddCommand(accountCmd)
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage worker accounts",
}

var accountGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create a new account and print its key",
	Long: `Create a new account. The key is printed exactly once; only its
hash is stored. Hand the key to a worker operator over a safe channel.`,
	RunE: runAccountGenerate,
}

var accountListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List accounts",
	RunE:    runAccountList,
}

var accountShowCmd = &cobra.Command{
	Use:   "show <account-id>",
	Short: "Show one account in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountShow,
}

var accountSuspendCmd = &cobra.Command{
	Use:   "suspend <account-id>",
	Short: "Suspend an account, disconnecting its workers",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountSuspend,
}

var accountReactivateCmd = &cobra.Command{
	Use:   "reactivate <account-id>",
	Short: "Reactivate a suspended account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountReactivate,
}

func runAccountGenerate(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	acct, key, err := d.Accounts.Create()
	if err != nil {
		return err
	}

	fmt.Printf("Account %s created.\n\n", acct.ID)
	fmt.Printf("  Key: %s\n\n", key)
	fmt.Println("Store this key now. It will not be shown again.")
	return nil
}

func runAccountList(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	accounts, err := d.Accounts.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts. Run 'iris account generate' to create one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKEY\tSTATUS\tCREATED")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s****\t%s\t%s\n",
			a.ID,
			a.KeyPrefix,
			a.Status,
			a.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	info, err := d.Accounts.Describe(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Account:  %s\n", info.Account.ID)
	fmt.Printf("Key:      %s\n", info.MaskedKey)
	fmt.Printf("Status:   %s\n", info.Account.Status)
	fmt.Printf("Nodes:    %d\n", info.NodeCount)
	fmt.Printf("Created:  %s\n", info.Account.CreatedAt.Format("2006-01-02 15:04"))
	if !info.Account.LastActivityAt.IsZero() {
		fmt.Printf("Active:   %s\n", info.Account.LastActivityAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runAccountSuspend(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Accounts.Suspend(args[0]); err != nil {
		return err
	}
	fmt.Printf("Account %s suspended.\n", args[0])
	return nil
}

func runAccountReactivate(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Accounts.Reactivate(args[0]); err != nil {
		return err
	}
	fmt.Printf("Account %s reactivated.\n", args[0])
	return nil
}
