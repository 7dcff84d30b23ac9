package main

import (
	"fmt"
	"time"

	"docverify/internal/app"
	"docverify/internal/config"
	"docverify/internal/docverify"

	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Deploy the registry and manage institutions and documents",
}

var ledgerDeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a registry contract administered by this account",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		a, configPath, err := newApp(ctx, "LedgerDeploy")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		if addr := a.Config().Ledger.ContractAddress; addr != "" {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				return fmt.Errorf("contract already configured at %s (use --force to replace it)", addr)
			}
		}

		address, err := a.DeployContract(ctx)
		if err != nil {
			return err
		}
		if err := config.WriteToFile(configPath, a.Config()); err != nil {
			return fmt.Errorf("saving contract address: %w", err)
		}
		fmt.Printf("Contract deployed at %s\n", address)
		fmt.Printf("Admin: %s\n", a.Account())
		return nil
	},
}

var ledgerRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this account as an issuing institution",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		name, _ := cmd.Flags().GetString("name")
		regNo, _ := cmd.Flags().GetString("registration-number")
		contact, _ := cmd.Flags().GetString("contact")

		a, _, err := newApp(ctx, "LedgerRegister")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		r, err := a.RegisterInstitution(ctx, name, regNo, contact)
		if err != nil {
			return err
		}
		printReceipt("Registered "+a.Account(), r)
		return nil
	},
}

var ledgerApproveCmd = &cobra.Command{
	Use:   "approve ADDRESS",
	Short: "Verify a registered institution (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		a, _, err := newApp(ctx, "LedgerApprove")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		r, err := a.ApproveInstitution(ctx, args[0])
		if err != nil {
			return err
		}
		printReceipt("Approved "+args[0], r)
		return nil
	},
}

var ledgerInstitutionCmd = &cobra.Command{
	Use:   "institution [ADDRESS]",
	Short: "Show whether an institution is verified (default: this account)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		a, _, err := newApp(ctx, "LedgerInstitution")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		address := a.Account()
		if len(args) == 1 {
			address = args[0]
		}
		ok, err := a.InstitutionVerified(ctx, address)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("%s  %s\n", address, okColor.Sprint("verified"))
		} else {
			fmt.Printf("%s  %s\n", address, warnColor.Sprint("not verified"))
		}
		return nil
	},
}

var ledgerIssueCmd = &cobra.Command{
	Use:   "issue HASH",
	Short: "Issue an uploaded document on the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		req, err := issueRequestFlags(cmd)
		if err != nil {
			return err
		}

		a, _, err := newApp(ctx, "LedgerIssue")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		r, err := a.Issue(ctx, args[0], req)
		if err != nil {
			return err
		}
		printReceipt("Issued "+args[0], r)
		return nil
	},
}

func issueRequestFlags(cmd *cobra.Command) (docverify.IssueRequest, error) {
	str := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	req := docverify.IssueRequest{
		DocumentType:  str("type"),
		Title:         str("title"),
		RecipientName: str("recipient"),
		RecipientID:   str("recipient-id"),
		MetadataURI:   str("metadata-uri"),
		Signature:     str("signature"),
	}
	if raw := str("expires"); raw != "" {
		exp, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return req, fmt.Errorf("--expires: %w", err)
		}
		req.ExpirationDate = &exp
	}
	return req, nil
}

// txCmd builds a subcommand that sends one transaction about a document hash.
func txCmd(use, short, operation, verb string, send func(a *app.DocApp, cmd *cobra.Command, hash string) (*docverify.Receipt, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " HASH",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			a, _, err := newApp(ctx, operation)
			if err != nil {
				return err
			}
			defer closeApp(ctx, a, &err)

			r, err := send(a, cmd, args[0])
			if err != nil {
				return err
			}
			printReceipt(verb+" "+args[0], r)
			return nil
		},
	}
}

var ledgerConfirmCmd = txCmd("confirm", "Confirm an issued document", "LedgerConfirm", "Confirmed",
	func(a *app.DocApp, cmd *cobra.Command, hash string) (*docverify.Receipt, error) {
		return a.Confirm(cmd.Context(), hash)
	})

var ledgerRevokeCmd = txCmd("revoke", "Revoke an issued document", "LedgerRevoke", "Revoked",
	func(a *app.DocApp, cmd *cobra.Command, hash string) (*docverify.Receipt, error) {
		return a.Revoke(cmd.Context(), hash)
	})

var ledgerEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List contract events",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		name, _ := cmd.Flags().GetString("name")

		a, _, err := newApp(ctx, "LedgerEvents")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		events, err := a.LedgerEvents(ctx, name)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No events.")
			return nil
		}
		for _, e := range events {
			fmt.Printf("#%-6d %-22s %s  tx %s\n", e.Block, e.Name, e.Subject, e.TxID)
		}
		return nil
	},
}

func printReceipt(what string, r *docverify.Receipt) {
	fmt.Printf("%s\n", okColor.Sprint(what))
	fmt.Printf("  tx:    %s\n", r.TransactionID)
	fmt.Printf("  block: %d\n", r.BlockReference)
	fmt.Printf("  cost:  %d\n", r.Cost)
}

func init() {
	ledgerDeployCmd.Flags().Bool("force", false, "Replace an already configured contract")

	ledgerRegisterCmd.Flags().String("name", "", "Institution name")
	ledgerRegisterCmd.Flags().String("registration-number", "", "Official registration number")
	ledgerRegisterCmd.Flags().String("contact", "", "Contact information")
	ledgerRegisterCmd.MarkFlagRequired("name")

	ledgerIssueCmd.Flags().String("type", "", "Document type (default: documentType metadata)")
	ledgerIssueCmd.Flags().String("title", "", "Document title (default: title metadata or file name)")
	ledgerIssueCmd.Flags().String("recipient", "", "Recipient name")
	ledgerIssueCmd.Flags().String("recipient-id", "", "Recipient identifier")
	ledgerIssueCmd.Flags().String("metadata-uri", "", "URI of off-ledger metadata")
	ledgerIssueCmd.Flags().String("signature", "", "Issuer signature")
	ledgerIssueCmd.Flags().String("expires", "", "Expiration date (YYYY-MM-DD)")

	ledgerEventsCmd.Flags().String("name", "", "Only list events with this name")

	ledgerCmd.AddCommand(ledgerDeployCmd)
	ledgerCmd.AddCommand(ledgerRegisterCmd)
	ledgerCmd.AddCommand(ledgerApproveCmd)
	ledgerCmd.AddCommand(ledgerInstitutionCmd)
	ledgerCmd.AddCommand(ledgerIssueCmd)
	ledgerCmd.AddCommand(ledgerConfirmCmd)
	ledgerCmd.AddCommand(ledgerRevokeCmd)
	ledgerCmd.AddCommand(ledgerEventsCmd)
}
