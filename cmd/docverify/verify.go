package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"docverify/internal/docverify"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
)

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload PATH",
	Short: "Store documents as pending local records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		recursive, _ := cmd.Flags().GetBool("recursive")
		meta, err := readMeta(cmd)
		if err != nil {
			return err
		}

		a, _, err := newApp(ctx, "Upload")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		results, err := a.UploadAll(ctx, args[0], recursive, meta)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		failed := 0
		for _, res := range results {
			if !res.OK {
				failed++
				fmt.Printf("%s %v\n", failColor.Sprint("failed:"), res.Err)
				continue
			}
			fmt.Printf("%s  %s  %s\n", res.Hash, res.Record.Status, res.Record.FileName)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d upload(s) failed", failed, len(results))
		}
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status HASH",
	Short: "Show the local record for a hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		a, _, err := newApp(ctx, "Status")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		st := a.Status(ctx, args[0])
		if !st.Exists {
			fmt.Println("No local record.")
			return nil
		}
		printRecord(os.Stdout, st.Record)
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify HASH...",
	Short: "Verify document hashes against the ledger",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")

		a, _, err := newApp(ctx, "Verify")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		results := a.Verify(ctx, args...)
		if asJSON {
			return writeJSON(os.Stdout, results)
		}
		for i, res := range results {
			if i > 0 {
				fmt.Println()
			}
			printVerification(os.Stdout, res)
		}
		return nil
	},
}

// verify-file command
var verifyFileCmd = &cobra.Command{
	Use:   "verify-file FILE",
	Short: "Hash a document with its metadata and verify it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")
		meta, err := readMeta(cmd)
		if err != nil {
			return err
		}

		a, _, err := newApp(ctx, "VerifyFile")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		res, err := a.VerifyFile(ctx, args[0], meta)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(os.Stdout, res)
		}
		printVerification(os.Stdout, res)
		return nil
	},
}

// diagnose command
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose FILE",
	Short: "Find which hashing variant reproduces an expected hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		expected, _ := cmd.Flags().GetString("expect")
		meta, err := readMeta(cmd)
		if err != nil {
			return err
		}

		a, _, err := newApp(ctx, "Diagnose")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		report, err := a.Diagnose(args[0], meta, expected)
		if err != nil {
			return err
		}
		printDiagnosis(os.Stdout, report)
		return nil
	},
}

func statusColor(s docverify.DocumentStatus) *color.Color {
	switch s {
	case docverify.StatusValid:
		return okColor
	case docverify.StatusPending:
		return warnColor
	default:
		return failColor
	}
}

func printVerification(w io.Writer, res *docverify.VerificationResult) {
	verdict := "INVALID"
	if res.IsValid {
		verdict = "VALID"
	}
	c := statusColor(res.Status)
	fmt.Fprintf(w, "%s  %s (%s)\n", res.Hash, c.Sprint(verdict), strings.ToUpper(string(res.Status)))

	if doc := res.Document; doc != nil {
		fmt.Fprintf(w, "  issuer:    %s (%s)\n", doc.IssuerName, doc.Issuer)
		fmt.Fprintf(w, "  title:     %s\n", doc.Title)
		fmt.Fprintf(w, "  recipient: %s\n", doc.RecipientName)
		fmt.Fprintf(w, "  issued:    %s\n", doc.IssuanceDate.Format("2006-01-02"))
		if doc.ExpirationDate != nil {
			fmt.Fprintf(w, "  expires:   %s\n", doc.ExpirationDate.Format("2006-01-02"))
		}
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s %s\n", failColor.Sprint("error:"), e)
	}
	for _, wn := range res.Warnings {
		fmt.Fprintf(w, "  %s %s\n", warnColor.Sprint("warning:"), wn)
	}
}

func printDiagnosis(w io.Writer, report *docverify.DiagnosticReport) {
	fmt.Fprintf(w, "expected %s\n", report.Expected)
	for _, at := range report.Attempts {
		mark := " "
		if at.Match {
			mark = okColor.Sprint("*")
		}
		fmt.Fprintf(w, "%s %-22s %s\n", mark, at.Label, at.Hash)
	}
	if label, ok := report.Match(); ok {
		fmt.Fprintf(w, "matched by %s\n", okColor.Sprint(label))
	} else {
		fmt.Fprintln(w, failColor.Sprint("no variant matched"))
	}
}

func printRecord(w io.Writer, rec *docverify.DocumentRecord) {
	fmt.Fprintf(w, "hash:      %s\n", rec.Hash)
	fmt.Fprintf(w, "file:      %s\n", rec.FileName)
	fmt.Fprintf(w, "status:    %s\n", rec.Status)
	fmt.Fprintf(w, "stored:    %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "tx:        %s\n", orNone(rec.TransactionHash))
	fmt.Fprintf(w, "on ledger: %t\n", rec.BlockchainStored)
	if rec.FailureReason != "" {
		fmt.Fprintf(w, "failure:   %s\n", rec.FailureReason)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	metaFlags(uploadCmd)
	uploadCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	metaFlags(verifyFileCmd)
	metaFlags(diagnoseCmd)
	verifyCmd.Flags().Bool("json", false, "Print results as JSON")
	verifyFileCmd.Flags().Bool("json", false, "Print the result as JSON")
	diagnoseCmd.Flags().String("expect", "", "Expected document hash")
	diagnoseCmd.MarkFlagRequired("expect")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(verifyFileCmd)
	rootCmd.AddCommand(diagnoseCmd)
}
