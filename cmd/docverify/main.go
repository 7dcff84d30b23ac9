package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"docverify/internal/app"
	"docverify/internal/config"
	"docverify/internal/ledger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var (
	verbose bool
	stdin   = bufio.NewReader(os.Stdin)
)

// newApp reads the config and creates a DocApp. The caller must defer
// closeApp. operation identifies the CLI command being run (e.g. "Upload",
// "Verify").
func newApp(ctx context.Context, operation string) (*app.DocApp, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewDocApp(ctx, cfg, operation, app.Options{Verbose: verbose})
	if err != nil {
		return nil, "", fmt.Errorf("initializing app: %w", err)
	}
	return a, defaults.ConfigPath, nil
}

// closeApp closes a and reports a close failure unless the command already
// failed.
func closeApp(ctx context.Context, a *app.DocApp, err *error) {
	if cerr := a.Close(ctx); cerr != nil && *err == nil {
		*err = cerr
	}
}

var rootCmd = &cobra.Command{
	Use:          "docverify",
	Short:        "Ledger-backed document verification",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, defaults.BaseDir)
		cfg.Ledger.Account = ledger.NewAccountAddress(instanceID)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Account:     %s\n", cfg.Ledger.Account)
		fmt.Printf("Base Dir:    %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Records:     %s\n", cfg.Records.Type)
		fmt.Printf("Ledger:      %s (contract %s)\n", cfg.Ledger.Type, orNone(cfg.Ledger.ContractAddress))
		fmt.Printf("Account:     %s\n", orNone(cfg.Ledger.Account))
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:       %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the snapshot key pair",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		a, _, err := newApp(ctx, "KeysInit")
		if err != nil {
			return err
		}
		defer closeApp(ctx, a, &err)

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return errors.New("passphrases do not match")
		}

		if err := a.SetupKeys(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Println("Snapshot keys generated.")
		return nil
	},
}

// readPassphrase prompts on stderr and reads a line from stdin without echo
// when stdin is a terminal.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// metaFlags registers the metadata flags shared by upload, verify-file and
// diagnose.
func metaFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("meta", "m", nil, "Metadata entry key=value (repeatable)")
	cmd.Flags().String("meta-file", "", "JSON file holding the metadata object")
}

// readMeta builds the metadata map from --meta-file and --meta. Entries from
// --meta override keys in the file.
func readMeta(cmd *cobra.Command) (map[string]any, error) {
	path, _ := cmd.Flags().GetString("meta-file")
	pairs, _ := cmd.Flags().GetStringArray("meta")

	meta := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading metadata file: %w", err)
		}
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("metadata file must hold a JSON object: %w", err)
		}
	}
	if err := parseMeta(meta, pairs); err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

func parseMeta(meta map[string]any, pairs []string) error {
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid metadata entry %q: want key=value", p)
		}
		meta[k] = v
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	keysCmd.AddCommand(keysInitCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(snapshotCmd)
}
