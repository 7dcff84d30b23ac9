package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docverify/internal/config"
	"docverify/internal/docverify"
	"docverify/internal/testutil"
	"docverify/internal/vault"
)

// newTestConfig returns a config backed by files under a temp dir, so that
// state survives between DocApp instances.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.NewConfig("test-instance", base)
	cfg.Encryption.Type = "test"
	cfg.Vaults = []config.VaultConfig{{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(base, "vault")}}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, operation string) *DocApp {
	t.Helper()
	a, err := NewDocApp(context.Background(), cfg, operation, Options{
		Stderr: &bytes.Buffer{},
		Clock:  testutil.FixedClock(),
	})
	if err != nil {
		t.Fatalf("NewDocApp() error = %v", err)
	}
	return a
}

func writeDocument(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDocApp_IssueAndVerify(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	doc := writeDocument(t, t.TempDir(), "diploma.pdf", "%PDF-1.4 diploma")
	meta := map[string]any{"recipientName": "Ada Lovelace", "documentType": "diploma"}

	a := newTestApp(t, cfg, "LedgerDeploy")
	address, err := a.DeployContract(ctx)
	if err != nil {
		t.Fatalf("DeployContract() error = %v", err)
	}
	if cfg.Ledger.ContractAddress != address {
		t.Errorf("ContractAddress = %q, want %q", cfg.Ledger.ContractAddress, address)
	}
	if _, err := a.RegisterInstitution(ctx, "State University", "SU-1", ""); err != nil {
		t.Fatalf("RegisterInstitution() error = %v", err)
	}
	if _, err := a.ApproveInstitution(ctx, a.Account()); err != nil {
		t.Fatalf("ApproveInstitution() error = %v", err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A second app finds the contract through the config.
	a = newTestApp(t, cfg, "Upload")
	defer a.Close(ctx)

	if ok, err := a.InstitutionVerified(ctx, a.Account()); err != nil || !ok {
		t.Fatalf("InstitutionVerified() = %v, %v, want true", ok, err)
	}

	up, err := a.Upload(ctx, doc, meta)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if up.Record.FileName != "diploma.pdf" || up.Record.Status != docverify.RecordPending {
		t.Errorf("Upload() record = %+v", up.Record)
	}
	if !a.Operation().Mutating() {
		t.Error("Operation().Mutating() = false after Upload()")
	}

	if _, err := a.Issue(ctx, up.Hash, docverify.IssueRequest{Title: "BSc Mathematics"}); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	res := a.Verify(ctx, up.Hash)[0]
	if res.Status != docverify.StatusPending {
		t.Errorf("Verify() status = %q, want pending", res.Status)
	}
	if res.Document.RecipientName != "Ada Lovelace" || res.Document.Title != "BSc Mathematics" {
		t.Errorf("Verify() document = %+v", res.Document)
	}

	if _, err := a.Confirm(ctx, up.Hash); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	byFile, err := a.VerifyFile(ctx, doc, meta)
	if err != nil {
		t.Fatalf("VerifyFile() error = %v", err)
	}
	if !byFile.IsValid || byFile.Status != docverify.StatusValid {
		t.Errorf("VerifyFile() = %+v, want valid", byFile)
	}
	if st := a.Status(ctx, up.Hash); st.Status != docverify.RecordVerified {
		t.Errorf("Status() = %q, want verified", st.Status)
	}

	if _, err := a.Revoke(ctx, up.Hash); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if res := a.Verify(ctx, up.Hash, "0xdeadbeef")[0]; res.IsValid || res.Status != docverify.StatusRevoked {
		t.Errorf("Verify() after revoke = %+v", res)
	}

	events, err := a.LedgerEvents(ctx, docverify.EventDocumentRevoked)
	if err != nil || len(events) != 1 {
		t.Errorf("LedgerEvents() = %+v, %v, want one revocation", events, err)
	}
}

func TestDocApp_Diagnose(t *testing.T) {
	cfg := newTestConfig(t)
	a := newTestApp(t, cfg, "Diagnose")
	defer a.Close(context.Background())

	doc := writeDocument(t, t.TempDir(), "transcript.txt", "grades\r\n")
	up, err := a.Upload(context.Background(), doc, map[string]any{"term": "fall"})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	report, err := a.Diagnose(doc, map[string]any{"term": "fall"}, up.Hash)
	if err != nil {
		t.Fatalf("Diagnose() error = %v", err)
	}
	if label, ok := report.Match(); !ok || label != "canonical" {
		t.Errorf("Match() = %q, %v, want canonical", label, ok)
	}

	if _, err := a.Diagnose(filepath.Join(t.TempDir(), "missing.pdf"), nil, up.Hash); err == nil {
		t.Error("Diagnose() of a missing file succeeded")
	}
	if a.Operation().Status != "error" {
		t.Errorf("Operation().Status = %q, want error", a.Operation().Status)
	}
}

func TestDocApp_RecordMaintenance(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	a := newTestApp(t, cfg, "Records")
	defer a.Close(ctx)

	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.pdf"} {
		if _, err := a.Upload(ctx, writeDocument(t, dir, name, name), nil); err != nil {
			t.Fatalf("Upload(%s) error = %v", name, err)
		}
	}
	if s := a.Stats(ctx); s.Total != 2 || s.Pending != 2 || s.LocalOnly != 2 {
		t.Errorf("Stats() = %+v", s)
	}

	if n, err := a.MigrateRecords(ctx); err != nil || n != 0 {
		t.Errorf("MigrateRecords() = %d, %v, want 0", n, err)
	}
	if n, err := a.CleanupRecords(ctx, time.Hour); err != nil || n != 0 {
		t.Errorf("CleanupRecords(1h) = %d, %v, want 0", n, err)
	}
	if n, err := a.CleanupRecords(ctx, -time.Hour); err != nil || n != 2 {
		t.Errorf("CleanupRecords(-1h) = %d, %v, want 2", n, err)
	}
	if n, err := a.ClearRecords(ctx); err != nil || n != 0 {
		t.Errorf("ClearRecords() = %d, %v, want 0", n, err)
	}
	if len(a.Records(ctx)) != 0 {
		t.Errorf("Records() = %v, want empty", a.Records(ctx))
	}
}

func TestDocApp_Snapshots(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	cfg.Snapshot.AutoPush = true
	doc := writeDocument(t, t.TempDir(), "diploma.pdf", "diploma")

	a := newTestApp(t, cfg, "Upload")
	up, err := a.Upload(ctx, doc, nil)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	fsv, err := vault.NewFileSystemVault("local", cfg.Vaults[0].FSVaultRoot)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := fsv.SnapshotVersion(ctx, cfg.InstanceID); v != 1 {
		t.Errorf("snapshot version after auto push = %d, want 1", v)
	}

	// Read-only operations do not push.
	a = newTestApp(t, cfg, "RecordStats")
	a.Stats(ctx)
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if v, _ := fsv.SnapshotVersion(ctx, cfg.InstanceID); v != 1 {
		t.Errorf("snapshot version after read-only operation = %d, want 1", v)
	}

	cfg.Snapshot.AutoPush = false
	a = newTestApp(t, cfg, "SnapshotPull")
	defer a.Close(ctx)
	if _, err := a.ClearRecords(ctx); err != nil {
		t.Fatalf("ClearRecords() error = %v", err)
	}
	res, err := a.PullSnapshot(ctx, "")
	if err != nil {
		t.Fatalf("PullSnapshot() error = %v", err)
	}
	if res.Version != 1 || res.Imported != 1 || !a.Status(ctx, up.Hash).Exists {
		t.Errorf("PullSnapshot() = %+v, want the uploaded record back", res)
	}

	version, err := a.PushSnapshot(ctx)
	if err != nil || version != 2 {
		t.Errorf("PushSnapshot() = %d, %v, want 2", version, err)
	}
}

func TestDocApp_WithoutVaults(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	cfg.Vaults = nil

	a := newTestApp(t, cfg, "SnapshotPush")
	defer a.Close(ctx)

	if _, err := a.PushSnapshot(ctx); err == nil || !strings.Contains(err.Error(), "no vaults") {
		t.Errorf("PushSnapshot() error = %v, want no vaults", err)
	}
	if _, err := a.PullSnapshot(ctx, ""); err == nil {
		t.Error("PullSnapshot() without vaults succeeded")
	}
}

func TestDocApp_WritesMetricsTextfile(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	cfg.Metrics.TextfilePath = filepath.Join(t.TempDir(), "docverify.prom")

	a := newTestApp(t, cfg, "Verify")
	a.Verify(ctx, strings.Repeat("ab", 32))
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(cfg.Metrics.TextfilePath)
	if err != nil {
		t.Fatalf("reading metrics textfile: %v", err)
	}
	if !strings.Contains(string(data), `docverify_verifications_total{status="not_found"} 1`) {
		t.Errorf("metrics textfile missing verification count:\n%s", data)
	}
}

func TestNewDocApp_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "unknown records type", mutate: func(c *config.Config) { c.Records.Type = "mongo" }},
		{name: "unknown ledger type", mutate: func(c *config.Config) { c.Ledger.Type = "ethereum" }},
		{name: "bad account", mutate: func(c *config.Config) { c.Ledger.Account = "not-an-address" }},
		{name: "contract not deployed", mutate: func(c *config.Config) {
			c.Ledger.ContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
		}},
		{name: "unknown vault type", mutate: func(c *config.Config) { c.Vaults[0].Type = "ftp" }},
		{name: "unknown encryption type", mutate: func(c *config.Config) { c.Encryption.Type = "rot13" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			tt.mutate(cfg)
			a, err := NewDocApp(context.Background(), cfg, "Test", Options{Stderr: &bytes.Buffer{}})
			if err == nil {
				a.Close(context.Background())
				t.Fatal("NewDocApp() succeeded")
			}
		})
	}

	t.Run("contract not deployed wraps ErrContractUninitialized", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Ledger.ContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
		_, err := NewDocApp(context.Background(), cfg, "Test", Options{Stderr: &bytes.Buffer{}})
		if !errors.Is(err, docverify.ErrContractUninitialized) {
			t.Errorf("NewDocApp() error = %v, want ErrContractUninitialized", err)
		}
	})
}

func TestMergeIssueRequest(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	base := docverify.IssueRequest{Title: "diploma.pdf", RecipientName: "Ada", DocumentType: "diploma"}
	got := mergeIssueRequest(base, docverify.IssueRequest{Title: "BSc", ExpirationDate: &exp})

	if got.Title != "BSc" || got.RecipientName != "Ada" || got.DocumentType != "diploma" {
		t.Errorf("mergeIssueRequest() = %+v", got)
	}
	if got.ExpirationDate == nil || !got.ExpirationDate.Equal(exp) {
		t.Errorf("ExpirationDate = %v, want %v", got.ExpirationDate, exp)
	}
}

func TestDocApp_UploadAll(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig(t)
	cfg.Filesystem.Ignore = []string{"*.tmp"}
	a := newTestApp(t, cfg, "Upload")
	defer a.Close(ctx)

	dir := t.TempDir()
	writeDocument(t, dir, "a.pdf", "a")
	writeDocument(t, dir, "scan.tmp", "tmp")
	if err := os.Mkdir(filepath.Join(dir, "2024"), 0755); err != nil {
		t.Fatal(err)
	}
	writeDocument(t, filepath.Join(dir, "2024"), "b.pdf", "b")

	results, err := a.UploadAll(ctx, dir, false, map[string]any{"batch": "1"})
	if err != nil {
		t.Fatalf("UploadAll() error = %v", err)
	}
	if len(results) != 1 || results[0].Record.FileName != "a.pdf" {
		t.Errorf("UploadAll(non-recursive) = %+v, want a.pdf only", results)
	}

	results, err = a.UploadAll(ctx, dir, true, map[string]any{"batch": "1"})
	if err != nil {
		t.Fatalf("UploadAll() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("UploadAll(recursive) returned %d results, want 2", len(results))
	}
	for _, res := range results {
		if !res.OK {
			t.Errorf("UploadAll() result = %+v", res)
		}
	}
	if s := a.Stats(ctx); s.Total != 2 {
		t.Errorf("Stats().Total = %d, want 2", s.Total)
	}

	if _, err := a.UploadAll(ctx, filepath.Join(dir, "missing"), false, nil); err == nil {
		t.Error("UploadAll(missing) succeeded")
	}
}
