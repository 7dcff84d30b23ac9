package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"docverify/internal/config"
	"docverify/internal/database"
	"docverify/internal/docverify"
	"docverify/internal/encryption"
	"docverify/internal/fs"
	"docverify/internal/ledger"
	"docverify/internal/metrics"
	"docverify/internal/notify"
	"docverify/internal/records"
	"docverify/internal/vault"
)

// kafkaFlushTimeout bounds how long Close waits for change events to be
// delivered.
const kafkaFlushTimeout = 10 * time.Second

// Options tune how a DocApp is built. The zero value logs warnings to
// os.Stderr and uses the wall clock.
type Options struct {
	Stderr  io.Writer
	Verbose bool
	Clock   docverify.Clock
	IDGen   docverify.IDGenerator
}

// DocApp is the application layer between the CLI and the docverify services.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw file paths, and releases every resource on Close.
type DocApp struct {
	cfg       *config.Config
	op        *Operation
	logger    docverify.Logger
	logFile   *os.File
	clock     docverify.Clock
	state     ledger.StateStore
	chain     *ledger.Chain
	client    *ledger.Client
	ledger    docverify.LedgerClient
	metrics   *metrics.Metrics
	store     *docverify.RecordStore
	verifier  *docverify.Verifier
	issuer    *docverify.Issuer
	encryptor docverify.Encryptor
	snapshots *docverify.SnapshotService
	kafka     *notify.KafkaObserver
	finder    *fs.Finder
	closers   []func() error
}

// NewDocApp creates a fully wired DocApp from the given config.
// operation identifies the CLI command being run (e.g. "Upload", "Verify").
// The caller must call Close when done.
func NewDocApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (_ *DocApp, err error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = docverify.RealClock{}
	}
	if opts.IDGen == nil {
		opts.IDGen = docverify.UUIDGenerator{}
	}

	a := &DocApp{
		cfg:    cfg,
		op:     NewOperation(operation, "", opts.Clock.Now()),
		clock:  opts.Clock,
		finder: fs.NewFinder(cfg.Filesystem.Ignore),
	}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	slogger, logFile, err := newLogger(cfg.LogDir, a.op.ID, opts.Stderr, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a.logFile = logFile
	a.logger = &slogAdapter{l: slogger}

	repo, closeRepo, err := records.NewRepositoryFromConfig(ctx, cfg.Records, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating record repository: %w", err)
	}
	a.closers = append(a.closers, closeRepo)

	state, err := database.NewStateStoreFromConfig(cfg.Ledger, cfg.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("creating ledger state: %w", err)
	}
	a.state = state
	a.closers = append(a.closers, state.Close)

	a.chain = ledger.NewChain(state, opts.Clock, opts.IDGen, a.logger)
	a.client, err = ledger.NewClient(a.chain, a.account(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating ledger client: %w", err)
	}
	a.metrics = metrics.New()
	a.ledger = metrics.InstrumentLedger(a.client, a.metrics)
	if cfg.Ledger.ContractAddress != "" {
		if err := a.ledger.Initialize(ctx, cfg.Ledger.ContractAddress); err != nil {
			return nil, fmt.Errorf("binding ledger contract: %w", err)
		}
	}

	a.store = docverify.NewRecordStore(repo, opts.Clock, opts.IDGen, a.logger)
	a.store.Subscribe(a.metrics)
	a.store.Subscribe(notify.NewLogObserver(a.logger))
	a.store.Subscribe(docverify.ObserverFunc(func(docverify.Change) { a.op.MarkMutating() }))
	if len(cfg.Notify.KafkaBrokers) > 0 {
		a.kafka, err = notify.NewKafkaObserver(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic, a.logger)
		if err != nil {
			return nil, err
		}
		a.store.Subscribe(a.kafka)
		a.closers = append(a.closers, func() error {
			flushCtx, cancel := context.WithTimeout(context.Background(), kafkaFlushTimeout)
			defer cancel()
			return a.kafka.Close(flushCtx)
		})
	}

	a.verifier = docverify.NewVerifier(a.ledger, a.store, a.logger, opts.Clock).WithRecorder(a.metrics)
	a.issuer = docverify.NewIssuer(a.ledger, a.store, a.logger)

	a.encryptor, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	vaults, err := vault.NewVaultsFromConfig(ctx, cfg.Vaults)
	if err != nil {
		return nil, fmt.Errorf("creating vaults: %w", err)
	}
	if len(vaults) > 0 {
		a.snapshots, err = docverify.NewSnapshotService(a.store, vaults, a.encryptor, cfg.InstanceID, a.logger)
		if err != nil {
			return nil, err
		}
	}

	a.logger.Debug("operation started", "operation", operation, "records", cfg.Records.Type, "ledger", cfg.Ledger.Type, "vaults", len(vaults))
	return a, nil
}

// account returns the configured ledger account, deriving one from the
// instance ID when none is set.
func (a *DocApp) account() string {
	if a.cfg.Ledger.Account != "" {
		return a.cfg.Ledger.Account
	}
	return ledger.NewAccountAddress(a.cfg.InstanceID)
}

// Operation returns the operation this app was created for.
func (a *DocApp) Operation() *Operation { return a.op }

// Config returns the config the app was built from. DeployContract updates
// its contract address; the caller decides whether to persist it.
func (a *DocApp) Config() *config.Config { return a.cfg }

// Account returns the ledger account transactions are sent from.
func (a *DocApp) Account() string { return a.client.Account() }

// Upload reads the file at rawPath and stores it as a pending record.
func (a *DocApp) Upload(ctx context.Context, rawPath string, metadata map[string]any) (docverify.StoreResult, error) {
	content, name, err := readDocument(rawPath)
	if err != nil {
		return docverify.StoreResult{}, a.op.Fail(err)
	}
	a.op.Parameters = name
	res := a.issuer.Upload(ctx, content, name, metadata)
	if !res.OK {
		return res, a.op.Fail(res.Err)
	}
	return res, nil
}

// UploadAll uploads the file at rawPath, or every document in the directory
// at rawPath, with the same metadata. Directories are searched recursively
// when recursive is set. Failed uploads are reported in their StoreResult;
// the error is only set when no document could be located.
func (a *DocApp) UploadAll(ctx context.Context, rawPath string, recursive bool, metadata map[string]any) ([]docverify.StoreResult, error) {
	path, isDir, err := a.finder.Resolve(rawPath)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	paths := []string{path}
	if isDir {
		if paths, err = a.finder.FindDocuments(path, recursive); err != nil {
			return nil, a.op.Fail(err)
		}
	}
	a.op.Parameters = path

	results := make([]docverify.StoreResult, 0, len(paths))
	for _, p := range paths {
		content, name, err := readDocument(p)
		if err != nil {
			a.op.Fail(err)
			results = append(results, docverify.StoreResult{Err: err})
			continue
		}
		res := a.issuer.Upload(ctx, content, name, metadata)
		if !res.OK {
			a.op.Fail(res.Err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Status returns the local record for hash.
func (a *DocApp) Status(ctx context.Context, hash string) docverify.StatusResult {
	return a.store.GetStatus(ctx, hash)
}

// Records returns every local record keyed by hash.
func (a *DocApp) Records(ctx context.Context) map[string]*docverify.DocumentRecord {
	return a.store.GetAll(ctx)
}

// Stats counts local records by status.
func (a *DocApp) Stats(ctx context.Context) docverify.Stats {
	return a.store.Stats(ctx)
}

// MigrateRecords moves records stored under legacy keys to normalized keys.
func (a *DocApp) MigrateRecords(ctx context.Context) (int, error) {
	return a.batch(a.store.Migrate(ctx))
}

// RepairRecords backfills missing fields and drops records that cannot be
// repaired.
func (a *DocApp) RepairRecords(ctx context.Context) (int, error) {
	return a.batch(a.store.Repair(ctx))
}

// CleanupRecords removes local-only records older than maxAge.
func (a *DocApp) CleanupRecords(ctx context.Context, maxAge time.Duration) (int, error) {
	return a.batch(a.store.Cleanup(ctx, a.clock.Now().Add(-maxAge)))
}

// ClearRecords removes every local record.
func (a *DocApp) ClearRecords(ctx context.Context) (int, error) {
	return a.batch(a.store.Clear(ctx))
}

func (a *DocApp) batch(res docverify.BatchResult) (int, error) {
	if !res.OK {
		return 0, a.op.Fail(res.Err)
	}
	return res.Changed, nil
}

// Verify verifies each hash against the ledger.
func (a *DocApp) Verify(ctx context.Context, hashes ...string) []*docverify.VerificationResult {
	if len(hashes) == 1 {
		return []*docverify.VerificationResult{a.verifier.VerifyByHash(ctx, hashes[0])}
	}
	return a.verifier.VerifyMany(ctx, hashes)
}

// VerifyFile hashes the file at rawPath with metadata and verifies the result.
func (a *DocApp) VerifyFile(ctx context.Context, rawPath string, metadata map[string]any) (*docverify.VerificationResult, error) {
	content, name, err := readDocument(rawPath)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	return a.verifier.VerifyByFile(ctx, content, name, metadata), nil
}

// Diagnose reports which hashing variant of the file at rawPath reproduces
// expected.
func (a *DocApp) Diagnose(rawPath string, metadata map[string]any, expected string) (*docverify.DiagnosticReport, error) {
	content, _, err := readDocument(rawPath)
	if err != nil {
		return nil, a.op.Fail(err)
	}
	return a.verifier.Diagnose(content, metadata, expected), nil
}

// DeployContract deploys a new registry administered by the app's account and
// binds the ledger client to it.
func (a *DocApp) DeployContract(ctx context.Context) (string, error) {
	address, tx, err := a.chain.Deploy(ctx, a.Account())
	if err != nil {
		return "", a.op.Fail(fmt.Errorf("deploying contract: %w", err))
	}
	if err := a.ledger.Initialize(ctx, address); err != nil {
		return "", a.op.Fail(err)
	}
	a.cfg.Ledger.ContractAddress = address
	a.logger.Info("contract deployed", "address", address, "tx", tx.ID, "block", tx.Block)
	return address, nil
}

// RegisterInstitution registers the app's account as an issuing institution.
func (a *DocApp) RegisterInstitution(ctx context.Context, name, registrationNumber, contact string) (*docverify.Receipt, error) {
	r, err := a.ledger.RegisterInstitution(ctx, name, registrationNumber, contact)
	return r, a.op.Fail(err)
}

// ApproveInstitution verifies a registered institution. Only the contract
// admin may do this.
func (a *DocApp) ApproveInstitution(ctx context.Context, address string) (*docverify.Receipt, error) {
	r, err := a.ledger.VerifyInstitution(ctx, address)
	return r, a.op.Fail(err)
}

// InstitutionVerified reports whether address is a verified institution.
func (a *DocApp) InstitutionVerified(ctx context.Context, address string) (bool, error) {
	ok, err := a.ledger.IsInstitutionVerified(ctx, address)
	return ok, a.op.Fail(err)
}

// Issue submits the document with hash to the ledger. The request is built
// from the metadata the document was uploaded with; fields set in override
// take precedence.
func (a *DocApp) Issue(ctx context.Context, hash string, override docverify.IssueRequest) (*docverify.Receipt, error) {
	req := override
	if st := a.store.GetStatus(ctx, hash); st.Exists {
		fromRecord, err := docverify.IssueRequestFromRecord(st.Record)
		if err != nil {
			return nil, a.op.Fail(err)
		}
		req = mergeIssueRequest(fromRecord, override)
	}
	r, err := a.issuer.Issue(ctx, hash, req)
	return r, a.op.Fail(err)
}

func mergeIssueRequest(base, override docverify.IssueRequest) docverify.IssueRequest {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&base.DocumentType, override.DocumentType)
	pick(&base.Title, override.Title)
	pick(&base.RecipientName, override.RecipientName)
	pick(&base.RecipientID, override.RecipientID)
	pick(&base.MetadataURI, override.MetadataURI)
	pick(&base.Signature, override.Signature)
	if override.ExpirationDate != nil {
		base.ExpirationDate = override.ExpirationDate
	}
	return base
}

// Confirm records the issuer's confirmation of hash on the ledger.
func (a *DocApp) Confirm(ctx context.Context, hash string) (*docverify.Receipt, error) {
	r, err := a.issuer.Confirm(ctx, hash)
	return r, a.op.Fail(err)
}

// Revoke revokes hash on the ledger.
func (a *DocApp) Revoke(ctx context.Context, hash string) (*docverify.Receipt, error) {
	r, err := a.issuer.Revoke(ctx, hash)
	return r, a.op.Fail(err)
}

// LedgerEvents lists contract events, optionally filtered by name.
func (a *DocApp) LedgerEvents(ctx context.Context, name string) ([]ledger.Event, error) {
	events, err := a.client.Events(ctx, name)
	return events, a.op.Fail(err)
}

// SetupKeys generates the snapshot key pair.
func (a *DocApp) SetupKeys(passphrase string) error {
	return a.op.Fail(a.encryptor.Setup(passphrase))
}

// PushSnapshot seals the local records and uploads them to every vault.
func (a *DocApp) PushSnapshot(ctx context.Context) (int64, error) {
	if a.snapshots == nil {
		return 0, a.op.Fail(errors.New("no vaults configured"))
	}
	v, err := a.snapshots.Push(ctx)
	return v, a.op.Fail(err)
}

// PullSnapshot replaces the local records with the newest snapshot in any
// vault, unlocking the private key with passphrase.
func (a *DocApp) PullSnapshot(ctx context.Context, passphrase string) (*docverify.PullResult, error) {
	if a.snapshots == nil {
		return nil, a.op.Fail(errors.New("no vaults configured"))
	}
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return nil, a.op.Fail(fmt.Errorf("unlocking snapshot key: %w", err))
	}
	res, err := a.snapshots.Pull(ctx, dc)
	return res, a.op.Fail(err)
}

// Close finalizes the operation and closes all resources.
// Operations that changed records push a snapshot first when auto_push is
// enabled, then metrics are exported if a textfile path is configured.
func (a *DocApp) Close(ctx context.Context) error {
	var errs []error

	if a.op.Mutating() && a.op.Status == "success" && a.cfg.Snapshot.AutoPush && a.snapshots != nil {
		if _, err := a.snapshots.Push(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pushing snapshot: %w", err))
		}
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.TextfilePath); err != nil {
		errs = append(errs, fmt.Errorf("writing metrics: %w", err))
	}
	a.logger.Debug("operation finished", "operation", a.op.Name, "status", a.op.Status,
		"duration", a.clock.Now().Sub(a.op.StartedAt).String())
	if err := a.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// release closes storage connections and the log file, last opened first.
func (a *DocApp) release() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
	return errors.Join(errs...)
}

func readDocument(rawPath string) ([]byte, string, error) {
	content, err := os.ReadFile(rawPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading document: %w", err)
	}
	return content, filepath.Base(rawPath), nil
}
