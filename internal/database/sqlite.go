package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docverify/internal/database/migrations"
	"docverify/internal/docverify"
	"docverify/internal/ledger"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteState implements ledger.StateStore on SQLite.
type SQLiteState struct {
	db   *sql.DB
	path string
}

var _ ledger.StateStore = (*SQLiteState)(nil)

// NewSQLiteState opens the database at path, migrating it to the latest
// schema. path can be a file path or ":memory:".
func NewSQLiteState(path string) (*SQLiteState, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteState{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per connection, and block
	// numbering relies on serialized commits.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// Path returns the database path.
func (s *SQLiteState) Path() string { return s.path }

func (s *SQLiteState) Contract(ctx context.Context, address string) (*ledger.Contract, error) {
	var c ledger.Contract
	err := s.db.QueryRowContext(ctx,
		`SELECT address, admin, deployed_at FROM contracts WHERE address = ?`, address,
	).Scan(&c.Address, &c.Admin, &c.DeployedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding contract: %w", err)
	}
	return &c, nil
}

func (s *SQLiteState) Institution(ctx context.Context, contract, address string) (*ledger.Institution, error) {
	var inst ledger.Institution
	err := s.db.QueryRowContext(ctx, `
		SELECT contract, address, name, registration_number, contact, verified, registered_at
		FROM institutions WHERE contract = ? AND address = ?`, contract, address,
	).Scan(&inst.Contract, &inst.Address, &inst.Name, &inst.RegistrationNumber, &inst.Contact, &inst.Verified, &inst.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding institution: %w", err)
	}
	return &inst, nil
}

func (s *SQLiteState) Document(ctx context.Context, contract, hash string) (*docverify.LedgerRecord, error) {
	var d docverify.LedgerRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT document_hash, issuer, issuer_name, document_type, title, recipient_name, recipient_id,
			issuance_date, expiration_date, metadata_uri, is_active, is_verified, issuer_signature
		FROM documents WHERE contract = ? AND document_hash = ?`, contract, hash,
	).Scan(&d.DocumentHash, &d.Issuer, &d.IssuerName, &d.DocumentType, &d.Title, &d.RecipientName, &d.RecipientID,
		&d.IssuanceDate, &d.ExpirationDate, &d.MetadataURI, &d.IsActive, &d.IsVerified, &d.IssuerSignature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding document: %w", err)
	}
	return &d, nil
}

func (s *SQLiteState) Transaction(ctx context.Context, id string) (*ledger.Transaction, error) {
	var tx ledger.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, contract, block, sender, method, cost, created_at
		FROM transactions WHERE id = ?`, id,
	).Scan(&tx.ID, &tx.Contract, &tx.Block, &tx.From, &tx.Method, &tx.Cost, &tx.At)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding transaction: %w", err)
	}
	return &tx, nil
}

func (s *SQLiteState) Events(ctx context.Context, contract, name string) ([]ledger.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block, tx_id, contract, name, subject FROM events
		WHERE contract = ? AND (? = '' OR name = ?)
		ORDER BY block, id`, contract, name, name)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var e ledger.Event
		if err := rows.Scan(&e.Block, &e.TxID, &e.Contract, &e.Name, &e.Subject); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Commit applies c in a single SQL transaction.
func (s *SQLiteState) Commit(ctx context.Context, c *ledger.Commit) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var last uint64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(block), 0) FROM transactions`).Scan(&last); err != nil {
		return 0, fmt.Errorf("reading last block: %w", err)
	}
	block := last + 1

	if ct := c.Contract; ct != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contracts (address, admin, deployed_at) VALUES (?, ?, ?)
			ON CONFLICT(address) DO UPDATE SET admin = excluded.admin`,
			ct.Address, ct.Admin, ct.DeployedAt); err != nil {
			return 0, fmt.Errorf("storing contract: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, contract, block, sender, method, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Tx.ID, c.Tx.Contract, block, c.Tx.From, c.Tx.Method, c.Tx.Cost, c.Tx.At); err != nil {
		return 0, fmt.Errorf("storing transaction: %w", err)
	}

	if inst := c.Institution; inst != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO institutions (contract, address, name, registration_number, contact, verified, registered_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(contract, address) DO UPDATE SET
				name = excluded.name,
				registration_number = excluded.registration_number,
				contact = excluded.contact,
				verified = excluded.verified`,
			inst.Contract, inst.Address, inst.Name, inst.RegistrationNumber, inst.Contact, inst.Verified, inst.RegisteredAt); err != nil {
			return 0, fmt.Errorf("storing institution: %w", err)
		}
	}

	if d := c.Document; d != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (contract, document_hash, issuer, issuer_name, document_type, title,
				recipient_name, recipient_id, issuance_date, expiration_date, metadata_uri,
				is_active, is_verified, issuer_signature)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(contract, document_hash) DO UPDATE SET
				is_active = excluded.is_active,
				is_verified = excluded.is_verified`,
			c.Tx.Contract, d.DocumentHash, d.Issuer, d.IssuerName, d.DocumentType, d.Title,
			d.RecipientName, d.RecipientID, d.IssuanceDate, d.ExpirationDate, d.MetadataURI,
			d.IsActive, d.IsVerified, d.IssuerSignature); err != nil {
			return 0, fmt.Errorf("storing document: %w", err)
		}
	}

	for _, e := range c.Events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (block, tx_id, contract, name, subject) VALUES (?, ?, ?, ?, ?)`,
			block, c.Tx.ID, c.Tx.Contract, e.Name, e.Subject); err != nil {
			return 0, fmt.Errorf("storing event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	c.Tx.Block = block
	return block, nil
}

// Close closes the database connection.
func (s *SQLiteState) Close() error {
	return s.db.Close()
}
