package ledger

import (
	"context"
	"fmt"
	"sync"

	"docverify/internal/docverify"
	"docverify/internal/hashing"
)

// Transaction costs charged per contract method.
const (
	CostDeploy              uint64 = 1_200_000
	CostRegisterInstitution uint64 = 120_000
	CostVerifyInstitution   uint64 = 45_000
	CostIssueDocument       uint64 = 250_000
	CostConfirmVerification uint64 = 50_000
	CostRevokeDocument      uint64 = 40_000
)

// Revert reasons.
const (
	ReasonOnlyAdmin          = "Only admin can verify institutions"
	ReasonAlreadyRegistered  = "Institution already registered"
	ReasonNotRegistered      = "Institution not registered"
	ReasonOnlyVerified       = "Only verified institutions can issue documents"
	ReasonDocumentExists     = "Document already exists"
	ReasonDocumentMissing    = "Document does not exist"
	ReasonOnlyIssuer         = "Only the issuer can modify this document"
	ReasonAlreadyRevoked     = "Document already revoked"
	ReasonExpirationInPast   = "Expiration date must be in the future"
	ReasonEmptyDocumentHash  = "Document hash is required"
	ReasonEmptyName          = "Institution name is required"
)

// Chain executes the document registry contract rules against a StateStore.
// Transactions are applied one at a time.
type Chain struct {
	mu     sync.Mutex
	state  StateStore
	clock  docverify.Clock
	idgen  docverify.IDGenerator
	logger docverify.Logger
}

// NewChain creates a Chain over state.
func NewChain(state StateStore, clock docverify.Clock, idgen docverify.IDGenerator, logger docverify.Logger) *Chain {
	return &Chain{state: state, clock: clock, idgen: idgen, logger: logger}
}

// Deploy creates a new registry contract administered by deployer and returns
// its address.
func (c *Chain) Deploy(ctx context.Context, deployer string) (string, *Transaction, error) {
	admin, err := NormalizeAddress(deployer)
	if err != nil {
		return "", nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	address := contractAddress(admin, c.idgen.New())
	tx := c.newTx(address, admin, "deploy", CostDeploy)
	commit := &Commit{
		Tx:       tx,
		Contract: &Contract{Address: address, Admin: admin, DeployedAt: tx.At},
	}
	if _, err := c.state.Commit(ctx, commit); err != nil {
		return "", nil, fmt.Errorf("deploying contract: %w", err)
	}
	c.logger.Info("contract deployed", "address", address, "admin", admin)
	return address, &commit.Tx, nil
}

// HasCode reports whether a contract is deployed at address.
func (c *Chain) HasCode(ctx context.Context, address string) (bool, error) {
	contract, err := c.state.Contract(ctx, address)
	if err != nil {
		return false, fmt.Errorf("reading contract: %w", err)
	}
	return contract != nil, nil
}

// RegisterInstitution registers sender as an unverified institution.
func (c *Chain) RegisterInstitution(ctx context.Context, contract, sender, name, registrationNumber, contact string) (*Transaction, error) {
	const op = "registerInstitution"

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.contract(ctx, contract); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, docverify.Revert(op, ReasonEmptyName)
	}
	existing, err := c.state.Institution(ctx, contract, sender)
	if err != nil {
		return nil, fmt.Errorf("reading institution: %w", err)
	}
	if existing != nil {
		return nil, docverify.Revert(op, ReasonAlreadyRegistered)
	}

	tx := c.newTx(contract, sender, op, CostRegisterInstitution)
	return c.commit(ctx, &Commit{
		Tx: tx,
		Institution: &Institution{
			Contract:           contract,
			Address:            sender,
			Name:               name,
			RegistrationNumber: registrationNumber,
			Contact:            contact,
			RegisteredAt:       tx.At,
		},
		Events: []Event{{Name: docverify.EventInstitutionRegistered, Subject: sender}},
	})
}

// VerifyInstitution marks institution as verified. Only the contract admin may
// call it.
func (c *Chain) VerifyInstitution(ctx context.Context, contract, sender, institution string) (*Transaction, error) {
	const op = "verifyInstitution"

	c.mu.Lock()
	defer c.mu.Unlock()

	ct, err := c.contract(ctx, contract)
	if err != nil {
		return nil, err
	}
	if sender != ct.Admin {
		return nil, docverify.Revert(op, ReasonOnlyAdmin)
	}
	inst, err := c.state.Institution(ctx, contract, institution)
	if err != nil {
		return nil, fmt.Errorf("reading institution: %w", err)
	}
	if inst == nil {
		return nil, docverify.Revert(op, ReasonNotRegistered)
	}

	inst.Verified = true
	return c.commit(ctx, &Commit{
		Tx:          c.newTx(contract, sender, op, CostVerifyInstitution),
		Institution: inst,
		Events:      []Event{{Name: docverify.EventInstitutionVerified, Subject: institution}},
	})
}

// InstitutionVerified reports whether address is a verified institution.
func (c *Chain) InstitutionVerified(ctx context.Context, contract, address string) (bool, error) {
	if _, err := c.contract(ctx, contract); err != nil {
		return false, err
	}
	inst, err := c.state.Institution(ctx, contract, address)
	if err != nil {
		return false, fmt.Errorf("reading institution: %w", err)
	}
	return inst != nil && inst.Verified, nil
}

// IssueDocument records a new, active, unconfirmed document issued by sender.
func (c *Chain) IssueDocument(ctx context.Context, contract, sender string, req docverify.IssueRequest) (*Transaction, error) {
	const op = "issueDocument"

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.contract(ctx, contract); err != nil {
		return nil, err
	}
	inst, err := c.state.Institution(ctx, contract, sender)
	if err != nil {
		return nil, fmt.Errorf("reading institution: %w", err)
	}
	if inst == nil || !inst.Verified {
		return nil, docverify.Revert(op, ReasonOnlyVerified)
	}

	key := documentKey(req.DocumentHash)
	if key == "" {
		return nil, docverify.Revert(op, ReasonEmptyDocumentHash)
	}
	existing, err := c.state.Document(ctx, contract, key)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	if existing != nil {
		return nil, docverify.Revert(op, ReasonDocumentExists)
	}

	now := c.clock.Now()
	var expiration int64
	if req.ExpirationDate != nil {
		if !req.ExpirationDate.After(now) {
			return nil, docverify.Revert(op, ReasonExpirationInPast)
		}
		expiration = req.ExpirationDate.Unix()
	}

	return c.commit(ctx, &Commit{
		Tx: c.newTx(contract, sender, op, CostIssueDocument),
		Document: &docverify.LedgerRecord{
			DocumentHash:    key,
			Issuer:          sender,
			IssuerName:      inst.Name,
			DocumentType:    req.DocumentType,
			Title:           req.Title,
			RecipientName:   req.RecipientName,
			RecipientID:     req.RecipientID,
			IssuanceDate:    now.Unix(),
			ExpirationDate:  expiration,
			MetadataURI:     req.MetadataURI,
			IsActive:        true,
			IssuerSignature: req.Signature,
		},
		Events: []Event{{Name: docverify.EventDocumentIssued, Subject: key}},
	})
}

// ConfirmVerification is the issuer's explicit confirmation of a document.
func (c *Chain) ConfirmVerification(ctx context.Context, contract, sender, hash string) (*Transaction, error) {
	const op = "confirmVerification"

	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.issuedBy(ctx, op, contract, sender, hash)
	if err != nil {
		return nil, err
	}
	if !doc.IsActive {
		return nil, docverify.Revert(op, ReasonAlreadyRevoked)
	}

	doc.IsVerified = true
	return c.commit(ctx, &Commit{
		Tx:       c.newTx(contract, sender, op, CostConfirmVerification),
		Document: doc,
		Events:   []Event{{Name: docverify.EventDocumentVerified, Subject: doc.DocumentHash}},
	})
}

// RevokeDocument deactivates a document. Revocation is permanent.
func (c *Chain) RevokeDocument(ctx context.Context, contract, sender, hash string) (*Transaction, error) {
	const op = "revokeDocument"

	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.issuedBy(ctx, op, contract, sender, hash)
	if err != nil {
		return nil, err
	}
	if !doc.IsActive {
		return nil, docverify.Revert(op, ReasonAlreadyRevoked)
	}

	doc.IsActive = false
	return c.commit(ctx, &Commit{
		Tx:       c.newTx(contract, sender, op, CostRevokeDocument),
		Document: doc,
		Events:   []Event{{Name: docverify.EventDocumentRevoked, Subject: doc.DocumentHash}},
	})
}

// QueryDocument returns the stored tuple with IsValid computed as active and
// not expired at the current time.
func (c *Chain) QueryDocument(ctx context.Context, contract, hash string) (*docverify.LedgerRecord, error) {
	if _, err := c.contract(ctx, contract); err != nil {
		return nil, err
	}
	key := documentKey(hash)
	doc, err := c.state.Document(ctx, contract, key)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", key, docverify.ErrNotFound)
	}

	doc.IsValid = doc.IsActive && (doc.ExpirationDate == 0 || c.clock.Now().Unix() <= doc.ExpirationDate)
	return doc, nil
}

// Receipt returns the included transaction with id, or nil if it is not
// (yet) included.
func (c *Chain) Receipt(ctx context.Context, id string) (*Transaction, error) {
	return c.state.Transaction(ctx, id)
}

// Events lists the events of contract, optionally filtered by name.
func (c *Chain) Events(ctx context.Context, contract, name string) ([]Event, error) {
	return c.state.Events(ctx, contract, name)
}

func (c *Chain) contract(ctx context.Context, address string) (*Contract, error) {
	ct, err := c.state.Contract(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("reading contract: %w", err)
	}
	if ct == nil {
		return nil, fmt.Errorf("%w: no contract code at %s", docverify.ErrContractUninitialized, address)
	}
	return ct, nil
}

func (c *Chain) issuedBy(ctx context.Context, op, contract, sender, hash string) (*docverify.LedgerRecord, error) {
	if _, err := c.contract(ctx, contract); err != nil {
		return nil, err
	}
	doc, err := c.state.Document(ctx, contract, documentKey(hash))
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	if doc == nil {
		return nil, docverify.Revert(op, ReasonDocumentMissing)
	}
	if doc.Issuer != sender {
		return nil, docverify.Revert(op, ReasonOnlyIssuer)
	}
	return doc, nil
}

func (c *Chain) newTx(contract, from, method string, cost uint64) Transaction {
	return Transaction{
		ID:       hashing.ToLedger(hashing.SHA256Hex([]byte(c.idgen.New()))),
		Contract: contract,
		From:     from,
		Method:   method,
		Cost:     cost,
		At:       c.clock.Now().Unix(),
	}
}

func (c *Chain) commit(ctx context.Context, commit *Commit) (*Transaction, error) {
	block, err := c.state.Commit(ctx, commit)
	if err != nil {
		return nil, fmt.Errorf("committing %s: %w", commit.Tx.Method, err)
	}
	c.logger.Debug("transaction included", "method", commit.Tx.Method, "tx", commit.Tx.ID, "block", block)
	return &commit.Tx, nil
}

// documentKey is the ledger's own encoding of a document hash.
func documentKey(hash string) string {
	n := hashing.Normalize(hash)
	if n == "" {
		return ""
	}
	return hashing.ToLedger(n)
}

