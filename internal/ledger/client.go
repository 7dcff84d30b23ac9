package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docverify/internal/docverify"
)

// DefaultPollInterval is how often a Client checks for a transaction receipt.
const DefaultPollInterval = 50 * time.Millisecond

// Client is a docverify.LedgerClient acting as one account against a Chain.
// Every call other than Initialize fails with ErrContractUninitialized until
// Initialize has bound the client to a deployed contract.
type Client struct {
	chain   *Chain
	account string
	logger  docverify.Logger

	pollInterval time.Duration

	mu       sync.RWMutex
	contract string
}

var _ docverify.LedgerClient = (*Client)(nil)

// NewClient creates a client sending transactions from account.
func NewClient(chain *Chain, account string, logger docverify.Logger) (*Client, error) {
	addr, err := NormalizeAddress(account)
	if err != nil {
		return nil, fmt.Errorf("client account: %w", err)
	}
	return &Client{
		chain:        chain,
		account:      addr,
		logger:       logger,
		pollInterval: DefaultPollInterval,
	}, nil
}

// Account returns the checksummed sender address.
func (c *Client) Account() string {
	return c.account
}

// Initialize binds the client to the contract at address.
func (c *Client) Initialize(ctx context.Context, address string) error {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return fmt.Errorf("contract address: %w", err)
	}
	ok, err := c.chain.HasCode(ctx, addr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no contract code at %s", docverify.ErrContractUninitialized, addr)
	}

	c.mu.Lock()
	c.contract = addr
	c.mu.Unlock()

	c.logger.Debug("ledger client initialized", "contract", addr, "account", c.account)
	return nil
}

func (c *Client) boundContract() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.contract == "" {
		return "", fmt.Errorf("%w: call Initialize first", docverify.ErrContractUninitialized)
	}
	return c.contract, nil
}

func (c *Client) RegisterInstitution(ctx context.Context, name, registrationNumber, contact string) (*docverify.Receipt, error) {
	return c.transact(ctx, func(contract string) (*Transaction, error) {
		return c.chain.RegisterInstitution(ctx, contract, c.account, name, registrationNumber, contact)
	})
}

func (c *Client) VerifyInstitution(ctx context.Context, address string) (*docverify.Receipt, error) {
	inst, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return c.transact(ctx, func(contract string) (*Transaction, error) {
		return c.chain.VerifyInstitution(ctx, contract, c.account, inst)
	})
}

func (c *Client) IsInstitutionVerified(ctx context.Context, address string) (bool, error) {
	inst, err := NormalizeAddress(address)
	if err != nil {
		return false, err
	}
	contract, err := c.boundContract()
	if err != nil {
		return false, err
	}
	return c.chain.InstitutionVerified(ctx, contract, inst)
}

func (c *Client) IssueDocument(ctx context.Context, req docverify.IssueRequest) (*docverify.Receipt, error) {
	return c.transact(ctx, func(contract string) (*Transaction, error) {
		return c.chain.IssueDocument(ctx, contract, c.account, req)
	})
}

func (c *Client) ConfirmVerification(ctx context.Context, hash string) (*docverify.Receipt, error) {
	return c.transact(ctx, func(contract string) (*Transaction, error) {
		return c.chain.ConfirmVerification(ctx, contract, c.account, hash)
	})
}

func (c *Client) RevokeDocument(ctx context.Context, hash string) (*docverify.Receipt, error) {
	return c.transact(ctx, func(contract string) (*Transaction, error) {
		return c.chain.RevokeDocument(ctx, contract, c.account, hash)
	})
}

func (c *Client) QueryDocument(ctx context.Context, hash string) (*docverify.LedgerRecord, error) {
	contract, err := c.boundContract()
	if err != nil {
		return nil, err
	}
	return c.chain.QueryDocument(ctx, contract, hash)
}

// Events lists the events of the bound contract, optionally filtered by name.
func (c *Client) Events(ctx context.Context, name string) ([]Event, error) {
	contract, err := c.boundContract()
	if err != nil {
		return nil, err
	}
	return c.chain.Events(ctx, contract, name)
}

// transact submits a transaction and returns only once its receipt is
// observable. Submission cannot be withdrawn; cancelling ctx only stops the
// wait.
func (c *Client) transact(ctx context.Context, submit func(contract string) (*Transaction, error)) (*docverify.Receipt, error) {
	contract, err := c.boundContract()
	if err != nil {
		return nil, err
	}
	tx, err := submit(contract)
	if err != nil {
		return nil, err
	}
	return c.waitForReceipt(ctx, tx.ID)
}

func (c *Client) waitForReceipt(ctx context.Context, id string) (*docverify.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		tx, err := c.chain.Receipt(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reading receipt %s: %w", id, err)
		}
		if tx != nil {
			return &docverify.Receipt{
				Success:        true,
				TransactionID:  tx.ID,
				BlockReference: tx.Block,
				Cost:           tx.Cost,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, &docverify.LedgerError{
				Op:     "waitForReceipt",
				Reason: fmt.Sprintf("transaction %s not observed: %v", id, ctx.Err()),
				Kind:   docverify.ErrTransactionFailure,
			}
		case <-ticker.C:
		}
	}
}
