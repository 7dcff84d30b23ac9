package docverify

// VerificationResult is what the Verifier returns for every request. IsValid
// mirrors the ledger's own validity flag; Status, Errors and Warnings are
// layered on top and never contradict it.
type VerificationResult struct {
	Hash                string          `json:"hash"`
	IsValid             bool            `json:"isValid"`
	Status              DocumentStatus  `json:"status"`
	Document            *LedgerDocument `json:"document,omitempty"`
	Errors              []string        `json:"errors"`
	Warnings            []string        `json:"warnings"`
	BlockchainConfirmed bool            `json:"blockchainConfirmed"`
}

// StoreResult reports the outcome of a RecordStore mutation. Store operations
// never return errors directly; a failure sets OK=false and Err.
type StoreResult struct {
	OK     bool
	Hash   string
	Record *DocumentRecord
	Err    error
}

// StatusResult is the answer to RecordStore.GetStatus.
type StatusResult struct {
	Exists bool
	Status RecordStatus
	Record *DocumentRecord
}

func failed(hash string, err error) StoreResult {
	return StoreResult{Hash: hash, Err: err}
}

// BatchResult reports the outcome of a whole-mapping RecordStore operation
// (Migrate, Repair, Cleanup, Clear, Import). Changed counts affected records.
type BatchResult struct {
	OK      bool
	Changed int
	Err     error
}
