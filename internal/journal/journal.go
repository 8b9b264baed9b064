// Package journal keeps a local LevelDB record of every staking transaction
// and its latest status.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rccstake/rccstake/internal/amount"
	"github.com/rccstake/rccstake/pkg/types"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const keyPrefix = "tx/"

// Entry is the stored form of a transaction
type Entry struct {
	ID          string         `json:"id"`
	Account     string         `json:"account"`
	Kind        types.TxKind   `json:"kind"`
	Amount      string         `json:"amount,omitempty"`
	Hash        string         `json:"hash,omitempty"`
	Status      types.TxStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Journal is safe for concurrent use
type Journal struct {
	db *leveldb.DB
}

// Open opens or creates the journal at path
func Open(path string) (*Journal, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("could not open journal at %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// OpenInMemory returns a journal that is lost on Close
func OpenInMemory() (*Journal, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close releases the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores the latest state of tx for account. Repeated records of
// the same transaction overwrite each other.
func (j *Journal) Record(account common.Address, tx types.PendingTransaction) error {
	e := Entry{
		ID:          tx.ID,
		Account:     account.Hex(),
		Kind:        tx.Kind,
		Status:      tx.Status,
		Error:       tx.ErrString(),
		SubmittedAt: tx.SubmittedAt,
		UpdatedAt:   tx.UpdatedAt,
	}
	if tx.Amount != nil {
		e.Amount = amount.FromWire(tx.Amount)
	}
	if tx.HasHash() {
		e.Hash = tx.Hash.Hex()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}
	if err := j.db.Put(entryKey(account, tx), data, nil); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	return nil
}

// List returns account's entries newest first. limit <= 0 means all.
func (j *Journal) List(account common.Address, limit int) ([]Entry, error) {
	iter := j.db.NewIterator(util.BytesPrefix(accountPrefix(account)), nil)
	defer iter.Release()

	var entries []Entry
	for ok := iter.Last(); ok; ok = iter.Prev() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("corrupt journal entry %q: %w", iter.Key(), err)
		}
		entries = append(entries, e)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

func accountPrefix(account common.Address) []byte {
	return []byte(keyPrefix + strings.ToLower(account.Hex()) + "/")
}

// entryKey orders entries by submission time within an account.
func entryKey(account common.Address, tx types.PendingTransaction) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", accountPrefix(account), tx.SubmittedAt.UnixNano(), tx.ID))
}
