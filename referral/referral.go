// Package referral records which referrer address should be attributed to
// deposits made from this installation. The attribution is captured from
// entry URLs and persisted locally; it never touches the chain, and the
// contract itself decides what a zero referrer means.
package referral

import (
	"fmt"
	"net/url"
	"os"
	"regexp"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// RefParam and TokenParam are the query parameters consumed from
	// entry URLs.
	RefParam   = "ref"
	TokenParam = "token"
)

var (
	referrerKey    = []byte("hodlock/referrer")
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// EntryParams are the recognized parameters carried by an entry URL.
type EntryParams struct {
	// Referrer is the zero address when the URL carries no valid ref.
	Referrer common.Address
	// Token is the pre-selected token symbol or address, verbatim.
	Token string
}

// ParseEntry extracts the recognized parameters from an entry URL.
// A malformed ref value is treated as absent, never as an error.
func ParseEntry(rawURL string) EntryParams {
	var params EntryParams
	u, err := url.Parse(rawURL)
	if err != nil {
		return params
	}
	query := u.Query()
	if ref := query.Get(RefParam); addressPattern.MatchString(ref) {
		params.Referrer = common.HexToAddress(ref)
	}
	params.Token = query.Get(TokenParam)
	return params
}

// Store persists the referrer attribution across restarts.
type Store struct {
	db *badger.DB
}

// Open initializes the store under the given directory, creating it if
// necessary.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create referral store directory: %w", err)
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open referral store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CaptureFromEntry applies the attribution rule for one entry: a valid ref
// parameter overwrites any previously persisted referrer; an absent or
// malformed one leaves the persisted value untouched.
func (s *Store) CaptureFromEntry(rawURL string) error {
	params := ParseEntry(rawURL)
	if params.Referrer == (common.Address{}) {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(referrerKey, []byte(params.Referrer.Hex()))
	})
}

// Referrer returns the persisted attribution, or the zero address sentinel
// when none was ever captured. The contract interprets the sentinel as "no
// referrer".
func (s *Store) Referrer() common.Address {
	var stored []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(referrerKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			stored = append(stored, val...)
			return nil
		})
	})
	if err != nil {
		// Includes badger.ErrKeyNotFound: nothing was ever captured.
		return common.Address{}
	}
	if !addressPattern.MatchString(string(stored)) {
		return common.Address{}
	}
	return common.HexToAddress(string(stored))
}
