package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"refundledger/native/refund"
	"refundledger/storage"
)

var (
	refundAccountPrefix = []byte("refund/account/")
	refundParamsKey     = []byte("refund/params")
)

// RefundStore persists refund accounts and ledger params on a key-value
// database. Account keys are the keccak256 of the participant under a fixed
// prefix so they can be iterated.
type RefundStore struct {
	db storage.Database
}

// NewRefundStore binds a store to the database.
func NewRefundStore(db storage.Database) *RefundStore {
	return &RefundStore{db: db}
}

type storedAccount struct {
	Participant     [20]byte
	Committed       *big.Int
	StartTime       uint64
	DepositedAt     uint64
	SellerWithdrawn *big.Int
	Settled         bool
	Settlement      uint8
	SettledAt       uint64
	Refunded        *big.Int
}

type storedParams struct {
	Price       *big.Int
	Schedule    []byte
	Outstanding *big.Int
}

func refundAccountKey(participant [20]byte) []byte {
	digest := ethcrypto.Keccak256(participant[:])
	buf := make([]byte, len(refundAccountPrefix)+len(digest))
	copy(buf, refundAccountPrefix)
	copy(buf[len(refundAccountPrefix):], digest)
	return buf
}

// RefundAccountGet loads a participant's account.
func (s *RefundStore) RefundAccountGet(participant [20]byte) (*refund.Account, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("refund store: database not configured")
	}
	data, err := s.db.Get(refundAccountKey(participant))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	acc, err := decodeAccount(data)
	if err != nil {
		return nil, false, fmt.Errorf("refund store: decode account %x: %w", participant, err)
	}
	return acc, true, nil
}

// RefundAccounts walks every stored account.
func (s *RefundStore) RefundAccounts(fn func(*refund.Account) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("refund store: database not configured")
	}
	return s.db.Iterate(refundAccountPrefix, func(key, value []byte) error {
		acc, err := decodeAccount(value)
		if err != nil {
			return fmt.Errorf("refund store: decode account at %x: %w", key, err)
		}
		return fn(acc)
	})
}

// RefundParamsGet loads the global params. ok is false before the first
// commit.
func (s *RefundStore) RefundParamsGet() (*refund.Params, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("refund store: database not configured")
	}
	data, err := s.db.Get(refundParamsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedParams
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, fmt.Errorf("refund store: decode params: %w", err)
	}
	params, err := refund.SanitizeParams(&refund.Params{
		Price:       stored.Price,
		Schedule:    refund.Schedule(stored.Schedule),
		Outstanding: stored.Outstanding,
	})
	if err != nil {
		return nil, false, fmt.Errorf("refund store: stored params: %w", err)
	}
	return params, true, nil
}

// RefundCommit writes params and accounts in one batch.
func (s *RefundStore) RefundCommit(params *refund.Params, accounts []*refund.Account) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("refund store: database not configured")
	}
	batch := storage.NewBatch()
	if params != nil {
		sanitized, err := refund.SanitizeParams(params)
		if err != nil {
			return err
		}
		encoded, err := rlp.EncodeToBytes(&storedParams{
			Price:       sanitized.Price,
			Schedule:    []byte(sanitized.Schedule),
			Outstanding: sanitized.Outstanding,
		})
		if err != nil {
			return err
		}
		batch.Put(refundParamsKey, encoded)
	}
	for _, acc := range accounts {
		sanitized, err := refund.SanitizeAccount(acc)
		if err != nil {
			return err
		}
		encoded, err := rlp.EncodeToBytes(&storedAccount{
			Participant:     sanitized.Participant,
			Committed:       sanitized.Committed,
			StartTime:       uint64(sanitized.StartTime),
			DepositedAt:     uint64(sanitized.DepositedAt),
			SellerWithdrawn: sanitized.SellerWithdrawn,
			Settled:         sanitized.Settled,
			Settlement:      uint8(sanitized.Settlement),
			SettledAt:       uint64(sanitized.SettledAt),
			Refunded:        sanitized.Refunded,
		})
		if err != nil {
			return err
		}
		batch.Put(refundAccountKey(sanitized.Participant), encoded)
	}
	return s.db.Write(batch)
}

func decodeAccount(data []byte) (*refund.Account, error) {
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, err
	}
	return refund.SanitizeAccount(&refund.Account{
		Participant:     stored.Participant,
		Committed:       stored.Committed,
		StartTime:       int64(stored.StartTime),
		DepositedAt:     int64(stored.DepositedAt),
		SellerWithdrawn: stored.SellerWithdrawn,
		Settled:         stored.Settled,
		Settlement:      refund.Settlement(stored.Settlement),
		SettledAt:       int64(stored.SettledAt),
		Refunded:        stored.Refunded,
	})
}
