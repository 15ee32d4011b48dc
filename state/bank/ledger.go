package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"refundledger/storage"
)

var (
	ErrInsufficientBalance   = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrAmountOverflow        = errors.New("bank: amount exceeds 256 bits")
	ErrNegativeAmount        = errors.New("bank: amount cannot be negative")
	ErrSupplyOverflow        = errors.New("bank: balance overflow")

	balancePrefix   = []byte("bank/balance:")
	allowancePrefix = []byte("bank/allowance:")
	supplyPrefix    = []byte("bank/supply:")
)

// Ledger is an ERC20-style multi-token ledger stored alongside the refund
// state. Balances are 256-bit minor units; every mutation lands in one batch.
type Ledger struct {
	mu sync.Mutex
	db storage.Database
}

// NewLedger binds a ledger to the database.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func normalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("bank: token symbol required")
	}
	return trimmed, nil
}

func balanceKey(symbol string, owner [20]byte) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(symbol)+1+len(owner))
	buf = append(buf, balancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, ':')
	buf = append(buf, owner[:]...)
	return ethcrypto.Keccak256(buf)
}

func allowanceKey(symbol string, owner, spender [20]byte) []byte {
	buf := make([]byte, 0, len(allowancePrefix)+len(symbol)+1+2*len(owner))
	buf = append(buf, allowancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, ':')
	buf = append(buf, owner[:]...)
	buf = append(buf, spender[:]...)
	return ethcrypto.Keccak256(buf)
}

func supplyKey(symbol string) []byte {
	return ethcrypto.Keccak256(append(append([]byte(nil), supplyPrefix...), symbol...))
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return uint256.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return value, nil
}

func (l *Ledger) load(key []byte) (*uint256.Int, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("bank: database not configured")
	}
	data, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(data), nil
}

func putValue(batch *storage.Batch, key []byte, value *uint256.Int) {
	encoded := value.Bytes32()
	batch.Put(key, encoded[:])
}

// BalanceOf returns the owner's balance of the token.
func (l *Ledger) BalanceOf(token string, owner [20]byte) (*big.Int, error) {
	symbol, err := normalizeSymbol(token)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	value, err := l.load(balanceKey(symbol, owner))
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// TotalSupply returns the minted supply of the token.
func (l *Ledger) TotalSupply(token string) (*big.Int, error) {
	symbol, err := normalizeSymbol(token)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	value, err := l.load(supplyKey(symbol))
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// Allowance returns how much spender may move out of owner's balance.
func (l *Ledger) Allowance(token string, owner, spender [20]byte) (*big.Int, error) {
	symbol, err := normalizeSymbol(token)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	value, err := l.load(allowanceKey(symbol, owner, spender))
	if err != nil {
		return nil, err
	}
	return value.ToBig(), nil
}

// Approve sets spender's allowance over owner's balance, replacing any
// previous value.
func (l *Ledger) Approve(token string, owner, spender [20]byte, amount *big.Int) error {
	symbol, err := normalizeSymbol(token)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return fmt.Errorf("bank: database not configured")
	}
	batch := storage.NewBatch()
	putValue(batch, allowanceKey(symbol, owner, spender), value)
	return l.db.Write(batch)
}

// Mint credits new supply to the recipient.
func (l *Ledger) Mint(token string, to [20]byte, amount *big.Int) error {
	symbol, err := normalizeSymbol(token)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	supply, err := l.load(supplyKey(symbol))
	if err != nil {
		return err
	}
	balance, err := l.load(balanceKey(symbol, to))
	if err != nil {
		return err
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(supply, value)
	if overflow {
		return ErrSupplyOverflow
	}
	nextBalance, overflow := new(uint256.Int).AddOverflow(balance, value)
	if overflow {
		return ErrSupplyOverflow
	}
	batch := storage.NewBatch()
	putValue(batch, supplyKey(symbol), nextSupply)
	putValue(batch, balanceKey(symbol, to), nextBalance)
	return l.db.Write(batch)
}

// Transfer moves amount from the sender's own balance.
func (l *Ledger) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	symbol, err := normalizeSymbol(token)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := storage.NewBatch()
	if err := l.stageMove(batch, symbol, from, to, value); err != nil {
		return err
	}
	return l.db.Write(batch)
}

// TransferFrom moves amount out of owner's balance on behalf of spender,
// consuming spender's allowance.
func (l *Ledger) TransferFrom(token string, spender, owner, to [20]byte, amount *big.Int) error {
	symbol, err := normalizeSymbol(token)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := allowanceKey(symbol, owner, spender)
	allowance, err := l.load(key)
	if err != nil {
		return err
	}
	if allowance.Lt(value) {
		return ErrInsufficientAllowance
	}
	batch := storage.NewBatch()
	if err := l.stageMove(batch, symbol, owner, to, value); err != nil {
		return err
	}
	putValue(batch, key, new(uint256.Int).Sub(allowance, value))
	return l.db.Write(batch)
}

func (l *Ledger) stageMove(batch *storage.Batch, symbol string, from, to [20]byte, value *uint256.Int) error {
	if value.IsZero() {
		return nil
	}
	fromKey := balanceKey(symbol, from)
	fromBalance, err := l.load(fromKey)
	if err != nil {
		return err
	}
	if fromBalance.Lt(value) {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toKey := balanceKey(symbol, to)
	toBalance, err := l.load(toKey)
	if err != nil {
		return err
	}
	nextTo, overflow := new(uint256.Int).AddOverflow(toBalance, value)
	if overflow {
		return ErrSupplyOverflow
	}
	putValue(batch, fromKey, new(uint256.Int).Sub(fromBalance, value))
	putValue(batch, toKey, nextTo)
	return nil
}
