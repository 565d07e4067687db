package external

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// HashContentStore is an in-process content store addressing payloads by their SHA-256.
type HashContentStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewHashContentStore() *HashContentStore {
	return &HashContentStore{blobs: make(map[string][]byte)}
}

func (s *HashContentStore) Store(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrRejected)
	}
	sum := sha256.Sum256(payload)
	cid := "bafk" + hex.EncodeToString(sum[:])[:44]
	s.mu.Lock()
	s.blobs[cid] = append([]byte(nil), payload...)
	s.mu.Unlock()
	return cid, nil
}

// Get returns a stored payload.
func (s *HashContentStore) Get(cid string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[cid]
	return b, ok
}

// LocalChain is an in-process ledger of chain transactions keyed by caller reference.
// A repeated reference returns the transaction recorded the first time.
type LocalChain struct {
	mu  sync.Mutex
	txs map[string]string
}

func NewLocalChain() *LocalChain {
	return &LocalChain{txs: make(map[string]string)}
}

func (c *LocalChain) Mint(ctx context.Context, req MintRequest) (string, error) {
	if req.Amount <= 0 {
		return "", fmt.Errorf("%w: mint amount must be positive", ErrRejected)
	}
	return c.record(ctx, "mint", req.Reference)
}

func (c *LocalChain) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	if req.Amount <= 0 {
		return "", fmt.Errorf("%w: transfer amount must be positive", ErrRejected)
	}
	return c.record(ctx, "transfer", req.Reference)
}

func (c *LocalChain) Lookup(ctx context.Context, reference string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.txs[reference]
	return tx, ok, nil
}

func (c *LocalChain) record(ctx context.Context, op, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if reference == "" {
		return "", fmt.Errorf("%w: reference required", ErrRejected)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if tx, ok := c.txs[reference]; ok {
		return tx, nil
	}
	sum := sha256.Sum256([]byte(op + ":" + reference))
	tx := "0x" + hex.EncodeToString(sum[:])
	c.txs[reference] = tx
	return tx, nil
}
