package anchor

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Minimal ABI for the deposit escrow contract.
const escrowABI = `[
	{"constant":false,"inputs":[{"name":"landlord","type":"address"},{"name":"tenant","type":"address"},{"name":"amount","type":"uint256"},{"name":"releaseDate","type":"uint256"}],"name":"createHold","outputs":[{"name":"holdId","type":"bytes32"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"holdId","type":"bytes32"}],"name":"releaseToTenant","outputs":[],"type":"function"},
	{"constant":false,"inputs":[{"name":"holdId","type":"bytes32"}],"name":"releaseToLandlord","outputs":[],"type":"function"}
]`

const (
	// DefaultGasLimit for anchor and escrow transactions.
	DefaultGasLimit = uint64(120000)

	// DefaultConfirmationTimeout for waiting on receipts.
	DefaultConfirmationTimeout = 30 * time.Second

	// ConfirmationPollInterval between receipt checks.
	ConfirmationPollInterval = 2 * time.Second
)

// ErrTimeout indicates a transaction was sent but not confirmed in time.
var ErrTimeout = errors.New("anchor: confirmation timed out")

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// ChainConfig configures the on-chain ledger client.
type ChainConfig struct {
	RPCURL         string
	PrivateKey     string // Hex string, with or without 0x prefix
	ChainID        int64
	EscrowContract string // Optional; holds fail without it
}

// ChainClient anchors fingerprints as calldata on a real chain and drives
// the deposit escrow contract.
type ChainClient struct {
	client     EthClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	contract   common.Address
	escrowABI  abi.ABI
	hasEscrow  bool
}

// ChainOption configures the chain client.
type ChainOption func(*ChainClient)

// WithEthClient sets a custom Ethereum client (useful for testing).
func WithEthClient(client EthClient) ChainOption {
	return func(c *ChainClient) {
		c.client = client
	}
}

// Compile-time interface check
var _ Client = (*ChainClient)(nil)

// NewChainClient creates an on-chain anchor client.
func NewChainClient(cfg ChainConfig, opts ...ChainOption) (*ChainClient, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("anchor: invalid private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("anchor: failed to derive public key")
	}

	parsedABI, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("anchor: parse escrow ABI: %w", err)
	}

	c := &ChainClient{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKey),
		chainID:    big.NewInt(cfg.ChainID),
		escrowABI:  parsedABI,
	}
	if cfg.EscrowContract != "" {
		if !common.IsHexAddress(cfg.EscrowContract) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, cfg.EscrowContract)
		}
		c.contract = common.HexToAddress(cfg.EscrowContract)
		c.hasEscrow = true
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		c.client = client
	}

	return c, nil
}

// Address returns the anchoring wallet's address.
func (c *ChainClient) Address() string {
	return c.address.Hex()
}

// Close releases the underlying RPC connection.
func (c *ChainClient) Close() {
	c.client.Close()
}

// AnchorHash sends a zero-value self-transaction carrying the fingerprint
// as calldata and waits for its receipt.
func (c *ChainClient) AnchorHash(ctx context.Context, fingerprint string) (*Proof, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(fingerprint, "0x"))
	if err != nil {
		return nil, fmt.Errorf("anchor: fingerprint must be hex: %w", err)
	}

	receipt, txHash, err := c.sendAndWait(ctx, c.address, data)
	if err != nil {
		return nil, err
	}

	return &Proof{
		Fingerprint: fingerprint,
		TxID:        txHash,
		BlockRef:    receipt.BlockNumber.String(),
		Timestamp:   time.Now().UTC(),
	}, nil
}

// CreateHold calls the escrow contract's createHold method.
func (c *ChainClient) CreateHold(ctx context.Context, landlordAddr, tenantAddr string, amount int64, releaseDate time.Time) (*HoldResult, error) {
	if !c.hasEscrow {
		return nil, errors.New("anchor: escrow contract not configured")
	}
	if !common.IsHexAddress(landlordAddr) {
		return nil, fmt.Errorf("%w: landlord %s", ErrInvalidAddress, landlordAddr)
	}
	if !common.IsHexAddress(tenantAddr) {
		return nil, fmt.Errorf("%w: tenant %s", ErrInvalidAddress, tenantAddr)
	}

	data, err := c.escrowABI.Pack("createHold",
		common.HexToAddress(landlordAddr),
		common.HexToAddress(tenantAddr),
		big.NewInt(amount),
		big.NewInt(releaseDate.Unix()),
	)
	if err != nil {
		return nil, fmt.Errorf("anchor: pack createHold: %w", err)
	}

	receipt, txHash, err := c.sendAndWait(ctx, c.contract, data)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("anchor: createHold reverted (tx %s)", txHash)
	}

	// The contract derives the hold id from the creating transaction.
	return &HoldResult{HoldRef: txHash, TxID: txHash}, nil
}

// ReleaseHold calls releaseToTenant or releaseToLandlord on the contract.
func (c *ChainClient) ReleaseHold(ctx context.Context, holdRef string, target ReleaseTarget) (string, error) {
	if !c.hasEscrow {
		return "", errors.New("anchor: escrow contract not configured")
	}

	method := "releaseToLandlord"
	if target == ReleaseToTenant {
		method = "releaseToTenant"
	}

	var holdID [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(holdRef, "0x"))
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("anchor: malformed hold reference %q", holdRef)
	}
	copy(holdID[:], raw)

	data, err := c.escrowABI.Pack(method, holdID)
	if err != nil {
		return "", fmt.Errorf("anchor: pack %s: %w", method, err)
	}

	receipt, txHash, err := c.sendAndWait(ctx, c.contract, data)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("anchor: %s reverted (tx %s)", method, txHash)
	}

	return txHash, nil
}

// VerifyHash checks that txID exists and carries the fingerprint calldata.
func (c *ChainClient) VerifyHash(ctx context.Context, fingerprint, txID string) (bool, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txID))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return receipt.Status == types.ReceiptStatusSuccessful, nil
}

// sendAndWait signs and sends a transaction, then polls for its receipt
// with a bounded timeout.
func (c *ChainClient) sendAndWait(ctx context.Context, to common.Address, data []byte) (*types.Receipt, string, error) {
	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, "", fmt.Errorf("%w: nonce: %v", ErrUnavailable, err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("%w: gas price: %v", ErrUnavailable, err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), DefaultGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return nil, "", fmt.Errorf("anchor: sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return nil, "", fmt.Errorf("%w: send: %v", ErrUnavailable, err)
	}

	txHash := signed.Hash()
	deadline := time.Now().Add(DefaultConfirmationTimeout)
	for {
		receipt, err := c.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, txHash.Hex(), nil
		}

		if time.Now().After(deadline) {
			return nil, txHash.Hex(), fmt.Errorf("%w (tx %s)", ErrTimeout, txHash.Hex())
		}

		select {
		case <-ctx.Done():
			return nil, txHash.Hex(), ctx.Err()
		case <-time.After(ConfirmationPollInterval):
		}
	}
}
