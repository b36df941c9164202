// Package wallet provides the signing capability the auth handshake needs.
// It treats the wallet as an opaque provider: anything that can report an
// address and sign a message works. The default implementation is a local
// secp256k1 key file.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the wallet-provider capability used during authentication.
type Signer interface {
	// Address returns the checksummed wallet address.
	Address() string
	// SignMessage signs msg with the EIP-191 personal-sign scheme and
	// returns the 65-byte signature hex-encoded with a 0x prefix.
	SignMessage(msg string) (string, error)
	// Connected reports whether the wallet is ready to sign.
	Connected() bool
}

// LocalWallet signs with a secp256k1 private key loaded from a hex key file.
type LocalWallet struct {
	key *ecdsa.PrivateKey
}

// Load reads a hex-encoded private key from path.
func Load(path string) (*LocalWallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet.Load: %w", err)
	}
	raw := strings.TrimSpace(string(data))
	raw = strings.TrimPrefix(raw, "0x")
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("wallet.Load: parse key: %w", err)
	}
	return &LocalWallet{key: key}, nil
}

// Generate creates a new key, writes it to path (0600) and returns the wallet.
func Generate(path string) (*LocalWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("wallet.Generate: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("wallet.Generate: %w", err)
	}
	raw := hexutil.Encode(crypto.FromECDSA(key))
	if err := os.WriteFile(path, []byte(raw+"\n"), 0600); err != nil {
		return nil, fmt.Errorf("wallet.Generate: save key: %w", err)
	}
	return &LocalWallet{key: key}, nil
}

// LoadOrGenerate loads the key at path, creating one on first run.
func LoadOrGenerate(path string) (*LocalWallet, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Generate(path)
	}
	return Load(path)
}

// FromKey wraps an in-memory key. Used by tests.
func FromKey(key *ecdsa.PrivateKey) *LocalWallet {
	return &LocalWallet{key: key}
}

func (w *LocalWallet) Address() string {
	return crypto.PubkeyToAddress(w.key.PublicKey).Hex()
}

func (w *LocalWallet) Connected() bool {
	return w.key != nil
}

// SignMessage signs msg under the "\x19Ethereum Signed Message:\n" prefix and
// shifts the recovery byte to the 27/28 convention wallets emit.
func (w *LocalWallet) SignMessage(msg string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), w.key)
	if err != nil {
		return "", fmt.Errorf("wallet.SignMessage: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// ValidAddress reports whether s is a well-formed hex address.
func ValidAddress(s string) bool {
	return common.IsHexAddress(s)
}
