package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"ethtrader/internal/apperr"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrEmptyKey = errors.New("private key is empty")

// Wallet is the simulation identity: `from` of every eth_call and recipient of every swap.
// Only the address leaves this package.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// FromPrivateKey derives the address from a hex secp256k1 key, with or without 0x
func FromPrivateKey(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	if hexKey == "" {
		return nil, ErrEmptyKey
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// the key itself must not end up in the message
		return nil, apperr.New(apperr.KindConfiguration, "invalid private key format")
	}

	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// WatchOnly is a wallet that only carries an address
func WatchOnly(address string) (*Wallet, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return nil, apperr.Newf(apperr.KindInvalidAddress, "invalid wallet address: %s", address)
	}
	return &Wallet{address: common.HexToAddress(address)}, nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

func (w *Wallet) WatchOnly() bool {
	return w.key == nil
}

func (w *Wallet) String() string {
	return fmt.Sprintf("Wallet{address: %s, key: [REDACTED]}", w.address.Hex())
}

func (w *Wallet) GoString() string {
	return w.String()
}
