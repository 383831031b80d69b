// Package tonwallet builds and signs external messages for the TON wallet v3
// contract. It never talks to the network: chain state comes in as
// AccountState and signed messages go out as BoC bytes.
package tonwallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
)

const (
	// DefaultSubWalletID is the sub-wallet id of the first wallet on workchain 0.
	DefaultSubWalletID uint32 = 698983191
	// DefaultSendMode pays transfer fees separately and ignores action errors.
	DefaultSendMode = 3
	// MaxTransfers is the number of internal messages one external message carries.
	MaxTransfers = 4
	// Workchain is the basechain id wallets are deployed to.
	Workchain int32 = 0
)

// codeHex is the wallet v3 revision 2 contract code, a single cell without refs.
const codeHex = "FF0020DD2082014C97BA218201339CBAB19F71B0ED44D0D31FD31F31D70BFFE304E0A4F2608308D71820D31FD31FD31FF82313BBF263ED44D0D31FD31FD3FFD15132BAF2A15144BAF2A204F901541055F910F2A3F8009320D74A96D307D402FB00E8D101A4C8CB1FCB1FCBFFC9ED54"

var codeBytes = mustDecodeHex(codeHex)

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// ErrInvalidPublicKey rejects keys that are not 32 bytes long.
var ErrInvalidPublicKey = errors.New("public key must be 32 bytes")

// Code returns a fresh cell holding the contract code.
func Code() (*boc.Cell, error) {
	c := boc.NewCell()
	if err := c.WriteBytes(codeBytes); err != nil {
		return nil, fmt.Errorf("write code: %w", err)
	}
	return c, nil
}

// Data returns the persistent data cell: seqno:32 subwallet:32 pubkey:256.
func Data(seqno, subWalletID uint32, pub ed25519.PublicKey) (*boc.Cell, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	c := boc.NewCell()
	if err := c.WriteUint(uint64(seqno), 32); err != nil {
		return nil, err
	}
	if err := c.WriteUint(uint64(subWalletID), 32); err != nil {
		return nil, err
	}
	if err := c.WriteBytes(pub); err != nil {
		return nil, err
	}
	return c, nil
}

// stateInit returns the deployment structure {code, data}.
func stateInit(seqno, subWalletID uint32, pub ed25519.PublicKey) (tlb.StateInit, error) {
	code, err := Code()
	if err != nil {
		return tlb.StateInit{}, err
	}
	data, err := Data(seqno, subWalletID, pub)
	if err != nil {
		return tlb.StateInit{}, err
	}
	var si tlb.StateInit
	si.Code.Exists = true
	si.Code.Value.Value = *code
	si.Data.Exists = true
	si.Data.Value.Value = *data
	return si, nil
}

// StateInit returns the deployment cell {code, data}.
func StateInit(seqno, subWalletID uint32, pub ed25519.PublicKey) (*boc.Cell, error) {
	si, err := stateInit(seqno, subWalletID, pub)
	if err != nil {
		return nil, err
	}
	c := boc.NewCell()
	if err := tlb.Marshal(c, si); err != nil {
		return nil, fmt.Errorf("encode state init: %w", err)
	}
	return c, nil
}

// AddressOf returns the account the given sub-wallet of pub deploys to.
func AddressOf(pub ed25519.PublicKey, subWalletID uint32) (ton.AccountID, error) {
	si, err := StateInit(0, subWalletID, pub)
	if err != nil {
		return ton.AccountID{}, err
	}
	hash, err := si.Hash()
	if err != nil {
		return ton.AccountID{}, err
	}
	id := ton.AccountID{Workchain: Workchain}
	copy(id.Address[:], hash)
	return id, nil
}

// DeriveAddress returns the default wallet address of pub.
func DeriveAddress(pub ed25519.PublicKey) (ton.AccountID, error) {
	return AddressOf(pub, DefaultSubWalletID)
}
