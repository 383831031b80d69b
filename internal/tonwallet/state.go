package tonwallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/big"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"
)

// ErrMalformedState is returned when account data is present but cannot be
// decoded as wallet v3 data.
var ErrMalformedState = errors.New("malformed wallet state")

// AccountState is a chain snapshot of one account as reported by a node.
// Data is the BoC of the persistent data cell, empty when the contract is
// not deployed yet.
type AccountState struct {
	Address ton.AccountID
	Balance *big.Int
	Data    []byte
}

// State is the decoded wallet contract state.
type State struct {
	Address     ton.AccountID
	Balance     *big.Int
	Deployed    bool
	Seqno       uint32
	SubWalletID uint32
	PublicKey   ed25519.PublicKey
}

// ReadState decodes seqno, sub-wallet id and public key from the snapshot.
// A snapshot without data is an undeployed wallet at seqno 0 with the
// default sub-wallet id.
func ReadState(acc AccountState) (State, error) {
	st := State{
		Address:     acc.Address,
		Balance:     new(big.Int),
		SubWalletID: DefaultSubWalletID,
	}
	if acc.Balance != nil {
		st.Balance.Set(acc.Balance)
	}
	if len(acc.Data) == 0 {
		return st, nil
	}

	cells, err := boc.DeserializeBoc(acc.Data)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if len(cells) == 0 {
		return State{}, fmt.Errorf("%w: no root cell", ErrMalformedState)
	}
	root := cells[0]
	root.ResetCounters()
	if root.BitsAvailableForRead() < 32+32+256 {
		return State{}, fmt.Errorf("%w: %d data bits", ErrMalformedState, root.BitsAvailableForRead())
	}
	seqno, err := root.ReadUint(32)
	if err != nil {
		return State{}, fmt.Errorf("%w: seqno: %v", ErrMalformedState, err)
	}
	subWallet, err := root.ReadUint(32)
	if err != nil {
		return State{}, fmt.Errorf("%w: sub-wallet id: %v", ErrMalformedState, err)
	}
	pub, err := root.ReadBytes(ed25519.PublicKeySize)
	if err != nil {
		return State{}, fmt.Errorf("%w: public key: %v", ErrMalformedState, err)
	}

	st.Deployed = true
	st.Seqno = uint32(seqno)
	st.SubWalletID = uint32(subWallet)
	st.PublicKey = ed25519.PublicKey(pub)
	return st, nil
}

// EncodeData serializes wallet data the way a node reports it. It is the
// inverse of ReadState for deployed wallets.
func EncodeData(seqno, subWalletID uint32, pub ed25519.PublicKey) ([]byte, error) {
	c, err := Data(seqno, subWalletID, pub)
	if err != nil {
		return nil, err
	}
	return c.ToBoc()
}
