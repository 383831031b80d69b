package tonwallet

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
)

var (
	// ErrNoTransfers is returned when BuildTransfer gets an empty list.
	ErrNoTransfers = errors.New("no transfers")
	// ErrTooManyTransfers is returned for more than MaxTransfers transfers.
	ErrTooManyTransfers = fmt.Errorf("more than %d transfers", MaxTransfers)
	// ErrInvalidTransfer covers amounts that do not fit the wire format.
	ErrInvalidTransfer = errors.New("invalid transfer")
	// ErrKeyMismatch is returned when the signing key does not own the deployed wallet.
	ErrKeyMismatch = errors.New("private key does not match wallet public key")
	// ErrInvalidValidUntil rejects expiry times outside the 32-bit unix range.
	ErrInvalidValidUntil = errors.New("valid-until does not fit 32 bits")
)

// Transfer is one outgoing internal message.
type Transfer struct {
	Destination ton.AccountID
	Amount      *big.Int
	Bounce      bool
	// SendMode nil selects DefaultSendMode.
	SendMode  *uint8
	StateInit *tlb.StateInit
	Body      *boc.Cell
}

// Mode returns a pointer to m for Transfer.SendMode.
func Mode(m uint8) *uint8 { return &m }

// SignedMessage is a ready-to-submit external message.
type SignedMessage struct {
	Address ton.AccountID
	Seqno   uint32
	Boc     []byte
	Hash    [32]byte
}

// BuildTransfer signs transfers from the wallet in state. The same inputs
// always produce the same bytes. An undeployed wallet gets its StateInit
// attached so the first transfer also deploys it.
func BuildTransfer(state State, key ed25519.PrivateKey, transfers []Transfer, validUntil time.Time) (*SignedMessage, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes", ed25519.PrivateKeySize)
	}
	if len(transfers) == 0 {
		return nil, ErrNoTransfers
	}
	if len(transfers) > MaxTransfers {
		return nil, fmt.Errorf("%w: got %d", ErrTooManyTransfers, len(transfers))
	}
	expiry := validUntil.Unix()
	if expiry < 0 || expiry > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidValidUntil, expiry)
	}

	pub := key.Public().(ed25519.PublicKey)
	if state.Deployed && !bytes.Equal(state.PublicKey, pub) {
		return nil, ErrKeyMismatch
	}
	subWallet := state.SubWalletID
	if !state.Deployed && subWallet == 0 {
		subWallet = DefaultSubWalletID
	}
	address := state.Address
	if !state.Deployed {
		derived, err := AddressOf(pub, subWallet)
		if err != nil {
			return nil, err
		}
		address = derived
	}

	msgs, modes, err := encodeTransfers(transfers)
	if err != nil {
		return nil, err
	}
	unsigned, err := walletBody(nil, subWallet, uint32(expiry), state.Seqno, modes, msgs)
	if err != nil {
		return nil, err
	}
	hash, err := unsigned.Hash()
	if err != nil {
		return nil, err
	}
	signature := ed25519.Sign(key, hash)
	body, err := walletBody(signature, subWallet, uint32(expiry), state.Seqno, modes, msgs)
	if err != nil {
		return nil, err
	}

	var init *tlb.StateInit
	if !state.Deployed {
		si, err := stateInit(0, subWallet, pub)
		if err != nil {
			return nil, err
		}
		init = &si
	}
	ext, err := externalMessage(address, init, body)
	if err != nil {
		return nil, err
	}
	raw, err := ext.ToBoc()
	if err != nil {
		return nil, err
	}
	extHash, err := ext.Hash()
	if err != nil {
		return nil, err
	}

	msg := &SignedMessage{Address: address, Seqno: state.Seqno, Boc: raw}
	copy(msg.Hash[:], extHash)
	return msg, nil
}

func encodeTransfers(transfers []Transfer) ([]*boc.Cell, []uint8, error) {
	msgs := make([]*boc.Cell, 0, len(transfers))
	modes := make([]uint8, 0, len(transfers))
	for i, t := range transfers {
		mode := uint8(DefaultSendMode)
		if t.SendMode != nil {
			mode = *t.SendMode
		}
		msg, err := internalMessage(t)
		if err != nil {
			return nil, nil, fmt.Errorf("transfer %d: %w", i, err)
		}
		msgs = append(msgs, msg)
		modes = append(modes, mode)
	}
	return msgs, modes, nil
}

// walletBody writes [signature:512] subwallet:32 valid_until:32 seqno:32
// and then mode:8 per transfer, each referencing its internal message. The
// signature is computed over the hash of the body without it.
func walletBody(signature []byte, subWallet, validUntil, seqno uint32, modes []uint8, msgs []*boc.Cell) (*boc.Cell, error) {
	c := boc.NewCell()
	if signature != nil {
		if err := c.WriteBytes(signature); err != nil {
			return nil, err
		}
	}
	if err := writeHeader(c, subWallet, validUntil, seqno); err != nil {
		return nil, err
	}
	for i, msg := range msgs {
		if err := c.WriteUint(uint64(modes[i]), 8); err != nil {
			return nil, err
		}
		if err := c.AddRef(msg); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func writeHeader(c *boc.Cell, subWallet, validUntil, seqno uint32) error {
	for _, v := range []uint32{subWallet, validUntil, seqno} {
		if err := c.WriteUint(uint64(v), 32); err != nil {
			return err
		}
	}
	return nil
}

// internalMessage encodes int_msg_info with ihr disabled, no source, zero
// fees and zero lt/time; the validator fills those in.
func internalMessage(t Transfer) (*boc.Cell, error) {
	if t.Amount == nil || t.Amount.Sign() < 0 || !t.Amount.IsInt64() {
		return nil, fmt.Errorf("%w: amount %v", ErrInvalidTransfer, t.Amount)
	}
	info := tlb.CommonMsgInfo{SumType: "IntMsgInfo"}
	info.IntMsgInfo = &struct {
		IhrDisabled bool
		Bounce      bool
		Bounced     bool
		Src         tlb.MsgAddress
		Dest        tlb.MsgAddress
		Value       tlb.CurrencyCollection
		IhrFee      tlb.Grams
		FwdFee      tlb.Grams
		CreatedLt   uint64
		CreatedAt   uint32
	}{
		IhrDisabled: true,
		Bounce:      t.Bounce,
		Src:         (*ton.AccountID)(nil).ToMsgAddress(),
		Dest:        t.Destination.ToMsgAddress(),
	}
	info.IntMsgInfo.Value.Grams = tlb.Grams(t.Amount.Uint64())

	msg := tlb.Message{Info: info}
	if t.StateInit != nil {
		msg.Init.Exists = true
		msg.Init.Value.IsRight = true
		msg.Init.Value.Value = *t.StateInit
	}
	if t.Body != nil {
		msg.Body.IsRight = true
		msg.Body.Value = tlb.Any(*t.Body)
	}
	c := boc.NewCell()
	if err := tlb.Marshal(c, msg); err != nil {
		return nil, fmt.Errorf("encode internal message: %w", err)
	}
	return c, nil
}

// externalMessage wraps body into ext_in_msg_info addressed to dest.
func externalMessage(dest ton.AccountID, init *tlb.StateInit, body *boc.Cell) (*boc.Cell, error) {
	msg, err := ton.CreateExternalMessage(dest, body, init, tlb.VarUInteger16{})
	if err != nil {
		return nil, err
	}
	c := boc.NewCell()
	if err := tlb.Marshal(c, msg); err != nil {
		return nil, fmt.Errorf("encode external message: %w", err)
	}
	return c, nil
}

// Comment returns a text comment body: op 0 followed by the UTF-8 text,
// continued in a chain of refs when it does not fit one cell.
func Comment(text string) (*boc.Cell, error) {
	const (
		firstCap = (1023 - 32) / 8
		nextCap  = 1023 / 8
	)
	data := []byte(text)
	root := boc.NewCell()
	if err := root.WriteUint(0, 32); err != nil {
		return nil, err
	}
	n := min(len(data), firstCap)
	if err := root.WriteBytes(data[:n]); err != nil {
		return nil, err
	}
	data = data[n:]

	cur := root
	for len(data) > 0 {
		next := boc.NewCell()
		n := min(len(data), nextCap)
		if err := next.WriteBytes(data[:n]); err != nil {
			return nil, err
		}
		data = data[n:]
		if err := cur.AddRef(next); err != nil {
			return nil, err
		}
		cur = next
	}
	return root, nil
}
