// Package signatures converts between the compact 65-byte signature wire form
// used by multi-signature contracts ({bytes32 r}{bytes32 s}{uint8 v}) and its
// split representation, and recovers signer addresses from signed hashes.
package signatures

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Length is the wire size of a single signature.
const Length = 65

// ErrMalformedSignature means the signature bytes are too short for the
// requested position.
var ErrMalformedSignature = errors.New("malformed signature")

// Signature is one split {v, r, s} authorization.
type Signature struct {
	V uint8
	R *big.Int
	S *big.Int
}

// Split extracts the pos-th 65-byte signature from a concatenated blob.
func Split(sigs []byte, pos int) (Signature, error) {
	offset := Length * pos
	if pos < 0 || len(sigs) < offset+Length {
		return Signature{}, fmt.Errorf("%w: need %d bytes for position %d, have %d",
			ErrMalformedSignature, offset+Length, pos, len(sigs))
	}
	return Signature{
		V: sigs[offset+64],
		R: new(big.Int).SetBytes(sigs[offset : offset+32]),
		S: new(big.Int).SetBytes(sigs[offset+32 : offset+64]),
	}, nil
}

// Bytes encodes the signature as r (32 bytes big-endian) || s (32 bytes
// big-endian) || v (1 byte).
func (s Signature) Bytes() []byte {
	out := make([]byte, Length)
	s.R.FillBytes(out[:32])
	s.S.FillBytes(out[32:64])
	out[64] = s.V
	return out
}

// Join concatenates signatures in input order. Multi-signature contracts
// check owner signatures positionally, so order is significant.
func Join(sigs []Signature) []byte {
	out := make([]byte, 0, Length*len(sigs))
	for _, sig := range sigs {
		out = append(out, sig.Bytes()...)
	}
	return out
}

// RecoverSigner returns the checksummed address that produced the signature
// over hash. V is accepted either as a raw recovery id (0/1) or in the
// Ethereum convention (27/28).
func RecoverSigner(hash []byte, sig Signature) (common.Address, error) {
	v := sig.V
	if v >= 27 {
		v -= 27
	}

	compact := make([]byte, Length)
	sig.R.FillBytes(compact[:32])
	sig.S.FillBytes(compact[32:64])
	compact[64] = v

	pubkey, err := crypto.Ecrecover(hash, compact)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	// Uncompressed pubkey: 0x04 prefix then 64 bytes. The address is the last
	// 20 bytes of the keccak256 of those 64 bytes.
	return common.BytesToAddress(crypto.Keccak256(pubkey[1:])[12:]), nil
}
