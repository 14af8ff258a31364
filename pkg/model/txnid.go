package model

import (
	"fmt"
	"strings"

	"github.com/packline/revstore/pkg/model/status"
)

// TxnID identifies an open transaction: the revision it is based on and
// a repository-wide counter making concurrent transactions unique.
type TxnID struct {
	Base    RevNum
	Counter int64

	_ struct{}
}

// String renders the identifier in its external ‹base›-‹counter› form
func (id TxnID) String() string {
	return fmt.Sprintf("%d-%d", id.Base, id.Counter)
}

// ParseTxnID parses an external transaction identifier.
//
// Both halves are parsed digit by digit with the value range-checked at
// every step, so identifiers that would wrap around int64 are rejected
// instead of aliasing a valid transaction. Nothing but
// ‹digits›-‹digits› is accepted; parsing never touches the repository.
func ParseTxnID(s string) (TxnID, error) {
	sep := strings.IndexByte(s, '-')
	if sep < 0 {
		return TxnID{}, status.ErrMalformedID.WrapMessage("transaction id %q: missing separator", s)
	}
	base, err := ParseDigits(s[:sep])
	if err != nil {
		return TxnID{}, status.ErrMalformedID.WrapMessage("transaction id %q: %v", s, err)
	}
	counter, err := ParseDigits(s[sep+1:])
	if err != nil {
		return TxnID{}, status.ErrMalformedID.WrapMessage("transaction id %q: %v", s, err)
	}
	return TxnID{Base: RevNum(base), Counter: counter}, nil
}
