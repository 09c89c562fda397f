package model

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address errors.
var (
	// ErrEmptyAddress is returned when the address is empty.
	ErrEmptyAddress = errors.New("address cannot be empty")
	// ErrInvalidAddress is returned when the address is not 20 bytes of 0x-prefixed hex.
	ErrInvalidAddress = errors.New("invalid address format")
	// ErrBadChecksum is returned when a mixed-case address fails EIP-55 verification.
	ErrBadChecksum = errors.New("address checksum mismatch")
)

// AddressLength is the width of an account identifier in bytes.
const AddressLength = common.AddressLength

// Address is a fixed-width on-chain account identifier.
// Two addresses are equal when their raw bytes are equal, so Address is
// usable as a map key and as the vertex key of the transfer graph.
type Address common.Address

// ZeroAddress is the all-zero address. Contract creations without a
// resolvable target are attributed to it.
var ZeroAddress Address

// ParseAddress parses a 0x-prefixed hex address.
//
// All-lowercase and all-uppercase input is accepted as is. Mixed-case input
// is treated as an EIP-55 checksummed address and must verify, which catches
// the typos a copy-pasted root address tends to carry.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, ErrEmptyAddress
	}
	if !common.IsHexAddress(s) || !has0xPrefix(s) {
		return Address{}, ErrInvalidAddress
	}

	mixed, err := common.NewMixedcaseAddressFromString("0x" + s[2:])
	if err != nil {
		return Address{}, ErrInvalidAddress
	}
	if isMixedCase(s[2:]) && !mixed.ValidChecksum() {
		return Address{}, ErrBadChecksum
	}

	return Address(mixed.Address()), nil
}

// MustParseAddress is like ParseAddress but panics on error.
// It is intended for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the lowercase 0x-prefixed hex form used in the event stream.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Checksum returns the EIP-55 mixed-case form of the address.
func (a Address) Checksum() string {
	return common.Address(a).Hex()
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarshalText encodes the address in lowercase hex.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a hex address. Checksums are verified for mixed case.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func isMixedCase(s string) bool {
	return strings.ToLower(s) != s && strings.ToUpper(s) != s
}
