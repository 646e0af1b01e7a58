package types

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	HashLength    = 32
	AddressLength = 20
)

var (
	hashT    = reflect.TypeOf(Hash{})
	addressT = reflect.TypeOf(Address{})
)

// Hash represents the 32 byte Keccak256 hash of arbitrary data.
type Hash [HashLength]byte

func BytesToHash(b []byte) Hash {
	var h Hash
	h.SetBytes(b)
	return h
}

func HexToHash(s string) Hash { return BytesToHash(FromHex(s)) }

func (h Hash) Bytes() []byte { return h[:] }
func (h Hash) Hex() string   { return hexutil.Encode(h[:]) }

// String implements the stringer interface and is used also by the logger.
func (h Hash) String() string {
	return h.Hex()
}

// UnmarshalJSON parses a hash in hex syntax.
func (h *Hash) UnmarshalJSON(input []byte) error {
	return hexutil.UnmarshalFixedJSON(hashT, input, h[:])
}

// MarshalText returns the hex representation of h.
func (h Hash) MarshalText() ([]byte, error) {
	return hexutil.Bytes(h[:]).MarshalText()
}

// Sets the hash to the value of b. If b is larger than len(h), 'b' will be cropped (from the left).
func (h *Hash) SetBytes(b []byte) {
	if len(b) > len(h) {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
}

/////////// Address

type Address [AddressLength]byte

func BytesToAddress(b []byte) Address {
	var a Address
	a.SetBytes(b)
	return a
}

func HexToAddress(s string) Address { return BytesToAddress(FromHex(s)) }

// IsHexAddress verifies whether a string can represent a valid hex-encoded address or not.
func IsHexAddress(s string) bool {
	if hasHexPrefix(s) {
		s = s[2:]
	}
	return len(s) == 2*AddressLength && isHex(s)
}

// ModuleAddress returns the account that holds the funds of a state module.
// Nobody owns its private key, so only the module itself can move them.
func ModuleAddress(name string) Address {
	return BytesToAddress(crypto.Keccak256([]byte("module/" + name))[12:])
}

func (a Address) Bytes() []byte { return a[:] }
func (a Address) Hex() string   { return "0x" + hex.EncodeToString(a[:]) }
func (a Address) IsZero() bool  { return a == Address{} }

// String implements the stringer interface and is used also by the logger.
func (a Address) String() string {
	return a.Hex()
}

// Sets the address to the value of b. If b is larger than len(a) it will be cropped from the left.
func (a *Address) SetBytes(b []byte) {
	if len(b) > len(a) {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
}

// MarshalText returns the hex representation of a.
func (a Address) MarshalText() ([]byte, error) {
	return hexutil.Bytes(a[:]).MarshalText()
}

// UnmarshalText parses an address in hex syntax.
func (a *Address) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("Address", input, a[:])
}

// UnmarshalJSON parses an address in hex syntax.
func (a *Address) UnmarshalJSON(input []byte) error {
	return hexutil.UnmarshalFixedJSON(addressT, input, a[:])
}

func (a Address) Compare(a2 Address) int {
	return bytes.Compare(a.Bytes(), a2.Bytes())
}

/////////// Asset

// AssetID identifies one of the fungible assets tracked by the state.
type AssetID uint8

const (
	AssetBase AssetID = iota
	AssetToken
	AssetOption
)

var assetSymbols = map[AssetID]string{
	AssetBase:   "BASE",
	AssetToken:  "TOKEN",
	AssetOption: "OTOKEN",
}

// Assets lists every known asset in storage order.
func Assets() []AssetID {
	return []AssetID{AssetBase, AssetToken, AssetOption}
}

func (a AssetID) IsValid() bool {
	_, ok := assetSymbols[a]
	return ok
}

func (a AssetID) Symbol() string {
	if s, ok := assetSymbols[a]; ok {
		return s
	}
	return "UNKNOWN"
}

func (a AssetID) String() string {
	return a.Symbol()
}

func (a AssetID) Bytes() []byte {
	return []byte{byte(a)}
}

// AssetBySymbol resolves a case-insensitive symbol.
func AssetBySymbol(symbol string) (AssetID, bool) {
	for _, id := range Assets() {
		if strings.EqualFold(assetSymbols[id], symbol) {
			return id, true
		}
	}
	return 0, false
}

/////////// Rewarder

// RewarderID identifies a reward distributor instance.
type RewarderID uint8

const (
	RewarderTokenStaking RewarderID = iota
	RewarderGridPlacement
)

// Rewarders lists every reward distributor.
func Rewarders() []RewarderID {
	return []RewarderID{RewarderTokenStaking, RewarderGridPlacement}
}

func (r RewarderID) IsValid() bool {
	return r == RewarderTokenStaking || r == RewarderGridPlacement
}

func (r RewarderID) String() string {
	switch r {
	case RewarderTokenStaking:
		return "token"
	case RewarderGridPlacement:
		return "grid"
	}
	return "unknown"
}

// Address is the account holding the undistributed rewards of r.
func (r RewarderID) Address() Address {
	return ModuleAddress("rewarder/" + r.String())
}

// RewarderByName resolves "token" or "grid".
func RewarderByName(name string) (RewarderID, bool) {
	for _, r := range Rewarders() {
		if r.String() == name {
			return r, true
		}
	}
	return 0, false
}

/////////// Grid

type GridID uint32

func (g GridID) String() string {
	return strconv.FormatUint(uint64(g), 10)
}

func (g GridID) Bytes() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(g))
	return b
}

/////////// Helpers

func FromHex(s string) []byte {
	if hasHexPrefix(s) {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	h, _ := hex.DecodeString(s)
	return h
}

func hasHexPrefix(str string) bool {
	return len(str) >= 2 && str[0] == '0' && (str[1] == 'x' || str[1] == 'X')
}

func isHexCharacter(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isHex(str string) bool {
	if len(str)%2 != 0 {
		return false
	}
	for _, c := range []byte(str) {
		if !isHexCharacter(c) {
			return false
		}
	}
	return true
}
