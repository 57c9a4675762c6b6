package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 account address.
type AddressPrefix string

// Prefix is the prefix used for every account on the sale network.
const Prefix AddressPrefix = "pre"

// Address represents a 20-byte account address with a bech32 prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps the raw 20-byte account identifier.
func NewAddress(b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: Prefix, bytes: append([]byte(nil), b...)}
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Raw returns the address as a fixed 20-byte array, the form the engines use.
func (a Address) Raw() [20]byte {
	var out [20]byte
	copy(out[:], a.bytes)
	return out
}

// IsZero reports whether the address is the all-zero sentinel.
func (a Address) IsZero() bool {
	for _, b := range a.bytes {
		if b != 0 {
			return false
		}
	}
	return true
}

// DecodeAddress parses a bech32 account address.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != string(Prefix) {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 payload: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address payload must be 20 bytes (got %d)", len(conv))
	}
	return NewAddress(conv), nil
}

// GeneratePrivateKey creates a fresh secp256k1 key for account creation.
func GeneratePrivateKey() (*ecdsa.PrivateKey, error) {
	return ethcrypto.GenerateKey()
}

// AddressFromPub derives the account address for a secp256k1 public key.
func AddressFromPub(pub *ecdsa.PublicKey) Address {
	eth := ethcrypto.PubkeyToAddress(*pub)
	return NewAddress(eth.Bytes())
}

// DeriveModuleAccount deterministically derives the address a module-owned
// account lives at. Module accounts hold funds but have no signing key.
func DeriveModuleAccount(module string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("presale/module/" + module))
	var out [20]byte
	copy(out[:], digest[12:])
	return out
}
