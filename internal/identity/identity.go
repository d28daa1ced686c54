// Package identity derives a stable agent identity from the long-lived
// signing credential. The same key always yields the same identity across
// process restarts; the answer-deduplication guarantee depends on this.
package identity

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rotisserie/eris"
)

// Identity is one answering agent's credential and derived identifier.
type Identity struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// FromHexKey parses a hex-encoded secp256k1 private key (with or without a
// 0x prefix) and derives the agent identity from its public key.
func FromHexKey(hexKey string) (*Identity, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, eris.Wrap(err, "identity: parse private key")
	}
	return &Identity{
		Key:     key,
		Address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// String returns the checksummed address form used as the agent identifier
// in answer-record keys.
func (id *Identity) String() string {
	return id.Address.Hex()
}
