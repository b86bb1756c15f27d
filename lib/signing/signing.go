package signing

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// DecodeKey decodes a bech32 nsec/npub string into its raw key bytes.
func DecodeKey(serializedKey string) ([]byte, error) {
	_, bytesToBits, err := bech32.Decode(serializedKey)
	if err != nil {
		return nil, err
	}

	keyBytes, err := bech32.ConvertBits(bytesToBits, 5, 8, false)
	if err != nil {
		return nil, err
	}

	return keyBytes, nil
}

func DeserializePrivateKey(serializedKey string) (*secp256k1.PrivateKey, *secp256k1.PublicKey, error) {
	if !strings.HasPrefix(serializedKey, "nsec") {
		return nil, nil, fmt.Errorf("not an nsec key")
	}

	privateKeyBytes, err := DecodeKey(serializedKey)
	if err != nil {
		return nil, nil, err
	}

	privateKey, publicKey := btcec.PrivKeyFromBytes(privateKeyBytes)

	return privateKey, publicKey, nil
}

func GeneratePrivateKey() (*secp256k1.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

func SerializePrivateKey(privateKey *secp256k1.PrivateKey) (string, error) {
	bytesToBits, err := bech32.ConvertBits(privateKey.Serialize(), 8, 5, true)
	if err != nil {
		return "", err
	}

	return bech32.Encode("nsec", bytesToBits)
}

func SerializePublicKey(publicKey *secp256k1.PublicKey) (string, error) {
	bytesToBits, err := bech32.ConvertBits(schnorr.SerializePubKey(publicKey), 8, 5, true)
	if err != nil {
		return "", err
	}

	return bech32.Encode("npub", bytesToBits)
}

// XOnlyPubKeyHex returns the 32-byte x-only public key as lowercase hex,
// the form events and the NIP-11 document carry.
func XOnlyPubKeyHex(publicKey *secp256k1.PublicKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(publicKey))
}
