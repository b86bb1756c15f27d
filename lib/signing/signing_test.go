package signing

import (
	"strings"
	"testing"
)

func TestPrivateKeyRoundTrip(t *testing.T) {
	privateKey, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}

	nsec, err := SerializePrivateKey(privateKey)
	if err != nil {
		t.Fatalf("SerializePrivateKey: %v", err)
	}
	if !strings.HasPrefix(nsec, "nsec") {
		t.Errorf("serialized key %q lacks nsec prefix", nsec)
	}

	restored, publicKey, err := DeserializePrivateKey(nsec)
	if err != nil {
		t.Fatalf("DeserializePrivateKey: %v", err)
	}
	if !restored.Key.Equals(&privateKey.Key) {
		t.Error("round-tripped private key differs")
	}
	if XOnlyPubKeyHex(publicKey) != XOnlyPubKeyHex(privateKey.PubKey()) {
		t.Error("derived public key differs")
	}
}

func TestDeserializePrivateKey_RejectsNonNsec(t *testing.T) {
	privateKey, _ := GeneratePrivateKey()
	npub, err := SerializePublicKey(privateKey.PubKey())
	if err != nil {
		t.Fatalf("SerializePublicKey: %v", err)
	}

	if _, _, err := DeserializePrivateKey(npub); err == nil {
		t.Error("npub must not deserialize as a private key")
	}
}

func TestXOnlyPubKeyHex(t *testing.T) {
	privateKey, _ := GeneratePrivateKey()
	hexKey := XOnlyPubKeyHex(privateKey.PubKey())
	if len(hexKey) != 64 {
		t.Errorf("x-only pubkey hex is %d chars, want 64", len(hexKey))
	}
}
