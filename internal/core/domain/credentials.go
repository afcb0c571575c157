package domain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"golang.org/x/crypto/curve25519"
)

const (
	advSecretLen = 32

	maxRegistrationID = 1 << 14 // registration ids are bounded to 14 bits
	maxPreKeyID       = 1 << 16 // prekey ids are 16 bit tags
)

// KeyPair holds the two halves of an asymmetric key
type KeyPair struct {
	Private []byte `json:"private"`
	Public  []byte `json:"public"`
}

// SignedPreKey is a prekey pair whose public half has been signed with the
// session identity key
type SignedPreKey struct {
	KeyPair
	KeyID     uint32 `json:"keyId"`
	Signature []byte `json:"signature"`
}

// Credentials is the singleton cryptographic identity of a session plus the
// bookkeeping counters the protocol engine maintains around it
type Credentials struct {
	NoiseKey                 KeyPair      `json:"noiseKey"`
	PairingEphemeralKey      KeyPair      `json:"pairingEphemeralKey"`
	SignedIdentityKey        KeyPair      `json:"signedIdentityKey"`
	SignedPreKey             SignedPreKey `json:"signedPreKey"`
	RegistrationID           uint32       `json:"registrationId"`
	AdvSecretKey             string       `json:"advSecretKey"`
	NextPreKeyID             uint32       `json:"nextPreKeyId"`
	FirstUnuploadedPreKeyID  uint32       `json:"firstUnuploadedPreKeyId"`
	ProcessedHistoryMessages uint32       `json:"processedHistoryMessages"`
	Registered               bool         `json:"registered"`
	PairingCode              string       `json:"pairingCode,omitempty"`
}

// NewCredentials synthesizes a fresh session identity: a noise handshake key
// pair, an ephemeral pairing key pair, a long-term signing identity key pair
// and one prekey signed with it, plus a random bounded registration id and a
// base64 32-byte secret. Counters start at zero and the session is not yet
// registered.
func NewCredentials() (*Credentials, error) {
	noise, err := newX25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating noise key: %w", err)
	}
	pairing, err := newX25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating pairing key: %w", err)
	}
	identityPub, identityPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating identity key: %w", err)
	}
	preKey, err := newX25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating prekey: %w", err)
	}
	preKeyID, err := randomUint32(1, maxPreKeyID)
	if err != nil {
		return nil, fmt.Errorf("choosing prekey id: %w", err)
	}
	registrationID, err := randomUint32(0, maxRegistrationID)
	if err != nil {
		return nil, fmt.Errorf("choosing registration id: %w", err)
	}
	secret := make([]byte, advSecretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating account secret: %w", err)
	}

	return &Credentials{
		NoiseKey:            noise,
		PairingEphemeralKey: pairing,
		SignedIdentityKey: KeyPair{
			Private: identityPriv,
			Public:  identityPub,
		},
		SignedPreKey: SignedPreKey{
			KeyPair:   preKey,
			KeyID:     preKeyID,
			Signature: ed25519.Sign(identityPriv, preKey.Public),
		},
		RegistrationID: registrationID,
		AdvSecretKey:   base64.StdEncoding.EncodeToString(secret),
	}, nil
}

// VerifySignedPreKey checks the prekey signature against the identity key
func (c *Credentials) VerifySignedPreKey() bool {
	if len(c.SignedIdentityKey.Public) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(c.SignedIdentityKey.Public), c.SignedPreKey.Public, c.SignedPreKey.Signature)
}

func newX25519KeyPair() (KeyPair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return KeyPair{}, err
	}
	// clamp per RFC 7748
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Private: priv, Public: pub}, nil
}

// randomUint32 returns a uniform random value in [min, max)
func randomUint32(min, max uint32) (uint32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min)))
	if err != nil {
		return 0, err
	}
	return min + uint32(n.Int64()), nil
}

// MarshalCredentials serializes creds for storage
func MarshalCredentials(c *Credentials) (json.RawMessage, error) {
	return json.Marshal(c)
}

// UnmarshalCredentials restores creds from their stored form
func UnmarshalCredentials(raw json.RawMessage) (*Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding credentials: %w", err)
	}
	return &c, nil
}
