package jwtx

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aussiebroadwan/barchat/pkg/cryptox"
)

// KeyManager owns the signing keys of one chat process and the verifier that
// trusts them.
//
// Keys are ephemeral. After a restart, outstanding access tokens fail with
// ErrUnknownKID, which callers should treat like expiry: the refresh token
// still works and the client needs one refresh.
type KeyManager struct {
	Verifier Verifier
	KeySet   *KeySet

	signers []Signer
}

type KeyManagerOptions struct {
	// Issuer is stamped on and required of every token.
	Issuer string

	// NumKeys defaults to 2, capped at 10.
	NumKeys int

	// Now drives expiry checks, defaults to time.Now.
	Now func() time.Time
}

func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	n := opts.NumKeys
	if n <= 0 {
		n = 2
	}
	n = min(n, 10)

	keyset := NewKeySet()
	signers := make([]Signer, 0, n)
	for i := range n {
		kid, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate key id: %w", err)
		}
		kid = "barchat-" + kid

		pemKey, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate key %d: %w", i+1, err)
		}
		s, err := NewSignerEdDSA(kid, pemKey)
		if err != nil {
			return nil, fmt.Errorf("jwtx: load key %d: %w", i+1, err)
		}
		if err := keyset.Add(kid, s.PublicKey()); err != nil {
			return nil, fmt.Errorf("jwtx: register key %d: %w", i+1, err)
		}
		signers = append(signers, s)
	}

	return &KeyManager{
		Verifier: NewVerifierEdDSA(keyset, VerifyOptions{Issuer: opts.Issuer, Now: opts.Now}),
		KeySet:   keyset,
		signers:  signers,
	}, nil
}

func (km *KeyManager) IsReady() bool { return km.KeySet.IsReady() }

// GetSigner picks one of the signing keys at random.
func (km *KeyManager) GetSigner() Signer {
	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	}
	return km.signers[rand.IntN(len(km.signers))]
}

func (km *KeyManager) NumSigners() int { return len(km.signers) }
