package signer

import (
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/provara/provara/internal/crypto"
	"github.com/provara/provara/pkg/types"
)

// Signer holds one Ed25519 keypair for the lifetime of the instance.
// Private key material never leaves the struct; only the public key is
// exported for verification.
type Signer struct {
	mu    sync.Mutex
	keyID string
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
}

func New() *Signer {
	return &Signer{}
}

// FromPrivateKey wraps an existing key, deriving its key ID.
func FromPrivateKey(priv ed25519.PrivateKey) *Signer {
	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{keyID: crypto.KeyID(pub), priv: priv, pub: pub}
}

// FromKeyFile loads an operator-provided key file (raw, seed, hex or
// base64 encodings).
func FromKeyFile(path string) (*Signer, error) {
	priv, _, err := crypto.LoadEd25519PrivateKey(path)
	if err != nil {
		return nil, err
	}
	return FromPrivateKey(priv), nil
}

// GenerateKeyPair creates the keypair if absent and returns the key ID.
// Calling it again is a no-op returning the existing key ID.
func (s *Signer) GenerateKeyPair() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureKeyLocked(); err != nil {
		return "", err
	}
	return s.keyID, nil
}

func (s *Signer) ensureKeyLocked() error {
	if s.priv != nil {
		return nil
	}
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	s.priv = priv
	s.pub = pub
	s.keyID = crypto.KeyID(pub)
	return nil
}

func (s *Signer) KeyID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyID
}

// PublicKey is a pure read; it returns a copy so callers cannot reach
// the signer's internal state.
func (s *Signer) PublicKey() ed25519.PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pub == nil {
		return nil
	}
	out := make(ed25519.PublicKey, len(s.pub))
	copy(out, s.pub)
	return out
}

// SignDigest signs a SHA-256 digest, generating the keypair on first use.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureKeyLocked(); err != nil {
		return nil, err
	}
	return crypto.SignEd25519(s.priv, digest)
}

// HashContent returns the deterministic content hash of a structured
// payload. Structurally-equal payloads hash identically across runs.
func HashContent(content any) (string, error) {
	canonical, err := crypto.Canonicalize(content)
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}

// SignEvidence computes the content hash and signs the evidence signing
// view. The keypair is generated on first use.
func (s *Signer) SignEvidence(ev types.Evidence, signerID string) (types.SignedEvidence, error) {
	contentHash, err := HashContent(ev.Content)
	if err != nil {
		return types.SignedEvidence{}, err
	}

	canonical, err := crypto.Canonicalize(evidenceSigningView(ev, contentHash))
	if err != nil {
		return types.SignedEvidence{}, err
	}

	sig, err := s.SignDigest(crypto.DigestBytes(canonical))
	if err != nil {
		return types.SignedEvidence{}, err
	}

	signedBy := signerID
	if signedBy == "" {
		signedBy = s.KeyID()
	}

	return types.SignedEvidence{
		Evidence:    ev,
		ContentHash: contentHash,
		Sig:         sig,
		SignedBy:    signedBy,
		SignedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// Verify reports whether signed evidence is intact: the content hash is
// recomputed from the current content (detecting post-signing mutation)
// and the signature is checked against the public key. It returns false
// rather than an error so tamper audits can enumerate failures.
func Verify(signed types.SignedEvidence, publicKey ed25519.PublicKey) bool {
	if publicKey == nil {
		return false
	}

	contentHash, err := HashContent(signed.Content)
	if err != nil || contentHash != signed.ContentHash {
		return false
	}

	canonical, err := crypto.Canonicalize(evidenceSigningView(signed.Evidence, signed.ContentHash))
	if err != nil {
		return false
	}

	ok, err := crypto.VerifyEd25519(publicKey, crypto.DigestBytes(canonical), signed.Sig)
	return err == nil && ok
}

func evidenceSigningView(ev types.Evidence, contentHash string) map[string]any {
	return map[string]any{
		"evidence_id":  ev.EvidenceID,
		"type":         string(ev.Type),
		"source":       ev.Source,
		"project_id":   ev.ProjectID,
		"created_at":   ev.CreatedAt,
		"content_hash": contentHash,
	}
}
