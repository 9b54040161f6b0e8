package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainAst separates node hashes from any other content hash.
// Version suffix enables future algorithm migration.
const DomainAst = "quarry/ast/v1"

// Hash is the structural hash of a node.
type Hash [sha256.Size]byte

// IsZero reports whether the hash was never computed.
func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Short returns the first 12 hex digits, for logs.
func (h Hash) Short() string { return h.String()[:12] }

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// computeHash hashes the canonical encoding of a node. Children contribute
// their own memoized hashes, so construction stays linear in tree size.
func computeHash(a Ast) Hash {
	var e encoder
	e.encode(a)
	return hashWithDomain(DomainAst, e.bytes())
}

// HashOf returns the structural hash of a node. The zero Hash is returned for
// nil. Nodes built without a constructor are hashed on every call; the result
// is never stored so shared trees stay read-only.
func HashOf(a Ast) Hash {
	if a == nil {
		return Hash{}
	}
	if h := a.base().hash; !h.IsZero() {
		return h
	}
	return computeHash(a)
}

// Equal reports whether two nodes are structurally equal. Structural types and
// positions do not take part.
func Equal(a, b Ast) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return HashOf(a) == HashOf(b)
}

// EqualAll compares two node lists element-wise.
func EqualAll(a, b []Ast) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
