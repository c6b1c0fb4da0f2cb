package focal

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/bits"

	"golang.org/x/crypto/blake2b"
)

// SimHashThreshold is the maximum Hamming distance at which two signatures
// are considered near-duplicates.
const SimHashThreshold = 3

// Fingerprint identifies document content for change detection (ContentHash)
// and near-duplicate detection (SimHash).
type Fingerprint struct {
	ContentHash string `json:"content_hash"`
	SimHash     uint64 `json:"simhash"`
}

// NewFingerprint computes the fingerprint of a normalized document.
func NewFingerprint(title, h1h2, body string) Fingerprint {
	return Fingerprint{
		ContentHash: ContentHash(title, h1h2, body),
		SimHash:     SimHash64(body),
	}
}

// ContentHash returns the canonical content hash of a document:
// SHA-256 over title, h1h2 and body joined by 0x01 separators.
func ContentHash(title, h1h2, body string) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0x01})
	h.Write([]byte(h1h2))
	h.Write([]byte{0x01})
	h.Write([]byte(body))
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// HashText returns the SHA-256 hash of a single text, used where only the
// extracted page text is fingerprinted.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// SimHash64 computes a 64-bit SimHash over the lowercased alphanumeric
// tokens of body. Each token contributes the bits of its Blake2b-64 digest
// to a 64-wide signed accumulator; bit i of the result is set iff
// accumulator[i] >= 0.
func SimHash64(body string) uint64 {
	var acc [64]int
	for _, tok := range Tokenize(body) {
		h := tokenHash64(tok)
		for i := 0; i < 64; i++ {
			if h&(1<<uint(i)) != 0 {
				acc[i]++
			} else {
				acc[i]--
			}
		}
	}
	var sig uint64
	for i := 0; i < 64; i++ {
		if acc[i] >= 0 {
			sig |= 1 << uint(i)
		}
	}
	return sig
}

// tokenHash64 returns the Blake2b-64 digest of a token as an unsigned
// 64-bit integer.
func tokenHash64(tok string) uint64 {
	h, err := blake2b.New(8, nil)
	if err != nil {
		// Only reachable with an invalid digest size.
		panic(err)
	}
	h.Write([]byte(tok))
	return binary.BigEndian.Uint64(h.Sum(nil))
}

// HammingDistance returns the number of differing bits between two
// signatures.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Ledger maps URLs to content hashes so unchanged documents can be skipped
// on reindex.
type Ledger interface {
	// Get returns the recorded content hash for a URL.
	Get(url string) (hash string, ok bool)

	// Set records the content hash for a URL.
	Set(url, hash string)

	// Save persists the ledger.
	Save() error

	// Len returns the number of recorded URLs.
	Len() int
}

// SimHashIndex is a persistent set of url -> signature entries with
// nearest-by-Hamming lookup.
type SimHashIndex interface {
	// Nearest returns the first URL, in insertion order, whose stored
	// signature is within threshold Hamming distance of sig.
	Nearest(sig uint64, threshold int) (url string, ok bool)

	// Update records the signature for a URL, overwriting any prior entry.
	Update(url string, sig uint64)

	// Save persists the index.
	Save() error

	// Len returns the number of entries.
	Len() int
}
