package server

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const reportIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// reportID builds a "req_<unix-seconds>_<9-char random>" identifier, per
// spec.md §4.7's response assembly rules.
func reportID(timestamp int64) string {
	suffix := make([]byte, 9)
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to a
		// fixed suffix rather than panicking a request handler over it.
		copy(suffix, "000000000")
	} else {
		for i, b := range buf {
			suffix[i] = reportIDAlphabet[int(b)%len(reportIDAlphabet)]
		}
	}
	return fmt.Sprintf("req_%d_%s", timestamp, suffix)
}

// consensusProof derives a 64-hex-char identifier from the settlement's
// distinguishing fields, returning nil when there is nothing to attest to.
func consensusProof(parts ...string) *string {
	h := sha256.New()
	empty := true
	for _, p := range parts {
		if p != "" {
			empty = false
		}
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	if empty {
		return nil
	}
	proof := hex.EncodeToString(h.Sum(nil))
	return &proof
}
