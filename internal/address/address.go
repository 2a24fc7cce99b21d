// Package address implements the Ekehi address format: "EKH" + 48 hex
// chars, decoding to a 20-byte payload plus a 4-byte checksum equal to the
// leading 4 bytes of SHA-256(payload).
package address

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const (
	// Prefix is the fixed literal prepended to every encoded address.
	Prefix = "EKH"

	// PayloadLen is the number of raw bytes an address payload carries.
	PayloadLen = 20

	// ChecksumLen is the number of checksum bytes appended to the payload.
	ChecksumLen = 4

	// EncodedLen is the total character length of a valid address string:
	// len(Prefix) + hex(PayloadLen+ChecksumLen)*2.
	EncodedLen = len(Prefix) + (PayloadLen+ChecksumLen)*2

	// Coinbase is the reserved sender token for mining-reward transactions.
	Coinbase = "00"
)

// Hash returns SHA-256(data).
func Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HashHex returns the hex-encoded SHA-256 of data.
func HashHex(data []byte) string {
	h := Hash(data)
	return hex.EncodeToString(h[:])
}

func checksum(payload []byte) []byte {
	h := sha256.Sum256(payload)
	return h[:ChecksumLen]
}

// Encode builds an address string from a 20-byte payload.
func Encode(payload []byte) (string, bool) {
	if len(payload) != PayloadLen {
		return "", false
	}
	cs := checksum(payload)
	body := make([]byte, 0, PayloadLen+ChecksumLen)
	body = append(body, payload...)
	body = append(body, cs...)
	return Prefix + hex.EncodeToString(body), true
}

// Validate reports whether s is a well-formed address, the literal coinbase
// token "00", or one of the node's reserved system sender tokens.
func Validate(s string, reservedSenders ...string) bool {
	if s == Coinbase {
		return true
	}
	for _, r := range reservedSenders {
		if s == r {
			return true
		}
	}
	return validEncoded(s)
}

// validEncoded validates only the EKH+hex+checksum shape, without regard to
// reserved tokens.
func validEncoded(s string) bool {
	if len(s) != EncodedLen {
		return false
	}
	if s[:len(Prefix)] != Prefix {
		return false
	}
	raw, err := hex.DecodeString(s[len(Prefix):])
	if err != nil || len(raw) != PayloadLen+ChecksumLen {
		return false
	}
	payload := raw[:PayloadLen]
	wantCS := raw[PayloadLen:]
	gotCS := checksum(payload)
	return subtle.ConstantTimeCompare(wantCS, gotCS) == 1
}

// IsStandard reports whether s is a well-formed EKH address (as opposed to
// a reserved token like "00" or "FAUCET").
func IsStandard(s string) bool {
	return validEncoded(s)
}

// DeriveFromPrivateKey derives a surrogate address from a 32-byte key: no
// signature scheme is in play here, so SHA-256(key) stands in for "public"
// material, and its first 20 bytes become the payload.
func DeriveFromPrivateKey(key []byte) (string, bool) {
	h := sha256.Sum256(key)
	return Encode(h[:PayloadLen])
}
