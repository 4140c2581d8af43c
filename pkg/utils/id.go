package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// MeetingCodeAlphabet leaves out 0/O and 1/I so codes survive being read aloud.
const MeetingCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const MeetingCodeLength = 8

// GenerateMeetingCode returns a random code of the given length drawn from
// MeetingCodeAlphabet.
func GenerateMeetingCode(length int) (string, error) {
	if length <= 0 {
		length = MeetingCodeLength
	}
	max := big.NewInt(int64(len(MeetingCodeAlphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random: %w", err)
		}
		b[i] = MeetingCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// GenerateConnectionID generates an opaque id for a transport session
func GenerateConnectionID() string {
	return uuid.NewString()
}

// GenerateRecordingID generates a recording session id
func GenerateRecordingID() string {
	return "rec_" + uuid.NewString()
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
