package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// backupCodeCharset omits visually ambiguous characters (0/O, 1/l/I).
const backupCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"

const challengeIDSize = 16

// NewChallengeID returns a compact random identifier for transient login
// challenges. base64url without padding keeps it URL-safe.
func NewChallengeID() (string, error) {
	var raw [challengeIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewBackupCode returns a random recovery code of the given length drawn
// from the unambiguous charset. Rejection sampling keeps the draw uniform.
func NewBackupCode(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("invalid backup code length")
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)

	// 220 = largest multiple of len(charset) that fits a byte
	limit := byte(len(backupCodeCharset) * (256 / len(backupCodeCharset)))

	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, backupCodeCharset[int(b)%len(backupCodeCharset)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}
