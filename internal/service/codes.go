package service

import (
	"crypto/rand"
	"fmt"
)

// inviteAlphabet leaves out 0, O, 1, I and L.
const inviteAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const inviteCodeLength = 12

// GenerateInviteCode returns a uniformly random code over inviteAlphabet.
func GenerateInviteCode() (string, error) {
	// bytes at or above limit would bias the modulo
	limit := byte(256 - 256%len(inviteAlphabet))
	out := make([]byte, 0, inviteCodeLength)
	buf := make([]byte, inviteCodeLength*2)
	for len(out) < inviteCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, inviteAlphabet[int(b)%len(inviteAlphabet)])
			if len(out) == inviteCodeLength {
				break
			}
		}
	}
	return string(out), nil
}
