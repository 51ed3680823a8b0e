package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns n random bytes as upper-case hex.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// SessionID names one scanning shift in logs and broadcasts.
func SessionID(gateID string) string {
	code, err := GenerateCode(4)
	if err != nil {
		code = "00000000"
	}
	if gateID == "" {
		return code
	}
	return gateID + "-" + code
}
