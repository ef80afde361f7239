package room

import (
	"crypto/rand"
	"strings"
)

// CodeAlphabet leaves out I, O, 0 and 1.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const CodeLength = 6

// GenerateCode draws CodeLength symbols uniformly from CodeAlphabet. The
// alphabet has 32 symbols, so masking a random byte keeps the draw uniform.
func GenerateCode() (string, error) {
	b := make([]byte, CodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = CodeAlphabet[b[i]&31]
	}
	return string(b), nil
}

func NormalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// Path is the store path of a room.
func Path(code string) string { return pathPrefix + NormalizeCode(code) }

const pathPrefix = "rooms/"
