package reconcile

import "fmt"

// digitAlphabet maps a 5-bit hash-tree digit to the base32 character the
// wire protocol's TENANT-HASH Prefix field uses for it (spec §4.5).
const digitAlphabet = "0123456789abcdefghijklmnopqrstuv"

// EncodeDigit renders one 0-31 digit as its base32 character.
func EncodeDigit(d uint8) byte {
	return digitAlphabet[d&0x1F]
}

// DigitsToPrefix renders a digit path as the string carried in a
// TENANT-HASH packet's Prefix field.
func DigitsToPrefix(digits []uint8) string {
	b := make([]byte, len(digits))
	for i, d := range digits {
		b[i] = EncodeDigit(d)
	}
	return string(b)
}

// PrefixToDigits parses a TENANT-HASH Prefix string back into digits.
func PrefixToDigits(prefix string) ([]uint8, error) {
	digits := make([]uint8, len(prefix))
	for i := 0; i < len(prefix); i++ {
		idx := indexInAlphabet(prefix[i])
		if idx < 0 {
			return nil, fmt.Errorf("reconcile: invalid prefix digit %q", prefix[i])
		}
		digits[i] = uint8(idx)
	}
	return digits, nil
}

func indexInAlphabet(c byte) int {
	for i := 0; i < len(digitAlphabet); i++ {
		if digitAlphabet[i] == c {
			return i
		}
	}
	return -1
}
