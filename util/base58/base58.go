package base58

import "math/big"

const alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

var decodeTable [256]int64

func init() {
	for i := range decodeTable {
		decodeTable[i] = -1
	}
	for i, c := range alphabet {
		decodeTable[c] = int64(i)
	}
}

var bigRadix = big.NewInt(58)
var bigZero = big.NewInt(0)

// Encode encodes b into the modified base58 alphabet.
func Encode(b []byte) string {
	x := new(big.Int).SetBytes(b)

	answer := make([]byte, 0, len(b)*136/100)
	mod := new(big.Int)
	for x.Cmp(bigZero) > 0 {
		x.DivMod(x, bigRadix, mod)
		answer = append(answer, alphabet[mod.Int64()])
	}

	for _, i := range b {
		if i != 0 {
			break
		}
		answer = append(answer, alphabet[0])
	}

	reverse(answer)
	return string(answer)
}

// Decode decodes a modified-base58 string back into bytes.
func Decode(s string) []byte {
	answer := big.NewInt(0)
	scratch := new(big.Int)
	for _, c := range s {
		d := decodeTable[byte(c)]
		if d < 0 {
			return []byte{}
		}
		scratch.SetInt64(d)
		answer.Mul(answer, bigRadix)
		answer.Add(answer, scratch)
	}

	decoded := answer.Bytes()
	numZeros := 0
	for numZeros < len(s) && s[numZeros] == alphabet[0] {
		numZeros++
	}

	output := make([]byte, numZeros+len(decoded))
	copy(output[numZeros:], decoded)
	return output
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
