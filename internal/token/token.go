// Package token generates the short random strings used for ids and QR
// payloads.
package token

import "math/rand/v2"

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Base36 returns n random lowercase base-36 characters.
func Base36(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
