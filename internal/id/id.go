// Package id generates short identifiers that are easy to read aloud.
package id

import gonanoid "github.com/matoous/go-nanoid/v2"

// Alphabet leaves out glyphs that are easily confused (0/O, 1/l/I, i).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"

const segment = 4

// Safe returns an id made of two four character segments, e.g. "aB3x-Qr7z".
func Safe() string {
	return gonanoid.MustGenerate(Alphabet, segment) + "-" + gonanoid.MustGenerate(Alphabet, segment)
}

// Prefixed returns prefix + "-" + Safe().
func Prefixed(prefix string) string {
	return prefix + "-" + Safe()
}
