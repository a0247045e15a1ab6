// Package qseq holds the pure nucleic-acid transforms used to build motif
// entities: reverse complement, PWM consensus calls and flank padding.
package qseq

import "strings"

var complement = map[byte]byte{
	'A': 'T', 'T': 'A',
	'C': 'G', 'G': 'C',
}

// ReverseComplement upper-cases seq, complements A/C/G/T and reverses the
// result. Bytes outside the alphabet are kept as they are.
func ReverseComplement(seq string) string {
	n := len(seq)
	if n == 0 {
		return ""
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b := seq[n-1-i]
		if 'a' <= b && b <= 'z' {
			b -= 'a' - 'A'
		}
		if c, ok := complement[b]; ok {
			out[i] = c
		} else {
			out[i] = seq[n-1-i]
		}
	}
	return string(out)
}

// NeutralBase flanks padded motifs.
const NeutralBase = "A"

// Pad surrounds motif with n copies of NeutralBase on both sides.
func Pad(motif string, n int) string {
	if n <= 0 {
		return motif
	}
	flank := strings.Repeat(NeutralBase, n)
	return flank + motif + flank
}
