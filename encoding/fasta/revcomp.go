package fasta

// revCompTable maps a base to its upper-case complement. Everything other
// than A/C/G/T (either case) maps to 'N'.
var revCompTable [256]byte

func init() {
	for i := range revCompTable {
		revCompTable[i] = 'N'
	}
	for _, p := range []struct{ b, c byte }{{'A', 'T'}, {'C', 'G'}, {'G', 'C'}, {'T', 'A'}} {
		revCompTable[p.b] = p.c
		revCompTable[p.b+('a'-'A')] = p.c
	}
}

// ReverseComplement computes the upper-case reverse complement of seq.
// ReverseComplement(ReverseComplement(s)) equals upper-cased s for any s
// consisting of A, C, G, T in either case.
func ReverseComplement(seq string) string {
	n := len(seq)
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[n-1-i] = revCompTable[seq[i]]
	}
	return string(buf)
}
