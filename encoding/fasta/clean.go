package fasta

// cleanASCIISeqTable capitalizes 'a'/'c'/'g'/'t' and replaces everything
// else with 'N', table-driven the same way the original SIMD
// implementation's scalar fallback worked, minus the assembly.
var cleanASCIISeqTable = buildCleanTable()

func buildCleanTable() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 'N'
	}
	pairs := map[byte]byte{'A': 'A', 'a': 'A', 'C': 'C', 'c': 'C', 'G': 'G', 'g': 'G', 'T': 'T', 't': 'T'}
	for k, v := range pairs {
		t[k] = v
	}
	return t
}

// cleanASCIISeqInplace capitalizes 'a'/'c'/'g'/'t', and replaces everything
// non-ACGT with 'N'.
func cleanASCIISeqInplace(ascii8 []byte) {
	for pos, b := range ascii8 {
		ascii8[pos] = cleanASCIISeqTable[b]
	}
}

// asciiToSeq8Table maps 'A'/'a'->1, 'C'/'c'->2, 'G'/'g'->4, 'T'/'t'->8,
// anything else->15.
var asciiToSeq8Table = buildSeq8Table()

func buildSeq8Table() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 15
	}
	pairs := map[byte]byte{'A': 1, 'a': 1, 'C': 2, 'c': 2, 'G': 4, 'g': 4, 'T': 8, 't': 8}
	for k, v := range pairs {
		t[k] = v
	}
	return t
}

// asciiToSeq8Inplace converts each base to its 4-bit packed encoding,
// treating unrecognised characters as N (15).
func asciiToSeq8Inplace(main []byte) {
	for pos, b := range main {
		main[pos] = asciiToSeq8Table[b]
	}
}
