package indexer

import "strings"

// progressTokens maps a case-insensitive substring found in a subprocess
// output line to the progress value it represents. This table is the
// contract with the external indexer binary; order matters only in that the
// first match wins; the tokens themselves do not overlap in practice.
var progressTokens = []struct {
	token string
	value int
}{
	{"chunk", 20},
	{"split", 20},
	{"entity", 40},
	{"extract", 40},
	{"relationship", 60},
	{"graph", 60},
	{"community", 80},
	{"cluster", 80},
	{"embed", 90},
	{"vector", 90},
}

// progressFromLine returns the progress value implied by line, and whether
// any recognized token was found. Matching is case-insensitive substring
// match, exactly mirroring the external indexer's own informal log contract.
func progressFromLine(line string) (value int, ok bool) {
	lower := strings.ToLower(line)
	for _, t := range progressTokens {
		if strings.Contains(lower, t.token) {
			return t.value, true
		}
	}
	return 0, false
}
