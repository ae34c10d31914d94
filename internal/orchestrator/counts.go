package orchestrator

import (
	"math/big"
	"sort"
	"strings"
)

// FormatCounts rewrites outcome labels from binary strings to decimal
// strings of the same value. Labels of any width are supported; spaces
// separating classical registers are ignored. Labels that are not binary
// are kept verbatim and returned in sorted order. Counts of labels that
// map to the same key are summed.
func FormatCounts(raw map[string]int) (map[string]int, []string) {
	out := make(map[string]int, len(raw))
	var verbatim []string
	for label, n := range raw {
		key, ok := binaryToDecimal(label)
		if !ok {
			key = label
			verbatim = append(verbatim, label)
		}
		out[key] += n
	}
	sort.Strings(verbatim)
	return out, verbatim
}

func binaryToDecimal(label string) (string, bool) {
	bits := strings.ReplaceAll(label, " ", "")
	if bits == "" || strings.Trim(bits, "01") != "" {
		return "", false
	}
	v, ok := new(big.Int).SetString(bits, 2)
	if !ok {
		return "", false
	}
	return v.String(), true
}
