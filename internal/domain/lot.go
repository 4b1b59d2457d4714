package domain

import (
	"path/filepath"
	"strings"
)

// LotFromFilename extracts the raw lot identifier from an upload's file
// name. By convention the file is named after the lot, e.g.
// "1234567_01.csv" carries lot "1234567_01".
func LotFromFilename(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NormalizeLot reduces a raw lot identifier to its canonical digits-only
// form: "1234567_01" and "1234567-01" both normalize to "123456701".
// Equality between lots is always on the normalized form.
func NormalizeLot(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
