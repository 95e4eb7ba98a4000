package ledger

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// lineIDNamespace seeds LineID.
var lineIDNamespace = uuid.MustParse("6f1c3a52-8d0e-4b7a-9a51-3c2f0e9d7b11")

// LineID derives a stable id for the record on the given file line (the
// header is line 1). Mirrors use it to recognize rows they already hold.
func LineID(lineNumber int, rec Record) string {
	parts := make([]string, 0, len(Headers)+1)
	parts = append(parts, strconv.Itoa(lineNumber))
	for _, h := range Headers {
		parts = append(parts, rec[h])
	}
	return uuid.NewSHA1(lineIDNamespace, []byte(strings.Join(parts, "\x1f"))).String()
}

// LineNumber returns the file line of the i-th record returned by Read.
// Append writes every record on a single line, so this is the record
// position plus the header.
func LineNumber(i int) int {
	return i + 2
}
