package debug

import (
	"fmt"
	"strings"
)

// writeKeywords are the statements the debug console must never run. The
// list covers SQLite's write statements plus the file-level operations
// (ATTACH, VACUUM) that reach outside the open database.
var writeKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
	"REPLACE", "ATTACH", "DETACH", "VACUUM", "REINDEX",
}

// readOnlyPrefixes are the statement types the console accepts. WITH
// covers CTE-style queries over the history tables.
var readOnlyPrefixes = []string{
	"SELECT", "WITH", "EXPLAIN", "PRAGMA",
}

// IsSelectQuery decides whether the debug console may run a statement.
// Accepted queries start with one of the read-only prefixes and carry at
// most one trailing semicolon. Write keywords are rejected wherever they
// appear, so a CTE cannot smuggle one in. The returned error names the
// rule that failed.
func IsSelectQuery(sql string) (bool, error) {
	stmt := strings.TrimSpace(sql)
	if stmt == "" {
		return false, fmt.Errorf("empty query")
	}

	// One trailing semicolon is tolerated; any remaining semicolon means
	// a second statement (string literals included, which is overly
	// strict but safe)
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	if strings.Contains(stmt, ";") {
		return false, fmt.Errorf("multiple statements not allowed")
	}

	upper := stripLineComments(strings.ToUpper(stmt))

	if !hasReadOnlyPrefix(upper) {
		return false, fmt.Errorf("query must start with one of: %s", strings.Join(readOnlyPrefixes, ", "))
	}

	for _, keyword := range writeKeywords {
		if containsWord(upper, keyword) {
			return false, fmt.Errorf("dangerous keyword not allowed: %s", keyword)
		}
	}

	return true, nil
}

// stripLineComments drops everything after -- on each line so commented-out
// SQL neither hides a write statement nor masks the leading keyword.
func stripLineComments(sql string) string {
	lines := strings.Split(sql, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "--"); idx != -1 {
			lines[i] = line[:idx]
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func hasReadOnlyPrefix(sql string) bool {
	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(sql, prefix) {
			return true
		}
	}
	return false
}

// containsWord reports whether word occurs in text bounded by non-word
// characters, so CREATE does not fire on created_at.
func containsWord(text, word string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], word)
		if i < 0 {
			return false
		}
		i += start

		end := i + len(word)
		startsClean := i == 0 || !isWordChar(text[i-1])
		endsClean := end == len(text) || !isWordChar(text[end])
		if startsClean && endsClean {
			return true
		}
		start = i + 1
	}
}

func isWordChar(c byte) bool {
	return c == '_' ||
		('0' <= c && c <= '9') ||
		('A' <= c && c <= 'Z') ||
		('a' <= c && c <= 'z')
}
