package db

import (
	"strconv"
	"strings"
)

// stripQuotes removes one pair of leading/trailing quote characters left by
// dialect-specific catalog output.
func stripQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if (first == '"' || first == '\'' || first == '`') && first == last {
		return s[1 : len(s)-1]
	}
	return s
}

// StripQuotes is the exported form of stripQuotes.
func StripQuotes(s string) string { return stripQuotes(s) }

// nativeType is a normalized type split into its base name and size arguments.
type nativeType struct {
	base string
	args []int
}

func parseNativeType(t string) nativeType {
	t = strings.TrimSpace(strings.ToLower(t))
	open := strings.Index(t, "(")
	if open == -1 || !strings.HasSuffix(t, ")") {
		return nativeType{base: t}
	}
	nt := nativeType{base: strings.TrimSpace(t[:open])}
	for _, part := range strings.Split(t[open+1:len(t)-1], ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nativeType{base: t}
		}
		nt.args = append(nt.args, n)
	}
	return nt
}

func (t nativeType) size() int {
	if len(t.args) == 0 {
		return 0
	}
	return t.args[0]
}

var integerRank = map[string]int{
	"tinyint":   1,
	"smallint":  2,
	"mediumint": 3,
	"int":       4,
	"integer":   4,
	"bigint":    5,
}

var floatRank = map[string]int{
	"real":             1,
	"float":            1,
	"double":           2,
	"double precision": 2,
}

var textTypes = map[string]bool{
	"text":       true,
	"mediumtext": true,
	"longtext":   true,
}

func isExactNumeric(base string) bool { return base == "numeric" || base == "decimal" }

func isBoundedString(base string) bool {
	return base == "varchar" || base == "char" || base == "character varying" || base == "character"
}

// isWideningCast reports whether converting a column from oldType to newType
// (both normalized) keeps every existing value intact.
func isWideningCast(oldType, newType string) bool {
	if oldType == newType {
		return true
	}
	from, to := parseNativeType(oldType), parseNativeType(newType)

	if fr, ok := integerRank[from.base]; ok {
		if tr, ok := integerRank[to.base]; ok {
			return tr >= fr
		}
		switch {
		case isExactNumeric(to.base) && len(to.args) < 2:
			return true
		case to.base == "double" || to.base == "double precision":
			return true
		case textTypes[to.base]:
			return true
		case to.base == "varchar" && to.size() >= 20:
			return true
		}
		return false
	}
	if fr, ok := floatRank[from.base]; ok {
		if tr, ok := floatRank[to.base]; ok {
			return tr >= fr
		}
		return textTypes[to.base]
	}
	if isExactNumeric(from.base) {
		return textTypes[to.base]
	}
	if isBoundedString(from.base) {
		if textTypes[to.base] {
			return true
		}
		if to.base == "varchar" || to.base == "character varying" {
			return from.size() > 0 && to.size() >= from.size()
		}
		return false
	}
	if textTypes[from.base] {
		return textTypes[to.base]
	}
	return false
}

// referentialAction normalizes an ON DELETE/ON UPDATE rule. Unknown rules
// are dropped so they never reach generated SQL.
func referentialAction(rule string) string {
	switch r := strings.ToUpper(strings.TrimSpace(rule)); r {
	case "CASCADE", "SET NULL", "SET DEFAULT", "RESTRICT", "NO ACTION":
		return r
	default:
		return ""
	}
}
