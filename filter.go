package ldapauth

import (
	"fmt"
	"strings"
)

// filterEscaper escapes the characters that carry meaning inside an LDAP
// filter. A strings.Replacer never rescans its own output, so the
// backslash escape cannot be escaped a second time.
var filterEscaper = strings.NewReplacer(
	"\\", "\\5c",
	"*", "\\2a",
	"(", "\\28",
	")", "\\29",
	"\x00", "\\00",
)

// EscapeFilterValue escapes special characters in an LDAP filter value so
// untrusted input cannot inject additional clauses.
func EscapeFilterValue(value string) string {
	return filterEscaper.Replace(value)
}

// BuildUserFilter composes the search filter for one username:
//
//	(&{baseFilter}({matchAttribute}={escapedUsername}))
//
// The username is escaped, the base filter is trusted configuration and
// interpolated as-is. Pure string work, no I/O.
func BuildUserFilter(baseFilter, matchAttribute, username string) string {
	return fmt.Sprintf("(&%s(%s=%s))", baseFilter, matchAttribute, EscapeFilterValue(username))
}
