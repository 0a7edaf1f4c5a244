// Package filter escapes untrusted input for LDAP filter syntax and composes
// prototype filters with escaped arguments, per spec §4.2.
package filter

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Escape converts *, (, ), \, and NUL to the LDAP \HH form. It delegates to
// go-ldap's EscapeFilter, the same call the teacher uses in
// ldapclient.go's LookupDN, since re-implementing RFC 4515 escaping by hand
// would just be a worse copy of what the library already does correctly.
func Escape(s string) string {
	return ldap.EscapeFilter(s)
}

// Build substitutes escaped arguments into a printf-style template. Each
// "%s" placeholder receives one escaped argument, in order, and the count of
// "%s" placeholders must equal len(args). Other verbs are neither counted nor
// rejected; every substitution in this codebase is a filter value and
// therefore always a string.
func Build(template string, args ...string) (string, error) {
	n := strings.Count(template, "%s")
	if n != len(args) {
		return "", fmt.Errorf("filter: template %q wants %d args, got %d", template, n, len(args))
	}

	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = Escape(a)
	}

	return fmt.Sprintf(template, escaped...), nil
}

// And composes a map's objectClass constraint with one or more attribute=value
// terms into "(&(objectClass=oc)(term1)(term2)...)".
func And(objectClass string, terms ...string) string {
	var b strings.Builder
	b.WriteString("(&(objectClass=")
	b.WriteString(Escape(objectClass))
	b.WriteString(")")
	for _, t := range terms {
		b.WriteString(t)
	}
	b.WriteString(")")
	return b.String()
}

// Equals builds an "(attr=escaped-value)" term.
func Equals(attr, value string) string {
	return fmt.Sprintf("(%s=%s)", attr, Escape(value))
}

// OrEquals composes "(|(attr=v1)(attr=v2)...)" for list searches, escaping
// each element (spec §4.2: "For list searches the core composes
// (|(attr=v1)(attr=v2)…) using escape per element").
func OrEquals(attr string, values ...string) string {
	if len(values) == 0 {
		return ""
	}
	if len(values) == 1 {
		return Equals(attr, values[0])
	}

	var b strings.Builder
	b.WriteString("(|")
	for _, v := range values {
		b.WriteString(Equals(attr, v))
	}
	b.WriteString(")")
	return b.String()
}
