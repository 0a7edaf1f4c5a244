// Package attrmap implements the bidirectional logical/directory attribute
// and objectClass mapping described in spec §3/§4.2, plus the small
// "${attr:-default}" value-expression language.
package attrmap

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/config"
)

// defaultAttributes holds the compiled-in logical->directory attribute name
// for every map this daemon understands, grounded on the schema references
// in nslcd/ldap-schema.c and the various original_source/nslcd/*.c files
// (each declares its own attmap_<map>_<logical> constants).
var defaultAttributes = map[string]map[string]string{
	"passwd": {
		"uid": "uid", "userPassword": "userPassword", "uidNumber": "uidNumber",
		"gidNumber": "gidNumber", "gecos": "gecos", "cn": "cn",
		"homeDirectory": "homeDirectory", "loginShell": "loginShell",
	},
	"shadow": {
		"uid": "uid", "userPassword": "userPassword",
		"shadowLastChange": "shadowLastChange", "shadowMin": "shadowMin",
		"shadowMax": "shadowMax", "shadowWarning": "shadowWarning",
		"shadowInactive": "shadowInactive", "shadowExpire": "shadowExpire",
		"shadowFlag": "shadowFlag",
	},
	"group": {
		"cn": "cn", "userPassword": "userPassword", "gidNumber": "gidNumber",
		"memberUid": "memberUid", "member": "member", "uniqueMember": "uniqueMember",
		"memberOf": "memberOf",
	},
	"host": {
		"cn": "cn", "ipHostNumber": "ipHostNumber",
	},
	"network": {
		"cn": "cn", "ipNetworkNumber": "ipNetworkNumber", "ipNetmaskNumber": "ipNetmaskNumber",
	},
	"service": {
		"cn": "cn", "ipServicePort": "ipServicePort", "ipServiceProtocol": "ipServiceProtocol",
	},
	"protocol": {
		"cn": "cn", "ipProtocolNumber": "ipProtocolNumber",
	},
	"rpc": {
		"cn": "cn", "oncRpcNumber": "oncRpcNumber",
	},
	"ethernet": {
		"cn": "cn", "macAddress": "macAddress",
	},
	"alias": {
		"cn": "cn", "rfc822MailMember": "rfc822MailMember",
	},
	"netgroup": {
		"cn": "cn", "nisNetgroupTriple": "nisNetgroupTriple", "memberNisNetgroup": "memberNisNetgroup",
	},
	"automount": {
		"cn": "cn", "automountKey": "automountKey", "automountInformation": "automountInformation",
	},
}

// defaultObjectClasses holds the compiled-in objectClass constraint per map.
var defaultObjectClasses = map[string]string{
	"passwd":    "posixAccount",
	"shadow":    "shadowAccount",
	"group":     "posixGroup",
	"host":      "ipHost",
	"network":   "ipNetwork",
	"service":   "ipService",
	"protocol":  "ipProtocol",
	"rpc":       "oncRpc",
	"ethernet":  "ieee802Device",
	"alias":     "nisMailAlias",
	"netgroup":  "nisNetgroup",
	"automount": "automountMap",
}

// Map is the immutable, resolved attribute/objectClass mapping table built
// once at config load and shared read-only by every worker.
type Map struct {
	attrs map[string]map[string]string     // map -> logical -> directory
	rev   map[string]map[string]string     // map -> directory(lower) -> logical
	ocs   map[string]string                // map -> objectClass
	exprs map[string]map[string]Expression // map -> logical -> compiled value expression
}

// Build resolves defaults + config overrides into an immutable Map.
func Build(cfg *config.Config) *Map {
	m := &Map{
		attrs: map[string]map[string]string{},
		rev:   map[string]map[string]string{},
		ocs:   map[string]string{},
	}

	for name, defaults := range defaultAttributes {
		resolved := make(map[string]string, len(defaults))
		for k, v := range defaults {
			resolved[k] = v
		}
		m.attrs[name] = resolved
	}

	for name, oc := range defaultObjectClasses {
		m.ocs[name] = oc
	}

	// global ("*") overrides apply to every map, then per-map overrides win.
	if global, ok := cfg.AttributeOverrides["*"]; ok {
		for logical, dn := range global {
			for name := range m.attrs {
				m.attrs[name][strings.ToLower(logical)] = dn
			}
		}
	}

	for name, overrides := range cfg.AttributeOverrides {
		if name == "*" {
			continue
		}
		if m.attrs[name] == nil {
			m.attrs[name] = map[string]string{}
		}
		for logical, dn := range overrides {
			m.attrs[name][strings.ToLower(logical)] = dn
		}
	}

	for name, overrides := range cfg.ObjectClassOverrides {
		for _, dn := range overrides {
			m.ocs[name] = dn
		}
	}

	for name, logicals := range m.attrs {
		rev := make(map[string]string, len(logicals))
		for logical, dn := range logicals {
			rev[strings.ToLower(dn)] = logical
		}
		m.rev[name] = rev
	}

	m.exprs = map[string]map[string]Expression{}
	for name, logicals := range m.attrs {
		compiled := make(map[string]Expression, len(logicals))
		for logical, dn := range logicals {
			compiled[logical] = Expression{kind: exprPlainAttr, attribute: dn}
		}
		m.exprs[name] = compiled
	}

	// nss_default_attribute_value supplies a fallback for an otherwise-empty
	// attribute, compiled as a "${dn:-default}" template over the already
	// resolved directory attribute (spec §4.2).
	for name, defaults := range cfg.DefaultValues {
		if m.exprs[name] == nil {
			m.exprs[name] = map[string]Expression{}
		}
		for logical, def := range defaults {
			logical = strings.ToLower(logical)
			m.exprs[name][logical] = Expression{kind: exprTemplate, attribute: m.Resolve(name, logical), defaultVal: def}
		}
	}

	// nss_override_attribute_value replaces a logical attribute's value
	// outright with a parsed expression (literal, template, or a reference to
	// a different directory attribute), taking precedence over any default.
	for name, overrides := range cfg.ValueOverrides {
		if m.exprs[name] == nil {
			m.exprs[name] = map[string]Expression{}
		}
		for logical, value := range overrides {
			m.exprs[name][strings.ToLower(logical)] = ParseExpression(value)
		}
	}

	return m
}

// Resolve maps a logical attribute name to its directory attribute name for
// the given map selector. Falls back to compiled defaults, then to the
// logical name itself if nothing maps it (spec §4.2: "first consults the
// per-map override, then the global override, then compiled defaults").
func (m *Map) Resolve(mapName, logical string) string {
	if logicals, ok := m.attrs[mapName]; ok {
		if dn, ok := logicals[strings.ToLower(logical)]; ok {
			return dn
		}
		for k, dn := range logicals {
			if strings.EqualFold(k, logical) {
				return dn
			}
		}
	}
	return logical
}

// Reverse maps a directory attribute name back to its logical name.
// Invariant (spec §8): Reverse(m, Resolve(m, a)) == a for every compiled
// logical attribute a.
func (m *Map) Reverse(mapName, directoryName string) string {
	if rev, ok := m.rev[mapName]; ok {
		if logical, ok := rev[strings.ToLower(directoryName)]; ok {
			return logical
		}
	}
	return directoryName
}

// Eval resolves logical's single value off entry, honoring any
// nss_override_attribute_value / nss_default_attribute_value expression
// compiled for mapName/logical (spec §4.2); with neither configured this is
// equivalent to entry.GetAttributeValue(m.Resolve(mapName, logical)).
func (m *Map) Eval(mapName, logical string, entry *ldap.Entry) string {
	if exprs, ok := m.exprs[mapName]; ok {
		if expr, ok := exprs[strings.ToLower(logical)]; ok {
			v, _ := expr.Eval(entry)
			return v
		}
	}
	return entry.GetAttributeValue(m.Resolve(mapName, logical))
}

// ObjectClass returns the resolved objectClass name for a map selector.
func (m *Map) ObjectClass(mapName string) string {
	if oc, ok := m.ocs[mapName]; ok {
		return oc
	}
	return mapName
}

// Expression is a parsed "${attr:-default}" / quoted-literal / plain
// attribute-reference value, per spec §3 AttrMap invariant and §4.2.
type Expression struct {
	kind       exprKind
	attribute  string
	defaultVal string
	literal    string
}

type exprKind int

const (
	exprPlainAttr exprKind = iota
	exprTemplate
	exprLiteral
)

// ParseExpression parses a mapping value at config-load time. Unknown forms
// are not possible here: anything not matching the "${...}" or quoted-literal
// shape is treated as a plain attribute reference, per spec §9 ("error out on
// unknown forms at config-load, not at lookup" — there is no unknown form
// left once plain-attribute-reference is the catch-all).
func ParseExpression(value string) Expression {
	if strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"") && len(value) >= 2 {
		return Expression{kind: exprLiteral, literal: value[1 : len(value)-1]}
	}

	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		inner := value[2 : len(value)-1]
		if idx := strings.Index(inner, ":-"); idx >= 0 {
			return Expression{kind: exprTemplate, attribute: inner[:idx], defaultVal: inner[idx+2:]}
		}
		return Expression{kind: exprPlainAttr, attribute: inner}
	}

	return Expression{kind: exprPlainAttr, attribute: value}
}

// Eval evaluates the expression against a directory entry. Returns ok=false
// iff the attribute is absent and no default is supplied (spec §4.2).
func (e Expression) Eval(entry *ldap.Entry) (string, bool) {
	switch e.kind {
	case exprLiteral:
		return e.literal, true
	case exprTemplate:
		if v := entry.GetAttributeValue(e.attribute); v != "" {
			return v, true
		}
		return e.defaultVal, true
	default: // exprPlainAttr
		if v := entry.GetAttributeValue(e.attribute); v != "" {
			return v, true
		}
		return "", false
	}
}
