package handlers

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/ldappool"
	"github.com/nslcdgo/nslcdgo/internal/nslcderr"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

const maxGroupExpansionDepth = 16

// GroupByName services GROUP_BYNAME.
func GroupByName(req *router.Request) error {
	name, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, name); !ok {
		return err
	}

	f := filter.And(req.AttrMap.ObjectClass("group"),
		filter.Equals(req.AttrMap.Resolve("group", "cn"), name))

	return run(req, search.Options{
		Bases:  req.Config.BasesFor("group"),
		Filter: f,
		Attrs:  groupAttrs(req),
	}, makeWriteGroupEntry(req))
}

// GroupByGID services GROUP_BYGID.
func GroupByGID(req *router.Request) error {
	gid, err := req.In.ReadInt32()
	if err != nil {
		return err
	}

	f := filter.And(req.AttrMap.ObjectClass("group"),
		filter.Equals(req.AttrMap.Resolve("group", "gidNumber"), itoa(int(gid))))

	return run(req, search.Options{
		Bases:  req.Config.BasesFor("group"),
		Filter: f,
		Attrs:  groupAttrs(req),
	}, makeWriteGroupEntry(req))
}

// GroupAll services GROUP_ALL.
func GroupAll(req *router.Request) error {
	f := "(objectClass=" + filter.Escape(req.AttrMap.ObjectClass("group")) + ")"
	return run(req, search.Options{
		Bases:  req.Config.BasesFor("group"),
		Filter: f,
		Attrs:  groupAttrs(req),
	}, makeWriteGroupEntry(req))
}

// GroupByMember services GROUP_BYMEMBER. Per the resolved group_bymember
// quirk (spec's Open Question on the legacy "garbage fields" behavior), each
// response record carries only the gid field; name/passwd/member fields are
// left zero-valued rather than invented.
func GroupByMember(req *router.Request) error {
	username, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, username); !ok {
		return err
	}

	am := req.AttrMap
	memberUidTerm := filter.Equals(am.Resolve("group", "memberUid"), username)
	f := filter.And(am.ObjectClass("group"), memberUidTerm)

	if req.Config.Rfc2307bis {
		dn, ok, derr := lookupUserDN(req, username)
		if derr != nil {
			return derr
		}
		if ok {
			memberTerm := filter.OrEquals(am.Resolve("group", "member"), dn)
			f = "(|" + f + filter.And(am.ObjectClass("group"), memberTerm) + ")"
		}
	}

	return run(req, search.Options{
		Bases:  req.Config.BasesFor("group"),
		Filter: f,
		Attrs:  []string{am.Resolve("group", "gidNumber")},
	}, writeGroupGIDOnly)
}

func groupAttrs(req *router.Request) []string {
	am := req.AttrMap
	return []string{
		am.Resolve("group", "cn"),
		am.Resolve("group", "userPassword"),
		am.Resolve("group", "gidNumber"),
		am.Resolve("group", "memberUid"),
		am.Resolve("group", "member"),
		am.Resolve("group", "uniqueMember"),
		"objectClass",
	}
}

func writeGroupGIDOnly(req *router.Request, entry *ldap.Entry) error {
	return writeOneRecord(req, func() error {
		am := req.AttrMap
		if err := req.Out.WriteString(""); err != nil {
			return err
		}
		if err := req.Out.WriteString(""); err != nil {
			return err
		}
		if err := req.Out.WriteInt32(atoi32(am.Eval("group", "gidNumber", entry))); err != nil {
			return err
		}
		return req.Out.WriteStringList(nil)
	})
}

func makeWriteGroupEntry(_ *router.Request) writeEntry {
	return func(req *router.Request, entry *ldap.Entry) error {
		am := req.AttrMap
		visited := newNameList()

		members := append([]string{}, entry.GetAttributeValues(am.Resolve("group", "memberUid"))...)

		if req.Config.Rfc2307bis {
			dnMembers := rangedValues(req, entry, am.Resolve("group", "member"))
			dnMembers = append(dnMembers, rangedValues(req, entry, am.Resolve("group", "uniqueMember"))...)
			visited.visit(entry.DN)
			for _, dn := range dnMembers {
				members = append(members, chaseMemberDN(req, dn, visited, 0)...)
			}
		}

		return writeOneRecord(req, func() error {
			if err := req.Out.WriteString(am.Eval("group", "cn", entry)); err != nil {
				return err
			}
			if err := req.Out.WriteString(passwordField(req, entry, am.Resolve("group", "userPassword"))); err != nil {
				return err
			}
			if err := req.Out.WriteInt32(atoi32(am.Eval("group", "gidNumber", entry))); err != nil {
				return err
			}
			return req.Out.WriteStringList(dedupe(members))
		})
	}
}

// chaseMemberDN resolves one DN-valued member: if it is itself a group, its
// memberUid values (and, recursively, its own DN members) are folded in;
// otherwise its own uid is used. A NameList (keyed by DN, case-insensitive)
// breaks cycles; depth is capped at maxGroupExpansionDepth (spec §4.5/§8
// "Cyclic membership").
func chaseMemberDN(req *router.Request, dn string, visited *nameList, depth int) []string {
	if depth >= maxGroupExpansionDepth || visited.seen(dn) {
		return nil
	}
	visited.visit(dn)

	entry, err := readEntryByDN(req, dn)
	if err != nil || entry == nil {
		return nil
	}

	am := req.AttrMap
	if !hasObjectClass(entry, am.ObjectClass("group")) {
		uid := am.Eval("passwd", "uid", entry)
		if uid == "" {
			return nil
		}
		return []string{uid}
	}

	var out []string
	out = append(out, entry.GetAttributeValues(am.Resolve("group", "memberUid"))...)

	nested := rangedValues(req, entry, am.Resolve("group", "member"))
	nested = append(nested, rangedValues(req, entry, am.Resolve("group", "uniqueMember"))...)
	for _, nestedDN := range nested {
		out = append(out, chaseMemberDN(req, nestedDN, visited, depth+1)...)
	}

	return out
}

// readEntryByDN performs a BASE-scope read of dn on the request's existing
// session, used for member-DN chasing.
func readEntryByDN(req *router.Request, dn string) (*ldap.Entry, error) {
	conn, err := req.Session.Conn(req.Peer.IsRoot())
	if err != nil {
		return nil, err
	}

	sr := ldap.NewSearchRequest(dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases,
		0, 0, false, "(objectClass=*)", []string{"*"}, nil)

	result, err := conn.Search(sr)
	req.Session.Touch()
	if err != nil && ldappool.Classify(err) != nslcderr.Success {
		return nil, nil
	}
	if result == nil || len(result.Entries) == 0 {
		return nil, nil
	}
	return result.Entries[0], nil
}

// lookupUserDN finds a user's DN by uid, used by GroupByMember's rfc2307bis
// DN-membership branch.
func lookupUserDN(req *router.Request, username string) (string, bool, error) {
	am := req.AttrMap
	f := filter.And(am.ObjectClass("passwd"), filter.Equals(am.Resolve("passwd", "uid"), username))

	s, err := search.Open(req.Session, search.Options{
		Bases:  req.Config.BasesFor("passwd"),
		Filter: f,
		Attrs:  []string{"dn"},
	})
	if err != nil {
		return "", false, err
	}
	defer s.Close()

	entry, ok, err := s.Next(req.Ctx)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return entry.DN, true, nil
}

// rangedValues returns attr's values off entry, transparently following
// range-retrieval continuations (attr;range=start-end) by re-reading the
// entry's DN with an explicit range request, per spec §4.5 "Range-retrieval
// ... is supported for servers that chunk large membership sets".
func rangedValues(req *router.Request, entry *ldap.Entry, attr string) []string {
	values := append([]string{}, entry.GetAttributeValues(attr)...)

	rangeAttr, next, complete := findRangeAttr(entry, attr)
	if rangeAttr == "" {
		return values
	}
	values = append(values, entry.GetAttributeValues(rangeAttr)...)

	for !complete {
		sub, subNext, done, err := fetchRange(req, entry.DN, attr, next)
		if err != nil || sub == nil {
			break
		}
		values = append(values, sub...)
		complete = done
		next = subNext
	}

	return values
}

func findRangeAttr(entry *ldap.Entry, attr string) (rangeAttrName string, next int, complete bool) {
	prefix := strings.ToLower(attr) + ";range="
	for _, a := range entry.Attributes {
		name := strings.ToLower(a.Name)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		suffix := a.Name[len(prefix):]
		parts := strings.SplitN(suffix, "-", 2)
		if len(parts) != 2 {
			continue
		}
		if parts[1] == "*" {
			return a.Name, 0, true
		}
		end := 0
		for _, c := range parts[1] {
			if c < '0' || c > '9' {
				return a.Name, 0, false
			}
			end = end*10 + int(c-'0')
		}
		return a.Name, end + 1, false
	}
	return "", 0, true
}

func fetchRange(req *router.Request, dn, attr string, start int) ([]string, int, bool, error) {
	conn, err := req.Session.Conn(req.Peer.IsRoot())
	if err != nil {
		return nil, 0, false, err
	}

	rangeSpec := attr + ";range=" + itoa(start) + "-*"
	sr := ldap.NewSearchRequest(dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases,
		0, 0, false, "(objectClass=*)", []string{rangeSpec}, nil)

	result, err := conn.Search(sr)
	req.Session.Touch()
	if err != nil || len(result.Entries) == 0 {
		return nil, 0, true, err
	}

	name, next, complete := findRangeAttr(result.Entries[0], attr)
	if name == "" {
		return nil, 0, true, nil
	}
	return result.Entries[0].GetAttributeValues(name), next, complete, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// nameList is a visited-DN set used to break cycles during nested group/
// netgroup expansion, per spec's NameList glossary entry. Comparison is
// case-insensitive; owned by a single expansion call.
type nameList struct {
	seenSet map[string]struct{}
}

func newNameList() *nameList {
	return &nameList{seenSet: make(map[string]struct{})}
}

func (n *nameList) seen(key string) bool {
	_, ok := n.seenSet[strings.ToLower(key)]
	return ok
}

func (n *nameList) visit(key string) {
	n.seenSet[strings.ToLower(key)] = struct{}{}
}
