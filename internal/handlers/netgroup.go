package handlers

import (
	"strings"

	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

const maxNetgroupExpansionDepth = 16

// triple is a parsed nisNetgroupTriple value: (host,user,domain), any
// component may be empty (spec §4.5 netgroup).
type triple struct {
	Host, User, Domain string
}

// NetgroupByName services NETGROUP_BYNAME. memberNisNetgroup references are
// recursively expanded with a NameList breaking cycles, per spec §4.5/§8.
func NetgroupByName(req *router.Request) error {
	name, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, name); !ok {
		return err
	}

	visited := newNameList()
	triples, err := expandNetgroup(req, name, visited, 0)
	if err != nil {
		return err
	}

	for _, tr := range triples {
		if err := req.Out.WriteBegin(); err != nil {
			return err
		}
		if err := req.Out.WriteString(tr.Host); err != nil {
			return err
		}
		if err := req.Out.WriteString(tr.User); err != nil {
			return err
		}
		if err := req.Out.WriteString(tr.Domain); err != nil {
			return err
		}
	}

	return req.Out.WriteEnd()
}

// NetgroupAll services NETGROUP_ALL. Each directory entry's own triples are
// listed without following memberNisNetgroup references, since "all" has no
// single starting point to expand from.
func NetgroupAll(req *router.Request) error {
	am := req.AttrMap
	f := "(objectClass=" + filter.Escape(am.ObjectClass("netgroup")) + ")"

	s, err := search.Open(req.Session, search.Options{
		Bases:  req.Config.BasesFor("netgroup"),
		Filter: f,
		Attrs:  []string{am.Resolve("netgroup", "cn"), am.Resolve("netgroup", "nisNetgroupTriple")},
	})
	if err != nil {
		return err
	}
	defer s.Close()

	for {
		entry, ok, err := s.Next(req.Ctx)
		if err != nil {
			break
		}
		if !ok {
			break
		}
		for _, raw := range entry.GetAttributeValues(am.Resolve("netgroup", "nisNetgroupTriple")) {
			tr, ok := parseTriple(raw)
			if !ok {
				continue
			}
			if err := req.Out.WriteBegin(); err != nil {
				return err
			}
			req.Out.WriteString(tr.Host)
			req.Out.WriteString(tr.User)
			req.Out.WriteString(tr.Domain)
		}
	}

	return req.Out.WriteEnd()
}

// expandNetgroup resolves name's own triples plus, recursively, the triples
// of every netgroup it references via memberNisNetgroup.
func expandNetgroup(req *router.Request, name string, visited *nameList, depth int) ([]triple, error) {
	if depth >= maxNetgroupExpansionDepth || visited.seen(name) {
		return nil, nil
	}
	visited.visit(name)

	am := req.AttrMap
	f := filter.And(am.ObjectClass("netgroup"), filter.Equals(am.Resolve("netgroup", "cn"), name))

	s, err := search.Open(req.Session, search.Options{
		Bases:  req.Config.BasesFor("netgroup"),
		Filter: f,
		Attrs: []string{
			am.Resolve("netgroup", "nisNetgroupTriple"),
			am.Resolve("netgroup", "memberNisNetgroup"),
		},
	})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var out []triple
	for {
		entry, ok, err := s.Next(req.Ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		for _, raw := range entry.GetAttributeValues(am.Resolve("netgroup", "nisNetgroupTriple")) {
			if tr, ok := parseTriple(raw); ok {
				out = append(out, tr)
			}
		}

		for _, member := range entry.GetAttributeValues(am.Resolve("netgroup", "memberNisNetgroup")) {
			nested, err := expandNetgroup(req, member, visited, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		}
	}

	return out, nil
}

// parseTriple parses "(host,user,domain)" into its components.
func parseTriple(raw string) (triple, bool) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return triple{}, false
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 3 {
		return triple{}, false
	}
	return triple{Host: strings.TrimSpace(parts[0]), User: strings.TrimSpace(parts[1]), Domain: strings.TrimSpace(parts[2])}, true
}
