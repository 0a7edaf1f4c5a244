package handlers

import (
	"net"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// NetworkByName services NETWORK_BYNAME.
func NetworkByName(req *router.Request) error {
	name, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, name); !ok {
		return err
	}

	am := req.AttrMap
	f := filter.And(am.ObjectClass("network"), filter.Equals(am.Resolve("network", "cn"), name))

	return run(req, search.Options{
		Bases:  req.Config.BasesFor("network"),
		Filter: f,
		Attrs:  networkAttrs(req),
	}, writeNetworkEntry)
}

// NetworkByAddr services NETWORK_BYADDR. A lookup for "a.b.c.d" that comes
// back empty is retried with trailing ".0" components stripped, per spec
// §4.5 ("Network lookups that return NotFound for a.b.c.d retry stripping
// .0 suffixes").
func NetworkByAddr(req *router.Request) error {
	addr, err := req.In.ReadAddress()
	if err != nil {
		return err
	}

	am := req.AttrMap
	ip := net.IP(addr.Bytes).String()

	for _, candidate := range networkAddrCandidates(ip) {
		f := filter.And(am.ObjectClass("network"), filter.Equals(am.Resolve("network", "ipNetworkNumber"), candidate))

		s, err := search.Open(req.Session, search.Options{
			Bases:  req.Config.BasesFor("network"),
			Filter: f,
			Attrs:  networkAttrs(req),
		})
		if err != nil {
			return err
		}

		entry, ok, err := s.Next(req.Ctx)
		if err != nil {
			s.Close()
			return err
		}
		if ok {
			if err := writeNetworkEntry(req, entry.Entry); err != nil {
				s.Close()
				return err
			}
		}
		s.Close()
		if ok {
			return req.Out.WriteEnd()
		}
	}

	return req.Out.WriteEnd()
}

// networkAddrCandidates yields ip, then ip with trailing ".0" groups
// stripped one at a time (e.g. "10.0.0.0" -> "10.0.0.0", "10.0.0", "10.0").
func networkAddrCandidates(ip string) []string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return []string{ip}
	}

	candidates := []string{ip}
	for len(parts) > 2 && parts[len(parts)-1] == "0" {
		parts = parts[:len(parts)-1]
		candidates = append(candidates, strings.Join(parts, "."))
	}
	return candidates
}

// NetworkAll services NETWORK_ALL.
func NetworkAll(req *router.Request) error {
	f := "(objectClass=" + filter.Escape(req.AttrMap.ObjectClass("network")) + ")"
	return run(req, search.Options{
		Bases:  req.Config.BasesFor("network"),
		Filter: f,
		Attrs:  networkAttrs(req),
	}, writeNetworkEntry)
}

func networkAttrs(req *router.Request) []string {
	am := req.AttrMap
	return []string{am.Resolve("network", "cn"), am.Resolve("network", "ipNetworkNumber")}
}

func writeNetworkEntry(req *router.Request, entry *ldap.Entry) error {
	return writeOneRecord(req, func() error {
		am := req.AttrMap
		if err := req.Out.WriteString(am.Eval("network", "cn", entry)); err != nil {
			return err
		}
		return req.Out.WriteStringList(entry.GetAttributeValues(am.Resolve("network", "ipNetworkNumber")))
	})
}
