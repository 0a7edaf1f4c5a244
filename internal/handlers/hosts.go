package handlers

import (
	"net"

	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// HostByName services HOST_BYNAME (spec §4.5 hosts/networks).
func HostByName(req *router.Request) error {
	name, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, name); !ok {
		return err
	}

	am := req.AttrMap
	f := filter.And(am.ObjectClass("host"), filter.Equals(am.Resolve("host", "cn"), name))

	return run(req, search.Options{
		Bases:  req.Config.BasesFor("host"),
		Filter: f,
		Attrs:  hostAttrs(req),
	}, writeHostEntry)
}

// HostByAddr services HOST_BYADDR. Addresses are parsed and re-rendered to
// their canonical textual form before filter construction, accepting both
// IPv4 dotted-quad and IPv6 hex input.
func HostByAddr(req *router.Request) error {
	addr, err := req.In.ReadAddress()
	if err != nil {
		return err
	}

	ip := net.IP(addr.Bytes)
	am := req.AttrMap
	f := filter.And(am.ObjectClass("host"), filter.Equals(am.Resolve("host", "ipHostNumber"), ip.String()))

	return run(req, search.Options{
		Bases:  req.Config.BasesFor("host"),
		Filter: f,
		Attrs:  hostAttrs(req),
	}, writeHostEntry)
}

// HostAll services HOST_ALL.
func HostAll(req *router.Request) error {
	f := "(objectClass=" + filter.Escape(req.AttrMap.ObjectClass("host")) + ")"
	return run(req, search.Options{
		Bases:  req.Config.BasesFor("host"),
		Filter: f,
		Attrs:  hostAttrs(req),
	}, writeHostEntry)
}

func hostAttrs(req *router.Request) []string {
	am := req.AttrMap
	return []string{am.Resolve("host", "cn"), am.Resolve("host", "ipHostNumber")}
}

func writeHostEntry(req *router.Request, entry *ldap.Entry) error {
	return writeOneRecord(req, func() error {
		am := req.AttrMap
		if err := req.Out.WriteString(am.Eval("host", "cn", entry)); err != nil {
			return err
		}
		return req.Out.WriteStringList(entry.GetAttributeValues(am.Resolve("host", "ipHostNumber")))
	})
}
