package handlers

import (
	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// ProtocolByName services PROTOCOL_BYNAME.
func ProtocolByName(req *router.Request) error {
	name, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, name); !ok {
		return err
	}
	am := req.AttrMap
	f := filter.And(am.ObjectClass("protocol"), filter.Equals(am.Resolve("protocol", "cn"), name))
	return run(req, search.Options{Bases: req.Config.BasesFor("protocol"), Filter: f, Attrs: protocolAttrs(req)}, writeProtocolEntry)
}

// ProtocolByNumber services PROTOCOL_BYNUMBER.
func ProtocolByNumber(req *router.Request) error {
	num, err := req.In.ReadInt32()
	if err != nil {
		return err
	}
	am := req.AttrMap
	f := filter.And(am.ObjectClass("protocol"), filter.Equals(am.Resolve("protocol", "ipProtocolNumber"), itoa(int(num))))
	return run(req, search.Options{Bases: req.Config.BasesFor("protocol"), Filter: f, Attrs: protocolAttrs(req)}, writeProtocolEntry)
}

// ProtocolAll services PROTOCOL_ALL.
func ProtocolAll(req *router.Request) error {
	f := "(objectClass=" + filter.Escape(req.AttrMap.ObjectClass("protocol")) + ")"
	return run(req, search.Options{Bases: req.Config.BasesFor("protocol"), Filter: f, Attrs: protocolAttrs(req)}, writeProtocolEntry)
}

func protocolAttrs(req *router.Request) []string {
	am := req.AttrMap
	return []string{am.Resolve("protocol", "cn"), am.Resolve("protocol", "ipProtocolNumber")}
}

func writeProtocolEntry(req *router.Request, entry *ldap.Entry) error {
	return writeOneRecord(req, func() error {
		am := req.AttrMap
		if err := req.Out.WriteString(am.Eval("protocol", "cn", entry)); err != nil {
			return err
		}
		return req.Out.WriteInt32(atoi32(am.Eval("protocol", "ipProtocolNumber", entry)))
	})
}
