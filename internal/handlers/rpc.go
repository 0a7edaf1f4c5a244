package handlers

import (
	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// RPCByName services RPC_BYNAME.
func RPCByName(req *router.Request) error {
	name, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, name); !ok {
		return err
	}
	am := req.AttrMap
	f := filter.And(am.ObjectClass("rpc"), filter.Equals(am.Resolve("rpc", "cn"), name))
	return run(req, search.Options{Bases: req.Config.BasesFor("rpc"), Filter: f, Attrs: rpcAttrs(req)}, writeRPCEntry)
}

// RPCByNumber services RPC_BYNUMBER.
func RPCByNumber(req *router.Request) error {
	num, err := req.In.ReadInt32()
	if err != nil {
		return err
	}
	am := req.AttrMap
	f := filter.And(am.ObjectClass("rpc"), filter.Equals(am.Resolve("rpc", "oncRpcNumber"), itoa(int(num))))
	return run(req, search.Options{Bases: req.Config.BasesFor("rpc"), Filter: f, Attrs: rpcAttrs(req)}, writeRPCEntry)
}

// RPCAll services RPC_ALL.
func RPCAll(req *router.Request) error {
	f := "(objectClass=" + filter.Escape(req.AttrMap.ObjectClass("rpc")) + ")"
	return run(req, search.Options{Bases: req.Config.BasesFor("rpc"), Filter: f, Attrs: rpcAttrs(req)}, writeRPCEntry)
}

func rpcAttrs(req *router.Request) []string {
	am := req.AttrMap
	return []string{am.Resolve("rpc", "cn"), am.Resolve("rpc", "oncRpcNumber")}
}

func writeRPCEntry(req *router.Request, entry *ldap.Entry) error {
	return writeOneRecord(req, func() error {
		am := req.AttrMap
		if err := req.Out.WriteString(am.Eval("rpc", "cn", entry)); err != nil {
			return err
		}
		return req.Out.WriteInt32(atoi32(am.Eval("rpc", "oncRpcNumber", entry)))
	})
}
