package handlers

import (
	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// AliasByName services ALIAS_BYNAME.
func AliasByName(req *router.Request) error {
	name, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, name); !ok {
		return err
	}
	am := req.AttrMap
	f := filter.And(am.ObjectClass("alias"), filter.Equals(am.Resolve("alias", "cn"), name))
	return run(req, search.Options{Bases: req.Config.BasesFor("alias"), Filter: f, Attrs: aliasAttrs(req)}, writeAliasEntry)
}

// AliasAll services ALIAS_ALL.
func AliasAll(req *router.Request) error {
	f := "(objectClass=" + filter.Escape(req.AttrMap.ObjectClass("alias")) + ")"
	return run(req, search.Options{Bases: req.Config.BasesFor("alias"), Filter: f, Attrs: aliasAttrs(req)}, writeAliasEntry)
}

func aliasAttrs(req *router.Request) []string {
	am := req.AttrMap
	return []string{am.Resolve("alias", "cn"), am.Resolve("alias", "rfc822MailMember")}
}

func writeAliasEntry(req *router.Request, entry *ldap.Entry) error {
	return writeOneRecord(req, func() error {
		am := req.AttrMap
		if err := req.Out.WriteString(am.Eval("alias", "cn", entry)); err != nil {
			return err
		}
		return req.Out.WriteStringList(entry.GetAttributeValues(am.Resolve("alias", "rfc822MailMember")))
	})
}
