package handlers

import (
	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/pam"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// ShadowByName services SHADOW_BYNAME (spec §4.5 shadow).
func ShadowByName(req *router.Request) error {
	name, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, name); !ok {
		return err
	}

	am := req.AttrMap
	f := filter.And(am.ObjectClass("shadow"), filter.Equals(am.Resolve("passwd", "uid"), name))

	return run(req, search.Options{
		Bases:  req.Config.BasesFor("shadow"),
		Filter: f,
		Attrs:  shadowAttrs(req),
	}, writeShadowEntry)
}

// ShadowAll services SHADOW_ALL.
func ShadowAll(req *router.Request) error {
	f := "(objectClass=" + filter.Escape(req.AttrMap.ObjectClass("shadow")) + ")"
	return run(req, search.Options{
		Bases:  req.Config.BasesFor("shadow"),
		Filter: f,
		Attrs:  shadowAttrs(req),
	}, writeShadowEntry)
}

func shadowAttrs(req *router.Request) []string {
	am := req.AttrMap
	return []string{
		am.Resolve("passwd", "uid"),
		am.Resolve("passwd", "userPassword"),
		am.Resolve("shadow", "shadowLastChange"),
		am.Resolve("shadow", "shadowMin"),
		am.Resolve("shadow", "shadowMax"),
		am.Resolve("shadow", "shadowWarning"),
		am.Resolve("shadow", "shadowInactive"),
		am.Resolve("shadow", "shadowExpire"),
		am.Resolve("shadow", "shadowFlag"),
		am.Resolve("shadow", "pwdLastSet"),
		"objectClass",
	}
}

func writeShadowEntry(req *router.Request, entry *ldap.Entry) error {
	return writeOneRecord(req, func() error {
		am := req.AttrMap
		sh := pam.ParseShadow(am, entry)

		if err := req.Out.WriteString(am.Eval("passwd", "uid", entry)); err != nil {
			return err
		}
		if err := req.Out.WriteString(passwordField(req, entry, am.Resolve("passwd", "userPassword"))); err != nil {
			return err
		}
		for _, v := range []int{sh.LastChange, sh.Min, sh.Max, sh.Warn, sh.Inactive, sh.Expire, sh.Flag} {
			if err := req.Out.WriteInt32(int32(v)); err != nil {
				return err
			}
		}
		return nil
	})
}
