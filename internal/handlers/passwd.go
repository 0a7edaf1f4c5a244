package handlers

import (
	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// PasswdByName services PASSWD_BYNAME (spec §4.5 passwd).
func PasswdByName(req *router.Request) error {
	name, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, name); !ok {
		return err
	}
	f := filter.And(req.AttrMap.ObjectClass("passwd"),
		filter.Equals(req.AttrMap.Resolve("passwd", "uid"), name))

	return run(req, search.Options{
		Bases:  req.Config.BasesFor("passwd"),
		Filter: f,
		Attrs:  passwdAttrs(req),
	}, writePasswdEntry)
}

// PasswdByUID services PASSWD_BYUID.
func PasswdByUID(req *router.Request) error {
	uid, err := req.In.ReadInt32()
	if err != nil {
		return err
	}

	f := filter.And(req.AttrMap.ObjectClass("passwd"),
		filter.Equals(req.AttrMap.Resolve("passwd", "uidNumber"), itoa(int(uid))))

	return run(req, search.Options{
		Bases:  req.Config.BasesFor("passwd"),
		Filter: f,
		Attrs:  passwdAttrs(req),
	}, writePasswdEntry)
}

// PasswdAll services PASSWD_ALL.
func PasswdAll(req *router.Request) error {
	f := "(objectClass=" + filter.Escape(req.AttrMap.ObjectClass("passwd")) + ")"
	return run(req, search.Options{
		Bases:  req.Config.BasesFor("passwd"),
		Filter: f,
		Attrs:  passwdAttrs(req),
	}, writePasswdEntry)
}

func passwdAttrs(req *router.Request) []string {
	am := req.AttrMap
	return []string{
		am.Resolve("passwd", "uid"),
		am.Resolve("passwd", "userPassword"),
		am.Resolve("passwd", "uidNumber"),
		am.Resolve("passwd", "gidNumber"),
		am.Resolve("passwd", "gecos"),
		am.Resolve("passwd", "cn"),
		am.Resolve("passwd", "homeDirectory"),
		am.Resolve("passwd", "loginShell"),
		"objectClass",
	}
}

func writePasswdEntry(req *router.Request, entry *ldap.Entry) error {
	return writeOneRecord(req, func() error {
		am := req.AttrMap

		name := am.Eval("passwd", "uid", entry)
		gecos := am.Eval("passwd", "gecos", entry)
		if gecos == "" {
			gecos = am.Eval("passwd", "cn", entry)
		}

		if err := req.Out.WriteString(name); err != nil {
			return err
		}
		if err := req.Out.WriteString(passwordField(req, entry, am.Resolve("passwd", "userPassword"))); err != nil {
			return err
		}
		if err := req.Out.WriteInt32(atoi32(am.Eval("passwd", "uidNumber", entry))); err != nil {
			return err
		}
		if err := req.Out.WriteInt32(atoi32(am.Eval("passwd", "gidNumber", entry))); err != nil {
			return err
		}
		if err := req.Out.WriteString(gecos); err != nil {
			return err
		}
		if err := req.Out.WriteString(am.Eval("passwd", "homeDirectory", entry)); err != nil {
			return err
		}
		return req.Out.WriteString(am.Eval("passwd", "loginShell", entry))
	})
}
