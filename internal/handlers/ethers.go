package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// EtherByName services ETHER_BYNAME.
func EtherByName(req *router.Request) error {
	name, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, name); !ok {
		return err
	}
	am := req.AttrMap
	f := filter.And(am.ObjectClass("ethernet"), filter.Equals(am.Resolve("ethernet", "cn"), name))
	return run(req, search.Options{Bases: req.Config.BasesFor("ethernet"), Filter: f, Attrs: etherAttrs(req)}, writeEtherEntry)
}

// EtherByEther services ETHER_BYETHER. The address is normalized to
// canonical xx:xx:xx:xx:xx:xx form before filter construction (spec's
// resolved Open Question on ethernet address normalization).
func EtherByEther(req *router.Request) error {
	raw, err := req.In.ReadString()
	if err != nil {
		return err
	}

	canonical, ok := canonicalEther(raw)
	if !ok {
		return req.Out.WriteEnd()
	}

	am := req.AttrMap
	f := filter.And(am.ObjectClass("ethernet"), filter.Equals(am.Resolve("ethernet", "macAddress"), canonical))
	return run(req, search.Options{Bases: req.Config.BasesFor("ethernet"), Filter: f, Attrs: etherAttrs(req)}, writeEtherEntry)
}

// EtherAll services ETHER_ALL.
func EtherAll(req *router.Request) error {
	f := "(objectClass=" + filter.Escape(req.AttrMap.ObjectClass("ethernet")) + ")"
	return run(req, search.Options{Bases: req.Config.BasesFor("ethernet"), Filter: f, Attrs: etherAttrs(req)}, writeEtherEntry)
}

func etherAttrs(req *router.Request) []string {
	am := req.AttrMap
	return []string{am.Resolve("ethernet", "cn"), am.Resolve("ethernet", "macAddress")}
}

func writeEtherEntry(req *router.Request, entry *ldap.Entry) error {
	return writeOneRecord(req, func() error {
		am := req.AttrMap
		if err := req.Out.WriteString(am.Eval("ethernet", "cn", entry)); err != nil {
			return err
		}
		canonical, _ := canonicalEther(am.Eval("ethernet", "macAddress", entry))
		return req.Out.WriteString(canonical)
	})
}

// canonicalEther parses a MAC address in any of the common separator
// conventions (colon, hyphen, bare hex) and re-renders it as
// xx:xx:xx:xx:xx:xx, lowercase, zero-padded.
func canonicalEther(raw string) (string, bool) {
	cleaned := strings.NewReplacer("-", "", ":", "", ".", "").Replace(raw)
	if len(cleaned) != 12 {
		return "", false
	}

	groups := make([]string, 6)
	for i := 0; i < 6; i++ {
		byteStr := cleaned[i*2 : i*2+2]
		v, err := strconv.ParseUint(byteStr, 16, 8)
		if err != nil {
			return "", false
		}
		groups[i] = fmt.Sprintf("%02x", v)
	}

	return strings.Join(groups, ":"), true
}
