package handlers

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// ServiceByName services SERVICE_BYNAME.
func ServiceByName(req *router.Request) error {
	name, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, name); !ok {
		return err
	}
	protocol, err := req.In.ReadString()
	if err != nil {
		return err
	}

	am := req.AttrMap
	terms := []string{filter.Equals(am.Resolve("service", "cn"), name)}
	if protocol != "" {
		terms = append(terms, filter.Equals(am.Resolve("service", "ipServiceProtocol"), protocol))
	}
	f := filter.And(am.ObjectClass("service"), terms...)

	return run(req, search.Options{
		Bases:  req.Config.BasesFor("service"),
		Filter: f,
		Attrs:  serviceAttrs(req),
	}, writeServiceEntries(protocol))
}

// ServiceByNumber services SERVICE_BYNUMBER.
func ServiceByNumber(req *router.Request) error {
	port, err := req.In.ReadInt32()
	if err != nil {
		return err
	}
	protocol, err := req.In.ReadString()
	if err != nil {
		return err
	}

	am := req.AttrMap
	terms := []string{filter.Equals(am.Resolve("service", "ipServicePort"), itoa(int(port)))}
	if protocol != "" {
		terms = append(terms, filter.Equals(am.Resolve("service", "ipServiceProtocol"), protocol))
	}
	f := filter.And(am.ObjectClass("service"), terms...)

	return run(req, search.Options{
		Bases:  req.Config.BasesFor("service"),
		Filter: f,
		Attrs:  serviceAttrs(req),
	}, writeServiceEntries(protocol))
}

// ServiceAll services SERVICE_ALL.
func ServiceAll(req *router.Request) error {
	f := "(objectClass=" + filter.Escape(req.AttrMap.ObjectClass("service")) + ")"
	return run(req, search.Options{
		Bases:  req.Config.BasesFor("service"),
		Filter: f,
		Attrs:  serviceAttrs(req),
	}, writeServiceEntries(""))
}

func serviceAttrs(req *router.Request) []string {
	am := req.AttrMap
	return []string{
		am.Resolve("service", "cn"),
		am.Resolve("service", "ipServicePort"),
		am.Resolve("service", "ipServiceProtocol"),
	}
}

// writeServiceEntries returns a writeEntry that, per spec §4.5 services
// ("Multi-valued ipServiceProtocol yields one result per protocol value"),
// emits one BEGIN...fields record per protocol value on the entry, filtered
// to wantProtocol when the caller requested a specific one. The match is
// case-insensitive, matching the equality filter that selected this entry
// server-side (LDAP attribute equality matching is case-insensitive for
// ipServiceProtocol's string syntax). Each record owns its own WriteBegin,
// so an entry with no matching protocol value writes nothing at all rather
// than an empty, field-less record.
func writeServiceEntries(wantProtocol string) writeEntry {
	return func(req *router.Request, entry *ldap.Entry) error {
		am := req.AttrMap
		name := am.Eval("service", "cn", entry)
		port := am.Eval("service", "ipServicePort", entry)
		protocols := entry.GetAttributeValues(am.Resolve("service", "ipServiceProtocol"))

		for _, proto := range protocols {
			if wantProtocol != "" && !strings.EqualFold(proto, wantProtocol) {
				continue
			}

			err := writeOneRecord(req, func() error {
				if err := req.Out.WriteString(name); err != nil {
					return err
				}
				if err := req.Out.WriteInt32(atoi32(port)); err != nil {
					return err
				}
				return req.Out.WriteString(proto)
			})
			if err != nil {
				return err
			}
		}
		return nil
	}
}
