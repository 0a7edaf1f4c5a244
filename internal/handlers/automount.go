package handlers

import (
	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/config"
	"github.com/nslcdgo/nslcdgo/internal/filter"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/search"
)

// AutomountByName services AUTOMOUNT_BYNAME: the map name resolves to a
// container DN, then each (automountKey, automountInformation) pair under
// that container for the requested key is written, per spec §4.5.
func AutomountByName(req *router.Request) error {
	mapName, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, mapName); !ok {
		return err
	}
	key, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, key); !ok {
		return err
	}

	containerDN, ok, err := resolveAutomountContainer(req, mapName)
	if err != nil {
		return err
	}
	if !ok {
		return req.Out.WriteEnd()
	}

	am := req.AttrMap
	f := filter.Equals(am.Resolve("automount", "automountKey"), key)

	return run(req, search.Options{
		Bases:  []config.SearchBase{{Base: containerDN}},
		Filter: f,
		Attrs:  automountAttrs(req),
	}, writeAutomountEntry)
}

// AutomountAll services AUTOMOUNT_ALL for one map name.
func AutomountAll(req *router.Request) error {
	mapName, err := req.In.ReadString()
	if err != nil {
		return err
	}
	if ok, err := requireValidName(req, mapName); !ok {
		return err
	}

	containerDN, ok, err := resolveAutomountContainer(req, mapName)
	if err != nil {
		return err
	}
	if !ok {
		return req.Out.WriteEnd()
	}

	f := "(" + req.AttrMap.Resolve("automount", "automountKey") + "=*)"

	return run(req, search.Options{
		Bases:  []config.SearchBase{{Base: containerDN}},
		Filter: f,
		Attrs:  automountAttrs(req),
	}, writeAutomountEntry)
}

// resolveAutomountContainer finds the automountMap container entry's DN for
// mapName. The original nslcd caches this per automount "context" across
// enumeration steps of the same map; this daemon resolves it fresh per
// request since each request is independently routed to a handler with no
// surviving per-map state (see DESIGN.md).
func resolveAutomountContainer(req *router.Request, mapName string) (string, bool, error) {
	am := req.AttrMap
	f := filter.And(am.ObjectClass("automount"), filter.Equals(am.Resolve("automount", "cn"), mapName))

	s, err := search.Open(req.Session, search.Options{
		Bases:  req.Config.BasesFor("automount"),
		Filter: f,
		Attrs:  []string{"dn"},
	})
	if err != nil {
		return "", false, err
	}
	defer s.Close()

	entry, ok, err := s.Next(req.Ctx)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return entry.DN, true, nil
}

func automountAttrs(req *router.Request) []string {
	am := req.AttrMap
	return []string{am.Resolve("automount", "automountKey"), am.Resolve("automount", "automountInformation")}
}

func writeAutomountEntry(req *router.Request, entry *ldap.Entry) error {
	return writeOneRecord(req, func() error {
		am := req.AttrMap
		if err := req.Out.WriteString(am.Eval("automount", "automountKey", entry)); err != nil {
			return err
		}
		return req.Out.WriteString(am.Eval("automount", "automountInformation", entry))
	})
}
