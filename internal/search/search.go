// Package search implements the paged LDAP enumeration described in spec
// §4.4: one outstanding search per session, transparent page fetching, and
// fall-through across an ordered list of search-base descriptors.
package search

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/nslcdgo/nslcdgo/internal/config"
	"github.com/nslcdgo/nslcdgo/internal/ldappool"
	"github.com/nslcdgo/nslcdgo/internal/nslcderr"
)

// SearchState mirrors spec §3's Search lifecycle.
type SearchState int

const (
	Active SearchState = iota
	DrainingPage
	Finished
	Abandoned
)

// Entry is a thin, single-page-lifetime view over one LDAP result (spec §3:
// "Lifetime strictly bounded by the containing search's current page").
type Entry struct {
	*ldap.Entry
}

// Search owns one outstanding search against a Session (spec §4.4).
type Search struct {
	session *ldappool.Session
	attrs   []string
	bases   []config.SearchBase
	baseIdx int

	filter string

	pageSize int
	cookie   []byte

	state   SearchState
	pending []*ldap.Entry
	idx     int

	status nslcderr.Status
}

// Options configures a new Search.
type Options struct {
	Bases    []config.SearchBase
	Filter   string // caller's filter, already composed with objectClass + key term
	Attrs    []string
	PageSize int
}

// Open starts a search over sess using the first configured base. The
// session must not already have an outstanding search (spec §3 invariant).
func Open(sess *ldappool.Session, opts Options) (*Search, error) {
	if !sess.MarkSearchOpen() {
		return nil, nslcderr.New("search.open", nslcderr.Internal, fmt.Errorf("session already has an outstanding search"))
	}

	if len(opts.Bases) == 0 {
		sess.MarkSearchClosed()
		return nil, nslcderr.New("search.open", nslcderr.Internal, fmt.Errorf("no search bases configured"))
	}

	s := &Search{
		session:  sess,
		attrs:    opts.Attrs,
		bases:    opts.Bases,
		filter:   opts.Filter,
		pageSize: opts.PageSize,
		state:    Active,
	}

	return s, nil
}

// Next returns the next entry, transparently fetching the next page or
// falling through to the next search-base descriptor as needed. ok is false
// once the search is Finished or Abandoned, at which point err carries
// either nil (clean end) or the terminal error (spec §4.4 error->status map).
func (s *Search) Next(ctx context.Context) (*Entry, bool, error) {
	for {
		if s.state == Finished || s.state == Abandoned {
			return nil, false, nil
		}

		if s.idx < len(s.pending) {
			e := s.pending[s.idx]
			s.idx++
			return &Entry{e}, true, nil
		}

		if err := s.fetchNextPage(ctx); err != nil {
			s.state = Abandoned
			return nil, false, err
		}

		if s.state == Finished && len(s.pending) == 0 {
			return nil, false, nil
		}
	}
}

// fetchNextPage performs one search round (one base, one page) and advances
// state according to spec §4.4 step 4: cookie present -> same base, next
// page; cookie empty and bases remain -> next base; otherwise Finished.
func (s *Search) fetchNextPage(ctx context.Context) error {
	if s.baseIdx >= len(s.bases) {
		s.state = Finished
		return nil
	}

	conn, err := s.session.Conn(false)
	if err != nil {
		return err
	}

	base := s.bases[s.baseIdx]

	req := ldap.NewSearchRequest(
		base.Base,
		ldapScope(base.Scope),
		ldap.NeverDerefAliases,
		0, 0, false,
		s.filter,
		s.attrs,
		s.controlsFor(),
	)

	result, err := searchWithContext(ctx, conn, req)
	s.session.Touch()

	if err != nil {
		status := ldappool.Classify(err)
		if status == nslcderr.Success {
			// size/time limit: treat as a normal page (spec §4.4).
		} else {
			return nslcderr.New("search.next", status, err)
		}
	}

	s.pending = result.Entries
	s.idx = 0
	s.status = nslcderr.Success

	cookie := pagingCookie(result)
	if len(cookie) > 0 {
		s.cookie = cookie
		return nil
	}

	s.cookie = nil
	s.baseIdx++
	if s.baseIdx >= len(s.bases) {
		s.state = Finished
	}

	return nil
}

func (s *Search) controlsFor() []ldap.Control {
	if s.pageSize <= 0 {
		return nil
	}
	pc := ldap.NewControlPaging(uint32(s.pageSize))
	if len(s.cookie) > 0 {
		pc.SetCookie(s.cookie)
	}
	return []ldap.Control{pc}
}

func pagingCookie(result *ldap.SearchResult) []byte {
	if result == nil {
		return nil
	}
	ctrl := ldap.FindControl(result.Controls, ldap.ControlTypePaging)
	if ctrl == nil {
		return nil
	}
	pc, ok := ctrl.(*ldap.ControlPaging)
	if !ok {
		return nil
	}
	return pc.Cookie
}

// searchWithContext performs the blocking Search call, honoring ctx
// cancellation by abandoning the wait and surfacing ctx.Err() — the
// operation itself cannot be interrupted mid-flight with the synchronous
// go-ldap API, so a canceled context causes the session to be torn down by
// the caller rather than leaving a stale in-flight request (spec §5
// Cancellation: "an in-progress LDAP search is ABANDONED ... before the
// session is closed").
func searchWithContext(ctx context.Context, conn *ldap.Conn, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	type result struct {
		res *ldap.SearchResult
		err error
	}

	ch := make(chan result, 1)
	go func() {
		res, err := conn.Search(req)
		ch <- result{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.res, r.err
	}
}

func ldapScope(s config.Scope) int {
	switch s {
	case config.ScopeBase:
		return ldap.ScopeBaseObject
	case config.ScopeOne:
		return ldap.ScopeSingleLevel
	default:
		return ldap.ScopeWholeSubtree
	}
}

// Close abandons any remaining iteration and releases the session's
// outstanding-search slot (spec §4.4 Search.close / §3 invariant).
func (s *Search) Close() {
	if s.state != Finished {
		s.state = Abandoned
	}
	s.session.MarkSearchClosed()
}
