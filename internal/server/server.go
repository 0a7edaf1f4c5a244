// Package server implements the connection Acceptor and fixed-size
// WorkerPool over the UNIX-domain socket, per spec §2 ("Acceptor: ...
// Creates the UNIX-domain listening socket with correct permissions, signals
// workers, handles graceful shutdown on SIGHUP/SIGINT/SIGTERM" and
// "WorkerPool: Fixed-size pool of worker threads; each owns an LdapPool;
// blocking accept -> handle -> close per connection"). Grounded on the
// teacher's cmd/ldapbench/main.go signal handling and internal/runner.Run's
// worker-goroutine-pool shape, generalized from "N goroutines each looping a
// benchmark operation" to "N goroutines each accepting and handling one
// connection at a time".
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nslcdgo/nslcdgo/internal/attrmap"
	"github.com/nslcdgo/nslcdgo/internal/audit"
	"github.com/nslcdgo/nslcdgo/internal/config"
	"github.com/nslcdgo/nslcdgo/internal/invalidator"
	"github.com/nslcdgo/nslcdgo/internal/ldappool"
	"github.com/nslcdgo/nslcdgo/internal/logging"
	"github.com/nslcdgo/nslcdgo/internal/metrics"
	"github.com/nslcdgo/nslcdgo/internal/nsswitch"
	"github.com/nslcdgo/nslcdgo/internal/protocol"
	"github.com/nslcdgo/nslcdgo/internal/router"
)

// Acceptor owns the listening UNIX-domain socket.
type Acceptor struct {
	cfg *config.Config
	log *logging.Logger
	ln  *net.UnixListener
}

// NewAcceptor creates (unlinking any stale socket file first) and binds the
// listening socket at cfg.SocketPath with cfg.SocketMode permissions (spec
// §6: "Permissions must permit world read/write to deliver NSS results to
// arbitrary local users").
func NewAcceptor(cfg *config.Config, log *logging.Logger) (*Acceptor, error) {
	_ = os.Remove(cfg.SocketPath)

	addr, err := net.ResolveUnixAddr("unix", cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("server: resolve socket address: %w", err)
	}

	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen on %s: %w", cfg.SocketPath, err)
	}

	if err := os.Chmod(cfg.SocketPath, cfg.SocketMode); err != nil {
		ln.Close()
		return nil, fmt.Errorf("server: chmod socket: %w", err)
	}

	return &Acceptor{cfg: cfg, log: log, ln: ln}, nil
}

// Close shuts down the listener and unlinks the socket file.
func (a *Acceptor) Close() {
	a.ln.Close()
	_ = os.Remove(a.cfg.SocketPath)
}

// Accept blocks until a connection arrives, the listener is closed, or ctx
// is canceled.
func (a *Acceptor) Accept(ctx context.Context) (*net.UnixConn, error) {
	type result struct {
		conn *net.UnixConn
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		conn, err := a.ln.AcceptUnix()
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.conn, r.err
	}
}

// WorkerPool runs a fixed number of worker goroutines, each owning one
// ldappool.Session and looping accept->handle->close until ctx is canceled.
type WorkerPool struct {
	acceptor *Acceptor
	cfg      *config.Config
	am       *attrmap.Map
	router   *router.Router
	log      *logging.Logger
	inv      *invalidator.Channel
	m        *metrics.Metrics
	aud      *audit.Logger
	nsw      *nsswitch.Policy
}

// NewWorkerPool builds a WorkerPool; it does not start any goroutines until
// Run is called. inv, aud and nsw may be nil if the daemon was started
// without an invalidator command, audit log path, or nsswitch path
// configured.
func NewWorkerPool(acceptor *Acceptor, cfg *config.Config, am *attrmap.Map, rt *router.Router, log *logging.Logger, inv *invalidator.Channel, m *metrics.Metrics, aud *audit.Logger, nsw *nsswitch.Policy) *WorkerPool {
	return &WorkerPool{acceptor: acceptor, cfg: cfg, am: am, router: rt, log: log, inv: inv, m: m, aud: aud, nsw: nsw}
}

// Run starts cfg.NumWorkers goroutines and blocks until ctx is canceled and
// every worker has exited (spec §2 WorkerPool, grounded on runner.Run's
// `sync.WaitGroup` + per-goroutine accept loop).
func (p *WorkerPool) Run(ctx context.Context) {
	wg := &sync.WaitGroup{}
	wg.Add(p.cfg.NumWorkers)

	for i := 0; i < p.cfg.NumWorkers; i++ {
		go func(id int) {
			defer wg.Done()
			p.workerLoop(ctx, id)
		}(i)
	}

	wg.Wait()
}

func (p *WorkerPool) workerLoop(ctx context.Context, id int) {
	sess := ldappool.New(p.cfg, p.log)
	defer sess.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := p.acceptor.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Base().Warn().Err(err).Int("worker", id).Msg("server: accept failed")
			continue
		}

		p.handleConnection(ctx, sess, conn)
	}
}

// handleConnection probes peer credentials, decodes exactly one request
// header, dispatches it through the router, and closes the connection (spec
// §6: "Each connection carries exactly one request and receives exactly one
// response stream").
func (p *WorkerPool) handleConnection(ctx context.Context, sess *ldappool.Session, conn *net.UnixConn) {
	defer conn.Close()

	start := time.Now()
	p.m.Requests.Add(1)

	peer, err := peerCreds(conn)
	if err != nil {
		p.log.Base().Warn().Err(err).Msg("server: peer credential probe failed")
		p.m.Fail.Add(1)
		return
	}

	in := protocol.NewReader(conn)
	out := protocol.NewWriter(conn)

	header, err := in.ReadHeader()
	if err != nil {
		p.log.Base().Debug().Err(err).Msg("server: malformed request header, closing connection")
		p.m.Fail.Add(1)
		return
	}

	if err := out.WriteHeader(protocol.Header{Version: protocol.Version, Action: header.Action}); err != nil {
		p.log.Base().Warn().Err(err).Msg("server: write response header failed")
		p.m.Fail.Add(1)
		return
	}

	req := &router.Request{
		Ctx:         ctx,
		Header:      header,
		In:          in,
		Out:         out,
		Session:     sess,
		Config:      p.cfg,
		AttrMap:     p.am,
		Peer:        peer,
		Log:         p.log.Scope(fmt.Sprintf("action=%d", header.Action)),
		Invalidator: p.inv,
		Audit:       p.aud,
		Nsswitch:    p.nsw,
	}

	if err := p.router.Dispatch(req); err != nil {
		p.log.Base().Warn().Err(err).Msg("server: handler returned an error, closing connection")
		p.m.Fail.Add(1)
		return
	}

	if err := out.Flush(); err != nil {
		p.log.Base().Warn().Err(err).Msg("server: flush response failed")
		p.m.Fail.Add(1)
		return
	}

	p.m.Success.Add(1)
	p.m.Lat.Record(time.Since(start))
}
