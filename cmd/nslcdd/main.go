package main

// Entry point for nslcdd. Parses daemon flags, loads the directive file,
// builds the attribute map and action router, starts the cache invalidator,
// and runs the worker pool until a termination signal arrives or the
// optional --check probe completes.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nslcdgo/nslcdgo/internal/attrmap"
	"github.com/nslcdgo/nslcdgo/internal/audit"
	"github.com/nslcdgo/nslcdgo/internal/config"
	"github.com/nslcdgo/nslcdgo/internal/handlers"
	"github.com/nslcdgo/nslcdgo/internal/invalidator"
	"github.com/nslcdgo/nslcdgo/internal/ldappool"
	"github.com/nslcdgo/nslcdgo/internal/logging"
	"github.com/nslcdgo/nslcdgo/internal/metrics"
	"github.com/nslcdgo/nslcdgo/internal/nsswitch"
	"github.com/nslcdgo/nslcdgo/internal/protocol"
	"github.com/nslcdgo/nslcdgo/internal/report"
	"github.com/nslcdgo/nslcdgo/internal/router"
	"github.com/nslcdgo/nslcdgo/internal/server"
)

func main() {
	signal.Ignore(syscall.SIGPIPE)

	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "flag error: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	if flags.SocketPath != "" {
		cfg.SocketPath = flags.SocketPath
	}

	log := logging.New(logging.Options{Debug: flags.Debug, Foreground: flags.Foreground})
	am := attrmap.Build(cfg)

	// Check-only mode: confirm the directory is reachable and exit.
	if flags.CheckOnly {
		sess := ldappool.New(cfg, log)
		defer sess.Close()
		if _, err := sess.Conn(false); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(2)
		}
		fmt.Println("check: OK")
		os.Exit(0)
	}

	inv, err := invalidator.Start(cfg.InvalidatorCommand, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalidator error: %v\n", err)
		os.Exit(2)
	}
	defer inv.Close()

	aud := audit.New(cfg.AuditLogPath, cfg.AuditLogBatch)
	defer aud.Close()

	nsw := nsswitch.New(cfg.NsswitchPath)

	rt := buildRouter()

	acceptor, err := server.NewAcceptor(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen error: %v\n", err)
		os.Exit(2)
	}
	defer acceptor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	m := metrics.New()
	reporter := report.New(m, log, 60*time.Second)
	go reporter.Run(ctx)

	pool := server.NewWorkerPool(acceptor, cfg, am, rt, log, inv, m, aud, nsw)
	pool.Run(ctx)

	report.PrintSummary(os.Stderr, m)
}

// buildRouter registers every handler against its protocol action, per
// SPEC_FULL.md §5 component mapping.
func buildRouter() *router.Router {
	rt := router.New()

	rt.Register(protocol.ActionConfigGet, handlers.ConfigGet)

	rt.Register(protocol.ActionAliasByName, handlers.AliasByName)
	rt.Register(protocol.ActionAliasAll, handlers.AliasAll)

	rt.Register(protocol.ActionEtherByName, handlers.EtherByName)
	rt.Register(protocol.ActionEtherByEther, handlers.EtherByEther)
	rt.Register(protocol.ActionEtherAll, handlers.EtherAll)

	rt.Register(protocol.ActionGroupByName, handlers.GroupByName)
	rt.Register(protocol.ActionGroupByGID, handlers.GroupByGID)
	rt.Register(protocol.ActionGroupByMember, handlers.GroupByMember)
	rt.Register(protocol.ActionGroupAll, handlers.GroupAll)

	rt.Register(protocol.ActionHostByName, handlers.HostByName)
	rt.Register(protocol.ActionHostByAddr, handlers.HostByAddr)
	rt.Register(protocol.ActionHostAll, handlers.HostAll)

	rt.Register(protocol.ActionNetgroupByName, handlers.NetgroupByName)
	rt.Register(protocol.ActionNetgroupAll, handlers.NetgroupAll)

	rt.Register(protocol.ActionNetworkByName, handlers.NetworkByName)
	rt.Register(protocol.ActionNetworkByAddr, handlers.NetworkByAddr)
	rt.Register(protocol.ActionNetworkAll, handlers.NetworkAll)

	rt.Register(protocol.ActionPasswdByName, handlers.PasswdByName)
	rt.Register(protocol.ActionPasswdByUID, handlers.PasswdByUID)
	rt.Register(protocol.ActionPasswdAll, handlers.PasswdAll)

	rt.Register(protocol.ActionProtocolByName, handlers.ProtocolByName)
	rt.Register(protocol.ActionProtocolByNumber, handlers.ProtocolByNumber)
	rt.Register(protocol.ActionProtocolAll, handlers.ProtocolAll)

	rt.Register(protocol.ActionRPCByName, handlers.RPCByName)
	rt.Register(protocol.ActionRPCByNumber, handlers.RPCByNumber)
	rt.Register(protocol.ActionRPCAll, handlers.RPCAll)

	rt.Register(protocol.ActionServiceByName, handlers.ServiceByName)
	rt.Register(protocol.ActionServiceByNumber, handlers.ServiceByNumber)
	rt.Register(protocol.ActionServiceAll, handlers.ServiceAll)

	rt.Register(protocol.ActionShadowByName, handlers.ShadowByName)
	rt.Register(protocol.ActionShadowAll, handlers.ShadowAll)

	rt.Register(protocol.ActionAutomountByName, handlers.AutomountByName)
	rt.Register(protocol.ActionAutomountAll, handlers.AutomountAll)

	rt.Register(protocol.ActionPAMAuthc, handlers.PAMAuthc)
	rt.Register(protocol.ActionPAMAuthz, handlers.PAMAuthz)
	rt.Register(protocol.ActionPAMSessO, handlers.PAMSessO)
	rt.Register(protocol.ActionPAMSessC, handlers.PAMSessC)
	rt.Register(protocol.ActionPAMPwmod, handlers.PAMPwmod)

	rt.Register(protocol.ActionUsermod, handlers.Usermod)

	return rt
}
