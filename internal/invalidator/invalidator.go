// Package invalidator flushes external NSS caches after successful directory
// modifications. Any worker writes one byte per invalidation request to a
// non-blocking pipe; a reader goroutine inside the daemon process reads the
// bytes, resolves each to a database name, and execs the configured flush
// command. No separate child process is forked: flush commands run with the
// daemon's own credentials.
package invalidator

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/nslcdgo/nslcdgo/internal/logging"
)

// MapSelector names a service's mapping slot, per spec's glossary.
type MapSelector byte

const (
	All MapSelector = iota
	Passwd
	Group
	Shadow
	Hosts
	Services
	Networks
	Protocols
	RPC
	Ethers
	Aliases
	Netgroup
	Automount
)

var dbNames = map[MapSelector]string{
	Passwd:    "passwd",
	Group:     "group",
	Shadow:    "shadow",
	Hosts:     "hosts",
	Services:  "services",
	Networks:  "networks",
	Protocols: "protocols",
	RPC:       "rpc",
	Ethers:    "ethers",
	Aliases:   "aliases",
	Netgroup:  "netgroup",
	Automount: "automount",
}

// allSelectors lists every map invalidated by the distinguished "all" code.
var allSelectors = []MapSelector{Passwd, Group, Shadow, Hosts, Services, Networks, Protocols, RPC, Ethers, Aliases, Netgroup, Automount}

// Channel is the write end of the invalidator pipe, owned by the daemon and
// shared (read-only, OS-atomic single-byte writes) by every
// worker goroutine (spec §5: "one writer, one reader; writes are
// single-byte so atomic on all POSIX pipes").
type Channel struct {
	w   *os.File
	log *logging.Logger
}

// Command formats an external flush command for one database name, e.g.
// "nscd -i %s" -> "nscd -i passwd".
type Command = string

// Start creates the invalidation pipe and starts the goroutine that reads it,
// grounded on nslcd/invalidator.c's one-byte-per-map protocol. No process is
// forked; the reader shares the daemon's process and credentials. Returns
// the write-side Channel.
func Start(cmdTemplate string, log *logging.Logger) (*Channel, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("invalidator: create pipe: %w", err)
	}

	if err := syscall.SetNonblock(int(w.Fd()), true); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("invalidator: set pipe non-blocking: %w", err)
	}

	go runChild(r, cmdTemplate, log)

	return &Channel{w: w, log: log}, nil
}

// Invalidate requests invalidation of one map, writing its selector byte.
// The write is non-blocking; overruns are logged and dropped (spec §4.7).
func (c *Channel) Invalidate(sel MapSelector) {
	if c == nil || c.w == nil {
		return
	}

	_, err := c.w.Write([]byte{byte(sel)})
	if err != nil {
		c.log.Base().Warn().Err(err).Msg("invalidator: dropped invalidation request")
	}
}

// Close ends the pipe, which stops the reader goroutine on EOF.
func (c *Channel) Close() {
	if c == nil || c.w == nil {
		return
	}
	c.w.Close()
}

// runChild is the reader goroutine's loop: read one selector byte at a time,
// resolve it to one or more database names, and run the flush command per
// database, waiting for each to finish.
func runChild(r *os.File, cmdTemplate string, log *logging.Logger) {
	defer r.Close()

	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 0 || err != nil {
			log.Base().Debug().Msg("invalidator: pipe closed, child exiting")
			return
		}

		sel := MapSelector(buf[0])
		for _, s := range selectorsFor(sel) {
			runFlush(cmdTemplate, dbNames[s], log)
		}
	}
}

func selectorsFor(sel MapSelector) []MapSelector {
	if sel == All {
		return allSelectors
	}
	if _, ok := dbNames[sel]; ok {
		return []MapSelector{sel}
	}
	return nil
}

// runFlush execs the configured command for one database name with a
// sanitized environment, waits for it, and logs the outcome (spec §4.7).
func runFlush(cmdTemplate, db string, log *logging.Logger) {
	line := strings.ReplaceAll(cmdTemplate, "%s", db)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Env = []string{"PATH=/usr/sbin:/usr/bin:/sbin:/bin"}

	if err := cmd.Run(); err != nil {
		log.Base().Warn().Str("db", db).Str("cmd", line).Err(err).Msg("invalidator: flush command failed")
		return
	}

	log.Base().Debug().Str("db", db).Str("cmd", line).Msg("invalidator: flush command succeeded")
}
