// Package nsswitch answers one question: does /etc/nsswitch.conf route the
// shadow database through ldap? Grounded on nslcd/nsswitch.c
// (original_source). The file is re-read only when its mtime changes and at
// most once every recheckInterval, since this check runs on a hot path
// (every shadow lookup) but the file itself changes essentially never.
package nsswitch

import (
	"bufio"
	"os"
	"strings"
	"sync"
	"time"
)

const recheckInterval = 60 * time.Second

// Policy answers nsswitch.conf queries for one path, caching the parsed
// result between recheckInterval windows (spec §5 "Shared resources": "The
// nsswitch-uses-ldap-for-shadow cache is a process-wide value with an
// mtime-indexed recheck (60 s)").
type Policy struct {
	path string

	mu         sync.Mutex
	lastCheck  time.Time
	lastMtime  time.Time
	shadowLDAP bool
}

// New creates a Policy reading path (typically "/etc/nsswitch.conf").
func New(path string) *Policy {
	return &Policy{path: path}
}

// ShadowUsesLDAP reports whether the "shadow" database line in nsswitch.conf
// names "ldap" as one of its sources.
func (p *Policy) ShadowUsesLDAP() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.lastCheck) < recheckInterval {
		return p.shadowLDAP
	}
	p.lastCheck = time.Now()

	info, err := os.Stat(p.path)
	if err != nil {
		return p.shadowLDAP
	}

	if info.ModTime().Equal(p.lastMtime) {
		return p.shadowLDAP
	}
	p.lastMtime = info.ModTime()

	p.shadowLDAP = parseShadowUsesLDAP(p.path)
	return p.shadowLDAP
}

func parseShadowUsesLDAP(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.EqualFold(strings.TrimSuffix(fields[0], ":"), "shadow") {
			continue
		}

		for _, src := range fields[1:] {
			if strings.EqualFold(src, "ldap") {
				return true
			}
		}
		return false
	}

	return false
}
