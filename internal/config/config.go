// Package config parses the nslcdgo directive file into an immutable Config
// value and exposes the small set of daemon-level CLI flags layered on top
// of it.
package config

// Config is resolved once at startup and never mutated afterward (spec §5:
// "The LDAP config is read once and treated as immutable afterward;
// reloading requires a daemon restart").

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Scope mirrors the three LDAP search scopes the config file can select.
type Scope int

const (
	ScopeBase Scope = iota
	ScopeOne
	ScopeSub
)

// TLSMode selects how (or whether) the session negotiates TLS.
type TLSMode int

const (
	TLSOff TLSMode = iota
	TLSStartTLS
	TLSLdaps
)

// ReconnectPolicy controls how long LdapPool's fail-over loop is willing to
// block before giving up (spec §4.3).
type ReconnectPolicy int

const (
	ReconnectHardOpen ReconnectPolicy = iota
	ReconnectHardInit
	ReconnectSoft
)

// ConnectPolicy controls whether a Session is torn down after each Search.
type ConnectPolicy int

const (
	ConnectPersist ConnectPolicy = iota
	ConnectOneshot
)

// BindMode selects how the session authenticates.
type BindMode int

const (
	BindAnonymous BindMode = iota
	BindSimple
	BindSASL
)

// SearchBase is a (base, scope, extra filter) triple associated with one
// service map, tried in priority order (spec §6 glossary: "Search descriptor").
type SearchBase struct {
	Base   string
	Scope  Scope
	Filter string // extra filter ANDed onto the map's objectClass constraint, may be empty
}

// ValidNameRule bounds what a caller-supplied name/key may look like before
// it is allowed anywhere near a filter.
type ValidNameRule struct {
	Pattern   *regexp.Regexp
	MaxLength int
}

// Config is the fully resolved, immutable configuration.
type Config struct {
	URIs []string // ordered, at least one

	BaseDN string
	Scope  Scope

	BindMode     BindMode
	BindDN       string
	BindPassword string

	SASLMech    string
	SASLAuthcid string
	SASLAuthzid string

	// RootBindDN/RootBindPassword are used only when the caller's euid is 0.
	RootBindDN       string
	RootBindPassword string

	ProtocolVersion int // 2 or 3

	TLSMode         TLSMode
	TLSPeerVerify   bool
	TLSCACertFile   string
	TLSCertFile     string
	TLSKeyFile      string
	TLSCipherSuites string

	ConnectTimeout time.Duration
	BindTimeout    time.Duration
	OpTimeout      time.Duration
	IdleTimeout    time.Duration

	ReconnectPolicy       ReconnectPolicy
	ReconnectTries        int
	ReconnectMaxConnTries int
	ReconnectSleepTime    time.Duration
	ReconnectMaxSleepTime time.Duration

	ConnectPolicy ConnectPolicy

	PageSize int // 0 disables paged-result control

	// SearchBases maps a logical service name ("passwd", "group", ...) to its
	// ordered list of search-base descriptors. A service with no entry falls
	// back to []SearchBase{{Base: BaseDN, Scope: Scope}}.
	SearchBases map[string][]SearchBase

	// AttributeOverrides/ObjectClassOverrides/ValueOverrides/DefaultValues feed
	// attrmap.Build; see internal/attrmap.
	AttributeOverrides   map[string]map[string]string // map name -> logical -> directory
	ObjectClassOverrides map[string]map[string]string
	ValueOverrides       map[string]map[string]string // map name -> logical attr -> expression
	DefaultValues        map[string]map[string]string

	PamAuthcSearch             string
	PamAuthzSearch             []string
	PamPasswordProhibitMessage string

	RootPasswordModDN string
	RootPasswordModPW string

	// ShadowExpressions starts empty; no directive populates it and no code
	// reads it.
	ShadowExpressions map[string]string

	InitgroupsIgnoreUsers map[string]struct{}

	ValidNames ValidNameRule

	ADCompatible bool

	// Rfc2307bis enables DN-valued group membership chasing (member/
	// uniqueMember), including recursive nested-group expansion.
	Rfc2307bis bool

	// InitgroupsBacklink is set by the nss_initgroups_backlink directive. No
	// handler reads it: GroupByMember always searches the groups for the user
	// and never enumerates memberOf values.
	InitgroupsBacklink bool

	SocketPath string
	SocketMode os.FileMode
	NumWorkers int

	RunUID int
	RunGID int

	InvalidatorCommand string // e.g. "nscd -i %s"

	IgnoreCase bool

	// AuditLogPath, when non-empty, enables batched CSV logging of failed PAM
	// authc/authz/pwmod attempts. AuditLogBatch bounds how many records
	// accumulate before a flush.
	AuditLogPath  string
	AuditLogBatch int

	// NsswitchPath points at the nsswitch.conf consulted before attempting a
	// shadow lookup, so the daemon doesn't serve shadow data nss_ldap/sss
	// isn't configured to ask it for.
	NsswitchPath string
}

// Defaults returns a Config with every field set to the daemon's built-in
// default, before directives are overlaid.
func Defaults() *Config {
	return &Config{
		URIs:                  []string{"ldap://localhost:389/"},
		Scope:                 ScopeSub,
		ProtocolVersion:       3,
		TLSMode:               TLSOff,
		TLSPeerVerify:         true,
		ConnectTimeout:        10 * time.Second,
		BindTimeout:           10 * time.Second,
		OpTimeout:             30 * time.Second,
		IdleTimeout:           4 * time.Hour,
		ReconnectPolicy:       ReconnectHardInit,
		ReconnectTries:        3,
		ReconnectMaxConnTries: 1,
		ReconnectSleepTime:    1 * time.Second,
		ReconnectMaxSleepTime: 30 * time.Second,
		ConnectPolicy:         ConnectPersist,
		PageSize:              0,
		SearchBases:           map[string][]SearchBase{},
		AttributeOverrides:    map[string]map[string]string{},
		ObjectClassOverrides:  map[string]map[string]string{},
		ValueOverrides:        map[string]map[string]string{},
		DefaultValues:         map[string]map[string]string{},
		ShadowExpressions:     map[string]string{},
		InitgroupsIgnoreUsers: map[string]struct{}{},
		ValidNames:            ValidNameRule{Pattern: regexp.MustCompile(`^[A-Za-z0-9_.][A-Za-z0-9_.@ \\$-]*[A-Za-z0-9_.$-]?$`), MaxLength: 256},
		SocketPath:            "/var/run/nslcdgo/socket",
		SocketMode:            0o666,
		NumWorkers:            5,
		InvalidatorCommand:    "nscd -i %s",
		NsswitchPath:          "/etc/nsswitch.conf",
	}
}

// Flags holds the small daemon-level CLI surface layered on top of the
// directive file, exactly as the teacher's internal/config.Parse layers
// flags over nothing else (here: over the directive file instead).
type Flags struct {
	ConfigPath string
	Foreground bool
	Debug      bool
	CheckOnly  bool
	SocketPath string
}

// ParseFlags parses daemon-level flags.
func ParseFlags(args []string) (*Flags, error) {
	fs := pflag.NewFlagSet("nslcdgo", pflag.ContinueOnError)

	var f Flags
	fs.StringVar(&f.ConfigPath, "config", "/etc/nslcdgo.conf", "path to the directive file")
	fs.BoolVar(&f.Foreground, "foreground", false, "stay in the foreground and log to stderr instead of daemonizing")
	fs.BoolVar(&f.Debug, "debug", false, "enable debug-level logging")
	fs.BoolVar(&f.CheckOnly, "check", false, "parse the config, probe the directory, and exit")
	fs.StringVar(&f.SocketPath, "socket", "", "override the configured socket path")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &f, nil
}

// Load reads and parses the directive file at path into a Config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := Defaults()
	cfg.URIs = nil // must be fully specified by at least one `uri` directive, or we keep the default below
	sawURI := false

	scan := bufio.NewScanner(f)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		directive := fields[0]
		rest := ""
		if len(fields) == 2 {
			rest = strings.TrimSpace(fields[1])
		}

		if err := apply(cfg, directive, rest, &sawURI); err != nil {
			return nil, fmt.Errorf("config: %s:%d: %w", path, lineNo, err)
		}
	}

	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if !sawURI {
		cfg.URIs = []string{"ldap://localhost:389/"}
	}

	if cfg.BaseDN == "" {
		return nil, errors.New("config: base is required")
	}

	if cfg.ProtocolVersion != 2 && cfg.ProtocolVersion != 3 {
		return nil, errors.New("config: ldap_version must be 2 or 3")
	}

	return cfg, nil
}

func apply(cfg *Config, directive, rest string, sawURI *bool) error {
	switch directive {
	case "uri":
		cfg.URIs = append(cfg.URIs, rest)
		*sawURI = true
	case "base":
		cfg.BaseDN = rest
	case "scope":
		s, err := parseScope(rest)
		if err != nil {
			return err
		}
		cfg.Scope = s
	case "binddn":
		cfg.BindDN = rest
		cfg.BindMode = BindSimple
	case "bindpw":
		cfg.BindPassword = rest
	case "rootpwmoddn":
		cfg.RootBindDN = rest
	case "rootpwmodpw":
		cfg.RootBindPassword = rest
	case "sasl_mech":
		cfg.SASLMech = rest
		cfg.BindMode = BindSASL
	case "sasl_authcid":
		cfg.SASLAuthcid = rest
	case "sasl_authzid":
		cfg.SASLAuthzid = rest
	case "ldap_version":
		v, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Errorf("ldap_version: %w", err)
		}
		cfg.ProtocolVersion = v
	case "bind_timelimit":
		d, err := parseSeconds(rest)
		if err != nil {
			return err
		}
		cfg.BindTimeout = d
	case "timelimit":
		d, err := parseSeconds(rest)
		if err != nil {
			return err
		}
		cfg.OpTimeout = d
	case "idle_timelimit":
		d, err := parseSeconds(rest)
		if err != nil {
			return err
		}
		cfg.IdleTimeout = d
	case "reconnect_pol":
		switch rest {
		case "hard-open":
			cfg.ReconnectPolicy = ReconnectHardOpen
		case "hard-init":
			cfg.ReconnectPolicy = ReconnectHardInit
		case "soft":
			cfg.ReconnectPolicy = ReconnectSoft
		default:
			return fmt.Errorf("reconnect_pol: unknown value %q", rest)
		}
	case "reconnect_tries":
		v, err := strconv.Atoi(rest)
		if err != nil {
			return err
		}
		cfg.ReconnectTries = v
	case "reconnect_maxconntries":
		v, err := strconv.Atoi(rest)
		if err != nil {
			return err
		}
		cfg.ReconnectMaxConnTries = v
	case "reconnect_sleeptime":
		d, err := parseSeconds(rest)
		if err != nil {
			return err
		}
		cfg.ReconnectSleepTime = d
	case "reconnect_maxsleeptime":
		d, err := parseSeconds(rest)
		if err != nil {
			return err
		}
		cfg.ReconnectMaxSleepTime = d
	case "connect_policy":
		switch rest {
		case "persist":
			cfg.ConnectPolicy = ConnectPersist
		case "oneshot":
			cfg.ConnectPolicy = ConnectOneshot
		default:
			return fmt.Errorf("connect_policy: unknown value %q", rest)
		}
	case "tls_reqcert":
		cfg.TLSPeerVerify = rest != "never" && rest != "allow"
	case "tls_cacertfile":
		cfg.TLSCACertFile = rest
	case "tls_cert":
		cfg.TLSCertFile = rest
	case "tls_key":
		cfg.TLSKeyFile = rest
	case "tls_ciphers":
		cfg.TLSCipherSuites = rest
	case "ssl":
		switch rest {
		case "start_tls":
			cfg.TLSMode = TLSStartTLS
		case "on", "yes", "true":
			cfg.TLSMode = TLSLdaps
		case "off", "no", "false", "":
			cfg.TLSMode = TLSOff
		default:
			return fmt.Errorf("ssl: unknown value %q", rest)
		}
	case "pagesize":
		v, err := strconv.Atoi(rest)
		if err != nil {
			return err
		}
		cfg.PageSize = v
	case "validnames":
		re, err := regexp.Compile(rest)
		if err != nil {
			return fmt.Errorf("validnames: %w", err)
		}
		cfg.ValidNames.Pattern = re
	case "nss_initgroups_ignoreusers":
		for _, u := range strings.Split(rest, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				cfg.InitgroupsIgnoreUsers[u] = struct{}{}
			}
		}
	case "nss_map_attribute":
		return applyMapDirective(cfg.AttributeOverrides, rest)
	case "nss_map_objectclass":
		return applyMapDirective(cfg.ObjectClassOverrides, rest)
	case "nss_override_attribute_value":
		return applyMapDirective(cfg.ValueOverrides, rest)
	case "nss_default_attribute_value":
		return applyMapDirective(cfg.DefaultValues, rest)
	case "pam_authc_search":
		cfg.PamAuthcSearch = rest
	case "pam_authz_search":
		cfg.PamAuthzSearch = append(cfg.PamAuthzSearch, rest)
	case "pam_password_prohibit_message":
		cfg.PamPasswordProhibitMessage = rest
	case "ad_compatible":
		cfg.ADCompatible = rest == "yes" || rest == "true" || rest == "on"
	case "rfc2307bis":
		cfg.Rfc2307bis = rest == "yes" || rest == "true" || rest == "on"
	case "nss_initgroups_backlink", "initgroups_backlink":
		cfg.InitgroupsBacklink = rest == "yes" || rest == "true" || rest == "on"
	case "ignorecase":
		cfg.IgnoreCase = rest == "yes" || rest == "true" || rest == "on"
	case "uid":
		cfg.RunUID, _ = strconv.Atoi(rest)
	case "gid":
		cfg.RunGID, _ = strconv.Atoi(rest)
	case "socket":
		cfg.SocketPath = rest
	case "threads":
		v, err := strconv.Atoi(rest)
		if err != nil {
			return err
		}
		cfg.NumWorkers = v
	case "invalidator_command":
		cfg.InvalidatorCommand = rest
	case "nsswitch_path":
		cfg.NsswitchPath = rest
	case "audit_log_path":
		cfg.AuditLogPath = rest
	case "audit_log_batch":
		v, err := strconv.Atoi(rest)
		if err != nil {
			return err
		}
		cfg.AuditLogBatch = v
	default:
		if strings.HasPrefix(directive, "nss_base_") {
			svc := strings.TrimPrefix(directive, "nss_base_")
			sb, err := parseSearchBase(rest)
			if err != nil {
				return fmt.Errorf("%s: %w", directive, err)
			}
			cfg.SearchBases[svc] = append(cfg.SearchBases[svc], sb)
			return nil
		}
		// Unknown directives are tolerated (forward compatibility with the
		// original nslcd.conf grammar, which has many more knobs than the
		// core pipeline this spec covers observes).
	}

	return nil
}

// applyMapDirective handles the two-or-three token `nss_map_* <map> <logical> [value]`
// and `nss_default_attribute_value <map> <logical> <value>` grammars.
func applyMapDirective(dst map[string]map[string]string, rest string) error {
	parts := strings.Fields(rest)
	if len(parts) < 2 {
		return fmt.Errorf("expected at least 2 fields, got %q", rest)
	}

	mapName := parts[0]
	logical := parts[1]
	value := ""
	if len(parts) >= 3 {
		value = strings.Join(parts[2:], " ")
	}

	if dst[mapName] == nil {
		dst[mapName] = map[string]string{}
	}
	dst[mapName][logical] = value

	return nil
}

func parseScope(s string) (Scope, error) {
	switch s {
	case "base":
		return ScopeBase, nil
	case "one", "onelevel":
		return ScopeOne, nil
	case "sub", "subtree":
		return ScopeSub, nil
	default:
		return 0, fmt.Errorf("scope: unknown value %q", s)
	}
}

func parseSeconds(s string) (time.Duration, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Second, nil
}

// parseSearchBase parses the `base?scope?filter` syntax of nss_base_<service>.
func parseSearchBase(s string) (SearchBase, error) {
	parts := strings.SplitN(s, "?", 3)

	sb := SearchBase{Base: parts[0]}
	if len(parts) >= 2 && parts[1] != "" {
		scope, err := parseScope(parts[1])
		if err != nil {
			return SearchBase{}, err
		}
		sb.Scope = scope
	}
	if len(parts) == 3 {
		sb.Filter = parts[2]
	}

	return sb, nil
}

// TLSConfig builds a *tls.Config honoring TLSPeerVerify and optional client
// certificates, the same shape as the teacher's Config.TLSConfig.
func (c *Config) TLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: !c.TLSPeerVerify}

	if c.TLSCertFile != "" && c.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("config: load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// BasesFor returns the configured search-base descriptors for a service,
// falling back to the single default base/scope pair when none are
// configured.
func (c *Config) BasesFor(service string) []SearchBase {
	if sb, ok := c.SearchBases[service]; ok && len(sb) > 0 {
		return sb
	}
	return []SearchBase{{Base: c.BaseDN, Scope: c.Scope}}
}

// ValidName reports whether name satisfies the configured validity rule.
func (c *Config) ValidName(name string) bool {
	if len(name) == 0 || len(name) > c.ValidNames.MaxLength {
		return false
	}
	return c.ValidNames.Pattern.MatchString(name)
}

// IgnoresInitgroups reports whether username is in the initgroups-ignore set.
func (c *Config) IgnoresInitgroups(username string) bool {
	_, ok := c.InitgroupsIgnoreUsers[username]
	return ok
}
