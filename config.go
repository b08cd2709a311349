package ern

// This file packages up all the bits that relate to defining a node's
// own configuration: its name, its cookie, and where it listens and
// registers.

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ern-go/ern/cookie"
)

// NodeConfig gives the information a Node needs to start: its own
// distribution name, how to find its shared-secret cookie, and where
// it should listen and register with epmd. This is primarily used to
// create a static JSON file that represents the node, using the
// standard encoding/json to produce this structure.
//
// Cookie and CookieFile are mutually exclusive ways of supplying the
// shared secret; if neither is set, $HOME/.erlang.cookie is used, the
// same default a real erl install falls back to.
type NodeConfig struct {
	Name       string `json:"name"`
	Cookie     string `json:"cookie,omitempty"`
	CookieFile string `json:"cookie_file,omitempty"`

	ListenAddr string `json:"listen_address,omitempty"`
	EPMDAddr   string `json:"epmd_address,omitempty"`

	TraceLevel TraceLevel `json:"trace_level,omitempty"`
	TickMillis int        `json:"tick_millis,omitempty"`

	resolvedCookie string
	log            Logger
}

func (cfg *NodeConfig) logger() Logger {
	if cfg.log == nil {
		return StdLogger
	}
	return cfg.log
}

// WithLogger attaches l to cfg and returns cfg, for chaining after one
// of the Create* constructors.
func (cfg *NodeConfig) WithLogger(l Logger) *NodeConfig {
	cfg.log = l
	return cfg
}

func (cfg *NodeConfig) tickIntervalDuration() time.Duration {
	if cfg.TickMillis <= 0 {
		return 15 * time.Second
	}
	return time.Duration(cfg.TickMillis) * time.Millisecond
}

// resolveCookie fills in cfg.resolvedCookie following the same
// discovery order a real Erlang runtime uses: an explicit value always
// wins, then an explicit file, then the default cookie file.
func (cfg *NodeConfig) resolveCookie() error {
	if cfg.Cookie != "" {
		cfg.resolvedCookie = cfg.Cookie
		return nil
	}
	if cfg.CookieFile != "" {
		c, err := cookie.FromFile(cfg.CookieFile)
		if err != nil {
			return err
		}
		cfg.resolvedCookie = c
		return nil
	}
	c, err := cookie.Default()
	if err != nil {
		return fmt.Errorf("no cookie configured and no default cookie available: %w", err)
	}
	cfg.resolvedCookie = c
	return nil
}

// CreateFromSpecFile is the most automated way of configuring a node,
// reading its NodeConfig from a JSON file on disk.
func CreateFromSpecFile(path string) (*NodeConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return CreateFromReader(f)
}

// CreateFromReader configures a node based on the io.Reader of your
// choice.
func CreateFromReader(r io.Reader) (*NodeConfig, error) {
	contents, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var cfg NodeConfig
	if err := json.Unmarshal(contents, &cfg); err != nil {
		return nil, err
	}
	return CreateFromSpec(cfg)
}

// CreateFromSpec configures a node directly from a NodeConfig value,
// the ultimate in control. It validates the Name field and resolves
// the cookie, but does not open any sockets; call Node.Listen for
// that.
func CreateFromSpec(spec NodeConfig) (*NodeConfig, error) {
	cfg := spec
	if cfg.Name == "" {
		return nil, fmt.Errorf("ern: node config is missing a name")
	}
	if err := cfg.resolveCookie(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
