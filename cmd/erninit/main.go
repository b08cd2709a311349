/*

Executable erninit can be used to quickly set up a NodeConfig file for
a new ern node.

This executable does not do anything necessary to run a node, other
than provide a convenient method for creating the config file to go
with one. If you already have one, you don't need this. But this is
convenient to get started with.

*/
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/ern-go/ern"
)

var name = flag.String("name", "", "the node's own name, in alive@host form (required)")
var listen = flag.String("listen", "0.0.0.0:0", "the address to listen for inbound distribution connections on")
var epmd = flag.String("epmd", "", "the epmd address to register with (default: localhost, $ERL_EPMD_PORT or 4369)")
var cookieFile = flag.String("cookie-file", "", "a file holding the shared cookie (default: $HOME/.erlang.cookie)")
var tickMillis = flag.Int("tick-millis", 0, "the net tick interval in milliseconds (default: 15000)")
var format = flag.String("format", "json", "the format to write the config in: json or toml")
var out = flag.String("out", "", "the file to write (default: stdout)")

func main() {
	flag.Usage = func() {
		fmt.Print(`erninit assists with getting ern node deployments up and running by
writing an initial NodeConfig file.

This program does nothing special, nor is the resulting file special
in any way; it is only a convenience, since a NodeConfig is easy
enough to hand-write but tedious to get exactly right the first time.

`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "erninit: -name is required")
		os.Exit(1)
	}

	cfg := ern.NodeConfig{
		Name:       *name,
		ListenAddr: *listen,
		EPMDAddr:   *epmd,
		CookieFile: *cookieFile,
		TickMillis: *tickMillis,
	}

	if _, err := ern.CreateFromSpec(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "erninit: refusing to write an invalid config: %v\n", err)
		os.Exit(1)
	}

	var buf bytes.Buffer
	switch *format {
	case "json":
		if err := writeJSON(&buf, cfg); err != nil {
			errexit("could not encode config as JSON: %v", err)
		}
	case "toml":
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			errexit("could not encode config as TOML: %v", err)
		}
	default:
		errexit("unknown -format %q, want json or toml", *format)
	}

	if *out == "" {
		_, _ = os.Stdout.Write(buf.Bytes())
		return
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		errexit("could not write %s: %v", *out, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", *out)
}

func errexit(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "erninit: "+msg+"\n", args...)
	os.Exit(1)
}

func writeJSON(w io.Writer, cfg ern.NodeConfig) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
