/*

Package cookie locates the shared secret a node uses to authenticate
its distribution handshakes, following the same discovery rule a real
Erlang runtime uses: an explicit value always wins; failing that, the
contents of $HOME/.erlang.cookie.

*/
package cookie

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default reads the cookie from $HOME/.erlang.cookie, keeping only its
// first line, which drops the trailing newline a real erl install always
// leaves there. A missing
// file is not an error: it yields an empty cookie, the same way a
// freshly-installed node with nothing configured yet has none. An
// empty or unreadable *existing* file still errors, since that looks
// like a broken installation rather than an absent one.
func Default() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cookie: resolving home directory: %w", err)
	}
	cookie, err := FromFile(filepath.Join(home, ".erlang.cookie"))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return cookie, err
}

// FromFile reads a cookie from an arbitrary path, for deployments that
// keep it somewhere other than the default location. Only the file's
// first line is used.
func FromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cookie: reading %s: %w", path, err)
	}
	cookie := string(data)
	if i := strings.IndexAny(cookie, "\r\n"); i >= 0 {
		cookie = cookie[:i]
	}
	if cookie == "" {
		return "", fmt.Errorf("cookie: %s is empty", path)
	}
	return cookie, nil
}
