package transport

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Location is a parsed source or target argument.
type Location struct {
	// BaseURL is the server root for URL-form arguments, e.g. "http://nas:5244".
	BaseURL string
	// Server names a [[servers]] entry from the config file.
	Server string
	User   string
	Path   string
}

// IsRemote reports whether the location lives on an Alist server.
func (l Location) IsRemote() bool {
	return l.BaseURL != "" || l.Server != ""
}

// SameServer reports whether l and o address the same remote server.
func (l Location) SameServer(o Location) bool {
	return l.IsRemote() && l.BaseURL == o.BaseURL && l.Server == o.Server
}

func (l Location) String() string {
	switch {
	case l.BaseURL != "":
		return l.BaseURL + l.Path
	case l.Server != "":
		return fmt.Sprintf("%s:%s", l.Server, l.Path)
	default:
		return l.Path
	}
}

// ParseLocation parses a CLI argument into a Location.
//
// Supported formats:
//   - /absolute/path or ./relative    local directory
//   - name:/path                      path on the configured server "name"
//   - http[s]://[user@]host[:port]/p  path on an ad-hoc server
//
// A colon only selects a named server when the part before it has no path
// separator, so "./a:b" stays local.
func ParseLocation(arg string) Location {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return parseURL(arg)
	}
	if filepath.IsAbs(arg) || strings.HasPrefix(arg, ".") {
		return Location{Path: arg}
	}

	name, rest, ok := strings.Cut(arg, ":")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) {
		return Location{Path: arg}
	}
	return Location{Server: name, Path: remotePath(rest)}
}

func parseURL(raw string) Location {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Location{Path: raw}
	}
	loc := Location{
		BaseURL: u.Scheme + "://" + u.Host,
		Path:    remotePath(u.Path),
	}
	if u.User != nil {
		loc.User = u.User.Username()
	}
	return loc
}

func remotePath(p string) string {
	return path.Clean("/" + p)
}
