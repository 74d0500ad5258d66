package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/bamsammich/alist-sync/internal/transport"
	"github.com/bamsammich/alist-sync/internal/transport/alist"
)

// endpoint is an opened location: the filesystem and the path within it.
type endpoint struct {
	loc    transport.Location
	fs     transport.FS
	client *alist.Client // nil for local directories
	path   string
}

func (e endpoint) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// open resolves a CLI argument into an endpoint. Named servers come from
// the config file; URL locations use the credential flags.
func (o *options) open(arg string) (endpoint, error) {
	loc := transport.ParseLocation(arg)
	if !loc.IsRemote() {
		abs, err := filepath.Abs(loc.Path)
		if err != nil {
			return endpoint{}, fmt.Errorf("%s: %w", arg, err)
		}
		return endpoint{loc: loc, fs: transport.NewLocalFS("/"), path: filepath.ToSlash(abs)}, nil
	}

	opts := alist.Options{
		BaseURL:   loc.BaseURL,
		Username:  o.user,
		Password:  o.password,
		Token:     o.token,
		UserAgent: o.userAgent,
		Timeout:   o.timeout,
		TaskPoll:  o.pollInterval,
		Insecure:  o.insecure,
		Logger:    slog.Default(),
	}
	if loc.Server != "" {
		srv, ok := o.cfg.Server(loc.Server)
		if !ok {
			return endpoint{}, fmt.Errorf("%s: no server %q in config", arg, loc.Server)
		}
		opts.BaseURL = srv.URL
		opts.Username, opts.Password, opts.Token = srv.Username, srv.Password, srv.Token
		opts.Insecure = opts.Insecure || srv.Insecure
	}
	if loc.User != "" {
		opts.Username = loc.User
	}

	c := alist.New(opts)
	return endpoint{loc: loc, fs: c, client: c, path: loc.Path}, nil
}
