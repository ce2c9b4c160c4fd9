package main

import (
	"context"
	"os"
	"time"

	"github.com/chazu/pumpkin/manifest"
	"github.com/chazu/pumpkin/server"
)

// cmdServe handles `pumpkin serve`.
//
//	pumpkin serve                     # [server] addr, default :4567
//	pumpkin serve -addr :8080 -db s.db
func cmdServe(args []string) int {
	var flags commonFlags
	fs := newFlagSet("serve", "[options]")
	flags.register(fs)
	addr := fs.String("addr", "", "Listen address (overrides [server] addr)")
	dbPath := fs.String("db", "", "Session database (overrides [server] sessions-db)")
	timeout := fs.Duration("timeout", 10*time.Second, "Wall-clock limit of each run")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	proj, err := loadProject(context.Background(), &flags)
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}

	opts, closeStore, err := serverOptions(proj, *dbPath, *timeout)
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	defer closeStore()

	srv, err := server.New(opts...)
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	defer srv.Stop()

	listen := *addr
	if listen == "" {
		listen = proj.manifest.Server.Addr
	}
	if listen == "" {
		listen = manifest.DefaultAddr
	}
	if err := srv.ListenAndServe(listen); err != nil {
		reportError(os.Stderr, err)
		return 1
	}
	return 0
}

// serverOptions builds the server configuration from the project, opening
// the session store when one is configured.
func serverOptions(proj *project, dbFlag string, timeout time.Duration) ([]server.ServerOption, func(), error) {
	opts := []server.ServerOption{
		server.WithLimits(proj.limits),
		server.WithTimeout(timeout),
	}
	if len(proj.modules) > 0 {
		opts = append(opts, server.WithModules(proj.modules))
	}

	path := dbFlag
	if path == "" {
		path = proj.manifest.SessionsDBPath()
	}
	if path == "" {
		return opts, func() {}, nil
	}
	store, err := server.OpenStore(path)
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, server.WithStore(store))
	return opts, func() { store.Close() }, nil
}
