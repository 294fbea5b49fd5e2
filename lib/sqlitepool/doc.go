// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the quarry-standard SQLite connection
// pool.
//
// Quarry keeps its local structured state in SQLite: the install
// database that records staged packages and the patches applied to
// them. This package wraps zombiezen.com/go/sqlite with defaults
// tuned for a short-lived CLI process: WAL journal mode, NORMAL
// synchronous, foreign keys on, and a busy timeout so two quarry
// invocations racing on the same database wait instead of failing.
//
// The pool is built on zombiezen's sqlitex.Pool, which manages a
// fixed-size set of connections. Callers [Pool.Take] a connection,
// perform work, and [Pool.Put] it back. Connections are NOT safe for
// concurrent use. Each goroutine must hold its own connection for the
// duration of its work.
//
// # Pragmas
//
// Every connection in the pool is initialized with these pragmas:
//
//   - journal_mode=WAL: write-ahead logging so a long staging write
//     never blocks a concurrent `quarry find` read.
//   - synchronous=NORMAL: transactions survive process crashes. Not
//     durable across power failure, which is acceptable because the
//     install database is rebuildable from the stage trees on disk.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock instead
//     of returning SQLITE_BUSY immediately.
//   - foreign_keys=ON: the install database cascades patch records
//     when a stage row is removed. SQLite defaults this off per
//     connection, so it is set here where every connection passes.
//   - cache_size=-2048: 2 MB page cache per connection. The install
//     database holds thousands of rows, not millions.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/home/build/.quarry/installs.db",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// # Design
//
// This package is intentionally thin: it applies standard pragmas and
// exposes the underlying zombiezen types directly. There is no attempt
// to abstract away SQLite's connection model or invent a query builder.
// Callers write SQL, use sqlitex.Execute for cached statements, and
// manage transactions with sqlitex.ImmediateTransaction. The goal is a
// shared foundation (one dependency, one set of pragmas, one pool
// pattern) without an abstraction layer that fights SQLite's strengths.
package sqlitepool
