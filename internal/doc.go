// Package internal contains the implementation packages of bundlr.
//
// # Package Organization
//
// The packages follow the order in which a build runs:
//
//   - config: layered configuration, defaults per mode and validation
//   - resolve: import specifier resolution against the filesystem
//   - graph: the module graph built from the entries, with cycle detection
//   - transform: per-extension loader chains and the transformed module store
//   - asset: inlining or emitting of binary assets
//   - chunk: splitting of the graph into entry, async and vendor chunks
//   - naming: content hashes and output file names
//   - build: the orchestrator; assembly, the root document and emission
//   - watcher: debounced file watching feeding incremental rebuilds
//   - server: the development server and its websocket hub
//
// Supporting packages are errors, logging, metrics, pool, testutils and
// version.
//
// # Data Flow
//
// A build moves through the states of build.State. The graph and the
// transform store survive between builds so that a rebuild only reparses
// the changed files and the modules they affect. Module IDs shown to users
// are slash paths relative to the project root; everything internal is
// keyed by absolute path.
package internal
