// Package core implements the engine of a file-based, append-only
// revisioned storage: committing revisions, packing closed shards into
// single pack files with their indexes, packing revision properties,
// and verifying, recovering and upgrading repositories.
//
// All repository I/O goes through the storage.Store abstraction, so a
// repository can live on the OS filesystem or on any afero backend.
// On-disk state is only ever changed by whole-file replacement; the
// watermark file min-unpacked-rev is the single commit point deciding
// whether a shard is served loose or packed.
package core
