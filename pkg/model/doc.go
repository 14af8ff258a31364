// Package model describes the base objects manipulated by revstore.
//
// The package exposes a model for repository metadata.
//
// The object model for revstore is composed of:
//
//  Revisions:
//    A revision is an immutable, numbered snapshot of the stored data.
//    Revision numbers are assigned densely, starting at 0.
//
//  Shards:
//    Revisions are grouped on disk in fixed-size shards. A shard whose
//    last revision has been committed is eligible for packing, which
//    rewrites its loose files into a single pack plus index sidecars.
//
//  Revision properties:
//    Mutable, unversioned key/value metadata attached to each revision
//    (author, date, log message). Properties of old revisions are
//    consolidated into revprop pack files.
//
//  Transactions:
//    A transaction stages the content and properties of the revision
//    being built. Transaction identifiers combine the base revision
//    with a repository-wide counter.
//
//  Format:
//    The format descriptor records the capability level of a repository
//    on disk: shard layout and the addressing mode of revision items.
package model
