// Package contentstore implements the content-addressed blob layer
// described in spec §4.1: a map from a cryptographic digest to the raw
// bytes that hash to it, deduplicating identical content across Documents.
//
// Blobs are stored as flat files named by their hex digest under
// <data-dir>/docs/blobs/, per the persistent state layout in spec §6.
// Writes go through a temp-file-then-rename so a crash mid-write never
// leaves a partial blob visible under its final name — the filesystem
// rename is the atomic commit point, the same idiom the teacher's sqlite
// checkpoint store gets from a single transactional INSERT.
package contentstore
