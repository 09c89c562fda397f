// Package database provides persistent label stores for chaincrawl.
//
// Two implementations of label.Store are available:
//   - LabelDB: a single SQLite file (modernc.org/sqlite, CGO-free) holding
//     the labels and label_misses tables
//   - BadgerStore: a BadgerDB directory with msgpack-encoded records
//
// Both keep the first successful resolution per address and, when the
// negative cache is enabled, one miss timestamp per provider and address.
// Addresses are stored in lowercase hex.
package database
