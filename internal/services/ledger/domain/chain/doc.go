// Package chain derives record identifiers and the hashes that link ledger
// records into a chain.
//
// Every function here is pure: the same fields always produce the same id and
// hash on any platform. Record content is reduced to a canonical string with
// a stable key order before hashing, so callers may list fields in any order.
package chain
