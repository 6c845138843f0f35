// Package registry implements the append-only, hash-chained store shared by
// every ledger record kind.
//
// A Registry owns one ordered chain of records. Append validates a payload,
// derives its identifier, rejects natural-key duplicates, runs the kind's
// rules, links the record to the current head and indexes it. The whole
// append path runs under a single lock so sequence numbers and links are
// assigned in admission order. Reads return copies taken under a read lock,
// so callers never observe a partially applied append.
//
// Integrity violations are only reported by VerifyChainIntegrity. The
// registry never repairs a chain.
package registry
