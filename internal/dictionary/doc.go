// Package dictionary defines the member model contract shared by every
// phrase table, the sentence-scoped collection cache and the error kinds
// tables report.
//
// Concrete tables live in subpackages:
//   - memory: text rule table held in memory
//   - ondisk: BadgerDB-backed table with an LRU in front
//   - suffixarray: per-sentence grammar loaded before each sentence
//   - group: aggregates several tables into one score vector
package dictionary
