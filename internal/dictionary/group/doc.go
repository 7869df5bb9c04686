// Package group aggregates several phrase tables into one.
//
// A group is configured with an ordered list of member tables. Their score
// vectors are laid out side by side: member i owns the components
// [offset_i, offset_i+K_i) of the group vector, where offsets follow the
// member order. A lookup asks every member for the source phrase and merges
// candidates with the same surface form (words and alignment). Segments of
// members that did not propose a candidate keep the default scores.
//
// With restrict enabled only the first member may introduce candidates;
// later members only contribute scores for candidates it already proposed.
//
// Collections returned by Lookup stay in a per-sentence cache until
// CleanUpAfterSentence, which also cleans up every member.
package group
