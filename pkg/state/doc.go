// Package state tracks which posts and stories have already been processed
// for each monitored account, so a scheduled run never reprocesses or loses
// an item. The snapshot is a JSON file keyed by username; a missing file is
// an empty state, an unparsable file recovers to empty state, and saves are
// atomic (temp file + fsync + rename) so a crash never leaves a partial
// snapshot under the canonical name.
package state
