// Package envcache decides whether the on-disk state of an environment can
// be reused.
//
// Every environment directory holds a small JSON snapshot of the values
// that determine its identity. A run computes a fresh snapshot and asks the
// Cache for a decision:
//
//	pending, err := cache.Check(snapshot, force)
//	if err != nil {
//	    return err
//	}
//	if pending.Action != envcache.Keep {
//	    if err := materialize(pending.Action); err != nil {
//	        pending.Abandon()
//	        return err
//	    }
//	}
//	return pending.Commit()
//
// The snapshot is persisted only by Commit, so a failed materialization
// leaves the previous snapshot in place and the next run retries. Writes
// are atomic: the file is written to a temporary name and renamed over the
// old one.
//
// A snapshot file that cannot be read or decoded is treated as absent.
package envcache
