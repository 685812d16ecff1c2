// Package flock provides cross-platform file locking utilities.
//
// Every LEGION state file (task queue, farm list, selector registry) lives in
// a session directory guarded by one lock file, so two processes can never
// interleave writes to the same partition. The lock is exclusive and
// non-blocking and works on both Unix and Windows systems.
//
// Usage:
//
//	file, _ := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
//	if err := flock.Exclusive(file.Fd()); err != nil {
//	    // Lock not acquired - another process owns the partition
//	}
//	defer flock.Unlock(file.Fd())
package flock
