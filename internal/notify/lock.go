package notify

// Lock is the cross-cutting API lock held across multi-step command flows.
// It belongs to the higher-level API surface; the core only guarantees that
// every successful Acquire is matched by exactly one Release.
type Lock interface {
	// Acquire takes the lock without blocking. It returns false if the lock
	// is already held.
	Acquire() bool
	Release()
}

// FlagLock is a non-blocking Lock for single-goroutine callers.
type FlagLock struct {
	held     bool
	acquires int
	releases int
}

// Acquire implements Lock
func (l *FlagLock) Acquire() bool {
	if l.held {
		return false
	}
	l.held = true
	l.acquires++
	return true
}

// Release implements Lock
func (l *FlagLock) Release() {
	l.held = false
	l.releases++
}

// Held reports whether the lock is currently taken
func (l *FlagLock) Held() bool { return l.held }

// Counts returns how many times the lock was acquired and released
func (l *FlagLock) Counts() (acquires, releases int) {
	return l.acquires, l.releases
}
