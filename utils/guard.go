package utils

// Guard runs a cleanup on a deferred OnFail unless Success was called first. It covers
// constructors that open a resource and can still fail before handing it back.
type Guard struct {
	cleanup func()
	done    bool
}

// NewGuard returns a guard for cleanup.
func NewGuard(cleanup func()) *Guard {
	return &Guard{cleanup: cleanup}
}

// OnFail runs the cleanup if Success has not been called.
func (g *Guard) OnFail() {
	if !g.done {
		g.cleanup()
	}
}

// Success disarms the guard.
func (g *Guard) Success() {
	g.done = true
}
