package sessionstore

import "github.com/haasonsaas/assistant-core/pkg/models"

// contextSnapshot captures a session's context at one point in time so that
// restore(version_index) can roll a session back (spec.md §4.5 "Version
// snapshots").
type contextSnapshot struct {
	Context models.SessionContext
	Slots   map[string]any
	State   models.SessionState
}

// snapshotRing is a fixed-size ring buffer of up to V prior snapshots,
// matching the teacher's preference for slice-based ring buffers over
// channel-based ones for bounded history (internal/sessions/compaction.go's
// turn windowing).
type snapshotRing struct {
	size   int
	buf    []contextSnapshot
	cursor int
	filled bool
}

func newSnapshotRing(size int) *snapshotRing {
	if size <= 0 {
		size = 1
	}
	return &snapshotRing{size: size, buf: make([]contextSnapshot, size)}
}

func (r *snapshotRing) push(s contextSnapshot) {
	r.buf[r.cursor] = s
	r.cursor = (r.cursor + 1) % r.size
	if r.cursor == 0 {
		r.filled = true
	}
}

// count returns how many snapshots are currently retained.
func (r *snapshotRing) count() int {
	if r.filled {
		return r.size
	}
	return r.cursor
}

// at returns the snapshot versionIndex steps back from the most recent
// (0 = most recent), or false if out of range.
func (r *snapshotRing) at(versionIndex int) (contextSnapshot, bool) {
	n := r.count()
	if versionIndex < 0 || versionIndex >= n {
		return contextSnapshot{}, false
	}
	idx := (r.cursor - 1 - versionIndex + r.size*2) % r.size
	return r.buf[idx], true
}
