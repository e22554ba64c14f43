//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly || solaris || aix

package datalog

import (
	"golang.org/x/sys/unix"
)

// remap maps the sealed segment read-only. If mapping fails, it is a no-op
// and reads fall back to ReadAt.
func (seg *segment) remap() {
	seg.unmap()
	if seg.size == 0 || seg.f == nil {
		return
	}
	b, err := unix.Mmap(int(seg.f.Fd()), 0, int(seg.size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return
	}
	seg.data = b
}

// unmap releases any active mapping.
func (seg *segment) unmap() {
	if seg.data != nil {
		_ = unix.Munmap(seg.data)
		seg.data = nil
	}
}
