//go:build windows

package datalog

// Mapping is disabled on Windows; reads use ReadAt.

func (seg *segment) remap() {
	seg.data = nil
}

func (seg *segment) unmap() {}
