package client

import "sync"

// handle wraps a Release so it runs at most once.
type handle struct {
	once    sync.Once
	release Release
}

func newHandle(r Release) *handle {
	return &handle{release: r}
}

func (h *handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}
