package browser

import (
	"strings"
	"sync/atomic"
)

// Pool hands out proxies round-robin for direct browser launches. A nil Pool
// is valid and always returns "".
type Pool struct {
	items []string
	idx   uint64
}

func NewPool(list []string) *Pool {
	clean := make([]string, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return &Pool{items: clean}
}

func (p *Pool) Next() string {
	if p == nil {
		return ""
	}
	i := atomic.AddUint64(&p.idx, 1) - 1
	return p.items[int(i%uint64(len(p.items)))]
}
