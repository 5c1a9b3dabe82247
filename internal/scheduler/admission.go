package scheduler

import "github.com/hamed0406/checkqueue/internal/domain"

const (
	DefaultCheckingLimit = 20
	DefaultIPLimit       = 3
)

// Limits bound the in-flight set.
type Limits struct {
	CheckingLimit int // max in-flight checks overall
	IPLimit       int // max in-flight checks per resolved IP
}

// Admit moves backlog entries into the in-flight set in backlog order.
//
// An entry is admitted when its IP is empty or its IP has fewer than
// IPLimit in-flight checks. Per-IP counts are rebuilt from inflight on every
// call and bumped as entries are admitted, so later entries in the same pass
// see earlier admissions. The scan stops when no free spots remain.
func Admit(inflight, backlog []*domain.CheckRequest, lim Limits) (newInflight, rest []*domain.CheckRequest, admitted int) {
	free := lim.CheckingLimit - len(inflight)
	if len(backlog) == 0 || free <= 0 {
		return inflight, backlog, 0
	}

	counts := make(map[string]int, len(inflight))
	for _, c := range inflight {
		if c.IP != "" {
			counts[c.IP]++
		}
	}

	rest = make([]*domain.CheckRequest, 0, len(backlog))
	i := 0
	for ; i < len(backlog) && free > 0; i++ {
		c := backlog[i]
		if c.IP != "" && counts[c.IP] >= lim.IPLimit {
			rest = append(rest, c)
			continue
		}
		inflight = append(inflight, c)
		if c.IP != "" {
			counts[c.IP]++
		}
		free--
		admitted++
	}
	rest = append(rest, backlog[i:]...)
	return inflight, rest, admitted
}
