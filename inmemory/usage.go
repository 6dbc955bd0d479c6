package inmemory

import (
	"context"
	"sync"

	"github.com/sharedcode/cascade"
)

type usageMeter struct {
	locker    sync.Mutex
	summaries map[string]*cascade.UsageSummary
}

// NewUsageMeter instantiates an in-memory usage meter.
func NewUsageMeter() cascade.UsageMeter {
	return &usageMeter{summaries: make(map[string]*cascade.UsageSummary)}
}

func (u *usageMeter) Get(ctx context.Context, realm string) (cascade.UsageSummary, error) {
	u.locker.Lock()
	defer u.locker.Unlock()
	if s, ok := u.summaries[realm]; ok {
		return *s, nil
	}
	return cascade.UsageSummary{Realm: realm}, nil
}

func (u *usageMeter) summary(realm string) *cascade.UsageSummary {
	s, ok := u.summaries[realm]
	if !ok {
		s = &cascade.UsageSummary{Realm: realm}
		u.summaries[realm] = s
	}
	return s
}

func (u *usageMeter) Apply(ctx context.Context, realm string, deltaPhysical, deltaLogical, deltaNodes int64) error {
	u.locker.Lock()
	defer u.locker.Unlock()
	s := u.summary(realm)
	s.PhysicalBytes += deltaPhysical
	s.LogicalBytes += deltaLogical
	s.NodeCount += deltaNodes
	s.UpdatedAt = cascade.Now()
	return nil
}

func (u *usageMeter) SetQuota(ctx context.Context, realm string, bytes int64) error {
	u.locker.Lock()
	defer u.locker.Unlock()
	s := u.summary(realm)
	s.QuotaLimit = bytes
	s.UpdatedAt = cascade.Now()
	return nil
}

func (u *usageMeter) CheckQuota(ctx context.Context, realm string, wouldAddBytes int64) (bool, cascade.UsageSummary, error) {
	u.locker.Lock()
	defer u.locker.Unlock()
	var s cascade.UsageSummary
	if cur, ok := u.summaries[realm]; ok {
		s = *cur
	} else {
		s = cascade.UsageSummary{Realm: realm}
	}
	if s.QuotaLimit == 0 {
		return true, s, nil
	}
	return s.PhysicalBytes+wouldAddBytes <= s.QuotaLimit, s, nil
}
