package cassandra

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/sharedcode/cascade"
)

type usageMeter struct{}

// NewUsageMeter instantiates the Cassandra-backed usage meter. Apply runs as a
// versioned LWT read-modify-write so concurrent deltas never lose updates.
func NewUsageMeter() cascade.UsageMeter {
	return &usageMeter{}
}

func (u *usageMeter) Get(ctx context.Context, realm string) (cascade.UsageSummary, error) {
	s, _, err := u.get(ctx, realm)
	return s, err
}

func (u *usageMeter) get(ctx context.Context, realm string) (cascade.UsageSummary, int64, error) {
	if connection == nil {
		return cascade.UsageSummary{}, 0, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT physical_bytes, logical_bytes, node_count, quota_limit, updated_at, ver FROM %s.usage WHERE realm = ?;", connection.Config.Keyspace)
	qry := connection.Session.Query(selectStatement, realm).WithContext(ctx)
	if connection.Config.ConsistencyBook.UsageGet > gocql.Any {
		qry.Consistency(connection.Config.ConsistencyBook.UsageGet)
	}
	s := cascade.UsageSummary{Realm: realm}
	var ver int64
	if err := qry.Scan(&s.PhysicalBytes, &s.LogicalBytes, &s.NodeCount, &s.QuotaLimit, &s.UpdatedAt, &ver); err != nil {
		if err == gocql.ErrNotFound {
			// Absent summary reads as all-zero.
			return s, -1, nil
		}
		return s, 0, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return s, ver, nil
}

func (u *usageMeter) Apply(ctx context.Context, realm string, deltaPhysical, deltaLogical, deltaNodes int64) error {
	return u.mutate(ctx, realm, func(s *cascade.UsageSummary) {
		s.PhysicalBytes += deltaPhysical
		s.LogicalBytes += deltaLogical
		s.NodeCount += deltaNodes
	})
}

func (u *usageMeter) SetQuota(ctx context.Context, realm string, bytes int64) error {
	return u.mutate(ctx, realm, func(s *cascade.UsageSummary) {
		s.QuotaLimit = bytes
	})
}

func (u *usageMeter) mutate(ctx context.Context, realm string, apply func(*cascade.UsageSummary)) error {
	if connection == nil {
		return errClosed()
	}
	for i := 0; i < casAttempts; i++ {
		s, ver, err := u.get(ctx, realm)
		if err != nil {
			return err
		}
		apply(&s)
		now := cascade.Now()
		var applied bool
		if ver < 0 {
			insertStatement := fmt.Sprintf("INSERT INTO %s.usage (realm, physical_bytes, logical_bytes, node_count, quota_limit, updated_at, ver) VALUES(?,?,?,?,?,?,?) IF NOT EXISTS;", connection.Config.Keyspace)
			applied, err = connection.Session.Query(insertStatement, realm, s.PhysicalBytes, s.LogicalBytes, s.NodeCount, s.QuotaLimit, now, int64(0)).WithContext(ctx).ScanCAS()
		} else {
			updateStatement := fmt.Sprintf("UPDATE %s.usage SET physical_bytes = ?, logical_bytes = ?, node_count = ?, quota_limit = ?, updated_at = ?, ver = ? WHERE realm = ? IF ver = ?;", connection.Config.Keyspace)
			applied, err = connection.Session.Query(updateStatement, s.PhysicalBytes, s.LogicalBytes, s.NodeCount, s.QuotaLimit, now, ver+1, realm, ver).WithContext(ctx).ScanCAS()
		}
		if err != nil {
			return cascade.Error{Code: cascade.Transient, Err: err}
		}
		if applied {
			return nil
		}
	}
	return cascade.Error{Code: cascade.Transient, Err: fmt.Errorf("usage update of %s lost %d CAS rounds", realm, casAttempts)}
}

func (u *usageMeter) CheckQuota(ctx context.Context, realm string, wouldAddBytes int64) (bool, cascade.UsageSummary, error) {
	s, err := u.Get(ctx, realm)
	if err != nil {
		return false, s, err
	}
	if s.QuotaLimit == 0 {
		return true, s, nil
	}
	return s.PhysicalBytes+wouldAddBytes <= s.QuotaLimit, s, nil
}
