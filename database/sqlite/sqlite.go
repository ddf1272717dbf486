package sqlite

import (
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pihealth/pihealth/database"
	_ "modernc.org/sqlite"
)

type sqlite struct {
	db  *sqlx.DB
	cfg database.Config
	q   *database.Queries
	now func() time.Time
}

var _ database.Database = (*sqlite)(nil)

// New returns a store backed by the SQLite file named in cfg.Path. The
// modernc.org driver is pure go so the database works without CGO, and the
// persisted file stays self-contained; a pull utility may copy it wholesale.
func New(cfg database.Config) (*sqlite, error) {
	log.Tracef("sqlite.New %v", cfg.Path)

	if cfg.Path == "" {
		return nil, fmt.Errorf("database path required")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", cfg.Path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqlite{
		db:  db,
		cfg: cfg,
		q:   cfg.Queries(),
		now: time.Now,
	}, nil
}

// Open verifies the connection and creates the schema. The schema statements
// all carry IF NOT EXISTS so this is safe to run on every startup.
func (s *sqlite) Open() error {
	log.Tracef("sqlite.Open")

	if err := s.db.Ping(); err != nil {
		return err
	}

	// Verify database version
	var version int
	if err := s.db.Get(&version, s.q.SelectVersion); err != nil {
		log.Infof("Creating database schema version %v", database.Version)
		for k, v := range s.q.Schema {
			if _, err := s.db.Exec(v); err != nil {
				return fmt.Errorf("schema %v: %w", k, err)
			}
		}
		if err := s.db.Get(&version, s.q.SelectVersion); err != nil {
			return err
		}
	}

	// Run schema updates
	if version != database.Version {
		return fmt.Errorf("database version %v, want %v", version,
			database.Version)
	}

	return nil
}

func (s *sqlite) Close() error {
	log.Tracef("sqlite.Close")

	return s.db.Close()
}

// Insert writes the snapshot row and all of its interface rows in a single
// transaction. On any failure the transaction rolls back and nothing from
// the call becomes visible. Interface rows are written in sorted interface
// name order to keep the per-snapshot row order deterministic.
func (s *sqlite) Insert(m *database.MetricSnapshot, network map[string]database.NetCounters) error {
	log.Tracef("sqlite.Insert")

	if err := m.Validate(); err != nil {
		return err
	}
	interfaces := make([]string, 0, len(network))
	for name := range network {
		if name == "" {
			return fmt.Errorf("%w: empty interface name",
				database.ErrValidation)
		}
		interfaces = append(interfaces, name)
	}
	sort.Strings(interfaces)

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.NamedExec(s.q.InsertMetric, m)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, name := range interfaces {
		ns := database.NetworkStat{
			MetricID:    uint64(id),
			Interface:   name,
			NetCounters: network[name],
		}
		if _, err := tx.NamedExec(s.q.InsertNetworkStat, &ns); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	m.ID = uint64(id)

	log.Debugf("inserted snapshot %v with %v interfaces", m.ID,
		len(interfaces))
	return nil
}

func (s *sqlite) Recent(limit int) ([]database.SnapshotRow, error) {
	log.Tracef("sqlite.Recent %v", limit)

	if limit < 0 {
		return nil, fmt.Errorf("negative limit: %v", limit)
	}
	var metrics []database.MetricSnapshot
	if err := s.db.Select(&metrics, s.q.SelectRecent, limit); err != nil {
		return nil, err
	}
	return s.attachNetwork(metrics)
}

func (s *sqlite) ByTimespan(hours int) ([]database.SnapshotRow, error) {
	log.Tracef("sqlite.ByTimespan %v", hours)

	cutoff, err := s.cutoff(hours)
	if err != nil {
		return nil, err
	}
	var metrics []database.MetricSnapshot
	if err := s.db.Select(&metrics, s.q.SelectByTimespan, cutoff); err != nil {
		return nil, err
	}
	return s.attachNetwork(metrics)
}

func (s *sqlite) ByInterface(iface string, hours int) ([]database.InterfaceStat, error) {
	log.Tracef("sqlite.ByInterface %v %v", iface, hours)

	cutoff, err := s.cutoff(hours)
	if err != nil {
		return nil, err
	}
	stats := []database.InterfaceStat{}
	err = s.db.Select(&stats, s.q.SelectByInterface, iface, cutoff)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// cutoff returns the exclusive lower timestamp bound for a window of the
// given hours. Now is evaluated once per query so the bound is stable across
// the whole scan. A row exactly hours old falls outside the window.
func (s *sqlite) cutoff(hours int) (string, error) {
	if hours < 0 {
		return "", fmt.Errorf("negative hours: %v", hours)
	}
	t := s.now().Add(-time.Duration(hours) * time.Hour)
	return database.FormatTimestamp(t), nil
}

// attachNetwork joins the network stat rows onto their snapshots. All stats
// for the result set are fetched in one query and grouped in memory; within
// a snapshot the rows keep their insertion order.
func (s *sqlite) attachNetwork(metrics []database.MetricSnapshot) ([]database.SnapshotRow, error) {
	rows := make([]database.SnapshotRow, len(metrics))
	for k, m := range metrics {
		rows[k].MetricSnapshot = m
	}
	if len(metrics) == 0 {
		return rows, nil
	}

	ids := make([]uint64, len(metrics))
	for k, m := range metrics {
		ids[k] = m.ID
	}
	query, args, err := sqlx.In(s.q.SelectNetworkByMetricIDs, ids)
	if err != nil {
		return nil, err
	}
	var stats []database.NetworkStat
	if err := s.db.Select(&stats, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	byMetric := make(map[uint64][]database.NetworkStat, len(metrics))
	for _, ns := range stats {
		byMetric[ns.MetricID] = append(byMetric[ns.MetricID], ns)
	}
	for k := range rows {
		rows[k].Network = byMetric[rows[k].ID]
	}
	return rows, nil
}
