package recorder

import (
	"fmt"

	"github.com/cxd309/tms-track/internal/event"
	"github.com/cxd309/tms-track/internal/service"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// FiringRow is the stored form of an event firing.
type FiringRow struct {
	ID            uint    `gorm:"primarykey"`
	SimulationID  string  `gorm:"size:64;index:idx_firing_sim_time"`
	Time          float64 `gorm:"index:idx_firing_sim_time"`
	Kind          string  `gorm:"size:32"`
	Direction     int
	TriggerType   string `gorm:"size:32"`
	Train         string `gorm:"size:64"`
	CarIndex      int
	TrackIndex    int
	TrackPosition float64
	Detail        string `gorm:"size:255"`
}

func (FiringRow) TableName() string { return "firings" }

// SnapshotRow is the stored form of a service snapshot. World coordinates are those of the leading
// axle and are only set when the snapshot carried followers.
type SnapshotRow struct {
	ID             uint    `gorm:"primarykey"`
	SimulationID   string  `gorm:"size:64;index:idx_snapshot_sim_time"`
	Time           float64 `gorm:"index:idx_snapshot_sim_time"`
	ServiceID      string  `gorm:"size:64;index"`
	TrackIndex     int
	Position       float64
	State          string `gorm:"size:16"`
	Velocity       float64
	RemainingDwell float64
	NextStop       string `gorm:"size:64"`
	StationIndex   int
	WorldX         float64
	WorldY         float64
	WorldZ         float64
	Pitch          float64
	Cant           float64
	Adhesion       float64
}

func (SnapshotRow) TableName() string { return "snapshots" }

// SQLite persists records with GORM. Each record is written as it arrives.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates the schema. An empty path
// opens a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %q: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB: %w", err)
	}
	// One connection keeps an in-memory database alive and shared.
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	if err := db.AutoMigrate(&FiringRow{}, &SnapshotRow{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) RecordFiring(simulationID string, f event.Firing) error {
	row := FiringRow{
		SimulationID:  simulationID,
		Time:          f.Time,
		Kind:          string(f.Kind),
		Direction:     f.Direction,
		TriggerType:   f.TriggerType.String(),
		Train:         f.Train,
		CarIndex:      f.CarIndex,
		TrackIndex:    f.TrackIndex,
		TrackPosition: f.TrackPosition,
		Detail:        f.Detail,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("recording firing: %w", err)
	}
	return nil
}

func (s *SQLite) RecordSnapshot(simulationID string, time float64, l service.ServiceLog) error {
	row := SnapshotRow{
		SimulationID:   simulationID,
		Time:           time,
		ServiceID:      l.ServiceID,
		TrackIndex:     l.TrackIndex,
		Position:       l.Position,
		State:          string(l.State),
		Velocity:       l.Velocity,
		RemainingDwell: l.RemainingDwell,
		NextStop:       l.NextStop,
		StationIndex:   l.StationIndex,
	}
	if len(l.Followers) > 0 {
		lead := l.Followers[0]
		row.WorldX, row.WorldY, row.WorldZ = lead.World[0], lead.World[1], lead.World[2]
		row.Pitch = lead.Pitch
		row.Cant = lead.CurveCant
		row.Adhesion = lead.Adhesion
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("recording snapshot: %w", err)
	}
	return nil
}

// Firings returns the stored firings of a simulation in time order.
func (s *SQLite) Firings(simulationID string) ([]FiringRow, error) {
	var rows []FiringRow
	err := s.db.Where("simulation_id = ?", simulationID).Order("time, id").Find(&rows).Error
	return rows, err
}

// Snapshots returns the stored snapshots of a simulation in time order.
func (s *SQLite) Snapshots(simulationID string) ([]SnapshotRow, error) {
	var rows []SnapshotRow
	err := s.db.Where("simulation_id = ?", simulationID).Order("time, id").Find(&rows).Error
	return rows, err
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
