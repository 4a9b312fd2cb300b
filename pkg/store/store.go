// Package store persists canonical flight legs with gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"flightsync/pkg/config"
	"flightsync/pkg/types"
)

var (
	// ErrOpen means the database could not be reached.
	ErrOpen = errors.New("failed to open store")
	// ErrMigrate means the schema could not be prepared.
	ErrMigrate = errors.New("failed to prepare schema")
)

// LegRecord is the persisted row for one flight leg. The natural key is
// (flight_key, anchor_utc, dep_code).
type LegRecord struct {
	ID uint `gorm:"primaryKey"`

	FlightKey string    `gorm:"size:80;not null;uniqueIndex:idx_leg_natural_key,priority:1"`
	AnchorUTC time.Time `gorm:"column:anchor_utc;not null;uniqueIndex:idx_leg_natural_key,priority:2"`
	DepCode   string    `gorm:"size:8;not null;default:'';uniqueIndex:idx_leg_natural_key,priority:3"`
	LegKey    string    `gorm:"size:128;not null;index"`

	FlightNumber    string `gorm:"size:16;index"`
	Callsign        string `gorm:"size:16;index"`
	Airline         string `gorm:"size:128"`
	AircraftReg     string `gorm:"size:16"`
	AircraftType    string `gorm:"size:16"`
	ArrCode         string `gorm:"size:8;index"`
	ReportedArrCode string `gorm:"size:8"`

	ScheduledDepartureUTC *time.Time `gorm:"column:scheduled_departure_utc;index"`
	EstimatedDepartureUTC *time.Time `gorm:"column:estimated_departure_utc"`
	ActualDepartureUTC    *time.Time `gorm:"column:actual_departure_utc"`
	ScheduledArrivalUTC   *time.Time `gorm:"column:scheduled_arrival_utc;index"`
	EstimatedArrivalUTC   *time.Time `gorm:"column:estimated_arrival_utc"`
	ActualArrivalUTC      *time.Time `gorm:"column:actual_arrival_utc"`

	DelayMinutes *int
	Status       string `gorm:"size:16;not null;default:'scheduled'"`
	StatusOrigin string `gorm:"size:16;not null;default:'provider'"`

	Codeshares  datatypes.JSONSlice[string]
	IsCodeshare bool
	Source      string `gorm:"size:128"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (LegRecord) TableName() string {
	return "flight_legs"
}

// Store reads and writes flight legs.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
// Connection failures wrap ErrOpen; schema failures wrap ErrMigrate.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrOpen, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(200 * time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if cfg.Driver == "" || cfg.Driver == "sqlite" {
		// SQLite serializes writers; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&LegRecord{}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMigrate, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Window selects persisted legs for one airport and direction whose times
// for that direction fall in [From, To).
type Window struct {
	Airport   string
	Direction types.Direction
	From      time.Time
	To        time.Time
}

// QueryWindow returns the legs in w ordered by scheduled time.
func (s *Store) QueryWindow(ctx context.Context, w Window) ([]types.FlightLeg, error) {
	codeCol, sched, est, act := "arr_code", "scheduled_arrival_utc", "estimated_arrival_utc", "actual_arrival_utc"
	if w.Direction == types.DirectionDeparture {
		codeCol, sched, est, act = "dep_code", "scheduled_departure_utc", "estimated_departure_utc", "actual_departure_utc"
	}
	from, to := w.From.UTC(), w.To.UTC()

	var rows []LegRecord
	err := s.db.WithContext(ctx).
		Where(codeCol+" = ?", w.Airport).
		Where(s.db.
			Where(sched+" >= ? AND "+sched+" < ?", from, to).
			Or(est+" >= ? AND "+est+" < ?", from, to).
			Or(act+" >= ? AND "+act+" < ?", from, to)).
		Order("anchor_utc, flight_key").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query legs: %w", err)
	}

	legs := make([]types.FlightLeg, 0, len(rows))
	for i := range rows {
		legs = append(legs, rows[i].toLeg())
	}
	return legs, nil
}

// Count returns the number of persisted legs.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&LegRecord{}).Count(&n).Error
	return n, err
}

// naturalKey derives the unique index columns from a leg. A grouping key
// already carries them; otherwise they are computed from the leg itself.
func naturalKey(leg *types.FlightLeg) (string, time.Time, string) {
	if parts := strings.Split(leg.LegKey, "|"); len(parts) == 3 && parts[0] != "" {
		if anchor, err := time.Parse(time.RFC3339, parts[1]); err == nil || parts[1] == "" {
			return parts[0], anchor.UTC(), parts[2]
		}
	}

	var anchor time.Time
	if t := leg.KeyTime(); t != nil {
		anchor = t.UTC()
	}
	flightKey := leg.FlightKey()
	if flightKey == "" {
		flightKey = leg.LegKey
	}
	return flightKey, anchor, leg.DepCode
}

func fromLeg(leg *types.FlightLeg) LegRecord {
	flightKey, anchor, dep := naturalKey(leg)
	return LegRecord{
		FlightKey:             flightKey,
		AnchorUTC:             anchor,
		DepCode:               dep,
		LegKey:                leg.LegKey,
		FlightNumber:          leg.FlightNumber,
		Callsign:              leg.Callsign,
		Airline:               leg.AirlineName,
		AircraftReg:           leg.AircraftReg,
		AircraftType:          leg.AircraftType,
		ArrCode:               leg.ArrCode,
		ReportedArrCode:       leg.ReportedArrCode,
		ScheduledDepartureUTC: utc(leg.ScheduledDep),
		EstimatedDepartureUTC: utc(leg.EstimatedDep),
		ActualDepartureUTC:    utc(leg.ActualDep),
		ScheduledArrivalUTC:   utc(leg.ScheduledArr),
		EstimatedArrivalUTC:   utc(leg.EstimatedArr),
		ActualArrivalUTC:      utc(leg.ActualArr),
		DelayMinutes:          leg.DelayMinutes,
		Status:                string(leg.Status),
		StatusOrigin:          string(leg.StatusOrigin),
		Codeshares:            datatypes.NewJSONSlice(leg.Codeshares),
		IsCodeshare:           leg.IsCodeshare,
		Source:                leg.Source,
	}
}

func (r *LegRecord) toLeg() types.FlightLeg {
	leg := types.FlightLeg{
		LegKey:          r.LegKey,
		FlightNumber:    r.FlightNumber,
		Callsign:        r.Callsign,
		OperatingCode:   r.Callsign,
		AirlineName:     r.Airline,
		AircraftReg:     r.AircraftReg,
		AircraftType:    r.AircraftType,
		DepCode:         r.DepCode,
		ArrCode:         r.ArrCode,
		ReportedArrCode: r.ReportedArrCode,
		ScheduledDep:    utc(r.ScheduledDepartureUTC),
		EstimatedDep:    utc(r.EstimatedDepartureUTC),
		ActualDep:       utc(r.ActualDepartureUTC),
		ScheduledArr:    utc(r.ScheduledArrivalUTC),
		EstimatedArr:    utc(r.EstimatedArrivalUTC),
		ActualArr:       utc(r.ActualArrivalUTC),
		DelayMinutes:    r.DelayMinutes,
		Status:          types.Status(r.Status),
		StatusOrigin:    types.StatusOrigin(r.StatusOrigin),
		IsCodeshare:     r.IsCodeshare,
		Source:          r.Source,
	}
	if leg.OperatingCode == "" {
		leg.OperatingCode = r.FlightNumber
	}
	if len(r.Codeshares) > 0 {
		leg.Codeshares = append([]string(nil), r.Codeshares...)
	}
	return leg
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
