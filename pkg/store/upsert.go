package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"flightsync/pkg/types"
)

// Outcome classifies a single upsert.
type Outcome string

const (
	Inserted Outcome = "inserted"
	Updated  Outcome = "updated"
)

// mutableColumns are rewritten on key collisions; key columns never are.
var mutableColumns = []string{
	"leg_key", "flight_number", "callsign", "airline", "aircraft_reg", "aircraft_type",
	"arr_code", "reported_arr_code",
	"scheduled_departure_utc", "estimated_departure_utc", "actual_departure_utc",
	"scheduled_arrival_utc", "estimated_arrival_utc", "actual_arrival_utc",
	"delay_minutes", "status", "status_origin", "codeshares", "is_codeshare", "source",
	"updated_at",
}

var keyColumns = []clause.Column{{Name: "flight_key"}, {Name: "anchor_utc"}, {Name: "dep_code"}}

// Upsert writes leg under its natural key. An existing row keeps values the
// incoming leg leaves empty, and a stored terminal status is only replaced
// by a strictly higher priority one.
func (s *Store) Upsert(ctx context.Context, leg types.FlightLeg) (Outcome, error) {
	incoming := fromLeg(&leg)
	outcome := Inserted

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing LegRecord
		err := tx.Where("flight_key = ? AND anchor_utc = ? AND dep_code = ?",
			incoming.FlightKey, incoming.AnchorUTC, incoming.DepCode).
			Take(&existing).Error
		switch {
		case err == nil:
			outcome = Updated
			merged := reconcile(existing, incoming)
			return tx.Model(&LegRecord{ID: existing.ID}).Select(mutableColumns).Updates(&merged).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		// A concurrent writer may insert the same key between the read and
		// the write; the conflict clause turns that into an update.
		return tx.Clauses(clause.OnConflict{
			Columns:   keyColumns,
			DoUpdates: clause.AssignmentColumns(mutableColumns),
		}).Create(&incoming).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert %s: %w", leg.LegKey, err)
	}
	return outcome, nil
}

// reconcile folds incoming onto the stored row.
func reconcile(stored, incoming LegRecord) LegRecord {
	out := incoming
	out.ID = stored.ID
	out.CreatedAt = stored.CreatedAt

	keepString(&out.LegKey, stored.LegKey)
	keepString(&out.FlightNumber, stored.FlightNumber)
	keepString(&out.Callsign, stored.Callsign)
	keepString(&out.Airline, stored.Airline)
	keepString(&out.AircraftReg, stored.AircraftReg)
	keepString(&out.AircraftType, stored.AircraftType)
	keepString(&out.ArrCode, stored.ArrCode)
	keepString(&out.ReportedArrCode, stored.ReportedArrCode)
	keepString(&out.Source, stored.Source)

	if out.ScheduledDepartureUTC == nil {
		out.ScheduledDepartureUTC = stored.ScheduledDepartureUTC
	}
	if out.EstimatedDepartureUTC == nil {
		out.EstimatedDepartureUTC = stored.EstimatedDepartureUTC
	}
	if out.ActualDepartureUTC == nil {
		out.ActualDepartureUTC = stored.ActualDepartureUTC
	}
	if out.ScheduledArrivalUTC == nil {
		out.ScheduledArrivalUTC = stored.ScheduledArrivalUTC
	}
	if out.EstimatedArrivalUTC == nil {
		out.EstimatedArrivalUTC = stored.EstimatedArrivalUTC
	}
	if out.ActualArrivalUTC == nil {
		out.ActualArrivalUTC = stored.ActualArrivalUTC
	}
	if out.DelayMinutes == nil {
		out.DelayMinutes = stored.DelayMinutes
	}

	storedStatus, newStatus := types.Status(stored.Status), types.Status(out.Status)
	if newStatus == "" || (storedStatus.IsTerminal() && newStatus.Priority() <= storedStatus.Priority()) {
		out.Status = stored.Status
		out.StatusOrigin = stored.StatusOrigin
	}

	out.Codeshares = unionCodes(stored.Codeshares, out.Codeshares, out.FlightNumber, out.Callsign)
	return out
}

func keepString(dst *string, stored string) {
	if *dst == "" {
		*dst = stored
	}
}

// unionCodes merges two code sets, dropping the leg's own codes.
func unionCodes(a, b datatypes.JSONSlice[string], own ...string) datatypes.JSONSlice[string] {
	seen := map[string]bool{}
	for _, c := range own {
		if c != "" {
			seen[strings.ToUpper(c)] = true
		}
	}
	var out []string
	for _, set := range [][]string{a, b} {
		for _, c := range set {
			c = strings.ToUpper(c)
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return datatypes.NewJSONSlice(out)
}
