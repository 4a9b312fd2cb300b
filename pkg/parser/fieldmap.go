package parser

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldMap lists, per canonical field, the provider paths that may carry it,
// most preferred first.
type FieldMap struct {
	FlightNumber []string `validate:"required,dive,required"`
	Callsign     []string `validate:"omitempty,dive,required"`
	FlightDigits []string `validate:"omitempty,dive,required"`
	AirlineName  []string `validate:"omitempty,dive,required"`
	AirlineIATA  []string `validate:"omitempty,dive,required"`
	AirlineICAO  []string `validate:"omitempty,dive,required"`
	AircraftReg  []string `validate:"omitempty,dive,required"`
	AircraftType []string `validate:"omitempty,dive,required"`

	DepCode     []string `validate:"required,dive,required"`
	DepTimezone []string `validate:"omitempty,dive,required"`
	ArrCode     []string `validate:"required,dive,required"`
	ArrTimezone []string `validate:"omitempty,dive,required"`
	ArrActual   []string `validate:"omitempty,dive,required"`

	ScheduledDep []string `validate:"omitempty,dive,required"`
	EstimatedDep []string `validate:"omitempty,dive,required"`
	ActualDep    []string `validate:"omitempty,dive,required"`
	ScheduledArr []string `validate:"omitempty,dive,required"`
	EstimatedArr []string `validate:"omitempty,dive,required"`
	ActualArr    []string `validate:"omitempty,dive,required"`

	DepDelay []string `validate:"omitempty,dive,required"`
	ArrDelay []string `validate:"omitempty,dive,required"`
	Status   []string `validate:"omitempty,dive,required"`

	// Codeshare paths describe the operating flight behind a marketing row.
	Codeshare             []string `validate:"omitempty,dive,required"`
	CodeshareFlightNumber []string `validate:"omitempty,dive,required"`
	CodeshareCallsign     []string `validate:"omitempty,dive,required"`
	CodeshareAirlineICAO  []string `validate:"omitempty,dive,required"`
	CodeshareAirlineName  []string `validate:"omitempty,dive,required"`
	CodeshareDigits       []string `validate:"omitempty,dive,required"`
}

var validate = validator.New()

// Validate checks that the identity and route fields have at least one path.
func (fm FieldMap) Validate() error {
	return validate.Struct(fm)
}

// Fields is a row projected through a FieldMap, as raw strings.
type Fields struct {
	FlightNumber string
	Callsign     string
	FlightDigits string
	AirlineName  string
	AirlineIATA  string
	AirlineICAO  string
	AircraftReg  string
	AircraftType string

	DepCode     string
	DepTimezone string
	ArrCode     string
	ArrTimezone string
	ArrActual   string

	ScheduledDep string
	EstimatedDep string
	ActualDep    string
	ScheduledArr string
	EstimatedArr string
	ActualArr    string

	DepDelay string
	ArrDelay string
	Status   string

	HasCodeshare          bool
	CodeshareFlightNumber string
	CodeshareCallsign     string
	CodeshareAirlineICAO  string
	CodeshareAirlineName  string
	CodeshareDigits       string
}

// Extract projects row through fm. Codes are upper-cased.
func (fm FieldMap) Extract(row RawRow) Fields {
	code := func(paths []string) string {
		return strings.ToUpper(strings.ReplaceAll(row.Str(paths...), " ", ""))
	}
	return Fields{
		FlightNumber: code(fm.FlightNumber),
		Callsign:     code(fm.Callsign),
		FlightDigits: row.Str(fm.FlightDigits...),
		AirlineName:  row.Str(fm.AirlineName...),
		AirlineIATA:  code(fm.AirlineIATA),
		AirlineICAO:  code(fm.AirlineICAO),
		AircraftReg:  strings.ToUpper(row.Str(fm.AircraftReg...)),
		AircraftType: strings.ToUpper(row.Str(fm.AircraftType...)),

		DepCode:     code(fm.DepCode),
		DepTimezone: row.Str(fm.DepTimezone...),
		ArrCode:     code(fm.ArrCode),
		ArrTimezone: row.Str(fm.ArrTimezone...),
		ArrActual:   code(fm.ArrActual),

		ScheduledDep: row.Str(fm.ScheduledDep...),
		EstimatedDep: row.Str(fm.EstimatedDep...),
		ActualDep:    row.Str(fm.ActualDep...),
		ScheduledArr: row.Str(fm.ScheduledArr...),
		EstimatedArr: row.Str(fm.EstimatedArr...),
		ActualArr:    row.Str(fm.ActualArr...),

		DepDelay: row.Str(fm.DepDelay...),
		ArrDelay: row.Str(fm.ArrDelay...),
		Status:   row.Str(fm.Status...),

		HasCodeshare:          row.Has(fm.Codeshare...),
		CodeshareFlightNumber: code(fm.CodeshareFlightNumber),
		CodeshareCallsign:     code(fm.CodeshareCallsign),
		CodeshareAirlineICAO:  code(fm.CodeshareAirlineICAO),
		CodeshareAirlineName:  row.Str(fm.CodeshareAirlineName...),
		CodeshareDigits:       row.Str(fm.CodeshareDigits...),
	}
}
