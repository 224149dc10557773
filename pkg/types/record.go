// Package types provides core data types for canvassd.
package types

import "fmt"

// RecordType identifies one of the logical record collections that every
// tenant owns a partition of.
type RecordType string

const (
	RecordVoters        RecordType = "voters"
	RecordSurveys       RecordType = "surveys"
	RecordMobileAnswers RecordType = "mobile_answers"
	RecordBoothActivity RecordType = "booth_activity"
)

// AllRecordTypes lists every record type in a fixed order.
var AllRecordTypes = []RecordType{
	RecordVoters,
	RecordSurveys,
	RecordMobileAnswers,
	RecordBoothActivity,
}

// Valid reports whether rt is a known record type.
func (rt RecordType) Valid() bool {
	switch rt {
	case RecordVoters, RecordSurveys, RecordMobileAnswers, RecordBoothActivity:
		return true
	}
	return false
}

// Table returns the SQL table name for this record type.
// Table names match the record type identifier.
func (rt RecordType) Table() string {
	return string(rt)
}

// String implements fmt.Stringer.
func (rt RecordType) String() string {
	return string(rt)
}

// ParseRecordType converts a string to a RecordType.
func ParseRecordType(s string) (RecordType, error) {
	rt := RecordType(s)
	if !rt.Valid() {
		return "", fmt.Errorf("types: unknown record type %q", s)
	}
	return rt, nil
}

// Row is a single record as returned by the query engines. Every row carries
// an "id" column holding the record's native integer identifier, used by the
// fan-out merge tie-break.
type Row map[string]interface{}

// ID returns the row's native identifier, or 0 if absent.
func (r Row) ID() int64 {
	switch v := r["id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// TenantColumn is the column every partitioned table carries for the owning
// tenant. Per-tenant partitions are already physically isolated; the column
// exists so the legacy global partition and scoped-role filter rewrites have
// a field to constrain.
const TenantColumn = "tenant_id"
