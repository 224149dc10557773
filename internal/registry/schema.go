package registry

import (
	"context"
	"database/sql"
	"fmt"

	cerrors "github.com/canvassdb/canvassd/internal/errors"
	"github.com/canvassdb/canvassd/pkg/types"
)

// Per-record-type partition schemas. Every table carries tenant_id (so legacy
// global partitions and scoped filter rewrites have a column to constrain),
// created_by (for manager created-by-me checks) and created_at (unix seconds).
var tableSchemas = map[types.RecordType]string{
	types.RecordVoters: `CREATE TABLE IF NOT EXISTS voters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		voter_id TEXT NOT NULL,
		name TEXT NOT NULL,
		age INTEGER,
		gender TEXT,
		booth_no INTEGER,
		family_id TEXT,
		survey_done INTEGER NOT NULL DEFAULT 0,
		created_by TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_voters_booth ON voters(booth_no);
	CREATE INDEX IF NOT EXISTS idx_voters_family ON voters(family_id);`,

	types.RecordSurveys: `CREATE TABLE IF NOT EXISTS surveys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		voter_ref TEXT NOT NULL,
		booth_no INTEGER,
		status TEXT NOT NULL,
		created_by TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_surveys_booth ON surveys(booth_no);`,

	types.RecordMobileAnswers: `CREATE TABLE IF NOT EXISTS mobile_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		question_id TEXT NOT NULL,
		answer TEXT,
		booth_no INTEGER,
		created_by TEXT,
		created_at INTEGER NOT NULL
	);`,

	types.RecordBoothActivity: `CREATE TABLE IF NOT EXISTS booth_activity (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		agent_id TEXT NOT NULL,
		booth_no INTEGER,
		action TEXT NOT NULL,
		created_by TEXT,
		created_at INTEGER NOT NULL
	);`,
}

// Queryable columns per record type, kept in lockstep with the DDL above.
var tableColumns = map[types.RecordType]map[string]bool{
	types.RecordVoters: {
		"id": true, "tenant_id": true, "voter_id": true, "name": true,
		"age": true, "gender": true, "booth_no": true, "family_id": true,
		"survey_done": true, "created_by": true, "created_at": true,
	},
	types.RecordSurveys: {
		"id": true, "tenant_id": true, "voter_ref": true, "booth_no": true,
		"status": true, "created_by": true, "created_at": true,
	},
	types.RecordMobileAnswers: {
		"id": true, "tenant_id": true, "question_id": true, "answer": true,
		"booth_no": true, "created_by": true, "created_at": true,
	},
	types.RecordBoothActivity: {
		"id": true, "tenant_id": true, "agent_id": true, "booth_no": true,
		"action": true, "created_by": true, "created_at": true,
	},
}

// ValidColumn reports whether field names a column of the record type's
// table. Field names arriving from clients must pass this check before they
// are spliced into SQL text.
func ValidColumn(rt types.RecordType, field string) bool {
	return tableColumns[rt][field]
}

// ensureSchema creates the record type's table and indexes if missing.
func ensureSchema(ctx context.Context, db *sql.DB, rt types.RecordType) error {
	ddl, ok := tableSchemas[rt]
	if !ok {
		return cerrors.NewQueryError(cerrors.CodeBadAggregation,
			fmt.Sprintf("no schema for record type %q", rt))
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return cerrors.NewStorageError(
			fmt.Sprintf("failed to create %s schema", rt), err)
	}
	return nil
}
