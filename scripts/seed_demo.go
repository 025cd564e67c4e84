// seed_demo.go — standalone script to create the MissionMind schema and load
// a small demo org with open taskers.
//
// Usage:
//
//	go run scripts/seed_demo.go -db postgres://localhost:5432/missionmind
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orgunit (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		echelon    TEXT,
		parent_id  TEXT REFERENCES orgunit(id)
	)`,
	`CREATE TABLE IF NOT EXISTS app_user (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL,
		org_unit_id         TEXT NOT NULL REFERENCES orgunit(id),
		skills              JSONB,
		is_available        BOOLEAN NOT NULL DEFAULT TRUE,
		out_of_office_until TIMESTAMPTZ,
		clearance_level     TEXT NOT NULL DEFAULT 'U'
	)`,
	`CREATE TABLE IF NOT EXISTS authority (
		id                 TEXT PRIMARY KEY,
		title              TEXT NOT NULL,
		org_unit_id        TEXT NOT NULL REFERENCES orgunit(id),
		grade              TEXT,
		policy_areas       JSONB,
		max_classification TEXT NOT NULL DEFAULT 'U',
		can_delegate       BOOLEAN NOT NULL DEFAULT FALSE,
		precedence_order   INTEGER NOT NULL DEFAULT 100,
		active             BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS task (
		id                      TEXT PRIMARY KEY,
		control_number          TEXT NOT NULL DEFAULT '',
		title                   TEXT NOT NULL,
		description             TEXT NOT NULL DEFAULT '',
		originator              TEXT NOT NULL DEFAULT '',
		org_unit_id             TEXT NOT NULL REFERENCES orgunit(id),
		classification          TEXT NOT NULL DEFAULT 'U',
		classification_portions JSONB,
		cui_marked              BOOLEAN NOT NULL DEFAULT FALSE,
		cui_categories          JSONB,
		suspense_date           TIMESTAMPTZ NOT NULL,
		internal_suspense_date  TIMESTAMPTZ,
		priority_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
		expedite_flag           BOOLEAN NOT NULL DEFAULT FALSE,
		status                  TEXT NOT NULL DEFAULT 'open',
		record_series_id        TEXT NOT NULL DEFAULT '',
		disposition_date        TIMESTAMPTZ,
		tags                    JSONB,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS suspense (
		task_id          TEXT PRIMARY KEY REFERENCES task(id),
		suspense_date    TIMESTAMPTZ NOT NULL,
		lead_time_days   INTEGER NOT NULL DEFAULT 0,
		risk_level       TEXT NOT NULL DEFAULT 'green',
		late_probability DOUBLE PRECISION NOT NULL DEFAULT 0,
		drivers          JSONB,
		extension_count  INTEGER NOT NULL DEFAULT 0,
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS assignment (
		id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		task_id          TEXT NOT NULL REFERENCES task(id),
		assignee_user_id TEXT REFERENCES app_user(id),
		assignee_org_id  TEXT REFERENCES orgunit(id),
		role             TEXT,
		state            TEXT NOT NULL DEFAULT 'pending',
		rationale        TEXT NOT NULL DEFAULT '',
		assigned_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK ((assignee_user_id IS NULL) <> (assignee_org_id IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS task_dependency (
		blocked_task_id TEXT NOT NULL REFERENCES task(id),
		blocker_task_id TEXT NOT NULL REFERENCES task(id),
		PRIMARY KEY (blocked_task_id, blocker_task_id)
	)`,
}

func main() {
	dbURL := flag.String("db", "postgres://localhost:5432/missionmind", "database URL")
	flag.Parse()

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, *dbURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close(ctx)

	for _, stmt := range schema {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			log.Fatalf("schema: %v", err)
		}
	}
	log.Println("schema ready")

	exec := func(sql string, args ...interface{}) {
		if _, err := conn.Exec(ctx, sql, args...); err != nil {
			log.Fatalf("seed: %v", err)
		}
	}

	exec(`INSERT INTO orgunit (id, name, echelon, parent_id) VALUES
		('HQ', 'Headquarters', 'HQ', NULL),
		('OPS_G3', 'Operations G-3', 'directorate', 'HQ'),
		('INTEL_G2', 'Intelligence G-2', 'directorate', 'HQ'),
		('LOG_G4', 'Logistics G-4', 'directorate', 'HQ'),
		('OPS_BN1', '1st Battalion Ops', 'battalion', 'OPS_G3')
		ON CONFLICT (id) DO NOTHING`)

	exec(`INSERT INTO app_user (id, name, org_unit_id, skills, clearance_level) VALUES
		('U-RAMIREZ', 'Ramirez', 'OPS_G3', '["readiness","training"]', 'S'),
		('U-CHEN', 'Chen', 'OPS_G3', '["training"]', 'U'),
		('U-OKAFOR', 'Okafor', 'OPS_BN1', '["readiness"]', 'S'),
		('U-HAYES', 'Hayes', 'INTEL_G2', '["intel"]', 'TS')
		ON CONFLICT (id) DO NOTHING`)

	exec(`INSERT INTO authority (id, title, org_unit_id, grade, policy_areas, max_classification, precedence_order) VALUES
		('AUTH_CG', 'Commanding General', 'HQ', 'O-8', '[]', 'TS', 1),
		('AUTH_G3', 'G-3 Director', 'OPS_G3', 'O-6', '["readiness","training"]', 'S', 2),
		('AUTH_G2', 'G-2 Director', 'INTEL_G2', 'O-6', '["intel"]', 'TS', 2)
		ON CONFLICT (id) DO NOTHING`)

	now := time.Now().UTC()
	exec(`INSERT INTO task (id, title, description, originator, org_unit_id, classification, suspense_date, expedite_flag, tags) VALUES
		('T-0001', 'Update quarterly readiness report',
		 'Compile and staff the quarterly unit readiness report for command review, including training shortfalls.',
		 'HQDA EXORD 2025-14', 'OPS_G3', 'U', $1, FALSE, '["readiness"]'),
		('T-0002', 'Intel summary for exercise',
		 'Produce the intelligence summary supporting the upcoming joint exercise planning conference.',
		 'ACOM FRAGO', 'INTEL_G2', 'S', $2, TRUE, '["intel"]'),
		('T-0003', 'Logistics status update',
		 'Update the logistics common operating picture ahead of the sustainment review.',
		 'DRU memo', 'LOG_G4', 'U', $3, FALSE, '["logistics"]')
		ON CONFLICT (id) DO NOTHING`,
		now.Add(10*24*time.Hour), now.Add(3*24*time.Hour), now.Add(21*24*time.Hour))

	exec(`INSERT INTO suspense (task_id, suspense_date)
		SELECT id, suspense_date FROM task
		ON CONFLICT (task_id) DO NOTHING`)

	log.Println("demo data seeded")
}
