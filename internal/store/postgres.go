package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConflict is returned by UpdateSuspenseRisk when the optimistic
// concurrency check fails because the row changed under the writer.
var ErrConflict = errors.New("suspense row changed since read")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const taskColumns = `id, control_number, title, description, originator, org_unit_id,
	classification, classification_portions, cui_marked, cui_categories,
	suspense_date, internal_suspense_date, priority_score, expedite_flag,
	status, record_series_id, disposition_date, tags, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	t := &Task{}
	var portionsJSON, cuiJSON, tagsJSON []byte
	err := row.Scan(
		&t.ID, &t.ControlNumber, &t.Title, &t.Description, &t.Originator, &t.OrgUnitID,
		&t.Classification, &portionsJSON, &t.CUIMarked, &cuiJSON,
		&t.SuspenseDate, &t.InternalSuspenseDate, &t.PriorityScore, &t.ExpediteFlag,
		&t.Status, &t.RecordSeriesID, &t.DispositionDate, &tagsJSON, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if portionsJSON != nil {
		_ = json.Unmarshal(portionsJSON, &t.ClassificationPortions)
	}
	if cuiJSON != nil {
		_ = json.Unmarshal(cuiJSON, &t.CUICategories)
	}
	if tagsJSON != nil {
		_ = json.Unmarshal(tagsJSON, &t.Tags)
	}
	return t, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM task WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM task WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.Status != nil {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, string(*filter.Status))
	}
	if filter.OrgUnitID != "" {
		n++
		query += fmt.Sprintf(" AND org_unit_id = $%d", n)
		args = append(args, filter.OrgUnitID)
	}

	query += " ORDER BY suspense_date ASC"
	if filter.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		n++
		query += fmt.Sprintf(" OFFSET $%d", n)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *PostgresStore) ListOpenTasks(ctx context.Context) ([]*Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM task
		WHERE status NOT IN ('closed', 'cancelled')
		ORDER BY suspense_date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *PostgresStore) UpdateTaskPriority(ctx context.Context, id string, score float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE task SET priority_score = $2, updated_at = now() WHERE id = $1`, id, score)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}

func (s *PostgresStore) GetSuspense(ctx context.Context, taskID string) (*Suspense, error) {
	sp := &Suspense{}
	var driversJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT task_id, suspense_date, lead_time_days, risk_level, late_probability,
			drivers, extension_count, updated_at
		FROM suspense WHERE task_id = $1`, taskID,
	).Scan(
		&sp.TaskID, &sp.SuspenseDate, &sp.LeadTimeDays, &sp.RiskLevel, &sp.LateProbability,
		&driversJSON, &sp.ExtensionCount, &sp.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if driversJSON != nil {
		_ = json.Unmarshal(driversJSON, &sp.Drivers)
	}
	return sp, nil
}

func (s *PostgresStore) UpdateSuspenseRisk(ctx context.Context, taskID string, level RiskLevel, lateProbability float64, drivers []RiskDriver, expectedUpdatedAt time.Time) error {
	driversJSON, _ := json.Marshal(drivers)
	tag, err := s.pool.Exec(ctx, `
		UPDATE suspense
		SET risk_level = $2, late_probability = $3, drivers = $4, updated_at = now()
		WHERE task_id = $1 AND updated_at = $5`,
		taskID, string(level), lateProbability, driversJSON, expectedUpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) ListOrgUnits(ctx context.Context) ([]*OrgUnit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, COALESCE(echelon, ''), COALESCE(parent_id, '') FROM orgunit`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []*OrgUnit
	for rows.Next() {
		u := &OrgUnit{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Echelon, &u.ParentID); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (s *PostgresStore) ListUsersByOrgUnits(ctx context.Context, orgUnitIDs []string) ([]*User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, org_unit_id, skills, is_available, out_of_office_until,
			COALESCE(clearance_level, 'U')
		FROM app_user WHERE org_unit_id = ANY($1)`, orgUnitIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		var skillsJSON []byte
		if err := rows.Scan(&u.ID, &u.Name, &u.OrgUnitID, &skillsJSON, &u.Available, &u.OutOfOfficeUntil, &u.ClearanceLevel); err != nil {
			return nil, err
		}
		if skillsJSON != nil {
			_ = json.Unmarshal(skillsJSON, &u.Skills)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) ListAuthorities(ctx context.Context) ([]*Authority, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, org_unit_id, COALESCE(grade, ''), policy_areas,
			max_classification, can_delegate, precedence_order
		FROM authority WHERE active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authorities []*Authority
	for rows.Next() {
		a := &Authority{}
		var areasJSON []byte
		if err := rows.Scan(&a.ID, &a.Title, &a.OrgUnitID, &a.Grade, &areasJSON, &a.MaxClassification, &a.CanDelegate, &a.PrecedenceOrder); err != nil {
			return nil, err
		}
		if areasJSON != nil {
			_ = json.Unmarshal(areasJSON, &a.PolicyAreas)
		}
		authorities = append(authorities, a)
	}
	return authorities, rows.Err()
}

func (s *PostgresStore) WorkloadCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT assignee_user_id, COUNT(*)
		FROM assignment
		WHERE assignee_user_id IS NOT NULL
		  AND state IN ('pending', 'accepted', 'in_progress')
		GROUP BY assignee_user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var userID string
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, err
		}
		counts[userID] = count
	}
	return counts, rows.Err()
}

func (s *PostgresStore) LastAssignedAt(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT assignee_user_id, MAX(assigned_at)
		FROM assignment
		WHERE assignee_user_id IS NOT NULL
		GROUP BY assignee_user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	last := make(map[string]time.Time)
	for rows.Next() {
		var userID string
		var at time.Time
		if err := rows.Scan(&userID, &at); err != nil {
			return nil, err
		}
		last[userID] = at
	}
	return last, rows.Err()
}

func (s *PostgresStore) CreateAssignment(ctx context.Context, a *Assignment) error {
	var userID, orgID interface{}
	if a.AssigneeUserID != "" {
		userID = a.AssigneeUserID
	}
	if a.AssigneeOrgID != "" {
		orgID = a.AssigneeOrgID
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO assignment (task_id, assignee_user_id, assignee_org_id, role, state, rationale)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING id, assigned_at`,
		a.TaskID, userID, orgID, string(a.Role), string(a.State), a.Rationale,
	).Scan(&a.ID, &a.AssignedAt)
}

func (s *PostgresStore) UnresolvedDependencyCount(ctx context.Context, taskID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM task_dependency d
		JOIN task blocker ON blocker.id = d.blocker_task_id
		WHERE d.blocked_task_id = $1
		  AND blocker.status NOT IN ('closed', 'cancelled')`, taskID,
	).Scan(&count)
	return count, err
}

func (s *PostgresStore) OwnerOnTimeRate(ctx context.Context, taskID string) (*float64, error) {
	var rate *float64
	err := s.pool.QueryRow(ctx, `
		SELECT AVG(CASE WHEN t.status = 'closed' AND t.updated_at <= t.suspense_date THEN 1.0 ELSE 0.0 END)
		FROM assignment cur
		JOIN assignment hist ON hist.assignee_user_id = cur.assignee_user_id
		JOIN task t ON t.id = hist.task_id
		WHERE cur.task_id = $1
		  AND cur.assignee_user_id IS NOT NULL
		  AND t.status IN ('closed', 'overdue')`, taskID,
	).Scan(&rate)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rate, nil
}
