package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/iris-network/iris/internal/domain"
)

// ─── Task Repository ────────────────────────────────────────────────────────

// CreateTask inserts a new task record.
func (d *DB) CreateTask(t domain.Task) error {
	_, err := d.db.Exec(
		`INSERT INTO tasks (id, principal_id, mode, difficulty, original_prompt,
			final_response, status, has_files, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PrincipalID, string(t.Mode), string(t.Difficulty), t.OriginalPrompt,
		t.FinalResponse, string(t.Status), t.HasFiles,
		t.CreatedAt.Unix(), nullableUnix(t.CompletedAt),
	)
	return err
}

// GetTask retrieves a task by ID.
func (d *DB) GetTask(id string) (*domain.Task, error) {
	row := d.db.QueryRow(
		`SELECT id, principal_id, mode, difficulty, original_prompt,
			final_response, status, has_files, created_at, completed_at
		 FROM tasks WHERE id = ?`, id,
	)
	return scanTask(row)
}

// ListTasksByPrincipal returns a principal's recent tasks, newest first.
func (d *DB) ListTasksByPrincipal(principalID string, limit int) ([]domain.Task, error) {
	rows, err := d.db.Query(
		`SELECT id, principal_id, mode, difficulty, original_prompt,
			final_response, status, has_files, created_at, completed_at
		 FROM tasks WHERE principal_id = ? ORDER BY created_at DESC LIMIT ?`,
		principalID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus moves a task through its lifecycle. Terminal states also
// record the final response and completion time.
func (d *DB) UpdateTaskStatus(id string, status domain.TaskStatus, finalResponse string) error {
	var result sql.Result
	var err error
	switch status {
	case domain.TaskCompleted, domain.TaskFailed, domain.TaskPartial:
		result, err = d.db.Exec(
			`UPDATE tasks SET status = ?, final_response = ?, completed_at = ? WHERE id = ?`,
			string(status), finalResponse, time.Now().Unix(), id,
		)
	default:
		result, err = d.db.Exec(
			`UPDATE tasks SET status = ? WHERE id = ?`, string(status), id,
		)
	}
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func scanTask(s scanner) (*domain.Task, error) {
	var t domain.Task
	var createdAt int64
	var completedAt sql.NullInt64

	err := s.Scan(&t.ID, &t.PrincipalID, &t.Mode, &t.Difficulty, &t.OriginalPrompt,
		&t.FinalResponse, &t.Status, &t.HasFiles, &createdAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	t.CreatedAt = time.Unix(createdAt, 0)
	if completedAt.Valid {
		t.CompletedAt = time.Unix(completedAt.Int64, 0)
	}
	return &t, nil
}

// ─── Subtask Repository ─────────────────────────────────────────────────────

// CreateSubtask inserts a new subtask record.
func (d *DB) CreateSubtask(st domain.Subtask) error {
	_, err := d.db.Exec(
		`INSERT INTO subtasks (id, task_id, node_id, prompt, response, status,
			assigned_at, completed_at, execution_time_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.TaskID, nullStr(st.NodeID), st.Prompt, st.Response, string(st.Status),
		nullableUnix(st.AssignedAt), nullableUnix(st.CompletedAt), st.ExecutionTimeMS,
	)
	return err
}

// GetSubtask retrieves a subtask by ID.
func (d *DB) GetSubtask(id string) (*domain.Subtask, error) {
	row := d.db.QueryRow(
		`SELECT id, task_id, node_id, prompt, response, status,
			assigned_at, completed_at, execution_time_ms
		 FROM subtasks WHERE id = ?`, id,
	)
	return scanSubtask(row)
}

// ListSubtasksByTask returns a task's subtasks in insertion order.
func (d *DB) ListSubtasksByTask(taskID string) ([]domain.Subtask, error) {
	rows, err := d.db.Query(
		`SELECT id, task_id, node_id, prompt, response, status,
			assigned_at, completed_at, execution_time_ms
		 FROM subtasks WHERE task_id = ? ORDER BY rowid`, taskID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subtasks []domain.Subtask
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			return nil, err
		}
		subtasks = append(subtasks, *st)
	}
	return subtasks, rows.Err()
}

// AssignSubtask records a dispatch to a node.
func (d *DB) AssignSubtask(id, nodeID string) error {
	result, err := d.db.Exec(
		`UPDATE subtasks SET node_id = ?, status = ?, assigned_at = ? WHERE id = ?`,
		nodeID, string(domain.SubtaskAssigned), time.Now().Unix(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrSubtaskNotFound
	}
	return nil
}

// CompleteSubtask stores the decrypted response and execution time.
func (d *DB) CompleteSubtask(id, response string, executionTimeMS int64) error {
	result, err := d.db.Exec(
		`UPDATE subtasks SET response = ?, status = ?, completed_at = ?, execution_time_ms = ?
		 WHERE id = ?`,
		response, string(domain.SubtaskCompleted), time.Now().Unix(), executionTimeMS, id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrSubtaskNotFound
	}
	return nil
}

// FailSubtask marks a subtask failed or timed out.
func (d *DB) FailSubtask(id string, status domain.SubtaskStatus) error {
	result, err := d.db.Exec(
		`UPDATE subtasks SET status = ?, completed_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrSubtaskNotFound
	}
	return nil
}

func scanSubtask(s scanner) (*domain.Subtask, error) {
	var st domain.Subtask
	var nodeID sql.NullString
	var assignedAt, completedAt sql.NullInt64

	err := s.Scan(&st.ID, &st.TaskID, &nodeID, &st.Prompt, &st.Response, &st.Status,
		&assignedAt, &completedAt, &st.ExecutionTimeMS)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSubtaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan subtask: %w", err)
	}

	if nodeID.Valid {
		st.NodeID = nodeID.String
	}
	if assignedAt.Valid {
		st.AssignedAt = time.Unix(assignedAt.Int64, 0)
	}
	if completedAt.Valid {
		st.CompletedAt = time.Unix(completedAt.Int64, 0)
	}
	return &st, nil
}
