package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrVersionConflict is returned when two concurrent snapshot saves race
// for the same proposal version. Callers may retry.
var ErrVersionConflict = errors.New("proposal version conflict")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM users
		WHERE email=$1
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ---- refresh sessions (Postgres fallback when Redis is not configured) ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.display_name
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Email, &user.DisplayName)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- clients ----

func (s *PostgresStore) InsertClient(ctx context.Context, client Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, client_type, industry, contact_name, contact_email)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, client.ID, client.Name, client.ClientType, client.Industry, client.ContactName, client.ContactEmail)
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, client_type, industry, contact_name, contact_email, created_at
		FROM clients
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	items := make([]Client, 0)
	for rows.Next() {
		var item Client
		if err := rows.Scan(&item.ID, &item.Name, &item.ClientType, &item.Industry, &item.ContactName, &item.ContactEmail, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetClient(ctx context.Context, clientID string) (Client, error) {
	var item Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, client_type, industry, contact_name, contact_email, created_at
		FROM clients
		WHERE id=$1
	`, clientID).Scan(&item.ID, &item.Name, &item.ClientType, &item.Industry, &item.ContactName, &item.ContactEmail, &item.CreatedAt)
	if err != nil {
		return Client{}, err
	}
	return item, nil
}

// DeleteClientCascade removes a client together with its projects, their
// answers and their proposals in one transaction.
func (s *PostgresStore) DeleteClientCascade(ctx context.Context, clientID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete client: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM answers WHERE project_id IN (SELECT id FROM projects WHERE client_id=$1)
	`, clientID); err != nil {
		return fmt.Errorf("delete client answers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM proposals WHERE project_id IN (SELECT id FROM projects WHERE client_id=$1)
	`, clientID); err != nil {
		return fmt.Errorf("delete client proposals: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE client_id=$1`, clientID); err != nil {
		return fmt.Errorf("delete client projects: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM clients WHERE id=$1`, clientID)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete client rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// ---- projects ----

func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, client_id, name, project_type, complexity, budget, timeline, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, project.ID, project.ClientID, project.Name, project.ProjectType, project.Complexity, project.Budget, project.Timeline, project.Status)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var item Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, name, project_type, complexity, budget, timeline, status, created_at, updated_at
		FROM projects
		WHERE id=$1
	`, projectID).Scan(
		&item.ID,
		&item.ClientID,
		&item.Name,
		&item.ProjectType,
		&item.Complexity,
		&item.Budget,
		&item.Timeline,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Project{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListProjectsByClient(ctx context.Context, clientID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, name, project_type, complexity, budget, timeline, status, created_at, updated_at
		FROM projects
		WHERE client_id=$1
		ORDER BY created_at DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(
			&item.ID,
			&item.ClientID,
			&item.Name,
			&item.ProjectType,
			&item.Complexity,
			&item.Budget,
			&item.Timeline,
			&item.Status,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateProjectMeta(ctx context.Context, projectID, name, projectType, complexity, budget, timeline string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name=$2, project_type=$3, complexity=$4, budget=$5, timeline=$6, updated_at=NOW()
		WHERE id=$1
	`, projectID, name, projectType, complexity, budget, timeline)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateProjectStatus(ctx context.Context, projectID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET status=$2, updated_at=NOW() WHERE id=$1
	`, projectID, status)
	if err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteProjectWithAnswers removes a project, its answers and its proposals
// in one transaction. Lifecycle gating (DRAFT only) is the caller's job.
func (s *PostgresStore) DeleteProjectWithAnswers(ctx context.Context, projectID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete project: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("delete project answers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM proposals WHERE project_id=$1`, projectID); err != nil {
		return fmt.Errorf("delete project proposals: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// ---- questionnaires ----

func (s *PostgresStore) InsertQuestionnaire(ctx context.Context, q Questionnaire) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO questionnaires (id, name, version, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
	`, q.ID, q.Name, q.Version, q.Description, q.IsActive)
	if err != nil {
		return fmt.Errorf("insert questionnaire: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertQuestion(ctx context.Context, q Question) error {
	var options any
	if q.Options != nil {
		encoded, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("encode question options: %w", err)
		}
		options = string(encoded)
	}
	var showIfQuestion, showIfEquals any
	if q.ShowIf != nil {
		showIfQuestion = q.ShowIf.QuestionID
		showIfEquals = q.ShowIf.Equals
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (id, questionnaire_id, phase, "order", question_text, type, options, show_if_question_id, show_if_equals)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)
	`, q.ID, q.QuestionnaireID, q.Phase, q.Order, q.QuestionText, q.Type, options, showIfQuestion, showIfEquals)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

// ActiveQuestionnaire returns the single active questionnaire with its
// questions ordered by (phase, "order"). The phase column is a Postgres
// enum, so ordering by it follows the declared phase sequence.
func (s *PostgresStore) ActiveQuestionnaire(ctx context.Context) (Questionnaire, error) {
	var q Questionnaire
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, version, description, is_active
		FROM questionnaires
		WHERE is_active
		ORDER BY version DESC
		LIMIT 1
	`).Scan(&q.ID, &q.Name, &q.Version, &q.Description, &q.IsActive)
	if err != nil {
		return Questionnaire{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, questionnaire_id, phase, "order", question_text, type,
			COALESCE(options::text, ''), COALESCE(show_if_question_id, ''), COALESCE(show_if_equals, '')
		FROM questions
		WHERE questionnaire_id=$1
		ORDER BY phase, "order"
	`, q.ID)
	if err != nil {
		return Questionnaire{}, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item Question
		var rawOptions, showIfQuestion, showIfEquals string
		if err := rows.Scan(
			&item.ID,
			&item.QuestionnaireID,
			&item.Phase,
			&item.Order,
			&item.QuestionText,
			&item.Type,
			&rawOptions,
			&showIfQuestion,
			&showIfEquals,
		); err != nil {
			return Questionnaire{}, fmt.Errorf("scan question: %w", err)
		}
		if rawOptions != "" {
			if err := json.Unmarshal([]byte(rawOptions), &item.Options); err != nil {
				return Questionnaire{}, fmt.Errorf("decode question options: %w", err)
			}
		}
		if showIfQuestion != "" {
			item.ShowIf = &ShowIf{QuestionID: showIfQuestion, Equals: showIfEquals}
		}
		q.Questions = append(q.Questions, item)
	}
	if err := rows.Err(); err != nil {
		return Questionnaire{}, fmt.Errorf("iterate questions: %w", err)
	}
	return q, nil
}

// ---- answers ----

func (s *PostgresStore) UpsertAnswer(ctx context.Context, projectID, questionID, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO answers (project_id, question_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, question_id) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()
	`, projectID, questionID, value)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAnswer(ctx context.Context, projectID, questionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM answers WHERE project_id=$1 AND question_id=$2
	`, projectID, questionID)
	if err != nil {
		return false, fmt.Errorf("delete answer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete answer rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListAnswers(ctx context.Context, projectID string) ([]Answer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, question_id, value, updated_at
		FROM answers
		WHERE project_id=$1
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	items := make([]Answer, 0)
	for rows.Next() {
		var item Answer
		if err := rows.Scan(&item.ProjectID, &item.QuestionID, &item.Value, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return items, nil
}

// ---- proposals ----

// InsertProposal assigns the next version inside the insert statement; the
// unique (project_id, version) constraint turns a concurrent race into
// ErrVersionConflict instead of a duplicate version.
func (s *PostgresStore) InsertProposal(ctx context.Context, id, projectID, html string) (Proposal, error) {
	var item Proposal
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO proposals (id, project_id, version, html)
		VALUES ($1, $2, (SELECT COALESCE(MAX(version), 0) + 1 FROM proposals WHERE project_id=$2), $3)
		RETURNING id, project_id, version, html, created_at
	`, id, projectID, html).Scan(&item.ID, &item.ProjectID, &item.Version, &item.HTML, &item.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Proposal{}, ErrVersionConflict
		}
		return Proposal{}, fmt.Errorf("insert proposal: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListProposals(ctx context.Context, projectID string) ([]Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, version, created_at
		FROM proposals
		WHERE project_id=$1
		ORDER BY version DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	items := make([]Proposal, 0)
	for rows.Next() {
		var item Proposal
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Version, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProposal(ctx context.Context, projectID string, version int) (Proposal, error) {
	var item Proposal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, version, html, created_at
		FROM proposals
		WHERE project_id=$1 AND version=$2
	`, projectID, version).Scan(&item.ID, &item.ProjectID, &item.Version, &item.HTML, &item.CreatedAt)
	if err != nil {
		return Proposal{}, err
	}
	return item, nil
}
