package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/beetlebase/internal/model"
)

// PostgresJobRepo はPostgreSQLを使用したジョブリポジトリ。
// 行エラーはJSONB列に保持する。
type PostgresJobRepo struct {
	db *sql.DB
}

// NewPostgresJobRepo はPostgresJobRepoを生成する。
func NewPostgresJobRepo(db *sql.DB) *PostgresJobRepo {
	return &PostgresJobRepo{db: db}
}

const jobColumns = `id, kind, type, status, owner_id, submitted_at, updated_at, result, attempts,
	import_mode, payload_key, row_errors, target_id, artifact_key, artifact_filename, artifact_url`

// rowErrorRecord はrow_errors列のJSON表現。
type rowErrorRecord struct {
	Line    int    `json:"line"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func scanJob(row rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var importMode, payloadKey, targetID sql.NullString
	var artifactKey, artifactFilename, artifactURL sql.NullString
	var rowErrors []byte

	err := row.Scan(
		&job.ID, &job.Kind, &job.Type, &job.Status, &job.OwnerID, &job.SubmittedAt, &job.UpdatedAt,
		&job.Result, &job.Attempts, &importMode, &payloadKey, &rowErrors, &targetID,
		&artifactKey, &artifactFilename, &artifactURL,
	)
	if err != nil {
		return nil, err
	}

	job.ImportMode = model.ImportMode(nullStringValue(importMode))
	job.PayloadKey = nullStringValue(payloadKey)
	job.TargetID = nullStringValue(targetID)
	if artifactKey.Valid {
		job.Artifact = &model.Artifact{
			Key:      artifactKey.String,
			Filename: nullStringValue(artifactFilename),
			URL:      nullStringValue(artifactURL),
		}
	}
	if len(rowErrors) > 0 {
		var records []rowErrorRecord
		if err := json.Unmarshal(rowErrors, &records); err != nil {
			return nil, fmt.Errorf("行エラーのデコードに失敗しました: %w", err)
		}
		for _, rec := range records {
			job.RowErrors = append(job.RowErrors, model.RowError(rec))
		}
	}
	return job, nil
}

func encodeRowErrors(errs []model.RowError) ([]byte, error) {
	records := make([]rowErrorRecord, len(errs))
	for i, e := range errs {
		records[i] = rowErrorRecord(e)
	}
	b, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("行エラーのエンコードに失敗しました: %w", err)
	}
	return b, nil
}

// FindByID は指定IDのジョブを取得する。見つからない場合はnilを返す。
func (r *PostgresJobRepo) FindByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ジョブの取得に失敗しました: %w", err)
	}
	return job, nil
}

// List はジョブを投入日時の新しい順で返す。kindが空の場合は全種別を返す。
func (r *PostgresJobRepo) List(ctx context.Context, kind model.JobKind) ([]*model.Job, error) {
	return r.query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE ($1 = '' OR kind = $1) ORDER BY submitted_at DESC, id`,
		string(kind))
}

// ListByOwner は所有者のジョブを投入日時の新しい順で返す。
func (r *PostgresJobRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Job, error) {
	return r.query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE owner_id = $1 ORDER BY submitted_at DESC, id`,
		ownerID)
}

// ListByStatus は指定状態のジョブを投入日時の古い順で返す。
func (r *PostgresJobRepo) ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	return r.query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY submitted_at, id`,
		string(status))
}

func (r *PostgresJobRepo) query(ctx context.Context, q string, args ...any) ([]*model.Job, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ジョブ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("ジョブの読み取りに失敗しました: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ジョブ一覧の走査に失敗しました: %w", err)
	}
	return jobs, nil
}

// Create はジョブを作成する。
func (r *PostgresJobRepo) Create(ctx context.Context, job *model.Job) error {
	rowErrors, err := encodeRowErrors(job.RowErrors)
	if err != nil {
		return err
	}
	key, filename, url := artifactColumns(job.Artifact)

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, type, status, owner_id, submitted_at, updated_at, result, attempts,
		        import_mode, payload_key, row_errors, target_id, artifact_key, artifact_filename, artifact_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		job.ID, job.Kind, job.Type, job.Status, job.OwnerID, job.SubmittedAt, job.UpdatedAt,
		job.Result, job.Attempts, nullString(string(job.ImportMode)), nullString(job.PayloadKey),
		rowErrors, nullString(job.TargetID), key, filename, url,
	)
	if err != nil {
		return fmt.Errorf("ジョブの登録に失敗しました: %w", err)
	}
	return nil
}

// UpdateIf は保存済みジョブの状態がexpectedの場合に限りジョブを置き換える。
func (r *PostgresJobRepo) UpdateIf(ctx context.Context, job *model.Job, expected model.JobStatus) (bool, error) {
	rowErrors, err := encodeRowErrors(job.RowErrors)
	if err != nil {
		return false, err
	}
	key, filename, url := artifactColumns(job.Artifact)

	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = $3, updated_at = $4, result = $5, attempts = $6,
		        row_errors = $7, artifact_key = $8, artifact_filename = $9, artifact_url = $10
		 WHERE id = $1 AND status = $2`,
		job.ID, expected, job.Status, job.UpdatedAt, job.Result, job.Attempts,
		rowErrors, key, filename, url,
	)
	if err != nil {
		return false, fmt.Errorf("ジョブの更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func artifactColumns(a *model.Artifact) (key, filename, url sql.NullString) {
	if a == nil {
		return
	}
	return nullString(a.Key), nullString(a.Filename), nullString(a.URL)
}

// compile-time interface check
var _ JobRepository = (*PostgresJobRepo)(nil)
