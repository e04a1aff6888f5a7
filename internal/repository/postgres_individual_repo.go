package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/beetlebase/internal/model"
)

// PostgresIndividualRepo はPostgreSQLを使用した個体リポジトリ。
// 写真・計測値は別テーブルに保持し、position列で追加順を維持する。
type PostgresIndividualRepo struct {
	db *sql.DB
}

// NewPostgresIndividualRepo はPostgresIndividualRepoを生成する。
func NewPostgresIndividualRepo(db *sql.DB) *PostgresIndividualRepo {
	return &PostgresIndividualRepo{db: db}
}

const individualColumns = `id, owner_id, individual_code, species_common, species_scientific,
	stage, sex, to_char(birth_date, 'YYYY-MM-DD'), to_char(introduced_date, 'YYYY-MM-DD'),
	line_name, parent_code_m, parent_code_f, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIndividual(row rowScanner) (*model.Individual, error) {
	ind := &model.Individual{}
	var birthDate, lineName, parentM, parentF, notes sql.NullString
	err := row.Scan(
		&ind.ID, &ind.OwnerID, &ind.IndividualCode, &ind.SpeciesCommon, &ind.SpeciesScientific,
		&ind.Stage, &ind.Sex, &birthDate, &ind.IntroducedDate,
		&lineName, &parentM, &parentF, &notes, &ind.CreatedAt, &ind.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ind.BirthDate = nullStringPtr(birthDate)
	ind.LineName = nullStringPtr(lineName)
	ind.ParentCodeM = nullStringPtr(parentM)
	ind.ParentCodeF = nullStringPtr(parentF)
	ind.Notes = nullStringPtr(notes)
	return ind, nil
}

// FindByID は指定IDの個体を写真・計測値付きで取得する。見つからない場合はnilを返す。
func (r *PostgresIndividualRepo) FindByID(ctx context.Context, id string) (*model.Individual, error) {
	ind, err := scanIndividual(r.db.QueryRowContext(ctx,
		`SELECT `+individualColumns+` FROM individuals WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("個体の取得に失敗しました: %w", err)
	}
	if err := r.loadChildren(ctx, []*model.Individual{ind}); err != nil {
		return nil, err
	}
	return ind, nil
}

// FindByOwnerAndCode は所有者と個体コードで最初に登録された個体を返す。
func (r *PostgresIndividualRepo) FindByOwnerAndCode(ctx context.Context, ownerID, code string) (*model.Individual, error) {
	ind, err := scanIndividual(r.db.QueryRowContext(ctx,
		`SELECT `+individualColumns+` FROM individuals
		 WHERE owner_id = $1 AND individual_code = $2
		 ORDER BY seq LIMIT 1`, ownerID, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("個体コードによる検索に失敗しました: %w", err)
	}
	if err := r.loadChildren(ctx, []*model.Individual{ind}); err != nil {
		return nil, err
	}
	return ind, nil
}

// FindFirstByCode は所有者を問わず、コードが一致する最初の個体を返す。
func (r *PostgresIndividualRepo) FindFirstByCode(ctx context.Context, code string) (*model.Individual, error) {
	ind, err := scanIndividual(r.db.QueryRowContext(ctx,
		`SELECT `+individualColumns+` FROM individuals
		 WHERE lower(individual_code) = lower($1)
		 ORDER BY seq LIMIT 1`, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("公開コードによる検索に失敗しました: %w", err)
	}
	if err := r.loadChildren(ctx, []*model.Individual{ind}); err != nil {
		return nil, err
	}
	return ind, nil
}

// ListByOwner は所有者の個体一覧を登録順で返す。
func (r *PostgresIndividualRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Individual, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+individualColumns+` FROM individuals WHERE owner_id = $1 ORDER BY seq`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("個体一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []*model.Individual
	for rows.Next() {
		ind, err := scanIndividual(rows)
		if err != nil {
			return nil, fmt.Errorf("個体の読み取りに失敗しました: %w", err)
		}
		result = append(result, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("個体一覧の走査に失敗しました: %w", err)
	}

	if err := r.loadChildren(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// loadChildren は個体群の写真・計測値をまとめて読み込む。
func (r *PostgresIndividualRepo) loadChildren(ctx context.Context, inds []*model.Individual) error {
	if len(inds) == 0 {
		return nil
	}
	ids := make([]string, len(inds))
	byID := make(map[string]*model.Individual, len(inds))
	for i, ind := range inds {
		ids[i] = ind.ID
		byID[ind.ID] = ind
	}

	photoRows, err := r.db.QueryContext(ctx,
		`SELECT individual_id, id, url, thumb_url, is_primary, created_at
		 FROM individual_photos WHERE individual_id = ANY($1) ORDER BY individual_id, position`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("写真の取得に失敗しました: %w", err)
	}
	defer photoRows.Close()
	for photoRows.Next() {
		var indID string
		var p model.Photo
		if err := photoRows.Scan(&indID, &p.ID, &p.URL, &p.ThumbURL, &p.IsPrimary, &p.CreatedAt); err != nil {
			return fmt.Errorf("写真の読み取りに失敗しました: %w", err)
		}
		byID[indID].Photos = append(byID[indID].Photos, p)
	}
	if err := photoRows.Err(); err != nil {
		return fmt.Errorf("写真の走査に失敗しました: %w", err)
	}

	mRows, err := r.db.QueryContext(ctx,
		`SELECT individual_id, id, measured_at, weight_g, length_mm, jaw_width_mm, note
		 FROM individual_measurements WHERE individual_id = ANY($1) ORDER BY individual_id, position`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("計測値の取得に失敗しました: %w", err)
	}
	defer mRows.Close()
	for mRows.Next() {
		var indID string
		var m model.Measurement
		var weight, length, jaw sql.NullFloat64
		var note sql.NullString
		if err := mRows.Scan(&indID, &m.ID, &m.MeasuredAt, &weight, &length, &jaw, &note); err != nil {
			return fmt.Errorf("計測値の読み取りに失敗しました: %w", err)
		}
		m.WeightG = nullFloatPtr(weight)
		m.LengthMm = nullFloatPtr(length)
		m.JawWidthMm = nullFloatPtr(jaw)
		m.Note = nullStringPtr(note)
		byID[indID].Measurements = append(byID[indID].Measurements, m)
	}
	if err := mRows.Err(); err != nil {
		return fmt.Errorf("計測値の走査に失敗しました: %w", err)
	}
	return nil
}

// CountByOwner は所有者の登録個体数を返す。
func (r *PostgresIndividualRepo) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM individuals WHERE owner_id = $1`, ownerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("個体数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Create は個体と付随する写真・計測値を同一トランザクションで作成する。
func (r *PostgresIndividualRepo) Create(ctx context.Context, ind *model.Individual) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO individuals (id, owner_id, individual_code, species_common, species_scientific,
		        stage, sex, birth_date, introduced_date, line_name, parent_code_m, parent_code_f,
		        notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, $9::date, $10, $11, $12, $13, $14, $15)`,
		ind.ID, ind.OwnerID, ind.IndividualCode, ind.SpeciesCommon, ind.SpeciesScientific,
		ind.Stage, ind.Sex, nullStringFromPtr(ind.BirthDate), ind.IntroducedDate,
		nullStringFromPtr(ind.LineName), nullStringFromPtr(ind.ParentCodeM),
		nullStringFromPtr(ind.ParentCodeF), nullStringFromPtr(ind.Notes),
		ind.CreatedAt, ind.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert individual: %w", err)
	}

	for _, p := range ind.Photos {
		if err := insertPhoto(ctx, tx, ind.ID, p); err != nil {
			return err
		}
	}
	for _, m := range ind.Measurements {
		if err := insertMeasurement(ctx, tx, ind.ID, m); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update は個体の登録情報を置き換える。写真・計測値は変更しない。
func (r *PostgresIndividualRepo) Update(ctx context.Context, ind *model.Individual) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE individuals SET individual_code = $2, species_common = $3, species_scientific = $4,
		        stage = $5, sex = $6, birth_date = $7::date, introduced_date = $8::date,
		        line_name = $9, parent_code_m = $10, parent_code_f = $11, notes = $12, updated_at = $13
		 WHERE id = $1`,
		ind.ID, ind.IndividualCode, ind.SpeciesCommon, ind.SpeciesScientific,
		ind.Stage, ind.Sex, nullStringFromPtr(ind.BirthDate), ind.IntroducedDate,
		nullStringFromPtr(ind.LineName), nullStringFromPtr(ind.ParentCodeM),
		nullStringFromPtr(ind.ParentCodeF), nullStringFromPtr(ind.Notes), ind.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("個体の更新に失敗しました: %w", err)
	}
	return requireOneRow(result, "individual", ind.ID)
}

// AppendPhoto は個体の写真リスト末尾に写真を追加する。
func (r *PostgresIndividualRepo) AppendPhoto(ctx context.Context, individualID string, photo model.Photo) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertPhoto(ctx, tx, individualID, photo); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE individuals SET updated_at = $2 WHERE id = $1`, individualID, photo.CreatedAt,
	); err != nil {
		return fmt.Errorf("個体の更新日時の更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AppendMeasurement は個体の計測記録を追加する。
func (r *PostgresIndividualRepo) AppendMeasurement(ctx context.Context, individualID string, m model.Measurement) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertMeasurement(ctx, tx, individualID, m); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insertPhoto は写真を個体の末尾位置に挿入する。
func insertPhoto(ctx context.Context, tx *sql.Tx, individualID string, p model.Photo) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO individual_photos (id, individual_id, position, url, thumb_url, is_primary, created_at)
		 VALUES ($1, $2,
		         (SELECT COALESCE(MAX(position), 0) + 1 FROM individual_photos WHERE individual_id = $2),
		         $3, $4, $5, $6)`,
		p.ID, individualID, p.URL, p.ThumbURL, p.IsPrimary, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("写真の登録に失敗しました: %w", err)
	}
	return nil
}

// insertMeasurement は計測記録を個体の末尾位置に挿入する。
func insertMeasurement(ctx context.Context, tx *sql.Tx, individualID string, m model.Measurement) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO individual_measurements (id, individual_id, position, measured_at,
		        weight_g, length_mm, jaw_width_mm, note)
		 VALUES ($1, $2,
		         (SELECT COALESCE(MAX(position), 0) + 1 FROM individual_measurements WHERE individual_id = $2),
		         $3, $4, $5, $6, $7)`,
		m.ID, individualID, m.MeasuredAt,
		nullFloatFromPtr(m.WeightG), nullFloatFromPtr(m.LengthMm), nullFloatFromPtr(m.JawWidthMm),
		nullStringFromPtr(m.Note),
	)
	if err != nil {
		return fmt.Errorf("計測値の登録に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ IndividualRepository = (*PostgresIndividualRepo)(nil)
