// Package seed はデモ用の初期データを空のリポジトリへ投入する。
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/beetlebase/internal/job"
	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/record"
	"github.com/hitoshi/beetlebase/internal/repository"
)

//go:embed demo.yaml
var demoYAML []byte

// Fixture はYAMLで記述された初期データ。
type Fixture struct {
	Users       []userFixture       `yaml:"users"`
	Individuals []individualFixture `yaml:"individuals"`
	Jobs        []jobFixture        `yaml:"jobs"`
}

type userFixture struct {
	ID        string    `yaml:"id"`
	Email     string    `yaml:"email"`
	Status    string    `yaml:"status"`
	Plan      string    `yaml:"plan"`
	IsAdmin   bool      `yaml:"is_admin"`
	CreatedAt time.Time `yaml:"created_at"`
}

type individualFixture struct {
	ID                string               `yaml:"id"`
	OwnerID           string               `yaml:"owner_id"`
	IndividualCode    string               `yaml:"individual_code"`
	SpeciesCommon     string               `yaml:"species_common"`
	SpeciesScientific string               `yaml:"species_scientific"`
	Stage             string               `yaml:"stage"`
	Sex               string               `yaml:"sex"`
	BirthDate         string               `yaml:"birth_date"`
	IntroducedDate    string               `yaml:"introduced_date"`
	LineName          string               `yaml:"line_name"`
	ParentCodeM       string               `yaml:"parent_code_m"`
	ParentCodeF       string               `yaml:"parent_code_f"`
	Notes             string               `yaml:"notes"`
	Photos            []photoFixture       `yaml:"photos"`
	Measurements      []measurementFixture `yaml:"measurements"`
}

type photoFixture struct {
	URL string `yaml:"url"`
}

type measurementFixture struct {
	MeasuredAt time.Time `yaml:"measured_at"`
	WeightG    *float64  `yaml:"weight_g"`
	LengthMm   *float64  `yaml:"length_mm"`
	JawWidthMm *float64  `yaml:"jaw_width_mm"`
	Note       string    `yaml:"note"`
}

type jobFixture struct {
	ID               string          `yaml:"id"`
	Kind             string          `yaml:"kind"`
	Type             string          `yaml:"type"`
	Status           string          `yaml:"status"`
	OwnerID          string          `yaml:"owner_id"`
	Result           string          `yaml:"result"`
	ImportMode       string          `yaml:"import_mode"`
	TargetID         string          `yaml:"target_id"`
	ArtifactFilename string          `yaml:"artifact_filename"`
	SubmittedAt      time.Time       `yaml:"submitted_at"`
	RowErrors        []rowErrFixture `yaml:"row_errors"`
}

type rowErrFixture struct {
	Line    int    `yaml:"line"`
	Field   string `yaml:"field"`
	Message string `yaml:"message"`
}

// Repositories は投入先のリポジトリ。
type Repositories struct {
	Users       repository.UserRepository
	Individuals repository.IndividualRepository
	Jobs        repository.JobRepository
}

// Demo は埋め込みのデモデータを返す。
func Demo() (*Fixture, error) {
	return Parse(demoYAML)
}

// Parse はYAMLの初期データを解析し、列挙値を検証する。
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("初期データの解析に失敗しました: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	for _, u := range f.Users {
		if u.ID == "" || u.Email == "" {
			return fmt.Errorf("ユーザーのidとemailは必須です")
		}
		if !model.Plan(u.Plan).Valid() {
			return fmt.Errorf("ユーザー %s のプランが正しくありません: %q", u.ID, u.Plan)
		}
		if s := model.UserStatus(u.Status); s != model.UserStatusActive && s != model.UserStatusSuspended {
			return fmt.Errorf("ユーザー %s の状態が正しくありません: %q", u.ID, u.Status)
		}
	}
	for _, ind := range f.Individuals {
		if !model.Stage(ind.Stage).Valid() || !model.Sex(ind.Sex).Valid() {
			return fmt.Errorf("個体 %s のステージまたは性別が正しくありません", ind.IndividualCode)
		}
		if _, err := time.Parse(model.DateLayout, ind.IntroducedDate); err != nil {
			return fmt.Errorf("個体 %s の導入日が正しくありません: %w", ind.IndividualCode, err)
		}
	}
	for _, j := range f.Jobs {
		if !model.JobKind(j.Kind).Valid() {
			return fmt.Errorf("ジョブ %s の種別が正しくありません: %q", j.ID, j.Kind)
		}
	}
	return nil
}

// Load はユーザーが1件も存在しない場合に限り初期データを投入する。
// 投入した場合はtrueを返す。
func Load(ctx context.Context, repos Repositories, f *Fixture) (bool, error) {
	existing, err := repos.Users.List(ctx)
	if err != nil {
		return false, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("既存データがあるため初期データの投入をスキップします", slog.Int("users", len(existing)))
		return false, nil
	}

	for _, u := range f.Users {
		if err := repos.Users.Create(ctx, u.toModel()); err != nil {
			return false, fmt.Errorf("ユーザー %s の投入に失敗しました: %w", u.ID, err)
		}
	}
	for _, fi := range f.Individuals {
		if err := loadIndividual(ctx, repos.Individuals, fi); err != nil {
			return false, err
		}
	}
	for _, j := range f.Jobs {
		if err := repos.Jobs.Create(ctx, j.toModel()); err != nil {
			return false, fmt.Errorf("ジョブ %s の投入に失敗しました: %w", j.ID, err)
		}
	}

	slog.Info("初期データを投入しました",
		slog.Int("users", len(f.Users)),
		slog.Int("individuals", len(f.Individuals)),
		slog.Int("jobs", len(f.Jobs)),
	)
	return true, nil
}

func loadIndividual(ctx context.Context, repo repository.IndividualRepository, fi individualFixture) error {
	introduced, _ := time.Parse(model.DateLayout, fi.IntroducedDate)
	ind := &model.Individual{
		ID:      fi.ID,
		OwnerID: fi.OwnerID,
		IndividualDraft: model.IndividualDraft{
			IndividualCode:    fi.IndividualCode,
			SpeciesCommon:     fi.SpeciesCommon,
			SpeciesScientific: fi.SpeciesScientific,
			Stage:             model.Stage(fi.Stage),
			Sex:               model.Sex(fi.Sex),
			BirthDate:         model.StringPtr(fi.BirthDate),
			IntroducedDate:    fi.IntroducedDate,
			LineName:          model.StringPtr(fi.LineName),
			ParentCodeM:       model.StringPtr(fi.ParentCodeM),
			ParentCodeF:       model.StringPtr(fi.ParentCodeF),
			Notes:             model.StringPtr(fi.Notes),
		},
		Photos:       []model.Photo{},
		Measurements: []model.Measurement{},
		CreatedAt:    introduced,
		UpdatedAt:    introduced,
	}
	if err := repo.Create(ctx, ind); err != nil {
		return fmt.Errorf("個体 %s の投入に失敗しました: %w", fi.IndividualCode, err)
	}

	for i, p := range fi.Photos {
		photo := model.Photo{
			ID:        fmt.Sprintf("%s-photo-%d", fi.ID, i+1),
			URL:       p.URL,
			ThumbURL:  record.ThumbnailURL(p.URL),
			CreatedAt: introduced,
			IsPrimary: i == 0,
		}
		if err := repo.AppendPhoto(ctx, fi.ID, photo); err != nil {
			return fmt.Errorf("個体 %s の写真の投入に失敗しました: %w", fi.IndividualCode, err)
		}
	}
	for i, m := range fi.Measurements {
		meas := model.Measurement{
			ID:         fmt.Sprintf("%s-m-%d", fi.ID, i+1),
			MeasuredAt: m.MeasuredAt,
			WeightG:    m.WeightG,
			LengthMm:   m.LengthMm,
			JawWidthMm: m.JawWidthMm,
			Note:       model.StringPtr(m.Note),
		}
		if err := repo.AppendMeasurement(ctx, fi.ID, meas); err != nil {
			return fmt.Errorf("個体 %s の計測値の投入に失敗しました: %w", fi.IndividualCode, err)
		}
	}
	return nil
}

func (u userFixture) toModel() *model.User {
	return &model.User{
		ID:        u.ID,
		Email:     u.Email,
		Status:    model.UserStatus(u.Status),
		Plan:      model.Plan(u.Plan),
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.CreatedAt,
	}
}

func (j jobFixture) toModel() *model.Job {
	m := &model.Job{
		ID:          j.ID,
		Kind:        model.JobKind(j.Kind),
		Type:        j.Type,
		Status:      model.JobStatus(j.Status),
		OwnerID:     j.OwnerID,
		SubmittedAt: j.SubmittedAt,
		UpdatedAt:   j.SubmittedAt,
		Result:      j.Result,
		Attempts:    1,
		ImportMode:  model.ImportMode(j.ImportMode),
		TargetID:    j.TargetID,
		RowErrors:   []model.RowError{},
	}
	for _, re := range j.RowErrors {
		m.RowErrors = append(m.RowErrors, model.RowError{Line: re.Line, Field: re.Field, Message: re.Message})
	}
	// デモの生成物は実ファイルを持たないため、ダウンロードはARTIFACT_NOT_FOUNDになる
	if j.ArtifactFilename != "" {
		m.Artifact = &model.Artifact{Filename: j.ArtifactFilename, URL: job.ArtifactURL(j.ID)}
	}
	return m
}
