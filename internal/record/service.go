// Package record は個体・写真・計測記録の管理とプラン上限による制御を提供する。
package record

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/beetlebase/internal/metrics"
	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/plan"
	"github.com/hitoshi/beetlebase/internal/repository"
	"github.com/hitoshi/beetlebase/internal/security"
)

// PlanReader は所有者の現在のプランを返す。
// 上限判定のたびに呼び出され、結果はキャッシュしない。
type PlanReader interface {
	PlanOf(ctx context.Context, userID string) (model.Plan, error)
}

// Service は個体記録のサービス層。
// 上限判定から書き込みまでを所有者ごとに排他制御し、判定と追加の間に同じ所有者の書き込みが割り込まないようにする。
type Service struct {
	repo      repository.IndividualRepository
	plans     PlanReader
	sanitizer security.TextSanitizer
	photos    PhotoResolver
	metrics   metrics.MetricsCollector
	now       func() time.Time
	newID     func() string
	locks     ownerLocks
}

// ownerLocks は所有者IDごとのロックを参照数付きで保持する。
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

// lock は所有者のロックを取得し、解放する関数を返す。
func (l *ownerLocks) lock(ownerID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*ownerLock)
	}
	ol, ok := l.locks[ownerID]
	if !ok {
		ol = &ownerLock{}
		l.locks[ownerID] = ol
	}
	ol.refs++
	l.mu.Unlock()

	ol.mu.Lock()
	return func() {
		ol.mu.Unlock()
		l.mu.Lock()
		ol.refs--
		if ol.refs == 0 {
			delete(l.locks, ownerID)
		}
		l.mu.Unlock()
	}
}

// NewService はServiceを生成する。
func NewService(repo repository.IndividualRepository, plans PlanReader, sanitizer security.TextSanitizer) *Service {
	return &Service{
		repo:      repo,
		plans:     plans,
		sanitizer: sanitizer,
		metrics:   metrics.Nop{},
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// WithPhotoResolver は写真入力の変換処理を設定する。未設定の場合は入力URLをそのまま保存する。
func (s *Service) WithPhotoResolver(r PhotoResolver) *Service {
	s.photos = r
	return s
}

// WithMetrics はメトリクス収集を設定する。
func (s *Service) WithMetrics(m metrics.MetricsCollector) *Service {
	s.metrics = m
	return s
}

// WithClock は時刻取得関数を差し替える。
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AddIndividual は個体を登録する。
// 呼び出し側での上限確認に頼らず、所有者の現在のプランで登録数上限を再確認する。
func (s *Service) AddIndividual(ctx context.Context, ownerID string, draft model.IndividualDraft) (*model.Individual, error) {
	defer s.locks.lock(ownerID)()

	p, err := s.plans.PlanOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("登録個体数の取得に失敗しました: %w", err)
	}
	if plan.IsAtIndividualLimit(p, count) {
		s.metrics.RecordQuotaRejected(string(model.QuotaIndividuals))
		return nil, model.NewQuotaExceededError(model.QuotaIndividuals, plan.LimitsFor(p).Individuals)
	}

	normalized, fieldErrs := normalizeDraft(draft, s.sanitizer)
	if len(fieldErrs) > 0 {
		return nil, model.NewValidationError(fieldErrs...)
	}

	now := s.now()
	ind := &model.Individual{
		ID:              s.newID(),
		OwnerID:         ownerID,
		IndividualDraft: normalized,
		Photos:          []model.Photo{},
		Measurements:    []model.Measurement{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, ind); err != nil {
		return nil, fmt.Errorf("個体の登録に失敗しました: %w", err)
	}

	slog.Info("個体を登録しました",
		slog.String("individual_id", ind.ID),
		slog.String("owner_id", ownerID),
		slog.String("individual_code", ind.IndividualCode),
	)
	return ind, nil
}

// UpdateIndividual は保存済みの個体の登録内容を置き換える。
// ID・所有者・写真・計測値は保存済みの値を維持する。
// 内容が変わらない場合は書き込みを行わないため、同じ入力で何度呼んでも結果は同じになる。
func (s *Service) UpdateIndividual(ctx context.Context, ownerID string, ind *model.Individual) (*model.Individual, error) {
	defer s.locks.lock(ownerID)()

	stored, err := s.getOwned(ctx, ownerID, ind.ID)
	if err != nil {
		return nil, err
	}

	normalized, fieldErrs := normalizeDraft(ind.IndividualDraft, s.sanitizer)
	if len(fieldErrs) > 0 {
		return nil, model.NewValidationError(fieldErrs...)
	}
	if reflect.DeepEqual(stored.IndividualDraft, normalized) {
		return stored, nil
	}

	stored.IndividualDraft = normalized
	stored.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, stored); err != nil {
		return nil, fmt.Errorf("個体の更新に失敗しました: %w", err)
	}
	return stored, nil
}

// AddPhoto は個体に写真を追加する。
// 写真枚数が現在のプランの上限ちょうどに達している場合はQUOTA_EXCEEDEDを返す。
// 最初の写真のみメイン写真になる。
// 写真の保存はロックの外で行い、保存後に上限を再確認する。追加できなかった写真は削除する。
func (s *Service) AddPhoto(ctx context.Context, ownerID, individualID, photoURL string) (*model.Photo, error) {
	if _, err := s.checkPhotoQuota(ctx, ownerID, individualID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(photoURL) == "" {
		return nil, model.NewValidationError(model.FieldError{Field: "photoUrl", Message: "写真URLは必須です"})
	}

	photoID := s.newID()
	resolved := strings.TrimSpace(photoURL)
	if s.photos != nil {
		var err error
		resolved, err = s.photos.Resolve(ctx, individualID, photoID, photoURL)
		if err != nil {
			return nil, err
		}
	}

	unlock := s.locks.lock(ownerID)
	defer unlock()

	ind, err := s.checkPhotoQuota(ctx, ownerID, individualID)
	if err != nil {
		s.releasePhoto(ctx, resolved)
		return nil, err
	}

	photo := model.Photo{
		ID:        photoID,
		URL:       resolved,
		ThumbURL:  ThumbnailURL(resolved),
		CreatedAt: s.now(),
		IsPrimary: len(ind.Photos) == 0,
	}
	if err := s.repo.AppendPhoto(ctx, individualID, photo); err != nil {
		s.releasePhoto(ctx, resolved)
		return nil, fmt.Errorf("写真の追加に失敗しました: %w", err)
	}
	return &photo, nil
}

// checkPhotoQuota は所有者の個体を取得し、写真枚数が上限に達していないことを確認する。
func (s *Service) checkPhotoQuota(ctx context.Context, ownerID, individualID string) (*model.Individual, error) {
	ind, err := s.getOwned(ctx, ownerID, individualID)
	if err != nil {
		return nil, err
	}
	p, err := s.plans.PlanOf(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if plan.IsAtPhotoLimit(p, len(ind.Photos)) {
		s.metrics.RecordQuotaRejected(string(model.QuotaPhotos))
		return nil, model.NewQuotaExceededError(model.QuotaPhotos, plan.LimitsFor(p).PhotosPerIndividual)
	}
	return ind, nil
}

func (s *Service) releasePhoto(ctx context.Context, resolved string) {
	if s.photos == nil {
		return
	}
	if err := s.photos.Release(ctx, resolved); err != nil {
		slog.Warn("追加できなかった写真の削除に失敗しました",
			slog.String("url", resolved),
			slog.String("error", err.Error()),
		)
	}
}

// MeasurementInput は計測記録の入力を表す。
type MeasurementInput struct {
	MeasuredAt time.Time
	WeightG    *float64
	LengthMm   *float64
	JawWidthMm *float64
	Note       *string
}

// AddMeasurement は個体に計測記録を追加する。数値項目は1つ以上必須で、負の値は受け付けない。
func (s *Service) AddMeasurement(ctx context.Context, ownerID, individualID string, in MeasurementInput) (*model.Measurement, error) {
	var errs []model.FieldError
	if in.MeasuredAt.IsZero() {
		errs = append(errs, model.FieldError{Field: "measuredAt", Message: "計測日時は必須です"})
	}
	if in.WeightG == nil && in.LengthMm == nil && in.JawWidthMm == nil {
		errs = append(errs, model.FieldError{Field: "weightG", Message: "体重・体長・大顎幅のいずれかを入力してください"})
	}
	for field, v := range map[string]*float64{"weightG": in.WeightG, "lengthMm": in.LengthMm, "jawWidthMm": in.JawWidthMm} {
		if v != nil && *v < 0 {
			errs = append(errs, model.FieldError{Field: field, Message: "負の値は入力できません"})
		}
	}
	if len(errs) > 0 {
		sortFieldErrors(errs)
		return nil, model.NewValidationError(errs...)
	}

	defer s.locks.lock(ownerID)()

	if _, err := s.getOwned(ctx, ownerID, individualID); err != nil {
		return nil, err
	}

	m := model.Measurement{
		ID:         s.newID(),
		MeasuredAt: in.MeasuredAt.UTC(),
		WeightG:    in.WeightG,
		LengthMm:   in.LengthMm,
		JawWidthMm: in.JawWidthMm,
		Note:       sanitizeOptional(in.Note, s.sanitizer),
	}
	if err := s.repo.AppendMeasurement(ctx, individualID, m); err != nil {
		return nil, fmt.Errorf("計測記録の追加に失敗しました: %w", err)
	}
	return &m, nil
}

// CopyAsDraft は既存個体から再登録用の下書きを作成する。
// 種・ステージ・性別・血統は引き継ぎ、個体コード・生年月日・メモは空にし、導入日は今日にする。
func (s *Service) CopyAsDraft(source *model.Individual) model.IndividualDraft {
	d := source.IndividualDraft.CloneDraft()
	d.IndividualCode = ""
	d.BirthDate = nil
	d.Notes = nil
	d.IntroducedDate = s.now().Format(model.DateLayout)
	return d
}

// DraftFrom は所有者の個体から再登録用の下書きを作成する。
func (s *Service) DraftFrom(ctx context.Context, ownerID, individualID string) (model.IndividualDraft, error) {
	ind, err := s.Get(ctx, ownerID, individualID)
	if err != nil {
		return model.IndividualDraft{}, err
	}
	return s.CopyAsDraft(ind), nil
}

// Get は所有者の個体を取得する。他の所有者の個体はINDIVIDUAL_NOT_FOUNDとして扱う。
func (s *Service) Get(ctx context.Context, ownerID, individualID string) (*model.Individual, error) {
	return s.getOwned(ctx, ownerID, individualID)
}

// FindByCode は所有者の個体を個体コードで検索する。見つからない場合はnilを返す。
func (s *Service) FindByCode(ctx context.Context, ownerID, code string) (*model.Individual, error) {
	ind, err := s.repo.FindByOwnerAndCode(ctx, ownerID, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("個体コードによる検索に失敗しました: %w", err)
	}
	return ind, nil
}

// FindPublic は公開プロフィール用に個体コードで個体を検索する。
func (s *Service) FindPublic(ctx context.Context, code string) (*model.Individual, error) {
	ind, err := s.repo.FindFirstByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("公開プロフィールの取得に失敗しました: %w", err)
	}
	if ind == nil {
		return nil, model.NewIndividualNotFoundError(code)
	}
	return ind, nil
}

// Count は所有者の登録個体数を返す。
func (s *Service) Count(ctx context.Context, ownerID string) (int, error) {
	count, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("登録個体数の取得に失敗しました: %w", err)
	}
	return count, nil
}

func (s *Service) getOwned(ctx context.Context, ownerID, individualID string) (*model.Individual, error) {
	ind, err := s.repo.FindByID(ctx, individualID)
	if err != nil {
		return nil, fmt.Errorf("個体の取得に失敗しました: %w", err)
	}
	if ind == nil || ind.OwnerID != ownerID {
		return nil, model.NewIndividualNotFoundError(individualID)
	}
	return ind, nil
}
