package record

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/beetlebase/internal/blob"
	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/repository"
	"github.com/hitoshi/beetlebase/internal/security"
)

// --- モック ---

type stubPlans struct {
	mu    sync.Mutex
	plans map[string]model.Plan
	err   error
}

func (s *stubPlans) PlanOf(ctx context.Context, userID string) (model.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.plans[userID], nil
}

func (s *stubPlans) set(userID string, p model.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[userID] = p
}

type stubGuard struct{ err error }

func (g stubGuard) ValidateURL(string) error { return g.err }
func (g stubGuard) NewSafeClient(time.Duration) *http.Client {
	return nil
}

var fixedNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *stubPlans, *repository.MemoryIndividualRepo) {
	t.Helper()
	repo := repository.NewMemoryIndividualRepo()
	plans := &stubPlans{plans: map[string]model.Plan{"u1": model.PlanFree, "u2": model.PlanFree}}
	svc := NewService(repo, plans, security.NewTextSanitizer()).
		WithClock(func() time.Time { return fixedNow })
	return svc, plans, repo
}

func validDraft(code string) model.IndividualDraft {
	return model.IndividualDraft{
		IndividualCode:    code,
		SpeciesCommon:     "国産オオクワガタ",
		SpeciesScientific: "Dorcus hopei binodulosus",
		Stage:             model.StageAdult,
		Sex:               model.SexMale,
		BirthDate:         model.StringPtr("2023-07-15"),
		IntroducedDate:    "2024-01-10",
		LineName:          model.StringPtr("YG-Bloodline"),
		ParentCodeM:       model.StringPtr("YG-2022-A"),
		ParentCodeF:       model.StringPtr("YG-2022-B"),
		Notes:             model.StringPtr("羽化後、非常に元気。"),
	}
}

// --- テスト ---

func TestAddIndividual_AssignsIDAndEmptyCollections(t *testing.T) {
	svc, _, _ := newTestService(t)

	ind, err := svc.AddIndividual(context.Background(), "u1", validDraft("DHO-2024-001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ind.ID == "" {
		t.Error("expected generated id")
	}
	if ind.OwnerID != "u1" {
		t.Errorf("expected owner u1, got %s", ind.OwnerID)
	}
	if ind.Photos == nil || len(ind.Photos) != 0 || ind.Measurements == nil || len(ind.Measurements) != 0 {
		t.Errorf("expected empty photo/measurement lists, got %v / %v", ind.Photos, ind.Measurements)
	}
	if !ind.CreatedAt.Equal(fixedNow) {
		t.Errorf("expected CreatedAt %v, got %v", fixedNow, ind.CreatedAt)
	}
}

func TestAddIndividual_FreeQuota(t *testing.T) {
	svc, plans, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.AddIndividual(ctx, "u1", validDraft(fmt.Sprintf("C-%d", i))); err != nil {
			t.Fatalf("add %d: unexpected error: %v", i, err)
		}
	}

	_, err := svc.AddIndividual(ctx, "u1", validDraft("C-6"))
	if !model.HasCode(err, model.ErrCodeQuotaExceeded) {
		t.Fatalf("expected QUOTA_EXCEEDED at 5 individuals, got %v", err)
	}

	// 他のユーザーの上限には影響しない
	if _, err := svc.AddIndividual(ctx, "u2", validDraft("X-1")); err != nil {
		t.Fatalf("u2: unexpected error: %v", err)
	}

	// アップグレード直後の操作から現在のプランで判定される
	plans.set("u1", model.PlanPro)
	if _, err := svc.AddIndividual(ctx, "u1", validDraft("C-6")); err != nil {
		t.Fatalf("expected pro plan to allow more individuals, got %v", err)
	}
}

func TestAddIndividual_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)

	draft := validDraft("")
	draft.SpeciesCommon = " "
	draft.IntroducedDate = "2024/01/10"
	draft.Stage = "imago"
	draft.BirthDate = model.StringPtr("yesterday")

	_, err := svc.AddIndividual(context.Background(), "u1", draft)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}

	fields := map[string]bool{}
	for _, d := range apiErr.Details {
		fields[d.Field] = true
	}
	for _, f := range []string{"individualCode", "speciesCommon", "introducedDate", "stage", "birthDate"} {
		if !fields[f] {
			t.Errorf("expected field error for %s, got %+v", f, apiErr.Details)
		}
	}
}

func TestAddIndividual_NormalizesAndSanitizes(t *testing.T) {
	svc, _, _ := newTestService(t)

	draft := validDraft("  DHO-9 ")
	draft.Stage = ""
	draft.Sex = "FEMALE"
	draft.Notes = model.StringPtr(`<script>alert(1)</script>元気`)
	draft.LineName = model.StringPtr("   ")

	ind, err := svc.AddIndividual(context.Background(), "u1", draft)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ind.IndividualCode != "DHO-9" {
		t.Errorf("expected trimmed code, got %q", ind.IndividualCode)
	}
	if ind.Stage != model.StageUnknown || ind.Sex != model.SexFemale {
		t.Errorf("expected unknown/female, got %s/%s", ind.Stage, ind.Sex)
	}
	if model.StringValue(ind.Notes) != "元気" {
		t.Errorf("expected sanitized notes, got %q", model.StringValue(ind.Notes))
	}
	if ind.LineName != nil {
		t.Errorf("expected blank line name to become nil, got %q", *ind.LineName)
	}
}

func TestAddIndividual_PlanLookupError(t *testing.T) {
	svc, plans, _ := newTestService(t)
	plans.err = model.NewUserNotFoundError()

	_, err := svc.AddIndividual(context.Background(), "ghost", validDraft("A"))
	if !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
}

func TestAddPhoto_FirstIsPrimary(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ind, _ := svc.AddIndividual(ctx, "u1", validDraft("DHO-2024-001"))

	for i := 0; i < 3; i++ {
		if _, err := svc.AddPhoto(ctx, "u1", ind.ID, fmt.Sprintf("https://picsum.photos/seed/p%d/600/400", i)); err != nil {
			t.Fatalf("photo %d: unexpected error: %v", i, err)
		}
	}

	got, _ := svc.Get(ctx, "u1", ind.ID)
	if len(got.Photos) != 3 {
		t.Fatalf("expected 3 photos, got %d", len(got.Photos))
	}
	want := []bool{true, false, false}
	for i, p := range got.Photos {
		if p.IsPrimary != want[i] {
			t.Errorf("photo[%d].IsPrimary = %v, want %v", i, p.IsPrimary, want[i])
		}
	}
	if got.Photos[0].ThumbURL != "https://picsum.photos/seed/p0/300/200" {
		t.Errorf("unexpected thumb url %s", got.Photos[0].ThumbURL)
	}
	if !got.Photos[0].CreatedAt.Equal(fixedNow) {
		t.Errorf("expected CreatedAt %v, got %v", fixedNow, got.Photos[0].CreatedAt)
	}
}

func TestAddPhoto_QuotaBoundary(t *testing.T) {
	tests := []struct {
		name     string
		plan     model.Plan
		existing int
		wantErr  bool
	}{
		{"free 9枚は追加可能", model.PlanFree, 9, false},
		{"free 10枚で拒否", model.PlanFree, 10, true},
		{"free 11枚でも拒否", model.PlanFree, 11, true},
		{"pro 10枚は追加可能", model.PlanPro, 10, false},
		{"pro 50枚で拒否", model.PlanPro, 50, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, plans, repo := newTestService(t)
			ctx := context.Background()
			plans.set("u1", tt.plan)
			ind, err := svc.AddIndividual(ctx, "u1", validDraft("Q-1"))
			if err != nil {
				t.Fatalf("setup: %v", err)
			}
			for i := 0; i < tt.existing; i++ {
				_ = repo.AppendPhoto(ctx, ind.ID, model.Photo{ID: fmt.Sprintf("p%d", i)})
			}

			_, err = svc.AddPhoto(ctx, "u1", ind.ID, "https://example.com/x.jpg")
			if tt.wantErr != model.HasCode(err, model.ErrCodeQuotaExceeded) {
				t.Fatalf("wantErr=%v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAddPhoto_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ind, _ := svc.AddIndividual(ctx, "u1", validDraft("A"))

	if _, err := svc.AddPhoto(ctx, "u1", "missing", "https://example.com/a.jpg"); !model.HasCode(err, model.ErrCodeIndividualNotFound) {
		t.Errorf("expected INDIVIDUAL_NOT_FOUND, got %v", err)
	}
	// 他人の個体は存在しないものとして扱う
	if _, err := svc.AddPhoto(ctx, "u2", ind.ID, "https://example.com/a.jpg"); !model.HasCode(err, model.ErrCodeIndividualNotFound) {
		t.Errorf("expected INDIVIDUAL_NOT_FOUND for other owner, got %v", err)
	}
}

func TestAddPhoto_DataURIStoredInBlob(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	store := blob.NewMemoryStore()
	svc.WithPhotoResolver(NewBlobPhotoResolver(store, stubGuard{}, 1024))
	ind, _ := svc.AddIndividual(ctx, "u1", validDraft("A"))

	// 1x1 PNGのヘッダーのみ
	photo, err := svc.AddPhoto(ctx, "u1", ind.ID, "data:image/png;base64,iVBORw0KGgo=")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantURL := fmt.Sprintf("%s%s/%s.png", PhotoURLPrefix, ind.ID, photo.ID)
	if photo.URL != wantURL || photo.ThumbURL != wantURL {
		t.Errorf("unexpected urls: %s / %s", photo.URL, photo.ThumbURL)
	}

	obj, err := store.Get(ctx, blob.PhotoKey(ind.ID, photo.ID, ".png"))
	if err != nil {
		t.Fatalf("expected stored blob: %v", err)
	}
	if obj.ContentType != "image/png" || len(obj.Data) != 8 {
		t.Errorf("unexpected object: %s %d bytes", obj.ContentType, len(obj.Data))
	}
}

func TestAddPhoto_ResolverRejections(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	svc.WithPhotoResolver(NewBlobPhotoResolver(blob.NewMemoryStore(), stubGuard{err: errors.New("blocked")}, 4))
	ind, _ := svc.AddIndividual(ctx, "u1", validDraft("A"))

	inputs := []string{
		"http://127.0.0.1/a.jpg",
		"data:text/html;base64,PGI+",
		"data:image/png;base64,iVBORw0KGgo=",
		"data:image/png;base64,!!!",
		"",
	}
	for _, in := range inputs {
		if _, err := svc.AddPhoto(ctx, "u1", ind.ID, in); !model.HasCode(err, model.ErrCodeValidation) {
			t.Errorf("AddPhoto(%q): expected VALIDATION_ERROR, got %v", in, err)
		}
	}

	got, _ := svc.Get(ctx, "u1", ind.ID)
	if len(got.Photos) != 0 {
		t.Errorf("expected no photos after rejections, got %d", len(got.Photos))
	}
}

// blockingResolver はreleaseが閉じられるまで保存処理を止める。
type blockingResolver struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingResolver) Resolve(ctx context.Context, individualID, photoID, raw string) (string, error) {
	close(r.started)
	<-r.release
	return raw, nil
}

func (r *blockingResolver) Release(ctx context.Context, resolved string) error { return nil }

// hookResolver は保存の直前にbeforeを呼び出す。
type hookResolver struct {
	PhotoResolver
	before func()
}

func (r *hookResolver) Resolve(ctx context.Context, individualID, photoID, raw string) (string, error) {
	r.before()
	return r.PhotoResolver.Resolve(ctx, individualID, photoID, raw)
}

// failingAppendRepo は写真の追加だけを失敗させる。
type failingAppendRepo struct {
	*repository.MemoryIndividualRepo
}

func (r failingAppendRepo) AppendPhoto(ctx context.Context, individualID string, photo model.Photo) error {
	return errors.New("disk full")
}

func TestAddPhoto_SlowUploadDoesNotBlockOtherWrites(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ind, _ := svc.AddIndividual(ctx, "u1", validDraft("A"))
	resolver := &blockingResolver{started: make(chan struct{}), release: make(chan struct{})}
	svc.WithPhotoResolver(resolver)

	photoDone := make(chan error, 1)
	go func() {
		_, err := svc.AddPhoto(ctx, "u1", ind.ID, "https://example.com/a.jpg")
		photoDone <- err
	}()
	<-resolver.started

	writeDone := make(chan error, 2)
	go func() {
		_, err := svc.AddIndividual(ctx, "u2", validDraft("B"))
		writeDone <- err
	}()
	go func() {
		_, err := svc.AddIndividual(ctx, "u1", validDraft("C"))
		writeDone <- err
	}()
	for i := 0; i < 2; i++ {
		select {
		case err := <-writeDone:
			if err != nil {
				t.Fatalf("AddIndividual: %v", err)
			}
		case <-time.After(2 * time.Second):
			close(resolver.release)
			t.Fatal("AddIndividual blocked while a photo upload was in progress")
		}
	}

	close(resolver.release)
	if err := <-photoDone; err != nil {
		t.Fatalf("AddPhoto: %v", err)
	}
}

func TestAddPhoto_QuotaRecheckedAfterUpload(t *testing.T) {
	svc, _, repo := newTestService(t)
	ctx := context.Background()
	store := blob.NewMemoryStore()
	ind, _ := svc.AddIndividual(ctx, "u1", validDraft("A"))
	svc.WithPhotoResolver(&hookResolver{
		PhotoResolver: NewBlobPhotoResolver(store, stubGuard{}, 1024),
		before: func() {
			// 保存中に他の追加で上限に達した
			for i := 0; i < 10; i++ {
				_ = repo.AppendPhoto(ctx, ind.ID, model.Photo{ID: fmt.Sprintf("p%d", i)})
			}
		},
	})

	_, err := svc.AddPhoto(ctx, "u1", ind.ID, "data:image/png;base64,iVBORw0KGgo=")
	if !model.HasCode(err, model.ErrCodeQuotaExceeded) {
		t.Fatalf("expected QUOTA_EXCEEDED, got %v", err)
	}
	if objs, _ := store.List(ctx, blob.PrefixPhotos); len(objs) != 0 {
		t.Errorf("expected rejected photo to be removed, found %d objects", len(objs))
	}
	got, _ := svc.Get(ctx, "u1", ind.ID)
	if len(got.Photos) != 10 {
		t.Errorf("expected 10 photos, got %d", len(got.Photos))
	}
}

func TestAddPhoto_RemovesStoredPhotoWhenAppendFails(t *testing.T) {
	mem := repository.NewMemoryIndividualRepo()
	plans := &stubPlans{plans: map[string]model.Plan{"u1": model.PlanFree}}
	store := blob.NewMemoryStore()
	svc := NewService(failingAppendRepo{mem}, plans, security.NewTextSanitizer()).
		WithPhotoResolver(NewBlobPhotoResolver(store, stubGuard{}, 1024))
	ctx := context.Background()
	ind, err := svc.AddIndividual(ctx, "u1", validDraft("A"))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := svc.AddPhoto(ctx, "u1", ind.ID, "data:image/png;base64,iVBORw0KGgo="); err == nil {
		t.Fatal("expected append failure")
	}
	if objs, _ := store.List(ctx, blob.PrefixPhotos); len(objs) != 0 {
		t.Errorf("expected orphaned photo to be removed, found %d objects", len(objs))
	}
}

func TestUpdateIndividual_Idempotent(t *testing.T) {
	svc, _, repo := newTestService(t)
	ctx := context.Background()
	ind, _ := svc.AddIndividual(ctx, "u1", validDraft("A"))
	_, _ = svc.AddPhoto(ctx, "u1", ind.ID, "https://example.com/a.jpg")

	later := fixedNow.Add(time.Hour)
	svc.WithClock(func() time.Time { return later })

	upd := ind.Clone()
	upd.Stage = model.StagePupa
	upd.Photos = nil

	first, err := svc.UpdateIndividual(ctx, "u1", upd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	afterFirst, _ := repo.FindByID(ctx, ind.ID)

	svc.WithClock(func() time.Time { return later.Add(time.Hour) })
	if _, err := svc.UpdateIndividual(ctx, "u1", upd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	afterSecond, _ := repo.FindByID(ctx, ind.ID)

	if first.Stage != model.StagePupa {
		t.Errorf("expected pupa, got %s", first.Stage)
	}
	if len(afterFirst.Photos) != 1 {
		t.Errorf("expected photo to be preserved, got %d", len(afterFirst.Photos))
	}
	if !afterFirst.UpdatedAt.Equal(afterSecond.UpdatedAt) || afterFirst.Stage != afterSecond.Stage {
		t.Errorf("second identical update changed state: %v -> %v", afterFirst.UpdatedAt, afterSecond.UpdatedAt)
	}
}

func TestUpdateIndividual_NotFoundAndValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ind, _ := svc.AddIndividual(ctx, "u1", validDraft("A"))

	missing := ind.Clone()
	missing.ID = "nope"
	if _, err := svc.UpdateIndividual(ctx, "u1", missing); !model.HasCode(err, model.ErrCodeIndividualNotFound) {
		t.Errorf("expected INDIVIDUAL_NOT_FOUND, got %v", err)
	}
	if _, err := svc.UpdateIndividual(ctx, "u2", ind); !model.HasCode(err, model.ErrCodeIndividualNotFound) {
		t.Errorf("expected INDIVIDUAL_NOT_FOUND for other owner, got %v", err)
	}

	bad := ind.Clone()
	bad.IntroducedDate = ""
	if _, err := svc.UpdateIndividual(ctx, "u1", bad); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCopyAsDraft(t *testing.T) {
	svc, _, _ := newTestService(t)
	src := &model.Individual{ID: "1", OwnerID: "u1", IndividualDraft: validDraft("DHO-2024-001")}

	d := svc.CopyAsDraft(src)
	if d.IndividualCode != "" || d.BirthDate != nil || d.Notes != nil {
		t.Errorf("expected identity-sensitive fields to be cleared, got %+v", d)
	}
	if d.IntroducedDate != "2024-06-01" {
		t.Errorf("expected introducedDate to be today, got %s", d.IntroducedDate)
	}
	if d.SpeciesCommon != src.SpeciesCommon || d.Stage != src.Stage || d.Sex != src.Sex ||
		model.StringValue(d.LineName) != "YG-Bloodline" || model.StringValue(d.ParentCodeM) != "YG-2022-A" ||
		model.StringValue(d.ParentCodeF) != "YG-2022-B" {
		t.Errorf("expected species/stage/sex/lineage to be kept, got %+v", d)
	}

	// 下書きの変更が元の個体に影響しないこと
	*d.LineName = "changed"
	if model.StringValue(src.LineName) != "YG-Bloodline" {
		t.Error("draft shares lineage pointer with source")
	}
}

func TestAddMeasurement_LatestWeightUsesMeasuredAt(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ind, _ := svc.AddIndividual(ctx, "u1", validDraft("DHO-2024-001"))

	inputs := []struct {
		at     string
		weight float64
	}{
		{"2023-11-01T09:00:00Z", 32.5},
		{"2024-05-15T09:00:00Z", 31.8},
		{"2024-02-01T09:00:00Z", 34.1},
	}
	for _, in := range inputs {
		at, _ := time.Parse(time.RFC3339, in.at)
		if _, err := svc.AddMeasurement(ctx, "u1", ind.ID, MeasurementInput{MeasuredAt: at, WeightG: model.FloatPtr(in.weight)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, _ := svc.Get(ctx, "u1", ind.ID)
	w, ok := got.LatestWeightG()
	if !ok || w != 31.8 {
		t.Errorf("expected latest weight 31.8, got %v (%v)", w, ok)
	}
}

func TestAddMeasurement_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ind, _ := svc.AddIndividual(ctx, "u1", validDraft("A"))

	if _, err := svc.AddMeasurement(ctx, "u1", ind.ID, MeasurementInput{MeasuredAt: fixedNow}); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("expected VALIDATION_ERROR without values, got %v", err)
	}
	if _, err := svc.AddMeasurement(ctx, "u1", ind.ID, MeasurementInput{WeightG: model.FloatPtr(1)}); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("expected VALIDATION_ERROR without measuredAt, got %v", err)
	}
	if _, err := svc.AddMeasurement(ctx, "u1", ind.ID, MeasurementInput{MeasuredAt: fixedNow, LengthMm: model.FloatPtr(-1)}); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("expected VALIDATION_ERROR for negative value, got %v", err)
	}
	if _, err := svc.AddMeasurement(ctx, "u1", "missing", MeasurementInput{MeasuredAt: fixedNow, WeightG: model.FloatPtr(1)}); !model.HasCode(err, model.ErrCodeIndividualNotFound) {
		t.Errorf("expected INDIVIDUAL_NOT_FOUND, got %v", err)
	}
}

func TestFindPublic(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ind, _ := svc.AddIndividual(ctx, "u1", validDraft("DHO-2024-001"))

	got, err := svc.FindPublic(ctx, "dho-2024-001")
	if err != nil || got.ID != ind.ID {
		t.Fatalf("expected %s, got %v, %v", ind.ID, got, err)
	}
	if _, err := svc.FindPublic(ctx, "none"); !model.HasCode(err, model.ErrCodeIndividualNotFound) {
		t.Errorf("expected INDIVIDUAL_NOT_FOUND, got %v", err)
	}
}

func TestAddIndividual_ConcurrentQuota(t *testing.T) {
	svc, _, repo := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.AddIndividual(ctx, "u1", validDraft(fmt.Sprintf("R-%d", i)))
		}(i)
	}
	wg.Wait()

	n, _ := repo.CountByOwner(ctx, "u1")
	if n != 5 {
		t.Errorf("expected exactly 5 individuals under free plan, got %d", n)
	}
}
