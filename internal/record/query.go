package record

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hitoshi/beetlebase/internal/model"
)

// SortKey は個体一覧の並び替えキー。
type SortKey string

const (
	SortRegistered     SortKey = ""
	SortCode           SortKey = "code"
	SortSpecies        SortKey = "species"
	SortStage          SortKey = "stage"
	SortIntroducedDate SortKey = "introducedDate"
	SortLatestWeight   SortKey = "latestWeight"
)

// Valid は並び替えキーが定義済みの値かを返す。
func (k SortKey) Valid() bool {
	switch k {
	case SortRegistered, SortCode, SortSpecies, SortStage, SortIntroducedDate, SortLatestWeight:
		return true
	}
	return false
}

// ListQuery は個体一覧の検索条件。
type ListQuery struct {
	// Search は個体コード・和名・系統名に対する大文字小文字を区別しない部分一致。
	Search string
	Sort   SortKey
	Desc   bool
}

// stageOrder はライフステージの成長順。
var stageOrder = map[model.Stage]int{
	model.StageEgg:     0,
	model.StageLarva:   1,
	model.StagePupa:    2,
	model.StageAdult:   3,
	model.StageUnknown: 4,
}

// List は所有者の個体を検索・並び替えして返す。
func (s *Service) List(ctx context.Context, ownerID string, q ListQuery) ([]*model.Individual, error) {
	if !q.Sort.Valid() {
		return nil, model.NewValidationError(model.FieldError{Field: "sort", Message: "並び替えキーが正しくありません"})
	}

	all, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("個体一覧の取得に失敗しました: %w", err)
	}

	result := filterIndividuals(all, q.Search)
	sortIndividuals(result, q.Sort, q.Desc)
	return result, nil
}

func filterIndividuals(all []*model.Individual, search string) []*model.Individual {
	needle := strings.ToLower(strings.TrimSpace(search))
	result := make([]*model.Individual, 0, len(all))
	for _, ind := range all {
		if needle == "" ||
			strings.Contains(strings.ToLower(ind.IndividualCode), needle) ||
			strings.Contains(strings.ToLower(ind.SpeciesCommon), needle) ||
			strings.Contains(strings.ToLower(model.StringValue(ind.LineName)), needle) {
			result = append(result, ind)
		}
	}
	return result
}

// sortIndividuals は安定ソートで並び替える。最新体重の並び替えでは体重のない個体を常に末尾に置く。
func sortIndividuals(inds []*model.Individual, key SortKey, desc bool) {
	if key == SortRegistered {
		if desc {
			for i, j := 0, len(inds)-1; i < j; i, j = i+1, j-1 {
				inds[i], inds[j] = inds[j], inds[i]
			}
		}
		return
	}

	compare := func(a, b *model.Individual) int {
		switch key {
		case SortCode:
			return strings.Compare(a.IndividualCode, b.IndividualCode)
		case SortSpecies:
			return strings.Compare(a.SpeciesCommon, b.SpeciesCommon)
		case SortStage:
			return stageOrder[a.Stage] - stageOrder[b.Stage]
		case SortIntroducedDate:
			return strings.Compare(a.IntroducedDate, b.IntroducedDate)
		}
		return 0
	}

	sort.SliceStable(inds, func(i, j int) bool {
		if key == SortLatestWeight {
			wi, oki := inds[i].LatestWeightG()
			wj, okj := inds[j].LatestWeightG()
			if oki != okj {
				return oki
			}
			if desc {
				return wi > wj
			}
			return wi < wj
		}
		c := compare(inds[i], inds[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func sortFieldErrors(errs []model.FieldError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
}
