// Package plan は契約プランごとのリソース上限判定を提供する。
// すべて副作用のない純粋関数で、エラーを返さない。
package plan

import "github.com/hitoshi/beetlebase/internal/model"

// プランごとの上限値。
const (
	// FreeIndividualLimit はFreeプランの登録個体数上限。
	FreeIndividualLimit = 5
	// FreePhotoLimit はFreeプランの1個体あたりの写真枚数上限。
	FreePhotoLimit = 10
	// ProPhotoLimit はProプランの1個体あたりの写真枚数上限。
	ProPhotoLimit = 50
)

// Limits はプランの上限を表す。IndividualsUnlimitedがtrueの場合Individualsは無視される。
type Limits struct {
	Individuals          int
	IndividualsUnlimited bool
	PhotosPerIndividual  int
}

// LimitsFor はプランの上限を返す。未知のプランはFreeとして扱う。
func LimitsFor(p model.Plan) Limits {
	if p == model.PlanPro {
		return Limits{
			IndividualsUnlimited: true,
			PhotosPerIndividual:  ProPhotoLimit,
		}
	}
	return Limits{
		Individuals:         FreeIndividualLimit,
		PhotosPerIndividual: FreePhotoLimit,
	}
}

// IsAtIndividualLimit は現在の登録個体数がプランの上限に達しているかを返す。
// Proプランは常にfalse。
func IsAtIndividualLimit(p model.Plan, currentCount int) bool {
	l := LimitsFor(p)
	if l.IndividualsUnlimited {
		return false
	}
	return currentCount >= l.Individuals
}

// IsAtPhotoLimit は個体の写真枚数がプランの上限に達しているかを返す。
func IsAtPhotoLimit(p model.Plan, currentPhotoCount int) bool {
	return currentPhotoCount >= LimitsFor(p).PhotosPerIndividual
}
