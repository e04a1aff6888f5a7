// Package model はドメインモデルを定義する。
package model

import (
	"sort"
	"time"
)

// DateLayout は生年月日・導入日などの日付フィールドの書式。
const DateLayout = "2006-01-02"

// Stage は個体のライフステージを表す。
type Stage string

const (
	StageEgg     Stage = "egg"
	StageLarva   Stage = "larva"
	StagePupa    Stage = "pupa"
	StageAdult   Stage = "adult"
	StageUnknown Stage = "unknown"
)

// Valid はステージが定義済みの値かを返す。
func (s Stage) Valid() bool {
	switch s {
	case StageEgg, StageLarva, StagePupa, StageAdult, StageUnknown:
		return true
	}
	return false
}

// Sex は個体の性別を表す。
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// Valid は性別が定義済みの値かを返す。
func (s Sex) Valid() bool {
	switch s {
	case SexMale, SexFemale, SexUnknown:
		return true
	}
	return false
}

// IndividualDraft は個体登録の入力を表す。
// ID・写真・計測値を持たない。
type IndividualDraft struct {
	IndividualCode    string
	SpeciesCommon     string
	SpeciesScientific string
	Stage             Stage
	Sex               Sex
	BirthDate         *string
	IntroducedDate    string
	LineName          *string
	ParentCodeM       *string
	ParentCodeF       *string
	Notes             *string
}

// Individual は飼育個体を表す。
// IndividualCodeはユーザーが付与するコードで、一意であることは強制しない。
// 血統フィールド（LineName, ParentCodeM, ParentCodeF）は自由記述で、参照整合性は持たない。
type Individual struct {
	ID      string
	OwnerID string
	IndividualDraft
	Photos       []Photo
	Measurements []Measurement
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Photo は個体の写真を表す。作成後は変更されない。
type Photo struct {
	ID        string
	URL       string
	ThumbURL  string
	CreatedAt time.Time
	IsPrimary bool
}

// Measurement は個体の計測記録を表す。追記のみで、挿入順は時系列順とは限らない。
type Measurement struct {
	ID         string
	MeasuredAt time.Time
	WeightG    *float64
	LengthMm   *float64
	JawWidthMm *float64
	Note       *string
}

// PrimaryPhoto はメイン写真を返す。メイン指定がない場合は先頭の写真、写真がない場合はnilを返す。
func (ind *Individual) PrimaryPhoto() *Photo {
	for i := range ind.Photos {
		if ind.Photos[i].IsPrimary {
			return &ind.Photos[i]
		}
	}
	if len(ind.Photos) > 0 {
		return &ind.Photos[0]
	}
	return nil
}

// LatestMeasurement はMeasuredAtが最も新しい計測記録を返す。計測記録がない場合はnilを返す。
func (ind *Individual) LatestMeasurement() *Measurement {
	sorted := ind.MeasurementsByDateDesc()
	if len(sorted) == 0 {
		return nil
	}
	return &sorted[0]
}

// LatestWeightG は最新の計測記録の体重を返す。
// 最新の計測記録に体重がない場合もfalseを返す。
func (ind *Individual) LatestWeightG() (float64, bool) {
	m := ind.LatestMeasurement()
	if m == nil || m.WeightG == nil {
		return 0, false
	}
	return *m.WeightG, true
}

// MeasurementsByDateDesc は計測記録をMeasuredAt降順に並べたコピーを返す。
func (ind *Individual) MeasurementsByDateDesc() []Measurement {
	sorted := make([]Measurement, len(ind.Measurements))
	copy(sorted, ind.Measurements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MeasuredAt.After(sorted[j].MeasuredAt)
	})
	return sorted
}

// Clone は写真・計測値・任意フィールドを含めたディープコピーを返す。
func (ind *Individual) Clone() *Individual {
	if ind == nil {
		return nil
	}
	c := *ind
	c.IndividualDraft = ind.IndividualDraft.CloneDraft()
	c.Photos = append([]Photo(nil), ind.Photos...)
	c.Measurements = make([]Measurement, len(ind.Measurements))
	for i, m := range ind.Measurements {
		c.Measurements[i] = m.Clone()
	}
	return &c
}

// CloneDraft は任意フィールドのポインタを共有しないコピーを返す。
func (d IndividualDraft) CloneDraft() IndividualDraft {
	d.BirthDate = cloneString(d.BirthDate)
	d.LineName = cloneString(d.LineName)
	d.ParentCodeM = cloneString(d.ParentCodeM)
	d.ParentCodeF = cloneString(d.ParentCodeF)
	d.Notes = cloneString(d.Notes)
	return d
}

// Clone は任意フィールドのポインタを共有しないコピーを返す。
func (m Measurement) Clone() Measurement {
	m.WeightG = cloneFloat(m.WeightG)
	m.LengthMm = cloneFloat(m.LengthMm)
	m.JawWidthMm = cloneFloat(m.JawWidthMm)
	m.Note = cloneString(m.Note)
	return m
}

// StringValue は任意文字列フィールドの値を返す。nilの場合は空文字列。
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr は空文字列をnilに変換したポインタを返す。
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FloatPtr はfloat64のポインタを返す。
func FloatPtr(f float64) *float64 {
	return &f
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
