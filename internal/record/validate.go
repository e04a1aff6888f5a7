package record

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/beetlebase/internal/model"
	"github.com/hitoshi/beetlebase/internal/security"
)

const (
	maxCodeLength    = 100
	maxSpeciesLength = 200
	maxNotesLength   = 2000
)

// normalizeDraft は入力を検証し、自由記述項目をサニタイズした登録内容を返す。
// 未指定のステージ・性別はunknownとして扱う。
func normalizeDraft(in model.IndividualDraft, sanitizer security.TextSanitizer) (model.IndividualDraft, []model.FieldError) {
	var errs []model.FieldError
	d := in.CloneDraft()

	d.IndividualCode = strings.TrimSpace(d.IndividualCode)
	switch {
	case d.IndividualCode == "":
		errs = append(errs, model.FieldError{Field: "individualCode", Message: "個体コードは必須です"})
	case utf8.RuneCountInString(d.IndividualCode) > maxCodeLength:
		errs = append(errs, model.FieldError{Field: "individualCode", Message: "個体コードが長すぎます"})
	}

	d.SpeciesCommon = sanitizer.SanitizeText(d.SpeciesCommon)
	switch {
	case d.SpeciesCommon == "":
		errs = append(errs, model.FieldError{Field: "speciesCommon", Message: "和名は必須です"})
	case utf8.RuneCountInString(d.SpeciesCommon) > maxSpeciesLength:
		errs = append(errs, model.FieldError{Field: "speciesCommon", Message: "和名が長すぎます"})
	}
	d.SpeciesScientific = sanitizer.SanitizeText(d.SpeciesScientific)
	if utf8.RuneCountInString(d.SpeciesScientific) > maxSpeciesLength {
		errs = append(errs, model.FieldError{Field: "speciesScientific", Message: "学名が長すぎます"})
	}

	d.Stage = model.Stage(strings.ToLower(strings.TrimSpace(string(d.Stage))))
	if d.Stage == "" {
		d.Stage = model.StageUnknown
	}
	if !d.Stage.Valid() {
		errs = append(errs, model.FieldError{Field: "stage", Message: "ステージの値が正しくありません"})
	}

	d.Sex = model.Sex(strings.ToLower(strings.TrimSpace(string(d.Sex))))
	if d.Sex == "" {
		d.Sex = model.SexUnknown
	}
	if !d.Sex.Valid() {
		errs = append(errs, model.FieldError{Field: "sex", Message: "性別の値が正しくありません"})
	}

	d.IntroducedDate = strings.TrimSpace(d.IntroducedDate)
	if d.IntroducedDate == "" {
		errs = append(errs, model.FieldError{Field: "introducedDate", Message: "導入日は必須です"})
	} else if !validDate(d.IntroducedDate) {
		errs = append(errs, model.FieldError{Field: "introducedDate", Message: "導入日はYYYY-MM-DD形式で入力してください"})
	}

	d.BirthDate = trimOptional(d.BirthDate)
	if d.BirthDate != nil && !validDate(*d.BirthDate) {
		errs = append(errs, model.FieldError{Field: "birthDate", Message: "生年月日はYYYY-MM-DD形式で入力してください"})
	}

	d.LineName = sanitizeOptional(d.LineName, sanitizer)
	d.ParentCodeM = sanitizeOptional(d.ParentCodeM, sanitizer)
	d.ParentCodeF = sanitizeOptional(d.ParentCodeF, sanitizer)
	d.Notes = sanitizeOptional(d.Notes, sanitizer)
	if d.Notes != nil && utf8.RuneCountInString(*d.Notes) > maxNotesLength {
		errs = append(errs, model.FieldError{Field: "notes", Message: "メモが長すぎます"})
	}

	return d, errs
}

func validDate(s string) bool {
	_, err := time.Parse(model.DateLayout, s)
	return err == nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	return model.StringPtr(strings.TrimSpace(*s))
}

func sanitizeOptional(s *string, sanitizer security.TextSanitizer) *string {
	if s == nil {
		return nil
	}
	return model.StringPtr(sanitizer.SanitizeText(*s))
}
