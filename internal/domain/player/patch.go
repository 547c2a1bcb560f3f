package player

import (
	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Patch is the partial player object the API and callers hand to the cache. Nil
// pointers mean "not provided".
type Patch struct {
	ID           *int64   `json:"id" validate:"omitempty,gte=0"`
	Username     *string  `json:"username,omitempty" validate:"omitempty,max=128"`
	Ranking      *float64 `json:"ranking,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	Ratings      *Ratings `json:"ratings,omitempty"`
	Country      *string  `json:"country,omitempty" validate:"omitempty,max=8"`
	Icon         *string  `json:"icon,omitempty" validate:"omitempty,url"`
	Pro          *bool    `json:"pro,omitempty"`
	Professional *bool    `json:"professional,omitempty"`
	UIClass      *string  `json:"ui_class,omitempty"`
	Anonymous    bool     `json:"anonymous,omitempty"`
}

func (p Patch) Validate() error {
	if err := validate.Struct(p); err != nil {
		return crerr.Wrap(err, "invalid player payload")
	}
	return nil
}

// PlayerID returns the patch id, or zero when absent.
func (p Patch) PlayerID() int64 {
	if p.ID == nil {
		return 0
	}
	return *p.ID
}

func (p Patch) Empty() bool {
	return p == Patch{}
}

// Merge applies p over base and returns a new record; base is never modified. With
// dontOverwrite only fields base lacks are filled. Setting either pro or professional
// sets both; pro wins when the patch carries both.
func Merge(base *Record, p Patch, dontOverwrite bool) *Record {
	out := &Record{}
	if base != nil {
		*out = *base
	}
	if out.ID == 0 && p.ID != nil {
		out.ID = *p.ID
	}

	set := func(f Field, apply func()) {
		if dontOverwrite && out.present.has(f) {
			return
		}
		apply()
		out.present.add(f)
		out.errored.remove(f)
	}

	if p.Username != nil {
		set(FieldUsername, func() { out.Username = *p.Username })
	}
	if p.Ranking != nil {
		set(FieldRanking, func() { out.Ranking = *p.Ranking })
	}
	if p.Rating != nil {
		set(FieldRating, func() { out.Rating = *p.Rating })
	}
	if p.Ratings != nil {
		set(FieldRatings, func() { out.Ratings = *p.Ratings })
	}
	if p.Country != nil {
		set(FieldCountry, func() { out.Country = *p.Country })
	}
	if p.Icon != nil {
		set(FieldIcon, func() { out.Icon = *p.Icon })
	}
	if p.UIClass != nil {
		set(FieldUIClass, func() { out.UIClass = *p.UIClass })
	}

	var pro *bool
	switch {
	case p.Pro != nil:
		pro = p.Pro
	case p.Professional != nil:
		pro = p.Professional
	}
	if pro != nil {
		v := *pro
		set(FieldPro, func() { out.Pro = v })
		set(FieldProfessional, func() { out.Professional = v })
	}

	return out
}

// FillMissing returns a copy of r where every absent field in required holds the
// error sentinel, plus the list of fields that were filled. r is returned unchanged
// when nothing is missing.
func FillMissing(r *Record, required []Field) (*Record, []Field) {
	missing := r.Missing(required...)
	if len(missing) == 0 {
		return r, nil
	}

	out := &Record{}
	if r != nil {
		*out = *r
	}
	var filled []Field
	for _, f := range missing {
		if !KnownField(f) {
			continue
		}
		switch f {
		case FieldUsername:
			out.Username = ErrorSentinel
		case FieldCountry:
			out.Country = ErrorSentinel
		case FieldIcon:
			out.Icon = ErrorSentinel
		case FieldUIClass:
			out.UIClass = ErrorSentinel
		}
		out.present.add(f)
		out.errored.add(f)
		filled = append(filled, f)
	}
	return out, filled
}

// ProvisionalForID is the stand-in cached for an id the server reported missing.
func ProvisionalForID(id int64) Patch {
	return Patch{
		ID:       ptr(id),
		Username: ptr("?" + Key(id)),
		UIClass:  ptr(UIClassProvisional),
		Pro:      ptr(false),
	}
}

// ProvisionalForUsername is the stand-in cached for a name no account matches.
func ProvisionalForUsername(username string) *Record {
	return Merge(nil, Patch{
		Username: ptr(username),
		UIClass:  ptr(UIClassProvisional),
		Pro:      ptr(false),
	}, false)
}
