package player

import (
	"strconv"
)

// Field names a known attribute of a player record, using the API's JSON names.
type Field string

const (
	FieldUsername     Field = "username"
	FieldRanking      Field = "ranking"
	FieldRating       Field = "rating"
	FieldRatings      Field = "ratings"
	FieldCountry      Field = "country"
	FieldIcon         Field = "icon"
	FieldPro          Field = "pro"
	FieldProfessional Field = "professional"
	FieldUIClass      Field = "ui_class"
)

// ErrorSentinel fills string fields that were required but never delivered.
const ErrorSentinel = "[ERROR]"

const UIClassProvisional = "provisional"

var allFields = []Field{
	FieldUsername,
	FieldRanking,
	FieldRating,
	FieldRatings,
	FieldCountry,
	FieldIcon,
	FieldPro,
	FieldProfessional,
	FieldUIClass,
}

var fieldBits = func() map[Field]fieldSet {
	out := make(map[Field]fieldSet, len(allFields))
	for i, f := range allFields {
		out[f] = 1 << uint(i)
	}
	return out
}()

type fieldSet uint16

func (s fieldSet) has(f Field) bool {
	bit, ok := fieldBits[f]
	return ok && s&bit != 0
}

func (s *fieldSet) add(f Field) {
	*s |= fieldBits[f]
}

func (s *fieldSet) remove(f Field) {
	*s &^= fieldBits[f]
}

// KnownField reports whether f names a record attribute.
func KnownField(f Field) bool {
	_, ok := fieldBits[f]
	return ok
}

type RatingBreakdown struct {
	Rating      float64 `json:"rating"`
	Deviation   float64 `json:"deviation" validate:"gte=0"`
	Volatility  float64 `json:"volatility" validate:"gte=0"`
	GamesPlayed int     `json:"games_played" validate:"gte=0"`
}

type Ratings struct {
	Version int             `json:"version,omitempty"`
	Overall RatingBreakdown `json:"overall"`
}

// Record is an immutable snapshot of what is known about one player account. Updates
// produce a new Record; callers may hold and share pointers freely.
type Record struct {
	ID           int64
	Username     string
	Ranking      float64
	Rating       float64
	Ratings      Ratings
	Country      string
	Icon         string
	Pro          bool
	Professional bool
	UIClass      string

	present fieldSet
	errored fieldSet
}

func (r *Record) Has(f Field) bool {
	return r != nil && r.present.has(f)
}

func (r *Record) HasAll(fields ...Field) bool {
	return len(r.Missing(fields...)) == 0
}

// Missing returns the subset of fields the record does not carry.
func (r *Record) Missing(fields ...Field) []Field {
	var out []Field
	for _, f := range fields {
		if !r.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Errored reports whether f holds the error sentinel rather than server data.
func (r *Record) Errored(f Field) bool {
	return r != nil && r.errored.has(f)
}

func (r *Record) Provisional() bool {
	return r != nil && r.UIClass == UIClassProvisional
}

// Fields lists the present fields in declaration order.
func (r *Record) Fields() []Field {
	var out []Field
	for _, f := range allFields {
		if r.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Key is the string form of the id used for subscriptions.
func (r *Record) Key() string {
	return Key(r.ID)
}

func Key(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Patch converts the record back to its wire shape. Only fields holding server data are
// carried; error sentinels are dropped.
func (r *Record) Patch() Patch {
	var p Patch
	if r == nil {
		return p
	}
	if r.ID != 0 {
		id := r.ID
		p.ID = &id
	}
	if r.known(FieldUsername) {
		p.Username = ptr(r.Username)
	}
	if r.known(FieldRanking) {
		p.Ranking = ptr(r.Ranking)
	}
	if r.known(FieldRating) {
		p.Rating = ptr(r.Rating)
	}
	if r.known(FieldRatings) {
		p.Ratings = ptr(r.Ratings)
	}
	if r.known(FieldCountry) {
		p.Country = ptr(r.Country)
	}
	if r.known(FieldIcon) {
		p.Icon = ptr(r.Icon)
	}
	if r.known(FieldPro) {
		p.Pro = ptr(r.Pro)
	}
	if r.known(FieldProfessional) {
		p.Professional = ptr(r.Professional)
	}
	if r.known(FieldUIClass) {
		p.UIClass = ptr(r.UIClass)
	}
	return p
}

func ptr[T any](v T) *T {
	return &v
}

func (r *Record) known(f Field) bool {
	return r.Has(f) && !r.Errored(f)
}
