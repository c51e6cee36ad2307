// Package taxonomy describes the two-level label hierarchy used by the
// tagging evaluator: coarse categories, the fine tags under each, and the
// optional "incomplete" marker meaning "belongs to this coarse category,
// fine tag undetermined".
//
// A Taxonomy is immutable once built and is passed explicitly to every
// component that needs it. ColumnIndex maps typed Tag values to dense
// column positions so tables never look columns up by string.
package taxonomy

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrNoCategories is returned when a taxonomy (or a set of curves derived
// from one) contains no coarse categories.
var ErrNoCategories = errors.New("taxonomy: no coarse categories")

// Mode selects which level of the hierarchy is evaluated.
type Mode string

const (
	ModeFine   Mode = "fine"
	ModeCoarse Mode = "coarse"
)

// ParseMode converts "fine" or "coarse" into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFine:
		return ModeFine, nil
	case ModeCoarse:
		return ModeCoarse, nil
	}
	return "", fmt.Errorf("unknown evaluation mode %q (want fine or coarse)", s)
}

// Tag identifies one label. A coarse-level tag has Fine == 0 and
// Incomplete == false. An incomplete marker has Incomplete == true and
// Fine == 0.
type Tag struct {
	Coarse     int
	Fine       int
	Incomplete bool
}

// CoarseTag returns the coarse-level tag of category c.
func CoarseTag(c int) Tag { return Tag{Coarse: c} }

// FineTag returns the complete fine tag f of category c.
func FineTag(c, f int) Tag { return Tag{Coarse: c, Fine: f} }

// IncompleteTag returns the incomplete marker of category c.
func IncompleteTag(c int) Tag { return Tag{Coarse: c, Incomplete: true} }

// IsCoarse reports whether t is a coarse-level tag.
func (t Tag) IsCoarse() bool { return t.Fine == 0 && !t.Incomplete }

// Key returns the short identifier used in column names: "1", "1-2" or "1-X".
func (t Tag) Key() string {
	switch {
	case t.Incomplete:
		return strconv.Itoa(t.Coarse) + "-X"
	case t.Fine == 0:
		return strconv.Itoa(t.Coarse)
	default:
		return strconv.Itoa(t.Coarse) + "-" + strconv.Itoa(t.Fine)
	}
}

func (t Tag) String() string { return t.Key() }

// Fine is a complete fine-level tag within a category.
type Fine struct {
	ID   int
	Name string
}

// Category is one coarse category. IncompleteName is empty when the
// category has no incomplete marker (e.g. a category with a single fine tag).
type Category struct {
	ID             int
	Name           string
	Fine           []Fine
	IncompleteName string
}

// HasIncomplete reports whether the category defines an incomplete marker.
func (c Category) HasIncomplete() bool { return c.IncompleteName != "" }

// Tag returns the coarse-level tag of the category.
func (c Category) Tag() Tag { return CoarseTag(c.ID) }

// IncompleteTag returns the category's incomplete marker tag. The tag is
// valid even when HasIncomplete is false; its columns are then all zero.
func (c Category) IncompleteTag() Tag { return IncompleteTag(c.ID) }

// FineTags returns the complete fine tags in ascending fine ID order.
func (c Category) FineTags() []Tag {
	tags := make([]Tag, len(c.Fine))
	for i, f := range c.Fine {
		tags[i] = FineTag(c.ID, f.ID)
	}
	return tags
}

// SweepTags returns the tags whose scores are candidate thresholds: the
// coarse tag in coarse mode, otherwise the fine tags plus the incomplete
// marker when one is defined.
func (c Category) SweepTags(mode Mode) []Tag {
	if mode == ModeCoarse {
		return []Tag{c.Tag()}
	}
	tags := c.FineTags()
	if c.HasIncomplete() {
		tags = append(tags, c.IncompleteTag())
	}
	return tags
}

// Taxonomy is an immutable, ID-ordered set of coarse categories.
type Taxonomy struct {
	categories []Category
	byID       map[int]int
	fine       ColumnIndex
	coarse     ColumnIndex
}

// New validates and freezes a set of categories. Categories and their fine
// tags are sorted by ID; duplicate IDs and non-positive IDs are rejected.
func New(categories []Category) (*Taxonomy, error) {
	if len(categories) == 0 {
		return nil, ErrNoCategories
	}

	cats := make([]Category, len(categories))
	for i, c := range categories {
		if c.ID <= 0 {
			return nil, fmt.Errorf("coarse category %q: id must be positive, got %d", c.Name, c.ID)
		}
		fine := append([]Fine(nil), c.Fine...)
		sort.Slice(fine, func(a, b int) bool { return fine[a].ID < fine[b].ID })
		for j, f := range fine {
			if f.ID <= 0 {
				return nil, fmt.Errorf("coarse category %d: fine id must be positive, got %d", c.ID, f.ID)
			}
			if j > 0 && fine[j-1].ID == f.ID {
				return nil, fmt.Errorf("coarse category %d: duplicate fine id %d", c.ID, f.ID)
			}
		}
		c.Fine = fine
		cats[i] = c
	}
	sort.Slice(cats, func(a, b int) bool { return cats[a].ID < cats[b].ID })

	t := &Taxonomy{
		categories: cats,
		byID:       make(map[int]int, len(cats)),
	}
	var fineTags, coarseTags []Tag
	for i, c := range cats {
		if _, dup := t.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate coarse category id %d", c.ID)
		}
		t.byID[c.ID] = i
		fineTags = append(fineTags, c.FineTags()...)
		fineTags = append(fineTags, c.IncompleteTag())
		coarseTags = append(coarseTags, c.Tag())
	}
	t.fine = newColumnIndex(fineTags)
	t.coarse = newColumnIndex(coarseTags)
	return t, nil
}

// Len returns the number of coarse categories.
func (t *Taxonomy) Len() int { return len(t.categories) }

// Categories returns a copy of the categories in ID order.
func (t *Taxonomy) Categories() []Category {
	return append([]Category(nil), t.categories...)
}

// Category looks up a coarse category by ID.
func (t *Taxonomy) Category(id int) (Category, bool) {
	i, ok := t.byID[id]
	if !ok {
		return Category{}, false
	}
	return t.categories[i], true
}

// Columns returns the column layout for tables evaluated in the given mode.
// Fine mode holds every complete fine tag followed by the category's
// incomplete marker, for every category; coarse mode holds one tag per category.
func (t *Taxonomy) Columns(mode Mode) ColumnIndex {
	if mode == ModeCoarse {
		return t.coarse
	}
	return t.fine
}

// ColumnIndex is the compile-time-typed replacement for name-based column
// lookups: it assigns each Tag a dense position.
type ColumnIndex struct {
	tags []Tag
	pos  map[Tag]int
}

func newColumnIndex(tags []Tag) ColumnIndex {
	pos := make(map[Tag]int, len(tags))
	for i, tag := range tags {
		pos[tag] = i
	}
	return ColumnIndex{tags: tags, pos: pos}
}

// Len returns the number of columns.
func (ci ColumnIndex) Len() int { return len(ci.tags) }

// Index returns the position of tag.
func (ci ColumnIndex) Index(tag Tag) (int, bool) {
	i, ok := ci.pos[tag]
	return i, ok
}

// Tags returns the tags in column order.
func (ci ColumnIndex) Tags() []Tag { return append([]Tag(nil), ci.tags...) }
