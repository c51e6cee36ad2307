package taxonomy

import "strings"

// Column names used by prediction and annotation CSV files.
const (
	SampleColumn    = "audio_filename"
	AnnotatorColumn = "annotator_id"
)

// Name returns the human-readable name of a tag: the fine name, the
// incomplete marker name, or the coarse name. It reports false when the
// tag is not defined by the taxonomy.
func (t *Taxonomy) Name(tag Tag) (string, bool) {
	c, ok := t.Category(tag.Coarse)
	if !ok {
		return "", false
	}
	switch {
	case tag.Incomplete:
		return c.IncompleteName, c.HasIncomplete()
	case tag.Fine == 0:
		return c.Name, true
	}
	for _, f := range c.Fine {
		if f.ID == tag.Fine {
			return f.Name, true
		}
	}
	return "", false
}

// PredictionColumn returns the header of tag in a predictions file:
// "1-1_small-sounding-engine", "1-X_engine-of-uncertain-size" or "1_engine".
func (t *Taxonomy) PredictionColumn(tag Tag) (string, bool) {
	name, ok := t.Name(tag)
	if !ok {
		return "", false
	}
	return tag.Key() + "_" + name, true
}

// AnnotationColumn returns the header of tag in an annotations file.
// Fine tags and incomplete markers use "<key>_<name>_presence"; coarse tags
// use "high_<name without hyphens>_presence".
func (t *Taxonomy) AnnotationColumn(tag Tag) (string, bool) {
	name, ok := t.Name(tag)
	if !ok {
		return "", false
	}
	if tag.IsCoarse() {
		return "high_" + strings.ReplaceAll(name, "-", "") + "_presence", true
	}
	return tag.Key() + "_" + name + "_presence", true
}
