package domain

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	apperrors "github.com/Yureshka02/multimodal-student-engagement/internal/platform/errors"
)

// Label is a facial expression class emitted by the FER classifier.
type Label string

// The FER-2013 expression classes.
const (
	LabelAngry    Label = "angry"
	LabelDisgust  Label = "disgust"
	LabelFear     Label = "fear"
	LabelHappy    Label = "happy"
	LabelNeutral  Label = "neutral"
	LabelSad      Label = "sad"
	LabelSurprise Label = "surprise"
)

var knownLabels = map[Label]struct{}{
	LabelAngry:    {},
	LabelDisgust:  {},
	LabelFear:     {},
	LabelHappy:    {},
	LabelNeutral:  {},
	LabelSad:      {},
	LabelSurprise: {},
}

// ParseLabel canonicalizes raw and checks it against the closed label set.
func ParseLabel(raw string) (Label, error) {
	// Casers carry state and are not safe for concurrent use.
	label := Label(cases.Fold().String(strings.TrimSpace(raw)))
	if _, ok := knownLabels[label]; !ok {
		return "", apperrors.WithMetadata(
			apperrors.CodeClassifierProtocol,
			fmt.Sprintf("unknown expression label %q", raw),
			map[string]string{"label": raw},
		)
	}
	return label, nil
}

// Title renders the label for human-facing text.
func (l Label) Title() string {
	return cases.Title(language.English).String(string(l))
}

// LabelSet is an immutable set of labels.
type LabelSet struct {
	members map[Label]struct{}
}

// DefaultEngagedLabels are the expressions that read as GREEN.
func DefaultEngagedLabels() LabelSet {
	set, _ := NewLabelSet(string(LabelNeutral), string(LabelHappy), string(LabelAngry))
	return set
}

// NewLabelSet builds a set from raw label names. Blank entries are skipped.
func NewLabelSet(raw ...string) (LabelSet, error) {
	members := make(map[Label]struct{}, len(raw))
	for _, name := range raw {
		if strings.TrimSpace(name) == "" {
			continue
		}
		label, err := ParseLabel(name)
		if err != nil {
			return LabelSet{}, err
		}
		members[label] = struct{}{}
	}
	return LabelSet{members: members}, nil
}

// Contains reports whether label is in the set.
func (s LabelSet) Contains(label Label) bool {
	_, ok := s.members[label]
	return ok
}

// Labels returns the members in sorted order.
func (s LabelSet) Labels() []Label {
	out := make([]Label, 0, len(s.members))
	for label := range s.members {
		out = append(out, label)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
