package quizengine

import "strings"

// AnswerStore tracks per-question drafts, selections and saved answers.
// An index present in saved always equals the current draft or selection
// for that index; editing after a save drops the saved entry.
//
// Methods with pointer receivers mutate in place. The session reducer calls
// Clone before mutating so a rejected transition leaves the original intact.
type AnswerStore struct {
	draft    map[int]string
	selected map[int]string
	saved    map[int]string
}

// NewAnswerStore returns an empty store
func NewAnswerStore() AnswerStore {
	return AnswerStore{
		draft:    make(map[int]string),
		selected: make(map[int]string),
		saved:    make(map[int]string),
	}
}

// Clone returns a deep copy
func (s AnswerStore) Clone() AnswerStore {
	return AnswerStore{
		draft:    copyAnswers(s.draft),
		selected: copyAnswers(s.selected),
		saved:    copyAnswers(s.saved),
	}
}

// EditDraft replaces the short response draft for index i
func (s *AnswerStore) EditDraft(i int, text string) {
	s.ensure()
	s.draft[i] = text
	s.invalidate(i, text)
}

// Select records the chosen option label for index i
func (s *AnswerStore) Select(i int, label string) {
	s.ensure()
	s.selected[i] = label
	s.invalidate(i, label)
}

// Save commits the current value for index i. Empty values are not saved.
func (s *AnswerStore) Save(i int, byLabel bool) bool {
	s.ensure()
	value := s.current(i, byLabel)
	if strings.TrimSpace(value) == "" {
		return false
	}
	s.saved[i] = value
	return true
}

// SaveAllFilled commits every index holding a non-empty current value.
// byLabel reports for each index whether it is answered by selection.
func (s *AnswerStore) SaveAllFilled(n int, byLabel func(i int) bool) int {
	count := 0
	for i := 0; i < n; i++ {
		if s.Save(i, byLabel(i)) {
			count++
		}
	}
	return count
}

// Draft returns the short response draft for index i
func (s AnswerStore) Draft(i int) string { return s.draft[i] }

// Selected returns the selected label for index i
func (s AnswerStore) Selected(i int) string { return s.selected[i] }

// IsSaved reports whether index i has a committed answer
func (s AnswerStore) IsSaved(i int) bool {
	_, ok := s.saved[i]
	return ok
}

// SavedCount returns the number of committed answers
func (s AnswerStore) SavedCount() int { return len(s.saved) }

// Saved returns a copy of the committed answers
func (s AnswerStore) Saved() map[int]string { return copyAnswers(s.saved) }

// SavedFlags returns one flag per question index
func (s AnswerStore) SavedFlags(n int) []bool {
	flags := make([]bool, n)
	for i := range flags {
		flags[i] = s.IsSaved(i)
	}
	return flags
}

func (s AnswerStore) current(i int, byLabel bool) string {
	if byLabel {
		return s.selected[i]
	}
	return s.draft[i]
}

func (s *AnswerStore) invalidate(i int, value string) {
	if saved, ok := s.saved[i]; ok && saved != value {
		delete(s.saved, i)
	}
}

func (s *AnswerStore) ensure() {
	if s.draft == nil {
		s.draft = make(map[int]string)
	}
	if s.selected == nil {
		s.selected = make(map[int]string)
	}
	if s.saved == nil {
		s.saved = make(map[int]string)
	}
}

func copyAnswers(m map[int]string) map[int]string {
	out := make(map[int]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
