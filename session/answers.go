package session

import (
	"sort"
	"time"
)

// AnswerStore maps question ids to the latest answer. It is owned by a
// Controller and is not safe for concurrent use.
type AnswerStore struct {
	entries map[string]*Answer
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{entries: make(map[string]*Answer)}
}

// Set overwrites the value for questionID, keeping its flag.
func (s *AnswerStore) Set(questionID, value string, at time.Time) Answer {
	a := s.entry(questionID)
	a.Value = value
	a.ModifiedAt = at
	return *a
}

// ToggleFlag flips the review flag, creating an empty entry if needed, and
// returns the new flag.
func (s *AnswerStore) ToggleFlag(questionID string, at time.Time) bool {
	a := s.entry(questionID)
	a.Flagged = !a.Flagged
	a.ModifiedAt = at
	return a.Flagged
}

// Clear drops the value for questionID. A flagged entry survives with an
// empty value. It reports whether there was a value to clear.
func (s *AnswerStore) Clear(questionID string, at time.Time) bool {
	a, ok := s.entries[questionID]
	if !ok {
		return false
	}
	had := a.Value != ""
	if !a.Flagged {
		delete(s.entries, questionID)
		return had
	}
	a.Value = ""
	a.ModifiedAt = at
	return had
}

func (s *AnswerStore) Get(questionID string) (Answer, bool) {
	a, ok := s.entries[questionID]
	if !ok {
		return Answer{}, false
	}
	return *a, true
}

// Len counts entries, answered or only flagged.
func (s *AnswerStore) Len() int {
	return len(s.entries)
}

// Answered counts entries holding a non-empty value.
func (s *AnswerStore) Answered() int {
	n := 0
	for _, a := range s.entries {
		if a.Value != "" {
			n++
		}
	}
	return n
}

func (s *AnswerStore) Flagged() []string {
	ids := make([]string, 0)
	for id, a := range s.entries {
		if a.Flagged {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Values returns the non-empty answers keyed by question id.
func (s *AnswerStore) Values() map[string]string {
	out := make(map[string]string, len(s.entries))
	for id, a := range s.entries {
		if a.Value != "" {
			out[id] = a.Value
		}
	}
	return out
}

// All returns copies of every entry ordered by question id.
func (s *AnswerStore) All() []Answer {
	out := make([]Answer, 0, len(s.entries))
	for _, a := range s.entries {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

// Restore replaces the store content with a saved draft. Entries for which
// keep returns false are dropped.
func (s *AnswerStore) Restore(d *Draft, at time.Time, keep func(questionID string) bool) {
	s.entries = make(map[string]*Answer)
	if d == nil {
		return
	}
	if !d.LastSaved.IsZero() {
		at = d.LastSaved
	}
	for id, v := range d.Answers {
		if keep(id) && v != "" {
			s.Set(id, v, at)
		}
	}
	for _, id := range d.FlaggedQuestions {
		if keep(id) {
			a := s.entry(id)
			a.Flagged = true
			a.ModifiedAt = at
		}
	}
}

func (s *AnswerStore) entry(questionID string) *Answer {
	a, ok := s.entries[questionID]
	if !ok {
		a = &Answer{QuestionID: questionID}
		s.entries[questionID] = a
	}
	return a
}
