package services

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"quizsession/events"
	"quizsession/feedback"
	"quizsession/models"
	"quizsession/session"
)

var ErrAttemptNotFound = errors.New("attempt not found")

// DraftClearer removes a student's saved draft once the attempt is graded.
type DraftClearer interface {
	ClearDraft(ctx context.Context, studentID uint, quizID string) error
}

// GradingService scores submissions with negative marking: a correct answer
// earns the question's points, a wrong one costs a third of them and a
// skipped one scores zero. Essays are stored for manual grading and left
// out of the marks.
type GradingService struct {
	db        *gorm.DB
	quizzes   *QuizService
	drafts    DraftClearer
	publisher events.Publisher
	feedback  feedback.Generator
	now       func() time.Time
}

func NewGradingService(db *gorm.DB, quizzes *QuizService, drafts DraftClearer, publisher events.Publisher, gen feedback.Generator) *GradingService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if gen == nil {
		gen = feedback.Basic{}
	}
	return &GradingService{
		db:        db,
		quizzes:   quizzes,
		drafts:    drafts,
		publisher: publisher,
		feedback:  gen,
		now:       time.Now,
	}
}

// LetterGrade maps a percentage to a letter grade.
func LetterGrade(score float64) string {
	switch {
	case score >= 85:
		return "A+"
	case score >= 75:
		return "A"
	case score >= 65:
		return "B+"
	case score >= 50:
		return "B"
	case score >= 35:
		return "C"
	default:
		return "D"
	}
}

type gradedQuestion struct {
	answer models.AttemptAnswer
	points float64
	essay  bool
}

func gradeQuestion(q *models.Question, value string, flagged bool) gradedQuestion {
	g := gradedQuestion{
		answer: models.AttemptAnswer{QuestionID: q.ID, Value: value, Flagged: flagged},
		points: float64(q.Points),
		essay:  q.Type == models.QuestionEssay,
	}
	trimmed := strings.TrimSpace(value)

	switch {
	case trimmed == "":
		g.answer.Outcome = models.OutcomeSkipped
	case g.essay:
		g.answer.Outcome = models.OutcomePending
	case isCorrect(q, trimmed):
		g.answer.Outcome = models.OutcomeCorrect
		g.answer.Marks = g.points
	default:
		g.answer.Outcome = models.OutcomeIncorrect
		g.answer.Marks = -g.points / 3
	}
	return g
}

func isCorrect(q *models.Question, value string) bool {
	if q.HasOptions() {
		for _, o := range q.Options {
			if FormatID(o.ID) == value {
				return o.IsCorrect
			}
		}
		return false
	}
	return q.AcceptedAnswer != "" && strings.EqualFold(value, strings.TrimSpace(q.AcceptedAnswer))
}

// SubmitQuiz grades and stores an attempt. The stored draft is cleared and
// an attempt.submitted event is published; failures of either are logged
// and do not fail the submission.
func (s *GradingService) SubmitQuiz(ctx context.Context, studentID uint, quizID string, sub session.Submission) (*session.GradingResult, error) {
	id, err := ParseID(quizID)
	if err != nil {
		return nil, session.ErrQuizNotFound
	}
	quiz, err := s.quizzes.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}

	submitted := make(map[string]session.SubmittedAnswer, len(sub.Answers))
	for _, a := range sub.Answers {
		submitted[a.QuestionID] = a
	}

	timeSpent := sub.TimeSpent
	if timeSpent < 0 {
		timeSpent = 0
	}
	attempt := models.Attempt{
		QuizID:        quiz.ID,
		StudentID:     studentID,
		Status:        models.AttemptSubmitted,
		TimeSpent:     timeSpent,
		AutoSubmitted: sub.IsAutoSubmit,
		SubmittedAt:   s.now().UTC(),
	}
	if sub.IsAutoSubmit {
		attempt.Status = models.AttemptExpired
	}
	started := attempt.SubmittedAt.Add(-time.Duration(timeSpent) * time.Second)
	if sub.StartedAt != nil {
		started = sub.StartedAt.UTC()
	}
	attempt.StartedAt = &started

	var lost float64
	weak := make(map[string]int)
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		a := submitted[FormatID(q.ID)]
		g := gradeQuestion(q, a.Value, a.Flagged)
		attempt.Answers = append(attempt.Answers, g.answer)

		if !g.essay {
			attempt.MaxMarks += g.points
		}
		attempt.Marks += g.answer.Marks
		switch g.answer.Outcome {
		case models.OutcomeCorrect:
			attempt.Correct++
		case models.OutcomeIncorrect:
			attempt.Incorrect++
			lost += -g.answer.Marks
			if q.Difficulty != "" {
				weak[q.Difficulty]++
			}
		case models.OutcomeSkipped:
			attempt.Skipped++
		case models.OutcomePending:
			attempt.Pending++
		}
	}
	if attempt.MaxMarks > 0 {
		attempt.Score = round2(math.Max(0, attempt.Marks/attempt.MaxMarks*100))
	}
	attempt.Marks = round2(attempt.Marks)
	attempt.Grade = LetterGrade(attempt.Score)

	summary := feedback.Summary{
		QuizTitle:     quiz.Title,
		Score:         attempt.Score,
		Grade:         attempt.Grade,
		Correct:       attempt.Correct,
		Incorrect:     attempt.Incorrect,
		Skipped:       attempt.Skipped,
		Pending:       attempt.Pending,
		Total:         len(quiz.Questions),
		TimeSpent:     attempt.TimeSpent,
		AutoSubmitted: attempt.AutoSubmitted,
		WeakAreas:     rankWeakAreas(weak),
	}
	if attempt.MaxMarks > 0 {
		summary.NegativeImpact = lost / attempt.MaxMarks * 100
	}
	if text, err := s.feedback.Generate(ctx, summary); err != nil {
		glog.Warningf("no feedback for quiz %d, student %d: %v", quiz.ID, studentID, err)
	} else {
		attempt.Feedback = text
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&attempt).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "storing attempt")
	}
	glog.Infof("graded attempt %d: quiz %d, student %d, score %.2f%% (%s), auto=%t",
		attempt.ID, quiz.ID, studentID, attempt.Score, attempt.Grade, attempt.AutoSubmitted)

	if s.drafts != nil {
		if err := s.drafts.ClearDraft(ctx, studentID, quizID); err != nil {
			glog.Warningf("could not clear draft after grading attempt %d: %v", attempt.ID, err)
		}
	}
	err = s.publisher.PublishAttemptSubmitted(ctx, events.AttemptSubmitted{
		AttemptID:     attempt.ID,
		QuizID:        attempt.QuizID,
		StudentID:     studentID,
		Score:         attempt.Score,
		Grade:         attempt.Grade,
		TimeSpent:     attempt.TimeSpent,
		AutoSubmitted: attempt.AutoSubmitted,
		SubmittedAt:   attempt.SubmittedAt,
	})
	if err != nil {
		glog.Warningf("could not publish attempt %d: %v", attempt.ID, err)
	}

	return ResultFor(&attempt, len(quiz.Questions)), nil
}

// GetAttempt loads a stored attempt of the student with its answers.
func (s *GradingService) GetAttempt(ctx context.Context, studentID, attemptID uint) (*models.Attempt, error) {
	var attempt models.Attempt
	err := s.db.WithContext(ctx).
		Preload("Answers").
		Where("id = ? AND student_id = ?", attemptID, studentID).
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ResultFor converts a stored attempt to the result shown to the student.
func ResultFor(a *models.Attempt, totalQuestions int) *session.GradingResult {
	return &session.GradingResult{
		AttemptID:      FormatID(a.ID),
		QuizID:         FormatID(a.QuizID),
		Score:          a.Score,
		Marks:          a.Marks,
		MaxMarks:       a.MaxMarks,
		Grade:          a.Grade,
		Correct:        a.Correct,
		Incorrect:      a.Incorrect,
		Skipped:        a.Skipped,
		Pending:        a.Pending,
		TotalQuestions: totalQuestions,
		TimeSpent:      a.TimeSpent,
		AutoSubmitted:  a.AutoSubmitted,
		Feedback:       a.Feedback,
		SubmittedAt:    a.SubmittedAt,
	}
}

func rankWeakAreas(counts map[string]int) []string {
	areas := make([]string, 0, len(counts))
	for k := range counts {
		areas = append(areas, k)
	}
	sort.Slice(areas, func(i, j int) bool {
		if counts[areas[i]] != counts[areas[j]] {
			return counts[areas[i]] > counts[areas[j]]
		}
		return areas[i] < areas[j]
	})
	return areas
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
