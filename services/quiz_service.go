package services

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quizsession/models"
	"quizsession/session"
)

// ErrInvalidQuiz wraps every validation failure of a quiz definition.
var ErrInvalidQuiz = errors.New("invalid quiz")

type QuizService struct {
	db *gorm.DB
}

func NewQuizService(db *gorm.DB) *QuizService {
	return &QuizService{db: db}
}

type CreateQuizRequest struct {
	Title           string                  `json:"title" binding:"required"`
	Description     string                  `json:"description"`
	DurationMinutes int                     `json:"duration_minutes" binding:"required,min=1,max=600"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

type CreateQuestionRequest struct {
	Text           string                `json:"text" binding:"required"`
	Type           string                `json:"type" binding:"required,oneof=single_choice true_false short_answer essay"`
	Hint           string                `json:"hint"`
	Points         int                   `json:"points" binding:"omitempty,min=1"`
	Difficulty     string                `json:"difficulty"`
	AcceptedAnswer string                `json:"accepted_answer"`
	Order          int                   `json:"order"`
	Options        []CreateOptionRequest `json:"options" binding:"max=6"`
}

type CreateOptionRequest struct {
	Text      string `json:"text" binding:"required"`
	IsCorrect bool   `json:"is_correct"`
	Order     int    `json:"order"`
}

func (r *CreateQuestionRequest) validate() error {
	switch r.Type {
	case models.QuestionSingleChoice, models.QuestionTrueFalse:
		if len(r.Options) < 2 {
			return errors.Wrapf(ErrInvalidQuiz, "question %q needs at least two options", r.Text)
		}
		if r.Type == models.QuestionTrueFalse && len(r.Options) != 2 {
			return errors.Wrapf(ErrInvalidQuiz, "true/false question %q needs exactly two options", r.Text)
		}
		correct := 0
		for _, o := range r.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return errors.Wrapf(ErrInvalidQuiz, "question %q must have exactly one correct answer", r.Text)
		}
	case models.QuestionShortAnswer:
		if strings.TrimSpace(r.AcceptedAnswer) == "" {
			return errors.Wrapf(ErrInvalidQuiz, "short answer question %q needs an accepted answer", r.Text)
		}
		if len(r.Options) > 0 {
			return errors.Wrapf(ErrInvalidQuiz, "short answer question %q cannot have options", r.Text)
		}
	case models.QuestionEssay:
		if len(r.Options) > 0 {
			return errors.Wrapf(ErrInvalidQuiz, "essay question %q cannot have options", r.Text)
		}
	default:
		return errors.Wrapf(ErrInvalidQuiz, "unknown question type %q", r.Type)
	}
	return nil
}

func (s *QuizService) CreateQuiz(userID uint, req *CreateQuizRequest) (*models.Quiz, error) {
	if len(req.Questions) == 0 {
		return nil, errors.Wrap(ErrInvalidQuiz, "a quiz needs at least one question")
	}
	for i := range req.Questions {
		if err := req.Questions[i].validate(); err != nil {
			return nil, err
		}
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	quiz := models.Quiz{
		Title:           req.Title,
		Description:     req.Description,
		UserID:          userID,
		DurationMinutes: req.DurationMinutes,
	}
	if err := tx.Create(&quiz).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for i, qReq := range req.Questions {
		points := qReq.Points
		if points <= 0 {
			points = 1
		}
		order := qReq.Order
		if order == 0 {
			order = i + 1
		}
		question := models.Question{
			QuizID:         quiz.ID,
			Text:           qReq.Text,
			Type:           qReq.Type,
			Hint:           qReq.Hint,
			Points:         points,
			Difficulty:     qReq.Difficulty,
			AcceptedAnswer: strings.TrimSpace(qReq.AcceptedAnswer),
			Order:          order,
		}
		if err := tx.Create(&question).Error; err != nil {
			tx.Rollback()
			return nil, err
		}

		for j, optReq := range qReq.Options {
			option := models.Option{
				QuestionID: question.ID,
				Text:       optReq.Text,
				IsCorrect:  optReq.IsCorrect,
				Order:      optReq.Order,
			}
			if option.Order == 0 {
				option.Order = j + 1
			}
			if err := tx.Create(&option).Error; err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return s.GetQuizByID(quiz.ID, userID)
}

func (s *QuizService) GetUserQuizzes(userID uint) ([]models.Quiz, error) {
	var quizzes []models.Quiz
	err := s.withContent(s.db).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&quizzes).Error
	return quizzes, err
}

// GetQuizByID returns the owner's view of a quiz, answer key included.
func (s *QuizService) GetQuizByID(quizID uint, userID uint) (*models.Quiz, error) {
	var quiz models.Quiz
	err := s.withContent(s.db).
		Where("id = ? AND user_id = ?", quizID, userID).
		First(&quiz).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrQuizNotFound
	}
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

// GetQuiz loads any quiz with its questions and options in order.
func (s *QuizService) GetQuiz(ctx context.Context, quizID uint) (*models.Quiz, error) {
	var quiz models.Quiz
	err := s.withContent(s.db.WithContext(ctx)).First(&quiz, quizID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session.ErrQuizNotFound
	}
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

// FetchQuiz returns the student view of a quiz: no correctness flags and no
// accepted answers.
func (s *QuizService) FetchQuiz(ctx context.Context, quizID string) (*session.Quiz, error) {
	id, err := ParseID(quizID)
	if err != nil {
		return nil, session.ErrQuizNotFound
	}
	quiz, err := s.GetQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	return StudentView(quiz), nil
}

func (s *QuizService) DeleteQuiz(quizID uint, userID uint) error {
	if _, err := s.GetQuizByID(quizID, userID); err != nil {
		return err
	}
	return s.db.Delete(&models.Quiz{}, quizID).Error
}

func (s *QuizService) withContent(db *gorm.DB) *gorm.DB {
	byOrder := clause.OrderByColumn{Column: clause.Column{Name: "order"}}
	return db.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order(byOrder)
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order(byOrder)
		})
}

// StudentView strips a quiz down to what a student may see.
func StudentView(q *models.Quiz) *session.Quiz {
	out := &session.Quiz{
		ID:              FormatID(q.ID),
		Title:           q.Title,
		Description:     q.Description,
		DurationMinutes: q.DurationMinutes,
		Questions:       make([]session.Question, 0, len(q.Questions)),
	}
	for _, mq := range q.Questions {
		sq := session.Question{
			ID:         FormatID(mq.ID),
			Prompt:     mq.Text,
			Type:       session.QuestionType(mq.Type),
			Hint:       mq.Hint,
			Points:     mq.Points,
			Difficulty: mq.Difficulty,
		}
		for _, o := range mq.Options {
			sq.Options = append(sq.Options, session.Option{ID: FormatID(o.ID), Text: o.Text})
		}
		out.Questions = append(out.Questions, sq)
	}
	return out
}

func FormatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func ParseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Errorf("invalid id %q", s)
	}
	return uint(id), nil
}
