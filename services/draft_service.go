package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/xeipuuv/gojsonschema"

	"quizsession/session"
)

// ErrInvalidDraft is returned for draft payloads that do not match the
// draft schema.
var ErrInvalidDraft = errors.New("invalid draft")

const draftSchemaJSON = `{
  "type": "object",
  "required": ["answers", "currentQuestionIndex"],
  "properties": {
    "answers": {
      "type": "object",
      "additionalProperties": {"type": "string", "maxLength": 20000}
    },
    "currentQuestionIndex": {"type": "integer", "minimum": 0},
    "flaggedQuestions": {"type": ["array", "null"], "items": {"type": "string"}},
    "lastSaved": {"type": "string"},
    "startedAt": {"type": ["string", "null"]},
    "elapsedSeconds": {"type": "integer", "minimum": 0}
  }
}`

var draftSchema = mustSchema(draftSchemaJSON)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return schema
}

// DraftService keeps in-progress answers in redis, one JSON document per
// student and quiz.
type DraftService struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

func NewDraftService(redisClient *redis.Client, ttl time.Duration) *DraftService {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &DraftService{redis: redisClient, ttl: ttl, now: time.Now}
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func draftKey(studentID uint, quizID string) string {
	return fmt.Sprintf("draft:%d:%s", studentID, quizID)
}

// SaveAnswer updates a single answer inside the stored draft. An empty value
// removes the answer.
func (s *DraftService) SaveAnswer(ctx context.Context, studentID uint, quizID, questionID, value string) error {
	key := draftKey(studentID, quizID)

	update := func(tx *redis.Tx) error {
		draft, err := s.read(ctx, tx, key)
		if err != nil && !errors.Is(err, ErrInvalidDraft) {
			return err
		}
		if draft == nil {
			draft = &session.Draft{}
		}
		if draft.Answers == nil {
			draft.Answers = make(map[string]string)
		}
		if value == "" {
			delete(draft.Answers, questionID)
		} else {
			draft.Answers[questionID] = value
		}
		draft.LastSaved = s.now().UTC()

		data, err := encodeDraft(draft)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < 5; i++ {
		err = s.redis.Watch(ctx, update, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		glog.V(2).Infof("draft %s changed during update, retrying", key)
	}
	return errors.Wrapf(err, "saving answer to %s", key)
}

// SaveProgress replaces the stored draft.
func (s *DraftService) SaveProgress(ctx context.Context, studentID uint, quizID string, draft session.Draft) error {
	if draft.LastSaved.IsZero() {
		draft.LastSaved = s.now().UTC()
	}
	data, err := encodeDraft(&draft)
	if err != nil {
		return err
	}
	key := draftKey(studentID, quizID)
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "saving draft %s", key)
	}
	glog.V(2).Infof("saved draft %s (%d answers)", key, len(draft.Answers))
	return nil
}

// LoadDraft returns nil, nil when no draft is stored.
func (s *DraftService) LoadDraft(ctx context.Context, studentID uint, quizID string) (*session.Draft, error) {
	return s.read(ctx, s.redis, draftKey(studentID, quizID))
}

func (s *DraftService) ClearDraft(ctx context.Context, studentID uint, quizID string) error {
	key := draftKey(studentID, quizID)
	return errors.Wrapf(s.redis.Del(ctx, key).Err(), "clearing draft %s", key)
}

func (s *DraftService) read(ctx context.Context, c stringGetter, key string) (*session.Draft, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading draft %s", key)
	}
	if err := ValidateDraft(data); err != nil {
		return nil, errors.Wrapf(err, "draft %s", key)
	}
	var draft session.Draft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, errors.Wrapf(ErrInvalidDraft, "draft %s: %v", key, err)
	}
	return &draft, nil
}

func encodeDraft(d *session.Draft) ([]byte, error) {
	if d.Answers == nil {
		d.Answers = map[string]string{}
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "encoding draft")
	}
	if err := ValidateDraft(data); err != nil {
		return nil, err
	}
	return data, nil
}

// ValidateDraft checks a raw draft document against the draft schema.
func ValidateDraft(data []byte) error {
	result, err := draftSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return errors.Wrapf(ErrInvalidDraft, "%v", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.Wrap(ErrInvalidDraft, strings.Join(msgs, "; "))
}
