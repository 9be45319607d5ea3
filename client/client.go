// Package client talks to the quiz API on behalf of one student. It
// provides every collaborator a session.Controller needs, so a session can
// run next to the student while the server keeps content, drafts and
// grading.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"quizsession/session"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Is lets a 404 match session.ErrQuizNotFound.
func (e *APIError) Is(target error) bool {
	return target == session.ErrQuizNotFound && e.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ session.QuizSource  = (*Client)(nil)
	_ session.AnswerSaver = (*Client)(nil)
	_ session.Submitter   = (*Client)(nil)
)

func (c *Client) FetchQuiz(ctx context.Context, quizID string) (*session.Quiz, error) {
	var quiz session.Quiz
	if err := c.do(ctx, http.MethodGet, quizPath(quizID, "content"), nil, &quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

func (c *Client) SaveAnswer(ctx context.Context, quizID, questionID, value string) error {
	body := map[string]string{"value": value}
	return c.do(ctx, http.MethodPut, quizPath(quizID, "answers", questionID), body, nil)
}

func (c *Client) SaveProgress(ctx context.Context, quizID string, draft session.Draft) error {
	if draft.Answers == nil {
		draft.Answers = map[string]string{}
	}
	return c.do(ctx, http.MethodPut, quizPath(quizID, "progress"), draft, nil)
}

// LoadDraft returns nil, nil when the server has no saved progress.
func (c *Client) LoadDraft(ctx context.Context, quizID string) (*session.Draft, error) {
	var draft session.Draft
	err := c.do(ctx, http.MethodGet, quizPath(quizID, "progress"), nil, &draft)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

func (c *Client) SubmitQuiz(ctx context.Context, quizID string, sub session.Submission) (*session.GradingResult, error) {
	var res session.GradingResult
	if err := c.do(ctx, http.MethodPost, quizPath(quizID, "submit"), sub, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func quizPath(quizID string, parts ...string) string {
	segs := []string{"api", "quizzes", url.PathEscape(quizID)}
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return "/" + strings.Join(segs, "/")
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding %s %s", method, path)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
