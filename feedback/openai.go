package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// minReplyLength is the shortest model reply accepted as feedback.
const minReplyLength = 50

// OpenAI asks a chat model for feedback and falls back to Basic whenever
// the model fails or answers with too little text.
type OpenAI struct {
	client   *openai.Client
	model    string
	fallback Generator
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return NewOpenAIWithConfig(openai.DefaultConfig(apiKey), model)
}

func NewOpenAIWithConfig(cfg openai.ClientConfig, model string) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		fallback: Basic{},
	}
}

func (g *OpenAI) Generate(ctx context.Context, s Summary) (string, error) {
	text, err := g.complete(ctx, s)
	if err != nil {
		glog.Warningf("AI feedback generation failed, using basic feedback: %v", err)
		return g.fallback.Generate(ctx, s)
	}
	return text, nil
}

func (g *OpenAI) complete(ctx context.Context, s Summary) (string, error) {
	resp, err := g.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are an encouraging exam coach. Reply with plain text only.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: buildPrompt(s),
				},
			},
		},
	)
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if len(text) <= minReplyLength {
		return "", errors.Errorf("reply too short (%d chars)", len(text))
	}
	return text, nil
}

func buildPrompt(s Summary) string {
	var b strings.Builder
	b.WriteString("Give personalised feedback on this quiz attempt")
	if s.QuizTitle != "" {
		fmt.Fprintf(&b, " for %q", s.QuizTitle)
	}
	b.WriteString(".\n\nPerformance summary:\n")
	fmt.Fprintf(&b, "- Score: %.1f%% (with negative marking)\n", s.Score)
	fmt.Fprintf(&b, "- Accuracy: %.1f%%\n", s.Accuracy())
	fmt.Fprintf(&b, "- Grade: %s\n", s.Grade)
	fmt.Fprintf(&b, "- Correct %d, incorrect %d, skipped %d of %d\n", s.Correct, s.Incorrect, s.Skipped, s.Total)
	if s.Total > 0 {
		fmt.Fprintf(&b, "- Time: %.1fs per question\n", float64(s.TimeSpent)/float64(s.Total))
	}
	if s.AutoSubmitted {
		b.WriteString("- The time limit ran out before the student submitted\n")
	}
	if len(s.WeakAreas) > 0 {
		weak := s.WeakAreas
		if len(weak) > 2 {
			weak = weak[:2]
		}
		fmt.Fprintf(&b, "- Weak areas: %s\n", strings.Join(weak, ", "))
	}
	b.WriteString("\nWrite 150-200 words: strengths first, then what to improve, then advice on ")
	b.WriteString("when to skip a question under negative marking, and close on an encouraging note.")
	return b.String()
}
