package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/arbiter-labs/verdict-cli/internal/cost"
	"github.com/arbiter-labs/verdict-cli/internal/resilience"
	"github.com/arbiter-labs/verdict-cli/pkg/anthropic"
)

// Generator produces an answer to a question given supporting content.
type Generator interface {
	GenerateAnswer(ctx context.Context, question, content, requestContext string) (string, error)
}

const answerSystemPrompt = `You are an independent verification agent. Answer the question using only the supplied source material. Be factual and concise. If the material does not support an answer, say so explicitly.`

const answerPrompt = `Question: %s

Source material:
%s

Answer the question based on the source material above.`

// AnthropicGenerator implements Generator on the Anthropic messages API.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	costs     *cost.Calculator
}

// NewAnthropicGenerator creates a generator using the given model.
func NewAnthropicGenerator(client anthropic.Client, model string, maxTokens int64) *AnthropicGenerator {
	return &AnthropicGenerator{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		costs:     cost.NewCalculator(cost.DefaultRates()),
	}
}

func (g *AnthropicGenerator) GenerateAnswer(ctx context.Context, question, content, requestContext string) (string, error) {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("anthropic", "generate_answer")

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return g.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     g.model,
			MaxTokens: g.maxTokens,
			System:    answerSystemPrompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: fmt.Sprintf(answerPrompt, question, content)},
			},
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "generate answer for %s", requestContext)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", eris.Errorf("empty answer for %s (stop reason %s)", requestContext, resp.StopReason)
	}

	resp.Usage.LogCost(g.model, "answer",
		g.costs.Tokens(g.model, resp.Usage.InputTokens, resp.Usage.OutputTokens))
	return answer, nil
}
