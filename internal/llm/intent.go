package llm

import (
	"context"
	"fmt"
	"strings"
)

const intentSystemPrompt = `You classify questions about employee records.
Answer with exactly one label from the list and nothing else.`

// ClassifyIntent asks the model to choose one of labels for text. The answer
// is returned lower-cased and trimmed of punctuation; callers validate it.
func (c *Client) ClassifyIntent(ctx context.Context, text string, labels []string) (string, error) {
	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: intentSystemPrompt,
		UserPrompt:   fmt.Sprintf("Labels: %s\n\nQuestion: %s", strings.Join(labels, ", "), text),
		Temperature:  0.01,
		MaxTokens:    10,
	})
	if err != nil {
		return "", err
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Content))
	answer = strings.Trim(answer, " .\"'`")
	if fields := strings.Fields(answer); len(fields) > 0 {
		answer = fields[0]
	}
	return answer, nil
}
