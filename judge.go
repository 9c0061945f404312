package quizengine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIJudge compares short responses using a chat completion model
type OpenAIJudge struct {
	client *openai.Client
	model  string
	logger *LLMLogger
}

// NewOpenAIJudge creates a new judge with OpenAI client
func NewOpenAIJudge(apiKey, model string) *OpenAIJudge {
	return NewOpenAIJudgeWithClient(openai.NewClient(apiKey), model)
}

// NewOpenAIJudgeWithClient uses an already configured client
func NewOpenAIJudgeWithClient(client *openai.Client, model string) *OpenAIJudge {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIJudge{client: client, model: model}
}

// SetLogger attaches a transcript logger
func (j *OpenAIJudge) SetLogger(logger *LLMLogger) {
	j.logger = logger
}

// Compare asks the model whether userAnswer means the same as correctAnswer
func (j *OpenAIJudge) Compare(ctx context.Context, userAnswer, correctAnswer string) (bool, error) {
	prompt := j.buildPrompt(userAnswer, correctAnswer)
	if j.logger != nil {
		j.logger.LogLLMRequest("Judge", prompt)
	}

	resp, err := j.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: j.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are a fair grader. Decide whether a student's answer is semantically equivalent to the expected answer.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Tools: []openai.Tool{
				{
					Type: openai.ToolTypeFunction,
					Function: &openai.FunctionDefinition{
						Name:        "submit_verdict",
						Description: "Submit whether the student's answer is correct",
						Parameters: map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"correct": map[string]interface{}{
									"type":        "boolean",
									"description": "True if the answer is equivalent to the expected answer",
								},
								"reason": map[string]interface{}{
									"type":        "string",
									"description": "Short explanation for the decision",
								},
							},
							"required": []string{"correct", "reason"},
						},
					},
				},
			},
			ToolChoice: openai.ToolChoice{
				Type: openai.ToolTypeFunction,
				Function: openai.ToolFunction{
					Name: "submit_verdict",
				},
			},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to check answer: %w", err)
	}

	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("no response from model")
	}

	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return false, fmt.Errorf("no tool calls in response")
	}

	toolCall := choice.Message.ToolCalls[0]
	if toolCall.Function.Name != "submit_verdict" {
		return false, fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
	}
	if j.logger != nil {
		j.logger.LogLLMResponse("Judge", toolCall.Function.Arguments)
	}

	var toolArgs struct {
		Correct *bool  `json:"correct"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &toolArgs); err != nil {
		return false, fmt.Errorf("failed to parse tool arguments: %w", err)
	}
	if toolArgs.Correct == nil {
		return false, fmt.Errorf("verdict missing correct field")
	}

	VerboseLog("Judge verdict correct=%v: %s", *toolArgs.Correct, toolArgs.Reason)
	return *toolArgs.Correct, nil
}

func (j *OpenAIJudge) buildPrompt(userAnswer, correctAnswer string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Expected answer: %s\n\n", correctAnswer))
	sb.WriteString(fmt.Sprintf("Student answer: %s\n\n", userAnswer))

	sb.WriteString("Evaluation criteria:\n")
	sb.WriteString("- Accept answers that express the same fact in different words\n")
	sb.WriteString("- Accept minor spelling mistakes that do not change the meaning\n")
	sb.WriteString("- Reject answers that are incomplete where the missing part matters\n")
	sb.WriteString("- Reject answers that add claims contradicting the expected answer\n")
	sb.WriteString("Use the submit_verdict tool to return your decision.")

	return sb.String()
}
