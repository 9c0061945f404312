package quizengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Generator turns flashcards into quiz question records
type Generator interface {
	Generate(ctx context.Context, flashcards []RawQuestionRecord) ([]RawQuestionRecord, error)
}

// OpenAIGenerator generates questions using a chat completion model
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	logger *LLMLogger
}

// NewOpenAIGenerator creates a new generator with OpenAI client
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	return NewOpenAIGeneratorWithClient(openai.NewClient(apiKey), model)
}

// NewOpenAIGeneratorWithClient uses an already configured client
func NewOpenAIGeneratorWithClient(client *openai.Client, model string) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIGenerator{client: client, model: model}
}

// SetLogger attaches a transcript logger
func (g *OpenAIGenerator) SetLogger(logger *LLMLogger) {
	g.logger = logger
}

// Generate returns one record per flashcard, in the same order
func (g *OpenAIGenerator) Generate(ctx context.Context, flashcards []RawQuestionRecord) ([]RawQuestionRecord, error) {
	log.Printf("Generating %d questions from flashcards", len(flashcards))

	prompt := g.buildPrompt(flashcards)
	if g.logger != nil {
		g.logger.LogLLMRequest("Generator", prompt)
	}

	resp, err := g.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are an expert study-aid question writer. Turn flashcards into test questions that check understanding of the card.",
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
						Name:        "submit_questions",
						Description: "Submit generated quiz questions",
						Parameters: map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"questions": map[string]interface{}{
									"type": "array",
									"items": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"question": map[string]interface{}{
												"type":        "string",
												"description": "The question text",
											},
											"relevant_text": map[string]interface{}{
												"type":        "string",
												"description": "Options in |||A|||text|||B|||text form with the correct option first, or the expected answer for short response questions",
											},
											"is_multiple_choice": map[string]interface{}{
												"type":        "boolean",
												"description": "Whether the question is multiple choice",
											},
										},
										"required": []string{"question", "relevant_text", "is_multiple_choice"},
									},
								},
							},
							"required": []string{"questions"},
						},
					},
				},
			},
			ToolChoice: openai.ToolChoice{
				Type: openai.ToolTypeFunction,
				Function: openai.ToolFunction{
					Name: "submit_questions",
				},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate questions: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from model")
	}

	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("no tool calls in response")
	}

	toolCall := choice.Message.ToolCalls[0]
	if toolCall.Function.Name != "submit_questions" {
		return nil, fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
	}
	if g.logger != nil {
		g.logger.LogLLMResponse("Generator", toolCall.Function.Arguments)
	}

	records, err := decodeGeneratedQuestions(toolCall.Function.Arguments)
	if err != nil {
		return nil, err
	}

	log.Printf("Generated %d questions", len(records))
	return records, nil
}

func decodeGeneratedQuestions(arguments string) ([]RawQuestionRecord, error) {
	var toolArgs struct {
		Questions []struct {
			Question         string `json:"question"`
			RelevantText     string `json:"relevant_text"`
			IsMultipleChoice bool   `json:"is_multiple_choice"`
		} `json:"questions"`
	}
	if err := json.Unmarshal([]byte(arguments), &toolArgs); err != nil {
		return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}

	records := make([]RawQuestionRecord, 0, len(toolArgs.Questions))
	for _, q := range toolArgs.Questions {
		records = append(records, RawQuestionRecord{
			Question:         q.Question,
			RelevantText:     q.RelevantText,
			IsMultipleChoice: q.IsMultipleChoice,
		})
	}
	return records, nil
}

func (g *OpenAIGenerator) buildPrompt(flashcards []RawQuestionRecord) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Write exactly %d questions, one per flashcard, in the same order.\n\n", len(flashcards)))

	for i, card := range flashcards {
		kind := "short response"
		if card.IsMultipleChoice {
			kind = "multiple choice"
		}
		sb.WriteString(fmt.Sprintf("Flashcard %d (%s):\n", i+1, kind))
		sb.WriteString(fmt.Sprintf("Front: %s\n", card.Question))
		sb.WriteString(fmt.Sprintf("Back: %s\n\n", card.RelevantText))
	}

	sb.WriteString("Requirements:\n")
	sb.WriteString("- Keep is_multiple_choice equal to the flashcard's type\n")
	sb.WriteString("- Multiple choice: relevant_text must be |||A|||<correct answer>|||B|||<wrong>|||C|||<wrong>|||D|||<wrong>\n")
	sb.WriteString("- The correct answer is ALWAYS the first option; it will be shuffled later\n")
	sb.WriteString("- Wrong options should be plausible but clearly wrong\n")
	sb.WriteString("- Short response: relevant_text is the expected answer, taken from the back of the card\n")
	sb.WriteString("- Avoid questions where the answer is given away in the question text\n")
	sb.WriteString("- Use the submit_questions tool to return your questions\n")

	return sb.String()
}
