package service

import (
	"context"
	"encoding/json"
	"fmt"
	"learnai_backend/internal/model"
	"regexp"
)

// QuestionsPerBatch 每次生成调用必须恰好产出的题目数
const QuestionsPerBatch = 10

// QuizFormatError 生成结果未通过格式校验，整批丢弃。
// Index为出问题的题目下标（从0开始），-1表示批次级错误。
type QuizFormatError struct {
	Reason string
	Index  int
}

func (e *QuizFormatError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid quiz format: question %d: %s", e.Index+1, e.Reason)
	}
	return fmt.Sprintf("invalid quiz format: %s", e.Reason)
}

const quizSystemPrompt = `You are a quiz generator. Generate 10 multiple choice questions based on the provided notes. Yes, make them based on the notes, but make them original and don't copy examples or questions from the notes.
Each question should have 4 options (A, B, C, D) and include the correct answer. Format your response as a JSON array
with each question object containing: question_text, options (A through D), and correct_answer (A, B, C, or D).

Question Quality Requirements:
- Make questions challenging but fair
- Avoid similar questions
- Avoid obvious answers
- Keep questions concise
- Ensure all options are plausible

Mathematical Notation:
When including mathematical expressions:
1. Use standard LaTeX notation wrapped in $ signs for inline math
2. For example: "What is the derivative of $x^2 + 2x + 1$?"
3. Do not escape any LaTeX characters in the expressions
4. Use single $ for inline math, $$ for display math

Example Response Format:
{
"questions": [
    {
    "question_text": "What is the derivative of $x^2 + 2x + 1$?",
    "options": {
        "A": "$2x + 2$",
        "B": "$x^2 + 2$",
        "C": "$2x$",
        "D": "$x + 1$"
    },
    "correct_answer": "A"
    }
]
}`

var codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

var validAnswerKeys = []string{"A", "B", "C", "D"}

type QuizGenerator struct {
	ai *AIService
}

func NewQuizGenerator(ai *AIService) *QuizGenerator {
	return &QuizGenerator{ai: ai}
}

// rawQuestion 网关返回的未校验题目，指针字段用于区分缺失和空值
type rawQuestion struct {
	QuestionText  *string           `json:"question_text"`
	Options       map[string]string `json:"options"`
	CorrectAnswer *string           `json:"correct_answer"`
}

type rawQuizResponse struct {
	Questions *[]rawQuestion `json:"questions"`
}

// Generate 调用一次AI网关，返回恰好10道通过校验的题目。
// 任何一条校验失败都会丢弃整批（不做部分接受）。
func (g *QuizGenerator) Generate(ctx context.Context, notes string) ([]model.Question, error) {
	content, err := g.ai.ChatCompletion(ctx, quizSystemPrompt, notes, 4096, 0.7)
	if err != nil {
		return nil, err
	}
	return parseQuizResponse(content)
}

func parseQuizResponse(content string) ([]model.Question, error) {
	// 模型偶尔会把JSON包在markdown代码块里
	if m := codeFencePattern.FindStringSubmatch(content); m != nil {
		content = m[1]
	}

	var raw rawQuizResponse
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, &QuizFormatError{Reason: "response is not valid JSON", Index: -1}
	}

	if raw.Questions == nil {
		return nil, &QuizFormatError{Reason: "missing questions array", Index: -1}
	}

	questions := *raw.Questions
	if len(questions) != QuestionsPerBatch {
		return nil, &QuizFormatError{
			Reason: fmt.Sprintf("expected %d questions, got %d", QuestionsPerBatch, len(questions)),
			Index:  -1,
		}
	}

	validated := make([]model.Question, 0, QuestionsPerBatch)
	for i, q := range questions {
		if q.QuestionText == nil || q.Options == nil || q.CorrectAnswer == nil {
			return nil, &QuizFormatError{Reason: "missing required fields", Index: i}
		}

		if len(q.Options) != len(validAnswerKeys) {
			return nil, &QuizFormatError{Reason: "missing one or more options", Index: i}
		}
		for _, key := range validAnswerKeys {
			if _, ok := q.Options[key]; !ok {
				return nil, &QuizFormatError{Reason: "missing one or more options", Index: i}
			}
		}

		if !isValidAnswerKey(*q.CorrectAnswer) {
			return nil, &QuizFormatError{
				Reason: fmt.Sprintf("invalid correct_answer %q", *q.CorrectAnswer),
				Index:  i,
			}
		}

		validated = append(validated, model.Question{
			QuestionText:  *q.QuestionText,
			Options:       q.Options,
			CorrectAnswer: *q.CorrectAnswer,
		})
	}

	return validated, nil
}

func isValidAnswerKey(key string) bool {
	for _, k := range validAnswerKeys {
		if key == k {
			return true
		}
	}
	return false
}
