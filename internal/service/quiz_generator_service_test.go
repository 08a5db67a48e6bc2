package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"learnai_backend/internal/config"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// validQuizJSON 生成一个通过全部校验的10题响应
func validQuizJSON() string {
	var sb strings.Builder
	sb.WriteString(`{"questions":[`)
	for i := 0; i < QuestionsPerBatch; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(fmt.Sprintf(`{
			"question_text": "Question %d?",
			"options": {"A": "a", "B": "b", "C": "c", "D": "d"},
			"correct_answer": "A"
		}`, i+1))
	}
	sb.WriteString(`]}`)
	return sb.String()
}

// mutateQuiz 解析有效响应,用fn修改后重新序列化
func mutateQuiz(t *testing.T, fn func(map[string]interface{})) string {
	t.Helper()
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(validQuizJSON()), &doc); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	fn(doc)
	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return string(out)
}

func questionAt(doc map[string]interface{}, i int) map[string]interface{} {
	return doc["questions"].([]interface{})[i].(map[string]interface{})
}

func TestParseQuizResponseValid(t *testing.T) {
	questions, err := parseQuizResponse(validQuizJSON())
	if err != nil {
		t.Fatalf("parseQuizResponse: %v", err)
	}
	if len(questions) != QuestionsPerBatch {
		t.Fatalf("got %d questions, want %d", len(questions), QuestionsPerBatch)
	}
	if questions[0].QuestionText != "Question 1?" {
		t.Errorf("unexpected first question text %q", questions[0].QuestionText)
	}
	if questions[9].CorrectAnswer != "A" {
		t.Errorf("unexpected correct answer %q", questions[9].CorrectAnswer)
	}
}

func TestParseQuizResponseStripsCodeFence(t *testing.T) {
	for _, fence := range []string{"```json\n%s\n```", "```\n%s\n```"} {
		content := fmt.Sprintf(fence, validQuizJSON())
		questions, err := parseQuizResponse(content)
		if err != nil {
			t.Fatalf("fenced response rejected: %v", err)
		}
		if len(questions) != QuestionsPerBatch {
			t.Fatalf("got %d questions, want %d", len(questions), QuestionsPerBatch)
		}
	}
}

func TestParseQuizResponseRejectsBadBatches(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantIndex int
	}{
		{
			name:      "not json",
			content:   "Sure! Here are your questions...",
			wantIndex: -1,
		},
		{
			name:      "missing questions key",
			content:   `{"items": []}`,
			wantIndex: -1,
		},
		{
			name: "nine questions",
			content: mutateQuiz(t, func(doc map[string]interface{}) {
				qs := doc["questions"].([]interface{})
				doc["questions"] = qs[:9]
			}),
			wantIndex: -1,
		},
		{
			name: "eleven questions",
			content: mutateQuiz(t, func(doc map[string]interface{}) {
				qs := doc["questions"].([]interface{})
				doc["questions"] = append(qs, qs[0])
			}),
			wantIndex: -1,
		},
		{
			name: "missing question_text",
			content: mutateQuiz(t, func(doc map[string]interface{}) {
				delete(questionAt(doc, 3), "question_text")
			}),
			wantIndex: 3,
		},
		{
			name: "missing option D",
			content: mutateQuiz(t, func(doc map[string]interface{}) {
				delete(questionAt(doc, 5)["options"].(map[string]interface{}), "D")
			}),
			wantIndex: 5,
		},
		{
			name: "extra option E",
			content: mutateQuiz(t, func(doc map[string]interface{}) {
				questionAt(doc, 0)["options"].(map[string]interface{})["E"] = "e"
			}),
			wantIndex: 0,
		},
		{
			name: "correct_answer outside A-D",
			content: mutateQuiz(t, func(doc map[string]interface{}) {
				questionAt(doc, 7)["correct_answer"] = "E"
			}),
			wantIndex: 7,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			questions, err := parseQuizResponse(tc.content)
			if err == nil {
				t.Fatal("expected error, got none")
			}
			// 整批丢弃，不做部分接受
			if questions != nil {
				t.Errorf("expected nil questions on failure, got %d", len(questions))
			}
			var formatErr *QuizFormatError
			if !errors.As(err, &formatErr) {
				t.Fatalf("expected *QuizFormatError, got %T: %v", err, err)
			}
			if formatErr.Index != tc.wantIndex {
				t.Errorf("got index %d, want %d", formatErr.Index, tc.wantIndex)
			}
		})
	}
}

func TestGenerateReturnsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer srv.Close()

	gen := NewQuizGenerator(NewAIService(config.AIConfig{BaseURL: srv.URL, Model: "test"}))
	_, err := gen.Generate(context.Background(), "some notes")
	if err == nil {
		t.Fatal("expected error, got none")
	}

	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected *GatewayError, got %T: %v", err, err)
	}
	if gatewayErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("got status %d, want %d", gatewayErr.StatusCode, http.StatusTooManyRequests)
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "```json\n" + validQuizJSON() + "\n```"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	gen := NewQuizGenerator(NewAIService(config.AIConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test"}))
	questions, err := gen.Generate(context.Background(), "some notes")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(questions) != QuestionsPerBatch {
		t.Fatalf("got %d questions, want %d", len(questions), QuestionsPerBatch)
	}
}
