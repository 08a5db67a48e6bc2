package controller

import (
	"fmt"
	"learnai_backend/internal/config"
	"learnai_backend/internal/model"
	"learnai_backend/internal/repository"
	"learnai_backend/internal/service"
	"learnai_backend/internal/util"
	"learnai_backend/pkg/database"
	"learnai_backend/pkg/logger"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// newSessionRouter 搭建带会话路由的测试路由器，返回用户1名下的会话ID。
// 认证中间件从请求头读取用户ID，方便同一路由器模拟不同用户。
func newSessionRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	dashboardRepo := repository.NewDashboardRepository(db)
	attemptRepo := repository.NewQuizAttemptRepository(db)
	generator := service.NewQuizGenerator(service.NewAIService(config.AIConfig{BaseURL: "http://127.0.0.1:1", Model: "test"}))
	quizService := service.NewQuizService(dashboardRepo, attemptRepo, generator)
	chatService := service.NewChatService(dashboardRepo, nil, nil)

	questions := make(model.QuestionList, 0, 10)
	for i := 0; i < 10; i++ {
		questions = append(questions, model.Question{
			QuestionText:  fmt.Sprintf("question %d", i),
			Options:       map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"},
			CorrectAnswer: "A",
		})
	}
	dashboard := &model.Dashboard{
		UserID:            1,
		Notes:             "notes",
		BufferedQuestions: questions,
		IsGenerating:      true,
	}
	if err := dashboardRepo.Create(dashboard); err != nil {
		t.Fatalf("create dashboard: %v", err)
	}

	quiz := NewQuizController(quizService)
	chat := NewChatController(chatService)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if v := c.GetHeader("X-User-ID"); v != "" {
			id, _ := strconv.Atoi(v)
			c.Set("user", &util.Claims{UserID: uint(id), Username: "tester"})
		}
	})
	router.GET("/api/quiz/:sessionId/questions", quiz.GetQuestions)
	router.POST("/api/quiz/:sessionId/results", quiz.SubmitResults)
	router.GET("/api/quiz/:sessionId/stats", quiz.GetStats)
	router.POST("/api/chat/:sessionId", chat.Ask)

	return router, dashboard.ID
}

func doSessionRequest(t *testing.T, router *gin.Engine, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSessionRoutesRejectForeignUser(t *testing.T) {
	router, sessionID := newSessionRouter(t)

	cases := []struct {
		method, path, body string
	}{
		{"GET", "/api/quiz/" + sessionID + "/questions", ""},
		{"POST", "/api/quiz/" + sessionID + "/results", `{"total_questions":10,"correct_answers":5,"streak":2}`},
		{"GET", "/api/quiz/" + sessionID + "/stats", ""},
		{"POST", "/api/chat/" + sessionID, `{"question":"what is this about?"}`},
	}

	for _, tc := range cases {
		// 别人的会话一律401
		if w := doSessionRequest(t, router, tc.method, tc.path, "2", tc.body); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s as foreign user: status %d, want 401", tc.method, tc.path, w.Code)
		}
		// 未认证同样401
		if w := doSessionRequest(t, router, tc.method, tc.path, "", tc.body); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s unauthenticated: status %d, want 401", tc.method, tc.path, w.Code)
		}
	}
}

func TestSessionRoutesAllowOwner(t *testing.T) {
	router, sessionID := newSessionRouter(t)

	if w := doSessionRequest(t, router, "GET", "/api/quiz/"+sessionID+"/questions?set=0", "1", ""); w.Code != http.StatusOK {
		t.Errorf("questions as owner: status %d, want 200: %s", w.Code, w.Body.String())
	}
	if w := doSessionRequest(t, router, "POST", "/api/quiz/"+sessionID+"/results", "1", `{"total_questions":10,"correct_answers":5,"streak":2}`); w.Code != http.StatusOK {
		t.Errorf("results as owner: status %d, want 200: %s", w.Code, w.Body.String())
	}
	if w := doSessionRequest(t, router, "GET", "/api/quiz/"+sessionID+"/stats", "1", ""); w.Code != http.StatusOK {
		t.Errorf("stats as owner: status %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestSessionRoutesUnknownSession(t *testing.T) {
	router, _ := newSessionRouter(t)

	if w := doSessionRequest(t, router, "GET", "/api/quiz/no-such-session/questions", "1", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown quiz session: status %d, want 404", w.Code)
	}
	if w := doSessionRequest(t, router, "POST", "/api/chat/no-such-session", "1", `{"question":"hi"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown chat session: status %d, want 404", w.Code)
	}
}
