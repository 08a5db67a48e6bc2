package service

import (
	"context"
	"errors"
	"fmt"
	"learnai_backend/internal/config"
	"learnai_backend/internal/model"
	"learnai_backend/internal/repository"
	"learnai_backend/internal/util"
	"learnai_backend/pkg/database"
	"learnai_backend/pkg/logger"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// 单连接串行化,避免内存库在后台补充goroutine下报锁冲突
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// batchQuizJSON 带批次标记的有效10题响应，用于断言追加顺序
func batchQuizJSON(batch int64) string {
	var sb strings.Builder
	sb.WriteString(`{"questions":[`)
	for i := 0; i < QuestionsPerBatch; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(fmt.Sprintf(`{
			"question_text": "batch %d question %d",
			"options": {"A": "a", "B": "b", "C": "c", "D": "d"},
			"correct_answer": "B"
		}`, batch, i+1))
	}
	sb.WriteString(`]}`)
	return sb.String()
}

// newQuizFixture 搭建sqlite、仓库和指向fake网关的QuizService。
// respond根据调用序号(从1开始)决定网关行为。
func newQuizFixture(t *testing.T, respond func(call int64, w http.ResponseWriter)) (*QuizService, *repository.DashboardRepository, *repository.QuizAttemptRepository) {
	t.Helper()

	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(atomic.AddInt64(&calls, 1), w)
	}))
	t.Cleanup(srv.Close)

	db := newTestDB(t)
	dashboardRepo := repository.NewDashboardRepository(db)
	attemptRepo := repository.NewQuizAttemptRepository(db)
	generator := NewQuizGenerator(NewAIService(config.AIConfig{BaseURL: srv.URL, Model: "test"}))

	return NewQuizService(dashboardRepo, attemptRepo, generator), dashboardRepo, attemptRepo
}

func respondWithBatch(call int64, w http.ResponseWriter) {
	fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, batchQuizJSON(call))
}

// seedDashboard 直接预置一个指定缓冲大小的会话。
// generating=true可以压住后台补充，让断言保持确定性。
func seedDashboard(t *testing.T, repo *repository.DashboardRepository, sets int, generating bool) *model.Dashboard {
	t.Helper()
	questions := make(model.QuestionList, 0, sets*QuestionsPerSet)
	for i := 0; i < sets*QuestionsPerSet; i++ {
		questions = append(questions, model.Question{
			QuestionText:  fmt.Sprintf("seeded question %d", i),
			Options:       map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"},
			CorrectAnswer: "A",
		})
	}
	dashboard := &model.Dashboard{
		UserID:            1,
		Notes:             "seeded notes",
		BufferedQuestions: questions,
		IsGenerating:      generating,
	}
	if err := repo.Create(dashboard); err != nil {
		t.Fatalf("create dashboard: %v", err)
	}
	return dashboard
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestCreateSessionBuffersAhead(t *testing.T) {
	svc, repo, _ := newQuizFixture(t, respondWithBatch)

	dashboard, err := svc.CreateSession(context.Background(), 1, "photosynthesis notes")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if dashboard.ID == "" {
		t.Fatal("expected generated session id")
	}
	if len(dashboard.BufferedQuestions) != QuestionsPerSet {
		t.Fatalf("got %d initial questions, want %d", len(dashboard.BufferedQuestions), QuestionsPerSet)
	}

	// 后台补充3批后缓冲应到40题，且生成标志被清除
	waitFor(t, 3*time.Second, func() bool {
		fresh, err := repo.FindByID(dashboard.ID)
		if err != nil {
			return false
		}
		return len(fresh.BufferedQuestions) == (1+ReplenishBatches)*QuestionsPerSet && !fresh.IsGenerating
	})

	fresh, err := repo.FindByID(dashboard.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	// 首批在前，补充批按生成顺序追加
	if got := fresh.BufferedQuestions[0].QuestionText; got != "batch 1 question 1" {
		t.Errorf("first question = %q, want batch 1", got)
	}
	if got := fresh.BufferedQuestions[30].QuestionText; got != "batch 4 question 1" {
		t.Errorf("question 31 = %q, want batch 4", got)
	}
}

func TestCreateSessionFirstBatchFailure(t *testing.T) {
	svc, _, _ := newQuizFixture(t, func(call int64, w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := svc.CreateSession(context.Background(), 1, "notes")
	if err == nil {
		t.Fatal("expected error, got none")
	}
	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected *GatewayError, got %T", err)
	}
}

func TestGetQuestionSetPaging(t *testing.T) {
	svc, repo, _ := newQuizFixture(t, respondWithBatch)
	dashboard := seedDashboard(t, repo, 3, true)

	tests := []struct {
		set           int
		wantFirst     string
		wantNeedsMore bool
	}{
		{set: 0, wantFirst: "seeded question 0", wantNeedsMore: false},
		{set: 1, wantFirst: "seeded question 10", wantNeedsMore: true},
		{set: 2, wantFirst: "seeded question 20", wantNeedsMore: true},
	}

	for _, tc := range tests {
		questions, needsMore, err := svc.GetQuestionSet(dashboard.ID, tc.set)
		if err != nil {
			t.Fatalf("set %d: %v", tc.set, err)
		}
		if len(questions) != QuestionsPerSet {
			t.Fatalf("set %d: got %d questions, want %d", tc.set, len(questions), QuestionsPerSet)
		}
		if questions[0].QuestionText != tc.wantFirst {
			t.Errorf("set %d: first question = %q, want %q", tc.set, questions[0].QuestionText, tc.wantFirst)
		}
		if needsMore != tc.wantNeedsMore {
			t.Errorf("set %d: needsMore = %v, want %v", tc.set, needsMore, tc.wantNeedsMore)
		}
	}

	// 重复请求同一组返回相同切片,读取无副作用
	again, _, err := svc.GetQuestionSet(dashboard.ID, 1)
	if err != nil {
		t.Fatalf("repeat read: %v", err)
	}
	if again[0].QuestionText != "seeded question 10" {
		t.Errorf("repeat read returned different questions: %q", again[0].QuestionText)
	}

	fresh, err := repo.FindByID(dashboard.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if fresh.CurrentSet != 1 {
		t.Errorf("current set = %d, want 1", fresh.CurrentSet)
	}
}

func TestGetQuestionSetNotReady(t *testing.T) {
	svc, repo, _ := newQuizFixture(t, respondWithBatch)
	dashboard := seedDashboard(t, repo, 1, true)

	// 缓冲只有10题,第3组不存在;不返回不足整页的尾巴
	for _, set := range []int{1, 3, 100} {
		questions, needsMore, err := svc.GetQuestionSet(dashboard.ID, set)
		if !errors.Is(err, util.ErrSetNotReady) {
			t.Fatalf("set %d: got %v, want ErrSetNotReady", set, err)
		}
		if questions != nil {
			t.Errorf("set %d: expected no questions, got %d", set, len(questions))
		}
		if !needsMore {
			t.Errorf("set %d: expected needsMore", set)
		}
	}
}

func TestGetQuestionSetUnknownSession(t *testing.T) {
	svc, _, _ := newQuizFixture(t, respondWithBatch)

	_, _, err := svc.GetQuestionSet("no-such-session", 0)
	if !errors.Is(err, util.ErrSessionNotFound) {
		t.Fatalf("got %v, want ErrSessionNotFound", err)
	}
}

func TestGetQuestionSetTriggersReplenishment(t *testing.T) {
	svc, repo, _ := newQuizFixture(t, respondWithBatch)
	dashboard := seedDashboard(t, repo, 1, false)

	// 10题缓冲,读第0组剩余不足30题,应触发后台补充
	if _, needsMore, err := svc.GetQuestionSet(dashboard.ID, 0); err != nil {
		t.Fatalf("GetQuestionSet: %v", err)
	} else if !needsMore {
		t.Fatal("expected needsMore with a 10-question buffer")
	}

	waitFor(t, 3*time.Second, func() bool {
		fresh, err := repo.FindByID(dashboard.ID)
		if err != nil {
			return false
		}
		return len(fresh.BufferedQuestions) == (1+ReplenishBatches)*QuestionsPerSet && !fresh.IsGenerating
	})
}

func TestReplenishSkipsFailedBatch(t *testing.T) {
	svc, repo, _ := newQuizFixture(t, func(call int64, w http.ResponseWriter) {
		if call == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		respondWithBatch(call, w)
	})
	dashboard := seedDashboard(t, repo, 1, false)

	if ok, err := repo.TryMarkGenerating(dashboard.ID); err != nil || !ok {
		t.Fatalf("TryMarkGenerating: ok=%v err=%v", ok, err)
	}
	svc.replenish(dashboard.ID, dashboard.Notes)

	fresh, err := repo.FindByID(dashboard.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	// 第2批失败被跳过,其余2批照常追加
	if got := len(fresh.BufferedQuestions); got != 30 {
		t.Errorf("buffer size = %d, want 30", got)
	}
	if fresh.IsGenerating {
		t.Error("generating flag not cleared")
	}
}

func TestReplenishClearsFlagOnTotalFailure(t *testing.T) {
	svc, repo, _ := newQuizFixture(t, func(call int64, w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	dashboard := seedDashboard(t, repo, 1, false)

	if ok, err := repo.TryMarkGenerating(dashboard.ID); err != nil || !ok {
		t.Fatalf("TryMarkGenerating: ok=%v err=%v", ok, err)
	}
	svc.replenish(dashboard.ID, dashboard.Notes)

	fresh, err := repo.FindByID(dashboard.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got := len(fresh.BufferedQuestions); got != 10 {
		t.Errorf("buffer size = %d, want 10", got)
	}
	if fresh.IsGenerating {
		t.Error("generating flag not cleared after total failure")
	}
}

func TestEnsureReplenishmentMutualExclusion(t *testing.T) {
	svc, repo, _ := newQuizFixture(t, respondWithBatch)
	dashboard := seedDashboard(t, repo, 1, true)

	// 标志被占时触发是no-op,不会产生新的生成调用
	svc.EnsureReplenishment(dashboard.ID, dashboard.Notes)
	time.Sleep(100 * time.Millisecond)

	fresh, err := repo.FindByID(dashboard.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got := len(fresh.BufferedQuestions); got != 10 {
		t.Errorf("buffer size = %d, want 10 (no replenishment while flag held)", got)
	}
	if !fresh.IsGenerating {
		t.Error("flag should remain held by its original owner")
	}
}

func TestSubmitResultsAndStats(t *testing.T) {
	svc, repo, attemptRepo := newQuizFixture(t, respondWithBatch)
	dashboard := seedDashboard(t, repo, 1, true)

	if err := svc.SubmitResults(dashboard.ID, 10, 8, 5); err != nil {
		t.Fatalf("SubmitResults: %v", err)
	}
	if err := svc.SubmitResults(dashboard.ID, 10, 6, 3); err != nil {
		t.Fatalf("SubmitResults: %v", err)
	}

	stats, err := svc.Stats(dashboard.ID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalQuestions != 20 {
		t.Errorf("total questions = %d, want 20", stats.TotalQuestions)
	}
	if stats.AverageScore != 70.0 {
		t.Errorf("average score = %v, want 70", stats.AverageScore)
	}
	// 最高连击单调不降
	if stats.BestStreak != 5 {
		t.Errorf("best streak = %d, want 5", stats.BestStreak)
	}

	attempts, err := attemptRepo.FindByDashboard(dashboard.ID)
	if err != nil {
		t.Fatalf("FindByDashboard: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(attempts))
	}
	if attempts[0].Score != 80.0 {
		t.Errorf("first attempt score = %v, want 80", attempts[0].Score)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	svc, repo, attemptRepo := newQuizFixture(t, respondWithBatch)
	dashboard := seedDashboard(t, repo, 1, true)

	if err := svc.SubmitResults(dashboard.ID, 10, 7, 2); err != nil {
		t.Fatalf("SubmitResults: %v", err)
	}
	if err := svc.DeleteSession(dashboard.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	if _, err := svc.Stats(dashboard.ID); !errors.Is(err, util.ErrSessionNotFound) {
		t.Errorf("got %v, want ErrSessionNotFound", err)
	}
	attempts, err := attemptRepo.FindByDashboard(dashboard.ID)
	if err != nil {
		t.Fatalf("FindByDashboard: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("got %d attempts after delete, want 0", len(attempts))
	}

	if err := svc.DeleteSession(dashboard.ID); !errors.Is(err, util.ErrSessionNotFound) {
		t.Errorf("second delete: got %v, want ErrSessionNotFound", err)
	}
}
