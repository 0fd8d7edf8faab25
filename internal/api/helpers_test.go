package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/api/shared"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/ledger"
	"github.com/phrazzld/taskforge/internal/service/auth"
	"github.com/phrazzld/taskforge/internal/task"
	"github.com/stretchr/testify/require"
)

var (
	adminClaims = &auth.Claims{Role: auth.RoleAdmin, Subject: "ops@example.com"}
	userID      = uuid.MustParse("7b0c1b6e-6a59-4d53-9d1a-0c8d6b1f8a11")
	userClaims  = &auth.Claims{UserID: userID, Role: auth.RoleUser, Subject: userID.String()}
)

// serve routes one request through a chi router holding a single route.
func serve(t *testing.T, method, pattern, path string, h http.HandlerFunc, body any, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	if claims != nil {
		req = req.WithContext(shared.WithClaims(req.Context(), claims))
	}

	r := chi.NewRouter()
	r.Method(method, pattern, h)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type fakeTasks struct {
	SubmitFn func(ctx context.Context, userID, workspaceID uuid.UUID, goal string, taskType domain.TaskType) (*domain.Task, error)
	GetFn    func(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error)
	ListFn   func(ctx context.Context, userID, workspaceID uuid.UUID, limit int) ([]*domain.Task, error)
}

func (f *fakeTasks) Submit(ctx context.Context, userID, workspaceID uuid.UUID, goal string, taskType domain.TaskType) (*domain.Task, error) {
	return f.SubmitFn(ctx, userID, workspaceID, goal, taskType)
}

func (f *fakeTasks) Get(ctx context.Context, userID, taskID uuid.UUID) (*domain.Task, error) {
	return f.GetFn(ctx, userID, taskID)
}

func (f *fakeTasks) List(ctx context.Context, userID, workspaceID uuid.UUID, limit int) ([]*domain.Task, error) {
	return f.ListFn(ctx, userID, workspaceID, limit)
}

type fakeUsage func(ctx context.Context, userID uuid.UUID) (ledger.UsageSummary, error)

func (f fakeUsage) Usage(ctx context.Context, userID uuid.UUID) (ledger.UsageSummary, error) {
	return f(ctx, userID)
}

type fakeKiller func(ctx context.Context, id uuid.UUID, actor, reason string) (*task.KillResult, error)

func (f fakeKiller) Kill(ctx context.Context, id uuid.UUID, actor, reason string) (*task.KillResult, error) {
	return f(ctx, id, actor, reason)
}

type fakeScheduler struct {
	RunCycleFn  func(ctx context.Context) (*task.Admission, error)
	ReconcileFn func(ctx context.Context) []*domain.Task
}

func (f *fakeScheduler) RunCycle(ctx context.Context) (*task.Admission, error) {
	return f.RunCycleFn(ctx)
}

func (f *fakeScheduler) Reconcile(ctx context.Context) []*domain.Task {
	return f.ReconcileFn(ctx)
}

type fakeCredits struct {
	GrantFn     func(ctx context.Context, userID uuid.UUID, amount int64, reason string) (*domain.CreditEntry, error)
	ReconcileFn func(ctx context.Context, userID uuid.UUID) (ledger.Reconciliation, error)
	HistoryFn   func(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CreditEntry, error)
}

func (f *fakeCredits) Grant(ctx context.Context, userID uuid.UUID, amount int64, reason string) (*domain.CreditEntry, error) {
	return f.GrantFn(ctx, userID, amount, reason)
}

func (f *fakeCredits) Reconcile(ctx context.Context, userID uuid.UUID) (ledger.Reconciliation, error) {
	return f.ReconcileFn(ctx, userID)
}

func (f *fakeCredits) History(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CreditEntry, error) {
	return f.HistoryFn(ctx, userID, limit)
}

// recordedAudit is an in-memory AuditLog.
type recordedAudit struct {
	entries []*domain.AuditEntry
	listErr error
}

func (a *recordedAudit) Record(ctx context.Context, action, actor, target string, details any) (*domain.AuditEntry, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	e := &domain.AuditEntry{ID: uuid.New(), Action: action, Actor: actor, Target: target, Details: raw}
	a.entries = append(a.entries, e)
	return e, nil
}

func (a *recordedAudit) List(ctx context.Context, target string, limit int) ([]*domain.AuditEntry, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	var out []*domain.AuditEntry
	for _, e := range a.entries {
		if target == "" || e.Target == target {
			out = append(out, e)
		}
	}
	return out, nil
}
