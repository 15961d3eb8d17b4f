package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/timetrack/internal/model"
)

// --- テスト用モック ---

type mockNotificationRepo struct {
	createFn       func(ctx context.Context, n *model.Notification) error
	findByIDFn     func(ctx context.Context, id string) (*model.Notification, error)
	listUnreadFn   func(ctx context.Context, userID string) ([]*model.Notification, error)
	listByUserIDFn func(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
	markReadFn     func(ctx context.Context, id string) (bool, error)
	markAllReadFn  func(ctx context.Context, userID string) (int64, error)
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	if m.createFn != nil {
		return m.createFn(ctx, n)
	}
	return nil
}

func (m *mockNotificationRepo) FindByID(ctx context.Context, id string) (*model.Notification, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockNotificationRepo) ListUnread(ctx context.Context, userID string) ([]*model.Notification, error) {
	if m.listUnreadFn != nil {
		return m.listUnreadFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockNotificationRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id string) (bool, error) {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, id)
	}
	return true, nil
}

func (m *mockNotificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if m.markAllReadFn != nil {
		return m.markAllReadFn(ctx, userID)
	}
	return 0, nil
}

type mockTaskRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Task, error)
}

func (m *mockTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockRecorder struct {
	types []string
}

func (m *mockRecorder) RecordAlertCreated(notificationType string) {
	m.types = append(m.types, notificationType)
}

type mockForwarder struct {
	forwarded []*model.Notification
	err       error
}

func (m *mockForwarder) Forward(_ context.Context, n *model.Notification) error {
	m.forwarded = append(m.forwarded, n)
	return m.err
}

func newTestService(repo *mockNotificationRepo, tasks *mockTaskRepo, rec *mockRecorder, fwd *mockForwarder) *Service {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	// nilポインタを非nilのインターフェースとして渡さない
	var recorder Recorder
	if rec != nil {
		recorder = rec
	}
	var forwarder Forwarder
	if fwd != nil {
		forwarder = fwd
	}
	svc := NewService(repo, tasks, recorder, forwarder, logger)
	svc.now = func() time.Time { return testNow }
	return svc
}

// --- Create ---

func TestService_Create_FillsDefaults(t *testing.T) {
	var saved *model.Notification
	repo := &mockNotificationRepo{
		createFn: func(ctx context.Context, n *model.Notification) error {
			saved = n
			return nil
		},
	}
	rec := &mockRecorder{}
	svc := newTestService(repo, &mockTaskRepo{}, rec, nil)

	n, err := svc.Create(context.Background(), &model.Notification{
		UserID: "user-1", Title: "t", Message: "m", Type: model.NotificationTypeReminder,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved == nil {
		t.Fatal("repository Create was not called")
	}
	if n.ID == "" {
		t.Error("expected ID to be generated")
	}
	if !n.DisplayAt.Equal(testNow) || !n.CreatedAt.Equal(testNow) {
		t.Errorf("DisplayAt=%v CreatedAt=%v, want %v", n.DisplayAt, n.CreatedAt, testNow)
	}
	if len(rec.types) != 1 || rec.types[0] != "Reminder" {
		t.Errorf("recorded types = %v, want [Reminder]", rec.types)
	}
}

func TestService_Create_KeepsExplicitDisplayAt(t *testing.T) {
	later := testNow.Add(2 * time.Hour)
	svc := newTestService(&mockNotificationRepo{}, &mockTaskRepo{}, nil, nil)

	n, err := svc.Create(context.Background(), &model.Notification{UserID: "user-1", DisplayAt: later})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !n.DisplayAt.Equal(later) {
		t.Errorf("DisplayAt = %v, want %v", n.DisplayAt, later)
	}
}

func TestService_Create_RepositoryError(t *testing.T) {
	storeErr := errors.New("db down")
	repo := &mockNotificationRepo{
		createFn: func(ctx context.Context, n *model.Notification) error { return storeErr },
	}
	rec := &mockRecorder{}
	fwd := &mockForwarder{}
	svc := newTestService(repo, &mockTaskRepo{}, rec, fwd)

	_, err := svc.Create(context.Background(), NewTimeEntryReminder("user-1", testNow))
	if !errors.Is(err, storeErr) {
		t.Errorf("expected store error, got %v", err)
	}
	if len(rec.types) != 0 || len(fwd.forwarded) != 0 {
		t.Error("failed create must not be recorded or forwarded")
	}
}

func TestService_Create_ForwardsOnlyAlerts(t *testing.T) {
	fwd := &mockForwarder{}
	svc := newTestService(&mockNotificationRepo{}, &mockTaskRepo{}, nil, fwd)
	ctx := context.Background()

	entry := &model.TimeEntry{ID: "e-1", UserID: "user-1", TaskID: "task-1"}
	svc.Create(ctx, NewLongTaskAlert(entry, "設計", 130, testNow))
	svc.Create(ctx, NewTimeEntryReminder("user-1", testNow))

	if len(fwd.forwarded) != 1 {
		t.Fatalf("forwarded = %d, want 1", len(fwd.forwarded))
	}
	if fwd.forwarded[0].Type != model.NotificationTypeAlert {
		t.Errorf("forwarded type = %s, want Alert", fwd.forwarded[0].Type)
	}
}

func TestService_Create_ForwardFailureIsNotFatal(t *testing.T) {
	fwd := &mockForwarder{err: errors.New("webhook 500")}
	svc := newTestService(&mockNotificationRepo{}, &mockTaskRepo{}, nil, fwd)

	entry := &model.TimeEntry{ID: "e-1", UserID: "user-1", TaskID: "task-1"}
	n, err := svc.Create(context.Background(), NewLongTaskAlert(entry, "設計", 130, testNow))
	if err != nil {
		t.Fatalf("forward failure must not fail Create: %v", err)
	}
	if n == nil {
		t.Fatal("expected notification")
	}
}

// --- reminder / task-incomplete ---

func TestService_CreateTaskIncompleteNotice(t *testing.T) {
	tasks := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Task, error) {
			if id == "task-1" {
				return &model.Task{ID: "task-1", Name: "レビュー"}, nil
			}
			return nil, nil
		},
	}
	svc := newTestService(&mockNotificationRepo{}, tasks, nil, nil)
	ctx := context.Background()

	n, err := svc.CreateTaskIncompleteNotice(ctx, "user-1", "task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Type != model.NotificationTypeTaskInfo {
		t.Errorf("Type = %s, want TaskInfo", n.Type)
	}

	_, err = svc.CreateTaskIncompleteNotice(ctx, "user-1", "missing")
	if !model.HasCode(err, model.ErrCodeTaskNotFound) {
		t.Errorf("expected TASK_NOT_FOUND, got %v", err)
	}
}

func TestService_CreateTimeEntryReminder(t *testing.T) {
	svc := newTestService(&mockNotificationRepo{}, &mockTaskRepo{}, nil, nil)

	n, err := svc.CreateTimeEntryReminder(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Type != model.NotificationTypeReminder || n.TaskID != nil {
		t.Errorf("unexpected reminder: %+v", n)
	}
}

// --- queries / read state ---

func TestService_History_DefaultLimit(t *testing.T) {
	var gotLimit int
	repo := &mockNotificationRepo{
		listByUserIDFn: func(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	svc := newTestService(repo, &mockTaskRepo{}, nil, nil)

	svc.History(context.Background(), "user-1", 0)
	if gotLimit != DefaultHistoryLimit {
		t.Errorf("limit = %d, want %d", gotLimit, DefaultHistoryLimit)
	}

	svc.History(context.Background(), "user-1", 10)
	if gotLimit != 10 {
		t.Errorf("limit = %d, want 10", gotLimit)
	}
}

func TestService_MarkRead(t *testing.T) {
	stored := map[string]*model.Notification{
		"n-1": {ID: "n-1", UserID: "user-1"},
		"n-2": {ID: "n-2", UserID: "user-1", IsRead: true},
	}
	var marked []string
	repo := &mockNotificationRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Notification, error) {
			return stored[id], nil
		},
		markReadFn: func(ctx context.Context, id string) (bool, error) {
			marked = append(marked, id)
			return true, nil
		},
	}
	svc := newTestService(repo, &mockTaskRepo{}, nil, nil)
	ctx := context.Background()

	if err := svc.MarkRead(ctx, "user-1", "n-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.MarkRead(ctx, "user-1", "n-2"); err != nil {
		t.Fatalf("already-read notification returned error: %v", err)
	}
	if len(marked) != 1 || marked[0] != "n-1" {
		t.Errorf("marked = %v, want [n-1]", marked)
	}

	if err := svc.MarkRead(ctx, "user-2", "n-1"); !model.HasCode(err, model.ErrCodeNotificationNotFound) {
		t.Errorf("other user's notification: got %v, want NOTIFICATION_NOT_FOUND", err)
	}
	if err := svc.MarkRead(ctx, "user-1", "missing"); !model.HasCode(err, model.ErrCodeNotificationNotFound) {
		t.Errorf("missing notification: got %v, want NOTIFICATION_NOT_FOUND", err)
	}
}

func TestService_MarkAllRead(t *testing.T) {
	repo := &mockNotificationRepo{
		markAllReadFn: func(ctx context.Context, userID string) (int64, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want user-1", userID)
			}
			return 3, nil
		},
	}
	svc := newTestService(repo, &mockTaskRepo{}, nil, nil)

	count, err := svc.MarkAllRead(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
