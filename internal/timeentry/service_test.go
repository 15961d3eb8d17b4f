package timeentry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/timetrack/internal/model"
	"github.com/hitoshi/timetrack/internal/security"
)

// --- テスト用フェイク・モック ---

// memEntryRepo はTimeEntryRepositoryのインメモリ実装。
// 進行中エントリの一意性はあえて検証せず、サービス側の排他制御を検証できるようにする。
type memEntryRepo struct {
	mu      sync.Mutex
	entries map[string]model.TimeEntry

	// findActiveDelay はFindActiveByUserIDの応答を遅らせ、競合を起こしやすくする。
	findActiveDelay time.Duration
	updateErr       error
	// beforeUpdate は保存直前に呼ばれ、別プロセスによる更新を再現する。
	beforeUpdate func(entries map[string]model.TimeEntry)
}

func newMemEntryRepo() *memEntryRepo {
	return &memEntryRepo{entries: make(map[string]model.TimeEntry)}
}

func (r *memEntryRepo) FindByID(_ context.Context, id string) (*model.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *memEntryRepo) FindActiveByUserID(_ context.Context, userID string) (*model.TimeEntry, error) {
	if r.findActiveDelay > 0 {
		time.Sleep(r.findActiveDelay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.UserID == userID && e.EndTime == nil {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}

func (r *memEntryRepo) Create(_ context.Context, e *model.TimeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = *e
	return nil
}

func (r *memEntryRepo) Update(_ context.Context, e *model.TimeEntry, prevUpdatedAt time.Time) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beforeUpdate != nil {
		r.beforeUpdate(r.entries)
	}
	stored, ok := r.entries[e.ID]
	if !ok || stored.EndTime != nil || !stored.UpdatedAt.Equal(prevUpdatedAt) {
		return model.NewInvalidStateError("closed or modified")
	}
	r.entries[e.ID] = *e
	return nil
}

func (r *memEntryRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false, nil
	}
	delete(r.entries, id)
	return true, nil
}

func (r *memEntryRepo) List(_ context.Context, f model.TimeEntryFilter) ([]*model.TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.TimeEntry
	for _, e := range r.entries {
		if len(f.UserIDs) > 0 && e.UserID != f.UserIDs[0] {
			continue
		}
		if f.StartFrom != nil && e.StartTime.Before(*f.StartFrom) {
			continue
		}
		if f.StartTo != nil && e.StartTime.After(*f.StartTo) {
			continue
		}
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (r *memEntryRepo) ListDetails(context.Context, model.TimeEntryFilter) ([]model.TimeEntryDetail, error) {
	return nil, nil
}

func (r *memEntryRepo) ListRunningEntries(context.Context) ([]model.RunningEntry, error) {
	return nil, nil
}

func (r *memEntryRepo) activeCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.UserID == userID && e.EndTime == nil {
			n++
		}
	}
	return n
}

// mockUserRepo はUserRepositoryのモック。
type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) ListByDepartment(context.Context, string) ([]*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) ListByVendorName(context.Context, string) ([]*model.User, error) {
	return nil, nil
}

// mockTaskRepo はTaskRepositoryのモック。
// findByIDFnが未設定の場合は常にタスクが存在するものとして扱う。
type mockTaskRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Task, error)
}

func (m *mockTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &model.Task{ID: id, Name: "設計"}, nil
}

// mockRecorder はTransitionRecorderのモック。
type mockRecorder struct {
	mu          sync.Mutex
	transitions []string
	conflicts   int
}

func (m *mockRecorder) RecordTransition(op, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, op+":"+kind)
}

func (m *mockRecorder) RecordActiveEntryConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

// fakeClock はテスト用の手動で進める時計。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func at(hh, mm int) time.Time {
	return time.Date(2024, 1, 1, hh, mm, 0, 0, time.UTC)
}

type testEnv struct {
	svc      *Service
	repo     *memEntryRepo
	users    *mockUserRepo
	tasks    *mockTaskRepo
	recorder *mockRecorder
	clock    *fakeClock
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:     newMemEntryRepo(),
		users:    &mockUserRepo{},
		tasks:    &mockTaskRepo{},
		recorder: &mockRecorder{},
		clock:    &fakeClock{now: base},
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	env.svc = NewService(env.repo, env.users, env.tasks, security.NewNotesSanitizer(), env.recorder, logger)
	env.svc.now = env.clock.Now
	return env
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", code)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T: %v", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

// --- Start ---

func TestService_Start_CreatesRunningEntry(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, err := env.svc.Start(ctx, "user-1", "task-1", "キックオフ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if entry.State() != model.EntryStateRunning {
		t.Errorf("state = %s, want running", entry.State())
	}
	if !entry.StartTime.Equal(base) {
		t.Errorf("StartTime = %v, want %v", entry.StartTime, base)
	}
	if entry.ID == "" {
		t.Error("expected ID to be generated")
	}
	if entry.Notes != "キックオフ" {
		t.Errorf("Notes = %q, want %q", entry.Notes, "キックオフ")
	}
	if entry.DurationMinutes() != nil {
		t.Error("running entry should have no duration")
	}
}

func TestService_Start_ActiveEntryExists_ReturnsConflict(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Start(ctx, "user-1", "task-1", ""); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	_, err := env.svc.Start(ctx, "user-1", "task-2", "")
	assertAPIErrorCode(t, err, model.ErrCodeActiveEntryExists)

	if got := env.repo.activeCount("user-1"); got != 1 {
		t.Errorf("active entries = %d, want 1", got)
	}
	if env.recorder.conflicts != 1 {
		t.Errorf("conflicts recorded = %d, want 1", env.recorder.conflicts)
	}
}

func TestService_Start_PausedEntryStillBlocksStart(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "")
	if _, err := env.svc.Pause(ctx, "user-1", entry.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	_, err := env.svc.Start(ctx, "user-1", "task-1", "")
	assertAPIErrorCode(t, err, model.ErrCodeActiveEntryExists)
}

func TestService_Start_OtherUsersAreIndependent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Start(ctx, "user-1", "task-1", ""); err != nil {
		t.Fatalf("user-1 Start failed: %v", err)
	}
	if _, err := env.svc.Start(ctx, "user-2", "task-1", ""); err != nil {
		t.Fatalf("user-2 Start failed: %v", err)
	}
}

func TestService_Start_TaskNotFound(t *testing.T) {
	env := newTestEnv()
	env.tasks.findByIDFn = func(ctx context.Context, id string) (*model.Task, error) {
		return nil, nil
	}

	_, err := env.svc.Start(context.Background(), "user-1", "missing", "")
	assertAPIErrorCode(t, err, model.ErrCodeTaskNotFound)
}

func TestService_Start_ConcurrentRequests_ExactlyOneSucceeds(t *testing.T) {
	env := newTestEnv()
	env.repo.findActiveDelay = 10 * time.Millisecond
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Start(ctx, "user-1", "task-1", "")
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case model.HasCode(err, model.ErrCodeActiveEntryExists):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != n-1 {
		t.Errorf("successes=%d conflicts=%d, want 1 and %d", successes, conflicts, n-1)
	}
	if got := env.repo.activeCount("user-1"); got != 1 {
		t.Errorf("active entries = %d, want 1", got)
	}
	if got := env.svc.locker.size(); got != 0 {
		t.Errorf("locks held after completion = %d, want 0", got)
	}
}

// --- Pause / Resume ---

func TestService_Pause_InvalidStates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "")
	if _, err := env.svc.Pause(ctx, "user-1", entry.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	t.Run("既に一時停止中", func(t *testing.T) {
		_, err := env.svc.Pause(ctx, "user-1", entry.ID)
		assertAPIErrorCode(t, err, model.ErrCodeInvalidState)
	})

	t.Run("終了済み", func(t *testing.T) {
		if _, err := env.svc.End(ctx, "user-1", entry.ID, ""); err != nil {
			t.Fatalf("End failed: %v", err)
		}
		_, err := env.svc.Pause(ctx, "user-1", entry.ID)
		assertAPIErrorCode(t, err, model.ErrCodeInvalidState)
	})

	t.Run("存在しない", func(t *testing.T) {
		_, err := env.svc.Pause(ctx, "user-1", "missing")
		assertAPIErrorCode(t, err, model.ErrCodeTimeEntryNotFound)
	})

	t.Run("他ユーザーのエントリ", func(t *testing.T) {
		_, err := env.svc.Pause(ctx, "user-2", entry.ID)
		assertAPIErrorCode(t, err, model.ErrCodeTimeEntryNotFound)
	})
}

func TestService_Resume_NotPaused_ReturnsInvalidState(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "")
	_, err := env.svc.Resume(ctx, "user-1", entry.ID)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidState)
}

func TestService_Resume_MissingPauseStart_ReturnsInvalidState(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	broken := &model.TimeEntry{ID: "e-1", UserID: "user-1", TaskID: "task-1", StartTime: base, IsPaused: true}
	env.repo.Create(ctx, broken)

	_, err := env.svc.Resume(ctx, "user-1", "e-1")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidState)
}

func TestService_PauseResume_AccumulatesPausedMinutes(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "")

	env.clock.Set(at(9, 10))
	env.svc.Pause(ctx, "user-1", entry.ID)
	env.clock.Set(at(9, 17).Add(59 * time.Second)) // 7分59秒は7分として数える
	resumed, err := env.svc.Resume(ctx, "user-1", entry.ID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.PauseDurationMinutes != 7 {
		t.Errorf("PauseDurationMinutes = %d, want 7", resumed.PauseDurationMinutes)
	}
	if resumed.IsPaused || resumed.PauseStartTime != nil {
		t.Error("expected pause state to be cleared")
	}
	if !resumed.StartTime.Equal(base) || resumed.EndTime != nil {
		t.Error("pause/resume must not change StartTime or EndTime")
	}

	env.clock.Set(at(9, 30))
	env.svc.Pause(ctx, "user-1", entry.ID)
	env.clock.Set(at(9, 35))
	resumed, _ = env.svc.Resume(ctx, "user-1", entry.ID)
	if resumed.PauseDurationMinutes != 12 {
		t.Errorf("PauseDurationMinutes after second pause = %d, want 12", resumed.PauseDurationMinutes)
	}
}

// --- End ---

// 09:00開始、09:30一時停止、09:45再開、10:30終了で正味75分になること。
func TestService_Lifecycle_StartPauseResumeEnd(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, err := env.svc.Start(ctx, "user-1", "task-1", "")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	env.clock.Set(at(9, 30))
	if _, err := env.svc.Pause(ctx, "user-1", entry.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	env.clock.Set(at(9, 45))
	if _, err := env.svc.Resume(ctx, "user-1", entry.ID); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	env.clock.Set(at(10, 30))
	ended, err := env.svc.End(ctx, "user-1", entry.ID, "")
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if ended.PauseDurationMinutes != 15 {
		t.Errorf("PauseDurationMinutes = %d, want 15", ended.PauseDurationMinutes)
	}
	if got := ended.DurationMinutes(); got == nil || *got != 75 {
		t.Errorf("DurationMinutes = %v, want 75", got)
	}
	if ended.State() != model.EntryStateClosed {
		t.Errorf("state = %s, want closed", ended.State())
	}

	want := []string{"start:", "pause:", "resume:", "end:"}
	if len(env.recorder.transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", env.recorder.transitions, want)
	}
	for i := range want {
		if env.recorder.transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %q, want %q", i, env.recorder.transitions[i], want[i])
		}
	}
}

func TestService_End_WhilePaused_FoldsOpenPause(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "")
	env.clock.Set(at(9, 40))
	env.svc.Pause(ctx, "user-1", entry.ID)
	env.clock.Set(at(10, 0))

	ended, err := env.svc.End(ctx, "user-1", entry.ID, "")
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if ended.IsPaused || ended.PauseStartTime != nil {
		t.Error("closed entry must not remain paused")
	}
	if ended.PauseDurationMinutes != 20 {
		t.Errorf("PauseDurationMinutes = %d, want 20", ended.PauseDurationMinutes)
	}
	if got := ended.DurationMinutes(); got == nil || *got != 40 {
		t.Errorf("DurationMinutes = %v, want 40", got)
	}
}

func TestService_End_AppendsNotes(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "午前の作業")
	env.clock.Set(at(10, 0))

	ended, err := env.svc.End(ctx, "user-1", entry.ID, "<b>レビュー</b>完了")
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	want := "午前の作業\n\nレビュー完了"
	if ended.Notes != want {
		t.Errorf("Notes = %q, want %q", ended.Notes, want)
	}
}

func TestService_End_Twice_IsNoOp(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "")
	env.clock.Set(at(10, 0))
	first, err := env.svc.End(ctx, "user-1", entry.ID, "1回目")
	if err != nil {
		t.Fatalf("first End failed: %v", err)
	}

	env.clock.Set(at(11, 0))
	second, err := env.svc.End(ctx, "user-1", entry.ID, "2回目")
	if err != nil {
		t.Fatalf("second End returned error: %v", err)
	}
	if !second.EndTime.Equal(*first.EndTime) {
		t.Errorf("EndTime changed: %v -> %v", *first.EndTime, *second.EndTime)
	}
	if second.Notes != "1回目" {
		t.Errorf("Notes changed on no-op End: %q", second.Notes)
	}
}

func TestService_End_NotFound(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.End(context.Background(), "user-1", "missing", "")
	assertAPIErrorCode(t, err, model.ErrCodeTimeEntryNotFound)
}

func TestService_End_ConcurrentlyClosedElsewhere_ReturnsStored(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "")
	otherEnd := entry.StartTime.Add(10 * time.Minute)
	env.repo.beforeUpdate = func(entries map[string]model.TimeEntry) {
		e := entries[entry.ID]
		e.EndTime = &otherEnd
		e.UpdatedAt = otherEnd
		entries[entry.ID] = e
	}

	got, err := env.svc.End(ctx, "user-1", entry.ID, "")
	if err != nil {
		t.Fatalf("End returned error: %v", err)
	}
	if got.ID != entry.ID || got.EndTime == nil || !got.EndTime.Equal(otherEnd) {
		t.Errorf("got %+v, want the entry closed elsewhere at %v", got, otherEnd)
	}
}

// 読み取り後に別プロセスが一時停止したエントリは上書きせず競合として返す。
func TestService_End_ConcurrentlyPausedElsewhere_ReturnsInvalidState(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "")
	pausedAt := entry.StartTime.Add(5 * time.Minute)
	env.repo.beforeUpdate = func(entries map[string]model.TimeEntry) {
		e := entries[entry.ID]
		e.IsPaused = true
		e.PauseStartTime = &pausedAt
		e.UpdatedAt = pausedAt
		entries[entry.ID] = e
	}

	_, err := env.svc.End(ctx, "user-1", entry.ID, "")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidState)

	stored, _ := env.repo.FindByID(ctx, entry.ID)
	if stored.EndTime != nil || !stored.IsPaused {
		t.Errorf("stored entry was overwritten: %+v", stored)
	}
}

func TestService_Pause_StaleReadIsRejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "")
	env.repo.beforeUpdate = func(entries map[string]model.TimeEntry) {
		e := entries[entry.ID]
		e.UpdatedAt = e.UpdatedAt.Add(time.Second)
		entries[entry.ID] = e
	}

	_, err := env.svc.Pause(ctx, "user-1", entry.ID)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidState)
}

func TestService_End_StoreFailureIsWrapped(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "")
	storeErr := errors.New("connection reset")
	env.repo.updateErr = storeErr

	_, err := env.svc.End(ctx, "user-1", entry.ID, "")
	if !errors.Is(err, storeErr) {
		t.Errorf("expected store error to propagate, got %v", err)
	}
}

// --- Manual / Vendor ---

func TestService_AddManualEntry(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	t.Run("終了が開始より前なら入力値エラー", func(t *testing.T) {
		_, err := env.svc.AddManualEntry(ctx, ManualEntryInput{
			UserID:    "user-1",
			TaskID:    "task-1",
			StartTime: at(9, 0),
			EndTime:   at(8, 0),
		})
		assertAPIErrorCode(t, err, model.ErrCodeValidationFailed)
	})

	t.Run("開始と終了が同時刻なら入力値エラー", func(t *testing.T) {
		_, err := env.svc.AddManualEntry(ctx, ManualEntryInput{
			UserID:    "user-1",
			TaskID:    "task-1",
			StartTime: at(9, 0),
			EndTime:   at(9, 0),
		})
		assertAPIErrorCode(t, err, model.ErrCodeValidationFailed)
	})

	t.Run("正常に終了済みエントリが作成される", func(t *testing.T) {
		entry, err := env.svc.AddManualEntry(ctx, ManualEntryInput{
			UserID:    "user-1",
			TaskID:    "task-1",
			StartTime: at(13, 0),
			EndTime:   at(14, 30),
			Notes:     "打ち合わせ",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !entry.IsManualEntry || entry.State() != model.EntryStateClosed {
			t.Errorf("expected closed manual entry, got manual=%v state=%s", entry.IsManualEntry, entry.State())
		}
		if got := entry.DurationMinutes(); got == nil || *got != 90 {
			t.Errorf("DurationMinutes = %v, want 90", got)
		}
	})

	t.Run("手動入力は進行中エントリと共存できる", func(t *testing.T) {
		if _, err := env.svc.Start(ctx, "user-1", "task-1", ""); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		_, err := env.svc.AddManualEntry(ctx, ManualEntryInput{
			UserID: "user-1", TaskID: "task-1", StartTime: at(6, 0), EndTime: at(7, 0),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestService_AddManualEntry_NotesTooLong(t *testing.T) {
	env := newTestEnv()
	long := make([]rune, security.MaxNotesLength+1)
	for i := range long {
		long[i] = 'あ'
	}

	_, err := env.svc.AddManualEntry(context.Background(), ManualEntryInput{
		UserID: "user-1", TaskID: "task-1", StartTime: at(9, 0), EndTime: at(10, 0), Notes: string(long),
	})
	assertAPIErrorCode(t, err, model.ErrCodeValidationFailed)
}

func TestService_AddVendorBulkEntry(t *testing.T) {
	vendor := "Acme"
	users := map[string]*model.User{
		"vendor-1":   {ID: "vendor-1", IsInternal: false, VendorName: &vendor},
		"internal-1": {ID: "internal-1", IsInternal: true},
	}
	env := newTestEnv()
	env.users.findByIDFn = func(ctx context.Context, id string) (*model.User, error) {
		return users[id], nil
	}
	ctx := context.Background()
	jst := time.FixedZone("JST", 9*60*60)
	date := time.Date(2024, 3, 15, 17, 45, 0, 0, jst)

	t.Run("ベンダーユーザーは日付の0時から作業時間分のエントリになる", func(t *testing.T) {
		entry, err := env.svc.AddVendorBulkEntry(ctx, VendorEntryInput{
			VendorUserID: "vendor-1", TaskID: "task-1", Date: date, DurationMinutes: 450,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		wantStart := time.Date(2024, 3, 15, 0, 0, 0, 0, jst)
		if !entry.StartTime.Equal(wantStart) {
			t.Errorf("StartTime = %v, want %v", entry.StartTime, wantStart)
		}
		if !entry.EndTime.Equal(wantStart.Add(450 * time.Minute)) {
			t.Errorf("EndTime = %v, want %v", entry.EndTime, wantStart.Add(450*time.Minute))
		}
		if !entry.IsManualEntry {
			t.Error("expected IsManualEntry to be true")
		}
	})

	t.Run("社内ユーザーは拒否される", func(t *testing.T) {
		_, err := env.svc.AddVendorBulkEntry(ctx, VendorEntryInput{
			VendorUserID: "internal-1", TaskID: "task-1", Date: date, DurationMinutes: 60,
		})
		assertAPIErrorCode(t, err, model.ErrCodeNotExternalUser)
	})

	t.Run("存在しないユーザー", func(t *testing.T) {
		_, err := env.svc.AddVendorBulkEntry(ctx, VendorEntryInput{
			VendorUserID: "nobody", TaskID: "task-1", Date: date, DurationMinutes: 60,
		})
		assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
	})

	t.Run("負の作業時間は拒否される", func(t *testing.T) {
		_, err := env.svc.AddVendorBulkEntry(ctx, VendorEntryInput{
			VendorUserID: "vendor-1", TaskID: "task-1", Date: date, DurationMinutes: -1,
		})
		assertAPIErrorCode(t, err, model.ErrCodeValidationFailed)
	})
}

// --- Delete / queries ---

func TestService_Delete(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "")

	deleted, err := env.svc.Delete(ctx, "user-2", entry.ID)
	if err != nil || deleted {
		t.Fatalf("other user's delete: deleted=%v err=%v, want false,nil", deleted, err)
	}

	deleted, err = env.svc.Delete(ctx, "user-1", entry.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v, want true,nil", deleted, err)
	}

	deleted, _ = env.svc.Delete(ctx, "user-1", entry.ID)
	if deleted {
		t.Error("second Delete should return false")
	}

	// 削除後は新しい計測を開始できる
	if _, err := env.svc.Start(ctx, "user-1", "task-1", ""); err != nil {
		t.Errorf("Start after delete failed: %v", err)
	}
}

func TestService_ListUserEntries(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for _, h := range []int{8, 10, 12} {
		env.svc.AddManualEntry(ctx, ManualEntryInput{
			UserID: "user-1", TaskID: "task-1", StartTime: at(h, 0), EndTime: at(h+1, 0),
		})
	}
	env.svc.AddManualEntry(ctx, ManualEntryInput{
		UserID: "user-2", TaskID: "task-1", StartTime: at(9, 0), EndTime: at(10, 0),
	})

	from, to := at(9, 0), at(12, 0)
	entries, err := env.svc.ListUserEntries(ctx, "user-1", &from, &to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if !entries[0].StartTime.Equal(at(12, 0)) {
		t.Errorf("entries should be ordered by StartTime desc, first = %v", entries[0].StartTime)
	}

	_, err = env.svc.ListUserEntries(ctx, "user-1", &to, &from)
	assertAPIErrorCode(t, err, model.ErrCodeValidationFailed)
}

func TestService_GetActiveEntry(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	got, err := env.svc.GetActiveEntry(ctx, "user-1")
	if err != nil || got != nil {
		t.Fatalf("GetActiveEntry with none = %v, %v; want nil, nil", got, err)
	}

	entry, _ := env.svc.Start(ctx, "user-1", "task-1", "")
	got, err = env.svc.GetActiveEntry(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.ID != entry.ID {
		t.Errorf("GetActiveEntry = %v, want %s", got, entry.ID)
	}
}
