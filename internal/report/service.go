package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/timetrack/internal/model"
	"github.com/hitoshi/timetrack/internal/repository"
)

// Recorder はレポート生成の結果を記録するインターフェース。
type Recorder interface {
	RecordReportGenerated(reportType string, duration time.Duration)
	RecordReportFailure(reportType string, errKind string)
}

// GenerateInput はレポート生成のパラメータ。
type GenerateInput struct {
	Scope     Scope
	CreatorID string
	StartDate time.Time
	EndDate   time.Time
	Name      string
	Format    string // 空の場合はPDF
}

// Service はレポートのサービス層。
// 集計は読み取りのみで、時間計測エントリを変更しない。
type Service struct {
	entryRepo  repository.TimeEntryRepository
	userRepo   repository.UserRepository
	reportRepo repository.ReportRepository
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	entryRepo repository.TimeEntryRepository,
	userRepo repository.UserRepository,
	reportRepo repository.ReportRepository,
	recorder Recorder,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		entryRepo:  entryRepo,
		userRepo:   userRepo,
		reportRepo: reportRepo,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

// Generate は指定範囲のエントリを集計し、レポートとして保存する。
// 範囲に所属ユーザーがいない場合はレポートを作成せずにNO_MEMBERS_IN_SCOPEを返す。
func (s *Service) Generate(ctx context.Context, in GenerateInput) (rep *model.Report, err error) {
	started := s.now()
	defer func() {
		if s.recorder == nil {
			return
		}
		if err != nil {
			s.recorder.RecordReportFailure(string(in.Scope.Type), model.ErrorKind(err))
			return
		}
		s.recorder.RecordReportGenerated(string(in.Scope.Type), s.now().Sub(started))
	}()

	if err := in.Scope.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, model.NewValidationError("レポート名は必須です")
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, model.NewValidationError("終了日は開始日以降である必要があります")
	}

	members, err := resolveMembers(ctx, s.userRepo, in.Scope)
	if err != nil {
		return nil, err
	}

	w := Window{Start: in.StartDate, End: in.EndDate}
	details, err := s.entryRepo.ListDetails(ctx, model.TimeEntryFilter{
		UserIDs:    memberIDs(members),
		StartFrom:  &w.Start,
		StartTo:    &w.End,
		ClosedOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("集計用エントリの取得に失敗しました: %w", err)
	}
	res := Aggregate(details, w)

	params, data, err := buildPayload(in.Scope, w, res)
	if err != nil {
		return nil, err
	}

	format := in.Format
	if format == "" {
		format = model.DefaultReportFormat
	}
	now := s.now()
	rep = &model.Report{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Type:        in.Scope.Type,
		PeriodType:  w.PeriodType(),
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Parameters:  params,
		ReportData:  data,
		Format:      format,
		CreatedByID: in.CreatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	switch in.Scope.Type {
	case model.ReportTypeIndividual:
		rep.UserID = &in.Scope.UserID
	case model.ReportTypeDepartment:
		rep.DepartmentID = &in.Scope.DepartmentID
	case model.ReportTypeVendor:
		// ベンダーの代表ユーザーとして最初のメンバーを記録する
		rep.UserID = &members[0].ID
	}

	if err := s.reportRepo.Create(ctx, rep); err != nil {
		return nil, err
	}

	s.logger.Info("レポートを生成しました",
		slog.String("report_id", rep.ID),
		slog.String("type", string(rep.Type)),
		slog.String("period_type", string(rep.PeriodType)),
		slog.Int("total_entries", res.TotalEntries),
		slog.Int("total_minutes", res.TotalMinutes),
	)
	return rep, nil
}

// GenerateIndividual は個人レポートを生成する。
func (s *Service) GenerateIndividual(ctx context.Context, userID, creatorID string, start, end time.Time, name, format string) (*model.Report, error) {
	return s.Generate(ctx, GenerateInput{
		Scope: IndividualScope(userID), CreatorID: creatorID,
		StartDate: start, EndDate: end, Name: name, Format: format,
	})
}

// GenerateDepartment は部署レポートを生成する。
func (s *Service) GenerateDepartment(ctx context.Context, departmentID, creatorID string, start, end time.Time, name, format string) (*model.Report, error) {
	return s.Generate(ctx, GenerateInput{
		Scope: DepartmentScope(departmentID), CreatorID: creatorID,
		StartDate: start, EndDate: end, Name: name, Format: format,
	})
}

// GenerateVendor はベンダーレポートを生成する。
func (s *Service) GenerateVendor(ctx context.Context, vendorName, creatorID string, start, end time.Time, name, format string) (*model.Report, error) {
	return s.Generate(ctx, GenerateInput{
		Scope: VendorScope(vendorName), CreatorID: creatorID,
		StartDate: start, EndDate: end, Name: name, Format: format,
	})
}

// Get は指定IDのレポートを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Report, error) {
	rep, err := s.reportRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("レポートの取得に失敗しました: %w", err)
	}
	if rep == nil {
		return nil, model.NewReportNotFoundError(id)
	}
	return rep, nil
}

// ListForUser はユーザーが作成した、またはユーザーを対象とするレポートを新しい順に返す。
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*model.Report, error) {
	return s.reportRepo.ListForUser(ctx, userID)
}

// ListForDepartment は部署のレポートを新しい順に返す。
func (s *Service) ListForDepartment(ctx context.Context, departmentID string) ([]*model.Report, error) {
	return s.reportRepo.ListByDepartment(ctx, departmentID)
}

// ListForTeam はチームのレポートを新しい順に返す。
func (s *Service) ListForTeam(ctx context.Context, teamID string) ([]*model.Report, error) {
	return s.reportRepo.ListByTeam(ctx, teamID)
}

// Rename はレポート名と出力形式を更新する。空の値は変更しない。
func (s *Service) Rename(ctx context.Context, id, name, format string) (*model.Report, error) {
	rep, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) != "" {
		rep.Name = name
	}
	if format != "" {
		rep.Format = format
	}
	rep.UpdatedAt = s.now()
	if err := s.reportRepo.Update(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// Delete はレポートを削除する。存在しない場合はfalseを返す。
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.reportRepo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("レポートを削除しました", slog.String("report_id", id))
	}
	return deleted, nil
}
