package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type enrollmentScanner interface {
	ListAll(ctx context.Context) ([]models.Enrollment, error)
	DeleteMany(ctx context.Context, ids []string) error
}

// ReconciliationService collapses duplicate enrollment records down to one
// authoritative record per (student, course) pair. It performs no credit-hour
// accounting and is safe to re-run: a second sweep over a clean set deletes
// nothing.
type ReconciliationService struct {
	repo    enrollmentScanner
	metrics *MetricsService
	logger  *zap.Logger
}

// NewReconciliationService constructs ReconciliationService.
func NewReconciliationService(repo enrollmentScanner, metrics *MetricsService, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{repo: repo, metrics: metrics, logger: logger}
}

// SweepResult summarises one reconciliation pass.
type SweepResult struct {
	Scanned    int `json:"scanned"`
	Duplicates int `json:"duplicate_groups"`
	Deleted    int `json:"deleted"`
}

// Sweep scans every enrollment record, groups them by logical key and deletes
// all but the highest-priority record in each group. Ties within the same
// status keep the earliest record in scan order.
func (s *ReconciliationService) Sweep(ctx context.Context) (*SweepResult, error) {
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan enrollments")
	}

	type pair struct{ studentID, courseCode string }
	groups := make(map[pair][]models.Enrollment)
	order := make([]pair, 0)
	for _, rec := range records {
		key := pair{rec.StudentID, rec.CourseCode}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	result := &SweepResult{Scanned: len(records)}
	var doomed []string
	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		result.Duplicates++
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Status.Priority() < group[j].Status.Priority()
		})
		for _, rec := range group[1:] {
			doomed = append(doomed, rec.ID)
		}
	}

	if len(doomed) > 0 {
		if err := s.repo.DeleteMany(ctx, doomed); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete duplicate enrollments")
		}
	}
	result.Deleted = len(doomed)
	if s.metrics != nil {
		s.metrics.RecordReconciliationSweep(result.Deleted)
	}
	s.logger.Info("enrollment reconciliation sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("duplicate_groups", result.Duplicates),
		zap.Int("deleted", result.Deleted),
	)
	return result, nil
}
