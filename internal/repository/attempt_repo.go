package repository

import (
	"context"
	"errors"
	"time"

	"github.com/institutovalente/registry-bridge/internal/domain"
	"gorm.io/gorm"
)

// QueueSnapshot is the operational view of the retry queue.
type QueueSnapshot struct {
	TotalItems     int64
	ReadyToProcess int64
	FailedItems    int64
	AverageWait    time.Duration
}

// ListAttemptsParams filters the audit log.
type ListAttemptsParams struct {
	UserID   string
	Status   *domain.AttemptStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// AttemptRepository is the persistence port for the delivery attempt log.
// Terminal statuses are enforced in the transition queries themselves so a
// success or failed row can never change again, no matter how many queue
// passes run.
type AttemptRepository interface {
	Create(ctx context.Context, a *domain.AttemptRecord) error
	GetByID(ctx context.Context, id string) (*domain.AttemptRecord, error)
	List(ctx context.Context, params ListAttemptsParams) ([]domain.AttemptRecord, int64, error)
	MarkSuccess(ctx context.Context, id string, response string) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	MarkRetry(ctx context.Context, id string, errorMessage string, nextEligibleAt time.Time) error
	Release(ctx context.Context, id string, errorMessage string, nextEligibleAt time.Time) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.AttemptRecord, error)
	ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error)
	CountByStatus(ctx context.Context, since *time.Time) (map[domain.AttemptStatus]int64, error)
	QueueSnapshot(ctx context.Context, now time.Time) (*QueueSnapshot, error)
}

var nonTerminalStatuses = []domain.AttemptStatus{domain.AttemptPending, domain.AttemptRetry}

type GormAttemptRepo struct {
	db *gorm.DB
}

var _ AttemptRepository = (*GormAttemptRepo)(nil)

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.AttemptRecord) error {
	model, err := attemptModelFromDomain(a)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		restored, err := attemptModelToDomain(model)
		if err != nil {
			return err
		}
		*a = *restored
	}
	return nil
}

func (r *GormAttemptRepo) GetByID(ctx context.Context, id string) (*domain.AttemptRecord, error) {
	var model AttemptModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return attemptModelToDomain(&model)
}

func (r *GormAttemptRepo) List(ctx context.Context, params ListAttemptsParams) ([]domain.AttemptRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&AttemptModel{})

	if params.UserID != "" {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []AttemptModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.AttemptRecord, 0, len(models))
	for i := range models {
		record, err := attemptModelToDomain(&models[i])
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *record)
	}

	return records, total, nil
}

func (r *GormAttemptRepo) MarkSuccess(ctx context.Context, id string, response string) error {
	return r.transition(ctx, id, map[string]any{
		"status":           domain.AttemptSuccess,
		"response":         response,
		"next_eligible_at": nil,
	})
}

func (r *GormAttemptRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	return r.transition(ctx, id, map[string]any{
		"status":           domain.AttemptFailed,
		"error_message":    errorMessage,
		"next_eligible_at": nil,
	})
}

func (r *GormAttemptRepo) MarkRetry(ctx context.Context, id string, errorMessage string, nextEligibleAt time.Time) error {
	return r.transition(ctx, id, map[string]any{
		"status":           domain.AttemptRetry,
		"error_message":    errorMessage,
		"next_eligible_at": nextEligibleAt,
	})
}

// Release undoes a claim that never reached the partner: the row goes back to
// retry and the attempt_count bump applied by ClaimDue is reverted, so a
// delivery that never happened cannot consume retry budget.
func (r *GormAttemptRepo) Release(ctx context.Context, id string, errorMessage string, nextEligibleAt time.Time) error {
	return r.transition(ctx, id, map[string]any{
		"status":           domain.AttemptRetry,
		"error_message":    errorMessage,
		"next_eligible_at": nextEligibleAt,
		"attempt_count":    gorm.Expr("GREATEST(attempt_count - 1, 0)"),
	})
}

// transition applies a status change guarded against terminal rows.
func (r *GormAttemptRepo) transition(ctx context.Context, id string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&AttemptModel{}).
		Where("id = ? AND status IN ?", id, nonTerminalStatuses).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ClaimDue atomically flips due retry rows to pending, bumping attempt_count,
// so concurrent queue passes never pick up the same record twice. SKIP LOCKED
// keeps competing passes from blocking each other.
func (r *GormAttemptRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.AttemptRecord, error) {
	if limit < 1 {
		limit = 1
	}

	var models []AttemptModel
	err := r.db.WithContext(ctx).Raw(`
		UPDATE integration_attempts
		SET status = ?, attempt_count = attempt_count + 1, updated_at = ?
		WHERE id IN (
			SELECT id FROM integration_attempts
			WHERE status = ? AND next_eligible_at <= ?
			ORDER BY next_eligible_at ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, domain.AttemptPending, now.UTC(), domain.AttemptRetry, now.UTC(), limit).
		Scan(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.AttemptRecord, 0, len(models))
	for i := range models {
		record, err := attemptModelToDomain(&models[i])
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	return records, nil
}

// ReclaimStale moves pending rows that were abandoned by a crash back to
// retry so the next queue pass picks them up. Returns the number reclaimed.
func (r *GormAttemptRepo) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&AttemptModel{}).
		Where("status = ? AND updated_at < ?", domain.AttemptPending, olderThan).
		Updates(map[string]any{
			"status":           domain.AttemptRetry,
			"next_eligible_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormAttemptRepo) CountByStatus(ctx context.Context, since *time.Time) (map[domain.AttemptStatus]int64, error) {
	type statusCount struct {
		Status domain.AttemptStatus `gorm:"column:status"`
		Count  int64                `gorm:"column:count"`
	}

	query := r.db.WithContext(ctx).
		Model(&AttemptModel{}).
		Select("status, COUNT(*) as count")
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}

	var rows []statusCount
	if err := query.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[domain.AttemptStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *GormAttemptRepo) QueueSnapshot(ctx context.Context, now time.Time) (*QueueSnapshot, error) {
	snapshot := &QueueSnapshot{}
	db := r.db.WithContext(ctx).Model(&AttemptModel{})

	if err := db.Session(&gorm.Session{}).
		Where("status = ?", domain.AttemptRetry).
		Count(&snapshot.TotalItems).Error; err != nil {
		return nil, err
	}

	if err := db.Session(&gorm.Session{}).
		Where("status = ? AND next_eligible_at <= ?", domain.AttemptRetry, now.UTC()).
		Count(&snapshot.ReadyToProcess).Error; err != nil {
		return nil, err
	}

	if err := db.Session(&gorm.Session{}).
		Where("status = ?", domain.AttemptFailed).
		Count(&snapshot.FailedItems).Error; err != nil {
		return nil, err
	}

	var avgWaitSeconds float64
	err := r.db.WithContext(ctx).Raw(`
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (? - next_eligible_at))), 0)
		FROM integration_attempts
		WHERE status = ? AND next_eligible_at <= ?
	`, now.UTC(), domain.AttemptRetry, now.UTC()).
		Scan(&avgWaitSeconds).Error
	if err != nil {
		return nil, err
	}
	snapshot.AverageWait = time.Duration(avgWaitSeconds * float64(time.Second))

	return snapshot, nil
}
