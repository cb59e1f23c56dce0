package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/joshu-sajeev/goqueue/internal/runner"
	"github.com/joshu-sajeev/goqueue/internal/schedule"
	"github.com/joshu-sajeev/goqueue/internal/scheduler"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotInitialized = errors.New("action store not initialized")
	ErrActionNotFound = errors.New("action not found")
)

// ActionStore is the claim-capable action store. It works on PostgreSQL in
// production and on SQLite in development and tests.
type ActionStore struct {
	db    *gorm.DB
	ready atomic.Bool
}

func NewActionStore(db *gorm.DB) *ActionStore {
	return &ActionStore{db: db}
}

var (
	_ scheduler.ActionStore = (*ActionStore)(nil)
	_ runner.Store          = (*ActionStore)(nil)
	_ runner.CleanupStore   = (*ActionStore)(nil)
)

// Init brings the schema up to date and marks the store ready.
func (r *ActionStore) Init(ctx context.Context) error {
	if err := Migrate(ctx, r.db); err != nil {
		return err
	}
	r.ready.Store(true)
	return nil
}

// Ready reports whether Init completed.
func (r *ActionStore) Ready() bool {
	return r != nil && r.ready.Load()
}

func (r *ActionStore) checkReady() error {
	if !r.Ready() {
		return ErrNotInitialized
	}
	return nil
}

func (r *ActionStore) isPostgres() bool {
	return r.db.Dialector.Name() == "postgres"
}

// Create inserts a pending action. ArgsKey and Group are derived when empty.
// It fails with ErrNotInitialized before Init.
func (r *ActionStore) Create(ctx context.Context, action *models.Action) error {
	if err := r.checkReady(); err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	if err := prepare(action); err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(action).Error; err != nil {
			return err
		}
		return addLog(tx, action.ID, "action created")
	})
	if err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	return nil
}

func prepare(action *models.Action) error {
	args, err := models.ParseArgs(action.Args)
	if err != nil {
		return err
	}
	raw, err := args.Encode()
	if err != nil {
		return err
	}
	key, err := args.Key()
	if err != nil {
		return err
	}
	action.Args = datatypes.JSON(raw)
	action.ArgsKey = key
	action.Group = config.GroupOrDefault(action.Group)
	if action.Status == "" {
		action.Status = config.ActionStatusPending
	}
	action.ScheduledAt = action.ScheduledAt.UTC()
	return nil
}

// Get retrieves a single action by ID.
func (r *ActionStore) Get(ctx context.Context, id uint) (*models.Action, error) {
	var action models.Action
	if err := r.db.WithContext(ctx).First(&action, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrActionNotFound, id)
		}
		return nil, fmt.Errorf("get action: %w", err)
	}
	return &action, nil
}

func (r *ActionStore) filter(tx *gorm.DB, q models.ActionQuery) (*gorm.DB, error) {
	tx = tx.Model(&models.Action{})
	if q.Hook != "" {
		tx = tx.Where("hook = ?", q.Hook)
	}
	if len(q.Hooks) > 0 {
		tx = tx.Where("hook IN ?", q.Hooks)
	}
	if q.Args != nil {
		key, err := q.Args.Key()
		if err != nil {
			return nil, err
		}
		tx = tx.Where("args_key = ?", key)
	}
	if q.Group != "" {
		tx = tx.Where("group_name = ?", q.Group)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Claimed != nil {
		if *q.Claimed {
			tx = tx.Where("claim_id <> 0")
		} else {
			tx = tx.Where("claim_id = 0")
		}
	}
	if q.DueBy != nil {
		tx = tx.Where("scheduled_at <= ?", q.DueBy.UTC())
	}
	return tx, nil
}

// Find lists actions matching q, ordered by due time.
func (r *ActionStore) Find(ctx context.Context, q models.ActionQuery) ([]models.Action, error) {
	tx, err := r.filter(r.db.WithContext(ctx), q)
	if err != nil {
		return nil, fmt.Errorf("find actions: %w", err)
	}
	if q.Desc {
		tx = tx.Order("scheduled_at DESC").Order("id DESC")
	} else {
		tx = tx.Order("scheduled_at ASC").Order("id ASC")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}

	var actions []models.Action
	if err := tx.Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("find actions: %w", err)
	}
	return actions, nil
}

// Count counts actions matching q; Limit and Offset are ignored.
func (r *ActionStore) Count(ctx context.Context, q models.ActionQuery) (int64, error) {
	tx, err := r.filter(r.db.WithContext(ctx), q)
	if err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return n, nil
}

// Delete removes an action and its log.
func (r *ActionStore) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("action_id = ?", id).Delete(&models.ActionLog{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Action{}, id).Error
	})
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	return nil
}

// DeleteAll removes the pending actions of hook in group. A nil args removes
// them whatever their arguments.
func (r *ActionStore) DeleteAll(ctx context.Context, hook string, args models.Args, group string) (int64, error) {
	return r.deletePending(ctx, models.ActionQuery{
		Hook:   hook,
		Args:   args,
		Group:  config.GroupOrDefault(group),
		Status: config.ActionStatusPending,
	})
}

// DeleteUnclaimed is DeleteAll restricted to actions no runner has claimed.
func (r *ActionStore) DeleteUnclaimed(ctx context.Context, hook string, args models.Args, group string) (int64, error) {
	claimed := false
	return r.deletePending(ctx, models.ActionQuery{
		Hook:    hook,
		Args:    args,
		Group:   config.GroupOrDefault(group),
		Status:  config.ActionStatusPending,
		Claimed: &claimed,
	})
}

func (r *ActionStore) deletePending(ctx context.Context, query models.ActionQuery) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q, err := r.filter(tx, query)
		if err != nil {
			return err
		}
		var ids []uint
		if err := q.Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("action_id IN ?", ids).Delete(&models.ActionLog{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Action{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete actions: %w", err)
	}
	return deleted, nil
}

// Cancel moves a pending action to canceled.
func (r *ActionStore) Cancel(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Action{}).
			Where("id = ? AND status = ?", id, config.ActionStatusPending).
			Update("status", config.ActionStatusCanceled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: no pending action %d", ErrActionNotFound, id)
		}
		return addLog(tx, id, "action canceled")
	})
	if err != nil {
		return fmt.Errorf("cancel action: %w", err)
	}
	return nil
}

// Hooks lists distinct hooks with pending actions in group whose name starts
// with prefix.
func (r *ActionStore) Hooks(ctx context.Context, prefix, group string, limit int) ([]string, error) {
	tx := r.db.WithContext(ctx).Model(&models.Action{}).
		Distinct("hook").
		Where("status = ?", config.ActionStatusPending).
		Where("group_name = ?", config.GroupOrDefault(group))
	if prefix != "" {
		tx = tx.Where("hook LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	}
	tx = tx.Order("hook")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var hooks []string
	if err := tx.Pluck("hook", &hooks).Error; err != nil {
		return nil, fmt.Errorf("list hooks: %w", err)
	}
	return hooks, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// StakeClaim reserves up to limit due, pending, unclaimed actions. The
// reservation is a single UPDATE guarded by claim_id = 0, with SKIP LOCKED
// row locks on PostgreSQL, so concurrent callers never share an action.
func (r *ActionStore) StakeClaim(ctx context.Context, limit int, hooks []string, group string, now time.Time) (*models.StakedClaim, error) {
	if err := r.checkReady(); err != nil {
		return nil, fmt.Errorf("stake claim: %w", err)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("stake claim: limit must be positive")
	}
	staked := &models.StakedClaim{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := models.Claim{}
		if err := tx.Create(&claim).Error; err != nil {
			return err
		}
		staked.ID = claim.ID

		claimed := false
		due := now.UTC()
		sub, err := r.filter(tx.Session(&gorm.Session{NewDB: true}), models.ActionQuery{
			Hooks:   hooks,
			Group:   group,
			Status:  config.ActionStatusPending,
			Claimed: &claimed,
			DueBy:   &due,
		})
		if err != nil {
			return err
		}
		sub = sub.Select("id").Order("scheduled_at ASC").Order("id ASC").Limit(limit)
		if r.isPostgres() {
			sub = sub.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		if err := tx.Model(&models.Action{}).
			Where("id IN (?)", sub).
			Where("claim_id = 0").
			Updates(map[string]any{"claim_id": claim.ID, "updated_at": due}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Action{}).
			Where("claim_id = ?", claim.ID).
			Order("scheduled_at ASC").Order("id ASC").
			Pluck("id", &staked.ActionIDs).Error; err != nil {
			return err
		}
		for _, id := range staked.ActionIDs {
			if err := addLog(tx, id, fmt.Sprintf("action claimed by %d", claim.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stake claim: %w", err)
	}
	return staked, nil
}

// ReleaseClaim detaches every action from the claim and removes it.
func (r *ActionStore) ReleaseClaim(ctx context.Context, claimID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Action{}).
			Where("claim_id = ?", claimID).
			Update("claim_id", 0).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Claim{}, claimID).Error
	})
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// ClaimIDOf returns the claim currently owning the action, 0 when none.
func (r *ActionStore) ClaimIDOf(ctx context.Context, actionID uint) (uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Action{}).
		Where("id = ?", actionID).
		Pluck("claim_id", &ids).Error; err != nil {
		return 0, fmt.Errorf("get claim id: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

// ClaimCount counts claims that still own pending or running actions.
func (r *ActionStore) ClaimCount(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Action{}).
		Where("claim_id <> 0").
		Where("status IN ?", []string{config.ActionStatusPending, config.ActionStatusInProgress}).
		Distinct("claim_id").
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count claims: %w", err)
	}
	return n, nil
}

// MarkInProgress records the start of an attempt.
func (r *ActionStore) MarkInProgress(ctx context.Context, id uint, now time.Time) error {
	started := now.UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Action{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":          config.ActionStatusInProgress,
				"attempts":        gorm.Expr("attempts + ?", 1),
				"last_attempt_at": started,
			}).Error; err != nil {
			return err
		}
		return addLog(tx, id, "action started")
	})
	if err != nil {
		return fmt.Errorf("mark in progress: %w", err)
	}
	return nil
}

// MarkComplete finishes an action and, for recurring actions, creates the
// next occurrence in the same transaction.
func (r *ActionStore) MarkComplete(ctx context.Context, id uint, now time.Time) error {
	if err := r.finish(ctx, id, config.ActionStatusComplete, "action complete", now); err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	return nil
}

// MarkFailure records a failed attempt. Recurring actions still get their
// next occurrence.
func (r *ActionStore) MarkFailure(ctx context.Context, id uint, reason string, now time.Time) error {
	msg := "action failed"
	if reason != "" {
		msg += ": " + reason
	}
	if err := r.finish(ctx, id, config.ActionStatusFailed, msg, now); err != nil {
		return fmt.Errorf("mark failure: %w", err)
	}
	return nil
}

func (r *ActionStore) finish(ctx context.Context, id uint, status, message string, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var action models.Action
		if err := tx.First(&action, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %d", ErrActionNotFound, id)
			}
			return err
		}
		if err := tx.Model(&action).Update("status", status).Error; err != nil {
			return err
		}
		if err := addLog(tx, id, message); err != nil {
			return err
		}
		if !action.Recurring() {
			return nil
		}
		return scheduleNext(tx, &action, now)
	})
}

// scheduleNext creates the next occurrence of a recurring action unless one
// is already pending. The next run keeps the original cadence and lands in
// the future.
func scheduleNext(tx *gorm.DB, action *models.Action, now time.Time) error {
	var pending int64
	if err := tx.Model(&models.Action{}).
		Where("hook = ? AND args_key = ? AND group_name = ? AND status = ?",
			action.Hook, action.ArgsKey, action.Group, config.ActionStatusPending).
		Count(&pending).Error; err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}

	next := schedule.NextRun(action.ScheduledAt, action.Interval(), now)
	following := models.Action{
		Hook:            action.Hook,
		Args:            action.Args,
		ArgsKey:         action.ArgsKey,
		Group:           action.Group,
		Status:          config.ActionStatusPending,
		ScheduledAt:     next,
		IntervalSeconds: action.IntervalSeconds,
	}
	if err := tx.Create(&following).Error; err != nil {
		return err
	}
	return addLog(tx, following.ID, fmt.Sprintf("action created as next occurrence of %d", action.ID))
}

// Log appends a message to the action log.
func (r *ActionStore) Log(ctx context.Context, id uint, message string) error {
	if err := addLog(r.db.WithContext(ctx), id, message); err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

// Logs returns the log of an action, oldest first.
func (r *ActionStore) Logs(ctx context.Context, id uint) ([]models.ActionLog, error) {
	var logs []models.ActionLog
	if err := r.db.WithContext(ctx).
		Where("action_id = ?", id).
		Order("id ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list action logs: %w", err)
	}
	return logs, nil
}

func addLog(tx *gorm.DB, id uint, message string) error {
	return tx.Create(&models.ActionLog{ActionID: id, Message: message}).Error
}

// DeleteFinishedBefore removes up to limit complete, failed or canceled
// actions last updated before cutoff.
func (r *ActionStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		q := tx.Model(&models.Action{}).
			Where("status IN ?", config.FinishedStatuses).
			Where("updated_at < ?", cutoff.UTC()).
			Order("updated_at ASC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		if err := q.Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("action_id IN ?", ids).Delete(&models.ActionLog{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Action{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete finished actions: %w", err)
	}
	return deleted, nil
}

// ResetStaleClaims unclaims pending actions whose claim was staked before
// claimedBefore, so a crashed runner does not strand them.
func (r *ActionStore) ResetStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error) {
	stale := r.db.Session(&gorm.Session{NewDB: true}).
		Model(&models.Claim{}).
		Select("id").
		Where("created_at < ?", claimedBefore.UTC())

	res := r.db.WithContext(ctx).Model(&models.Action{}).
		Where("status = ?", config.ActionStatusPending).
		Where("claim_id IN (?)", stale).
		Update("claim_id", 0)
	if res.Error != nil {
		return 0, fmt.Errorf("reset stale claims: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// FailStaleInProgress marks actions that started before startedBefore and
// never finished as failed. Recurring actions get their next occurrence, as
// with MarkFailure.
func (r *ActionStore) FailStaleInProgress(ctx context.Context, startedBefore time.Time) (int64, error) {
	var failed int64
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []models.Action
		if err := tx.
			Where("status = ?", config.ActionStatusInProgress).
			Where("last_attempt_at < ?", startedBefore.UTC()).
			Order("id ASC").
			Find(&stale).Error; err != nil {
			return err
		}
		for i := range stale {
			action := &stale[i]
			res := tx.Model(&models.Action{}).
				Where("id = ? AND status = ?", action.ID, config.ActionStatusInProgress).
				Update("status", config.ActionStatusFailed)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			failed++
			if err := addLog(tx, action.ID, "action marked as failed after exceeding the claim timeout"); err != nil {
				return err
			}
			if action.Recurring() {
				if err := scheduleNext(tx, action, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("fail stale actions: %w", err)
	}
	return failed, nil
}
