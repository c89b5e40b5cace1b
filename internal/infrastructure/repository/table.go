package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocrm-inc/autocrm/internal/domain/audit"
	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/persistence/mappers"
	"github.com/autocrm-inc/autocrm/internal/shared/actor"
	db "github.com/autocrm-inc/autocrm/internal/shared/db"
	apperrors "github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

// Mapper converts between a domain entity and its persistence model.
type Mapper[T any, M any] interface {
	ToModel(v T) *M
	ToDomain(model *M) (T, error)
}

type entity interface {
	GetID() string
}

type validatable interface {
	Validate() error
}

// TableSpec describes one table to the generic repository.
type TableSpec struct {
	Name string
	// Singular names one row in error messages, e.g. "ticket not found".
	Singular string
	// Columns is the allowlist for filters, searches and ordering.
	Columns db.Columns
	// Updatable is the set of columns a patch may carry.
	Updatable db.Columns
	// DefaultOrder replaces db.DefaultOrder for tables without created_at.
	DefaultOrder string
	// Audited tables get an audit_logs row for every change.
	Audited bool
	// ReadOnly tables reject writes through the repository.
	ReadOnly bool
}

// Table is a gorm backed table holding domain entities of type T stored as
// models of type M. Every write runs in a transaction that also records the
// audit row; change events are published once that transaction commits.
type Table[T entity, M any] struct {
	db        *gorm.DB
	txManager *db.TransactionManager
	mapper    Mapper[T, M]
	spec      TableSpec
	publisher changefeed.Publisher
	logger    logger.Interface
}

// NewTable creates a table repository. A nil publisher disables change
// events, which is what the postgres change source wants since its triggers
// emit them.
func NewTable[T entity, M any](gdb *gorm.DB, mapper Mapper[T, M], spec TableSpec, publisher changefeed.Publisher, log logger.Interface) *Table[T, M] {
	if log == nil {
		log = logger.NewNop()
	}
	if spec.Singular == "" {
		spec.Singular = spec.Name
	}
	return &Table[T, M]{
		db:        gdb,
		txManager: db.NewTransactionManager(gdb),
		mapper:    mapper,
		spec:      spec,
		publisher: publisher,
		logger:    log.With("table", spec.Name),
	}
}

func (r *Table[T, M]) Name() string {
	return r.spec.Name
}

func (r *Table[T, M]) List(ctx context.Context, q query.Query) ([]T, error) {
	var rows []M
	tx := db.Apply(db.GetTxFromContext(ctx, r.db).Model(new(M)), q, r.spec.Columns, r.spec.DefaultOrder)
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.spec.Name, err)
	}

	out := make([]T, 0, len(rows))
	for i := range rows {
		v, err := r.mapper.ToDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Table[T, M]) Get(ctx context.Context, id string) (T, error) {
	model, err := r.find(db.GetTxFromContext(ctx, r.db), id)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.mapper.ToDomain(model)
}

// Insert validates and stores v. An empty id is assigned a new UUID.
func (r *Table[T, M]) Insert(ctx context.Context, v T) (T, error) {
	var created T
	if err := r.writable(); err != nil {
		return created, err
	}
	if v.GetID() == "" {
		withID, err := patchEntity(v, map[string]any{"id": uuid.NewString()})
		if err != nil {
			return created, err
		}
		v = withID
	}
	if err := r.validate(v); err != nil {
		return created, err
	}

	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		tx := db.GetTxFromContext(ctx, r.db)
		model := r.mapper.ToModel(v)
		if err := tx.Create(model).Error; err != nil {
			return r.translate(err, "create")
		}
		var err error
		if created, err = r.mapper.ToDomain(model); err != nil {
			return err
		}
		return r.record(ctx, changefeed.OperationInsert, created, nil)
	})
	return created, err
}

// Update applies patch, keyed by column name, to the row with id. Columns
// outside the updatable set are rejected.
func (r *Table[T, M]) Update(ctx context.Context, id string, patch map[string]any) (T, error) {
	var updated T
	if err := r.writable(); err != nil {
		return updated, err
	}
	if len(patch) == 0 {
		return updated, apperrors.NewValidationError("nothing to update")
	}
	for column := range patch {
		if !r.spec.Updatable[column] {
			return updated, apperrors.NewValidationError(fmt.Sprintf("%s cannot be updated", column))
		}
	}

	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		tx := db.GetTxFromContext(ctx, r.db)
		model, err := r.find(tx, id)
		if err != nil {
			return err
		}
		old, err := r.mapper.ToDomain(model)
		if err != nil {
			return err
		}
		next, err := patchEntity(old, patch)
		if err != nil {
			return apperrors.NewValidationError("invalid "+r.spec.Singular, err.Error())
		}
		if err := r.validate(next); err != nil {
			return err
		}

		nextModel := r.mapper.ToModel(next)
		if err := tx.Save(nextModel).Error; err != nil {
			return r.translate(err, "update")
		}
		if updated, err = r.mapper.ToDomain(nextModel); err != nil {
			return err
		}
		return r.record(ctx, changefeed.OperationUpdate, updated, old)
	})
	return updated, err
}

func (r *Table[T, M]) Delete(ctx context.Context, id string) error {
	if err := r.writable(); err != nil {
		return err
	}
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		tx := db.GetTxFromContext(ctx, r.db)
		model, err := r.find(tx, id)
		if err != nil {
			return err
		}
		old, err := r.mapper.ToDomain(model)
		if err != nil {
			return err
		}
		if err := tx.Delete(model).Error; err != nil {
			return r.translate(err, "delete")
		}
		return r.record(ctx, changefeed.OperationDelete, nil, old)
	})
}

func (r *Table[T, M]) find(tx *gorm.DB, id string) (*M, error) {
	var model M
	if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError(r.spec.Singular + " not found")
		}
		return nil, fmt.Errorf("failed to find %s: %w", r.spec.Singular, err)
	}
	return &model, nil
}

func (r *Table[T, M]) writable() error {
	if r.spec.ReadOnly {
		return apperrors.NewForbiddenError(r.spec.Name + " is read-only")
	}
	return nil
}

func (r *Table[T, M]) validate(v T) error {
	if val, ok := any(v).(validatable); ok {
		if err := val.Validate(); err != nil {
			return apperrors.NewValidationError("invalid "+r.spec.Singular, err.Error())
		}
	}
	return nil
}

func (r *Table[T, M]) translate(err error, op string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError(r.spec.Singular + " already exists")
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return apperrors.NewValidationError(r.spec.Singular + " references a missing row")
	}
	return fmt.Errorf("failed to %s %s: %w", op, r.spec.Singular, err)
}

// record writes the audit row for a change and schedules its events for
// after the commit. Pass nil for a snapshot that does not apply.
func (r *Table[T, M]) record(ctx context.Context, op changefeed.Operation, newRow, oldRow any) error {
	events := make([]changefeed.Event, 0, 2)
	if r.publisher != nil {
		e, err := changefeed.NewEvent(r.spec.Name, op, newRow, oldRow)
		if err != nil {
			return err
		}
		events = append(events, e)
	}

	if r.spec.Audited {
		entry, err := writeAudit(ctx, r.db, r.spec.Name, op, newRow, oldRow)
		if err != nil {
			return err
		}
		if r.publisher != nil {
			e, err := changefeed.NewEvent(audit.Table, changefeed.OperationInsert, entry, nil)
			if err != nil {
				return err
			}
			events = append(events, e)
		}
	}

	if len(events) == 0 {
		return nil
	}
	db.OnCommit(ctx, func() {
		// The request may already be finished; the events must still go out.
		pubCtx := context.WithoutCancel(ctx)
		for _, e := range events {
			if err := r.publisher.Publish(pubCtx, e); err != nil {
				r.logger.Warnw("failed to publish change event",
					"event_id", e.ID,
					"operation", e.Operation,
					"error", err,
				)
			}
		}
	})
	return nil
}

var auditMapper = mappers.NewAuditLogMapper()

func writeAudit(ctx context.Context, gdb *gorm.DB, table string, op changefeed.Operation, newRow, oldRow any) (audit.AuditLog, error) {
	entry := audit.AuditLog{
		ID:        uuid.NewString(),
		TableName: table,
		Operation: audit.Operation(op),
		ChangedAt: time.Now().UTC(),
		ChangedBy: actor.UserID(ctx),
	}
	var err error
	if newRow != nil {
		if entry.NewData, err = json.Marshal(newRow); err != nil {
			return entry, fmt.Errorf("failed to marshal audit snapshot: %w", err)
		}
	}
	if oldRow != nil {
		if entry.OldData, err = json.Marshal(oldRow); err != nil {
			return entry, fmt.Errorf("failed to marshal audit snapshot: %w", err)
		}
	}

	if err := db.GetTxFromContext(ctx, gdb).Create(auditMapper.ToModel(entry)).Error; err != nil {
		return entry, fmt.Errorf("failed to write audit log: %w", err)
	}
	return entry, nil
}

// patchEntity overlays patch onto the JSON form of v. Keys are column
// names, which the domain types use as their JSON names.
func patchEntity[T any](v T, patch map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out, err
	}
	for k, val := range patch {
		fields[k] = val
	}
	if raw, err = json.Marshal(fields); err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// DeleteBefore removes rows whose column is older than cutoff and returns
// how many were removed. It is a maintenance operation: it bypasses
// ReadOnly and publishes no change events.
func (r *Table[T, M]) DeleteBefore(ctx context.Context, column string, cutoff time.Time) (int64, error) {
	if !r.spec.Columns[column] {
		return 0, fmt.Errorf("unknown column %q", column)
	}
	result := db.GetTxFromContext(ctx, r.db).Where(column+" < ?", cutoff.UTC()).Delete(new(M))
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge %s: %w", r.spec.Name, result.Error)
	}
	return result.RowsAffected, nil
}
