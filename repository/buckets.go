package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

const bucketColumns = `id, name, description, root_path, bucket_type, external_provider, cluster,
		read_permissions, write_permissions, delete_permissions, mount_permissions, observe_permissions,
		mount_enabled, observe_enabled, state, provision_error, instance_id, created_at, modified_at`

// BucketStore implements interfaces.BucketRepository on database/sql.
type BucketStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewBucketStore returns a store using the given connection.
func NewBucketStore(db *sql.DB, dialect Dialect) *BucketStore {
	return &BucketStore{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBucket(row rowScanner) (*interfaces.Bucket, error) {
	var (
		b                  interfaces.Bucket
		rootPath, provider sql.NullString
		instanceID         sql.NullInt64
		bucketType, state  string
	)

	err := row.Scan(&b.ID, &b.Name, &b.Description, &rootPath, &bucketType, &provider, &b.Cluster,
		&b.Permissions.Read, &b.Permissions.Write, &b.Permissions.Delete, &b.Permissions.Mount, &b.Permissions.Observe,
		&b.MountEnabled, &b.ObserveEnabled, &state, &b.ProvisionError, &instanceID, &b.CreatedAt, &b.ModifiedAt)
	if err != nil {
		return nil, err
	}

	b.RootPath = rootPath.String
	b.BucketType = interfaces.BucketType(bucketType)
	b.ExternalProvider = provider.String
	b.State = interfaces.BucketState(state)
	if instanceID.Valid {
		id := instanceID.Int64
		b.InstanceID = &id
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.ModifiedAt = b.ModifiedAt.UTC()
	return &b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts b without a root path. The name is unique at the database
// level, so concurrent creates of one name cannot both succeed.
func (r *BucketStore) Create(ctx context.Context, b *interfaces.Bucket) (*interfaces.Bucket, error) {
	query := `INSERT INTO buckets (name, description, root_path, bucket_type, external_provider, cluster,
		read_permissions, write_permissions, delete_permissions, mount_permissions, observe_permissions,
		mount_enabled, observe_enabled, state, provision_error, created_at, modified_at)
		VALUES (?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)
		RETURNING id`

	if b.State == "" {
		b.State = interfaces.BucketStatePending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.now()
	}
	if b.ModifiedAt.IsZero() {
		b.ModifiedAt = b.CreatedAt
	}

	err := r.db.QueryRowContext(ctx, r.dialect.rebind(query),
		b.Name, b.Description, string(b.BucketType), nullString(b.ExternalProvider), b.Cluster,
		b.Permissions.Read, b.Permissions.Write, b.Permissions.Delete, b.Permissions.Mount, b.Permissions.Observe,
		b.MountEnabled, b.ObserveEnabled, string(b.State), b.CreatedAt, b.ModifiedAt,
	).Scan(&b.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrDuplicateName, b.Name)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	b.RootPath = ""
	return b, nil
}

func (r *BucketStore) getWhere(ctx context.Context, db DBTX, where string, args ...any) (*interfaces.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM buckets WHERE ` + where

	b, err := scanBucket(db.QueryRowContext(ctx, r.dialect.rebind(query), args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return b, nil
}

// Get returns the bucket with the given ID.
func (r *BucketStore) Get(ctx context.Context, id int64) (*interfaces.Bucket, error) {
	return r.getWhere(ctx, r.db, "id = ?", id)
}

// GetByName returns the bucket with the given name.
func (r *BucketStore) GetByName(ctx context.Context, name string) (*interfaces.Bucket, error) {
	return r.getWhere(ctx, r.db, "name = ?", name)
}

// List returns buckets ordered by name, then creation time.
func (r *BucketStore) List(ctx context.Context, filter interfaces.BucketFilter) ([]*interfaces.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM buckets`
	var args []any
	if filter.State != "" {
		query += ` WHERE state = ?`
		args = append(args, string(filter.State))
	}
	query += ` ORDER BY name, created_at`

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	buckets := []*interfaces.Bucket{}
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return buckets, nil
}

// Modify loads the bucket under a row lock, applies mutate and writes back
// the mutable columns only. Identity columns are never written here.
func (r *BucketStore) Modify(ctx context.Context, id int64, mutate func(b *interfaces.Bucket) error) (*interfaces.Bucket, error) {
	query := `UPDATE buckets SET description = ?,
		read_permissions = ?, write_permissions = ?, delete_permissions = ?, mount_permissions = ?, observe_permissions = ?,
		mount_enabled = ?, observe_enabled = ?, modified_at = ?
		WHERE id = ?`

	var updated *interfaces.Bucket
	err := WithTx(ctx, r.db, nil, func(ctx context.Context, tx DBTX) error {
		b, err := r.getWhere(ctx, tx, "id = ?"+r.dialect.lockClause(), id)
		if err != nil {
			return err
		}

		if err := mutate(b); err != nil {
			return err
		}
		b.ModifiedAt = r.now()

		_, err = tx.ExecContext(ctx, r.dialect.rebind(query),
			b.Description,
			b.Permissions.Read, b.Permissions.Write, b.Permissions.Delete, b.Permissions.Mount, b.Permissions.Observe,
			b.MountEnabled, b.ObserveEnabled, b.ModifiedAt, b.ID)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AssignRootPath sets the root path once. A second assignment fails with
// ErrRootPathAssigned, a path held by another bucket with ErrRootPathConflict.
func (r *BucketStore) AssignRootPath(ctx context.Context, id int64, rootPath string) error {
	query := `UPDATE buckets SET root_path = ?, modified_at = ? WHERE id = ? AND root_path IS NULL`

	res, err := r.db.ExecContext(ctx, r.dialect.rebind(query), rootPath, r.now(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", interfaces.ErrRootPathConflict, rootPath)
		}
		return fmt.Errorf("db error: %w", err)
	}

	return r.expectOneRow(ctx, res, id, interfaces.ErrRootPathAssigned)
}

// MarkProvisioned moves a pending bucket to provisioned.
func (r *BucketStore) MarkProvisioned(ctx context.Context, id int64, instanceID int64) error {
	query := `UPDATE buckets SET state = ?, instance_id = ?, provision_error = '', modified_at = ?
		WHERE id = ? AND state = ?`

	res, err := r.db.ExecContext(ctx, r.dialect.rebind(query),
		string(interfaces.BucketStateProvisioned), instanceID, r.now(), id, string(interfaces.BucketStatePending))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.expectOneRow(ctx, res, id, interfaces.ErrInvalidStateTransition)
}

// MarkProvisionFailed moves a pending bucket to provision_failed and records why.
func (r *BucketStore) MarkProvisionFailed(ctx context.Context, id int64, reason string) error {
	query := `UPDATE buckets SET state = ?, provision_error = ?, modified_at = ?
		WHERE id = ? AND state = ?`

	res, err := r.db.ExecContext(ctx, r.dialect.rebind(query),
		string(interfaces.BucketStateProvisionFailed), reason, r.now(), id, string(interfaces.BucketStatePending))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.expectOneRow(ctx, res, id, interfaces.ErrInvalidStateTransition)
}

// ResetPending moves a provision_failed bucket back to pending.
func (r *BucketStore) ResetPending(ctx context.Context, id int64) error {
	query := `UPDATE buckets SET state = ?, modified_at = ? WHERE id = ? AND state = ?`

	res, err := r.db.ExecContext(ctx, r.dialect.rebind(query),
		string(interfaces.BucketStatePending), r.now(), id, string(interfaces.BucketStateProvisionFailed))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.expectOneRow(ctx, res, id, interfaces.ErrInvalidStateTransition)
}

// expectOneRow turns a conditional update that matched nothing into either
// ErrNotFound or the given precondition error.
func (r *BucketStore) expectOneRow(ctx context.Context, res sql.Result, id int64, precondition error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return precondition
}
