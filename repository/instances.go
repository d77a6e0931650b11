package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

const instanceColumns = `id, name, root_path, bucket_type, external_provider, mount_permissions, created_at`

// InstanceStore implements interfaces.InstanceRepository on database/sql.
type InstanceStore struct {
	db      DBTX
	dialect Dialect
}

// NewInstanceStore returns a store using the given connection.
func NewInstanceStore(db DBTX, dialect Dialect) *InstanceStore {
	return &InstanceStore{db: db, dialect: dialect}
}

func scanInstance(row rowScanner) (*interfaces.BucketInstance, error) {
	var (
		inst       interfaces.BucketInstance
		provider   sql.NullString
		bucketType string
	)

	err := row.Scan(&inst.ID, &inst.Name, &inst.RootPath, &bucketType, &provider, &inst.MountPermissions, &inst.CreatedAt)
	if err != nil {
		return nil, err
	}

	inst.BucketType = interfaces.BucketType(bucketType)
	if provider.Valid {
		p := provider.String
		inst.ExternalProvider = &p
	}
	inst.CreatedAt = inst.CreatedAt.UTC()
	return &inst, nil
}

// Create inserts inst. Root paths are unique, so a replayed envelope cannot
// create a second instance.
func (r *InstanceStore) Create(ctx context.Context, inst *interfaces.BucketInstance) (*interfaces.BucketInstance, error) {
	query := `INSERT INTO bucket_instances (name, root_path, bucket_type, external_provider, mount_permissions, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	var provider sql.NullString
	if inst.ExternalProvider != nil {
		provider = sql.NullString{String: *inst.ExternalProvider, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, r.dialect.rebind(query),
		inst.Name, inst.RootPath, string(inst.BucketType), provider, inst.MountPermissions, inst.CreatedAt,
	).Scan(&inst.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrDuplicateInstance, inst.RootPath)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return inst, nil
}

func (r *InstanceStore) getWhere(ctx context.Context, where string, args ...any) (*interfaces.BucketInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM bucket_instances WHERE ` + where

	inst, err := scanInstance(r.db.QueryRowContext(ctx, r.dialect.rebind(query), args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return inst, nil
}

// Get returns the instance with the given ID.
func (r *InstanceStore) Get(ctx context.Context, id int64) (*interfaces.BucketInstance, error) {
	return r.getWhere(ctx, "id = ?", id)
}

// GetByRootPath returns the instance materialized at rootPath.
func (r *InstanceStore) GetByRootPath(ctx context.Context, rootPath string) (*interfaces.BucketInstance, error) {
	return r.getWhere(ctx, "root_path = ?", rootPath)
}

// List returns all instances in creation order.
func (r *InstanceStore) List(ctx context.Context) ([]*interfaces.BucketInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM bucket_instances ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	instances := []*interfaces.BucketInstance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return instances, nil
}
