package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the persistence contract for instance mappings.
//
// The store must be per-key atomic and durable across restarts; beyond that
// the registry makes no assumptions about the backend. This abstraction
// allows different implementations (SQLite, mock, etc.) and enables unit
// testing without database dependencies.
type Repository interface {
	// GetMapping retrieves the persisted mapping for a composite key.
	// Returns ErrMappingNotFound if no mapping exists.
	GetMapping(ctx context.Context, clientID, serviceKey, serviceType string) (*InstanceMapping, error)

	// ListByClient retrieves all mappings owned by a client.
	ListByClient(ctx context.Context, clientID string) ([]InstanceMapping, error)

	// ReservedInstances returns every device_instance ever assigned for a
	// service type, active or not. Released instances stay reserved because
	// numbers are not recycled.
	ReservedInstances(ctx context.Context, serviceType string) ([]int, error)

	// CreateMapping persists a freshly allocated mapping.
	// The write must be atomic: either the row is durable or an error is
	// returned.
	CreateMapping(ctx context.Context, m *InstanceMapping) error

	// SetCustomName updates the display name on an existing mapping.
	// Returns ErrMappingNotFound if no mapping exists.
	SetCustomName(ctx context.Context, clientID, serviceKey, serviceType, name string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// device_instances table migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetMapping retrieves the persisted mapping for a composite key.
func (r *SQLiteRepository) GetMapping(ctx context.Context, clientID, serviceKey, serviceType string) (*InstanceMapping, error) {
	query := `
		SELECT client_id, service_key, service_type, device_instance, custom_name, created_at, updated_at
		FROM device_instances
		WHERE client_id = ? AND service_key = ? AND service_type = ?`

	row := r.db.QueryRowContext(ctx, query, clientID, serviceKey, serviceType)
	m, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("querying mapping: %w", err)
	}
	return m, nil
}

// ListByClient retrieves all mappings owned by a client.
func (r *SQLiteRepository) ListByClient(ctx context.Context, clientID string) ([]InstanceMapping, error) {
	query := `
		SELECT client_id, service_key, service_type, device_instance, custom_name, created_at, updated_at
		FROM device_instances
		WHERE client_id = ?
		ORDER BY service_key`

	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("querying mappings by client: %w", err)
	}
	defer rows.Close()

	var mappings []InstanceMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mapping row: %w", err)
		}
		mappings = append(mappings, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mappings: %w", err)
	}
	return mappings, nil
}

// ReservedInstances returns every instance number ever assigned for a type.
func (r *SQLiteRepository) ReservedInstances(ctx context.Context, serviceType string) ([]int, error) {
	query := `
		SELECT device_instance
		FROM device_instances
		WHERE service_type = ?
		ORDER BY device_instance`

	rows, err := r.db.QueryContext(ctx, query, serviceType)
	if err != nil {
		return nil, fmt.Errorf("querying reserved instances: %w", err)
	}
	defer rows.Close()

	var instances []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning instance row: %w", err)
		}
		instances = append(instances, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating instances: %w", err)
	}
	return instances, nil
}

// CreateMapping persists a freshly allocated mapping.
func (r *SQLiteRepository) CreateMapping(ctx context.Context, m *InstanceMapping) error {
	query := `
		INSERT INTO device_instances (client_id, service_key, service_type, device_instance, custom_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC().Format(time.RFC3339)
	var customName any
	if m.CustomName != "" {
		customName = m.CustomName
	}

	_, err := r.db.ExecContext(ctx, query,
		m.ClientID, m.ServiceKey, m.ServiceType, m.DeviceInstance, customName, now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting mapping: %w", err)
	}
	return nil
}

// SetCustomName updates the display name on an existing mapping.
func (r *SQLiteRepository) SetCustomName(ctx context.Context, clientID, serviceKey, serviceType, name string) error {
	query := `
		UPDATE device_instances
		SET custom_name = ?, updated_at = ?
		WHERE client_id = ? AND service_key = ? AND service_type = ?`

	var customName any
	if name != "" {
		customName = name
	}

	result, err := r.db.ExecContext(ctx, query,
		customName, time.Now().UTC().Format(time.RFC3339), clientID, serviceKey, serviceType,
	)
	if err != nil {
		return fmt.Errorf("updating custom name: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrMappingNotFound
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanMapping.
type scanner interface {
	Scan(dest ...any) error
}

// scanMapping scans one device_instances row.
func scanMapping(s scanner) (*InstanceMapping, error) {
	var m InstanceMapping
	var customName sql.NullString
	var createdAt, updatedAt string

	if err := s.Scan(
		&m.ClientID, &m.ServiceKey, &m.ServiceType, &m.DeviceInstance,
		&customName, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if customName.Valid {
		m.CustomName = customName.String
	}
	// Timestamps are written by us in RFC3339; parse errors leave zero times.
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Format is controlled

	return &m, nil
}
