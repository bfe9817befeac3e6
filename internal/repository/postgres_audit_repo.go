package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/guildgate/internal/model"
)

// PostgresAuditLogRepo はPostgreSQLを使用した監査ログリポジトリ。
type PostgresAuditLogRepo struct {
	db *sql.DB
}

// NewPostgresAuditLogRepo はPostgresAuditLogRepoを生成する。
func NewPostgresAuditLogRepo(db *sql.DB) *PostgresAuditLogRepo {
	return &PostgresAuditLogRepo{db: db}
}

// Create は監査ログエントリを作成する。
func (r *PostgresAuditLogRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity, entity_id, details, actor_id, actor_email, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, string(entry.Action), string(entry.Entity), entry.EntityID,
		entry.Details, entry.ActorID, entry.ActorEmail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// ListRecent は監査ログを作成日時降順で最大limit件返す。
func (r *PostgresAuditLogRepo) ListRecent(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, action, entity, entity_id, details, actor_id, actor_email, created_at
		 FROM audit_logs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	return scanAuditLogs(rows)
}

// ListByEntity は指定エンティティの監査ログを作成日時降順で返す。
func (r *PostgresAuditLogRepo) ListByEntity(ctx context.Context, entity model.AuditEntity, entityID string) ([]*model.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, action, entity, entity_id, details, actor_id, actor_email, created_at
		 FROM audit_logs
		 WHERE entity = $1 AND entity_id = $2
		 ORDER BY created_at DESC`,
		string(entity), entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs by entity: %w", err)
	}
	defer rows.Close()

	return scanAuditLogs(rows)
}

// scanAuditLogs は結果セットをAuditLogスライスにスキャンする。
func scanAuditLogs(rows *sql.Rows) ([]*model.AuditLog, error) {
	var logs []*model.AuditLog
	for rows.Next() {
		entry := &model.AuditLog{}
		var action, entity string
		err := rows.Scan(
			&entry.ID, &action, &entity, &entry.EntityID,
			&entry.Details, &entry.ActorID, &entry.ActorEmail, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entry.Action = model.AuditAction(action)
		entry.Entity = model.AuditEntity(entity)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return logs, nil
}

// compile-time interface check
var _ AuditLogRepository = (*PostgresAuditLogRepo)(nil)
