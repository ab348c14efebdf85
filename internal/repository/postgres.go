// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrProductNotFound возвращается, если кредитный продукт не найден.
var (
	ErrProductNotFound = errors.New("loan product not found")
	// ErrApplicationNotFound возвращается, если заявка не найдена.
	ErrApplicationNotFound = errors.New("financing application not found")
	// ErrContractNotFound возвращается, если договор не найден.
	ErrContractNotFound = errors.New("contract not found")
	// ErrContractExists возвращается при попытке создать второй договор по одной заявке.
	ErrContractExists = errors.New("contract already exists for application")
	// ErrDisbursementExists возвращается при повторной выдаче средств по заявке.
	ErrDisbursementExists = errors.New("disbursement already exists for application")
	// ErrInstallmentNotFound возвращается, если строка графика не найдена.
	ErrInstallmentNotFound = errors.New("installment not found")
	// ErrGroupNotFound возвращается, если группа совместного займа не найдена.
	ErrGroupNotFound = errors.New("joint loan group not found")
	// ErrAlreadyMember возвращается, если фермер уже состоит в группе.
	ErrAlreadyMember = errors.New("farmer already joined the group")
	// ErrMemberNotFound возвращается, если участник группы не найден.
	ErrMemberNotFound = errors.New("group member not found")
	// ErrScoreNotFound возвращается, если скоринговый снимок по заявке отсутствует.
	ErrScoreNotFound = errors.New("credit score not found")
	// ErrStateConflict возвращается, когда статусный переход не прошёл проверку compare-and-swap.
	ErrStateConflict = errors.New("status changed concurrently")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при сериализационных конфликтах, дедлоках и обрывах соединения.
// Используется пакетными задачами, которые должны переживать кратковременные сбои БД.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewConstant(time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// AppendAudit добавляет запись в журнал операций. Журнал только дополняется.
func (r *PostgresRepository) AppendAudit(ctx context.Context, actorType string, actorID int64, action, target string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO operation_audit (actor_type, actor_id, action, target) VALUES ($1, $2, $3, $4)`,
		actorType, actorID, action, target,
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}
