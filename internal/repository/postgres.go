package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/paycart/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(cred *Credentials) (*PostgresRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *PostgresRepository) Insert(ctx context.Context, order *domain.Order) error {
	if err := validateNew(order); err != nil {
		return err
	}

	billingJSON, err := json.Marshal(order.Billing)
	if err != nil {
		return fmt.Errorf("failed to marshal billing: %w", err)
	}
	itemsJSON, err := json.Marshal(order.LineItems)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	query := `INSERT INTO orders (id, billing, currency, amount, description, line_items, status,
	              gateway_tracking_id, gateway_reference, payment_method, confirmation_code, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`

	_, insertErr := r.db.ExecContext(ctx, query,
		order.ID,
		billingJSON,
		order.Currency,
		order.Amount,
		order.Description,
		itemsJSON,
		order.Status,
		order.GatewayTrackingID,
		order.GatewayReference,
		order.PaymentMethod,
		order.ConfirmationCode,
		now)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	order.CreatedAt = now
	order.UpdatedAt = now
	return nil
}

// Update locks the row for the duration of the transaction so concurrent
// reconciliations of the same order serialize on the database.
func (r *PostgresRepository) Update(ctx context.Context, orderID string, update domain.OrderUpdate) (*domain.Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stored, err := scanOrder(tx.QueryRowContext(ctx, selectOrder+` WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		return nil, false, err
	}

	next := cloneOrder(stored)
	changed, err := applyUpdate(next, update, time.Now().UTC().Truncate(time.Microsecond))
	if err != nil {
		return stored, false, err
	}
	if !changed {
		return stored, false, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, gateway_tracking_id = $3, gateway_reference = $4,
		     payment_method = $5, confirmation_code = $6, updated_at = $7
		 WHERE id = $1`,
		orderID,
		next.Status,
		next.GatewayTrackingID,
		next.GatewayReference,
		next.PaymentMethod,
		next.ConfirmationCode,
		next.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("update order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}
	return next, true, nil
}

func (r *PostgresRepository) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	return scanOrder(r.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, orderID))
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

const selectOrder = `SELECT id, billing, currency, amount, description, line_items, status,
	gateway_tracking_id, gateway_reference, payment_method, confirmation_code, created_at, updated_at
	FROM orders`

func scanOrder(row *sql.Row) (*domain.Order, error) {
	var order domain.Order
	var billingJSON, itemsJSON []byte
	err := row.Scan(
		&order.ID,
		&billingJSON,
		&order.Currency,
		&order.Amount,
		&order.Description,
		&itemsJSON,
		&order.Status,
		&order.GatewayTrackingID,
		&order.GatewayReference,
		&order.PaymentMethod,
		&order.ConfirmationCode,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	if err := json.Unmarshal(billingJSON, &order.Billing); err != nil {
		return nil, fmt.Errorf("unmarshal billing: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &order.LineItems); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	return &order, nil
}
