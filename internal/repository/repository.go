package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/market/internal/domain"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrLineNotFound      = errors.New("cart line not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// CatalogReader is the read-only view of products the cart engine needs.
type CatalogReader interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]domain.Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]domain.Product, error)
}

type CatalogWriter interface {
	CatalogReader
	CreateProduct(ctx context.Context, p *domain.Product) error
	// DecrementStock subtracts quantity only if enough stock is left and
	// returns what remains. ErrInsufficientStock otherwise.
	DecrementStock(ctx context.Context, productID int64, quantity int) (int, error)
	// DeleteProduct removes the product and every cart line pointing at it.
	DeleteProduct(ctx context.Context, productID int64) error
}

// CartStore holds cart lines. Every call is scoped to one consumer.
type CartStore interface {
	GetLines(ctx context.Context, consumerID int64) ([]domain.CartLine, error)
	GetLinesForUpdate(ctx context.Context, consumerID int64) ([]domain.CartLine, error)
	FindLine(ctx context.Context, consumerID int64, key domain.LineKey) (*domain.CartLine, error)
	// UpsertLine adds line.Quantity to the consumer's line for the product,
	// creating it if needed, unless the result would exceed maxQuantity.
	UpsertLine(ctx context.Context, line domain.CartLine, maxQuantity int) (*domain.CartLine, error)
	SetQuantity(ctx context.Context, consumerID, lineID int64, quantity int, at time.Time) error
	RemoveLine(ctx context.Context, consumerID, lineID int64) error
	RemoveLineByProduct(ctx context.Context, consumerID, productID int64) error
}

type OutboxWriter interface {
	AddOutboxEvent(ctx context.Context, event *OutboxEvent) error
}

// Tx is everything available inside WithTx.
type Tx interface {
	CatalogWriter
	CartStore
	OutboxWriter
}

type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id string) error
	Close() error
}

type Credentials struct {
	Driver   Dialect
	Path     string // sqlite only
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db      DBTX
	dialect Dialect
}

type Repository struct {
	*queries
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cred.Driver {
	case DialectPostgres:
		psqlconn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cred.Host,
			cred.Port,
			cred.User,
			cred.Password,
			cred.DBName)
		db, err = sql.Open("postgres", psqlconn)
	case DialectSQLite:
		db, err = sql.Open("sqlite", cred.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cred.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cred.Driver == DialectSQLite {
		// one connection: keeps ":memory:" databases alive and writers serialized
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(100)
		db.SetMaxIdleConns(10)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	if cred.Driver == DialectSQLite {
		for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
			if _, e3 := db.Exec(pragma); e3 != nil {
				return nil, fmt.Errorf("failed to configure sqlite: %w", e3)
			}
		}
	}

	return &Repository{
		queries: &queries{db: db, dialect: cred.Driver},
		db:      db,
	}, nil
}

func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// WithTx runs fn in a single transaction. Any error from fn rolls back.
func (r *Repository) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if errFn := fn(&queries{db: tx, dialect: r.dialect}); errFn != nil {
		if errRollback := tx.Rollback(); errRollback != nil {
			return errors.Join(errFn, fmt.Errorf("rollback: %w", errRollback))
		}
		return errFn
	}

	if errCommit := tx.Commit(); errCommit != nil {
		return fmt.Errorf("commit transaction: %w", errCommit)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
