package image

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkpad/service/internal/query"
)

// Repository persists image metadata.
type Repository interface {
	// Create inserts img and fills its timestamps.
	Create(ctx context.Context, img *Image) error
	// FindOne returns the first image matching pred or ErrNotFound.
	FindOne(ctx context.Context, pred query.Predicate) (*Image, error)
	// FindMany returns every image matching pred in the given order.
	FindMany(ctx context.Context, pred query.Predicate, orders ...query.Order) ([]*Image, error)
	// Delete removes the image and returns the deleted row, or ErrNotFound.
	Delete(ctx context.Context, id string) (*Image, error)
}

// Columns maps image fields to their SQL columns.
var Columns = query.Columns{
	FieldID:         "id",
	FieldDocumentID: "document_id",
	FieldName:       "name",
	FieldMimetype:   "mimetype",
	FieldCreatedAt:  "created_at",
	FieldUpdatedAt:  "updated_at",
}

// SelectColumns lists the columns scanned by ScanRow, in order.
const SelectColumns = `id, name, mimetype, document_id, created_at, updated_at`

// ScanRow scans a row selected with SelectColumns.
func ScanRow(row pgx.Row) (*Image, error) {
	img := &Image{}
	err := row.Scan(&img.ID, &img.Name, &img.Mimetype, &img.DocumentID, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// PostgresRepository handles all image database operations.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository with the given connection pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, img *Image) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO images (id, name, mimetype, document_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		img.ID, img.Name, img.Mimetype, img.DocumentID,
	).Scan(&img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("create image: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindOne(ctx context.Context, pred query.Predicate) (*Image, error) {
	where, args, err := pred.Where(Columns, nil)
	if err != nil {
		return nil, err
	}
	img, err := ScanRow(r.db.QueryRow(ctx,
		`SELECT `+SelectColumns+` FROM images WHERE `+where+` LIMIT 1`, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find image: %w", err)
	}
	return img, nil
}

func (r *PostgresRepository) FindMany(ctx context.Context, pred query.Predicate, orders ...query.Order) ([]*Image, error) {
	where, args, err := pred.Where(Columns, nil)
	if err != nil {
		return nil, err
	}
	orderBy, err := query.OrderBy(Columns, orders...)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+SelectColumns+` FROM images WHERE `+where+orderBy, args...)
	if err != nil {
		return nil, fmt.Errorf("find images: %w", err)
	}
	defer rows.Close()

	images := []*Image{}
	for rows.Next() {
		img, err := ScanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (*Image, error) {
	img, err := ScanRow(r.db.QueryRow(ctx,
		`DELETE FROM images WHERE id = $1 RETURNING `+SelectColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete image: %w", err)
	}
	return img, nil
}

// isForeignKeyViolation checks whether an error is a PostgreSQL foreign_key_violation (code 23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
