package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkpad/service/internal/image"
	"github.com/inkpad/service/internal/query"
)

var (
	// ErrDuplicate is returned when an id or modification secret already exists.
	ErrDuplicate = errors.New("document already exists")
	// ErrHasImages is returned when deleting a document whose images are still stored.
	ErrHasImages = errors.New("document still has images")
)

// Repository persists documents.
type Repository interface {
	// Create inserts d and fills its timestamps.
	Create(ctx context.Context, d *Document) error
	// FindOne returns the first document matching pred or ErrNotFound.
	FindOne(ctx context.Context, pred query.Predicate, opts ...FindOption) (*Document, error)
	// FindMany returns every document matching pred in the given order.
	FindMany(ctx context.Context, pred query.Predicate, orders []query.Order, opts ...FindOption) ([]*Document, error)
	// Update applies patch and returns the updated document, or ErrNotFound.
	Update(ctx context.Context, id string, patch Patch) (*Document, error)
	// Delete removes the document row. It returns ErrNotFound for unknown ids
	// and ErrHasImages while image rows still reference the document.
	Delete(ctx context.Context, id string) error
}

// Columns maps document fields to their SQL columns.
var Columns = query.Columns{
	FieldID:                 "id",
	FieldModificationSecret: "modification_secret",
	FieldOwnerExternalID:    "owner_external_id",
	FieldCreatedAt:          "created_at",
	FieldUpdatedAt:          "updated_at",
	FieldLastAccessedAt:     "last_accessed_at",
}

const selectColumns = `id, modification_secret, owner_external_id, data, created_at, updated_at, last_accessed_at`

func scanDocument(row pgx.Row) (*Document, error) {
	d := &Document{}
	err := row.Scan(&d.ID, &d.ModificationSecret, &d.OwnerExternalID, &d.Data,
		&d.CreatedAt, &d.UpdatedAt, &d.LastAccessedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// PostgresRepository handles all document database operations.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository with the given connection pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, d *Document) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO documents (id, modification_secret, owner_external_id, data)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at, last_accessed_at`,
		d.ID, d.ModificationSecret, d.OwnerExternalID, d.Data,
	).Scan(&d.CreatedAt, &d.UpdatedAt, &d.LastAccessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindOne(ctx context.Context, pred query.Predicate, opts ...FindOption) (*Document, error) {
	where, args, err := pred.Where(Columns, nil)
	if err != nil {
		return nil, err
	}
	d, err := scanDocument(r.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE `+where+` LIMIT 1`, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}

	if applyFindOptions(opts).includeImages {
		if err := r.loadImages(ctx, []*Document{d}); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (r *PostgresRepository) FindMany(ctx context.Context, pred query.Predicate, orders []query.Order, opts ...FindOption) ([]*Document, error) {
	where, args, err := pred.Where(Columns, nil)
	if err != nil {
		return nil, err
	}
	orderBy, err := query.OrderBy(Columns, orders...)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM documents WHERE `+where+orderBy, args...)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}

	if applyFindOptions(opts).includeImages {
		if err := r.loadImages(ctx, docs); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// loadImages attaches images to docs with a single query.
func (r *PostgresRepository) loadImages(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	byID := make(map[string]*Document, len(docs))
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		d.Images = []*image.Image{}
		byID[d.ID] = d
		ids = append(ids, d.ID)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+image.SelectColumns+` FROM images
		 WHERE document_id = ANY($1)
		 ORDER BY created_at ASC`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("load images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		img, err := image.ScanRow(rows)
		if err != nil {
			return fmt.Errorf("scan image: %w", err)
		}
		if d, ok := byID[img.DocumentID]; ok {
			d.Images = append(d.Images, img)
		}
	}
	return rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, id string, patch Patch) (*Document, error) {
	var data any
	if patch.Data != nil {
		data = []byte(*patch.Data)
	}
	d, err := scanDocument(r.db.QueryRow(ctx,
		`UPDATE documents SET
		   data             = CASE WHEN $2 THEN $3::jsonb ELSE data END,
		   updated_at       = CASE WHEN $2 THEN NOW() ELSE updated_at END,
		   last_accessed_at = COALESCE($4, last_accessed_at)
		 WHERE id = $1
		 RETURNING `+selectColumns,
		id, patch.Data != nil, data, patch.LastAccessedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrHasImages
		}
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation checks whether an error is a PostgreSQL foreign_key_violation (code 23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
