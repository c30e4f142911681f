package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"convenios/internal/convenios/domain"
)

const codigoColumns = `
	id, codigo, convenio_id, fecha_inicio, fecha_termino,
	max_usos, usos_realizados, estado, created_at, updated_at`

const uqCodigo = "uq_codigos_descuento_codigo"

// CodigoDescuentoRepository implements domain.CodigoDescuentoRepository using PostgreSQL.
type CodigoDescuentoRepository struct {
	db Executor
}

// NewCodigoDescuentoRepository creates a new CodigoDescuentoRepository.
func NewCodigoDescuentoRepository(db Executor) *CodigoDescuentoRepository {
	return &CodigoDescuentoRepository{db: db}
}

func (r *CodigoDescuentoRepository) Create(ctx context.Context, c *domain.CodigoDescuento) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO convenios.codigos_descuento (
			codigo, convenio_id, fecha_inicio, fecha_termino,
			max_usos, usos_realizados, estado, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		c.Codigo,
		c.ConvenioID,
		dateToPg(c.FechaInicio),
		dateToPg(c.FechaTermino),
		c.MaxUsos,
		c.UsosRealizados,
		string(c.Estado),
		c.CreatedAt,
		c.UpdatedAt,
	).Scan(&c.ID)
	if uniqueViolationOn(err, uqCodigo) {
		return domain.NewBusinessError(domain.CodeDatosInvalidos, "El código de descuento %s ya existe", c.Codigo)
	}
	if err != nil {
		return fmt.Errorf("insert codigo descuento: %w", err)
	}
	return nil
}

// Update persists the usage counter and status. The literal is immutable.
func (r *CodigoDescuentoRepository) Update(ctx context.Context, c *domain.CodigoDescuento) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE convenios.codigos_descuento
		SET fecha_inicio = $1,
			fecha_termino = $2,
			max_usos = $3,
			usos_realizados = $4,
			estado = $5,
			updated_at = $6
		WHERE id = $7`,
		dateToPg(c.FechaInicio),
		dateToPg(c.FechaTermino),
		c.MaxUsos,
		c.UsosRealizados,
		string(c.Estado),
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update codigo descuento %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.CodigoNotFound(c.Codigo)
	}
	return nil
}

func (r *CodigoDescuentoRepository) FindByID(ctx context.Context, id int64) (*domain.CodigoDescuento, error) {
	return r.findByID(ctx, id, `SELECT `+codigoColumns+` FROM convenios.codigos_descuento WHERE id = $1`)
}

func (r *CodigoDescuentoRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.CodigoDescuento, error) {
	return r.findByID(ctx, id, `SELECT `+codigoColumns+` FROM convenios.codigos_descuento WHERE id = $1 FOR UPDATE`)
}

func (r *CodigoDescuentoRepository) FindByCodigo(ctx context.Context, codigo string) (*domain.CodigoDescuento, error) {
	c, err := scanCodigo(r.db.QueryRow(ctx, `SELECT `+codigoColumns+` FROM convenios.codigos_descuento WHERE codigo = $1`, codigo))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.CodigoNotFound(codigo)
	}
	if err != nil {
		return nil, fmt.Errorf("find codigo descuento %q: %w", codigo, err)
	}
	return c, nil
}

func (r *CodigoDescuentoRepository) findByID(ctx context.Context, id int64, query string) (*domain.CodigoDescuento, error) {
	c, err := scanCodigo(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound(domain.CodeCodigoNoEncontrado, "Código de descuento %d no encontrado", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find codigo descuento %d: %w", id, classifyLockErr(err))
	}
	return c, nil
}

func scanCodigo(row pgx.Row) (*domain.CodigoDescuento, error) {
	var (
		c            domain.CodigoDescuento
		fechaInicio  pgtype.Date
		fechaTermino pgtype.Date
		estado       string
		createdAt    time.Time
		updatedAt    time.Time
	)
	err := row.Scan(
		&c.ID, &c.Codigo, &c.ConvenioID, &fechaInicio, &fechaTermino,
		&c.MaxUsos, &c.UsosRealizados, &estado, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.FechaInicio = pgToDate(fechaInicio)
	c.FechaTermino = pgToDate(fechaTermino)
	c.Estado = domain.Estado(estado)
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	if !c.Estado.Valid() {
		return nil, fmt.Errorf("%w: codigo %d has estado %q", domain.ErrCorruptData, c.ID, estado)
	}
	return &c, nil
}

var _ domain.CodigoDescuentoRepository = (*CodigoDescuentoRepository)(nil)
