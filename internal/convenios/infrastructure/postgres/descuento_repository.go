package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"convenios/internal/convenios/domain"
)

const descuentoColumns = `
	id, convenio_id, codigo_descuento_id, tipo_pasajero_id, pasajero_id,
	porcentaje, estado, created_at, updated_at`

const uqDescuentoActivo = "uq_descuentos_convenio_tipo_activo"

// DescuentoRepository implements domain.DescuentoRepository using PostgreSQL.
type DescuentoRepository struct {
	db Executor
}

// NewDescuentoRepository creates a new DescuentoRepository.
func NewDescuentoRepository(db Executor) *DescuentoRepository {
	return &DescuentoRepository{db: db}
}

func (r *DescuentoRepository) Create(ctx context.Context, d *domain.Descuento) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO convenios.descuentos (
			convenio_id, codigo_descuento_id, tipo_pasajero_id, pasajero_id,
			porcentaje, estado, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		d.ConvenioID,
		d.CodigoDescuentoID,
		d.TipoPasajeroID,
		d.PasajeroID,
		d.Porcentaje,
		string(d.Estado),
		d.CreatedAt,
		d.UpdatedAt,
	).Scan(&d.ID)
	if uniqueViolationOn(err, uqDescuentoActivo) {
		return duplicateDescuento(d)
	}
	if err != nil {
		return fmt.Errorf("insert descuento: %w", err)
	}
	return nil
}

func (r *DescuentoRepository) Update(ctx context.Context, d *domain.Descuento) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE convenios.descuentos
		SET porcentaje = $1,
			estado = $2,
			updated_at = $3
		WHERE id = $4`,
		d.Porcentaje,
		string(d.Estado),
		d.UpdatedAt,
		d.ID,
	)
	if uniqueViolationOn(err, uqDescuentoActivo) {
		return duplicateDescuento(d)
	}
	if err != nil {
		return fmt.Errorf("update descuento %d: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.DescuentoNotFound(d.ID)
	}
	return nil
}

func (r *DescuentoRepository) FindByID(ctx context.Context, id int64) (*domain.Descuento, error) {
	d, err := scanDescuento(r.db.QueryRow(ctx, `SELECT `+descuentoColumns+` FROM convenios.descuentos WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.DescuentoNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("find descuento %d: %w", id, err)
	}
	return d, nil
}

func (r *DescuentoRepository) FindActiveByConvenio(ctx context.Context, convenioID int64, tipoPasajeroID *int64) (*domain.Descuento, error) {
	return r.findOptional(ctx, `
		SELECT `+descuentoColumns+`
		FROM convenios.descuentos
		WHERE convenio_id = $1
			AND tipo_pasajero_id IS NOT DISTINCT FROM $2
			AND codigo_descuento_id IS NULL
			AND pasajero_id IS NULL
			AND estado = 'ACTIVO'
		ORDER BY id
		LIMIT 1`,
		convenioID, tipoPasajeroID,
	)
}

func (r *DescuentoRepository) FindActiveByCodigo(ctx context.Context, codigoID int64) (*domain.Descuento, error) {
	return r.findOptional(ctx, `
		SELECT `+descuentoColumns+`
		FROM convenios.descuentos
		WHERE codigo_descuento_id = $1 AND estado = 'ACTIVO'
		ORDER BY id
		LIMIT 1`,
		codigoID,
	)
}

func (r *DescuentoRepository) findOptional(ctx context.Context, query string, args ...any) (*domain.Descuento, error) {
	d, err := scanDescuento(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find descuento: %w", err)
	}
	return d, nil
}

func scanDescuento(row pgx.Row) (*domain.Descuento, error) {
	var (
		d      domain.Descuento
		estado string
	)
	err := row.Scan(
		&d.ID, &d.ConvenioID, &d.CodigoDescuentoID, &d.TipoPasajeroID, &d.PasajeroID,
		&d.Porcentaje, &estado, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Estado = domain.Estado(estado)
	if !d.Estado.Valid() {
		return nil, fmt.Errorf("%w: descuento %d has estado %q", domain.ErrCorruptData, d.ID, estado)
	}
	return &d, nil
}

func duplicateDescuento(d *domain.Descuento) error {
	return domain.NewBusinessError(domain.CodeDescuentoActivoDuplicado,
		"El convenio %d ya tiene un descuento activo para el mismo tipo de pasajero", valueOf(d.ConvenioID))
}

func valueOf(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

var _ domain.DescuentoRepository = (*DescuentoRepository)(nil)
