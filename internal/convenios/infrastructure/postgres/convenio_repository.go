package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"convenios/internal/common/metrics"
	"convenios/internal/convenios/domain"
)

const convenioColumns = `
	id, nombre, empresa_id, estado,
	fecha_inicio, fecha_termino,
	tope_cantidad_tickets, tope_monto_ventas,
	consumo_tickets, consumo_monto,
	version, created_at, updated_at`

// ConvenioRepository implements domain.ConvenioRepository using PostgreSQL.
type ConvenioRepository struct {
	db Executor
}

// NewConvenioRepository creates a new ConvenioRepository.
func NewConvenioRepository(db Executor) *ConvenioRepository {
	return &ConvenioRepository{db: db}
}

// Create inserts the convenio and assigns the generated id.
func (r *ConvenioRepository) Create(ctx context.Context, c *domain.Convenio) error {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO convenios.convenios (
			nombre, empresa_id, estado,
			fecha_inicio, fecha_termino,
			tope_cantidad_tickets, tope_monto_ventas,
			consumo_tickets, consumo_monto,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		c.Nombre(),
		c.EmpresaID(),
		string(c.Estado()),
		dateToPg(c.FechaInicio()),
		dateToPg(c.FechaTermino()),
		c.TopeCantidadTickets(),
		c.TopeMontoVentas(),
		c.ConsumoTickets(),
		c.ConsumoMonto(),
		c.Version(),
		c.CreatedAt(),
		c.UpdatedAt(),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert convenio: %w", err)
	}
	c.AssignID(id)
	c.MarkPersisted()
	return nil
}

// Update persists the convenio.
// Uses optimistic locking via version column to prevent concurrent modification conflicts.
func (r *ConvenioRepository) Update(ctx context.Context, c *domain.Convenio) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE convenios.convenios
		SET nombre = $1,
			empresa_id = $2,
			estado = $3,
			fecha_inicio = $4,
			fecha_termino = $5,
			tope_cantidad_tickets = $6,
			tope_monto_ventas = $7,
			consumo_tickets = $8,
			consumo_monto = $9,
			version = $10,
			updated_at = $11
		WHERE id = $12 AND version = $13`,
		c.Nombre(),
		c.EmpresaID(),
		string(c.Estado()),
		dateToPg(c.FechaInicio()),
		dateToPg(c.FechaTermino()),
		c.TopeCantidadTickets(),
		c.TopeMontoVentas(),
		c.ConsumoTickets(),
		c.ConsumoMonto(),
		c.Version(),
		c.UpdatedAt(),
		c.ID(),
		c.ExpectedVersion(),
	)
	if err != nil {
		return fmt.Errorf("update convenio %d: %w", c.ID(), err)
	}
	if tag.RowsAffected() == 0 {
		metrics.RecordOptimisticLockConflict("convenios")
		return domain.ErrOptimisticLock
	}
	c.MarkPersisted()
	return nil
}

// FindByID retrieves a convenio by ID.
func (r *ConvenioRepository) FindByID(ctx context.Context, id int64) (*domain.Convenio, error) {
	return r.findOne(ctx, id, `SELECT `+convenioColumns+` FROM convenios.convenios WHERE id = $1`)
}

// FindByIDForUpdate retrieves a convenio and holds its row lock until the
// transaction ends. Outside a transaction the lock is released immediately.
func (r *ConvenioRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Convenio, error) {
	return r.findOne(ctx, id, `SELECT `+convenioColumns+` FROM convenios.convenios WHERE id = $1 FOR UPDATE`)
}

// ListIDs returns all convenio ids in ascending order.
func (r *ConvenioRepository) ListIDs(ctx context.Context) ([]int64, error) {
	return r.listIDs(ctx, `SELECT id FROM convenios.convenios ORDER BY id`)
}

// ListIDsByEstado returns the ids of convenios in the given status.
func (r *ConvenioRepository) ListIDsByEstado(ctx context.Context, estado domain.Estado) ([]int64, error) {
	return r.listIDs(ctx, `SELECT id FROM convenios.convenios WHERE estado = $1 ORDER BY id`, string(estado))
}

func (r *ConvenioRepository) listIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list convenios: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *ConvenioRepository) findOne(ctx context.Context, id int64, query string) (*domain.Convenio, error) {
	var (
		convenioID     int64
		nombre         string
		empresaID      int64
		estado         string
		fechaInicio    pgtype.Date
		fechaTermino   pgtype.Date
		topeTickets    *int64
		topeMonto      *int64
		consumoTickets int64
		consumoMonto   int64
		version        int
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := r.db.QueryRow(ctx, query, id).Scan(
		&convenioID, &nombre, &empresaID, &estado,
		&fechaInicio, &fechaTermino,
		&topeTickets, &topeMonto,
		&consumoTickets, &consumoMonto,
		&version, &createdAt, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ConvenioNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("find convenio %d: %w", id, classifyLockErr(err))
	}

	if !domain.Estado(estado).Valid() {
		return nil, fmt.Errorf("%w: convenio %d has estado %q", domain.ErrCorruptData, convenioID, estado)
	}

	return domain.ReconstructConvenio(
		convenioID,
		domain.ConvenioParams{
			Nombre:              nombre,
			EmpresaID:           empresaID,
			FechaInicio:         pgToDate(fechaInicio),
			FechaTermino:        pgToDate(fechaTermino),
			TopeCantidadTickets: topeTickets,
			TopeMontoVentas:     topeMonto,
		},
		domain.Estado(estado),
		consumoTickets,
		consumoMonto,
		version,
		createdAt,
		updatedAt,
	), nil
}

// Verify interface implementation.
var _ domain.ConvenioRepository = (*ConvenioRepository)(nil)
