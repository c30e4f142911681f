package memory

import (
	"context"

	"convenios/internal/convenios/domain"
)

// view runs fn against either a live transaction or a fresh autocommit one.
type view func(ctx context.Context, fn func(tx *transaction) error) error

type convenioRepository struct {
	view view
}

func (r *convenioRepository) Create(ctx context.Context, c *domain.Convenio) error {
	return r.view(ctx, func(tx *transaction) error {
		tx.staged.seq.convenio++
		c.AssignID(tx.staged.seq.convenio)
		c.MarkPersisted()
		tx.staged.convenios[c.ID()] = c.Clone()
		return nil
	})
}

func (r *convenioRepository) Update(ctx context.Context, c *domain.Convenio) error {
	return r.view(ctx, func(tx *transaction) error {
		stored, ok := lookup(tx.staged.convenios, tx.parent.convenios, c.ID())
		if !ok {
			return domain.ConvenioNotFound(c.ID())
		}
		if stored.Version() != c.ExpectedVersion() {
			return domain.ErrOptimisticLock
		}
		c.MarkPersisted()
		tx.staged.convenios[c.ID()] = c.Clone()
		return nil
	})
}

func (r *convenioRepository) FindByID(ctx context.Context, id int64) (*domain.Convenio, error) {
	var out *domain.Convenio
	err := r.view(ctx, func(tx *transaction) error {
		stored, ok := lookup(tx.staged.convenios, tx.parent.convenios, id)
		if !ok {
			return domain.ConvenioNotFound(id)
		}
		out = stored.Clone()
		return nil
	})
	return out, err
}

// FindByIDForUpdate needs no extra locking: the transaction already holds the
// store lock.
func (r *convenioRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Convenio, error) {
	return r.FindByID(ctx, id)
}

func (r *convenioRepository) ListIDs(ctx context.Context) ([]int64, error) {
	return r.listIDs(ctx, func(*domain.Convenio) bool { return true })
}

func (r *convenioRepository) ListIDsByEstado(ctx context.Context, estado domain.Estado) ([]int64, error) {
	return r.listIDs(ctx, func(c *domain.Convenio) bool { return c.Estado() == estado })
}

func (r *convenioRepository) listIDs(ctx context.Context, keep func(*domain.Convenio) bool) ([]int64, error) {
	var ids []int64
	err := r.view(ctx, func(tx *transaction) error {
		for _, c := range merged(tx.staged.convenios, tx.parent.convenios) {
			if keep(c) {
				ids = append(ids, c.ID())
			}
		}
		return nil
	})
	return ids, err
}

type descuentoRepository struct {
	view view
}

func (r *descuentoRepository) Create(ctx context.Context, d *domain.Descuento) error {
	return r.view(ctx, func(tx *transaction) error {
		if convenioID, tipo, ok := d.ConvenioScope(); ok {
			if existing := activeByConvenio(tx, convenioID, tipo); existing != nil {
				return domain.NewBusinessError(domain.CodeDescuentoActivoDuplicado,
					"El convenio %d ya tiene un descuento activo (%d) para el mismo tipo de pasajero", convenioID, existing.ID)
			}
		}
		tx.staged.seq.descuento++
		d.ID = tx.staged.seq.descuento
		tx.staged.descuentos[d.ID] = d.Clone()
		return nil
	})
}

func (r *descuentoRepository) Update(ctx context.Context, d *domain.Descuento) error {
	return r.view(ctx, func(tx *transaction) error {
		if _, ok := lookup(tx.staged.descuentos, tx.parent.descuentos, d.ID); !ok {
			return domain.DescuentoNotFound(d.ID)
		}
		tx.staged.descuentos[d.ID] = d.Clone()
		return nil
	})
}

func (r *descuentoRepository) FindByID(ctx context.Context, id int64) (*domain.Descuento, error) {
	var out *domain.Descuento
	err := r.view(ctx, func(tx *transaction) error {
		stored, ok := lookup(tx.staged.descuentos, tx.parent.descuentos, id)
		if !ok {
			return domain.DescuentoNotFound(id)
		}
		out = stored.Clone()
		return nil
	})
	return out, err
}

func (r *descuentoRepository) FindActiveByConvenio(ctx context.Context, convenioID int64, tipoPasajeroID *int64) (*domain.Descuento, error) {
	var out *domain.Descuento
	err := r.view(ctx, func(tx *transaction) error {
		if d := activeByConvenio(tx, convenioID, tipoPasajeroID); d != nil {
			out = d.Clone()
		}
		return nil
	})
	return out, err
}

func (r *descuentoRepository) FindActiveByCodigo(ctx context.Context, codigoID int64) (*domain.Descuento, error) {
	var out *domain.Descuento
	err := r.view(ctx, func(tx *transaction) error {
		for _, d := range merged(tx.staged.descuentos, tx.parent.descuentos) {
			if d.Activo() && d.CodigoDescuentoID != nil && *d.CodigoDescuentoID == codigoID {
				out = d.Clone()
				return nil
			}
		}
		return nil
	})
	return out, err
}

func activeByConvenio(tx *transaction, convenioID int64, tipoPasajeroID *int64) *domain.Descuento {
	for _, d := range merged(tx.staged.descuentos, tx.parent.descuentos) {
		id, tipo, ok := d.ConvenioScope()
		if !ok || !d.Activo() || id != convenioID {
			continue
		}
		if sameTipo(tipo, tipoPasajeroID) {
			return d
		}
	}
	return nil
}

func sameTipo(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

type codigoRepository struct {
	view view
}

func (r *codigoRepository) Create(ctx context.Context, c *domain.CodigoDescuento) error {
	return r.view(ctx, func(tx *transaction) error {
		for _, existing := range merged(tx.staged.codigos, tx.parent.codigos) {
			if existing.Codigo == c.Codigo {
				return domain.NewBusinessError(domain.CodeDatosInvalidos, "El código de descuento %s ya existe", c.Codigo)
			}
		}
		tx.staged.seq.codigo++
		c.ID = tx.staged.seq.codigo
		tx.staged.codigos[c.ID] = c.Clone()
		return nil
	})
}

func (r *codigoRepository) Update(ctx context.Context, c *domain.CodigoDescuento) error {
	return r.view(ctx, func(tx *transaction) error {
		if _, ok := lookup(tx.staged.codigos, tx.parent.codigos, c.ID); !ok {
			return domain.CodigoNotFound(c.Codigo)
		}
		tx.staged.codigos[c.ID] = c.Clone()
		return nil
	})
}

func (r *codigoRepository) FindByID(ctx context.Context, id int64) (*domain.CodigoDescuento, error) {
	var out *domain.CodigoDescuento
	err := r.view(ctx, func(tx *transaction) error {
		stored, ok := lookup(tx.staged.codigos, tx.parent.codigos, id)
		if !ok {
			return domain.NewNotFound(domain.CodeCodigoNoEncontrado, "Código de descuento %d no encontrado", id)
		}
		out = stored.Clone()
		return nil
	})
	return out, err
}

func (r *codigoRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.CodigoDescuento, error) {
	return r.FindByID(ctx, id)
}

func (r *codigoRepository) FindByCodigo(ctx context.Context, codigo string) (*domain.CodigoDescuento, error) {
	var out *domain.CodigoDescuento
	err := r.view(ctx, func(tx *transaction) error {
		for _, c := range merged(tx.staged.codigos, tx.parent.codigos) {
			if c.Codigo == codigo {
				out = c.Clone()
				return nil
			}
		}
		return domain.CodigoNotFound(codigo)
	})
	return out, err
}

type eventoRepository struct {
	view view
}

func (r *eventoRepository) Append(ctx context.Context, e *domain.Evento) error {
	return r.view(ctx, func(tx *transaction) error {
		tx.staged.seq.evento++
		e.ID = tx.staged.seq.evento
		tx.staged.eventos[e.ID] = e.Clone()
		return nil
	})
}

func (r *eventoRepository) MarkDeleted(ctx context.Context, id int64) error {
	return r.view(ctx, func(tx *transaction) error {
		stored, ok := lookup(tx.staged.eventos, tx.parent.eventos, id)
		if !ok {
			return domain.EventoNotFound(id)
		}
		deleted := stored.Clone()
		deleted.Eliminado = true
		tx.staged.eventos[id] = deleted
		return nil
	})
}

func (r *eventoRepository) FindByID(ctx context.Context, id int64) (*domain.Evento, error) {
	var out *domain.Evento
	err := r.view(ctx, func(tx *transaction) error {
		stored, ok := lookup(tx.staged.eventos, tx.parent.eventos, id)
		if !ok {
			return domain.EventoNotFound(id)
		}
		out = stored.Clone()
		return nil
	})
	return out, err
}

func (r *eventoRepository) ListByConvenio(ctx context.Context, convenioID int64) ([]*domain.Evento, error) {
	var out []*domain.Evento
	err := r.view(ctx, func(tx *transaction) error {
		all := merged(tx.staged.eventos, tx.parent.eventos)
		propios := make(map[int64]bool)
		for _, e := range all {
			if e.ConvenioID != nil && *e.ConvenioID == convenioID {
				propios[e.ID] = true
			}
		}
		// Refunds without convenio_id still belong to the convenio of their origin.
		for _, e := range all {
			if propios[e.ID] || (e.Tipo == domain.TipoDevolucion && e.EventoOrigenID != nil && propios[*e.EventoOrigenID]) {
				out = append(out, e.Clone())
			}
		}
		return nil
	})
	return out, err
}

func (r *eventoRepository) HasConfirmedRefund(ctx context.Context, origenID int64) (bool, error) {
	var found bool
	err := r.view(ctx, func(tx *transaction) error {
		for _, e := range merged(tx.staged.eventos, tx.parent.eventos) {
			if e.Tipo == domain.TipoDevolucion && e.Cuenta() && e.EventoOrigenID != nil && *e.EventoOrigenID == origenID {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

type idempotencyStore struct {
	view view
}

func (s *idempotencyStore) Get(ctx context.Context, key string) (*domain.IdempotencyEntry, error) {
	var out *domain.IdempotencyEntry
	err := s.view(ctx, func(tx *transaction) error {
		if entry, ok := lookup(tx.staged.idempotency, tx.parent.idempotency, key); ok {
			cp := *entry
			out = &cp
		}
		return nil
	})
	return out, err
}

func (s *idempotencyStore) SetIfAbsent(ctx context.Context, entry *domain.IdempotencyEntry) (bool, *domain.IdempotencyEntry, error) {
	var (
		created  bool
		existing *domain.IdempotencyEntry
	)
	err := s.view(ctx, func(tx *transaction) error {
		if stored, ok := lookup(tx.staged.idempotency, tx.parent.idempotency, entry.IdempotencyKey); ok {
			cp := *stored
			existing = &cp
			return nil
		}
		cp := *entry
		tx.staged.idempotency[entry.IdempotencyKey] = &cp
		created = true
		existing = entry
		return nil
	})
	return created, existing, err
}
