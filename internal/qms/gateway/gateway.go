package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/qualitech/esgqm/internal/qms/entity"
	"github.com/qualitech/esgqm/internal/qms/mirror"
	"go.uber.org/zap"
)

// PrimaryStore is the authoritative store contract, implemented by
// repository.NCRepository. Its errors are the operation's errors.
type PrimaryStore interface {
	FindAll(ctx context.Context, companyID string, filters map[string]string) ([]entity.NonConformity, error)
	FindByID(ctx context.Context, companyID, id string) (*entity.NonConformity, error)
	Create(ctx context.Context, nc *entity.NonConformity) error
	Update(ctx context.Context, nc *entity.NonConformity) error
	UpdateWithRevisionCheck(ctx context.Context, nc *entity.NonConformity, expectedRevision int) error
	Delete(ctx context.Context, companyID, id string) error
}

// UserDirectory resolves user ids to profiles for the enrichment stage.
type UserDirectory interface {
	FindByIDs(ctx context.Context, ids []string) ([]entity.User, error)
}

// Strategy is the named read/write policy of the dual-store gateway.
// MirrorEnabled false puts the gateway in primary-only mode.
type Strategy struct {
	MirrorEnabled bool
	BackfillLimit int
	MirrorTimeout time.Duration
}

// DefaultStrategy mirrors reads with a bounded lazy backfill.
func DefaultStrategy() Strategy {
	return Strategy{
		MirrorEnabled: true,
		BackfillLimit: 100,
		MirrorTimeout: 5 * time.Second,
	}
}

// SyncGateway fronts the primary and mirror stores behind one contract:
// reads prefer the mirror and transparently fall back to the primary;
// writes go through the primary synchronously and reconcile the mirror
// asynchronously. A mirror outage never surfaces to the caller.
type SyncGateway struct {
	primary  PrimaryStore
	mirror   mirror.Store
	users    UserDirectory
	strategy Strategy
	logger   *zap.Logger

	wg sync.WaitGroup
}

func NewSyncGateway(primary PrimaryStore, mirrorStore mirror.Store, users UserDirectory, strategy Strategy, logger *zap.Logger) *SyncGateway {
	if mirrorStore == nil {
		strategy.MirrorEnabled = false
	}
	if strategy.BackfillLimit <= 0 {
		strategy.BackfillLimit = 100
	}
	if strategy.MirrorTimeout <= 0 {
		strategy.MirrorTimeout = 5 * time.Second
	}
	return &SyncGateway{
		primary:  primary,
		mirror:   mirrorStore,
		users:    users,
		strategy: strategy,
		logger:   logger,
	}
}

// Drain waits for in-flight mirror writes. Called on shutdown and by tests;
// request handling never waits on it.
func (g *SyncGateway) Drain() {
	g.wg.Wait()
}

// List returns the tenant's NCs, mirror-first. A cold or failing mirror
// falls back to the primary store and schedules a bounded backfill.
func (g *SyncGateway) List(ctx context.Context, companyID string, filters map[string]string) ([]entity.NonConformity, error) {
	if g.strategy.MirrorEnabled && len(filters) == 0 {
		records, err := g.mirror.List(ctx, companyID)
		if err != nil {
			g.logger.Warn("Mirror list failed, falling back to primary",
				zap.String("company_id", companyID), zap.Error(err))
		} else if len(records) > 0 {
			items := make([]entity.NonConformity, len(records))
			for i, rec := range records {
				items[i] = mirror.ToEntity(rec)
			}
			g.enrich(ctx, items)
			return items, nil
		}
	}

	items, err := g.primary.FindAll(ctx, companyID, filters)
	if err != nil {
		return nil, err
	}

	if g.strategy.MirrorEnabled && len(filters) == 0 && len(items) > 0 {
		g.scheduleBackfill(companyID, items)
	}

	g.enrich(ctx, items)
	return items, nil
}

// Get fetches one NC, mirror-first, falling back to the primary store.
// Absent in both stores means NotFound (the primary's sentinel).
func (g *SyncGateway) Get(ctx context.Context, companyID, id string) (*entity.NonConformity, error) {
	if g.strategy.MirrorEnabled {
		rec, err := g.mirror.Get(ctx, id)
		if err == nil && rec.Company == companyID {
			nc := mirror.ToEntity(*rec)
			g.enrichOne(ctx, &nc)
			return &nc, nil
		}
		if err != nil && !errors.Is(err, mirror.ErrMiss) {
			g.logger.Warn("Mirror get failed, falling back to primary",
				zap.String("id", id), zap.Error(err))
		}
	}

	nc, err := g.primary.FindByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}

	if g.strategy.MirrorEnabled {
		g.scheduleUpsert(nc)
	}

	g.enrichOne(ctx, nc)
	return nc, nil
}

// GetAuthoritative reads the primary store directly. Read-modify-write
// flows must use it: the mirror is reconciled asynchronously, so saving a
// mirror-served copy back could overwrite a newer primary row with stale
// fields.
func (g *SyncGateway) GetAuthoritative(ctx context.Context, companyID, id string) (*entity.NonConformity, error) {
	nc, err := g.primary.FindByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	g.enrichOne(ctx, nc)
	return nc, nil
}

// Create writes through to the primary store; success there is the result.
// The mirror upsert happens after, detached from the caller.
func (g *SyncGateway) Create(ctx context.Context, nc *entity.NonConformity) error {
	if err := g.primary.Create(ctx, nc); err != nil {
		return err
	}
	g.scheduleUpsert(nc)
	g.enrichOne(ctx, nc)
	return nil
}

// Update persists to the primary store, then reconciles the mirror.
func (g *SyncGateway) Update(ctx context.Context, nc *entity.NonConformity) error {
	if err := g.primary.Update(ctx, nc); err != nil {
		return err
	}
	g.scheduleUpsert(nc)
	g.enrichOne(ctx, nc)
	return nil
}

// UpdateWithRevisionCheck is the reopen path: the primary write carries an
// optimistic revision guard, then the mirror is reconciled as usual.
func (g *SyncGateway) UpdateWithRevisionCheck(ctx context.Context, nc *entity.NonConformity, expectedRevision int) error {
	if err := g.primary.UpdateWithRevisionCheck(ctx, nc, expectedRevision); err != nil {
		return err
	}
	g.scheduleUpsert(nc)
	g.enrichOne(ctx, nc)
	return nil
}

// Delete removes the primary row, then the mirror copy asynchronously.
func (g *SyncGateway) Delete(ctx context.Context, companyID, id string) error {
	if err := g.primary.Delete(ctx, companyID, id); err != nil {
		return err
	}
	if g.strategy.MirrorEnabled {
		g.run(func(ctx context.Context) {
			if err := g.mirror.Delete(ctx, companyID, id); err != nil {
				g.logger.Warn("Mirror delete failed", zap.String("id", id), zap.Error(err))
			}
		})
	}
	return nil
}

// scheduleUpsert mirrors one record, fire-and-forget.
func (g *SyncGateway) scheduleUpsert(nc *entity.NonConformity) {
	if !g.strategy.MirrorEnabled {
		return
	}
	rec := mirror.ToRecord(nc)
	g.run(func(ctx context.Context) {
		if err := g.mirror.Upsert(ctx, rec); err != nil {
			g.logger.Warn("Mirror upsert failed",
				zap.String("id", rec.SourceID), zap.Error(err))
		}
	})
}

// scheduleBackfill lazily seeds the mirror after a cold-read fallback,
// bounded by the strategy's limit.
func (g *SyncGateway) scheduleBackfill(companyID string, items []entity.NonConformity) {
	limit := g.strategy.BackfillLimit
	if len(items) < limit {
		limit = len(items)
	}
	records := make([]mirror.Record, limit)
	for i := 0; i < limit; i++ {
		records[i] = mirror.ToRecord(&items[i])
	}

	g.run(func(ctx context.Context) {
		var failed int
		for _, rec := range records {
			if err := g.mirror.Upsert(ctx, rec); err != nil {
				failed++
			}
		}
		if failed > 0 {
			g.logger.Warn("Mirror backfill incomplete",
				zap.String("company_id", companyID),
				zap.Int("attempted", len(records)),
				zap.Int("failed", failed))
		} else {
			g.logger.Info("Mirror backfill completed",
				zap.String("company_id", companyID),
				zap.Int("records", len(records)))
		}
	})
}

// run executes fn on a detached context so mirror writes survive the
// caller's request lifecycle and never block it.
func (g *SyncGateway) run(fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.strategy.MirrorTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// enrich joins responsible/approver display names onto every record,
// whichever store it came from. Directory failures leave records bare.
func (g *SyncGateway) enrich(ctx context.Context, items []entity.NonConformity) {
	if g.users == nil || len(items) == 0 {
		return
	}

	idSet := make(map[string]struct{})
	for i := range items {
		if items[i].ResponsibleUserID != nil {
			idSet[*items[i].ResponsibleUserID] = struct{}{}
		}
		if items[i].ApprovedByUserID != nil {
			idSet[*items[i].ApprovedByUserID] = struct{}{}
		}
	}
	if len(idSet) == 0 {
		return
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	users, err := g.users.FindByIDs(ctx, ids)
	if err != nil {
		g.logger.Warn("Enrichment lookup failed", zap.Error(err))
		return
	}

	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	for i := range items {
		if id := items[i].ResponsibleUserID; id != nil {
			if name, ok := names[*id]; ok {
				items[i].Responsible = &entity.UserRef{ID: *id, DisplayName: name}
			}
		}
		if id := items[i].ApprovedByUserID; id != nil {
			if name, ok := names[*id]; ok {
				items[i].ApprovedBy = &entity.UserRef{ID: *id, DisplayName: name}
			}
		}
	}
}

func (g *SyncGateway) enrichOne(ctx context.Context, nc *entity.NonConformity) {
	items := []entity.NonConformity{*nc}
	g.enrich(ctx, items)
	nc.Responsible = items[0].Responsible
	nc.ApprovedBy = items[0].ApprovedBy
}
