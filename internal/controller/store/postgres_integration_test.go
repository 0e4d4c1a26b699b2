//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vendcore/internal/controller/models"
	"vendcore/internal/events/outbox"
	"vendcore/internal/ownership"
	"vendcore/internal/storage"
	"vendcore/internal/storage/postgres"
	"vendcore/pkg/domain"
	"vendcore/pkg/platform/sentinel"
	"vendcore/pkg/testutil/containers"
)

type PostgresSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	sink  *outbox.PostgresStore
	store *Postgres
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetPostgres(s.T())

	err := s.pg.ApplySchema(s.ctx,
		Schema(),
		postgres.AuditSchema(AuditTable),
		outbox.Schema("machine_events"),
	)
	s.Require().NoError(err)

	registry, err := ownership.NewRegistry(ownership.DefaultTopology())
	s.Require().NoError(err)
	guard := ownership.NewGuard(registry, ownership.ServiceMachines)

	s.sink, err = outbox.NewPostgres(s.pg.DB, guard, "machine_events")
	s.Require().NoError(err)
	s.store, err = NewPostgres(s.pg.DB, guard, s.sink, nil)
	s.Require().NoError(err)
}

func (s *PostgresSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, Table, AuditTable, "machine_events"))
}

func (s *PostgresSuite) newController(mac string) *models.Controller {
	c, err := models.NewController("lobby-01", mac, "SN-100", "",
		domain.Coordinates{Latitude: 52.37, Longitude: 4.89},
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	c.MarkEventsCommitted()
	return c
}

func (s *PostgresSuite) TestSaveFindRoundTrip() {
	saved, err := s.store.Save(s.ctx, s.newController("aa:bb:cc:dd:ee:01"))
	s.Require().NoError(err)
	s.NotEmpty(saved.ID)
	s.Equal(1, saved.EntityVersion())

	found, err := s.store.FindByID(s.ctx, saved.ID)
	s.Require().NoError(err)
	s.Equal(saved.ID, found.ID)
	s.Equal("lobby-01", found.Name)
	s.Equal(models.StatusConfiguring, found.Status)
	s.Equal("aa:bb:cc:dd:ee:01", found.MACAddress)
	s.InDelta(52.37, found.Location.Latitude, 0.0001)

	byMAC, err := s.store.FindByMACAddress(s.ctx, "aa:bb:cc:dd:ee:01")
	s.Require().NoError(err)
	s.Equal(saved.ID, byMAC.ID)
}

func (s *PostgresSuite) TestDuplicateMACConflicts() {
	_, err := s.store.Save(s.ctx, s.newController("aa:bb:cc:dd:ee:02"))
	s.Require().NoError(err)

	_, err = s.store.Save(s.ctx, s.newController("aa:bb:cc:dd:ee:02"))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresSuite) TestStaleVersionRejected() {
	saved, err := s.store.Save(s.ctx, s.newController("aa:bb:cc:dd:ee:03"))
	s.Require().NoError(err)

	name := "lobby-renamed"
	_, err = s.store.Update(s.ctx, saved.ID, saved.EntityVersion(), models.Patch{Name: &name})
	s.Require().NoError(err)

	other := "lobby-stale"
	_, err = s.store.Update(s.ctx, saved.ID, saved.EntityVersion(), models.Patch{Name: &other})
	s.ErrorIs(err, sentinel.ErrVersionMismatch)
}

func (s *PostgresSuite) TestUpdateAppendsAuditTrail() {
	saved, err := s.store.Save(s.ctx, s.newController("aa:bb:cc:dd:ee:04"))
	s.Require().NoError(err)

	firmware := "2.4.1"
	updated, err := s.store.Update(s.ctx, saved.ID, saved.EntityVersion(), models.Patch{FirmwareVersion: &firmware})
	s.Require().NoError(err)
	s.Equal(2, updated.EntityVersion())

	trail, err := s.store.AuditTrail(s.ctx, saved.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 1)
	s.Equal(2, trail[0].Version)
	s.Require().Len(trail[0].Changes, 1)
	s.Equal("firmware_version", trail[0].Changes[0].Field)
	s.Equal("2.4.1", trail[0].Changes[0].New)
}

func (s *PostgresSuite) TestSoftDeleteVisibility() {
	saved, err := s.store.Save(s.ctx, s.newController("aa:bb:cc:dd:ee:05"))
	s.Require().NoError(err)

	s.Require().NoError(s.store.SoftDelete(s.ctx, saved.ID))

	_, err = s.store.FindByID(s.ctx, saved.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	visible, err := s.store.FindAll(s.ctx, storage.Filters{})
	s.Require().NoError(err)
	s.Empty(visible)

	all, err := s.store.FindAllWithDeleted(s.ctx, storage.Filters{})
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.True(all[0].IsDeleted())

	restored, err := s.store.Restore(s.ctx, saved.ID)
	s.Require().NoError(err)
	s.False(restored.IsDeleted())
}

func (s *PostgresSuite) TestSaveWithEventsLandsInOutbox() {
	c, err := models.NewController("dock-07", "aa:bb:cc:dd:ee:06", "", "",
		domain.Coordinates{}, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s.Require().NoError(err)

	saved, err := s.store.SaveWithEvents(s.ctx, c, c.UncommittedEvents())
	s.Require().NoError(err)

	pending, err := s.sink.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(models.EventControllerRegistered, pending[0].Event.Type)
	s.Equal(saved.ID, pending[0].Event.AggregateID)
}

func (s *PostgresSuite) TestTransactionRollbackKeepsOutboxClean() {
	c := s.newController("aa:bb:cc:dd:ee:07")
	event := domain.NewEvent(models.EventControllerRegistered, "pending", "controller",
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), nil)

	err := s.store.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := s.store.SaveWithEvents(ctx, c, []domain.Event{event}); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	})
	s.ErrorIs(err, sentinel.ErrInvalidState)

	visible, err := s.store.FindAll(s.ctx, storage.Filters{})
	s.Require().NoError(err)
	s.Empty(visible)

	pending, err := s.sink.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}
