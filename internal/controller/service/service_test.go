package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"vendcore/internal/controller/health"
	"vendcore/internal/controller/models"
	"vendcore/internal/controller/store"
	"vendcore/internal/events/outbox"
	"vendcore/internal/storage"
	"vendcore/internal/storage/memory"
	dErrors "vendcore/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	ctx    context.Context
	outbox *outbox.MemoryStore
	svc    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.outbox = outbox.NewMemoryStore()
	repo := store.NewMemory(memory.WithEventSink[*models.Controller](s.outbox))
	s.svc = New(repo)
}

func (s *ServiceSuite) register() *models.Controller {
	res := s.svc.Register(s.ctx, RegisterCommand{
		Name:       "lobby-01",
		MACAddress: "AA:BB:CC:DD:EE:FF",
	})
	s.Require().NoError(res.Err())
	return res.Value()
}

func (s *ServiceSuite) TestRegisterStartsConfiguringAndQueuesEvent() {
	c := s.register()
	s.Equal(models.StatusConfiguring, c.Status)
	s.NotEmpty(c.ID)
	s.Equal(1, c.EntityVersion())

	pending, err := s.outbox.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(models.EventControllerRegistered, pending[0].Event.Type)
}

func (s *ServiceSuite) TestRegisterDuplicateMACConflicts() {
	s.register()

	res := s.svc.Register(s.ctx, RegisterCommand{
		Name:       "lobby-02",
		MACAddress: "aa:bb:cc:dd:ee:ff",
	})
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeConflict))
}

func (s *ServiceSuite) TestChangeStatusPublishesTransition() {
	c := s.register()

	res := s.svc.ChangeStatus(s.ctx, c.ID, models.StatusOnline, "setup complete")
	s.Require().NoError(res.Err())
	s.Equal(models.StatusOnline, res.Value().Status)
	s.Equal(c.EntityVersion()+1, res.Value().EntityVersion())

	pending, err := s.outbox.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	last := pending[1].Event
	s.Equal(models.EventControllerStatusChanged, last.Type)
	s.Equal("configuring", last.Payload["previous"])
	s.Equal("online", last.Payload["next"])
}

func (s *ServiceSuite) TestChangeStatusRejectsErrorToOffline() {
	c := s.register()
	s.Require().NoError(s.svc.ChangeStatus(s.ctx, c.ID, models.StatusOnline, "").Err())
	s.Require().NoError(s.svc.ChangeStatus(s.ctx, c.ID, models.StatusError, "sensor fault").Err())

	res := s.svc.ChangeStatus(s.ctx, c.ID, models.StatusOffline, "")
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeInvariantViolation))

	current := s.svc.Get(s.ctx, c.ID)
	s.Require().NoError(current.Err())
	s.Equal(models.StatusError, current.Value().Status)
}

func (s *ServiceSuite) TestHeartbeatRecoversOfflineController() {
	c := s.register()
	s.Require().NoError(s.svc.ChangeStatus(s.ctx, c.ID, models.StatusOnline, "").Err())
	s.Require().NoError(s.svc.ChangeStatus(s.ctx, c.ID, models.StatusOffline, "network blip").Err())

	res := s.svc.ReportHeartbeat(s.ctx, c.ID)
	s.Require().NoError(res.Err())
	s.Equal(models.StatusOnline, res.Value().Status)
	s.NotNil(res.Value().LastHeartbeatAt)
}

func (s *ServiceSuite) TestUpdateTranslatesStaleVersion() {
	c := s.register()
	name := "renamed"

	res := s.svc.Update(s.ctx, c.ID, c.EntityVersion()+5, models.Patch{Name: &name})
	s.Require().Error(res.Err())
	s.True(dErrors.HasCode(res.Err(), dErrors.CodeConflict))
}

func (s *ServiceSuite) TestDecommissionHidesController() {
	c := s.register()

	res := s.svc.Decommission(s.ctx, c.ID, "end of lease")
	s.Require().NoError(res.Err())

	got := s.svc.Get(s.ctx, c.ID)
	s.Require().Error(got.Err())
	s.True(dErrors.HasCode(got.Err(), dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestSweepHealthFlagsSilentControllers() {
	fresh := s.register()
	s.Require().NoError(s.svc.ChangeStatus(s.ctx, fresh.ID, models.StatusOnline, "").Err())
	s.Require().NoError(s.svc.ReportHeartbeat(s.ctx, fresh.ID).Err())

	stale := s.svc.Register(s.ctx, RegisterCommand{
		Name:       "lobby-02",
		MACAddress: "AA:BB:CC:DD:EE:00",
	})
	s.Require().NoError(stale.Err())
	s.Require().NoError(s.svc.ChangeStatus(s.ctx, stale.Value().ID, models.StatusOnline, "").Err())

	flagged, err := s.svc.SweepHealth(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(flagged, 1)
	s.Equal(stale.Value().ID, flagged[0].ControllerID)
	s.Equal(health.GradeSilent, flagged[0].Grade)
}

func (s *ServiceSuite) TestListPaginates() {
	for _, mac := range []string{"00:00:00:00:00:01", "00:00:00:00:00:02", "00:00:00:00:00:03"} {
		res := s.svc.Register(s.ctx, RegisterCommand{Name: "c-" + mac, MACAddress: mac})
		s.Require().NoError(res.Err())
	}

	res := s.svc.List(s.ctx, nil, storage.PageRequest{Page: 1, Limit: 2})
	s.Require().NoError(res.Err())
	page := res.Value()
	s.Len(page.Data, 2)
	s.Equal(3, page.Meta.Total)
	s.Equal(2, page.Meta.TotalPages)
}
