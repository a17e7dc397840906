package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"unit-tracker/internal/api"
	"unit-tracker/internal/models"
	"unit-tracker/internal/state"
	"unit-tracker/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAPI 内存实现的 REST 接口，记录调用次数
type fakeAPI struct {
	devices  []models.Device
	missions []models.Mission
	track    models.MissionTrack
	alerts   []models.Alert

	loginErr   error
	ackErr     error
	loggedOut  bool
	calls      int
	lastDevice models.DeviceInput
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (models.TokenPair, error) {
	f.calls++
	if f.loginErr != nil {
		return models.TokenPair{}, f.loginErr
	}
	return models.TokenPair{Access: "a", Refresh: "r"}, nil
}

func (f *fakeAPI) CurrentUser(ctx context.Context) (models.User, error) {
	if f.loggedOut {
		return models.User{}, api.ErrSessionExpired
	}
	return models.User{ID: "u1", Username: "ops", FirstName: "Ana", LastName: "Keza"}, nil
}

func (f *fakeAPI) Logout() error {
	f.loggedOut = true
	return nil
}

func (f *fakeAPI) ListDevices(ctx context.Context) ([]models.Device, error) {
	return f.devices, nil
}

func (f *fakeAPI) GetDevice(ctx context.Context, id models.ID) (models.Device, error) {
	for _, d := range f.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return models.Device{}, api.ErrNotFound
}

func (f *fakeAPI) CreateDevice(ctx context.Context, in models.DeviceInput) (models.Device, error) {
	f.calls++
	f.lastDevice = in
	return models.Device{ID: "new", Name: in.Name, Code: in.Code, Status: in.Status}, nil
}

func (f *fakeAPI) UpdateDevice(ctx context.Context, id models.ID, in models.DeviceInput) (models.Device, error) {
	f.calls++
	return models.Device{ID: id, Name: in.Name, Code: in.Code, Status: in.Status}, nil
}

func (f *fakeAPI) ListMissions(ctx context.Context) ([]models.Mission, error) {
	return f.missions, nil
}

func (f *fakeAPI) GetMission(ctx context.Context, id models.ID) (models.Mission, error) {
	return models.Mission{ID: id}, nil
}

func (f *fakeAPI) CreateMission(ctx context.Context, in models.MissionInput) (models.Mission, error) {
	f.calls++
	return models.Mission{ID: "m-new", Name: in.Name, Status: in.Status}, nil
}

func (f *fakeAPI) UpdateMission(ctx context.Context, id models.ID, in models.MissionInput) (models.Mission, error) {
	f.calls++
	return models.Mission{ID: id, Name: in.Name, Status: in.Status}, nil
}

func (f *fakeAPI) TrackMission(ctx context.Context, id models.ID) (models.MissionTrack, error) {
	return f.track, nil
}

func (f *fakeAPI) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	return f.alerts, nil
}

func (f *fakeAPI) AcknowledgeAlert(ctx context.Context, id models.ID) (models.Alert, error) {
	if f.ackErr != nil {
		return models.Alert{}, f.ackErr
	}
	return models.Alert{ID: id, Acknowledged: true}, nil
}

func TestValidationErrors(t *testing.T) {
	v := ValidationErrors{}
	assert.NoError(t, v.Err())

	v.Add("name", "name is required")
	v.Add("name", "ignored")
	v.Add("code", "code is required")
	err := v.Err()
	require.Error(t, err)
	assert.Equal(t, "validation failed: code: code is required; name: name is required", err.Error())

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
}

func TestAuthService(t *testing.T) {
	fake := &fakeAPI{}
	store := state.New()
	svc := NewAuthService(fake, store, zap.NewNop())

	_, err := svc.Login(context.Background(), " ", "")
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, "username")
	assert.Contains(t, verrs, "password")
	assert.Equal(t, 0, fake.calls)

	user, err := svc.Login(context.Background(), "ops", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Ana Keza", user.DisplayName())
	require.NotNil(t, store.User())

	require.NoError(t, svc.Logout())
	assert.Nil(t, store.User())

	_, err = svc.Restore(context.Background())
	assert.ErrorIs(t, err, api.ErrSessionExpired)

	fake.loginErr = api.ErrInvalidCredentials
	_, err = svc.Login(context.Background(), "ops", "wrong")
	assert.ErrorIs(t, err, api.ErrInvalidCredentials)
}

func TestValidateDevice(t *testing.T) {
	valid := models.DeviceInput{Name: "Alpha", Code: "A-1", Status: models.DeviceStatusActive, BatteryLevel: 50, IMEI: "356938035643809"}
	assert.NoError(t, ValidateDevice(valid))

	bad := models.DeviceInput{BatteryLevel: 101, Status: "lost", IMEI: "12345"}
	err := ValidateDevice(bad)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	for _, field := range []string{"name", "code", "battery_level", "status", "imei"} {
		assert.Contains(t, verrs, field)
	}
}

func TestInventoryService_ListFiltersSortsPaginates(t *testing.T) {
	fake := &fakeAPI{devices: []models.Device{
		{ID: "1", Name: "Charlie", Code: "C", Status: "active", BatteryLevel: 10},
		{ID: "2", Name: "alpha", Code: "A", Status: "active", BatteryLevel: 90},
		{ID: "3", Name: "Bravo", Code: "B", Status: "inactive", BatteryLevel: 50},
		{ID: "4", Name: "Delta", Code: "D", Status: "active", BatteryLevel: 70, AssignedTo: "Lt. Habimana"},
	}}
	svc := NewInventoryService(fake, nil, zap.NewNop())
	ctx := context.Background()

	resp, err := svc.List(ctx, ListDevicesRequest{})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, "alpha", resp.Items[0].Name)

	resp, err = svc.List(ctx, ListDevicesRequest{Status: "active", SortBy: "battery", Desc: true, Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, models.ID("2"), resp.Items[0].ID)
	assert.Equal(t, models.ID("4"), resp.Items[1].ID)

	resp, err = svc.List(ctx, ListDevicesRequest{Status: "active", SortBy: "battery", Desc: true, Page: 2, Size: 2})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, models.ID("1"), resp.Items[0].ID)

	resp, err = svc.List(ctx, ListDevicesRequest{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)

	resp, err = svc.List(ctx, ListDevicesRequest{Search: "habimana"})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, models.ID("4"), resp.Items[0].ID)
}

func TestInventoryService_CreateValidatesBeforeRequest(t *testing.T) {
	fake := &fakeAPI{}
	store := state.New()
	svc := NewInventoryService(fake, store, zap.NewNop())

	_, err := svc.Create(context.Background(), models.DeviceInput{Name: "x"})
	require.Error(t, err)
	assert.Equal(t, 0, fake.calls)

	d, err := svc.Create(context.Background(), models.DeviceInput{Name: "Echo", Code: "E-5", Status: models.DeviceStatusActive})
	require.NoError(t, err)
	assert.Equal(t, models.ID("new"), d.ID)
	_, ok := store.Device("new")
	assert.True(t, ok)

	_, err = svc.Update(context.Background(), "new", models.DeviceInput{Name: "Echo 2", Code: "E-5", Status: models.DeviceStatusMaintenance})
	require.NoError(t, err)
	got, _ := store.Device("new")
	assert.Equal(t, "Echo 2", got.Name)
}

func TestMissionService(t *testing.T) {
	early := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)
	fake := &fakeAPI{
		missions: []models.Mission{
			{ID: "a", Status: models.MissionStatusActive, StartTime: &early},
			{ID: "b", Status: models.MissionStatusActive, StartTime: &late},
			{ID: "c", Status: models.MissionStatusPlanned},
		},
		track: models.MissionTrack{MissionID: "a", Tracks: []models.DeviceTrack{
			{DeviceID: "1", Positions: []models.Position{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 1}}},
			{DeviceID: "2", Positions: []models.Position{{Latitude: 0, Longitude: 0}}},
		}},
	}
	svc := NewMissionService(fake, zap.NewNop())
	ctx := context.Background()

	active, err := svc.List(ctx, models.MissionStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, models.ID("b"), active[0].ID)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.ID("c"), all[2].ID)

	_, err = svc.Create(ctx, models.MissionInput{Name: "Op", Status: models.MissionStatusPlanned, StartTime: &late, EndTime: &early})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, "end_time")
	assert.Equal(t, 0, fake.calls)

	m, err := svc.Create(ctx, models.MissionInput{Name: "Op", Status: models.MissionStatusPlanned, StartTime: &early, EndTime: &late})
	require.NoError(t, err)
	assert.Equal(t, "Op", m.Name)

	summary, err := svc.Track(ctx, "a")
	require.NoError(t, err)
	assert.InDelta(t, 111.19, summary.PathLengthKm["1"], 0.01)
	assert.Equal(t, 0.0, summary.PathLengthKm["2"])
	assert.InDelta(t, 111.19, summary.TotalKm, 0.01)
}

func TestAlertService(t *testing.T) {
	base := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	fake := &fakeAPI{alerts: []models.Alert{
		{ID: "1", Severity: models.SeverityLow, Timestamp: base},
		{ID: "2", Severity: models.SeverityCritical, Timestamp: base.Add(time.Hour)},
		{ID: "3", Severity: models.SeverityCritical, Timestamp: base.Add(-time.Hour), Acknowledged: true},
	}}
	store := state.New()
	store.SetUser(models.User{Username: "ops"})
	svc := NewAlertService(fake, store, zap.NewNop())
	ctx := context.Background()

	alerts, err := svc.Load(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, models.ID("2"), alerts[0].ID)

	require.NoError(t, svc.Acknowledge(ctx, "2"))
	acked := svc.Filter(AlertFilter{Severity: models.SeverityCritical})
	require.Len(t, acked, 2)
	assert.True(t, acked[0].Acknowledged)
	assert.Equal(t, "ops", acked[0].AcknowledgedBy)

	no := false
	assert.Len(t, svc.Filter(AlertFilter{Acknowledged: &no}), 1)

	fake.ackErr = errors.New("boom")
	assert.Error(t, svc.Acknowledge(ctx, "1"))
	assert.Len(t, svc.Filter(AlertFilter{Acknowledged: &no}), 1)
}

func TestAnalyticsService_Summary(t *testing.T) {
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)
	store := state.New()
	store.SetDevices([]models.Device{
		{ID: "1", Status: models.DeviceStatusActive, LastSeen: &recent, BatteryLevel: 90},
		{ID: "2", Status: models.DeviceStatusActive, BatteryLevel: 10},
		{ID: "3", Status: models.DeviceStatusMaintenance, BatteryLevel: 50},
	})
	store.SetPosition(models.Position{DeviceID: "1", Latitude: 1, Longitude: 1})
	store.AddAlert(models.Alert{ID: "a", Severity: models.SeverityHigh})
	store.AddAlert(models.Alert{ID: "b", Severity: models.SeverityHigh, Acknowledged: true})

	sum := NewAnalyticsService(store).Summary(now)
	assert.Equal(t, 3, sum.TotalDevices)
	assert.Equal(t, 1, sum.ByEffective[status.Online])
	assert.Equal(t, 1, sum.ByEffective[status.Offline])
	assert.Equal(t, 1, sum.ByEffective[status.Inactive])
	assert.Equal(t, 2, sum.ByDeclared[models.DeviceStatusActive])
	assert.InDelta(t, 50.0, sum.AverageBattery, 1e-9)
	assert.Equal(t, 1, sum.LowBattery)
	assert.Equal(t, 1, sum.PositionsCached)
	assert.Equal(t, 2, sum.AlertsBySeverity[models.SeverityHigh])
	assert.Equal(t, 1, sum.Unacknowledged)
}
