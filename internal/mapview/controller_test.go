package mapview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"unit-tracker/internal/api"
	"unit-tracker/internal/models"
	"unit-tracker/internal/push"
	"unit-tracker/internal/state"
	"unit-tracker/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSource 内存设备来源
type fakeSource struct {
	mu        sync.Mutex
	devices   []models.Device
	positions map[models.ID]models.Position
	failing   map[models.ID]error
	history   []models.Position
	missions  []models.Mission
	listErr   error
	block     bool // CurrentPosition 阻塞到 ctx 结束后再返回结果
	posCalls  int
	onFetch   func(id models.ID)
}

func (f *fakeSource) ListDevices(ctx context.Context) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Device(nil), f.devices...), nil
}

func (f *fakeSource) CurrentPosition(ctx context.Context, id models.ID) (models.Position, error) {
	f.mu.Lock()
	f.posCalls++
	block := f.block
	err := f.failing[id]
	pos, ok := f.positions[id]
	onFetch := f.onFetch
	f.mu.Unlock()

	if onFetch != nil {
		onFetch(id)
	}

	if block {
		<-ctx.Done()
	}
	if err != nil {
		return models.Position{}, err
	}
	if !ok {
		return models.Position{}, api.ErrNotFound
	}
	return pos, nil
}

func (f *fakeSource) History(ctx context.Context, id models.ID, hours int) ([]models.Position, error) {
	return f.history, nil
}

func (f *fakeSource) ListMissions(ctx context.Context) ([]models.Mission, error) {
	return f.missions, nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posCalls
}

// fakeEvents 手动触发的推送来源
type fakeEvents struct {
	mu       sync.Mutex
	next     push.SubscriptionID
	handlers map[string]map[push.SubscriptionID]push.Handler
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{handlers: make(map[string]map[push.SubscriptionID]push.Handler)}
}

func (e *fakeEvents) Subscribe(event string, h push.Handler) push.SubscriptionID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	if e.handlers[event] == nil {
		e.handlers[event] = make(map[push.SubscriptionID]push.Handler)
	}
	e.handlers[event][e.next] = h
	return e.next
}

func (e *fakeEvents) Unsubscribe(event string, id push.SubscriptionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers[event], id)
}

func (e *fakeEvents) emit(t *testing.T, event string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	e.mu.Lock()
	hs := make([]push.Handler, 0, len(e.handlers[event]))
	for _, h := range e.handlers[event] {
		hs = append(hs, h)
	}
	e.mu.Unlock()
	for _, h := range hs {
		_ = h(data)
	}
}

func (e *fakeEvents) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, hs := range e.handlers {
		n += len(hs)
	}
	return n
}

// fakeMirror 记录写入的位置
type fakeMirror struct {
	mu     sync.Mutex
	puts   []models.Position
	seeded map[models.ID]models.Position
}

func (m *fakeMirror) Put(ctx context.Context, pos models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, pos)
	return nil
}

func (m *fakeMirror) All(ctx context.Context) (map[models.ID]models.Position, error) {
	return m.seeded, nil
}

func (m *fakeMirror) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.puts)
}

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := testNow.Add(-d)
	return &t
}

func testDevices() []models.Device {
	return []models.Device{
		{ID: "1", Name: "Alpha", Code: "A-1", Status: models.DeviceStatusActive, LastSeen: ago(time.Minute), BatteryLevel: 80, Category: "vehicle"},
		{ID: "2", Name: "Bravo", Code: "B-2", Status: models.DeviceStatusActive, LastSeen: ago(time.Hour), BatteryLevel: 15, AssignedTo: "Cpl. Uwase"},
		{ID: "3", Name: "Charlie", Code: "C-3", Status: models.DeviceStatusInactive, BatteryLevel: 50},
	}
}

func TestController_RunSeedsAndSubscribes(t *testing.T) {
	source := &fakeSource{
		devices: testDevices(),
		positions: map[models.ID]models.Position{
			"1": {DeviceID: "1", Latitude: -1.95, Longitude: 30.06, Timestamp: testNow.Add(-time.Minute)},
			"2": {Latitude: -1.50, Longitude: 29.63, Timestamp: testNow.Add(-time.Hour)},
		},
		failing:  map[models.ID]error{"3": errors.New("boom")},
		missions: []models.Mission{{ID: "m1", Devices: []models.ID{"1"}}},
	}
	events := newFakeEvents()
	store := state.New()
	mirror := &fakeMirror{}
	ctrl := New(source, events, store, Options{Mirror: mirror}, zap.NewNop())
	assert.Equal(t, PhaseLoading, ctrl.Phase())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	require.Eventually(t, func() bool { return ctrl.Phase() == PhaseReady }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, store.Devices(), 3)
	assert.Len(t, store.Positions(), 2)
	pos, ok := store.Position("2")
	require.True(t, ok)
	assert.Equal(t, models.ID("2"), pos.DeviceID)
	assert.Len(t, ctrl.Missions(), 1)
	assert.Equal(t, 2, mirror.putCount())
	assert.Equal(t, 3, events.count())

	events.emit(t, push.EventLocation, models.Position{DeviceID: "3", Latitude: 1, Longitude: 2, Timestamp: testNow})
	_, ok = store.Position("3")
	assert.True(t, ok)
	assert.Equal(t, 3, mirror.putCount())

	events.emit(t, push.EventDeviceStatus, models.DeviceStatusChange{DeviceID: "3", Status: models.DeviceStatusActive, LastSeen: &testNow})
	d, _ := store.Device("3")
	assert.Equal(t, models.DeviceStatusActive, d.Status)

	events.emit(t, push.EventAlert, models.Alert{ID: "a1", DeviceID: "2", Severity: models.SeverityHigh})
	require.Len(t, store.Alerts(), 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, events.count())
}

func TestController_EventsDuringSeedingApplied(t *testing.T) {
	events := newFakeEvents()
	var once sync.Once
	source := &fakeSource{
		devices:   testDevices()[:2],
		positions: map[models.ID]models.Position{"1": {DeviceID: "1", Latitude: -1.95, Longitude: 30.06, Timestamp: testNow}},
		onFetch: func(id models.ID) {
			once.Do(func() {
				events.emit(t, push.EventLocation, models.Position{DeviceID: "2", Latitude: -1.5, Longitude: 29.63, Timestamp: testNow})
				events.emit(t, push.EventAlert, models.Alert{ID: "a1", DeviceID: "1", Severity: models.SeverityCritical})
			})
		},
	}
	store := state.New()
	ctrl := New(source, events, store, Options{FetchConcurrency: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ctrl.Run(ctx) }()

	require.Eventually(t, func() bool { return ctrl.Phase() == PhaseReady }, 2*time.Second, 5*time.Millisecond)
	pos, ok := store.Position("2")
	require.True(t, ok)
	assert.InDelta(t, -1.5, pos.Latitude, 1e-9)
	require.Len(t, store.Alerts(), 1)
	assert.Equal(t, models.ID("a1"), store.Alerts()[0].ID)
}

func TestController_AutoRefreshToggle(t *testing.T) {
	source := &fakeSource{
		devices:   testDevices()[:1],
		positions: map[models.ID]models.Position{"1": {DeviceID: "1", Latitude: 1, Longitude: 1}},
	}
	ctrl := New(source, nil, state.New(), Options{AutoRefresh: true, RefreshInterval: 10 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ctrl.Run(ctx) }()

	require.Eventually(t, func() bool { return source.calls() >= 4 }, 2*time.Second, 5*time.Millisecond)

	ctrl.SetAutoRefresh(false)
	time.Sleep(50 * time.Millisecond)
	stopped := source.calls()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, stopped, source.calls())

	require.NoError(t, ctrl.SetRefreshInterval(5*time.Millisecond))
	ctrl.SetAutoRefresh(true)
	require.Eventually(t, func() bool { return source.calls() > stopped+2 }, 2*time.Second, 5*time.Millisecond)

	assert.Error(t, ctrl.SetRefreshInterval(0))
}

func TestController_RetriesDeviceListOnTick(t *testing.T) {
	source := &fakeSource{listErr: errors.New("api down")}
	store := state.New()
	ctrl := New(source, nil, store, Options{AutoRefresh: true, RefreshInterval: 10 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ctrl.Run(ctx) }()

	require.Eventually(t, func() bool { return ctrl.Phase() == PhaseReady }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, store.Devices())

	source.mu.Lock()
	source.listErr = nil
	source.devices = testDevices()
	source.mu.Unlock()

	require.Eventually(t, func() bool { return len(store.Devices()) == 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestController_CancelledFetchIsDiscarded(t *testing.T) {
	source := &fakeSource{
		devices:   testDevices(),
		positions: map[models.ID]models.Position{"1": {DeviceID: "1", Latitude: 1, Longitude: 1}},
		block:     true,
	}
	store := state.New()
	ctrl := New(source, nil, store, Options{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	require.NoError(t, ctrl.RefreshNow(ctx))
	assert.Empty(t, store.Positions())
}

func TestController_WarmsFromMirror(t *testing.T) {
	mirror := &fakeMirror{seeded: map[models.ID]models.Position{
		"9": {DeviceID: "9", Latitude: 5, Longitude: 5},
	}}
	store := state.New()
	ctrl := New(&fakeSource{}, nil, store, Options{Mirror: mirror}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = ctrl.Run(ctx) }()
	require.Eventually(t, func() bool { return ctrl.Phase() == PhaseReady }, 2*time.Second, 5*time.Millisecond)
	cancel()

	_, ok := store.Position("9")
	assert.True(t, ok)
}

func TestController_Trail(t *testing.T) {
	source := &fakeSource{history: []models.Position{
		{DeviceID: "1", Latitude: 0, Longitude: 0},
		{DeviceID: "1", Latitude: 0, Longitude: 1},
	}}
	store := state.New()
	ctrl := New(source, nil, store, Options{}, zap.NewNop())

	trail, err := ctrl.Trail(context.Background(), "1", 24)
	require.NoError(t, err)
	assert.Len(t, trail, 2)
	assert.Empty(t, store.Positions())
}

// newViewController 不运行 Run，直接填充缓存
func newViewController(t *testing.T) (*Controller, *state.Store) {
	t.Helper()
	store := state.New()
	store.SetDevices(testDevices())
	store.SetPosition(models.Position{DeviceID: "1", Latitude: 0, Longitude: 0, Timestamp: testNow})
	store.SetPosition(models.Position{DeviceID: "2", Latitude: 0, Longitude: 1, Timestamp: testNow})
	ctrl := New(&fakeSource{}, nil, store, Options{}, zap.NewNop())
	ctrl.missions = []models.Mission{{ID: "m1", Devices: []models.ID{"2", "3"}}}
	return ctrl, store
}

func rowIDs(rows []Row) []models.ID {
	ids := make([]models.ID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.Device.ID)
	}
	return ids
}

func TestView_StatusLegendAndDistances(t *testing.T) {
	ctrl, _ := newViewController(t)
	ctrl.SetReference(0, 0)
	ctrl.Select(models.IDPtr("1"))

	v := ctrl.View(testNow)
	require.Len(t, v.Rows, 3)
	assert.Equal(t, []models.ID{"1", "2", "3"}, rowIDs(v.Rows))

	assert.Equal(t, status.Online, v.Rows[0].Status)
	assert.Equal(t, status.Offline, v.Rows[1].Status)
	assert.Equal(t, status.Inactive, v.Rows[2].Status)
	for _, e := range v.Legend {
		assert.Equal(t, 1, e.Count, e.Status)
	}

	require.NotNil(t, v.Rows[1].DistanceToReference)
	assert.InDelta(t, 111.19, *v.Rows[1].DistanceToReference, 0.01)
	require.NotNil(t, v.Rows[1].DistanceToSelected)
	assert.InDelta(t, 111.19, *v.Rows[1].DistanceToSelected, 0.01)
	assert.Nil(t, v.Rows[0].DistanceToSelected)
	assert.Nil(t, v.Rows[2].Position)
	assert.Nil(t, v.Rows[2].DistanceToReference)

	require.NotNil(t, v.Selected)
	assert.Equal(t, models.ID("1"), v.Selected.Device.ID)
	assert.Equal(t, "vehicle", v.Rows[0].Icon.Category)

	ctrl.Select(nil)
	assert.Nil(t, ctrl.View(testNow).Selected)
}

func TestView_StatusDerivedAtRenderTime(t *testing.T) {
	ctrl, _ := newViewController(t)

	assert.Equal(t, status.Online, ctrl.View(testNow).Rows[0].Status)
	assert.Equal(t, status.Offline, ctrl.View(testNow.Add(15*time.Minute)).Rows[0].Status)
}

func TestView_FiltersAndSort(t *testing.T) {
	ctrl, _ := newViewController(t)

	ctrl.SetFilter(Filter{Status: models.DeviceStatusActive})
	assert.Equal(t, []models.ID{"1", "2"}, rowIDs(ctrl.View(testNow).Rows))

	ctrl.SetFilter(Filter{EffectiveStatus: status.Offline})
	assert.Equal(t, []models.ID{"2"}, rowIDs(ctrl.View(testNow).Rows))

	ctrl.SetFilter(Filter{MissionID: "m1"})
	assert.Equal(t, []models.ID{"2", "3"}, rowIDs(ctrl.View(testNow).Rows))

	ctrl.SetFilter(Filter{MissionID: "unknown"})
	assert.Empty(t, ctrl.View(testNow).Rows)

	ctrl.SetFilter(Filter{Search: "uwase"})
	assert.Equal(t, []models.ID{"2"}, rowIDs(ctrl.View(testNow).Rows))

	ctrl.SetFilter(Filter{})
	ctrl.SetSort(SortBattery, true)
	assert.Equal(t, []models.ID{"1", "3", "2"}, rowIDs(ctrl.View(testNow).Rows))

	ctrl.SetReference(0, 1)
	ctrl.SetSort(SortDistance, false)
	assert.Equal(t, []models.ID{"2", "1", "3"}, rowIDs(ctrl.View(testNow).Rows))

	// 图例统计全部设备，不受过滤影响
	ctrl.SetFilter(Filter{EffectiveStatus: status.Online})
	v := ctrl.View(testNow)
	assert.Len(t, v.Rows, 1)
	total := 0
	for _, e := range v.Legend {
		total += e.Count
	}
	assert.Equal(t, 3, total)

	ctrl.SetShowTrails(true)
	assert.True(t, ctrl.View(testNow).ShowTrails)
}

func TestController_ExportCSV(t *testing.T) {
	ctrl, _ := newViewController(t)
	ctrl.SetFilter(Filter{MissionID: "m1"})

	var buf bytes.Buffer
	require.NoError(t, ctrl.ExportCSV(&buf, testNow))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], `"2","B-2","Bravo"`))
	assert.Contains(t, lines[2], `"N/A","N/A"`)

	var xlsx bytes.Buffer
	require.NoError(t, ctrl.ExportXLSX(&xlsx, testNow))
	assert.NotZero(t, xlsx.Len())

	var pdf bytes.Buffer
	require.NoError(t, ctrl.ExportPDF(&pdf, testNow))
	assert.True(t, bytes.HasPrefix(pdf.Bytes(), []byte("%PDF-")))

	assert.Error(t, ctrl.Export(&buf, "docx", testNow))
	assert.Equal(t, "devices_2026-10-14.csv", ctrl.ExportFileName(FormatCSV, testNow))
}
