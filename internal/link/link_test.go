package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"spectrald/internal/engine"
	"spectrald/internal/eventbus"
	"spectrald/internal/model"
	"spectrald/internal/store"
	"spectrald/internal/transport"
)

// fakeTransport is an in-memory fixture fleet for tests.
type fakeTransport struct {
	mu       sync.Mutex
	statuses map[string]transport.Status
	failing  map[string]bool
	streams  map[string]chan transport.Status

	powerCalls   []string // "<id>:on" / "<id>:off"
	channelCalls []channelCall
}

type channelCall struct {
	deviceID string
	values   map[int]int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		statuses: make(map[string]transport.Status),
		failing:  make(map[string]bool),
		streams:  make(map[string]chan transport.Status),
	}
}

func (f *fakeTransport) fail(deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[deviceID] {
		return transport.NewError(deviceID, "fake", errors.New("unreachable"))
	}
	return nil
}

func (f *fakeTransport) TestConnection(_ context.Context, d *model.Device) error {
	return f.fail(d.ID)
}

func (f *fakeTransport) GetStatus(_ context.Context, d *model.Device) (*transport.Status, error) {
	if err := f.fail(d.ID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.statuses[d.ID]
	st.Online = true
	return &st, nil
}

func (f *fakeTransport) SetPower(_ context.Context, d *model.Device, on bool) error {
	if err := f.fail(d.ID); err != nil {
		return err
	}
	state := "off"
	if on {
		state = "on"
	}
	f.mu.Lock()
	f.powerCalls = append(f.powerCalls, fmt.Sprintf("%s:%s", d.ID, state))
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SetChannel(_ context.Context, d *model.Device, index, pwm int) error {
	return f.SetChannels(nil, d, map[int]int{index: pwm})
}

func (f *fakeTransport) SetChannels(_ context.Context, d *model.Device, values map[int]int) error {
	if err := f.fail(d.ID); err != nil {
		return err
	}
	copied := make(map[int]int, len(values))
	for k, v := range values {
		copied[k] = v
	}
	f.mu.Lock()
	f.channelCalls = append(f.channelCalls, channelCall{deviceID: d.ID, values: copied})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) FetchProfileFile(_ context.Context, d *model.Device) ([]byte, error) {
	if err := f.fail(d.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *fakeTransport) StreamStatus(ctx context.Context, d *model.Device) (<-chan transport.Status, error) {
	if err := f.fail(d.ID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	src, ok := f.streams[d.ID]
	if !ok {
		src = make(chan transport.Status, 8)
		f.streams[d.ID] = src
	}
	f.mu.Unlock()

	out := make(chan transport.Status)
	go func() {
		defer close(out)
		for {
			select {
			case st := <-src:
				select {
				case out <- st:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *fakeTransport) emit(deviceID string, st transport.Status) {
	f.mu.Lock()
	src, ok := f.streams[deviceID]
	if !ok {
		src = make(chan transport.Status, 8)
		f.streams[deviceID] = src
	}
	f.mu.Unlock()
	src <- st
}

func (f *fakeTransport) lastChannelCall(deviceID string) (channelCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.channelCalls) - 1; i >= 0; i-- {
		if f.channelCalls[i].deviceID == deviceID {
			return f.channelCalls[i], true
		}
	}
	return channelCall{}, false
}

type fixture struct {
	tr        *fakeTransport
	devices   *store.MemoryDevices
	snapshots *store.MemorySnapshots
	state     *engine.State
	bus       *eventbus.Bus
	mgr       *Manager
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		tr:        newFakeTransport(),
		devices:   store.NewMemoryDevices(),
		snapshots: store.NewMemorySnapshots(),
		state:     engine.NewState(),
		bus:       eventbus.NewWithConfig(2, 32),
	}
	f.mgr = NewManager(f.tr, f.devices, f.snapshots, f.state, f.bus, cfg)
	t.Cleanup(func() {
		f.mgr.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		f.bus.Close(ctx)
	})
	return f
}

func TestConnect_SuccessAdmitsDevice(t *testing.T) {
	f := newFixture(t, Config{})
	d := &model.Device{ID: "d1", Address: "10.0.0.5", RoomID: "r1", RoomName: "Veg"}
	f.devices.Put(d)
	f.tr.statuses["d1"] = transport.Status{
		Model: "LX-60", Firmware: "2.1", ChannelCount: 4,
		ChannelNames: []string{"White", "Blue", "Red", "Far Red"},
		Values:       []int{10, 20, 30, 40}, On: true,
	}

	if err := f.mgr.Connect(context.Background(), d); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := f.mgr.State("d1"); got != StateConnected {
		t.Errorf("state = %v, want connected", got)
	}
	if !f.state.Connected("d1") {
		t.Error("device missing from connected pool")
	}

	stored, _ := f.devices.Get("d1")
	if stored.Model != "LX-60" || stored.ChannelCount != 4 || !stored.On {
		t.Errorf("status not merged: %+v", stored)
	}
	// Room assignment is locally authoritative and must survive the merge.
	if stored.RoomID != "r1" || stored.RoomName != "Veg" {
		t.Errorf("room reference lost: %+v", stored)
	}
}

func TestConnect_FailureIsPerDevice(t *testing.T) {
	f := newFixture(t, Config{})
	good := &model.Device{ID: "good", Address: "10.0.0.1"}
	bad := &model.Device{ID: "bad", Address: "10.0.0.2"}
	f.devices.Put(good)
	f.devices.Put(bad)
	f.tr.failing["bad"] = true

	if err := f.mgr.Connect(context.Background(), bad); err == nil {
		t.Fatal("expected error for failing device")
	}
	if err := f.mgr.Connect(context.Background(), good); err != nil {
		t.Fatalf("good device affected by bad one: %v", err)
	}
	if f.mgr.State("bad") != StateDisconnected {
		t.Error("failing device should return to disconnected")
	}
	if f.state.Snapshot().Err == "" {
		t.Error("connection failure should surface an error")
	}
}

func TestPowerToggle_SnapshotAndRestore(t *testing.T) {
	f := newFixture(t, Config{})
	d := &model.Device{
		ID: "d1", Address: "10.0.0.5", On: true, Online: true,
		ChannelCount: 4, Channels: []int{100, 150, 200, 250},
	}
	f.devices.Put(d)
	f.tr.statuses["d1"] = transport.Status{ChannelCount: 4}

	if err := f.mgr.PowerOff(context.Background(), d); err != nil {
		t.Fatalf("PowerOff: %v", err)
	}

	snap, _ := f.snapshots.Get("d1")
	if len(snap) != 4 {
		t.Fatalf("snapshot has %d entries, want 4", len(snap))
	}

	stored, _ := f.devices.Get("d1")
	if stored.On {
		t.Error("record still on after power off")
	}
	for i, v := range stored.Channels {
		if v != 0 {
			t.Errorf("channel %d = %d after power off, want 0", i, v)
		}
	}

	// The fixture now reports only 3 channels; the restore must respect
	// the fresh count, not the stale snapshot length.
	f.tr.statuses["d1"] = transport.Status{ChannelCount: 3}

	if err := f.mgr.PowerOn(context.Background(), stored); err != nil {
		t.Fatalf("PowerOn: %v", err)
	}

	call, ok := f.tr.lastChannelCall("d1")
	if !ok {
		t.Fatal("no channel restore sent")
	}
	if len(call.values) != 3 {
		t.Fatalf("restored %d channels, want 3: %v", len(call.values), call.values)
	}
	for i, want := range []int{100, 150, 200} {
		if call.values[i] != want {
			t.Errorf("restored channel %d = %d, want %d", i, call.values[i], want)
		}
	}

	stored, _ = f.devices.Get("d1")
	if !stored.On || stored.ChannelCount != 3 || len(stored.Channels) != 3 {
		t.Errorf("record after power on: %+v", stored)
	}

	powerSeq := f.tr.powerCalls
	if len(powerSeq) != 2 || powerSeq[0] != "d1:off" || powerSeq[1] != "d1:on" {
		t.Errorf("power command sequence = %v", powerSeq)
	}
}

func TestPowerOn_NoSnapshotUsesMidScale(t *testing.T) {
	f := newFixture(t, Config{})
	d := &model.Device{ID: "d1", Address: "10.0.0.5", ChannelCount: 2}
	f.devices.Put(d)
	f.tr.statuses["d1"] = transport.Status{ChannelCount: 2}

	if err := f.mgr.PowerOn(context.Background(), d); err != nil {
		t.Fatalf("PowerOn: %v", err)
	}

	call, ok := f.tr.lastChannelCall("d1")
	if !ok {
		t.Fatal("no channel command sent")
	}
	for i := 0; i < 2; i++ {
		if call.values[i] != model.DefaultPWM {
			t.Errorf("channel %d = %d, want %d", i, call.values[i], model.DefaultPWM)
		}
	}
}

func TestFanOut_OneFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, Config{})
	devices := []*model.Device{
		{ID: "ok1", ChannelCount: 1},
		{ID: "bad", ChannelCount: 1},
		{ID: "ok2", ChannelCount: 1},
	}
	for _, d := range devices {
		f.devices.Put(d)
	}
	f.tr.failing["bad"] = true

	failures := f.mgr.FanOut(context.Background(), devices, func(ctx context.Context, d *model.Device) error {
		return f.tr.SetChannels(ctx, d, map[int]int{0: 42})
	})

	if len(failures) != 1 {
		t.Fatalf("failures = %v, want exactly one", failures)
	}
	if _, ok := failures["bad"]; !ok {
		t.Errorf("failures = %v, want entry for bad", failures)
	}
	for _, id := range []string{"ok1", "ok2"} {
		if _, ok := f.tr.lastChannelCall(id); !ok {
			t.Errorf("device %s never received its command", id)
		}
	}
}

func spectralRoom(id, name string, sources ...string) *model.Room {
	profile := model.SpectralProfile{}
	for _, s := range sources {
		profile.Sources = append(profile.Sources, model.LightSource{Name: s, Factor: 1})
	}
	return &model.Room{
		ID: id, Name: name,
		Spectral: &model.SpectralConfig{Profile: profile},
	}
}

func TestSliderChanged_DebouncedFlushToEditedRoom(t *testing.T) {
	f := newFixture(t, Config{DebounceWindow: 30 * time.Millisecond, RateLimitRPS: 1000})

	online := &model.Device{
		ID: "d1", RoomID: "r1", Online: true,
		ChannelCount: 2, ChannelNames: []string{"Red", "Blue"}, Channels: []int{0, 0},
	}
	offline := &model.Device{
		ID: "d2", RoomID: "r1", Online: false,
		ChannelCount: 2, ChannelNames: []string{"Red", "Blue"},
	}
	f.devices.Put(online)
	f.devices.Put(offline)
	f.mgr.Bind(spectralRoom("r1", "Veg", "Red", "Blue"))

	f.mgr.SliderChanged("r1", "Red", 0.2)
	f.mgr.SliderChanged("r1", "Red", 1.0)
	f.mgr.SliderChanged("r1", "Blue", 0.5)

	time.Sleep(150 * time.Millisecond)

	call, ok := f.tr.lastChannelCall("d1")
	if !ok {
		t.Fatal("online device never received the flush")
	}
	if call.values[0] != 255 {
		t.Errorf("Red channel = %d, want 255 (only the newest edit survives)", call.values[0])
	}
	if call.values[1] != 128 {
		t.Errorf("Blue channel = %d, want 128", call.values[1])
	}
	if _, ok := f.tr.lastChannelCall("d2"); ok {
		t.Error("offline device should not receive commands")
	}

	stored, _ := f.devices.Get("d1")
	if stored.Channels[0] != 255 || stored.Channels[1] != 128 {
		t.Errorf("record channels = %v after flush", stored.Channels)
	}
}

func TestSliderChanged_EditsStayInTheirRoom(t *testing.T) {
	f := newFixture(t, Config{DebounceWindow: 30 * time.Millisecond, RateLimitRPS: 1000})

	vegDevice := &model.Device{
		ID: "dVeg", RoomID: "rVeg", Online: true,
		ChannelCount: 1, ChannelNames: []string{"Red"}, Channels: []int{0},
	}
	bloomDevice := &model.Device{
		ID: "dBloom", RoomID: "rBloom", Online: true,
		ChannelCount: 1, ChannelNames: []string{"Red"}, Channels: []int{0},
	}
	f.devices.Put(vegDevice)
	f.devices.Put(bloomDevice)

	// Both rooms carry a profile; the last one bound must not absorb
	// other rooms' edits.
	f.mgr.Bind(spectralRoom("rVeg", "Veg", "Red"))
	f.mgr.Bind(spectralRoom("rBloom", "Bloom", "Red"))

	f.mgr.SliderChanged("rVeg", "Red", 0.9)

	time.Sleep(150 * time.Millisecond)

	call, ok := f.tr.lastChannelCall("dVeg")
	if !ok {
		t.Fatal("edited room's device never received the flush")
	}
	if call.values[0] != 230 {
		t.Errorf("Red channel = %d, want 230", call.values[0])
	}
	if call, ok := f.tr.lastChannelCall("dBloom"); ok {
		t.Errorf("other room's device received the edit: %v", call.values)
	}
}

func TestSliderChanged_UnboundRoomIsDropped(t *testing.T) {
	f := newFixture(t, Config{DebounceWindow: 30 * time.Millisecond, RateLimitRPS: 1000})

	d := &model.Device{
		ID: "d1", RoomID: "r1", Online: true,
		ChannelCount: 1, ChannelNames: []string{"Red"}, Channels: []int{0},
	}
	f.devices.Put(d)

	f.mgr.Bind(spectralRoom("r1", "Veg", "Red"))
	f.mgr.Unbind("r1")
	f.mgr.SliderChanged("r1", "Red", 0.9)

	time.Sleep(150 * time.Millisecond)

	if call, ok := f.tr.lastChannelCall("d1"); ok {
		t.Errorf("unbound room's device received a command: %v", call.values)
	}
}

func TestFractionalRateStillPassesCommands(t *testing.T) {
	// A sub-1 rate must not starve the limiter of burst capacity.
	f := newFixture(t, Config{RateLimitRPS: 0.5})

	d := &model.Device{ID: "d1", Online: true, ChannelCount: 1}
	f.devices.Put(d)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.mgr.BatchUpdate(ctx, d, map[int]int{0: 100}); err != nil {
		t.Fatalf("BatchUpdate under fractional rate: %v", err)
	}
	if _, ok := f.tr.lastChannelCall("d1"); !ok {
		t.Fatal("command never reached the transport")
	}
}

func TestMonitor_PreservesRoomAssignment(t *testing.T) {
	f := newFixture(t, Config{})
	d := &model.Device{ID: "d1", Address: "10.0.0.5", RoomID: "r1", RoomName: "Veg", Online: true}
	f.devices.Put(d)

	if err := f.mgr.StartMonitor("d1"); err != nil {
		t.Fatalf("StartMonitor: %v", err)
	}

	f.tr.emit("d1", transport.Status{
		Online: true, ChannelCount: 3, Values: []int{1, 2, 3}, On: true,
	})

	waitFor(t, func() bool {
		stored, _ := f.devices.Get("d1")
		return stored != nil && stored.ChannelCount == 3
	})

	stored, _ := f.devices.Get("d1")
	if stored.RoomID != "r1" || stored.RoomName != "Veg" {
		t.Errorf("room reference lost during monitoring: %+v", stored)
	}

	// A failed poll marks this device offline without touching its
	// assignment.
	f.tr.emit("d1", transport.Status{Online: false})
	waitFor(t, func() bool {
		stored, _ := f.devices.Get("d1")
		return stored != nil && !stored.Online
	})
	stored, _ = f.devices.Get("d1")
	if stored.RoomID != "r1" {
		t.Errorf("offline snapshot cleared room reference: %+v", stored)
	}
	if f.state.Connected("d1") {
		t.Error("offline device should leave the connected pool")
	}

	f.mgr.StopMonitor("d1")
	if got := f.mgr.State("d1"); got != StateDisconnected {
		t.Errorf("state after stop = %v, want disconnected", got)
	}
}

func TestMonitor_IndependentCancellation(t *testing.T) {
	f := newFixture(t, Config{})
	for _, id := range []string{"d1", "d2"} {
		f.devices.Put(&model.Device{ID: id, Address: "10.0.0." + id, Online: true})
		if err := f.mgr.StartMonitor(id); err != nil {
			t.Fatalf("StartMonitor(%s): %v", id, err)
		}
	}

	f.mgr.StopMonitor("d1")

	if got := f.mgr.State("d1"); got != StateDisconnected {
		t.Errorf("d1 state = %v, want disconnected", got)
	}
	if got := f.mgr.State("d2"); got != StateMonitoring {
		t.Errorf("d2 state = %v, want monitoring", got)
	}

	// d2's stream is still live.
	f.tr.emit("d2", transport.Status{Online: true, ChannelCount: 2})
	waitFor(t, func() bool {
		stored, _ := f.devices.Get("d2")
		return stored != nil && stored.ChannelCount == 2
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}
