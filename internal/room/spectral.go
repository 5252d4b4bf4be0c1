package room

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"spectrald/internal/eventbus"
	"spectrald/internal/link"
	"spectrald/internal/model"
	"spectrald/internal/profile"
	"spectrald/internal/spectral"
)

// AttachProfile binds an imported spectral profile to a room, replacing
// any previous configuration wholesale. Sliders start at each source's
// initial power. Fails if any member's model conflicts with the
// profile's bound model.
func (o *Orchestrator) AttachProfile(roomID string, profile *model.SpectralProfile, sourceFile string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, err := o.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if r == nil {
		return Validationf("room %s not found", roomID)
	}

	if profile.Model != "" {
		members, err := o.roomMembers(roomID)
		if err != nil {
			return err
		}
		for _, d := range members {
			if d.Model != profile.Model {
				return Validationf("member device %q model %q does not match profile model %q",
					d.Name, d.Model, profile.Model)
			}
		}
	}

	sliders := make(map[string]float64, len(profile.Sources))
	for _, src := range profile.Sources {
		sliders[src.Name] = spectral.Clamp01(src.InitialPower / 100)
	}

	r.Spectral = &model.SpectralConfig{
		Profile:    *profile,
		Sliders:    sliders,
		SourceFile: sourceFile,
		ComputedAt: time.Now().UTC(),
	}
	r.Touch()
	if err := o.rooms.Put(r); err != nil {
		return err
	}

	o.link.Bind(r)
	o.publishGraph(r)
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeRoomUpdated, RoomID: roomID})
	log.Info().Str("room", roomID).Str("file", sourceFile).Int("sources", len(profile.Sources)).Msg("Spectral profile attached")
	return nil
}

// ImportProfile parses a calibration file and attaches the result. The
// room's allowed model is passed to the importer as a hint for files
// that do not name a fixture model themselves.
func (o *Orchestrator) ImportProfile(roomID string, im profile.Importer, src io.Reader, sourceFile string) error {
	r, err := o.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if r == nil {
		return Validationf("room %s not found", roomID)
	}

	p, err := im.Parse(src, r.Model)
	if err != nil {
		return err
	}
	return o.AttachProfile(roomID, p, sourceFile)
}

// ImportProfileFromDevice fetches the calibration file a member fixture
// serves and attaches it to the device's room.
func (o *Orchestrator) ImportProfileFromDevice(ctx context.Context, deviceID string, im profile.Importer) error {
	d, err := o.devices.Get(deviceID)
	if err != nil {
		return err
	}
	if d == nil {
		return Validationf("device %s not found", deviceID)
	}
	if !d.Assigned() {
		return Validationf("device %s is not assigned to a room", deviceID)
	}

	data, err := o.link.FetchProfile(ctx, d)
	if err != nil {
		return err
	}
	return o.ImportProfile(d.RoomID, im, bytes.NewReader(data), "device:"+d.ID)
}

// SetSlider updates one source's value and forwards the edit to the
// debounced dispatch path. Frozen sources are left untouched: while
// master mode pins a source it ignores direct edits as well as master
// scaling.
func (o *Orchestrator) SetSlider(roomID, source string, value float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, cfg, err := o.spectralConfig(roomID)
	if err != nil {
		return err
	}
	idx := cfg.Profile.SourceIndex(source)
	if idx < 0 {
		return Validationf("unknown spectral source %q", source)
	}
	// Store under the profile's spelling regardless of the caller's
	// casing, so curve math and channel mapping see the value.
	source = cfg.Profile.Sources[idx].Name
	if cfg.Frozen(source) {
		log.Debug().Str("room", roomID).Str("source", source).Msg("Ignoring edit to frozen source")
		return nil
	}

	if cfg.Sliders == nil {
		cfg.Sliders = make(map[string]float64)
	}
	cfg.Sliders[source] = spectral.Clamp01(value)
	cfg.ComputedAt = time.Now().UTC()
	r.Touch()
	if err := o.rooms.Put(r); err != nil {
		return err
	}

	o.publishGraph(r)
	// Re-bind on every edit: a restarted daemon has no binding until a
	// profile operation runs, and the flush must target the room the
	// edit belongs to.
	o.link.Bind(r)
	o.link.SliderChanged(r.ID, source, value)
	return nil
}

// EnableMaster turns on master scaling, capturing the current slider
// values as the base for subsequent scaling. Re-enabling recaptures the
// base and clears the frozen set.
func (o *Orchestrator) EnableMaster(roomID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, cfg, err := o.spectralConfig(roomID)
	if err != nil {
		return err
	}

	base := make(map[string]float64, len(cfg.Sliders))
	for source, v := range cfg.Sliders {
		base[source] = v
	}
	cfg.Master = &model.MasterConfig{
		Enabled: true,
		Value:   1,
		Base:    base,
		Frozen:  make(map[string]bool),
	}
	r.Touch()
	if err := o.rooms.Put(r); err != nil {
		return err
	}
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeRoomUpdated, RoomID: roomID})
	return nil
}

// DisableMaster turns master scaling off, keeping the sliders where the
// last scale left them.
func (o *Orchestrator) DisableMaster(roomID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, cfg, err := o.spectralConfig(roomID)
	if err != nil {
		return err
	}
	cfg.Master = nil
	r.Touch()
	if err := o.rooms.Put(r); err != nil {
		return err
	}
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeRoomUpdated, RoomID: roomID})
	return nil
}

// FreezeSource pins a source at its captured base value while master
// mode is active.
func (o *Orchestrator) FreezeSource(roomID, source string) error {
	return o.setFrozen(roomID, source, true)
}

// UnfreezeSource releases a pinned source back to master scaling.
func (o *Orchestrator) UnfreezeSource(roomID, source string) error {
	return o.setFrozen(roomID, source, false)
}

func (o *Orchestrator) setFrozen(roomID, source string, frozen bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, cfg, err := o.spectralConfig(roomID)
	if err != nil {
		return err
	}
	if cfg.Master == nil || !cfg.Master.Enabled {
		return Validationf("master mode is not enabled for room %s", roomID)
	}
	idx := cfg.Profile.SourceIndex(source)
	if idx < 0 {
		return Validationf("unknown spectral source %q", source)
	}
	source = cfg.Profile.Sources[idx].Name

	if frozen {
		cfg.Master.Frozen[source] = true
	} else {
		delete(cfg.Master.Frozen, source)
	}
	r.Touch()
	return o.rooms.Put(r)
}

// SetMaster applies a master value: every non-frozen slider becomes its
// captured base scaled by the master, then the result is pushed to the
// room's online devices as one batch per device.
func (o *Orchestrator) SetMaster(ctx context.Context, roomID string, value float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, cfg, err := o.spectralConfig(roomID)
	if err != nil {
		return err
	}
	if cfg.Master == nil || !cfg.Master.Enabled {
		return Validationf("master mode is not enabled for room %s", roomID)
	}

	value = spectral.Clamp01(value)
	cfg.Master.Value = value
	cfg.Sliders = spectral.ScaleByMaster(cfg.Master.Base, value, cfg.Master.Frozen)
	cfg.ComputedAt = time.Now().UTC()
	r.Touch()
	if err := o.rooms.Put(r); err != nil {
		return err
	}

	o.publishGraph(r)
	return o.pushSliders(ctx, r)
}

// CreatePreset snapshots the current slider values under a unique name.
func (o *Orchestrator) CreatePreset(roomID, name string) (*model.Preset, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, cfg, err := o.spectralConfig(roomID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Validationf("preset name must not be empty")
	}
	for _, p := range cfg.Presets {
		if strings.EqualFold(p.Name, name) {
			return nil, Validationf("preset name %q is already taken", name)
		}
	}

	sliders := make(map[string]float64, len(cfg.Sliders))
	for source, v := range cfg.Sliders {
		sliders[source] = v
	}
	preset := model.Preset{ID: uuid.NewString(), Name: name, Sliders: sliders}
	cfg.Presets = append(cfg.Presets, preset)
	r.Touch()
	if err := o.rooms.Put(r); err != nil {
		return nil, err
	}

	o.bus.Publish(eventbus.Event{Type: eventbus.TypeRoomUpdated, RoomID: roomID})
	log.Info().Str("room", roomID).Str("preset", name).Msg("Preset created")
	return &preset, nil
}

// DeletePreset removes a named preset.
func (o *Orchestrator) DeletePreset(roomID, presetID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, cfg, err := o.spectralConfig(roomID)
	if err != nil {
		return err
	}

	for i, p := range cfg.Presets {
		if p.ID == presetID {
			cfg.Presets = append(cfg.Presets[:i], cfg.Presets[i+1:]...)
			r.Touch()
			if err := o.rooms.Put(r); err != nil {
				return err
			}
			o.bus.Publish(eventbus.Event{Type: eventbus.TypeRoomUpdated, RoomID: roomID})
			return nil
		}
	}
	return Validationf("preset %s not found in room %s", presetID, roomID)
}

// ApplyPreset restores a preset's slider snapshot and pushes it to every
// online member concurrently. Applying a preset ends any active master
// session, since the captured base no longer matches.
func (o *Orchestrator) ApplyPreset(ctx context.Context, roomID, presetID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, cfg, err := o.spectralConfig(roomID)
	if err != nil {
		return err
	}
	preset := cfg.Preset(presetID)
	if preset == nil {
		return Validationf("preset %s not found in room %s", presetID, roomID)
	}

	sliders := make(map[string]float64, len(preset.Sliders))
	for source, v := range preset.Sliders {
		sliders[source] = v
	}
	cfg.Sliders = sliders
	cfg.Master = nil
	cfg.ComputedAt = time.Now().UTC()
	r.Touch()
	if err := o.rooms.Put(r); err != nil {
		return err
	}

	o.publishGraph(r)
	log.Info().Str("room", roomID).Str("preset", preset.Name).Msg("Preset applied")
	return o.pushSliders(ctx, r)
}

// pushSliders sends the room's current slider state to every online
// member as one batch per device, bypassing the debounce path.
func (o *Orchestrator) pushSliders(ctx context.Context, r *model.Room) error {
	cfg := r.Spectral
	if cfg == nil {
		return nil
	}
	online, err := o.onlineMembers(r.ID)
	if err != nil {
		return err
	}
	if len(online) == 0 {
		return nil
	}

	prof := cfg.Profile
	failures := o.link.FanOut(ctx, online, func(ctx context.Context, d *model.Device) error {
		return o.link.BatchUpdate(ctx, d, link.BuildChannelValues(&prof, cfg.Sliders, d))
	})

	var errs []error
	for deviceID, ferr := range failures {
		log.Warn().Err(ferr).Str("device", deviceID).Str("room", r.ID).Msg("Slider push failed")
		o.state.SetError(ferr)
		errs = append(errs, ferr)
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) spectralConfig(roomID string) (*model.Room, *model.SpectralConfig, error) {
	r, err := o.rooms.Get(roomID)
	if err != nil {
		return nil, nil, err
	}
	if r == nil {
		return nil, nil, Validationf("room %s not found", roomID)
	}
	if r.Spectral == nil {
		return nil, nil, Validationf("room %s has no spectral configuration", roomID)
	}
	return r, r.Spectral, nil
}

func (o *Orchestrator) publishGraph(r *model.Room) {
	cfg := r.Spectral
	if cfg == nil {
		o.state.SetGraph(nil)
		return
	}
	curve := spectral.Normalize(spectral.Resultant(&cfg.Profile, cfg.Sliders))
	o.state.SetGraph(curve)
}
