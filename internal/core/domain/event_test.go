package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayNameFallback(t *testing.T) {

	assert := assert.New(t)

	named := LightEntityState{EntityStateMixIn: EntityStateMixIn{Id: "light.kitchen", FriendlyName: "Kitchen"}}
	unnamed := SensorEntityState{EntityStateMixIn: EntityStateMixIn{Id: "sensor.temp"}}

	assert.Equal("Kitchen", named.DisplayName())
	assert.Equal("sensor.temp", unnamed.DisplayName())
}

func TestCoverFeatures(t *testing.T) {

	assert := assert.New(t)

	features := COVER_FEATURE_OPEN | COVER_FEATURE_CLOSE | COVER_FEATURE_STOP
	assert.Equal(CoverFeature(11), features)
	assert.True(features.Has(COVER_FEATURE_STOP))
	assert.False(features.Has(COVER_FEATURE_SET_POSITION))
	assert.Equal(CoverFeature(128), COVER_FEATURE_SET_TILT_POSITION)
}

func TestLightFeatures(t *testing.T) {

	assert := assert.New(t)

	features := LightFeature(33)
	assert.True(features.Has(LIGHT_FEATURE_BRIGHTNESS))
	assert.True(features.Has(LIGHT_FEATURE_TRANSITION))
	assert.False(features.Has(LIGHT_FEATURE_FLASH))
	assert.Equal(LightFeature(1), LIGHT_FEATURE_BRIGHTNESS)
}

func TestCoverCommands(t *testing.T) {

	assert := assert.New(t)

	cover := CoverEntityState{EntityStateMixIn: EntityStateMixIn{Id: "cover.garage"}, State: COVER_STATE_OPENING}
	assert.True(cover.IsMoving())

	assert.Equal(EntityCommand{EntityId: "cover.garage", Domain: DOMAIN_COVER, Action: ACTION_STOP}, cover.StopCommand())

	cmd := cover.SetPositionCommand(140)
	assert.Equal(ACTION_SET_POSITION, cmd.Action)
	assert.Equal(100, *cmd.Value)
}

func TestLightBrightnessIsClamped(t *testing.T) {
	light := LightEntityState{EntityStateMixIn: EntityStateMixIn{Id: "light.desk"}}
	assert.Equal(t, 0, *light.SetBrightnessCommand(-3).Value)
	assert.Equal(t, 255, *light.SetBrightnessCommand(300).Value)
}

func TestCommandValidate(t *testing.T) {

	assert := assert.New(t)

	assert.NoError(SwitchEntityState{EntityStateMixIn: EntityStateMixIn{Id: "switch.fan"}}.ToggleCommand().Validate())
	assert.True(errors.Is(EntityCommand{Action: ACTION_OPEN}.Validate(), ErrInvalidCommand))
	assert.True(errors.Is(EntityCommand{EntityId: "cover.a"}.Validate(), ErrInvalidCommand))
	assert.True(errors.Is(EntityCommand{EntityId: "cover.a", Action: ACTION_SET_POSITION}.Validate(), ErrInvalidCommand))
}

func TestPanelItemDisplayTitle(t *testing.T) {

	assert := assert.New(t)

	state := LightEntityState{EntityStateMixIn: EntityStateMixIn{Id: "light.lamp", FriendlyName: "Lamp"}}

	assert.Equal("Reading", PanelItem{EntityId: "light.lamp", Title: "Reading"}.DisplayTitle(state))
	assert.Equal("Lamp", PanelItem{EntityId: "light.lamp"}.DisplayTitle(state))
	assert.Equal("light.other", PanelItem{EntityId: "light.other"}.DisplayTitle(state))
	assert.Equal("light.lamp", PanelItem{EntityId: "light.lamp"}.DisplayTitle(nil))
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "CONNECTED", CONNECTION_STATE_CONNECTED.String())
	assert.Equal(t, "AUTHENTICATING", SESSION_STATE_AUTHENTICATING.String())
	assert.Equal(t, "*redacted*", ServerConnectionData{Password: "pw"}.Redacted().Password)
}
