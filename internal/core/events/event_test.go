package events

import (
	"testing"

	. "github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/pkg/panelsense_ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeState(t *testing.T, frame string) EntityState {
	msg, err := panelsense_ws.Decode([]byte(frame))
	require.NoError(t, err)
	return EntityStateFromMessage(msg.(panelsense_ws.EntityStateMessage))
}

func TestLightFromMessage(t *testing.T) {

	assert := assert.New(t)

	state := decodeState(t, `{"type":"ENTITY_STATE","data":{"entityId":"light.kitchen","domain":"light","state":"on",
		"attributes":{"friendly_name":"Kitchen","brightness":200,"supported_features":40}}}`)

	light, ok := state.(LightEntityState)
	assert.True(ok)
	assert.True(light.On)
	assert.Equal(200, *light.Brightness)
	assert.Equal("Kitchen", light.DisplayName())
	assert.True(light.SupportedFeatures.Has(LIGHT_FEATURE_TRANSITION))
}

func TestSensorFromMessage(t *testing.T) {

	assert := assert.New(t)

	state := decodeState(t, `{"type":"ENTITY_STATE","data":{"entityId":"sensor.temp","domain":"sensor","state":"21.5",
		"attributes":{"unit_of_measurement":"°C"}}}`)
	sensor := state.(SensorEntityState)
	assert.Equal("21.5", sensor.Value)
	assert.InDelta(21.5, *sensor.NumericValue, 0.001)
	assert.Equal("°C", sensor.UnitOfMeasurement)
	assert.Equal("sensor.temp", sensor.DisplayName())

	state = decodeState(t, `{"type":"ENTITY_STATE","data":{"entityId":"sensor.temp","domain":"sensor","state":"unavailable","attributes":{}}}`)
	assert.Nil(state.(SensorEntityState).NumericValue)
}

func TestCoverFromMessage(t *testing.T) {

	assert := assert.New(t)

	state := decodeState(t, `{"type":"ENTITY_STATE","data":{"entityId":"cover.garage","domain":"cover","state":"closing",
		"attributes":{"current_position":30,"device_class":"garage","supported_features":15}}}`)
	cover := state.(CoverEntityState)
	assert.Equal(COVER_STATE_CLOSING, cover.State)
	assert.Equal(30, *cover.Position)
	assert.Equal(COVER_DEVICE_CLASS_GARAGE, cover.DeviceClass)
	assert.True(cover.SupportedFeatures.Has(COVER_FEATURE_SET_POSITION))
	assert.False(cover.SupportedFeatures.Has(COVER_FEATURE_OPEN_TILT))

	state = decodeState(t, `{"type":"ENTITY_STATE","data":{"entityId":"cover.garage","domain":"cover","state":"jammed","attributes":{}}}`)
	assert.Equal(COVER_STATE_UNKNOWN, state.(CoverEntityState).State)
}

func TestUnknownDomainIsGeneric(t *testing.T) {
	state := decodeState(t, `{"type":"ENTITY_STATE","data":{"entityId":"climate.hall","domain":"climate","state":"heat","attributes":{}}}`)
	generic, ok := state.(GenericEntityState)
	assert.True(t, ok)
	assert.Equal(t, EntityDomain("climate"), generic.Domain())
	assert.Equal(t, "heat", generic.State)
}

func TestCommandRoundTrip(t *testing.T) {

	require := require.New(t)

	cover := CoverEntityState{EntityStateMixIn: EntityStateMixIn{Id: "cover.garage"}}
	for _, cmd := range []EntityCommand{cover.OpenCommand(), cover.CloseCommand(), cover.StopCommand(), cover.SetPositionCommand(55)} {
		frame, err := panelsense_ws.Encode(CommandToMessage(cmd))
		require.NoError(err)
		msg, err := panelsense_ws.DecodeOutbound(frame)
		require.NoError(err)
		require.Equal(cmd, CommandFromMessage(msg.(panelsense_ws.EntityCommandMessage)))
	}
}

func TestConfigurationFromMessage(t *testing.T) {

	assert := assert.New(t)

	msg, err := panelsense_ws.Decode([]byte(`{"type":"CONFIGURATION","data":{"panels":[{"title":"Hall","items":[
		{"entity":"light.hall","title":"Ceiling"},{"entity":"cover.door","domain":"cover"}]}]}}`))
	assert.NoError(err)

	cfg := ConfigurationFromMessage(msg.(panelsense_ws.Configuration))
	assert.Len(cfg.Panels, 1)
	assert.Equal(DOMAIN_LIGHT, cfg.Panels[0].Items[0].Domain)
	assert.Equal("Ceiling", cfg.Panels[0].Items[0].Title)
	assert.Equal([]string{"light.hall", "cover.door"}, cfg.EntityIds())
	assert.NotEmpty(cfg.Raw)
}
