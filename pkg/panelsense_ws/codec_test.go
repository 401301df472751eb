package panelsense_ws

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialToken(t *testing.T) {

	assert := assert.New(t)

	token := CredentialToken("alice", "s3cret")
	assert.Equal("YWxpY2U6czNjcmV0", token)
	assert.NotContains(token, "\n")

	user, secret, err := ParseCredentialToken(token)
	assert.NoError(err)
	assert.Equal("alice", user)
	assert.Equal("s3cret", secret)
}

func TestCredentialTokenLongInput(t *testing.T) {
	token := CredentialToken("a-very-long-user-name-that-goes-on", "and-an-even-longer-secret-value-to-exceed-76-characters")
	assert.NotContains(t, token, "\n")
}

func TestEncodeAuthRequest(t *testing.T) {

	require := require.New(t)

	frame, err := Encode(AuthRequest{
		Token:          CredentialToken("alice", "s3cret"),
		VersionName:    "1.2.0",
		VersionCode:    12,
		ClientName:     "kitchen-panel",
		InstallationId: "c0ffee",
	})
	require.NoError(err)

	var raw map[string]any
	require.NoError(json.Unmarshal(frame, &raw))
	require.Equal("AUTH", raw["type"])
	data := raw["data"].(map[string]any)
	require.Equal("YWxpY2U6czNjcmV0", data["token"])
	require.Equal("kitchen-panel", data["clientName"])
	require.Equal("c0ffee", data["installationId"])
	require.EqualValues(12, data["versionCode"])
}

func TestEncodeRequestEntitiesStatesHasNoData(t *testing.T) {
	frame, err := Encode(RequestEntitiesStates{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"REQUEST_ENTITIES_STATES"}`, string(frame))
}

func TestDecodeEntityState(t *testing.T) {

	require := require.New(t)

	frame := []byte(`{"type":"ENTITY_STATE","data":{"entityId":"light.kitchen","domain":"light","state":"on",
		"attributes":{"friendly_name":"Kitchen","brightness":128,"supported_features":1}}}`)
	msg, err := Decode(frame)
	require.NoError(err)

	state, ok := msg.(EntityStateMessage)
	require.True(ok)
	require.Equal("light.kitchen", state.EntityId)
	require.Equal("light", state.Domain)
	require.Equal("on", state.State)
	require.Equal("Kitchen", *state.Attributes.FriendlyName)
	require.Equal(128, *state.Attributes.Brightness)
	require.Nil(state.Attributes.UnitOfMeasurement)
}

func TestDecodeEntityStateInfersDomain(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"ENTITY_STATE","data":{"entityId":"cover.garage","state":"open","attributes":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, "cover", msg.(EntityStateMessage).Domain)
}

func TestDecodeAuthResult(t *testing.T) {

	assert := assert.New(t)

	msg, err := Decode([]byte(`{"type":"AUTH","data":{"authResult":"FAILURE","detail":"bad password"}}`))
	assert.NoError(err)
	assert.Equal(AuthResult{AuthResult: AUTH_RESULT_FAILURE, Detail: "bad password"}, msg)

	_, err = Decode([]byte(`{"type":"AUTH","data":{"authResult":"MAYBE"}}`))
	assert.ErrorIs(err, ErrInvalidPayload)
}

func TestDecodeConfigurationKeepsDocument(t *testing.T) {

	require := require.New(t)

	doc := `{"panels":[{"title":"Living","items":[{"entity":"light.lamp","domain":"light"}]}],"theme":"dark"}`
	msg, err := Decode([]byte(`{"type":"CONFIGURATION","data":` + doc + `}`))
	require.NoError(err)

	cfg := msg.(Configuration)
	require.Len(cfg.Panels, 1)
	require.Equal("light.lamp", cfg.Panels[0].Items[0].Entity)

	out, err := json.Marshal(cfg)
	require.NoError(err)
	require.JSONEq(doc, string(out))
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name   string
		frame  string
		reason error
	}{
		{"not json", `{nope`, ErrMalformedFrame},
		{"missing type", `{"data":{}}`, ErrMalformedFrame},
		{"unknown type", `{"type":"WEATHER","data":{}}`, ErrUnknownMessageType},
		{"missing entity id", `{"type":"ENTITY_STATE","data":{"domain":"light","state":"on"}}`, ErrInvalidPayload},
		{"missing payload", `{"type":"ENTITY_STATE"}`, ErrInvalidPayload},
		{"client message from server", `{"type":"ENTITY_COMMAND","data":{"entityId":"light.a","action":"turn_on"}}`, ErrUnknownMessageType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.frame))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.reason)
			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr))
		})
	}
}

func TestOutboundRoundTrip(t *testing.T) {

	assert := assert.New(t)

	value := 40
	messages := []Message{
		AuthRequest{Token: CredentialToken("bob", "pw"), VersionName: "1.0.0", VersionCode: 1, ClientName: "hall", InstallationId: "id-1"},
		RequestEntitiesStates{},
		EntityCommandMessage{EntityId: "cover.garage", Domain: "cover", Action: "set_position", Value: &value},
		EntityCommandMessage{EntityId: "light.kitchen", Domain: "light", Action: "toggle"},
	}
	for _, msg := range messages {
		frame, err := Encode(msg)
		assert.NoError(err)
		decoded, err := DecodeOutbound(frame)
		assert.NoError(err)
		assert.Equal(msg, decoded)
	}
}
