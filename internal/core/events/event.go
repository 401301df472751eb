package events

import (
	"strconv"
	"strings"

	. "github.com/berfenger/panelsense/internal/core/domain"
	"github.com/berfenger/panelsense/pkg/panelsense_ws"
)

type entityMapper func(msg panelsense_ws.EntityStateMessage, base EntityStateMixIn) EntityState

var entityMappers = map[EntityDomain]entityMapper{
	DOMAIN_LIGHT:  lightFromMessage,
	DOMAIN_SWITCH: switchFromMessage,
	DOMAIN_SENSOR: sensorFromMessage,
	DOMAIN_COVER:  coverFromMessage,
}

// EntityStateFromMessage maps a wire entity state to its domain model. Unknown
// domains become a GenericEntityState.
func EntityStateFromMessage(msg panelsense_ws.EntityStateMessage) EntityState {
	base := EntityStateMixIn{
		Id:           msg.EntityId,
		FriendlyName: deref(msg.Attributes.FriendlyName),
		Icon:         deref(msg.Attributes.Icon),
	}
	domain := EntityDomain(msg.Domain)
	if mapper, ok := entityMappers[domain]; ok {
		return mapper(msg, base)
	}
	return GenericEntityState{
		EntityStateMixIn: base,
		EntityDomain:     domain,
		State:            msg.State,
	}
}

func lightFromMessage(msg panelsense_ws.EntityStateMessage, base EntityStateMixIn) EntityState {
	return LightEntityState{
		EntityStateMixIn:  base,
		On:                isOn(msg.State),
		Brightness:        msg.Attributes.Brightness,
		SupportedFeatures: LightFeature(derefInt(msg.Attributes.SupportedFeatures)),
	}
}

func switchFromMessage(msg panelsense_ws.EntityStateMessage, base EntityStateMixIn) EntityState {
	return SwitchEntityState{
		EntityStateMixIn: base,
		On:               isOn(msg.State),
	}
}

func sensorFromMessage(msg panelsense_ws.EntityStateMessage, base EntityStateMixIn) EntityState {
	state := SensorEntityState{
		EntityStateMixIn:  base,
		Value:             msg.State,
		UnitOfMeasurement: deref(msg.Attributes.UnitOfMeasurement),
		DeviceClass:       deref(msg.Attributes.DeviceClass),
	}
	if value, err := strconv.ParseFloat(msg.State, 64); err == nil {
		state.NumericValue = &value
	}
	return state
}

func coverFromMessage(msg panelsense_ws.EntityStateMessage, base EntityStateMixIn) EntityState {
	return CoverEntityState{
		EntityStateMixIn:  base,
		State:             parseCoverState(msg.State),
		Position:          msg.Attributes.CurrentPosition,
		TiltPosition:      msg.Attributes.CurrentTiltPosition,
		DeviceClass:       CoverDeviceClass(strings.ToLower(deref(msg.Attributes.DeviceClass))),
		SupportedFeatures: CoverFeature(derefInt(msg.Attributes.SupportedFeatures)),
	}
}

func parseCoverState(state string) CoverState {
	switch s := CoverState(strings.ToLower(state)); s {
	case COVER_STATE_OPEN, COVER_STATE_CLOSED, COVER_STATE_OPENING, COVER_STATE_CLOSING, COVER_STATE_STOPPED:
		return s
	}
	return COVER_STATE_UNKNOWN
}

func CommandToMessage(cmd EntityCommand) panelsense_ws.EntityCommandMessage {
	return panelsense_ws.EntityCommandMessage{
		EntityId: cmd.EntityId,
		Domain:   string(cmd.Domain),
		Action:   string(cmd.Action),
		Value:    cmd.Value,
	}
}

func CommandFromMessage(msg panelsense_ws.EntityCommandMessage) EntityCommand {
	return EntityCommand{
		EntityId: msg.EntityId,
		Domain:   EntityDomain(msg.Domain),
		Action:   CommandAction(msg.Action),
		Value:    msg.Value,
	}
}

func AuthResultFromMessage(msg panelsense_ws.AuthResult) AuthResult {
	return AuthResult{
		Code:   AuthResultCode(msg.AuthResult),
		Detail: msg.Detail,
	}
}

func ConfigurationFromMessage(msg panelsense_ws.Configuration) Configuration {
	cfg := Configuration{Raw: msg.Raw}
	for _, p := range msg.Panels {
		panel := Panel{Id: p.Id, Title: p.Title, Icon: p.Icon}
		for _, item := range p.Items {
			domain := item.Domain
			if domain == "" {
				domain = panelsense_ws.DomainFromEntityId(item.Entity)
			}
			panel.Items = append(panel.Items, PanelItem{
				EntityId: item.Entity,
				Domain:   EntityDomain(domain),
				Title:    deref(item.Title),
				Icon:     deref(item.Icon),
			})
		}
		cfg.Panels = append(cfg.Panels, panel)
	}
	return cfg
}

func isOn(state string) bool {
	return strings.EqualFold(state, "on")
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func derefInt(value *int) int {
	if value == nil {
		return 0
	}
	return *value
}
