package domain

type EntityDomain string

const (
	DOMAIN_LIGHT  EntityDomain = "light"
	DOMAIN_SWITCH EntityDomain = "switch"
	DOMAIN_SENSOR EntityDomain = "sensor"
	DOMAIN_COVER  EntityDomain = "cover"
)

// EntityState is the last known state of a remote entity. Values are immutable snapshots.
type EntityState interface {
	EntityID() string
	Domain() EntityDomain
	DisplayName() string
}

type EntityStateMixIn struct {
	Id           string `json:"entityId"`
	FriendlyName string `json:"friendlyName,omitempty"`
	Icon         string `json:"icon,omitempty"`
}

func (e EntityStateMixIn) EntityID() string {
	return e.Id
}

// DisplayName falls back to the entity id when no friendly name is known.
func (e EntityStateMixIn) DisplayName() string {
	if e.FriendlyName != "" {
		return e.FriendlyName
	}
	return e.Id
}

// light

type LightFeature uint32

const (
	LIGHT_FEATURE_BRIGHTNESS LightFeature = 1
	LIGHT_FEATURE_EFFECT     LightFeature = 4
	LIGHT_FEATURE_FLASH      LightFeature = 8
	LIGHT_FEATURE_TRANSITION LightFeature = 32
)

func (f LightFeature) Has(flag LightFeature) bool {
	return f&flag == flag
}

type LightEntityState struct {
	EntityStateMixIn
	On                bool         `json:"on"`
	Brightness        *int         `json:"brightness,omitempty"`
	SupportedFeatures LightFeature `json:"supportedFeatures"`
}

func (LightEntityState) Domain() EntityDomain {
	return DOMAIN_LIGHT
}

func (s LightEntityState) TurnOnCommand() EntityCommand {
	return newCommand(s, ACTION_TURN_ON, nil)
}

func (s LightEntityState) TurnOffCommand() EntityCommand {
	return newCommand(s, ACTION_TURN_OFF, nil)
}

func (s LightEntityState) ToggleCommand() EntityCommand {
	return newCommand(s, ACTION_TOGGLE, nil)
}

// SetBrightnessCommand clamps the value to 0..255.
func (s LightEntityState) SetBrightnessCommand(brightness int) EntityCommand {
	value := clamp(brightness, 0, 255)
	return newCommand(s, ACTION_SET_BRIGHTNESS, &value)
}

// switch

type SwitchEntityState struct {
	EntityStateMixIn
	On bool `json:"on"`
}

func (SwitchEntityState) Domain() EntityDomain {
	return DOMAIN_SWITCH
}

func (s SwitchEntityState) TurnOnCommand() EntityCommand {
	return newCommand(s, ACTION_TURN_ON, nil)
}

func (s SwitchEntityState) TurnOffCommand() EntityCommand {
	return newCommand(s, ACTION_TURN_OFF, nil)
}

func (s SwitchEntityState) ToggleCommand() EntityCommand {
	return newCommand(s, ACTION_TOGGLE, nil)
}

// sensor

type SensorEntityState struct {
	EntityStateMixIn
	Value             string   `json:"value"`
	NumericValue      *float64 `json:"numericValue,omitempty"`
	UnitOfMeasurement string   `json:"unitOfMeasurement,omitempty"`
	DeviceClass       string   `json:"deviceClass,omitempty"`
}

func (SensorEntityState) Domain() EntityDomain {
	return DOMAIN_SENSOR
}

// cover

type CoverState string

const (
	COVER_STATE_OPEN    CoverState = "open"
	COVER_STATE_CLOSED  CoverState = "closed"
	COVER_STATE_OPENING CoverState = "opening"
	COVER_STATE_CLOSING CoverState = "closing"
	COVER_STATE_STOPPED CoverState = "stopped"
	COVER_STATE_UNKNOWN CoverState = "unknown"
)

type CoverDeviceClass string

const (
	COVER_DEVICE_CLASS_AWNING  CoverDeviceClass = "awning"
	COVER_DEVICE_CLASS_BLIND   CoverDeviceClass = "blind"
	COVER_DEVICE_CLASS_CURTAIN CoverDeviceClass = "curtain"
	COVER_DEVICE_CLASS_DAMPER  CoverDeviceClass = "damper"
	COVER_DEVICE_CLASS_DOOR    CoverDeviceClass = "door"
	COVER_DEVICE_CLASS_GARAGE  CoverDeviceClass = "garage"
	COVER_DEVICE_CLASS_GATE    CoverDeviceClass = "gate"
	COVER_DEVICE_CLASS_SHADE   CoverDeviceClass = "shade"
	COVER_DEVICE_CLASS_SHUTTER CoverDeviceClass = "shutter"
	COVER_DEVICE_CLASS_WINDOW  CoverDeviceClass = "window"
)

type CoverFeature uint32

const (
	COVER_FEATURE_OPEN CoverFeature = 1 << iota
	COVER_FEATURE_CLOSE
	COVER_FEATURE_SET_POSITION
	COVER_FEATURE_STOP
	COVER_FEATURE_OPEN_TILT
	COVER_FEATURE_CLOSE_TILT
	COVER_FEATURE_STOP_TILT
	COVER_FEATURE_SET_TILT_POSITION
)

func (f CoverFeature) Has(flag CoverFeature) bool {
	return f&flag == flag
}

type CoverEntityState struct {
	EntityStateMixIn
	State             CoverState       `json:"state"`
	Position          *int             `json:"position,omitempty"`
	TiltPosition      *int             `json:"tiltPosition,omitempty"`
	DeviceClass       CoverDeviceClass `json:"deviceClass,omitempty"`
	SupportedFeatures CoverFeature     `json:"supportedFeatures"`
}

func (CoverEntityState) Domain() EntityDomain {
	return DOMAIN_COVER
}

func (s CoverEntityState) IsMoving() bool {
	return s.State == COVER_STATE_OPENING || s.State == COVER_STATE_CLOSING
}

func (s CoverEntityState) OpenCommand() EntityCommand {
	return newCommand(s, ACTION_OPEN, nil)
}

func (s CoverEntityState) CloseCommand() EntityCommand {
	return newCommand(s, ACTION_CLOSE, nil)
}

func (s CoverEntityState) StopCommand() EntityCommand {
	return newCommand(s, ACTION_STOP, nil)
}

// SetPositionCommand clamps the value to 0..100.
func (s CoverEntityState) SetPositionCommand(position int) EntityCommand {
	value := clamp(position, 0, 100)
	return newCommand(s, ACTION_SET_POSITION, &value)
}

// GenericEntityState holds entities of domains without a dedicated model.
type GenericEntityState struct {
	EntityStateMixIn
	EntityDomain EntityDomain `json:"domain"`
	State        string       `json:"state"`
}

func (s GenericEntityState) Domain() EntityDomain {
	return s.EntityDomain
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
