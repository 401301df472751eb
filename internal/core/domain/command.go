package domain

import "fmt"

type CommandAction string

const (
	ACTION_TURN_ON        CommandAction = "turn_on"
	ACTION_TURN_OFF       CommandAction = "turn_off"
	ACTION_TOGGLE         CommandAction = "toggle"
	ACTION_SET_BRIGHTNESS CommandAction = "set_brightness"
	ACTION_OPEN           CommandAction = "open"
	ACTION_CLOSE          CommandAction = "close"
	ACTION_STOP           CommandAction = "stop"
	ACTION_SET_POSITION   CommandAction = "set_position"
)

// EntityCommand is an instruction for the server to change one entity.
type EntityCommand struct {
	EntityId string        `json:"entityId"`
	Domain   EntityDomain  `json:"domain"`
	Action   CommandAction `json:"action"`
	Value    *int          `json:"value,omitempty"`
}

func newCommand(state EntityState, action CommandAction, value *int) EntityCommand {
	return EntityCommand{
		EntityId: state.EntityID(),
		Domain:   state.Domain(),
		Action:   action,
		Value:    value,
	}
}

func (c EntityCommand) Validate() error {
	if c.EntityId == "" {
		return fmt.Errorf("%w: missing entity id", ErrInvalidCommand)
	}
	if c.Action == "" {
		return fmt.Errorf("%w: missing action", ErrInvalidCommand)
	}
	switch c.Action {
	case ACTION_SET_BRIGHTNESS, ACTION_SET_POSITION:
		if c.Value == nil {
			return fmt.Errorf("%w: %s needs a value", ErrInvalidCommand, c.Action)
		}
	}
	return nil
}
