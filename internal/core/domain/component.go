package domain

import "encoding/json"

// Configuration is the dashboard layout pushed by the server. Raw keeps the whole
// document so fields unknown to this client survive a round trip.
type Configuration struct {
	Panels []Panel         `json:"panels"`
	Raw    json.RawMessage `json:"-"`
}

type Panel struct {
	Id    string      `json:"id,omitempty"`
	Title string      `json:"title,omitempty"`
	Icon  string      `json:"icon,omitempty"`
	Items []PanelItem `json:"items"`
}

type PanelItem struct {
	EntityId string       `json:"entityId"`
	Domain   EntityDomain `json:"domain,omitempty"`
	Title    string       `json:"title,omitempty"`
	Icon     string       `json:"icon,omitempty"`
}

// DisplayTitle uses the configured title, then the entity's friendly name, then its id.
func (i PanelItem) DisplayTitle(state EntityState) string {
	if i.Title != "" {
		return i.Title
	}
	if state != nil && state.EntityID() == i.EntityId {
		return state.DisplayName()
	}
	return i.EntityId
}

func (c Configuration) EntityIds() []string {
	var ids []string
	seen := map[string]bool{}
	for _, panel := range c.Panels {
		for _, item := range panel.Items {
			if !seen[item.EntityId] {
				seen[item.EntityId] = true
				ids = append(ids, item.EntityId)
			}
		}
	}
	return ids
}
