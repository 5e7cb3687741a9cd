package event

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/willowbee/nestsdm/state"
	"github.com/willowbee/nestsdm/trait"
)

type EventError string

func (e EventError) Error() string {
	return string(e)
}

const (
	// ErrMalformedEvent marks a payload that failed validation. The event is
	// skippable; the registry was not touched.
	ErrMalformedEvent = EventError("malformed event payload")

	// ErrStaleState marks an update for a resource the registry does not
	// know. Recovery requires a full re-sync from the REST API.
	ErrStaleState = EventError("registry out of sync with event stream")
)

type Type string

const (
	TypeResourceUpdated Type = "resourceUpdated"
	TypeResourceCreated Type = "resourceCreated"
	TypeResourceDeleted Type = "resourceDeleted"
	TypeRelationUpdated Type = "relationUpdated"
)

// Relation kinds carried by relationUpdate payloads.
const (
	RelationCreated = "CREATED"
	RelationUpdated = "UPDATED"
	RelationDeleted = "DELETED"
)

// RelationUpdate describes a change to the relationship between a device
// (Object) and a structure or room (Subject).
type RelationUpdate struct {
	Type    string
	Subject string
	Object  string
}

// Message is one decoded notification from the event feed.
type Message struct {
	ID         string
	Timestamp  time.Time
	Type       Type
	Resource   string
	DeviceType state.DeviceType
	Traits     trait.Set
	Relation   *RelationUpdate
}

// Parse validates and decodes a raw feed payload. The payload carries an
// eventId, a timestamp, and either a resourceUpdate stanza (name plus trait
// deltas) or a relationUpdate stanza. An explicit top-level eventType
// distinguishes resource creation and deletion; when absent the type is
// derived from which stanza is present.
func Parse(payload []byte) (Message, error) {
	if !gjson.ValidBytes(payload) {
		return Message{}, fmt.Errorf("invalid json: %w", ErrMalformedEvent)
	}

	m := Message{
		ID: gjson.GetBytes(payload, "eventId").String(),
	}

	tsField := gjson.GetBytes(payload, "timestamp")
	if !tsField.Exists() {
		return Message{}, fmt.Errorf("missing timestamp: %w", ErrMalformedEvent)
	}

	ts, err := time.Parse(time.RFC3339, tsField.String())
	if err != nil {
		return Message{}, fmt.Errorf("unparseable timestamp '%s': %w", tsField.String(), ErrMalformedEvent)
	}

	m.Timestamp = ts

	resourceUpdate := gjson.GetBytes(payload, "resourceUpdate")
	relationUpdate := gjson.GetBytes(payload, "relationUpdate")

	switch eventType := gjson.GetBytes(payload, "eventType"); {
	case eventType.Exists():
		switch Type(eventType.String()) {
		case TypeResourceUpdated, TypeResourceCreated, TypeResourceDeleted, TypeRelationUpdated:
			m.Type = Type(eventType.String())
		default:
			return Message{}, fmt.Errorf("unknown event type '%s': %w", eventType.String(), ErrMalformedEvent)
		}
	case relationUpdate.Exists():
		m.Type = TypeRelationUpdated
	case resourceUpdate.Exists():
		m.Type = TypeResourceUpdated
	default:
		return Message{}, fmt.Errorf("no resourceUpdate or relationUpdate stanza: %w", ErrMalformedEvent)
	}

	if m.Type == TypeRelationUpdated {
		relation, err := parseRelation(relationUpdate)
		if err != nil {
			return Message{}, err
		}

		m.Relation = relation
		m.Resource = relation.Object

		return m, nil
	}

	name := resourceUpdate.Get("name")
	if !name.Exists() || name.String() == "" {
		return Message{}, fmt.Errorf("resourceUpdate missing name: %w", ErrMalformedEvent)
	}

	m.Resource = name.String()
	m.DeviceType = state.DeviceType(resourceUpdate.Get("type").String())
	m.Traits = parseTraits(resourceUpdate.Get("traits"))

	return m, nil
}

func parseRelation(relationUpdate gjson.Result) (*RelationUpdate, error) {
	if !relationUpdate.Exists() {
		return nil, fmt.Errorf("missing relationUpdate stanza: %w", ErrMalformedEvent)
	}

	relation := &RelationUpdate{
		Type:    relationUpdate.Get("type").String(),
		Subject: relationUpdate.Get("subject").String(),
		Object:  relationUpdate.Get("object").String(),
	}

	switch relation.Type {
	case RelationCreated, RelationUpdated, RelationDeleted:
	default:
		return nil, fmt.Errorf("unknown relation type '%s': %w", relation.Type, ErrMalformedEvent)
	}

	if relation.Object == "" {
		return nil, fmt.Errorf("relationUpdate missing object: %w", ErrMalformedEvent)
	}

	if relation.Subject == "" && relation.Type != RelationDeleted {
		return nil, fmt.Errorf("relationUpdate missing subject: %w", ErrMalformedEvent)
	}

	return relation, nil
}

func parseTraits(traits gjson.Result) trait.Set {
	if !traits.Exists() || !traits.IsObject() {
		return nil
	}

	result := trait.Set{}

	traits.ForEach(func(name, fields gjson.Result) bool {
		traitFields := trait.Fields{}

		if fields.IsObject() {
			for key, value := range fields.Map() {
				traitFields[key] = value.Value()
			}
		}

		result[name.String()] = traitFields
		return true
	})

	return result
}
