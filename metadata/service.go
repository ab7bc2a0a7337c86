package metadata

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relaypoint/relaypoint/action"
	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
)

type MetadataService interface {
	SaveRelay(relay *model.Relay) (*model.Relay, error)
	GetRelay(id string) (*model.Relay, error)
	ListRelays(userId string) ([]*model.Relay, error)
	ValidateRelay(relay *model.Relay) error
}

type MetadataServiceImpl struct {
	relayDao persistence.RelayDao
	registry *action.Registry
}

func NewMetadataService(relayDao persistence.RelayDao, registry *action.Registry) MetadataService {
	return &MetadataServiceImpl{
		relayDao: relayDao,
		registry: registry,
	}
}

func (s *MetadataServiceImpl) SaveRelay(relay *model.Relay) (*model.Relay, error) {
	if err := s.ValidateRelay(relay); err != nil {
		return nil, err
	}
	if len(relay.Id) == 0 {
		relay.Id = uuid.New().String()
		relay.CreatedAt = time.Now()
	}
	if err := s.relayDao.Save(relay); err != nil {
		return nil, err
	}
	return relay, nil
}

func (s *MetadataServiceImpl) GetRelay(id string) (*model.Relay, error) {
	return s.relayDao.Get(id)
}

func (s *MetadataServiceImpl) ListRelays(userId string) ([]*model.Relay, error) {
	return s.relayDao.List(userId)
}

// ValidateRelay rejects definitions the execution engine could not run:
// unknown trigger or action types, an empty pipeline, or a non-dense order
// sequence. Orders must cover exactly 0..N-1 with one action each, since the
// consumer addresses stages by order.
func (s *MetadataServiceImpl) ValidateRelay(relay *model.Relay) error {
	if len(relay.Name) == 0 {
		return fmt.Errorf("relay name can not be empty")
	}
	if len(relay.UserId) == 0 {
		return fmt.Errorf("relay userId can not be empty")
	}
	switch relay.Trigger.TriggerType {
	case model.TRIGGER_TYPE_INCOMING_WEBHOOK, model.TRIGGER_TYPE_SCHEDULE, model.TRIGGER_TYPE_EMAIL_RECEIVED:
	default:
		return fmt.Errorf("unknown trigger type %s", relay.Trigger.TriggerType)
	}
	if len(relay.Actions) == 0 {
		return fmt.Errorf("relay must define at least one action")
	}
	seen := make(map[int]bool)
	for _, act := range relay.Actions {
		if act.Order < 0 || act.Order >= len(relay.Actions) {
			return fmt.Errorf("action %s order %d out of range [0,%d)", act.Name, act.Order, len(relay.Actions))
		}
		if seen[act.Order] {
			return fmt.Errorf("action order %d is duplicate", act.Order)
		}
		seen[act.Order] = true
		handler, ok := s.registry.Get(act.ActionType)
		if !ok {
			return fmt.Errorf("unknown action type %s for action %s", act.ActionType, act.Name)
		}
		if err := handler.Validate(act.Config); err != nil {
			return fmt.Errorf("invalid config for action %s: %w", act.Name, err)
		}
	}
	return nil
}
