package metadata

import (
	"testing"

	"github.com/relaypoint/relaypoint/action"
	"github.com/relaypoint/relaypoint/model"
	storageinmem "github.com/relaypoint/relaypoint/persistence/inmem"
	"github.com/stretchr/testify/require"
)

func newService() MetadataService {
	registry := action.NewRegistry()
	registry.Register(action.NewWebhookAction())
	registry.Register(action.NewDelayAction())
	return NewMetadataService(storageinmem.NewInMemStorage().Relays(), registry)
}

func validRelay() *model.Relay {
	return &model.Relay{
		UserId: "user-1",
		Name:   "welcome mail",
		Active: true,
		Trigger: model.TriggerInstance{
			TriggerType: model.TRIGGER_TYPE_INCOMING_WEBHOOK,
			Name:        "signup hook",
		},
		Actions: []model.ActionInstance{
			{ActionType: action.ACTION_TYPE_DELAY, Name: "wait", Order: 0, Config: map[string]any{"delayMs": 100}},
			{ActionType: action.ACTION_TYPE_WEBHOOK_POST, Name: "notify", Order: 1, Config: map[string]any{"url": "https://example.com/hook"}},
		},
	}
}

func TestValidateRelay(t *testing.T) {
	for scenario, fn := range map[string]func(
		t *testing.T, s MetadataService,
	){
		"test valid relay passes": func(t *testing.T, s MetadataService) {
			require.NoError(t, s.ValidateRelay(validRelay()))
		},
		"test empty name rejected": func(t *testing.T, s MetadataService) {
			relay := validRelay()
			relay.Name = ""
			require.Error(t, s.ValidateRelay(relay))
		},
		"test unknown trigger type rejected": func(t *testing.T, s MetadataService) {
			relay := validRelay()
			relay.Trigger.TriggerType = "CARRIER_PIGEON"
			require.Error(t, s.ValidateRelay(relay))
		},
		"test no actions rejected": func(t *testing.T, s MetadataService) {
			relay := validRelay()
			relay.Actions = nil
			require.Error(t, s.ValidateRelay(relay))
		},
		"test duplicate order rejected": func(t *testing.T, s MetadataService) {
			relay := validRelay()
			relay.Actions[1].Order = 0
			require.Error(t, s.ValidateRelay(relay))
		},
		"test gap in orders rejected": func(t *testing.T, s MetadataService) {
			relay := validRelay()
			relay.Actions[1].Order = 5
			require.Error(t, s.ValidateRelay(relay))
		},
		"test unknown action type rejected": func(t *testing.T, s MetadataService) {
			relay := validRelay()
			relay.Actions[0].ActionType = "NO_SUCH_TYPE"
			require.Error(t, s.ValidateRelay(relay))
		},
		"test invalid action config rejected": func(t *testing.T, s MetadataService) {
			relay := validRelay()
			relay.Actions[1].Config = map[string]any{}
			require.Error(t, s.ValidateRelay(relay))
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, newService())
		})
	}
}

func TestSaveRelay(t *testing.T) {
	s := newService()

	saved, err := s.SaveRelay(validRelay())
	require.NoError(t, err)
	require.NotEmpty(t, saved.Id)
	require.False(t, saved.CreatedAt.IsZero())

	fetched, err := s.GetRelay(saved.Id)
	require.NoError(t, err)
	require.Equal(t, saved.Name, fetched.Name)

	relays, err := s.ListRelays("user-1")
	require.NoError(t, err)
	require.Len(t, relays, 1)

	relays, err = s.ListRelays("someone-else")
	require.NoError(t, err)
	require.Empty(t, relays)

	// Invalid definitions never reach storage.
	bad := validRelay()
	bad.Actions[0].ActionType = "NO_SUCH_TYPE"
	_, err = s.SaveRelay(bad)
	require.Error(t, err)
}
