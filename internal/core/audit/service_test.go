package audit

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryToRow(t *testing.T) {
	actor := uuid.New()
	row, err := Entry{
		TenantID:    uuid.New(),
		ActorUserID: &actor,
		Action:      ActionExclude,
		Entity:      EntityCampaignContact,
		EntityID:    uuid.NewString(),
		OldValue:    map[string]string{"status": "failed"},
		NewValue:    make(chan int),
	}.toRow()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"failed"}`, string(row.OldValue))
	assert.Nil(t, row.NewValue)
	assert.Equal(t, &actor, row.ActorUserID)
}

func TestEntryRequiresActionAndEntity(t *testing.T) {
	_, err := Entry{Action: ActionRetry}.toRow()
	assert.Error(t, err)
	_, err = Entry{Entity: EntityConversation}.toRow()
	assert.Error(t, err)
}
