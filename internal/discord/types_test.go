package discord

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commandPayload = `{
	"id": "900",
	"application_id": "42",
	"type": 2,
	"guild_id": "77",
	"token": "tok",
	"member": {"user": {"id": "555", "username": "builder"}},
	"data": {
		"name": "bind",
		"options": [{
			"name": "group",
			"type": 1,
			"options": [
				{"name": "group_id", "type": 4, "value": 1234},
				{"name": "bind_mode", "type": 3, "value": "specific_roles"}
			]
		}]
	}
}`

func TestDecodeCommandInteraction(t *testing.T) {
	var in Interaction
	require.NoError(t, json.Unmarshal([]byte(commandPayload), &in))

	assert.Equal(t, InteractionApplicationCommand, in.Type)
	assert.Equal(t, Snowflake(555), in.ActorID())
	assert.Equal(t, Snowflake(77), in.GuildID)
	assert.Equal(t, "bind", in.CommandName())

	sub, opts := in.Subcommand()
	assert.Equal(t, "group", sub)
	id, ok := IntOption(opts, "group_id")
	require.True(t, ok)
	assert.Equal(t, int64(1234), id)
	mode, ok := StringOption(opts, "bind_mode")
	require.True(t, ok)
	assert.Equal(t, "specific_roles", mode)
}

func TestSubmittedValues(t *testing.T) {
	in := Interaction{Type: InteractionModalSubmit, Data: &InteractionData{
		CustomID: "x",
		Components: []Component{{
			Type:       ComponentActionRow,
			Components: []Component{{Type: ComponentTextInput, CustomID: "role_name", Value: "Officers"}},
		}},
	}}
	assert.Equal(t, map[string]string{"role_name": "Officers"}, in.SubmittedValues())
}

func TestSnowflakeJSON(t *testing.T) {
	b, err := json.Marshal(Snowflake(12))
	require.NoError(t, err)
	assert.Equal(t, `"12"`, string(b))

	var s Snowflake
	require.NoError(t, json.Unmarshal([]byte(`34`), &s))
	assert.Equal(t, Snowflake(34), s)
}
