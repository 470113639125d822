package discord

import "context"

// RESTHost answers one interaction entirely over REST. The gateway transport
// uses it; the HTTP transport uses it for everything after the first callback.
type RESTHost struct {
	client *Client
	id     Snowflake
	token  string
}

// NewRESTHost binds a client to one interaction.
func NewRESTHost(client *Client, in *Interaction) *RESTHost {
	return &RESTHost{client: client, id: in.ID, token: in.Token}
}

// Respond sends the initial callback.
func (h *RESTHost) Respond(ctx context.Context, resp InteractionResponse) error {
	return h.client.CreateInteractionResponse(ctx, h.id, h.token, resp)
}

// EditOriginal edits the original response.
func (h *RESTHost) EditOriginal(ctx context.Context, data MessageData) (*Message, error) {
	return h.client.EditOriginal(ctx, h.token, data)
}

// GetOriginal fetches the original response.
func (h *RESTHost) GetOriginal(ctx context.Context) (*Message, error) {
	return h.client.GetOriginal(ctx, h.token)
}

// CreateFollowup posts a follow-up message.
func (h *RESTHost) CreateFollowup(ctx context.Context, data MessageData) (*Message, error) {
	return h.client.CreateFollowup(ctx, h.token, data)
}
