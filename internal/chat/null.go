package chat

import "context"

// NullClient satisfies Client when no messaging channel is configured.
// Listener bookkeeping still works so the REST API behaves, but no
// messages ever arrive.
type NullClient struct{}

func NewNullClient() *NullClient {
	return &NullClient{}
}

func (n *NullClient) AddListenChat(group string) error    { return nil }
func (n *NullClient) RemoveListenChat(group string) error { return nil }

func (n *NullClient) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
