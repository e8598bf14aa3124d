package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(serviceName+"."+method, req, resp)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Trigger starts a song request.
func (c *Client) Trigger(req TriggerRequest) (*TriggerResponse, error) {
	var resp TriggerResponse
	if err := c.call("Trigger", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SettingsGet returns masked credentials.
func (c *Client) SettingsGet() (*SettingsGetResponse, error) {
	var resp SettingsGetResponse
	if err := c.call("SettingsGet", SettingsGetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SettingsSet stores credentials.
func (c *Client) SettingsSet(req SettingsSetRequest) (*SettingsSetResponse, error) {
	var resp SettingsSetResponse
	if err := c.call("SettingsSet", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
