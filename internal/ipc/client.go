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

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Docsync.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Docsync.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CacheDoc asks the daemon to fetch and cache one document now.
func (c *Client) CacheDoc(url string) (*CacheDocResponse, error) {
	var resp CacheDocResponse
	if err := c.client.Call("Docsync.CacheDoc", CacheDocRequest{URL: url}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncNow runs one drain pass over retryable queue entries.
func (c *Client) SyncNow() (*SyncNowResponse, error) {
	var resp SyncNowResponse
	if err := c.client.Call("Docsync.SyncNow", SyncNowRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterSync parks a sync-tag registration with the daemon.
func (c *Client) RegisterSync(tag string) (*RegisterSyncResponse, error) {
	var resp RegisterSyncResponse
	if err := c.client.Call("Docsync.RegisterSync", RegisterSyncRequest{Tag: tag}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BackgroundFetch starts a managed download for one URL.
func (c *Client) BackgroundFetch(url string) (*BackgroundFetchResponse, error) {
	var resp BackgroundFetchResponse
	if err := c.client.Call("Docsync.BackgroundFetch", BackgroundFetchRequest{URL: url}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobList lists managed download jobs.
func (c *Client) JobList() (*JobListResponse, error) {
	var resp JobListResponse
	if err := c.client.Call("Docsync.JobList", JobListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events long-polls the broadcast journal from a cursor.
func (c *Client) Events(req EventsRequest) (*EventsResponse, error) {
	var resp EventsResponse
	if err := c.client.Call("Docsync.Events", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns all queue entries.
func (c *Client) QueueList() (*QueueListResponse, error) {
	var resp QueueListResponse
	if err := c.client.Call("Docsync.QueueList", QueueListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRemove removes one entry by URL.
func (c *Client) QueueRemove(url string) (*QueueRemoveResponse, error) {
	var resp QueueRemoveResponse
	if err := c.client.Call("Docsync.QueueRemove", QueueRemoveRequest{URL: url}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClear removes all entries from the queue.
func (c *Client) QueueClear() (*QueueClearResponse, error) {
	var resp QueueClearResponse
	if err := c.client.Call("Docsync.QueueClear", QueueClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClearExhausted removes entries past the retry ceiling.
func (c *Client) QueueClearExhausted() (*QueueClearExhaustedResponse, error) {
	var resp QueueClearExhaustedResponse
	if err := c.client.Call("Docsync.QueueClearExhausted", QueueClearExhaustedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueHealth returns queue diagnostics.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	var resp QueueHealthResponse
	if err := c.client.Call("Docsync.QueueHealth", QueueHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Docsync.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Docsync.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
