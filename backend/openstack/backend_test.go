package openstack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gammadia/compound/backend/internal"
	"github.com/gammadia/compound/cloud"
	th "github.com/gophercloud/gophercloud/testhelper"
	fake "github.com/gophercloud/gophercloud/testhelper/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	internal.RetryDelay = time.Millisecond
}

var silentLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeCompute is a minimal compute API: servers become active after a number of polls.
type fakeCompute struct {
	mu sync.Mutex

	// Number of status polls before a server reports the final status
	pollsBeforeReady int
	finalStatus      string

	created []map[string]any
	polls   map[string]int
	deleted []string
}

func setupFakeCompute(t *testing.T) *fakeCompute {
	th.SetupHTTP()
	t.Cleanup(th.TeardownHTTP)

	compute := &fakeCompute{finalStatus: "ACTIVE", polls: make(map[string]int)}

	th.Mux.HandleFunc("/servers", func(w http.ResponseWriter, r *http.Request) {
		th.TestMethod(t, r, http.MethodPost)
		th.TestHeader(t, r, "X-Auth-Token", fake.TokenID)

		var body struct {
			Server map[string]any `json:"server"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		compute.mu.Lock()
		compute.created = append(compute.created, body.Server)
		id := fmt.Sprintf("server-%d", len(compute.created))
		compute.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"server": {"id": "%s", "adminPass": "secret"}}`, id)
	})

	th.Mux.HandleFunc("/servers/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/servers/")

		compute.mu.Lock()
		defer compute.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			compute.polls[id]++
			status := "BUILD"
			if compute.polls[id] > compute.pollsBeforeReady {
				status = compute.finalStatus
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"server": {"id": "%s", "name": "node", "status": "%s"}}`, id, status)
		case http.MethodDelete:
			compute.deleted = append(compute.deleted, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	return compute
}

func (c *fakeCompute) getCreated() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.created...)
}

func (c *fakeCompute) getDeleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}

func newTestBackend(config Config) *Backend {
	config.Logger = silentLogger
	config.PollInterval = time.Millisecond
	if config.Image == "" {
		config.Image = "ubuntu-24.04"
	}
	if config.Flavor == "" {
		config.Flavor = "m1.small"
	}
	return NewWithClient(config, fake.ServiceClient())
}

func provisionOne(t *testing.T, backend *Backend, label string) (cloud.Node, error) {
	t.Helper()
	pending, err := backend.Provision(context.Background(), label, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return pending[0].Node.Get(ctx)
}

func TestProvisionWaitsForActiveServer(t *testing.T) {
	compute := setupFakeCompute(t)
	compute.pollsBeforeReady = 2
	backend := newTestBackend(Config{
		Flavors:        map[string]string{"postgres": "m1.large"},
		SecurityGroups: []string{"default"},
		KeyName:        "ops",
	})

	node, err := provisionOne(t, backend, "postgres")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(node.Name(), "compound-postgres-"))
	assert.Equal(t, "server-1", node.(*Node).ServerID())
	assert.Equal(t, []*Node{node.(*Node)}, backend.Nodes())

	created := compute.getCreated()
	require.Len(t, created, 1)
	assert.Equal(t, node.Name(), created[0]["name"])
	assert.Equal(t, "ubuntu-24.04", created[0]["imageRef"])
	assert.Equal(t, "m1.large", created[0]["flavorRef"])
	assert.Equal(t, "ops", created[0]["key_name"])
	assert.Equal(t, "postgres", created[0]["metadata"].(map[string]any)["compound-label"])
	assert.Equal(t, 3, compute.polls["server-1"])
}

func TestProvisionRequiresImageAndFlavor(t *testing.T) {
	backend := NewWithClient(Config{Logger: silentLogger, Image: "ubuntu-24.04"}, nil)
	_, err := backend.Provision(context.Background(), "web", 1)
	assert.EqualError(t, err, "no flavor configured for label 'web'")

	backend = NewWithClient(Config{Logger: silentLogger, Flavor: "m1.small"}, nil)
	_, err = backend.Provision(context.Background(), "web", 1)
	assert.EqualError(t, err, "no image configured for label 'web'")
}

func TestProvisionErrorStateDeletesServer(t *testing.T) {
	compute := setupFakeCompute(t)
	compute.finalStatus = "ERROR"
	backend := newTestBackend(Config{})

	_, err := provisionOne(t, backend, "web")
	assert.ErrorContains(t, err, "is in error state")
	assert.Equal(t, []string{"server-1"}, compute.getDeleted())
	assert.Empty(t, backend.Nodes())
}

func TestProvisionReadyTimeoutDeletesServer(t *testing.T) {
	compute := setupFakeCompute(t)
	compute.pollsBeforeReady = 1_000_000
	backend := newTestBackend(Config{ReadyTimeout: 50 * time.Millisecond})

	_, err := provisionOne(t, backend, "web")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"server-1"}, compute.getDeleted())
}

func TestTerminate(t *testing.T) {
	compute := setupFakeCompute(t)
	backend := newTestBackend(Config{})

	node, err := provisionOne(t, backend, "web")
	require.NoError(t, err)

	terminator := node.(cloud.Terminator)
	require.NoError(t, terminator.Terminate(context.Background()))
	require.NoError(t, terminator.Terminate(context.Background()))

	assert.Equal(t, []string{"server-1"}, compute.getDeleted(), "deleted once")
	assert.Empty(t, backend.Nodes())
}

func TestShutdownSkipsRetainedNodes(t *testing.T) {
	compute := setupFakeCompute(t)
	backend := newTestBackend(Config{})

	retained, err := provisionOne(t, backend, "web")
	require.NoError(t, err)
	_, err = provisionOne(t, backend, "web")
	require.NoError(t, err)
	retained.(cloud.Retainer).SetRetention(cloud.RetentionAlways)

	require.NoError(t, backend.Shutdown(context.Background()))

	assert.Equal(t, []string{"server-2"}, compute.getDeleted())
	assert.Equal(t, []*Node{retained.(*Node)}, backend.Nodes())
}

func TestProvisionCancelledDeletesServerBeforeResolving(t *testing.T) {
	compute := setupFakeCompute(t)
	compute.pollsBeforeReady = 1_000_000
	backend := newTestBackend(Config{ReadyTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	pending, err := backend.Provision(ctx, "web", 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.Eventually(t, func() bool { return len(compute.getCreated()) == 1 }, 5*time.Second, time.Millisecond)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	_, err = pending[0].Node.Get(waitCtx)
	assert.ErrorIs(t, err, context.Canceled)

	// The server is gone by the time the node resolves
	assert.Equal(t, []string{"server-1"}, compute.getDeleted())
	assert.Empty(t, backend.Nodes())
}
