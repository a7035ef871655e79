package ptree

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/drpcorg/ptree/action"
	"github.com/drpcorg/ptree/channel"
	"github.com/drpcorg/ptree/data"
	"github.com/drpcorg/ptree/graph"
	"github.com/drpcorg/ptree/rpc"
	"github.com/drpcorg/ptree/schema"
)

// The end-to-end harness: a real leader over a real socket and a real
// ring, driven tick by tick with a mock clock.

const testSchemaName = "test-router"

var routesNode = &schema.Node{
	Name: "routes", Kind: schema.Table,
	Keys: []string{"addr"}, KeyCType: true, ValueCType: true,
	Entry: &schema.Node{Kind: schema.Struct, Fields: []*schema.Node{
		{Name: "addr", Kind: schema.Scalar, Type: schema.Uint64},
		{Name: "port", Kind: schema.Scalar, Type: schema.Uint64},
	}},
}

var registerOnce sync.Once

func registerTestSchema() {
	registerOnce.Do(func() {
		schema.Register(&schema.Schema{
			Name: testSchemaName,
			Root: &schema.Node{
				Kind: schema.Struct,
				Fields: []*schema.Node{
					{Name: "hostname", Kind: schema.Scalar, Type: schema.String},
					{
						Name: "ports", Kind: schema.Array, CType: true,
						Elem: &schema.Node{Kind: schema.Scalar, Type: schema.Uint64},
					},
					routesNode,
				},
			},
		})
	})
}

// testSetup compiles a config into one app per route hanging off a nic.
func testSetup(cfg data.Value) (*graph.Graph, error) {
	g := graph.New()
	g.AddApp("nic", "intel.Intel82599", "")
	s := cfg.(*data.Struct)
	data.TableIterate(routesNode, s.Get("routes"), func(e *data.Struct) bool {
		name := fmt.Sprintf("route-%d", e.Get("addr").(*data.Scalar).Uint)
		cfgText := fmt.Sprintf("port %d;", e.Get("port").(*data.Scalar).Uint)
		g.AddApp(name, "route.Route", cfgText)
		g.Connect(fmt.Sprintf("nic.tx -> %s.rx", name))
		return true
	})
	return g, nil
}

type harness struct {
	leader *Leader
	mock   *clock.Mock
	sock   string
	root   string
	pid    int
	ring   *channel.Ring
}

const initialConfig = "hostname rtr1;\nroutes { addr 1; port 2; }\n"

func newHarness(t *testing.T, ringCap int) *harness {
	registerTestSchema()
	root := t.TempDir()
	pid := 54321

	h := &harness{mock: clock.NewMock(), root: root, pid: pid}
	if ringCap > 0 {
		dir, err := channel.PidDir(root, pid)
		assert.NoError(t, err)
		h.ring, err = channel.Create(filepath.Join(dir, channel.ChannelName), ringCap)
		assert.NoError(t, err)
		t.Cleanup(func() { h.ring.Close() })
	}

	leader, err := New(Options{
		Setup:         testSetup,
		InitialConfig: initialConfig,
		SchemaName:    testSchemaName,
		FollowerPids:  []int{pid},
		ShmRoot:       root,
		Clock:         h.mock,
	})
	assert.NoError(t, err)
	t.Cleanup(func() { leader.Stop() })

	h.leader = leader
	h.sock = filepath.Join(root, strconv.Itoa(os.Getpid()), "config-leader-socket")
	return h
}

func (h *harness) tick() {
	h.mock.Add(20 * time.Millisecond)
	h.leader.Pull()
}

func (h *harness) call(t *testing.T, method string, args rpc.Args) rpc.Reply {
	conn, err := net.Dial("unix", h.sock)
	assert.NoError(t, err)
	defer conn.Close()

	payload, err := json.Marshal(rpc.Request{Method: method, Args: args})
	assert.NoError(t, err)
	_, err = fmt.Fprintf(conn, "%d\n%s", len(payload), payload)
	assert.NoError(t, err)

	h.tick()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	rd := bufio.NewReader(conn)
	line, err := rd.ReadString('\n')
	assert.NoError(t, err)
	n, err := strconv.Atoi(strings.TrimSuffix(line, "\n"))
	assert.NoError(t, err)
	body := make([]byte, n)
	_, err = io.ReadFull(rd, body)
	assert.NoError(t, err)

	var reply rpc.Reply
	assert.NoError(t, json.Unmarshal(body, &reply))
	return reply
}

func (h *harness) getConfig(t *testing.T) string {
	reply := h.call(t, "get-config", rpc.Args{Schema: testSchemaName, Path: "/"})
	assert.Empty(t, reply.Error)
	var res rpc.GetConfigResult
	assert.NoError(t, json.Unmarshal(reply.Result, &res))
	return res.Config
}

func (h *harness) drainRing() []action.Action {
	var acts []action.Action
	for {
		frame, ok := h.ring.Get()
		if !ok {
			return acts
		}
		a, _, err := action.Decode(frame)
		if err != nil {
			panic(err)
		}
		acts = append(acts, a)
	}
}

func TestDescribe(t *testing.T) {
	h := newHarness(t, channel.DefaultCap)

	reply := h.call(t, "describe", rpc.Args{})
	assert.Empty(t, reply.Error)
	var desc rpc.DescribeResult
	assert.NoError(t, json.Unmarshal(reply.Result, &desc))
	assert.Equal(t, testSchemaName, desc.NativeSchema)
}

func TestSetRootShipsDiff(t *testing.T) {
	h := newHarness(t, channel.DefaultCap)

	oldGraph, err := testSetup(h.leader.config)
	assert.NoError(t, err)

	fresh := "hostname rtr1;\nroutes { addr 1; port 2; }\nroutes { addr 9; port 3; }\n"
	reply := h.call(t, "set-config", rpc.Args{Schema: testSchemaName, Path: "/", Config: fresh})
	assert.Empty(t, reply.Error)

	newCfg, err := data.Parse(h.leader.sch.Root, fresh)
	assert.NoError(t, err)
	newGraph, err := testSetup(newCfg)
	assert.NoError(t, err)

	h.tick()
	assert.Equal(t, graph.Diff(oldGraph, newGraph), h.drainRing())

	// the committed config is what we sent, canonically printed
	want, err := data.Print(h.leader.sch.Root, newCfg)
	assert.NoError(t, err)
	assert.Equal(t, want, h.getConfig(t))
}

func TestSchemaMismatchRejected(t *testing.T) {
	h := newHarness(t, channel.DefaultCap)

	before := h.getConfig(t)
	reply := h.call(t, "set-config", rpc.Args{Schema: "other-schema", Path: "/", Config: "hostname x;"})
	assert.Contains(t, reply.Error, "schema")
	assert.Equal(t, before, h.getConfig(t))
}

func TestDuplicateAddLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, channel.DefaultCap)

	before := h.getConfig(t)
	payload := "{ addr 9; port 1; } { addr 1; port 5; }" // addr 1 already exists
	reply := h.call(t, "add-config", rpc.Args{Schema: testSchemaName, Path: "/routes", Config: payload})
	assert.NotEmpty(t, reply.Error)

	// a failed RPC leaves the leader byte-for-byte as it was
	describe := h.call(t, "describe", rpc.Args{})
	var desc rpc.DescribeResult
	assert.NoError(t, json.Unmarshal(describe.Result, &desc))
	assert.Equal(t, testSchemaName, desc.NativeSchema)
	assert.Equal(t, before, h.getConfig(t))

	h.tick()
	assert.Empty(t, h.drainRing())
	assert.Equal(t, uint64(0), h.leader.commits)
}

func TestRemoveConfig(t *testing.T) {
	h := newHarness(t, channel.DefaultCap)

	reply := h.call(t, "remove-config", rpc.Args{Schema: testSchemaName, Path: "/routes[addr=1]"})
	assert.Empty(t, reply.Error)
	assert.NotContains(t, h.getConfig(t), "addr 1;")

	h.tick()
	acts := h.drainRing()
	assert.Equal(t, []action.Action{
		{Verb: action.DisconnectLink, Link: "nic.tx -> route-1.rx"},
		{Verb: action.RemoveApp, Name: "route-1"},
	}, acts)
}

func TestBackpressurePreservesOrder(t *testing.T) {
	// a ring this small holds only a couple of frames per tick
	h := newHarness(t, 128)

	var fresh strings.Builder
	fresh.WriteString("hostname rtr1;\nroutes { addr 1; port 2; }\n")
	for i := 10; i < 16; i++ {
		fmt.Fprintf(&fresh, "routes { addr %d; port 1; }\n", i)
	}
	oldGraph, _ := testSetup(h.leader.config)
	reply := h.call(t, "set-config", rpc.Args{Schema: testSchemaName, Path: "/", Config: fresh.String()})
	assert.Empty(t, reply.Error)

	newCfg, err := data.Parse(h.leader.sch.Root, fresh.String())
	assert.NoError(t, err)
	newGraph, _ := testSetup(newCfg)
	want := graph.Diff(oldGraph, newGraph)

	h.tick()
	follower := h.leader.followers[0]
	assert.Greater(t, follower.Pending(), 0, "ring must have pushed back")
	assert.Greater(t, follower.RingFull, uint64(0))

	// drain and tick until the outbox empties; order must hold end to end
	var got []action.Action
	for i := 0; i < 20 && len(got) < len(want); i++ {
		got = append(got, h.drainRing()...)
		h.tick()
	}
	got = append(got, h.drainRing()...)
	assert.Equal(t, want, got)
	assert.Equal(t, 0, follower.Pending())
}

func TestLazyChannelOpen(t *testing.T) {
	// no ring yet: the leader must keep the outbox and keep retrying
	h := newHarness(t, 0)

	reply := h.call(t, "remove-config", rpc.Args{Schema: testSchemaName, Path: "/routes[addr=1]"})
	assert.Empty(t, reply.Error)

	h.tick()
	follower := h.leader.followers[0]
	assert.Equal(t, 2, follower.Pending())

	// the worker comes up and creates its ring
	dir, err := channel.PidDir(h.root, h.pid)
	assert.NoError(t, err)
	ring, err := channel.Create(filepath.Join(dir, channel.ChannelName), channel.DefaultCap)
	assert.NoError(t, err)
	defer ring.Close()

	h.tick()
	assert.Equal(t, 0, follower.Pending())
	frame, ok := ring.Get()
	assert.True(t, ok)
	a, _, err := action.Decode(frame)
	assert.NoError(t, err)
	assert.Equal(t, action.DisconnectLink, a.Verb)
}

func TestSocketRemovedOnStop(t *testing.T) {
	h := newHarness(t, channel.DefaultCap)
	_, err := os.Stat(h.sock)
	assert.NoError(t, err)

	assert.NoError(t, h.leader.Stop())
	_, err = os.Stat(h.sock)
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotStore(t *testing.T) {
	registerTestSchema()
	root := t.TempDir()
	mock := clock.NewMock()
	leader, err := New(Options{
		Setup:         testSetup,
		InitialConfig: initialConfig,
		SchemaName:    testSchemaName,
		ShmRoot:       root,
		StoreDir:      filepath.Join(root, "store"),
		Clock:         mock,
	})
	assert.NoError(t, err)
	defer leader.Stop()

	// nothing stored before the first commit
	snap, err := leader.store.LastCommitted(testSchemaName)
	assert.NoError(t, err)
	assert.Equal(t, "", snap)

	err = leader.SetConfig(rpc.Args{
		Schema: testSchemaName, Path: "/hostname", Config: "rtr2",
	})
	assert.NoError(t, err)

	snap, err = leader.store.LastCommitted(testSchemaName)
	assert.NoError(t, err)
	current, err := leader.CurrentConfig()
	assert.NoError(t, err)
	assert.Equal(t, current, snap)
	assert.Contains(t, snap, "hostname rtr2;")
}

func TestCollector(t *testing.T) {
	h := newHarness(t, channel.DefaultCap)
	h.call(t, "describe", rpc.Args{})

	reg := prometheus.NewPedanticRegistry()
	assert.NoError(t, reg.Register(NewLeaderCollector(h.leader)))
	families, err := reg.Gather()
	assert.NoError(t, err)

	names := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			if m.GetCounter() != nil {
				names[f.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), names["ptree_rpc_served_total"])
	assert.Contains(t, names, "ptree_actions_shipped_total")
}
