package mutator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drpcorg/ptree/data"
	"github.com/drpcorg/ptree/path"
	"github.com/drpcorg/ptree/schema"
)

func routerSchema() *schema.Schema {
	return &schema.Schema{
		Name: "router",
		Root: &schema.Node{
			Kind: schema.Struct,
			Fields: []*schema.Node{
				{Name: "hostname", Kind: schema.Scalar, Type: schema.String},
				{Name: "syslog", Kind: schema.Struct, Fields: []*schema.Node{
					{Name: "host", Kind: schema.Scalar, Type: schema.String},
				}},
				{
					Name: "ports", Kind: schema.Array, CType: true,
					Elem: &schema.Node{Kind: schema.Scalar, Type: schema.Uint64},
				},
				{
					Name: "routes", Kind: schema.Table,
					Keys: []string{"addr"}, KeyCType: true, ValueCType: true,
					Entry: &schema.Node{Kind: schema.Struct, Fields: []*schema.Node{
						{Name: "addr", Kind: schema.Scalar, Type: schema.Uint64},
						{Name: "port", Kind: schema.Scalar, Type: schema.Uint64},
					}},
				},
				{
					Name: "ifaces", Kind: schema.Table,
					Keys: []string{"name"}, StringKey: "name",
					Entry: &schema.Node{Kind: schema.Struct, Fields: []*schema.Node{
						{Name: "name", Kind: schema.Scalar, Type: schema.String},
						{Name: "mtu", Kind: schema.Scalar, Type: schema.Int64},
					}},
				},
				{
					Name: "acls", Kind: schema.Table,
					Keys: []string{"name"},
					Entry: &schema.Node{Kind: schema.Struct, Fields: []*schema.Node{
						{Name: "name", Kind: schema.Scalar, Type: schema.String},
						{Name: "act", Kind: schema.Scalar, Type: schema.String},
					}},
				},
			},
		},
	}
}

const baseConfig = `
hostname rtr1;
syslog { host log.example; }
ports 10;
ports 20;
ports 30;
ports 40;
routes { addr 1; port 2; }
ifaces { name eth0; mtu 1500; }
acls { name ssh; act permit; }
`

func baseCfg(t *testing.T, sch *schema.Schema) data.Value {
	cfg, err := data.Parse(sch.Root, baseConfig)
	assert.NoError(t, err)
	return cfg
}

func mustSet(t *testing.T, sch *schema.Schema, cfg data.Value, pathText, payload string) data.Value {
	set, node, err := Set(sch, pathText)
	assert.NoError(t, err)
	sub, err := data.Parse(node, payload)
	assert.NoError(t, err)
	out, err := set(cfg, sub)
	assert.NoError(t, err)
	return out
}

func mustGet(t *testing.T, sch *schema.Schema, cfg data.Value, pathText string) string {
	get, _, err := Get(sch, pathText)
	assert.NoError(t, err)
	printed, err := get(cfg)
	assert.NoError(t, err)
	return printed
}

// set then get yields the payload back, for every node shape
func TestSetGetRoundTrip(t *testing.T) {
	sch := routerSchema()
	cases := []struct{ path, payload string }{
		{"/hostname", "core-2"},
		{"/syslog", "host other.example;"},
		{"/syslog/host", "third.example"},
		{"/ports[3]", "33"},
		{"/routes[addr=1]", "addr 1; port 7;"},
		{"/routes[addr=1]/port", "9"},
		{"/ifaces[name=eth0]/mtu", "9000"},
		{"/acls[name=ssh]/act", "deny"},
	}
	for _, c := range cases {
		cfg := baseCfg(t, sch)
		cfg = mustSet(t, sch, cfg, c.path, c.payload)
		_, node, err := Set(sch, c.path)
		assert.NoError(t, err)
		want, err := data.Parse(node, c.payload)
		assert.NoError(t, err)
		wantPrinted, err := data.Print(node, want)
		assert.NoError(t, err)
		assert.Equal(t, wantPrinted, mustGet(t, sch, cfg, c.path), c.path)
	}
}

func TestSetRoot(t *testing.T) {
	sch := routerSchema()
	cfg := baseCfg(t, sch)
	fresh := mustSet(t, sch, cfg, "/", "hostname other;")
	assert.Equal(t, "other", fresh.(*data.Struct).Get("hostname").(*data.Scalar).Str)
}

func TestSetMissingEntry(t *testing.T) {
	sch := routerSchema()
	set, node, err := Set(sch, "/routes[addr=99]")
	assert.NoError(t, err)
	sub, err := data.Parse(node, "addr 99; port 1;")
	assert.NoError(t, err)
	_, err = set(baseCfg(t, sch), sub)
	assert.ErrorIs(t, err, data.ErrNotFound)
}

func TestSetIndexOutOfRange(t *testing.T) {
	sch := routerSchema()
	set, node, err := Set(sch, "/ports[9]")
	assert.NoError(t, err)
	sub, err := data.Parse(node, "1")
	assert.NoError(t, err)
	_, err = set(baseCfg(t, sch), sub)
	assert.ErrorIs(t, err, data.ErrIndexRange)
}

func mustAdd(t *testing.T, sch *schema.Schema, cfg data.Value, pathText, payload string) data.Value {
	add, node, err := Add(sch, pathText)
	assert.NoError(t, err)
	sub, err := data.ParseEntries(node, payload)
	assert.NoError(t, err)
	out, err := add(cfg, sub)
	assert.NoError(t, err)
	return out
}

// disjoint adds commute
func TestAddCommutes(t *testing.T) {
	sch := routerSchema()
	p1 := "{ addr 10; port 1; } { addr 11; port 2; }"
	p2 := "{ addr 20; port 3; }"

	a := baseCfg(t, sch)
	a = mustAdd(t, sch, a, "/routes", p1)
	a = mustAdd(t, sch, a, "/routes", p2)

	b := baseCfg(t, sch)
	b = mustAdd(t, sch, b, "/routes", p2)
	b = mustAdd(t, sch, b, "/routes", p1)

	assert.True(t, data.Equal(sch.Root, a, b))
}

// an add followed by removing the same keys is the identity
func TestAddRemoveIdentity(t *testing.T) {
	sch := routerSchema()
	initial := baseCfg(t, sch)
	cfg := initial.Clone()

	cfg = mustAdd(t, sch, cfg, "/routes", "{ addr 5; port 6; } { addr 7; port 8; }")
	for _, p := range []string{"/routes[addr=5]", "/routes[addr=7]"} {
		remove, err := Remove(sch, p)
		assert.NoError(t, err)
		var rerr error
		cfg, rerr = remove(cfg)
		assert.NoError(t, rerr)
	}
	assert.True(t, data.Equal(sch.Root, initial, cfg))
}

// a batch containing one duplicate key leaves the table untouched
func TestAddDuplicateAllOrNothing(t *testing.T) {
	sch := routerSchema()
	for _, tc := range []struct{ path, payload string }{
		{"/routes", "{ addr 50; port 1; } { addr 1; port 1; }"},
		{"/ifaces", "{ name new0; mtu 1500; } { name eth0; mtu 1; }"},
		{"/acls", "{ name fresh; act permit; } { name ssh; act deny; }"},
	} {
		cfg := baseCfg(t, sch)
		before, err := data.Print(sch.Root, cfg)
		assert.NoError(t, err)

		add, node, err := Add(sch, tc.path)
		assert.NoError(t, err)
		sub, err := data.ParseEntries(node, tc.payload)
		assert.NoError(t, err)
		_, err = add(cfg, sub)
		assert.ErrorIs(t, err, data.ErrExists, tc.path)

		after, err := data.Print(sch.Root, cfg)
		assert.NoError(t, err)
		assert.Equal(t, before, after, tc.path)
	}
}

func TestAddToPackedArrayReinstalls(t *testing.T) {
	sch := routerSchema()
	cfg := baseCfg(t, sch)
	oldArr := cfg.(*data.Struct).Get("ports")

	cfg = mustAdd(t, sch, cfg, "/ports", "50; 60;")
	newArr := cfg.(*data.Struct).Get("ports")
	assert.NotSame(t, oldArr, newArr)
	assert.Equal(t, 6, data.ArrayLen(newArr))
	printed := mustGet(t, sch, cfg, "/ports")
	assert.Equal(t, "10;\n20;\n30;\n40;\n50;\n60;\n", printed)
}

func TestRemoveFromPackedArray(t *testing.T) {
	sch := routerSchema()
	cfg := baseCfg(t, sch)
	oldArr := cfg.(*data.Struct).Get("ports")

	remove, err := Remove(sch, "/ports[2]")
	assert.NoError(t, err)
	cfg2, err := remove(cfg)
	assert.NoError(t, err)

	newArr := cfg2.(*data.Struct).Get("ports")
	assert.NotSame(t, oldArr, newArr)
	assert.Equal(t, "10;\n30;\n40;\n", mustGet(t, sch, cfg2, "/ports"))
}

func TestRemoveTableEntry(t *testing.T) {
	sch := routerSchema()
	cfg := baseCfg(t, sch)
	remove, err := Remove(sch, "/routes[addr=1]")
	assert.NoError(t, err)
	cfg, err = remove(cfg)
	assert.NoError(t, err)
	assert.Equal(t, 0, data.TableLen(cfg.(*data.Struct).Get("routes")))

	_, err = remove(cfg)
	assert.ErrorIs(t, err, data.ErrNotFound)
}

func TestBadPaths(t *testing.T) {
	sch := routerSchema()

	// remove needs a trailing query
	_, err := Remove(sch, "/routes")
	assert.ErrorIs(t, err, ErrBadPath)
	_, err = Remove(sch, "/hostname")
	assert.ErrorIs(t, err, ErrBadPath)

	// add targets a collection, not an element or scalar
	_, _, err = Add(sch, "/hostname")
	assert.ErrorIs(t, err, ErrBadPath)
	_, _, err = Add(sch, "/routes[addr=1]")
	assert.ErrorIs(t, err, ErrBadPath)
	_, _, err = Add(sch, "/")
	assert.ErrorIs(t, err, ErrBadPath)

	// query on a scalar
	_, _, err = Set(sch, "/hostname[x=1]")
	assert.ErrorIs(t, err, ErrBadPath)

	// unknown member
	_, _, err = Get(sch, "/nope")
	assert.ErrorIs(t, err, path.ErrNotFound)
}

func TestGetPrintsSubtree(t *testing.T) {
	sch := routerSchema()
	cfg := baseCfg(t, sch)
	printed := mustGet(t, sch, cfg, "/routes")
	assert.True(t, strings.Contains(printed, "addr 1;"))
	assert.True(t, strings.Contains(printed, "port 2;"))
}

func TestCompiledOpsAreCached(t *testing.T) {
	sch := routerSchema()
	_, _, err := Get(sch, "/hostname")
	assert.NoError(t, err)
	c, ok := cached(sch, "get", "/hostname")
	assert.True(t, ok)
	assert.NotNil(t, c.get)

	// a path through a table query is cached as well
	_, _, err = Get(sch, "/ifaces[name=eth0]/mtu")
	assert.NoError(t, err)
	_, ok = cached(sch, "get", "/ifaces[name=eth0]/mtu")
	assert.True(t, ok)
}
