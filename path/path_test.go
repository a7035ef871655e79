package path

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	segs, err := Parse("/")
	assert.NoError(t, err)
	assert.Empty(t, segs)

	segs, err = Parse("/routes/route[addr=1.2.3.4]/port")
	assert.NoError(t, err)
	assert.Len(t, segs, 3)
	assert.Equal(t, Segment{Name: "routes"}, segs[0])
	assert.Equal(t, "route", segs[1].Name)
	assert.True(t, segs[1].HasQuery)
	assert.Equal(t, map[string]string{"addr": "1.2.3.4"}, segs[1].Query)
	assert.Equal(t, Segment{Name: "port"}, segs[2])
}

func TestParseIndex(t *testing.T) {
	segs, err := Parse("/ports[3]")
	assert.NoError(t, err)
	assert.Equal(t, 3, segs[0].Index)
	assert.True(t, segs[0].HasQuery)

	_, err = Parse("/ports[0]")
	assert.ErrorIs(t, err, ErrBadPath)
	_, err = Parse("/ports[x]")
	assert.ErrorIs(t, err, ErrBadPath)
}

func TestParseMultiKey(t *testing.T) {
	segs, err := Parse(`/acls/acl[name="two words"][prio=4]`)
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "two words", "prio": "4"}, segs[1].Query)
}

func TestParseErrors(t *testing.T) {
	for _, bad := range []string{"", "relative/path", "//x", "/a[unclosed", "/a]b"} {
		_, err := Parse(bad)
		assert.Error(t, err, "path %q", bad)
	}
}

func TestNormalize(t *testing.T) {
	norm, err := Normalize("/next-hop/tab[b=2][a=1]")
	assert.NoError(t, err)
	assert.Equal(t, "/next_hop/tab[a=1][b=2]", norm)

	norm, err = Normalize("/")
	assert.NoError(t, err)
	assert.Equal(t, "/", norm)

	// normalizing is idempotent
	again, err := Normalize(norm)
	assert.NoError(t, err)
	assert.Equal(t, norm, again)
}
