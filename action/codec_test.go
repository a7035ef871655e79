package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	acts := []Action{
		{Verb: AddApp, Name: "nic0", Kind: "intel_mp.Intel82599", Config: "pciaddr 0000:01:00.0;"},
		{Verb: RemoveApp, Name: "nic0"},
		{Verb: ReconfigApp, Name: "fw", Kind: "firewall.Firewall", Config: "rules 12;"},
		{Verb: ConnectLink, Link: "nic0.tx -> fw.input"},
		{Verb: DisconnectLink, Link: "nic0.tx -> fw.input"},
	}
	for _, a := range acts {
		frame, err := Encode(a)
		assert.NoError(t, err)
		got, n, err := Decode(frame)
		assert.NoError(t, err)
		assert.Equal(t, len(frame), n)
		assert.Equal(t, a, got)
	}
}

func TestLongConfig(t *testing.T) {
	big := make([]byte, 70000)
	for i := range big {
		big[i] = 'x'
	}
	a := Action{Verb: ReconfigApp, Name: "fw", Config: string(big)}
	frame, err := Encode(a)
	assert.NoError(t, err)
	got, n, err := Decode(frame)
	assert.NoError(t, err)
	assert.Equal(t, len(frame), n)
	assert.Equal(t, a, got)
}

func TestDecodeStream(t *testing.T) {
	a1 := Action{Verb: AddApp, Name: "a", Kind: "k"}
	a2 := Action{Verb: ConnectLink, Link: "a.x -> b.y"}
	f1, _ := Encode(a1)
	f2, _ := Encode(a2)
	buf := append(append([]byte(nil), f1...), f2...)

	got1, n, err := Decode(buf)
	assert.NoError(t, err)
	assert.Equal(t, a1, got1)
	got2, _, err := Decode(buf[n:])
	assert.NoError(t, err)
	assert.Equal(t, a2, got2)
}

func TestErrors(t *testing.T) {
	_, err := Encode(Action{Verb: 'Z'})
	assert.ErrorIs(t, err, ErrUnknownVerb)

	frame, _ := Encode(Action{Verb: RemoveApp, Name: "nic0"})
	_, _, err = Decode(frame[:len(frame)-2])
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = Decode(nil)
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = Decode([]byte{'!', 0})
	assert.ErrorIs(t, err, ErrUnknownVerb)

	// RemoveApp without a name decodes but fails validation
	empty := appendHeader(nil, byte(RemoveApp), 0)
	_, _, err = Decode(empty)
	assert.ErrorIs(t, err, ErrBadOperand)

	// unknown operand record inside a known verb
	body := appendOperand(nil, 'Q', "huh")
	bad := appendHeader(nil, byte(RemoveApp), len(body))
	bad = append(bad, body...)
	_, _, err = Decode(bad)
	assert.ErrorIs(t, err, ErrBadOperand)
}
