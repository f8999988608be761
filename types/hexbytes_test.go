package types

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHexBytesJSON(t *testing.T) {
	c := qt.New(t)
	for _, tc := range []struct {
		in   HexBytes
		want string
	}{
		{in: nil, want: `"0x"`},
		{in: HexBytes{0x00, 0xab, 0xcd}, want: `"0x00abcd"`},
	} {
		data, err := json.Marshal(tc.in)
		c.Assert(err, qt.IsNil)
		c.Assert(string(data), qt.Equals, tc.want)

		var out HexBytes
		c.Assert(json.Unmarshal(data, &out), qt.IsNil)
		c.Assert(out.Equal(tc.in), qt.IsTrue)
	}

	var out HexBytes
	c.Assert(json.Unmarshal([]byte(`"ABCD"`), &out), qt.IsNil)
	c.Assert(out.String(), qt.Equals, "0xabcd")
	c.Assert(json.Unmarshal([]byte(`"0xzz"`), &out), qt.IsNotNil)
	c.Assert(json.Unmarshal([]byte(`12`), &out), qt.IsNotNil)
}
