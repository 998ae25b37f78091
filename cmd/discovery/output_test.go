package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discoveryScope/internal/model"
)

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   model.Value
		want string
	}{
		{nil, ""},
		{"0xabc", "0xabc"},
		{true, "true"},
		{[]interface{}{"1", "2"}, `["1","2"]`},
		{map[string]interface{}{"a": "1"}, `{"a":"1"}`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatValue(tc.in))
	}
}

func TestRenderSnapshots(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	renderSnapshots(&buf, []model.Snapshot{{
		Name:        "Vault",
		Address:     "0x00000000000000000000000000000000000000aa",
		BlockNumber: 12,
		Fields: map[string]model.FieldResult{
			"owner":  {Field: "owner", Value: "0x00000000000000000000000000000000000000bb"},
			"broken": {Field: "broken", Error: &model.FieldError{Kind: model.ErrorKindReverted, Message: "call reverted"}},
		},
	}})

	out := buf.String()
	assert.Contains(t, out, "Vault")
	assert.Contains(t, out, "@ 12")
	assert.Contains(t, out, "0x00000000000000000000000000000000000000bb")
	assert.Contains(t, out, "reverted")
	assert.Contains(t, out, "1 of 2 fields failed")
	assert.Less(t, strings.Index(out, "broken"), strings.Index(out, "owner"))
}

func TestRenderRange(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	renderRange(&buf, []model.BlockNumberRecord{{Timestamp: 3600, BlockNumber: 7}})
	assert.Contains(t, buf.String(), "1970-01-01T01:00:00Z")
}

func TestReportTime(t *testing.T) {
	ts, err := reportTime("3600")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(3600, 0).UTC(), ts)

	ts, err = reportTime("2023-05-01T13:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 5, 1, 13, 0, 0, 0, time.UTC), ts)

	_, err = reportTime("yesterday")
	require.Error(t, err)

	now, err := reportTime("")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), now, time.Minute)
}
