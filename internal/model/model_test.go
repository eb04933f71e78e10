package model

import (
	"encoding/json"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    RGB
		wantErr bool
	}{
		{"#ff0080", RGB{R: 0xff, G: 0x00, B: 0x80}, false},
		{"00ff00", RGB{G: 0xff}, false},
		{"#fff", White, false},
		{" #000000 ", Black, false},
		{"#12345", RGB{}, true},
		{"#gg0000", RGB{}, true},
		{"", RGB{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHex(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRGBIsOpaqueColor(t *testing.T) {
	c := color.NRGBAModel.Convert(RGB{R: 10, G: 20, B: 30}).(color.NRGBA)
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, c)
}

func TestRGBJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		C RGB `json:"c"`
	}{RGB{R: 1, G: 2, B: 3}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"c":"#010203"}`, string(b))

	var v struct {
		C RGB `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"c":"#abcdef"}`), &v))
	assert.Equal(t, RGB{R: 0xab, G: 0xcd, B: 0xef}, v.C)
	assert.Error(t, json.Unmarshal([]byte(`{"c":"nope"}`), &v))
}
