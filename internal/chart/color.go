package chart

import (
	"image/color"
	"strconv"
	"strings"

	"gonum.org/v1/plot/plotutil"
)

// named covers the single-letter and common CSS names scripts tend to pass.
var named = map[string]color.RGBA{
	"b":         {31, 119, 180, 255},
	"blue":      {31, 119, 180, 255},
	"g":         {44, 160, 44, 255},
	"green":     {44, 160, 44, 255},
	"r":         {214, 39, 40, 255},
	"red":       {214, 39, 40, 255},
	"c":         {23, 190, 207, 255},
	"cyan":      {23, 190, 207, 255},
	"m":         {227, 119, 194, 255},
	"magenta":   {227, 119, 194, 255},
	"y":         {188, 189, 34, 255},
	"yellow":    {188, 189, 34, 255},
	"k":         {0, 0, 0, 255},
	"black":     {0, 0, 0, 255},
	"w":         {255, 255, 255, 255},
	"white":     {255, 255, 255, 255},
	"orange":    {255, 127, 14, 255},
	"purple":    {148, 103, 189, 255},
	"brown":     {140, 86, 75, 255},
	"pink":      {247, 182, 210, 255},
	"gray":      {127, 127, 127, 255},
	"grey":      {127, 127, 127, 255},
	"navy":      {0, 0, 128, 255},
	"teal":      {0, 128, 128, 255},
	"skyblue":   {135, 206, 235, 255},
	"steelblue": {70, 130, 180, 255},
	"coral":     {255, 127, 80, 255},
	"salmon":    {250, 128, 114, 255},
	"gold":      {255, 215, 0, 255},
	"olive":     {128, 128, 0, 255},
}

// resolveColor maps a matplotlib-style color spec to a color. Unknown or empty
// specs fall back to the i-th palette color.
func resolveColor(spec string, i int) color.Color {
	s := strings.ToLower(strings.TrimSpace(spec))
	s = strings.TrimPrefix(s, "tab:")
	if c, ok := named[s]; ok {
		return c
	}
	if strings.HasPrefix(s, "#") && (len(s) == 7 || len(s) == 9) {
		if v, err := strconv.ParseUint(s[1:7], 16, 32); err == nil {
			return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
		}
	}
	return plotutil.Color(i)
}
