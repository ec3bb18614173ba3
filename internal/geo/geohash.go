// Package geo provides geohash encoding and an R-tree spatial index used to
// answer "which pins are inside this map viewport" queries.
package geo

import "strings"

// DefaultPrecision is used when a caller asks for a non-positive precision.
// Six characters is a cell of roughly 1.2km x 0.6km.
const DefaultPrecision = 6

// validGeohashChars is the geohash base32 alphabet as a lookup set.
// The alphabet excludes 'a', 'i', 'l' and 'o'.
var validGeohashChars = map[rune]bool{
	'0': true, '1': true, '2': true, '3': true, '4': true,
	'5': true, '6': true, '7': true, '8': true, '9': true,
	'b': true, 'c': true, 'd': true, 'e': true, 'f': true,
	'g': true, 'h': true, 'j': true, 'k': true, 'm': true,
	'n': true, 'p': true, 'q': true, 'r': true, 's': true,
	't': true, 'u': true, 'v': true, 'w': true, 'x': true,
	'y': true, 'z': true,
}

const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// Encode encodes a coordinate into a geohash of the given length.
// Bits alternate longitude/latitude starting with longitude.
func Encode(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = DefaultPrecision
	}

	latRange := [2]float64{-90.0, 90.0}
	lngRange := [2]float64{-180.0, 180.0}

	var geohash strings.Builder
	geohash.Grow(precision)

	bits := 0
	var ch uint

	even := true
	for geohash.Len() < precision {
		if even {
			mid := (lngRange[0] + lngRange[1]) / 2
			if lng > mid {
				ch |= (1 << (4 - bits))
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat > mid {
				ch |= (1 << (4 - bits))
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}

		even = !even
		bits++

		if bits == 5 {
			geohash.WriteByte(base32[ch])
			bits = 0
			ch = 0
		}
	}

	return geohash.String()
}

// NormalizePrefix lowercases a geohash prefix and truncates it to maxLen.
// It returns "" when the input is empty, contains characters outside the
// geohash alphabet, or maxLen is less than 1.
func NormalizePrefix(input string, maxLen int) string {
	if input == "" || maxLen < 1 {
		return ""
	}

	lower := strings.ToLower(strings.TrimSpace(input))
	for _, c := range lower {
		if !validGeohashChars[c] {
			return ""
		}
	}

	if len(lower) <= maxLen {
		return lower
	}
	return lower[:maxLen]
}
