// Package healpix maps sky positions to HEALPix pixels in nest and ring
// ordering and converts between orderings and resolutions.
//
// Positions are equatorial (RA, Dec) in degrees. Pixel indices are int64;
// nside must be a power of two in [1, 2^29].
package healpix

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

var (
	ErrInvalidCoordinate = errors.New("invalid sky coordinate")
	ErrInvalidNside      = errors.New("invalid nside")
	ErrInvalidPixel      = errors.New("pixel index out of range")
)

// MaxNside is the largest supported resolution.
const MaxNside = 1 << 29

// Ordering is the pixel numbering scheme.
type Ordering int

const (
	Nest Ordering = iota
	Ring
)

func (o Ordering) String() string {
	if o == Ring {
		return "ring"
	}
	return "nest"
}

// ParseOrdering accepts "nest", "nested" or "ring" in any case.
func ParseOrdering(s string) (Ordering, error) {
	switch strings.ToLower(s) {
	case "", "nest", "nested":
		return Nest, nil
	case "ring":
		return Ring, nil
	}
	return Nest, fmt.Errorf("unknown ordering %q", s)
}

// face layout tables
var (
	jrll = [12]int64{2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4}
	jpll = [12]int64{1, 3, 5, 7, 0, 2, 4, 6, 1, 3, 5, 7}
)

// Nside2Npix returns 12·nside².
func Nside2Npix(nside int64) int64 {
	return 12 * nside * nside
}

// CheckNside validates a resolution.
func CheckNside(nside int64) error {
	if nside < 1 || nside > MaxNside || bits.OnesCount64(uint64(nside)) != 1 {
		return fmt.Errorf("%w: %d", ErrInvalidNside, nside)
	}
	return nil
}

func order(nside int64) uint {
	return uint(bits.TrailingZeros64(uint64(nside)))
}

func checkPixel(nside, pix int64) error {
	if pix < 0 || pix >= Nside2Npix(nside) {
		return fmt.Errorf("%w: %d at nside %d", ErrInvalidPixel, pix, nside)
	}
	return nil
}

// spreadBits interleaves zeros between the low 32 bits of v.
func spreadBits(v int64) int64 {
	x := uint64(v) & 0xFFFFFFFF
	x = (x | x<<16) & 0x0000FFFF0000FFFF
	x = (x | x<<8) & 0x00FF00FF00FF00FF
	x = (x | x<<4) & 0x0F0F0F0F0F0F0F0F
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return int64(x)
}

// compressBits is the inverse of spreadBits on the even bits of v.
func compressBits(v int64) int64 {
	x := uint64(v) & 0x5555555555555555
	x = (x | x>>1) & 0x3333333333333333
	x = (x | x>>2) & 0x0F0F0F0F0F0F0F0F
	x = (x | x>>4) & 0x00FF00FF00FF00FF
	x = (x | x>>8) & 0x0000FFFF0000FFFF
	x = (x | x>>16) & 0x00000000FFFFFFFF
	return int64(x)
}

func xyf2nest(nside, ix, iy, face int64) int64 {
	return face<<(2*order(nside)) + spreadBits(ix) + spreadBits(iy)<<1
}

func nest2xyf(nside, pix int64) (ix, iy, face int64) {
	o := order(nside)
	face = pix >> (2 * o)
	pix &= nside*nside - 1
	return compressBits(pix), compressBits(pix >> 1), face
}

// Coarsen maps a nest pixel at fromNside to its parent at toNside.
func Coarsen(pix, fromNside, toNside int64) (int64, error) {
	ratio, err := coarsenRatio(fromNside, toNside)
	if err != nil {
		return 0, err
	}
	if err := checkPixel(fromNside, pix); err != nil {
		return 0, err
	}
	return pix / ratio, nil
}

// CoarsenAll coarsens every pixel of a nest array.
func CoarsenAll(pix []int64, fromNside, toNside int64) ([]int64, error) {
	ratio, err := coarsenRatio(fromNside, toNside)
	if err != nil {
		return nil, err
	}
	npix := Nside2Npix(fromNside)
	out := make([]int64, len(pix))
	for i, p := range pix {
		if p < 0 || p >= npix {
			return nil, fmt.Errorf("%w: %d at nside %d (row %d)", ErrInvalidPixel, p, fromNside, i)
		}
		out[i] = p / ratio
	}
	return out, nil
}

func coarsenRatio(fromNside, toNside int64) (int64, error) {
	if err := CheckNside(fromNside); err != nil {
		return 0, err
	}
	if err := CheckNside(toNside); err != nil {
		return 0, err
	}
	if toNside > fromNside {
		return 0, fmt.Errorf("%w: cannot coarsen nside %d to finer %d", ErrInvalidNside, fromNside, toNside)
	}
	r := fromNside / toNside
	return r * r, nil
}
