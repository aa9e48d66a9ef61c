package healpix

import (
	"fmt"
	"math"
)

const (
	halfPi   = math.Pi / 2
	twoThird = 2.0 / 3.0
	deg2rad  = math.Pi / 180
	rad2deg  = 180 / math.Pi
)

// fmodulo returns v1 mod v2 in [0, v2).
func fmodulo(v1, v2 float64) float64 {
	if v1 >= 0 {
		if v1 < v2 {
			return v1
		}
		return math.Mod(v1, v2)
	}
	tmp := math.Mod(v1, v2) + v2
	if tmp == v2 {
		return 0
	}
	return tmp
}

func checkCoordinate(ra, dec float64) error {
	if math.IsNaN(ra) || math.IsInf(ra, 0) || math.IsNaN(dec) || math.IsInf(dec, 0) {
		return fmt.Errorf("%w: ra=%v dec=%v", ErrInvalidCoordinate, ra, dec)
	}
	if dec < -90 || dec > 90 {
		return fmt.Errorf("%w: dec %v outside [-90, 90]", ErrInvalidCoordinate, dec)
	}
	return nil
}

// loc2nest is the nest index of the point at z = sin(dec), azimuth phi,
// with sth = cos(dec) used near the poles.
func loc2nest(nside int64, z, phi, sth float64) int64 {
	za := math.Abs(z)
	tt := fmodulo(phi/halfPi, 4.0)
	fn := float64(nside)

	if za <= twoThird {
		temp1 := fn * (0.5 + tt)
		temp2 := fn * (z * 0.75)
		jp := int64(temp1 - temp2) // ascending edge line
		jm := int64(temp1 + temp2) // descending edge line
		o := order(nside)
		ifp := jp >> o
		ifm := jm >> o
		var face int64
		switch {
		case ifp == ifm:
			face = ifp | 4
		case ifp < ifm:
			face = ifp
		default:
			face = ifm + 8
		}
		ix := jm & (nside - 1)
		iy := nside - (jp & (nside - 1)) - 1
		return xyf2nest(nside, ix, iy, face)
	}

	ntt := min(int64(tt), 3)
	tp := tt - float64(ntt)
	var tmp float64
	if za < 0.99 {
		tmp = fn * math.Sqrt(3*(1-za))
	} else {
		tmp = fn * sth / math.Sqrt((1+za)/3)
	}
	jp := min(int64(tp*tmp), nside-1)
	jm := min(int64((1-tp)*tmp), nside-1)
	if z >= 0 {
		return xyf2nest(nside, nside-jm-1, nside-jp-1, ntt)
	}
	return xyf2nest(nside, jp, jm, ntt+8)
}

// Ang2Pix returns the pixel containing (ra, dec) in degrees.
func Ang2Pix(nside int64, ordering Ordering, ra, dec float64) (int64, error) {
	if err := CheckNside(nside); err != nil {
		return 0, err
	}
	if err := checkCoordinate(ra, dec); err != nil {
		return 0, err
	}
	return ang2pix(nside, ordering, ra, dec), nil
}

func ang2pix(nside int64, ordering Ordering, ra, dec float64) int64 {
	d := dec * deg2rad
	pix := loc2nest(nside, math.Sin(d), ra*deg2rad, math.Cos(d))
	if ordering == Ring {
		ix, iy, face := nest2xyf(nside, pix)
		return xyf2ring(nside, ix, iy, face)
	}
	return pix
}

// Pixelize maps parallel RA/Dec arrays to pixel indices.
// The first invalid coordinate aborts the whole batch.
func Pixelize(ra, dec []float64, nside int64, ordering Ordering) ([]int64, error) {
	if err := CheckNside(nside); err != nil {
		return nil, err
	}
	if len(ra) != len(dec) {
		return nil, fmt.Errorf("%w: %d ra values, %d dec values", ErrInvalidCoordinate, len(ra), len(dec))
	}
	out := make([]int64, len(ra))
	for i := range ra {
		if err := checkCoordinate(ra[i], dec[i]); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = ang2pix(nside, ordering, ra[i], dec[i])
	}
	return out, nil
}

// xyf2loc maps continuous face coordinates (x, y) in [0,1]² to z = sin(dec),
// azimuth phi and sth = cos(dec). The map is area preserving: a uniform
// (x, y) gives a uniform point on the sphere inside the face.
func xyf2loc(x, y float64, face int64) (z, phi, sth float64) {
	jr := float64(jrll[face]) - x - y
	var nr float64
	switch {
	case jr < 1:
		nr = jr
		tmp := nr * nr / 3
		z = 1 - tmp
		sth = math.Sqrt(tmp * (2 - tmp))
	case jr > 3:
		nr = 4 - jr
		tmp := nr * nr / 3
		z = tmp - 1
		sth = math.Sqrt(tmp * (2 - tmp))
	default:
		nr = 1
		z = (2 - jr) * 2 / 3
		sth = math.Sqrt((1 - z) * (1 + z))
	}

	tmp := float64(jpll[face])*nr + x - y
	if tmp < 0 {
		tmp += 8
	}
	if tmp >= 8 {
		tmp -= 8
	}
	if nr < 1e-15 {
		phi = 0
	} else {
		phi = (0.5 * halfPi * tmp) / nr
	}
	return z, phi, sth
}

// PointInPixel returns the sky position at fractional offset (u, v) in
// [0,1)² inside nest pixel pix. Uniform (u, v) yields positions uniformly
// distributed over the pixel's area; (0.5, 0.5) is the pixel center.
func PointInPixel(nside, pix int64, u, v float64) (ra, dec float64) {
	ix, iy, face := nest2xyf(nside, pix)
	fn := float64(nside)
	z, phi, sth := xyf2loc((float64(ix)+u)/fn, (float64(iy)+v)/fn, face)
	ra = fmodulo(phi*rad2deg, 360)
	dec = math.Atan2(z, sth) * rad2deg
	return ra, dec
}

// Pix2Ang returns the center of a pixel in degrees.
func Pix2Ang(nside int64, ordering Ordering, pix int64) (ra, dec float64, err error) {
	if err := CheckNside(nside); err != nil {
		return 0, 0, err
	}
	if err := checkPixel(nside, pix); err != nil {
		return 0, 0, err
	}
	if ordering == Ring {
		ix, iy, face := ring2xyf(nside, pix)
		pix = xyf2nest(nside, ix, iy, face)
	}
	ra, dec = PointInPixel(nside, pix, 0.5, 0.5)
	return ra, dec, nil
}

// PixelArea returns the solid angle of one pixel in square degrees.
func PixelArea(nside int64) float64 {
	return 4 * math.Pi * rad2deg * rad2deg / float64(Nside2Npix(nside))
}
