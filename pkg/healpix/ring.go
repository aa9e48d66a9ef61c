package healpix

import "math"

func isqrt(v int64) int64 {
	r := int64(math.Sqrt(float64(v) + 0.5))
	for r*r > v {
		r--
	}
	for (r+1)*(r+1) <= v {
		r++
	}
	return r
}

func xyf2ring(nside, ix, iy, face int64) int64 {
	nl4 := 4 * nside
	npix := Nside2Npix(nside)
	ncap := 2 * nside * (nside - 1)
	jr := jrll[face]*nside - ix - iy - 1

	var nr, nBefore, kshift int64
	switch {
	case jr < nside:
		nr = jr
		nBefore = 2 * nr * (nr - 1)
	case jr > 3*nside:
		nr = nl4 - jr
		nBefore = npix - 2*(nr+1)*nr
	default:
		nr = nside
		nBefore = ncap + (jr-nside)*nl4
		kshift = (jr - nside) & 1
	}

	jp := (jpll[face]*nr + ix - iy + 1 + kshift) / 2
	if jp > nl4 {
		jp -= nl4
	} else if jp < 1 {
		jp += nl4
	}
	return nBefore + jp - 1
}

func ring2xyf(nside, pix int64) (ix, iy, face int64) {
	nl2 := 2 * nside
	npix := Nside2Npix(nside)
	ncap := 2 * nside * (nside - 1)
	o := order(nside)

	var iring, iphi, kshift, nr int64
	switch {
	case pix < ncap: // north polar cap
		iring = (1 + isqrt(1+2*pix)) >> 1
		iphi = (pix + 1) - 2*iring*(iring-1)
		nr = iring
		face = (iphi - 1) / nr
	case pix < npix-ncap: // equatorial belt
		ip := pix - ncap
		tmp := ip >> (o + 2)
		iring = tmp + nside
		iphi = ip - tmp*4*nside + 1
		kshift = (iring + nside) & 1
		nr = nside
		ire := tmp + 1
		irm := nl2 + 1 - tmp
		ifm := (iphi - (ire >> 1) + nside - 1) >> o
		ifp := (iphi - (irm >> 1) + nside - 1) >> o
		switch {
		case ifp == ifm:
			face = ifp | 4
		case ifp < ifm:
			face = ifp
		default:
			face = ifm + 8
		}
	default: // south polar cap
		ip := npix - pix
		iring = (1 + isqrt(2*ip-1)) >> 1
		iphi = 4*iring + 1 - (ip - 2*iring*(iring-1))
		nr = iring
		iring = 2*nl2 - iring
		face = (iphi-1)/nr + 8
	}

	irt := iring - (2+(face>>2))*nside + 1
	ipt := 2*iphi - jpll[face]*nr - kshift - 1
	if ipt >= nl2 {
		ipt -= 8 * nside
	}
	ix = (ipt - irt) >> 1
	iy = (-ipt - irt) >> 1
	return ix, iy, face
}

// Nest2Ring converts a nest pixel to the ring numbering at the same nside.
func Nest2Ring(nside, pix int64) (int64, error) {
	if err := CheckNside(nside); err != nil {
		return 0, err
	}
	if err := checkPixel(nside, pix); err != nil {
		return 0, err
	}
	ix, iy, face := nest2xyf(nside, pix)
	return xyf2ring(nside, ix, iy, face), nil
}

// Ring2Nest converts a ring pixel to the nest numbering at the same nside.
func Ring2Nest(nside, pix int64) (int64, error) {
	if err := CheckNside(nside); err != nil {
		return 0, err
	}
	if err := checkPixel(nside, pix); err != nil {
		return 0, err
	}
	ix, iy, face := ring2xyf(nside, pix)
	return xyf2nest(nside, ix, iy, face), nil
}

// Ring2NestAll converts an array of ring pixels.
func Ring2NestAll(nside int64, pix []int64) ([]int64, error) {
	return convertAll(nside, pix, ring2xyf, xyf2nest)
}

// Nest2RingAll converts an array of nest pixels.
func Nest2RingAll(nside int64, pix []int64) ([]int64, error) {
	return convertAll(nside, pix, nest2xyf, xyf2ring)
}

func convertAll(nside int64, pix []int64,
	from func(nside, pix int64) (int64, int64, int64),
	to func(nside, ix, iy, face int64) int64) ([]int64, error) {
	if err := CheckNside(nside); err != nil {
		return nil, err
	}
	out := make([]int64, len(pix))
	for i, p := range pix {
		if err := checkPixel(nside, p); err != nil {
			return nil, err
		}
		ix, iy, face := from(nside, p)
		out[i] = to(nside, ix, iy, face)
	}
	return out, nil
}
