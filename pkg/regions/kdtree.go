package regions

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// center is a region center in the planar (ra, dec) space the regions are
// drawn in. idx is its position in Centers.
type center struct {
	pos [2]float64
	idx int
}

func (c center) Compare(o kdtree.Comparable, d kdtree.Dim) float64 {
	return c.pos[d] - o.(center).pos[d]
}

func (c center) Dims() int { return 2 }

// Distance is the squared planar distance.
func (c center) Distance(o kdtree.Comparable) float64 {
	q := o.(center)
	dx, dy := c.pos[0]-q.pos[0], c.pos[1]-q.pos[1]
	return dx*dx + dy*dy
}

type centerList []center

func (l centerList) Index(i int) kdtree.Comparable         { return l[i] }
func (l centerList) Len() int                              { return len(l) }
func (l centerList) Pivot(d kdtree.Dim) int                { return centerPlane{dim: d, centerList: l}.Pivot() }
func (l centerList) Slice(start, end int) kdtree.Interface { return l[start:end] }

// centerPlane orders a centerList along one axis for median partitioning.
type centerPlane struct {
	dim kdtree.Dim
	centerList
}

func (p centerPlane) Less(i, j int) bool {
	return p.centerList[i].pos[p.dim] < p.centerList[j].pos[p.dim]
}
func (p centerPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p centerPlane) Slice(start, end int) kdtree.SortSlicer {
	p.centerList = p.centerList[start:end]
	return p
}
func (p centerPlane) Swap(i, j int) {
	p.centerList[i], p.centerList[j] = p.centerList[j], p.centerList[i]
}

func newCenterTree(ra, dec []float64) *kdtree.Tree {
	l := make(centerList, len(ra))
	for i := range ra {
		l[i] = center{pos: [2]float64{ra[i], dec[i]}, idx: i}
	}
	return kdtree.New(l, false)
}

// nearestCenter returns the index of the center closest to (ra, dec) and
// its distance.
func nearestCenter(t *kdtree.Tree, ra, dec float64) (int, float64) {
	got, d2 := t.Nearest(center{pos: [2]float64{ra, dec}})
	if got == nil {
		return -1, math.Inf(1)
	}
	return got.(center).idx, math.Sqrt(d2)
}

// neighborDistance is the distance from center i to its closest other
// center; +Inf when it is alone.
func neighborDistance(t *kdtree.Tree, ra, dec float64, i int) float64 {
	k := kdtree.NewNKeeper(2)
	t.NearestSet(k, center{pos: [2]float64{ra, dec}})
	best := math.Inf(1)
	for _, cd := range k.Heap {
		if cd.Comparable == nil || cd.Comparable.(center).idx == i {
			continue
		}
		best = math.Min(best, cd.Dist)
	}
	return math.Sqrt(best)
}
