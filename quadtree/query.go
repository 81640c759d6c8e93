package quadtree

// FindSmallestNodeCoveringRange returns the deepest live node whose
// rectangle encloses both (x1,y1) and (x2,y2), or nil if either corner
// is out of the region. The corners may be given in any order. The
// time complexity is O(log Depth).
func (t *Tree[T]) FindSmallestNodeCoveringRange(x1, y1, x2, y2 int) *Node[T] {
	return t.findSmallestNodeCoveringRange(x1, y1, x2, y2, t.maxd)
}

// findSmallestNodeCoveringRange binary-searches the depth in [0,dMax].
// When both corners pack to the same live id, the node is a candidate
// and a deeper one is tried; otherwise the upper bound shrinks.
func (t *Tree[T]) findSmallestNodeCoveringRange(x1, y1, x2, y2, dMax int) *Node[T] {
	if !t.inRegion(x1, y1) || !t.inRegion(x2, y2) {
		return nil
	}
	var best *Node[T]
	l, r := 0, dMax
	for l <= r {
		d := (l + r) >> 1
		if id := t.packAt(d, x1, y1); id == t.packAt(d, x2, y2) {
			if node, ok := t.m[id]; ok {
				best = node
				l = d + 1
				continue
			}
		}
		r = d - 1
	}
	return best
}

// QueryRange calls collect for every object whose position is inside
// the inclusive rectangle (x1,y1)-(x2,y2), where (x1,y1) is the
// upper-left corner and (x2,y2) the lower-right one. Does nothing on
// an inverted rectangle.
func (t *Tree[T]) QueryRange(x1, y1, x2, y2 int, collect Collector[T]) {
	if x1 > x2 || y1 > y2 {
		return
	}
	// Start from the smallest node covering the whole range to skip
	// the common ancestors, falling back to the root when a corner is
	// outside the region.
	node := t.findSmallestNodeCoveringRange(x1, y1, x2, y2, t.maxd)
	if node == nil {
		node = t.root
	}
	if node == nil {
		return
	}
	t.queryRange(node, x1, y1, x2, y2, collect)
}

func (t *Tree[T]) queryRange(node *Node[T], x1, y1, x2, y2 int, collect Collector[T]) {
	if !node.overlaps(x1, y1, x2, y2) {
		return
	}
	if node.isLeaf {
		for k := range node.objects {
			if k.x >= x1 && k.x <= x2 && k.y >= y1 && k.y <= y2 {
				collect(k.x, k.y, k.object)
			}
		}
		return
	}
	for _, c := range node.children {
		if c != nil {
			t.queryRange(c, x1, y1, x2, y2, collect)
		}
	}
}

// QueryNode calls collect for every object managed inside the given
// node's subtree. For a non-leaf node the query recurses into all its
// children.
func (t *Tree[T]) QueryNode(node *Node[T], collect Collector[T]) {
	if node == nil {
		return
	}
	if node.isLeaf {
		for k := range node.objects {
			collect(k.x, k.y, k.object)
		}
		return
	}
	for _, c := range node.children {
		if c != nil {
			t.QueryNode(c, collect)
		}
	}
}
