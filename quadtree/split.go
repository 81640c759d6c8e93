package quadtree

// splittable indicates whether the rectangle (x1,y1)-(x2,y2) holding n
// objects should be managed by a non-leaf node. A single cell is never
// splittable; otherwise the splitting stopper decides.
func (t *Tree[T]) splittable(x1, y1, x2, y2, n int) bool {
	if x1 == x2 && y1 == y2 {
		return false
	}
	if t.ssf != nil && t.ssf(y2-y1+1, x2-x1+1, n) {
		return false
	}
	return true
}

// trySplitDown splits the given leaf node into four quadrants if the
// splitting stopper allows it, recursing until every descendant is a
// proper leaf. Reports whether the structure changed.
func (t *Tree[T]) trySplitDown(node *Node[T]) bool {
	if !node.isLeaf {
		return false
	}
	if !t.splittable(node.x1, node.y1, node.x2, node.y2, len(node.objects)) {
		return false
	}
	t.splitNode(node)
	return true
}

// splitNode splits a node into its four canonical quadrants, moving
// every object into exactly one descendant leaf. The node passed in is
// either a leaf or a freshly created non-leaf carrying the objects it
// must distribute; it is a non-leaf with empty objects afterwards.
//
// The quadrants cut at the middle point (x3,y3):
//
//	   y1    y3      y2
//	x1 -+-----+------+-
//	    |  0  |  1   |
//	x3  |   * |      |
//	   -+-----+------+-
//	    |  2  |  3   |
//	x2 -+-----+------+-
func (t *Tree[T]) splitNode(node *Node[T]) {
	x1, y1, x2, y2 := node.x1, node.y1, node.x2, node.y2
	x3 := x1 + (x2-x1)/2
	y3 := y1 + (y2-y1)/2
	d := node.d + 1

	if node.isLeaf {
		node.isLeaf = false
		t.numLeafNodes--
		t.emitRemoved(node)
	}

	node.children[0] = t.splitChild(d, x1, y1, x3, y3, node.objects)
	node.children[1] = t.splitChild(d, x1, y3+1, x3, y2, node.objects)
	node.children[2] = t.splitChild(d, x3+1, y1, x2, y3, node.objects)
	node.children[3] = t.splitChild(d, x3+1, y3+1, x2, y2, node.objects)
}

// splitChild creates the subtree covering the quadrant
// (x1,y1)-(x2,y2) at depth d, stealing the objects inside the quadrant
// from the upstream node's set. Returns nil when the quadrant
// rectangle is degenerate, which happens when the parent is a single
// row or a single column.
func (t *Tree[T]) splitChild(d, x1, y1, x2, y2 int, upstream map[objectKey[T]]struct{}) *Node[T] {
	if !t.inRegion(x1, y1) || !t.inRegion(x2, y2) {
		return nil
	}
	if x1 > x2 || y1 > y2 {
		return nil
	}

	objs := make(map[objectKey[T]]struct{})
	for k := range upstream {
		if k.x >= x1 && k.x <= x2 && k.y >= y1 && k.y <= y2 {
			objs[k] = struct{}{}
			delete(upstream, k)
		}
	}

	if !t.splittable(x1, y1, x2, y2, len(objs)) {
		node := t.createNode(true, d, x1, y1, x2, y2)
		node.objects = objs
		t.emitCreated(node)
		return node
	}

	// The quadrant splits further: carry the stolen objects on the new
	// non-leaf node so the recursion can distribute them.
	node := t.createNode(false, d, x1, y1, x2, y2)
	node.objects = objs
	t.splitNode(node)
	return node
}

// tryMergeUp collapses the given leaf node's parent into a leaf when
// every non-nil child is a leaf and the combined object count makes
// the parent's rectangle not splittable, repeating up the tree until
// the root or a still-splittable ancestor. Reports whether any merge
// happened.
func (t *Tree[T]) tryMergeUp(node *Node[T]) bool {
	merged := false
	for node != t.root && node.isLeaf {
		parent := t.parentOf(node)

		n := 0
		leavesOnly := true
		for _, c := range parent.children {
			if c == nil {
				continue
			}
			if !c.isLeaf {
				leavesOnly = false
				break
			}
			n += len(c.objects)
		}
		if !leavesOnly || t.splittable(parent.x1, parent.y1, parent.x2, parent.y2, n) {
			break
		}

		for i, c := range parent.children {
			if c == nil {
				continue
			}
			for k := range c.objects {
				parent.objects[k] = struct{}{}
			}
			t.removeLeafNode(c)
			parent.children[i] = nil
		}
		parent.isLeaf = true
		t.numLeafNodes++
		t.emitCreated(parent)
		merged = true

		node = parent
	}
	return merged
}
