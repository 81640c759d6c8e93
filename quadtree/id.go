package quadtree

const (
	// MaxSide is the maximum width and height of the whole rectangular
	// region managed by a tree.
	MaxSide = 1<<29 - 1

	// MaxDepth is the maximum depth a tree can reach. A region of
	// MaxSide cells per side degenerates to single cells at this depth.
	MaxDepth = 29
)

// nodeID is the unique identifier of a tree node, packed as:
//
//	+----- 6bit -----+------- 29bit ------+------ 29bit ------+
//	| depth d        | floor(x * 2^d / h) | floor(y * 2^d / w) |
//	+----------------+--------------------+-------------------+
//
// Properties:
//  1. Any position (x,y) inside a node's rectangle produces the same id
//     for the node at depth d.
//  2. The id of the tree root is always 0.
//  3. Deeper nodes have larger ids than the root.
//  4. At identical depth, ids follow the lexicographic order of the
//     anchor (x,y).
type nodeID uint64

const (
	depthMask   = 0xfc00000000000000
	xAnchorMask = 0x03ffffffe0000000
	yAnchorMask = 0x000000001fffffff
)

// pack computes the id of the node at depth d whose rectangle contains
// the position (x,y), inside a w by h region. All arithmetic is
// unsigned 64-bit.
func pack(d, x, y, w, h uint64) nodeID {
	return nodeID(((d << 58) & depthMask) |
		((((uint64(1) << d) * x / h) << 29) & xAnchorMask) |
		(((uint64(1) << d) * y / w) & yAnchorMask))
}
