package models

import (
	"github.com/gridlabs/quadgrid/quadtree"
)

// NodeInfo is the wire representation of one tree node.
type NodeInfo struct {
	Depth      int  `json:"depth"`
	X1         int  `json:"x1"`
	Y1         int  `json:"y1"`
	X2         int  `json:"x2"`
	Y2         int  `json:"y2"`
	Leaf       bool `json:"leaf"`
	NumObjects int  `json:"num_objects"`

	// Objects is filled for leaf nodes only.
	Objects []ObjectInfo `json:"objects,omitempty"`
}

// ObjectInfo is the wire representation of one managed object.
type ObjectInfo struct {
	X  int    `json:"x"`
	Y  int    `json:"y"`
	ID uint32 `json:"id"`
}

// NodeInfoFromTree converts a tree node into its wire representation.
func NodeInfoFromTree(n *quadtree.Node[uint32]) NodeInfo {
	info := NodeInfo{
		Depth:      n.Depth(),
		X1:         n.X1(),
		Y1:         n.Y1(),
		X2:         n.X2(),
		Y2:         n.Y2(),
		Leaf:       n.IsLeaf(),
		NumObjects: n.NumObjects(),
	}
	if n.IsLeaf() && n.NumObjects() != 0 {
		info.Objects = make([]ObjectInfo, 0, n.NumObjects())
		n.ForEachObject(func(x, y int, o uint32) {
			info.Objects = append(info.Objects, ObjectInfo{X: x, Y: y, ID: o})
		})
	}
	return info
}
