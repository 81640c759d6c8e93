package quadtree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// checkInvariants walks the whole tree and verifies the structural
// invariants that must hold between public calls.
func checkInvariants(t *testing.T, tree *Tree[int]) {
	t.Helper()

	if tree.root == nil {
		require.Zero(t, tree.NumNodes())
		return
	}

	nodes := 0
	leaves := 0
	objects := 0
	maxDepth := 0

	var walk func(node *Node[int])
	walk = func(node *Node[int]) {
		nodes++
		if node.d > maxDepth {
			maxDepth = node.d
		}

		// Every live node is discoverable under its computed id.
		got, ok := tree.m[tree.idOf(node)]
		require.True(t, ok)
		require.Same(t, node, got)

		require.True(t, node.x1 <= node.x2 && node.y1 <= node.y2)

		if node.isLeaf {
			leaves++
			objects += len(node.objects)
			for _, c := range node.children {
				require.Nil(t, c)
			}
			// Object positions lie inside the leaf rectangle.
			for k := range node.objects {
				require.True(t, node.contains(k.x, k.y))
			}
			// A leaf is either a single cell or not splittable.
			if node.x1 != node.x2 || node.y1 != node.y2 {
				require.False(t,
					tree.splittable(node.x1, node.y1, node.x2, node.y2, len(node.objects)))
			}
			return
		}

		// No non-leaf holds objects, and it has at least one child.
		require.Empty(t, node.objects)
		children := 0
		subtree := 0
		var count func(n *Node[int])
		count = func(n *Node[int]) {
			if n.isLeaf {
				subtree += len(n.objects)
				return
			}
			for _, c := range n.children {
				if c != nil {
					count(c)
				}
			}
		}
		count(node)
		for _, c := range node.children {
			if c == nil {
				continue
			}
			children++
			require.Equal(t, node.d+1, c.d)
			walk(c)
		}
		require.Positive(t, children)
		// A non-leaf stays splittable for its subtree population.
		require.True(t,
			tree.splittable(node.x1, node.y1, node.x2, node.y2, subtree))
	}
	walk(tree.root)

	require.Equal(t, nodes, tree.NumNodes())
	require.Equal(t, leaves, tree.NumLeafNodes())
	require.Equal(t, objects, tree.NumObjects())
	require.Equal(t, maxDepth, tree.Depth())

	// Every in-range position resolves to the leaf containing it.
	for x := 0; x < tree.h; x++ {
		for y := 0; y < tree.w; y++ {
			leaf := tree.Find(x, y)
			require.NotNil(t, leaf)
			require.True(t, leaf.IsLeaf())
			require.True(t, leaf.contains(x, y))
		}
	}

	// The full-region query returns every object exactly once.
	hits := map[[3]int]int{}
	tree.QueryRange(0, 0, tree.h-1, tree.w-1, func(x, y, o int) {
		hits[[3]int{x, y, o}]++
	})
	require.Len(t, hits, tree.NumObjects())
	for _, n := range hits {
		require.Equal(t, 1, n)
	}
}

func TestInvariantsUnderRandomOps(t *testing.T) {
	stoppers := map[string]SplittingStopper{
		"small or sparse": ssfSmallOrSparse,
		"empty or full":   ssfEmptyOrFull,
	}

	for name, ssf := range stoppers {
		t.Run(name, func(t *testing.T) {
			const w, h = 31, 23

			rng := rand.New(rand.NewSource(42))
			tree := New[int](w, h, ssf)
			tree.Build()
			checkInvariants(t, tree)

			type triple struct{ x, y, o int }
			var live []triple

			for i := 0; i < 600; i++ {
				if len(live) == 0 || rng.Intn(3) != 0 {
					tr := triple{rng.Intn(h), rng.Intn(w), rng.Intn(4)}
					tree.Add(tr.x, tr.y, tr.o)
					live = append(live, tr)
				} else {
					j := rng.Intn(len(live))
					tr := live[j]
					tree.Remove(tr.x, tr.y, tr.o)
					live[j] = live[len(live)-1]
					live = live[:len(live)-1]
				}

				if i%60 == 0 {
					checkInvariants(t, tree)
				}
			}
			checkInvariants(t, tree)

			for _, tr := range live {
				tree.Remove(tr.x, tr.y, tr.o)
			}
			checkInvariants(t, tree)
			require.Zero(t, tree.NumObjects())
		})
	}
}

func TestAddRemoveRestoresStructure(t *testing.T) {
	tree := New[int](16, 16, ssfEmptyOrFull)
	tree.Build()
	tree.Add(3, 5, 1)
	tree.Add(9, 2, 2)
	tree.Add(12, 13, 3)

	nodes := tree.NumNodes()
	leaves := tree.NumLeafNodes()
	depth := tree.Depth()

	tree.Add(7, 7, 9)
	tree.Remove(7, 7, 9)

	require.Equal(t, nodes, tree.NumNodes())
	require.Equal(t, leaves, tree.NumLeafNodes())
	require.Equal(t, depth, tree.Depth())
}
