package featureflag

type Flag string

const (
	FlagDisableLeafEventBroadcast Flag = "DISABLE_LEAF_EVENT_BROADCAST"
	FlagDisableRangeQueries       Flag = "DISABLE_RANGE_QUERIES"
	FlagDisableNeighbourQueries   Flag = "DISABLE_NEIGHBOUR_QUERIES"
	FlagDisableSnapshot           Flag = "DISABLE_SNAPSHOT"
)
