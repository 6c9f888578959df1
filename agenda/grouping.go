package agenda

import "github.com/lefinal/confcomp-server/errors"

// EventGroup is a set of items that are rendered together because of
// conflicts. Groups are recomputed from scratch and never mutated in place.
type EventGroup struct {
	// Items in input order except for the seed which always comes first.
	Items []ScheduledItem
	// HasConflict is true if the group holds more than one item.
	HasConflict bool
}

// GroupingMode describes how conflicting items are clustered.
type GroupingMode string

const (
	// GroupingSingleHop pulls only the direct conflict neighbours of a seed
	// item into its group.
	GroupingSingleHop GroupingMode = "single-hop"
	// GroupingTransitive groups all items that are connected via conflict
	// chains.
	GroupingTransitive GroupingMode = "transitive"
)

// adjacency maps item indices to the indices of conflicting items in input
// order.
type adjacency map[int][]int

// buildAdjacency builds the symmetric conflict relation for the items.
func buildAdjacency(items []ScheduledItem) adjacency {
	adj := make(adjacency, len(items))
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if items[i].overlaps(items[j]) {
				adj[i] = append(adj[i], j)
				adj[j] = append(adj[j], i)
			}
		}
	}
	// Neighbours of j are appended while iterating i, so lower indices come
	// first and the order already follows the input.
	return adj
}

// GroupByConflict partitions the items into groups for side-by-side rendering.
// Items are visited in input order. Each unvisited item seeds a new group that
// additionally takes all of its direct conflict neighbours that are not yet
// visited. Neighbours of neighbours are not followed, so a chain A-B-C where
// only adjacent items conflict may result in {A, B} and {C}. Use
// GroupByConflictTransitive for full connectivity.
func GroupByConflict(items []ScheduledItem) ([]EventGroup, error) {
	if err := validateItems(items); err != nil {
		return nil, errors.Wrap(err, "validate items", nil)
	}
	return groupSingleHop(items, buildAdjacency(items)), nil
}

func groupSingleHop(items []ScheduledItem, adj adjacency) []EventGroup {
	visited := make([]bool, len(items))
	groups := make([]EventGroup, 0)
	for seed := range items {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		group := []ScheduledItem{items[seed]}
		for _, neighbour := range adj[seed] {
			if visited[neighbour] {
				continue
			}
			visited[neighbour] = true
			group = append(group, items[neighbour])
		}
		groups = append(groups, EventGroup{
			Items:       group,
			HasConflict: len(group) > 1,
		})
	}
	return groups
}

// GroupByConflictTransitive partitions the items into the connected components
// of the conflict relation. Groups are ordered by their first item in input
// order and items within a group keep input order.
func GroupByConflictTransitive(items []ScheduledItem) ([]EventGroup, error) {
	if err := validateItems(items); err != nil {
		return nil, errors.Wrap(err, "validate items", nil)
	}
	return groupTransitive(items, buildAdjacency(items)), nil
}

func groupTransitive(items []ScheduledItem, adj adjacency) []EventGroup {
	component := make([]int, len(items))
	for i := range component {
		component[i] = -1
	}
	componentCount := 0
	for seed := range items {
		if component[seed] != -1 {
			continue
		}
		// Flood the component.
		stack := []int{seed}
		component[seed] = componentCount
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, neighbour := range adj[current] {
				if component[neighbour] == -1 {
					component[neighbour] = componentCount
					stack = append(stack, neighbour)
				}
			}
		}
		componentCount++
	}
	groups := make([]EventGroup, componentCount)
	for i, item := range items {
		groups[component[i]].Items = append(groups[component[i]].Items, item)
	}
	for i := range groups {
		groups[i].HasConflict = len(groups[i].Items) > 1
	}
	return groups
}
