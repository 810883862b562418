package backend

import "sort"

// LessByPriority orders by priority descending, then due date ascending
// with missing due dates last. It is the order remote fetches return.
func LessByPriority(a, b Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	switch {
	case a.DueDate == nil:
		return false
	case b.DueDate == nil:
		return true
	}
	return a.DueDate.Before(*b.DueDate)
}

// SortByPriority sorts tasks in place by LessByPriority. Ties keep their
// relative order.
func SortByPriority(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return LessByPriority(tasks[i], tasks[j])
	})
}
