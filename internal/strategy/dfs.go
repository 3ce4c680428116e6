package strategy

import (
	"fmt"
)

// DFS 深度优先搜索策略
type DFS[T any] struct {
	items []T
}

func NewDFS[T any]() *DFS[T] {
	return &DFS[T]{
		items: make([]T, 0),
	}
}

func (dfs *DFS[T]) Size() int {
	return len(dfs.items)
}

func (dfs *DFS[T]) HasNext() bool {
	return len(dfs.items) > 0
}

func (dfs *DFS[T]) Pop() (T, error) {
	var zero T
	if len(dfs.items) <= 0 {
		return zero, fmt.Errorf("work queue is empty")
	}
	item := dfs.items[len(dfs.items)-1]
	dfs.items = dfs.items[:len(dfs.items)-1]
	return item, nil
}

// Push adds items so that the first one pushed is popped first.
func (dfs *DFS[T]) Push(items ...T) error {
	for i := len(items) - 1; i >= 0; i-- {
		dfs.items = append(dfs.items, items[i])
	}
	return nil
}
