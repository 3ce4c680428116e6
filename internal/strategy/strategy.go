// Package strategy 实现工作项处理的策略
package strategy

// Strategy is a worklist of pending items.
type Strategy[T any] interface {
	Size() int
	HasNext() bool
	Pop() (T, error)
	Push(...T) error
}
