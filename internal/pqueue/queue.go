package pqueue

import "iter"

// Queue 是不可变、追加优化的序列。
// nil 即空队列；left/right 均非 nil 为 Append 节点，否则为 Single 节点。
// 节点创建后不再修改，可在 goroutine 间自由共享。
type Queue[T any] struct {
	left  *Queue[T]
	right *Queue[T]
	value T
	size  int
}

// Empty 返回空队列
func Empty[T any]() *Queue[T] { return nil }

// Single 返回只含 v 的队列
func Single[T any](v T) *Queue[T] {
	return &Queue[T]{value: v, size: 1}
}

// Append 连接两个队列，O(1)。任一侧为空时原样返回另一侧，保证 Append 节点两侧非空。
func Append[T any](a, b *Queue[T]) *Queue[T] {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &Queue[T]{left: a, right: b, size: a.size + b.size}
}

// FromSlice 按顺序构造队列
func FromSlice[T any](vs []T) *Queue[T] {
	var q *Queue[T]
	for _, v := range vs {
		q = q.PushBack(v)
	}
	return q
}

// PushFront 在队首加入 v
func (q *Queue[T]) PushFront(v T) *Queue[T] { return Append(Single(v), q) }

// PushBack 在队尾加入 v
func (q *Queue[T]) PushBack(v T) *Queue[T] { return Append(q, Single(v)) }

func (q *Queue[T]) Len() int {
	if q == nil {
		return 0
	}
	return q.size
}

func (q *Queue[T]) IsEmpty() bool { return q == nil }

// PopFront 返回队首元素与剩余队列；空队列返回 ok=false。
func (q *Queue[T]) PopFront() (v T, rest *Queue[T], ok bool) {
	v, rest, ok, _ = q.popFront()
	return
}

// popFront 额外返回访问的节点数，供复杂度测试使用。
//
// 沿左脊迭代下降，将经过的右子树压入 rights；到达 Single 后从内向外用 Append
// 折叠 rights 得到剩余队列。折叠结果右倾，随后的 PopFront 只需访问常数个节点。
func (q *Queue[T]) popFront() (v T, rest *Queue[T], ok bool, steps int) {
	if q == nil {
		return v, nil, false, 0
	}
	var stack [16]*Queue[T]
	rights := stack[:0]
	n := q
	for n.left != nil {
		rights = append(rights, n.right)
		n = n.left
		steps++
	}
	// rights[len-1] 紧邻被弹出的元素，应位于剩余队列最前
	for _, r := range rights {
		rest = Append(r, rest)
		steps++
	}
	return n.value, rest, true, steps + 1
}

// All 按顺序遍历全部元素，不使用递归。
func (q *Queue[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		if q == nil {
			return
		}
		stack := []*Queue[T]{q}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if n.left == nil {
				if !yield(n.value) {
					return
				}
				continue
			}
			stack = append(stack, n.right, n.left)
		}
	}
}

// ToSlice 按顺序展开为切片，与形状无关均为线性时间。
func (q *Queue[T]) ToSlice() []T {
	out := make([]T, 0, q.Len())
	for v := range q.All() {
		out = append(out, v)
	}
	return out
}
