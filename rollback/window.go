package rollback

import (
	"fmt"
)

// window 按帧号索引的环形缓冲：[first, first+len(data)) 可访问
type window[T any] struct {
	first Frame // 最小可访问帧
	start int   // first 在 data 中的下标
	data  []T
}

func newWindow[T any](n int, first Frame) *window[T] {
	return &window[T]{
		first: first,
		data:  make([]T, n),
	}
}

func (w *window[T]) contains(pos Frame) bool {
	return pos >= w.first && pos < w.end()
}

func (w *window[T]) posToIndex(pos Frame) int {
	if !w.contains(pos) {
		panic(fmt.Sprintf("tried to access frame %d, outside of window bounds %d - %d", pos, w.first, w.end()))
	}
	return (w.start + int(pos-w.first)) % len(w.data)
}

// at 返回槽位指针，越界 panic（调用方先 contains）
func (w *window[T]) at(pos Frame) *T {
	return &w.data[w.posToIndex(pos)]
}

func (w *window[T]) end() Frame {
	return w.first + Frame(len(w.data))
}

// advanceTo 将 first 推进到 pos，被移出的槽位清零
func (w *window[T]) advanceTo(pos Frame) {
	var zero T
	for w.first < pos {
		w.data[w.start] = zero
		w.start = (w.start + 1) % len(w.data)
		w.first++
	}
}
