// Package sst manages the shared string table of a packaged workbook.
//
// On the write path a Builder interns text values in first-seen order. On
// the read path a Table is filled once from the workbook's string table
// entry and then resolves indices carried by cells.
package sst

// Builder assigns stable indices to distinct strings. Indices are never
// reused or renumbered.
type Builder struct {
	index  map[string]int
	values []string
	count  int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

// Internalize returns the index of value, appending it when it has not
// been seen before. Every call counts towards Count.
func (b *Builder) Internalize(value string) int {
	b.count++
	if i, ok := b.index[value]; ok {
		return i
	}
	i := len(b.values)
	b.index[value] = i
	b.values = append(b.values, value)
	return i
}

// Count returns the total number of Internalize calls.
func (b *Builder) Count() int {
	return b.count
}

// UniqueCount returns the number of distinct values.
func (b *Builder) UniqueCount() int {
	return len(b.values)
}

// Emit calls fn for every value in index order and stops at the first
// error.
func (b *Builder) Emit(fn func(index int, value string) error) error {
	for i, v := range b.values {
		if err := fn(i, v); err != nil {
			return err
		}
	}
	return nil
}
