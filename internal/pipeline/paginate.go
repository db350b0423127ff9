package pipeline

// Page - одна страница выдачи.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalPages int `json:"total_pages"`
}

// Paginate возвращает страницу page (нумерация с 1) размером pageSize.
// Номер страницы не ограничивается: вне диапазона [1, TotalPages] возвращается пустая страница.
func Paginate[T any](items []T, pageSize, page int) Page[T] {
	if pageSize < 1 {
		return Page[T]{Items: []T{}}
	}

	total := (len(items) + pageSize - 1) / pageSize
	if page < 1 || page > total {
		return Page[T]{Items: []T{}, TotalPages: total}
	}

	start := (page - 1) * pageSize
	end := min(start+pageSize, len(items))

	out := make([]T, end-start)
	copy(out, items[start:end])
	return Page[T]{Items: out, TotalPages: total}
}
