package model

// Page is an in-memory copy of one fixed size region of the heap file.
type Page struct {
	Number uint32
	Data   []byte
}

func NewPage(number uint32, size int) *Page {
	return &Page{
		Number: number,
		Data:   make([]byte, size),
	}
}

// FileOffset return where the page starts in the heap file
func (p *Page) FileOffset() int64 {
	return int64(p.Number) * int64(len(p.Data))
}

func (p *Page) Size() int {
	return len(p.Data)
}

// Clone copies the page data, cached pages must never be mutated
func (p *Page) Clone() *Page {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return &Page{
		Number: p.Number,
		Data:   data,
	}
}
