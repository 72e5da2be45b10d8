package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// Columns 固定的七列，顺序即导出顺序
var Columns = []string{"date", "title", "url", "teaser", "text", "category", "region"}

// Article 一行结果；Text / Category / Region 为 nil 表示抓取不到
type Article struct {
	Date     string  `json:"date"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Teaser   string  `json:"teaser"`
	Text     *string `json:"text"`
	Category *string `json:"category"`
	Region   *string `json:"region"`
}

// Table 按列表顺序追加的内存表，不做去重
type Table struct {
	rows []Article
}

func NewTable() *Table {
	return &Table{rows: make([]Article, 0)}
}

func (t *Table) Append(a Article) {
	t.rows = append(t.rows, a)
}

func (t *Table) Len() int {
	return len(t.rows)
}

// Rows 返回行的副本
func (t *Table) Rows() []Article {
	out := make([]Article, len(t.rows))
	copy(out, t.rows)
	return out
}

// Column 按列名取出整列，nil 字段对应 nil
func (t *Table) Column(name string) ([]*string, error) {
	out := make([]*string, 0, len(t.rows))
	for i := range t.rows {
		v, err := t.rows[i].field(name)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (a *Article) field(name string) (*string, error) {
	switch name {
	case "date":
		return &a.Date, nil
	case "title":
		return &a.Title, nil
	case "url":
		return &a.URL, nil
	case "teaser":
		return &a.Teaser, nil
	case "text":
		return a.Text, nil
	case "category":
		return a.Category, nil
	case "region":
		return a.Region, nil
	}
	return nil, fmt.Errorf("dataset: unknown column %q", name)
}

// WriteCSV 写出表头与所有行，nil 写为空单元格
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("dataset: write csv header: %w", err)
	}
	for i := range t.rows {
		a := &t.rows[i]
		if err := cw.Write([]string{
			a.Date, a.Title, a.URL, a.Teaser,
			deref(a.Text), deref(a.Category), deref(a.Region),
		}); err != nil {
			return fmt.Errorf("dataset: write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON 以数组形式写出，nil 字段为 JSON null
func (t *Table) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t.rows); err != nil {
		return fmt.Errorf("dataset: write json: %w", err)
	}
	return nil
}

func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.rows)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
