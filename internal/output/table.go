package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by types that can render themselves as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// footerRenderer is implemented by tables that end with a totals row.
type footerRenderer interface {
	Footer() []string
}

// alignedRenderer is implemented by tables with right-aligned numeric columns.
type alignedRenderer interface {
	NumericColumns() []int
}

func newWriter(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// PrintTable writes `data` as a borderless table. Numeric columns are right
// aligned and a footer, if any, is printed as the last row.
func PrintTable(w io.Writer, data TableRenderer) error {
	headers := data.Headers()
	table := newWriter(w)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnSeparator("")

	alignment := make([]int, len(headers))
	for i := range alignment {
		alignment[i] = tablewriter.ALIGN_LEFT
	}
	if aligned, ok := data.(alignedRenderer); ok {
		for _, column := range aligned.NumericColumns() {
			if column >= 0 && column < len(alignment) {
				alignment[column] = tablewriter.ALIGN_RIGHT
			}
		}
	}
	table.SetColumnAlignment(alignment)

	if footed, ok := data.(footerRenderer); ok {
		if footer := footed.Footer(); len(footer) > 0 {
			table.SetFooter(footer)
			table.SetFooterAlignment(tablewriter.ALIGN_LEFT)
		}
	}

	table.AppendBulk(data.Rows())
	table.Render()
	return nil
}

// TableData is a TableRenderer built row by row.
type TableData struct {
	headers []string
	rows    [][]string
	numeric []int
	footer  []string
}

// NewTableData creates a new TableData with the given headers.
func NewTableData(headers ...string) *TableData {
	return &TableData{
		headers: headers,
		rows:    make([][]string, 0),
	}
}

// Numeric marks columns (by index) as numbers so they're right aligned.
func (t *TableData) Numeric(columns ...int) *TableData {
	t.numeric = append(t.numeric, columns...)
	return t
}

// AddRow adds a row to the table.
func (t *TableData) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

// SetFooter sets the totals row. Missing trailing cells are left blank.
func (t *TableData) SetFooter(cells ...string) {
	footer := make([]string, len(t.headers))
	copy(footer, cells)
	t.footer = footer
}

func (t *TableData) Headers() []string { return t.headers }

func (t *TableData) Rows() [][]string { return t.rows }

func (t *TableData) NumericColumns() []int { return t.numeric }

func (t *TableData) Footer() []string { return t.footer }

// PrintKeyValues prints one "key: value" line per pair with the values
// lined up.
func PrintKeyValues(w io.Writer, pairs [][2]string) error {
	table := newWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnSeparator(":")

	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}

	table.Render()
	return nil
}

// PrintGrid draws one character per block, `width` blocks per line. Each
// line starts with the number of its first block, and a space separates every
// group of 8 blocks.
func PrintGrid(w io.Writer, cells string, width int) error {
	if width <= 0 {
		return fmt.Errorf("grid width must be positive, got %d", width)
	}

	labelWidth := len(fmt.Sprint(max(len(cells)-1, 0)))
	var sb strings.Builder
	for start := 0; start < len(cells); start += width {
		end := min(start+width, len(cells))
		fmt.Fprintf(&sb, "%*d  ", labelWidth, start)
		for i := start; i < end; i++ {
			if i > start && (i-start)%8 == 0 {
				sb.WriteByte(' ')
			}
			sb.WriteByte(cells[i])
		}
		sb.WriteByte('\n')
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
