package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/OrderFlow/internal/outbound"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными writer'ами.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Order выводит заказ: строку заказа и таблицу позиций.
func (o *Output) Order(msg *outbound.OrderMessage) {
	if o.jsonMode {
		o.JSON(msg)
		return
	}

	o.Table(
		[]string{"ORDER_ID", "EXTERNAL_ID", "STATUS", "TOTAL", "CREATED"},
		[][]string{{
			formatOrderID(msg.OrderID),
			msg.ExternalID,
			msg.Status,
			formatAmount(msg.TotalValue),
			formatTime(msg.CreatedAt),
		}},
	)

	if len(msg.Items) == 0 {
		return
	}

	fmt.Fprintln(o.w)
	rows := make([][]string, len(msg.Items))
	for i, item := range msg.Items {
		rows[i] = []string{
			item.ProductName,
			formatAmount(item.UnitPrice),
			strconv.Itoa(item.Quantity),
			formatAmount(item.TotalAmount),
		}
	}
	o.Table([]string{"PRODUCT", "UNIT_PRICE", "QTY", "AMOUNT"}, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	// Заголовки
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	// Разделитель
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	// Строки данных
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

func formatOrderID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

func formatAmount(a outbound.Amount) string {
	if !a.Valid {
		return "-"
	}
	return a.Decimal.StringFixed(2)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
