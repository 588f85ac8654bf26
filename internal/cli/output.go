package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/engine"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(w, errW io.Writer, jsonMode bool) *Output {
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

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

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

// Report выводит итог запуска flow.
// В табличном режиме логи узлов идут в stderr, итог — в stdout.
func (o *Output) Report(report *engine.Report, runErr error) {
	if o.jsonMode {
		errMsg := ""
		if runErr != nil {
			errMsg = runErr.Error()
		}
		o.JSON(struct {
			*engine.Report
			Error string `json:"error,omitempty"`
		}{report, errMsg})
		return
	}

	for _, line := range report.Logs {
		fmt.Fprintln(o.errW, line)
	}

	o.Table(
		[]string{"ENTRY", "STEPS", "EXECUTED", "OUTPUT"},
		[][]string{{report.Entry, strconv.Itoa(report.Steps), strings.Join(report.Executed, ","), FormatValue(report.Output)}},
	)
}

// Result выводит результат задачи.
func (o *Output) Result(id string, result *domain.Result) {
	if result == nil {
		o.Print([]string{"ID", "STATUS"}, [][]string{{id, domain.JobStatusQueued.String()}},
			map[string]string{"id": id, "status": domain.JobStatusQueued.String()})
		return
	}

	if !o.jsonMode && result.Log != "" {
		fmt.Fprintln(o.errW, result.Log)
	}
	o.Print(
		[]string{"ID", "STATUS", "TIME_MS", "OUTPUT", "ERROR"},
		[][]string{{
			id,
			domain.StatusOf(result).String(),
			strconv.FormatInt(result.ExecutionTime, 10),
			FormatValue(result.Output),
			result.Error,
		}},
		result,
	)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// FormatValue выводит значение в одну строку: строки как есть,
// остальное компактным JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
