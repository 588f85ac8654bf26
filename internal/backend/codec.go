package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shaiso/flowrun/internal/domain"
)

// maxErrorLen — ограничение длины сообщения об ошибке из stderr.
const maxErrorLen = 2000

// errorPatterns — эвристики ошибок по выводу процесса.
//
// Нужны там, где код выхода ненадёжен: sh возвращает код последней
// команды, PowerShell часто завершается с 0 после non-terminating error.
var errorPatterns = map[domain.NodeKind][]*regexp.Regexp{
	domain.KindShell: {
		regexp.MustCompile(`(?m): (command )?not found$`),
		regexp.MustCompile(`(?m)^Error: `),
	},
	domain.KindPowerShell: {
		regexp.MustCompile(`(?m)^\s*\+ CategoryInfo\s*:`),
		regexp.MustCompile(`(?m)^\s*\+ FullyQualifiedErrorId\s*:`),
		regexp.MustCompile(`(?m)^Exception calling `),
	},
	domain.KindPython: {
		regexp.MustCompile(`(?m)^Traceback \(most recent call last\):`),
	},
	domain.KindNode: {
		regexp.MustCompile(`(?m)^(Uncaught )?\w*Error: `),
	},
}

// DetectError ищет признаки ошибки в выводе процесса.
// Возвращает первую совпавшую строку вывода или "".
func DetectError(kind domain.NodeKind, output string) string {
	for _, re := range errorPatterns[kind] {
		loc := re.FindStringIndex(output)
		if loc == nil {
			continue
		}
		return lineAt(output, loc[0])
	}
	return ""
}

// lineAt возвращает строку, содержащую позицию pos.
func lineAt(s string, pos int) string {
	start := strings.LastIndexByte(s[:pos], '\n') + 1
	end := strings.IndexByte(s[pos:], '\n')
	if end < 0 {
		return strings.TrimSpace(s[start:])
	}
	return strings.TrimSpace(s[start : pos+end])
}

// DecodeOutput разбирает вывод backend'а.
//
// Пустой вывод — nil. Валидный JSON — соответствующее значение.
// Иначе — строка без обрамляющих пробелов.
func DecodeOutput(data []byte) any {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err == nil {
		return v
	}
	return string(trimmed)
}

// ReadOutputFile читает side-channel файл результата.
// ok=false, если файл не создан или пуст: тогда результат берётся из stdout.
func ReadOutputFile(path string) (any, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read output file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false, nil
	}
	return DecodeOutput(data), true, nil
}

// WriteInputFile сериализует вход задачи в JSON-файл.
func WriteInputFile(path string, input any) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Normalize приводит значение к JSON-совместимому виду (числа — float64,
// объекты — map[string]any). Значения, которые нельзя сериализовать,
// превращаются в строку.
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Sprint(v)
	}
	return out
}

// errorMessage формирует текст ошибки по коду выхода и stderr.
func errorMessage(exitCode int, stderr string) string {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return fmt.Sprintf("process exited with code %d", exitCode)
	}
	if len(msg) > maxErrorLen {
		msg = "..." + tail(msg, maxErrorLen)
	}
	return msg
}

// tail возвращает не более n последних байт s, не разрезая руну.
func tail(s string, n int) string {
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

// joinLog склеивает stdout и stderr в единый лог.
func joinLog(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}
