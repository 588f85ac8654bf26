package backend

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Скрипты-обёртки для внешних интерпретаторов.
//
// Пути к файлам входа и результата передаются через переменные окружения
// FLOW_INPUT_FILE и FLOW_OUTPUT_FILE, чтобы не экранировать их в коде.
// Код пользователя оборачивается в функцию с параметром input;
// возвращённое значение сериализуется в FLOW_OUTPUT_FILE.

const pythonWrapper = `import json
import os

with open(os.environ["FLOW_INPUT_FILE"], "r", encoding="utf-8") as __flow_f:
    input = json.load(__flow_f)


def __flow_main(input):
{{ indent 4 .Code }}


__flow_result = __flow_main(input)
with open(os.environ["FLOW_OUTPUT_FILE"], "w", encoding="utf-8") as __flow_f:
    json.dump(__flow_result, __flow_f, default=str)
`

const nodeWrapper = `const fs = require('fs');
const input = JSON.parse(fs.readFileSync(process.env.FLOW_INPUT_FILE, 'utf8'));

(async (input) => {
{{ .Code }}
})(input).then((result) => {
  fs.writeFileSync(process.env.FLOW_OUTPUT_FILE, JSON.stringify(result === undefined ? null : result));
}).catch((err) => {
  console.error('Error: ' + (err && err.stack ? err.stack : err));
  process.exit(1);
});
`

// shell: вход доступен как $FLOW_INPUT (JSON-текст) и $FLOW_INPUT_FILE.
// Результат — содержимое $FLOW_OUTPUT_FILE, если скрипт его записал, иначе stdout.
const shellWrapper = `{{ .Code }}
`

const cmdWrapper = `@echo off
{{ .Code }}
`

const powershellWrapper = `$ErrorActionPreference = 'Stop'
$flowInput = Get-Content -Raw -Path $env:FLOW_INPUT_FILE | ConvertFrom-Json
$flowResult = & {
    param($flowInput)
{{ indent 4 .Code }}
} $flowInput
if ($null -ne $flowResult) {
    $flowResult | ConvertTo-Json -Depth 32 -Compress | Set-Content -Path $env:FLOW_OUTPUT_FILE -Encoding utf8
}
`

// templateFuncs — дополнительные функции для шаблонов обёрток.
var templateFuncs = template.FuncMap{
	// indent — сдвигает каждую строку на n пробелов; пустой код
	// превращается в pass, чтобы тело функции Python оставалось валидным.
	"indent": func(n int, s string) string {
		pad := strings.Repeat(" ", n)
		if strings.TrimSpace(s) == "" {
			return pad + "pass"
		}
		lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
		for i, line := range lines {
			if line != "" {
				lines[i] = pad + line
			}
		}
		return strings.Join(lines, "\n")
	},
}

// wrapperData — данные для рендеринга обёртки.
type wrapperData struct {
	Code string
}

// renderWrapper рендерит скрипт-обёртку с кодом пользователя.
func renderWrapper(name, tmpl, code string) (string, error) {
	t, err := template.New(name).Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse %s wrapper: %w", name, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, wrapperData{Code: code}); err != nil {
		return "", fmt.Errorf("render %s wrapper: %w", name, err)
	}
	return buf.String(), nil
}
