package domain

import "encoding/json"

// NodeKind — тип узла flow-документа.
//
// constant, goto и flow обрабатываются движком напрямую.
// Остальные типы — backend'ы, исполняющие код узла через очередь задач.
type NodeKind string

const (
	// KindConstant — узел с литеральным значением.
	KindConstant NodeKind = "constant"

	// KindGoto — узел динамического перехода по условиям.
	KindGoto NodeKind = "goto"

	// KindFlow — вложенный flow-документ.
	KindFlow NodeKind = "flow"

	// KindJavaScript — JavaScript, исполняется встроенным интерпретатором.
	KindJavaScript NodeKind = "javascript"

	// KindPython — Python-скрипт во внешнем процессе.
	KindPython NodeKind = "python"

	// KindNode — JavaScript в процессе Node.js.
	KindNode NodeKind = "node"

	// KindShell — shell-скрипт (sh на unix, cmd на windows).
	KindShell NodeKind = "shell"

	// KindPowerShell — PowerShell-скрипт.
	KindPowerShell NodeKind = "powershell"
)

// IsControl возвращает true для типов, которые движок исполняет сам,
// без обращения к очереди задач.
func (k NodeKind) IsControl() bool {
	switch k {
	case KindConstant, KindGoto, KindFlow:
		return true
	default:
		return false
	}
}

// IsValid проверяет, известен ли тип узла.
func (k NodeKind) IsValid() bool {
	switch k {
	case KindConstant, KindGoto, KindFlow,
		KindJavaScript, KindPython, KindNode, KindShell, KindPowerShell:
		return true
	default:
		return false
	}
}

// FlowDocument — декларативный граф задач.
//
// Узлы хранятся в порядке создания: этот порядок используется
// при выборе точки входа. Рёбра задают статические зависимости
// и образуют ациклический граф; циклы во время выполнения возможны
// только через goto.
type FlowDocument struct {
	// Nodes — узлы в порядке создания.
	Nodes []Node `json:"nodes"`

	// Edges — рёбра source → target.
	Edges []Edge `json:"edges"`

	// Path — абсолютный путь к файлу документа.
	// Пустой для документов, встроенных в узел flow.
	Path string `json:"-"`

	// Dir — базовая директория для относительных путей (codeFilePath, вложенные flow).
	Dir string `json:"-"`
}

// Node — узел flow-документа.
type Node struct {
	// ID — уникальный идентификатор узла в рамках документа.
	ID string `json:"id"`

	// Kind — тип узла (data.type в JSON).
	Kind NodeKind `json:"kind"`

	// Label — отображаемое имя.
	Label string `json:"label,omitempty"`

	// Code — исходный код узла (или ссылка на документ для flow).
	Code string `json:"code,omitempty"`

	// CodeFilePath — путь к внешнему файлу с кодом,
	// относительно директории документа.
	CodeFilePath string `json:"codeFilePath,omitempty"`

	// Value — литерал узла constant.
	Value any `json:"value,omitempty"`

	// IsStarterNode — явная точка входа.
	IsStarterNode bool `json:"isStarterNode,omitempty"`

	// Conditions — правила перехода (только для goto), проверяются по порядку.
	Conditions []Condition `json:"conditions,omitempty"`

	// DontWaitForOutput — fire-and-forget: движок не ждёт результат.
	DontWaitForOutput bool `json:"dontWaitForOutput,omitempty"`

	// TimeoutMs — таймаут выполнения узла в миллисекундах (0 — по умолчанию).
	TimeoutMs int64 `json:"timeout,omitempty"`

	// Index — порядковый номер узла в документе.
	Index int `json:"-"`
}

// Condition — правило перехода goto-узла.
type Condition struct {
	// Expr — логическое выражение над input и num.
	Expr string `json:"expr"`

	// Goto — ID целевого узла.
	Goto string `json:"goto"`

	// ForwardInput — передать целевому узлу вход goto-узла вместо
	// выходов его структурных предшественников.
	ForwardInput bool `json:"forwardInput,omitempty"`
}

// Edge — ребро графа.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// rawDocument — формат документа на диске.
type rawDocument struct {
	Nodes []rawNode `json:"nodes"`
	Edges []Edge    `json:"edges"`
}

type rawNode struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data rawNodeData `json:"data"`
}

type rawNodeData struct {
	Type              string      `json:"type"`
	Label             string      `json:"label"`
	Code              string      `json:"code"`
	CodeFilePath      string      `json:"codeFilePath"`
	Value             any         `json:"value"`
	IsStarterNode     bool        `json:"isStarterNode"`
	Conditions        []Condition `json:"conditions"`
	DontWaitForOutput bool        `json:"dontWaitForOutput"`
	Timeout           int64       `json:"timeout"`
}

// UnmarshalJSON разбирает документ в формате редактора:
// {nodes: [{id, type, data: {...}}], edges: [...]}.
//
// Тип узла берётся из data.type, при отсутствии — из type.
func (d *FlowDocument) UnmarshalJSON(b []byte) error {
	var raw rawDocument
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	d.Nodes = make([]Node, 0, len(raw.Nodes))
	for i, rn := range raw.Nodes {
		kind := rn.Data.Type
		if kind == "" {
			kind = rn.Type
		}
		d.Nodes = append(d.Nodes, Node{
			ID:                rn.ID,
			Kind:              NodeKind(kind),
			Label:             rn.Data.Label,
			Code:              rn.Data.Code,
			CodeFilePath:      rn.Data.CodeFilePath,
			Value:             rn.Data.Value,
			IsStarterNode:     rn.Data.IsStarterNode,
			Conditions:        rn.Data.Conditions,
			DontWaitForOutput: rn.Data.DontWaitForOutput,
			TimeoutMs:         rn.Data.Timeout,
			Index:             i,
		})
	}

	d.Edges = raw.Edges
	if d.Edges == nil {
		d.Edges = make([]Edge, 0)
	}

	return nil
}

// MarshalJSON сериализует документ обратно в формат редактора.
func (d FlowDocument) MarshalJSON() ([]byte, error) {
	raw := rawDocument{
		Nodes: make([]rawNode, 0, len(d.Nodes)),
		Edges: d.Edges,
	}
	for _, n := range d.Nodes {
		raw.Nodes = append(raw.Nodes, rawNode{
			ID:   n.ID,
			Type: string(n.Kind),
			Data: rawNodeData{
				Type:              string(n.Kind),
				Label:             n.Label,
				Code:              n.Code,
				CodeFilePath:      n.CodeFilePath,
				Value:             n.Value,
				IsStarterNode:     n.IsStarterNode,
				Conditions:        n.Conditions,
				DontWaitForOutput: n.DontWaitForOutput,
				Timeout:           n.TimeoutMs,
			},
		})
	}
	return json.Marshal(raw)
}

// NodeByID ищет узел по ID линейным проходом.
// Для частых обращений используйте индекс engine.Graph.
func (d *FlowDocument) NodeByID(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}
