package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/robertkrimen/otto"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Условия goto записываются выражениями HCL:
//
//	input < 10
//	num >= 10 && input != "skip"
//	input.status == "ok" || length(input.items) > 0
//
// Выражение, которое HCL не смог разобрать или вычислить, вычисляется
// как выражение JavaScript (встроенный otto), поэтому условия вида
// input.length > 2 или input === "ok" тоже работают.
//
// Переменные: input — вход goto-узла, num — вход, приведённый к числу
// (true/false дают 1/0; null, если приведение невозможно). Выражение
// не имеет доступа к файловой системе, сети и окружению процесса.

// conditionTimeout — предел времени вычисления JS-условия.
const conditionTimeout = time.Second

// errConditionTimeout — JS-условие не уложилось в conditionTimeout.
var errConditionTimeout = errors.New("condition evaluation timed out")

// conditionFuncs — функции, доступные в условиях.
var conditionFuncs = map[string]function.Function{
	"abs":      stdlib.AbsoluteFunc,
	"contains": stdlib.ContainsFunc,
	"keys":     stdlib.KeysFunc,
	"length":   stdlib.LengthFunc,
	"lower":    stdlib.LowerFunc,
	"max":      stdlib.MaxFunc,
	"min":      stdlib.MinFunc,
	"strlen":   stdlib.StrlenFunc,
	"tonumber": stdlib.MakeToFunc(cty.Number),
	"tostring": stdlib.MakeToFunc(cty.String),
	"upper":    stdlib.UpperFunc,
}

// EvalCondition вычисляет выражение условия для входа.
//
// Результат приводится к логическому значению как в JavaScript:
// false, null, 0 и "" ложны, остальное истинно.
// Если выражение не вычисляется ни как HCL, ни как JavaScript,
// возвращается ошибка; вызывающий код считает такое правило ложным.
func EvalCondition(expr string, input any) (bool, error) {
	ok, hclErr := evalHCL(expr, input)
	if hclErr == nil {
		return ok, nil
	}

	ok, jsErr := evalJS(expr, input)
	if jsErr == nil {
		return ok, nil
	}
	return false, fmt.Errorf("hcl: %v; javascript: %w", hclErr, jsErr)
}

// evalHCL вычисляет условие как выражение HCL.
func evalHCL(expr string, input any) (bool, error) {
	parsed, diags := hclsyntax.ParseExpression([]byte(expr), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return false, diags
	}

	in, err := toCty(input)
	if err != nil {
		return false, err
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"input": in,
			"num":   numberView(in),
		},
		Functions: conditionFuncs,
	}

	val, diags := parsed.Value(evalCtx)
	if diags.HasErrors() {
		return false, diags
	}

	return truthy(val)
}

// evalJS вычисляет условие как выражение JavaScript.
func evalJS(expr string, input any) (ok bool, err error) {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return false, fmt.Errorf("encode input: %w", err)
	}
	numJSON := []byte("null")
	if n, isNum := toNumber(input); isNum {
		numJSON, _ = json.Marshal(n)
	}

	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)
	if err := vm.Set("__conditionInput", string(inputJSON)); err != nil {
		return false, fmt.Errorf("bind input: %w", err)
	}

	timer := time.AfterFunc(conditionTimeout, func() {
		vm.Interrupt <- func() { panic(errConditionTimeout) }
	})
	defer timer.Stop()

	defer func() {
		if caught := recover(); caught != nil {
			if caught == errConditionTimeout {
				ok, err = false, errConditionTimeout
				return
			}
			panic(caught)
		}
	}()

	val, err := vm.Run("(function(input, num) {\nreturn (" + expr + "\n);\n})(JSON.parse(__conditionInput), " + string(numJSON) + ")")
	if err != nil {
		return false, err
	}
	return val.ToBoolean()
}

// toNumber приводит JSON-значение к конечному числу.
func toNumber(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case bool:
		if x {
			n = 1
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// toCty переводит JSON-совместимое значение в cty.Value.
func toCty(v any) (cty.Value, error) {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("encode input: %w", err)
	}

	ty, err := ctyjson.ImpliedType(data)
	if err != nil {
		return cty.NilVal, fmt.Errorf("infer input type: %w", err)
	}

	val, err := ctyjson.Unmarshal(data, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decode input: %w", err)
	}
	return val, nil
}

// numberView приводит значение к числу; null, если это невозможно.
func numberView(v cty.Value) cty.Value {
	if v.IsNull() || !v.IsKnown() {
		return cty.NullVal(cty.Number)
	}
	if v.Type() == cty.Bool {
		if v.True() {
			return cty.NumberIntVal(1)
		}
		return cty.NumberIntVal(0)
	}
	n, err := convert.Convert(v, cty.Number)
	if err != nil {
		return cty.NullVal(cty.Number)
	}
	return n
}

// truthy приводит результат выражения к bool.
func truthy(v cty.Value) (bool, error) {
	if !v.IsKnown() {
		return false, errors.New("condition result is unknown")
	}
	if v.IsNull() {
		return false, nil
	}

	switch ty := v.Type(); {
	case ty == cty.Bool:
		return v.True(), nil
	case ty == cty.Number:
		return v.AsBigFloat().Sign() != 0, nil
	case ty == cty.String:
		return v.AsString() != "", nil
	default:
		return true, nil
	}
}
