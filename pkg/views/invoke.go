package views

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
)

// RunMap invokes a compiled map function against one document, returning
// the rows it emitted. Each call gets a brand-new goja.Runtime (spec
// §4.3: "each document is processed in a fresh sandbox instance"); only
// the compiled *goja.Program is shared across invocations.
func RunMap(ctx context.Context, compiled *CompiledSource, doc map[string]interface{}, budget runtimeBudget) ([]EmitRow, []string, error) {
	var rows []EmitRow
	var logs []string

	vm := newSandbox(
		func(key, value interface{}) { rows = append(rows, EmitRow{Key: key, Value: value}) },
		func(msg string) { logs = append(logs, msg) },
	)

	fnVal, err := vm.RunProgram(compiled.program)
	if err != nil {
		return nil, logs, fmt.Errorf("load map function: %w", err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, logs, fmt.Errorf("map source %q is not a function", compiled.src)
	}

	timedOut, err := runWithBudget(ctx, vm, budget, func() error {
		_, callErr := fn(goja.Undefined(), vm.ToValue(doc))
		return callErr
	})
	if timedOut {
		return nil, logs, fmt.Errorf("map invocation exceeded budget")
	}
	if err != nil {
		return nil, logs, err
	}
	return rows, logs, nil
}

// RunReduce invokes a compiled reduce function in either reduce or
// rereduce mode (spec §4.4 step 5).
func RunReduce(ctx context.Context, compiled *CompiledSource, keys []interface{}, values []interface{}, rereduce bool, budget runtimeBudget) (interface{}, error) {
	var logs []string
	vm := newSandbox(func(interface{}, interface{}) {}, func(msg string) { logs = append(logs, msg) })

	fnVal, err := vm.RunProgram(compiled.program)
	if err != nil {
		return nil, fmt.Errorf("load reduce function: %w", err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("reduce source is not a function")
	}

	var result goja.Value
	timedOut, err := runWithBudget(ctx, vm, budget, func() error {
		var keysArg interface{} = keys
		if rereduce {
			keysArg = nil
		}
		res, callErr := fn(goja.Undefined(), vm.ToValue(keysArg), vm.ToValue(values), vm.ToValue(rereduce))
		result = res
		return callErr
	})
	if timedOut {
		return nil, fmt.Errorf("reduce invocation exceeded budget")
	}
	if err != nil {
		return nil, err
	}
	return toGo(result), nil
}

// UpdateRequest describes the incoming HTTP request an update function
// receives as its second argument (spec §4.3).
type UpdateRequest struct {
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Query   map[string]string `json:"query"`
	Body    string            `json:"body"`
}

// UpdateOutcome is the decoded `[new_doc|null, response]` return value of
// an update function.
type UpdateOutcome struct {
	NewDoc   map[string]interface{}
	HasNewDoc bool
	Response UpdateResponse
}

// UpdateResponse is the `response` half of an update function's return
// value.
type UpdateResponse struct {
	Body    string
	Headers map[string]string
	Code    int
}

// RunUpdate invokes a compiled update function with (doc, req). doc is
// nil if the document does not exist. A thrown exception propagates as
// err, which the caller maps to *function-failure* (spec §4.3).
func RunUpdate(ctx context.Context, compiled *CompiledSource, doc map[string]interface{}, req UpdateRequest, budget runtimeBudget) (*UpdateOutcome, error) {
	vm := newSandbox(func(interface{}, interface{}) {}, func(string) {})

	fnVal, err := vm.RunProgram(compiled.program)
	if err != nil {
		return nil, fmt.Errorf("load update function: %w", err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("update source is not a function")
	}

	var docArg goja.Value
	if doc == nil {
		docArg = goja.Null()
	} else {
		docArg = vm.ToValue(doc)
	}

	var result goja.Value
	timedOut, callErr := runWithBudget(ctx, vm, budget, func() error {
		res, err := fn(goja.Undefined(), docArg, vm.ToValue(req))
		result = res
		return err
	})
	if timedOut {
		return nil, fmt.Errorf("update invocation exceeded budget")
	}
	if callErr != nil {
		return nil, callErr
	}

	return decodeUpdateResult(result)
}

func decodeUpdateResult(v interface{}) (*UpdateOutcome, error) {
	goVal := v
	if gv, ok := v.(goja.Value); ok {
		goVal = toGo(gv)
	}
	arr, ok := goVal.([]interface{})
	if !ok || len(arr) != 2 {
		return nil, fmt.Errorf("update function must return [doc|null, response]")
	}

	outcome := &UpdateOutcome{}
	if arr[0] != nil {
		doc, ok := arr[0].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("update function's new document must be an object or null")
		}
		outcome.NewDoc = doc
		outcome.HasNewDoc = true
	}

	respMap, ok := arr[1].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("update function's response must be an object")
	}
	if body, ok := respMap["body"].(string); ok {
		outcome.Response.Body = body
	}
	if code, ok := respMap["code"].(float64); ok {
		outcome.Response.Code = int(code)
	}
	if headers, ok := respMap["headers"].(map[string]interface{}); ok {
		outcome.Response.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			if s, ok := v.(string); ok {
				outcome.Response.Headers[k] = s
			}
		}
	}
	return outcome, nil
}
