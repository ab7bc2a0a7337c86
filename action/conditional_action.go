package action

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

var _ Action = new(conditionalAction)

// conditionalAction evaluates a javascript expression against the resolved
// action config. A falsy result fails the stage, which lets a relay record
// a failed branch without stopping subsequent stages.
type conditionalAction struct{}

func NewConditionalAction() *conditionalAction {
	return &conditionalAction{}
}

func (a *conditionalAction) GetName() string {
	return ACTION_TYPE_CONDITIONAL
}

func (a *conditionalAction) Validate(config map[string]any) error {
	return requireParams(config, "expression")
}

func (a *conditionalAction) Execute(config map[string]any) (map[string]any, error) {
	expression, ok := stringParam(config, "expression")
	if !ok || len(expression) == 0 {
		return nil, fmt.Errorf("conditional action requires a non-empty \"expression\" in config")
	}
	data, _ := json.Marshal(config)
	script := fmt.Sprintf("var $ = %s;\n", data)
	script = script + expression
	vm := goja.New()
	val, err := vm.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("error evaluating expression %w", err)
	}
	if !val.ToBoolean() {
		return nil, fmt.Errorf("condition evaluated to false")
	}
	return map[string]any{"result": val.Export()}, nil
}
