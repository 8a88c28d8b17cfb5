package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

type calculatorArgs struct {
	FirstNum  float64 `json:"first_num"`
	SecondNum float64 `json:"second_num"`
	Operator  string  `json:"operator"`
}

// NewCalculatorTool returns a tool performing a basic arithmetic operation
// between two numbers. Runs locally; no network involved.
func NewCalculatorTool() Tool {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"first_num": {"type": "number"},
			"second_num": {"type": "number"},
			"operator": {"type": "string", "enum": ["+", "-", "*", "/", "^"]}
		},
		"required": ["first_num", "second_num", "operator"]
	}`)

	return NewBaseTool(
		"calculator",
		"Perform a basic arithmetic operation (+, -, *, /, ^) between two numbers.",
		schema,
		func(_ context.Context, arguments string) (string, error) {
			var args calculatorArgs
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return "", fmt.Errorf("invalid calculator arguments: %w", err)
			}

			var result float64
			switch args.Operator {
			case "+":
				result = args.FirstNum + args.SecondNum
			case "-":
				result = args.FirstNum - args.SecondNum
			case "*":
				result = args.FirstNum * args.SecondNum
			case "/":
				if args.SecondNum == 0 {
					return "", fmt.Errorf("division by zero")
				}
				result = args.FirstNum / args.SecondNum
			case "^":
				result = math.Pow(args.FirstNum, args.SecondNum)
			default:
				return "", fmt.Errorf("unsupported operator: %s", args.Operator)
			}

			out, err := json.Marshal(map[string]float64{"result": result})
			if err != nil {
				return "", err
			}
			return string(out), nil
		},
	)
}
