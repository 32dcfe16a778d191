package math

import (
	"context"
	"fmt"
	gomath "math"
	"sort"

	"github.com/vitrinehq/vitrine/internal/shared/types"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Provider implements numeric operations for fragments. Scripts keep their
// sandbox budget small by pushing dataset work here instead of looping in JS.
type Provider struct{}

// NewProvider creates a math provider
func NewProvider() *Provider {
	return &Provider{}
}

// Definition returns service metadata
func (m *Provider) Definition() types.Service {
	numbersParam := types.Parameter{Name: "numbers", Type: "array", Description: "Dataset of numbers", Required: true}

	return types.Service{
		ID:          "math",
		Name:        "Math Service",
		Description: "Statistics and dataset operations",
		Category:    types.CategoryMath,
		Capabilities: []string{
			"statistics",
			"aggregation",
			"percentiles",
		},
		Tools: []types.Tool{
			{
				ID:          "math.sum",
				Name:        "Sum",
				Description: "Sum of a dataset",
				Parameters:  []types.Parameter{numbersParam},
				Returns:     "number",
			},
			{
				ID:          "math.mean",
				Name:        "Mean",
				Description: "Arithmetic mean of a dataset",
				Parameters:  []types.Parameter{numbersParam},
				Returns:     "number",
			},
			{
				ID:          "math.median",
				Name:        "Median",
				Description: "Median of a dataset",
				Parameters:  []types.Parameter{numbersParam},
				Returns:     "number",
			},
			{
				ID:          "math.stdev",
				Name:        "Standard Deviation",
				Description: "Sample standard deviation with variance and mean",
				Parameters:  []types.Parameter{numbersParam},
				Returns:     "object",
			},
			{
				ID:          "math.minmax",
				Name:        "Min and Max",
				Description: "Smallest and largest values of a dataset",
				Parameters:  []types.Parameter{numbersParam},
				Returns:     "object",
			},
			{
				ID:          "math.percentile",
				Name:        "Percentile",
				Description: "Nth percentile of a dataset",
				Parameters: []types.Parameter{
					numbersParam,
					{Name: "p", Type: "number", Description: "Percentile between 0 and 100", Required: true},
				},
				Returns: "number",
			},
			{
				ID:          "math.correlation",
				Name:        "Correlation",
				Description: "Pearson correlation between two datasets",
				Parameters: []types.Parameter{
					{Name: "x", Type: "array", Description: "First dataset", Required: true},
					{Name: "y", Type: "array", Description: "Second dataset", Required: true},
				},
				Returns: "number",
			},
			{
				ID:          "math.round",
				Name:        "Round",
				Description: "Round a value to N decimal places",
				Parameters: []types.Parameter{
					{Name: "value", Type: "number", Description: "Value to round", Required: true},
					{Name: "decimals", Type: "number", Description: "Decimal places (default 0)", Required: false},
				},
				Returns: "number",
			},
		},
	}
}

// Execute runs a math operation
func (m *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, fragCtx *types.Context) (*types.Result, error) {
	switch toolID {
	case "math.sum":
		return m.sum(params)
	case "math.mean":
		return m.mean(params)
	case "math.median":
		return m.median(params)
	case "math.stdev":
		return m.stdev(params)
	case "math.minmax":
		return m.minmax(params)
	case "math.percentile":
		return m.percentile(params)
	case "math.correlation":
		return m.correlation(params)
	case "math.round":
		return m.round(params)
	default:
		return failure(fmt.Sprintf("unknown tool: %s", toolID))
	}
}

func (m *Provider) sum(params map[string]interface{}) (*types.Result, error) {
	numbers, err := getNumbers(params, "numbers")
	if err != nil {
		return failure(err.Error())
	}
	return success(map[string]interface{}{"result": floats.Sum(numbers)})
}

func (m *Provider) mean(params map[string]interface{}) (*types.Result, error) {
	numbers, err := getNumbers(params, "numbers")
	if err != nil {
		return failure(err.Error())
	}
	return success(map[string]interface{}{"result": stat.Mean(numbers, nil)})
}

func (m *Provider) median(params map[string]interface{}) (*types.Result, error) {
	numbers, err := getNumbers(params, "numbers")
	if err != nil {
		return failure(err.Error())
	}

	sorted := make([]float64, len(numbers))
	copy(sorted, numbers)
	sort.Float64s(sorted)

	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return success(map[string]interface{}{"result": median})
}

func (m *Provider) stdev(params map[string]interface{}) (*types.Result, error) {
	numbers, err := getNumbers(params, "numbers")
	if err != nil {
		return failure(err.Error())
	}
	if len(numbers) < 2 {
		return failure("numbers array with at least 2 elements required")
	}

	mean := stat.Mean(numbers, nil)
	variance := stat.Variance(numbers, nil)

	return success(map[string]interface{}{
		"result":   gomath.Sqrt(variance),
		"variance": variance,
		"mean":     mean,
	})
}

func (m *Provider) minmax(params map[string]interface{}) (*types.Result, error) {
	numbers, err := getNumbers(params, "numbers")
	if err != nil {
		return failure(err.Error())
	}

	return success(map[string]interface{}{
		"min": floats.Min(numbers),
		"max": floats.Max(numbers),
	})
}

func (m *Provider) percentile(params map[string]interface{}) (*types.Result, error) {
	numbers, err := getNumbers(params, "numbers")
	if err != nil {
		return failure(err.Error())
	}

	p, ok := getNumber(params, "p")
	if !ok || p < 0 || p > 100 {
		return failure("p must be between 0 and 100")
	}

	sorted := make([]float64, len(numbers))
	copy(sorted, numbers)
	sort.Float64s(sorted)

	value := stat.Quantile(p/100, stat.Empirical, sorted, nil)
	return success(map[string]interface{}{"result": value, "p": p})
}

func (m *Provider) correlation(params map[string]interface{}) (*types.Result, error) {
	x, err := getNumbers(params, "x")
	if err != nil {
		return failure(err.Error())
	}
	y, err := getNumbers(params, "y")
	if err != nil {
		return failure(err.Error())
	}
	if len(x) != len(y) {
		return failure("x and y must have equal length")
	}
	if len(x) < 2 {
		return failure("datasets need at least 2 elements")
	}

	return success(map[string]interface{}{"result": stat.Correlation(x, y, nil)})
}

func (m *Provider) round(params map[string]interface{}) (*types.Result, error) {
	value, ok := getNumber(params, "value")
	if !ok {
		return failure("value required")
	}

	decimals := 0.0
	if d, ok := getNumber(params, "decimals"); ok {
		decimals = d
	}
	if decimals < 0 || decimals > 15 {
		return failure("decimals must be between 0 and 15")
	}

	shift := gomath.Pow(10, decimals)
	return success(map[string]interface{}{"result": gomath.Round(value*shift) / shift})
}

// getNumbers extracts a float64 slice with type coercion, rejecting NaN and Inf
func getNumbers(params map[string]interface{}, key string) ([]float64, error) {
	arr, ok := params[key].([]interface{})
	if !ok {
		if direct, ok := params[key].([]float64); ok && len(direct) > 0 {
			return validated(direct, key)
		}
		return nil, fmt.Errorf("%s array required", key)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("%s array required", key)
	}

	numbers := make([]float64, 0, len(arr))
	for _, v := range arr {
		switch num := v.(type) {
		case float64:
			numbers = append(numbers, num)
		case int:
			numbers = append(numbers, float64(num))
		case int64:
			numbers = append(numbers, float64(num))
		case float32:
			numbers = append(numbers, float64(num))
		default:
			return nil, fmt.Errorf("%s must contain only numbers", key)
		}
	}
	return validated(numbers, key)
}

func validated(nums []float64, name string) ([]float64, error) {
	for i, x := range nums {
		if gomath.IsNaN(x) || gomath.IsInf(x, 0) {
			return nil, fmt.Errorf("%s[%d] is not finite", name, i)
		}
	}
	return nums, nil
}

func getNumber(params map[string]interface{}, key string) (float64, bool) {
	val, ok := params[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	default:
		return 0, false
	}
}

func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	errMsg := message
	return &types.Result{Success: false, Error: &errMsg}, fmt.Errorf("%s", message)
}
