package compute

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// 支持的计算操作
const (
	OpSimplify   = "simplify"
	OpSolve      = "solve"
	OpDerivative = "derivative"
	OpIntegral   = "integral"
	OpExpand     = "expand"
	OpFactor     = "factor"
)

// ErrUnknownOperation 表示请求了不支持的计算操作
var ErrUnknownOperation = errors.New("unknown compute operation")

// Request 符号计算请求
type Request struct {
	Expression string `json:"expression"`            // 数学表达式
	Operation  string `json:"operation"`             // 操作类型
	Variable   string `json:"variable,omitempty"`    // 变量名，默认x
	Order      int    `json:"order,omitempty"`       // 导数阶数
	LowerBound string `json:"lower_bound,omitempty"` // 定积分下限
	UpperBound string `json:"upper_bound,omitempty"` // 定积分上限
}

// Result 符号计算结果
type Result struct {
	Success   bool              `json:"success"`             // 计算是否成功
	Operation string            `json:"operation"`           // 操作类型
	Original  string            `json:"original"`            // 解析后的原始表达式
	Value     string            `json:"result,omitempty"`    // 计算结果
	Latex     string            `json:"latex,omitempty"`     // LaTeX表示
	Details   map[string]string `json:"details,omitempty"`   // 操作相关的附加字段
	Solutions []string          `json:"solutions,omitempty"` // 方程的解
	Error     string            `json:"error,omitempty"`     // 错误信息
}

// Client 符号计算客户端接口
// 封装外部SymPy计算服务的各类操作
type Client interface {
	// Simplify 化简表达式
	Simplify(ctx context.Context, expression string) (*Result, error)

	// Solve 求解方程，variable为空时默认求解x
	Solve(ctx context.Context, equation string, variable string) (*Result, error)

	// Derivative 计算导数，order小于1时按一阶处理
	Derivative(ctx context.Context, expression string, variable string, order int) (*Result, error)

	// Integral 计算积分，上下限均非空时计算定积分
	Integral(ctx context.Context, expression string, variable string, lowerBound, upperBound string) (*Result, error)

	// Expand 展开表达式
	Expand(ctx context.Context, expression string) (*Result, error)

	// Factor 因式分解
	Factor(ctx context.Context, expression string) (*Result, error)

	// Compute 按操作名称分派计算请求
	Compute(ctx context.Context, req *Request) (*Result, error)
}

// MathClient 基于HTTP计算服务实现的符号计算客户端
type MathClient struct {
	http httpDoer
}

// NewMathClient 创建一个新的符号计算客户端
func NewMathClient(config *ServiceConfig) *MathClient {
	return &MathClient{
		http: NewHTTPClient(config),
	}
}

// Simplify 化简表达式
func (m *MathClient) Simplify(ctx context.Context, expression string) (*Result, error) {
	return m.post(ctx, &Request{Expression: expression, Operation: OpSimplify})
}

// Solve 求解方程
func (m *MathClient) Solve(ctx context.Context, equation string, variable string) (*Result, error) {
	if variable == "" {
		variable = "x"
	}
	return m.post(ctx, &Request{Expression: equation, Operation: OpSolve, Variable: variable})
}

// Derivative 计算导数
func (m *MathClient) Derivative(ctx context.Context, expression string, variable string, order int) (*Result, error) {
	if variable == "" {
		variable = "x"
	}
	if order < 1 {
		order = 1
	}
	return m.post(ctx, &Request{
		Expression: expression,
		Operation:  OpDerivative,
		Variable:   variable,
		Order:      order,
	})
}

// Integral 计算积分
func (m *MathClient) Integral(ctx context.Context, expression string, variable string, lowerBound, upperBound string) (*Result, error) {
	if variable == "" {
		variable = "x"
	}
	return m.post(ctx, &Request{
		Expression: expression,
		Operation:  OpIntegral,
		Variable:   variable,
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
}

// Expand 展开表达式
func (m *MathClient) Expand(ctx context.Context, expression string) (*Result, error) {
	return m.post(ctx, &Request{Expression: expression, Operation: OpExpand})
}

// Factor 因式分解
func (m *MathClient) Factor(ctx context.Context, expression string) (*Result, error) {
	return m.post(ctx, &Request{Expression: expression, Operation: OpFactor})
}

// Compute 按操作名称分派计算请求
func (m *MathClient) Compute(ctx context.Context, req *Request) (*Result, error) {
	switch req.Operation {
	case OpSimplify, OpSolve, OpDerivative, OpIntegral, OpExpand, OpFactor:
		return m.post(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, req.Operation)
	}
}

// post 发送计算请求到计算服务
func (m *MathClient) post(ctx context.Context, req *Request) (*Result, error) {
	var result Result
	if err := m.http.Post(ctx, "/compute/", req, &result); err != nil {
		return nil, fmt.Errorf("compute operation %s failed: %w", req.Operation, err)
	}
	return &result, nil
}

// 各操作对应的查询关键词
var operationKeywords = map[string][]string{
	OpSimplify:   {"simplify", "simplification"},
	OpSolve:      {"solve", "solution", "roots"},
	OpDerivative: {"derivative", "differentiate", "diff"},
	OpIntegral:   {"integral", "integrate", "antiderivative"},
	OpExpand:     {"expand", "expansion"},
	OpFactor:     {"factor", "factorize", "factorization"},
}

// 关键词匹配的检查顺序
var operationOrder = []string{OpSimplify, OpSolve, OpDerivative, OpIntegral, OpExpand, OpFactor}

// DetectOperation 根据查询内容判断是否需要符号计算
// 返回匹配到的操作名称，没有匹配时返回空字符串
func DetectOperation(query string) string {
	lower := strings.ToLower(query)
	for _, op := range operationOrder {
		for _, keyword := range operationKeywords[op] {
			if strings.Contains(lower, keyword) {
				return op
			}
		}
	}
	return ""
}
