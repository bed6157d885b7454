package pricing

import "backend/internal/config"

// Rate 单模型费率（每1K token，美元）
type Rate struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Table 模型费率表
// 启动时由配置加载，之后只读，可被并发安全地共享。
type Table struct {
	rates       map[string]Rate
	defaultRate Rate
}

// NewTable 创建费率表
func NewTable(rates map[string]Rate, defaultRate Rate) *Table {
	copied := make(map[string]Rate, len(rates))
	for model, r := range rates {
		copied[model] = r
	}
	return &Table{rates: copied, defaultRate: defaultRate}
}

// NewTableFromConfig 从配置创建费率表
func NewTableFromConfig(cfg *config.PricingConfig) *Table {
	rates := make(map[string]Rate, len(cfg.Rates))
	for model, r := range cfg.Rates {
		rates[model] = Rate{InputPer1K: r.InputPer1K, OutputPer1K: r.OutputPer1K}
	}
	return NewTable(rates, Rate{
		InputPer1K:  cfg.Default.InputPer1K,
		OutputPer1K: cfg.Default.OutputPer1K,
	})
}

// RateFor 查询模型费率，未命中时回退到默认费率
func (t *Table) RateFor(model string) Rate {
	if r, ok := t.rates[model]; ok {
		return r
	}
	return t.defaultRate
}

// EstimateCost 估算一次调用的成本（美元）
// 纯函数：负数 token 按 0 处理，不做舍入，展示层自行格式化。
func (t *Table) EstimateCost(model string, inputTokens, outputTokens int64) float64 {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}

	rate := t.RateFor(model)
	return float64(inputTokens)/1000.0*rate.InputPer1K +
		float64(outputTokens)/1000.0*rate.OutputPer1K
}
