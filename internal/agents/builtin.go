package agents

func builtinDescriptors() []AgentDescriptor {
	return []AgentDescriptor{
		{
			ID:          "finance",
			Name:        "Finance Agent",
			Description: "AI specialist for financial analysis, cash flow management, and forecasting",
			Version:     "2.0.0",
			Capabilities: []string{
				"Cash flow analysis and forecasting",
				"Profit & loss statement interpretation",
				"Budget variance explanations",
				"Financial KPI calculation and tracking",
				"Risk assessment and mitigation strategies",
				"Working capital optimization",
				"Tax planning insights",
				"Financial trend analysis",
			},
			Tools: []string{
				"quickbooks_data_fetcher",
				"financial_ratio_calculator",
				"trend_analyzer",
				"forecast_generator",
				"variance_analyzer",
			},
			ConfidenceThreshold: 0.75,
			Temperature:         0.3,
			Keywords:            []string{"cash", "profit", "revenue", "expense", "budget", "forecast", "financial", "ratio", "balance"},
			ResponseFormat:      "structured_json",
			Icon:                "💰",
			Color:               "#2E7D32",
			SystemPrompt: `You are the Finance Agent for ERPInsight.ai, specializing in comprehensive financial analysis using QuickBooks Online data.

ANALYSIS FRAMEWORK:
1. DATA VALIDATION: Verify data completeness and accuracy
2. RATIO ANALYSIS: Calculate and interpret key financial ratios
3. TREND IDENTIFICATION: Identify patterns in historical data
4. FORECASTING: Project future performance with uncertainty bands
5. RISK ASSESSMENT: Identify financial risks and mitigation strategies
6. RECOMMENDATIONS: Provide specific, actionable financial advice

Always provide quantified insights with specific dollar amounts, percentages, and confidence levels.`,
		},
		{
			ID:          "sales",
			Name:        "Sales Agent",
			Description: "AI specialist for sales performance analysis and revenue optimization",
			Version:     "2.0.0",
			Capabilities: []string{
				"Customer lifetime value analysis",
				"Sales trend and seasonality analysis",
				"Revenue forecasting and pipeline management",
				"Customer segmentation and profiling",
				"Churn prediction and retention strategies",
				"Product/service performance analysis",
				"Sales efficiency optimization",
				"Market opportunity identification",
			},
			Tools: []string{
				"customer_analyzer",
				"revenue_forecaster",
				"churn_predictor",
				"segmentation_engine",
				"pipeline_analyzer",
			},
			ConfidenceThreshold: 0.70,
			Temperature:         0.4,
			Keywords:            []string{"customer", "sales", "revenue", "growth", "churn", "retention", "pipeline", "conversion"},
			ResponseFormat:      "structured_json",
			Icon:                "📈",
			Color:               "#1976D2",
			SystemPrompt: `You are the Sales Agent for ERPInsight.ai, focused on driving revenue growth through data-driven sales insights.

SALES ANALYSIS APPROACH:
1. CUSTOMER INSIGHTS: Analyze customer behavior and value
2. REVENUE PATTERNS: Identify trends and growth opportunities
3. PERFORMANCE METRICS: Calculate key sales KPIs
4. PREDICTIVE MODELING: Forecast revenue and identify at-risk customers
5. OPTIMIZATION: Recommend strategies to improve sales performance
6. ACTION PLANNING: Provide specific steps to implement improvements

Focus on actionable insights that directly impact revenue growth and customer retention.`,
		},
		{
			ID:          "operations",
			Name:        "Operations Agent",
			Description: "AI specialist for business operations optimization and cost management",
			Version:     "2.0.0",
			Capabilities: []string{
				"Expense analysis and cost optimization",
				"Inventory management and optimization",
				"Vendor performance analysis",
				"Process efficiency improvements",
				"Resource allocation optimization",
				"Supply chain risk assessment",
				"Operational KPI monitoring",
				"Automation opportunity identification",
			},
			Tools: []string{
				"expense_analyzer",
				"inventory_optimizer",
				"vendor_evaluator",
				"efficiency_analyzer",
				"cost_optimizer",
			},
			ConfidenceThreshold: 0.70,
			Temperature:         0.4,
			Keywords:            []string{"inventory", "vendor", "supplier", "cost", "efficiency", "process", "operations"},
			ResponseFormat:      "structured_json",
			Icon:                "⚙️",
			Color:               "#F57C00",
			SystemPrompt: `You are the Operations Agent for ERPInsight.ai, dedicated to optimizing business operations and reducing costs.

OPERATIONAL ANALYSIS FRAMEWORK:
1. COST ANALYSIS: Identify expense patterns and optimization opportunities
2. EFFICIENCY METRICS: Measure operational performance indicators
3. PROCESS OPTIMIZATION: Identify bottlenecks and improvement areas
4. RESOURCE PLANNING: Optimize allocation of resources and assets
5. RISK MANAGEMENT: Assess operational risks and mitigation strategies
6. IMPLEMENTATION: Provide specific operational improvement recommendations

Always quantify potential savings and efficiency gains with realistic timelines.`,
		},
		{
			ID:          "executive",
			Name:        "Executive Agent",
			Description: "AI specialist for high-level business insights and strategic planning",
			Version:     "2.0.0",
			Capabilities: []string{
				"Executive dashboard insights",
				"Strategic business analysis",
				"Company-wide KPI monitoring",
				"Competitive analysis support",
				"Investment decision support",
				"Growth opportunity identification",
				"Risk management overview",
				"Performance benchmarking",
			},
			Tools: []string{
				"executive_dashboard",
				"strategic_analyzer",
				"kpi_monitor",
				"benchmark_analyzer",
				"growth_identifier",
			},
			ConfidenceThreshold: 0.80,
			Temperature:         0.3,
			Keywords:            []string{"strategy", "kpi", "performance", "overview", "dashboard", "executive", "strategic"},
			ResponseFormat:      "executive_summary",
			Icon:                "🎯",
			Color:               "#7B1FA2",
			SystemPrompt: `You are the Executive Agent for ERPInsight.ai, providing strategic business insights for leadership decision-making.

EXECUTIVE ANALYSIS APPROACH:
1. STRATEGIC OVERVIEW: Synthesize company-wide performance
2. OPPORTUNITY ANALYSIS: Identify growth and improvement opportunities
3. RISK ASSESSMENT: Evaluate strategic risks and mitigation options
4. PERFORMANCE BENCHMARKING: Compare against industry standards
5. RESOURCE ALLOCATION: Recommend optimal resource deployment
6. STRATEGIC RECOMMENDATIONS: Provide actionable strategic guidance

Present insights in executive-friendly format with clear implications for business strategy.`,
		},
	}
}
