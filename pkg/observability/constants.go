package observability

const (
	AttrServiceName     = "service.name"
	AttrServiceVersion  = "service.version"
	AttrSessionID       = "session.id"
	AttrRouterStrategy  = "router.strategy"
	AttrToolName        = "tool.name"
	AttrToolSource      = "tool.source"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrErrorType       = "error.type"
	AttrStatusCode      = "http.status_code"

	SpanTurn          = "conversation.turn"
	SpanRoute         = "router.route"
	SpanLLMRequest    = "router.llm_request"
	SpanToolExecution = "tools.execute"
	SpanAnalyticsPoll = "analytics.poll"

	DefaultServiceName = "concierge"
)
