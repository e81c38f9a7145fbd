package workflow

import (
	"context"

	"github.com/finchat-labs/finflow/graph"
)

// shortCircuitConfidence is the fixed score for inline quote answers. The
// data came straight from the market feed, so the answer is trusted without
// running the scoring rubric.
const shortCircuitConfidence = 0.85

// generalReply answers greetings and off-domain questions without running
// any worker agent.
const generalReply = "저는 금융 정보 전문 챗봇입니다. 주가 조회, 종목 분석, 금융 뉴스, 용어 설명을 도와드릴 수 있어요.\n" +
	"예: \"삼성전자 주가 알려줘\", \"PER이 뭐야?\", \"카카오 최근 뉴스 보여줘\""

// responder is the terminal node: it packs the state into the Response.
// It formats only, with no model calls and no I/O, so it runs to completion
// even when the request context is already dead on the error path.
type responder struct {
	thresholds Thresholds
}

func (n *responder) Run(ctx context.Context, s State) graph.NodeResult[State] {
	return graph.NodeResult[State]{
		Delta: State{Response: n.build(s)},
		Route: graph.Stop(),
	}
}

func (n *responder) build(s State) *Response {
	resp := &Response{
		RequestID: s.RequestID,
		Usage:     s.Meter.Total(),
	}

	if s.Fault != nil && !s.Fault.Recoverable {
		return n.errorShape(resp, s.Fault.Kind)
	}

	if s.ShortCircuit != nil && s.ShortCircuit.Active {
		resp.Reply = s.ShortCircuit.Reply
		resp.ActionType = ActionData
		resp.ActionPayload = s.FinancialData
		resp.Confidence = shortCircuitConfidence
		resp.Grade = GradeFor(resp.Confidence, n.thresholds)
		return resp
	}

	intent := IntentGeneral
	if s.Analysis != nil {
		intent = s.Analysis.PrimaryIntent
	}
	if intent == IntentGeneral {
		resp.Reply = generalReply
		resp.ActionType = ActionGeneral
		resp.Confidence = 0.5
		if s.Analysis != nil && s.Analysis.Confidence > 0 {
			resp.Confidence = s.Analysis.Confidence
		}
		resp.Grade = GradeFor(resp.Confidence, n.thresholds)
		return resp
	}

	if s.Combined == nil || s.Combined.Reply == "" {
		// A worker intent with no assembled reply is a wiring anomaly.
		return n.errorShape(resp, KindInternal)
	}

	resp.Reply = s.Combined.Reply
	resp.ActionType = actionFor(intent)
	resp.ActionPayload = payloadFor(intent, s)
	if s.Chart != nil {
		resp.Chart = s.Chart.PNG
		if s.Chart.Caption != "" {
			resp.Reply += "\n\n" + s.Chart.Caption
		}
	}
	if s.KnowledgeContext != nil {
		resp.RetrievedDocuments = s.KnowledgeContext.Hits
	}
	if s.Confidence != nil {
		resp.Confidence = s.Confidence.Score
		resp.Grade = s.Confidence.Grade
	} else {
		resp.Confidence = 0.5
		resp.Grade = GradeFor(resp.Confidence, n.thresholds)
	}
	return resp
}

// errorShape fills the user-safe failure response: a Korean message mapped
// from the failure kind, never the internal error text.
func (n *responder) errorShape(resp *Response, kind Kind) *Response {
	resp.Reply = userMessage(kind)
	resp.ActionType = ActionError
	resp.Confidence = 0
	resp.Grade = "F"
	return resp
}

func actionFor(intent string) ActionType {
	switch intent {
	case IntentData:
		return ActionData
	case IntentAnalysis:
		return ActionAnalysis
	case IntentNews:
		return ActionNews
	case IntentKnowledge:
		return ActionKnowledge
	case IntentVisualization:
		return ActionVisualization
	default:
		return ActionGeneral
	}
}

// payloadFor picks the structured payload matching the primary intent. The
// visualization payload is the quote behind the chart; the image itself
// rides the response's Chart field.
func payloadFor(intent string, s State) any {
	switch intent {
	case IntentData, IntentVisualization:
		if s.FinancialData != nil {
			return s.FinancialData
		}
	case IntentAnalysis:
		if s.AnalysisResult != nil {
			return s.AnalysisResult
		}
	case IntentNews:
		if len(s.NewsData) > 0 {
			return s.NewsData
		}
	case IntentKnowledge:
		if s.KnowledgeContext != nil {
			return s.KnowledgeContext
		}
	}
	return nil
}
