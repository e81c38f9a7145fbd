package workflow

import "github.com/finchat-labs/finflow/workflow/agent"

// The failure taxonomy is shared with the worker agents; these aliases keep
// workflow-side code readable without a second set of types.
type (
	Kind    = agent.Kind
	Failure = agent.Failure
)

const (
	KindInvalidInput        = agent.KindInvalidInput
	KindSymbolNotFound      = agent.KindSymbolNotFound
	KindNoContext           = agent.KindNoContext
	KindTransientExternal   = agent.KindTransientExternal
	KindPermanentExternal   = agent.KindPermanentExternal
	KindTimeout             = agent.KindTimeout
	KindCancelled           = agent.KindCancelled
	KindRequiredAgentFailed = agent.KindRequiredAgentFailed
	KindRenderFailed        = agent.KindRenderFailed
	KindInternal            = agent.KindInternal
)

// Classify maps an arbitrary error to a failure kind.
func Classify(err error) Kind { return agent.Classify(err) }

// userMessage is the user-safe Korean reply for a failure kind. Internal
// detail never leaks into these.
func userMessage(kind Kind) string {
	switch kind {
	case KindInvalidInput:
		return "질문을 입력해주세요."
	case KindSymbolNotFound:
		return "요청하신 종목을 찾을 수 없습니다. 종목명을 확인해주세요."
	case KindNoContext:
		return "답변에 참고할 자료를 찾지 못했습니다. 질문을 바꿔서 다시 시도해주세요."
	case KindTimeout:
		return "처리 시간이 초과되었습니다. 다시 시도해주세요."
	case KindCancelled:
		return "요청이 취소되었습니다."
	default:
		return "죄송합니다. 처리 중 오류가 발생했습니다. 다시 시도해주세요."
	}
}
