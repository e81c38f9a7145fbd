package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finchat-labs/finflow/capability"
)

// Data resolves the symbol named in the query and fetches its quote. For
// plain price lookups it also renders the answer inline, so the orchestrator
// can hand the reply straight to the responder.
type Data struct {
	Symbols capability.SymbolLookup
	Market  capability.MarketData
	Retry   Retry
}

func (a *Data) Name() string { return NameData }

func (a *Data) Process(ctx context.Context, in Input) Result {
	start := time.Now()

	sym, found, err := a.Symbols.Resolve(ctx, in.Query)
	if err != nil {
		return failWith(NameData, Classify(err), err.Error(), start)
	}
	if !found {
		return failWith(NameData, KindSymbolNotFound, "no listed symbol in query", start)
	}

	var quote capability.Quote
	err = a.Retry.Do(ctx, func(ctx context.Context) error {
		q, qerr := a.Market.Quote(ctx, sym.Code)
		if qerr == nil {
			quote = q
		}
		return qerr
	})
	if err != nil {
		return failWith(NameData, Classify(err), err.Error(), start)
	}

	data := &FinancialData{
		Symbol:    sym.Code,
		Name:      sym.Name,
		Price:     quote.Price,
		ChangePct: quote.ChangePct,
		Volume:    quote.Volume,
		PER:       quote.PER,
		PBR:       quote.PBR,
		ROE:       quote.ROE,
		MarketCap: quote.MarketCap,
		Sector:    quote.Sector,
	}
	payload := &DataPayload{Data: data}
	if simpleQuote(in) {
		payload.SimpleReply = simpleReply(data)
	}
	return succeed(NameData, payload, start)
}

// simpleQuote reports whether the request is a bare price lookup: data
// intent, simple complexity, and no other agent planned. Anything richer
// goes through synthesis.
func simpleQuote(in Input) bool {
	return in.Intent == NameData &&
		in.Complexity == ComplexitySimple &&
		len(in.RequiredAgents) == 1 &&
		in.RequiredAgents[0] == NameData
}

// simpleReply renders the one-shot answer for a plain quote lookup.
func simpleReply(d *FinancialData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s) 현재가는 %s원입니다.", d.Name, d.Symbol, FormatWon(d.Price))
	fmt.Fprintf(&b, " 전일 대비 %+.1f%% 변동했으며, 거래량은 %s주입니다.", d.ChangePct, Comma(d.Volume))
	fmt.Fprintf(&b, "\n더 자세한 내용이 궁금하시면 \"%s 분석해줘\"라고 물어보세요.", d.Name)
	return b.String()
}
