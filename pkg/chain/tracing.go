package chain

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const chainTracerName = "mindloom.chain"

const spanChainExecute = "chain.execute"

func chainTracer() trace.Tracer {
	return otel.Tracer(chainTracerName)
}

func spanNodeName(kind NodeKind) string {
	return "chain.node." + string(kind)
}
