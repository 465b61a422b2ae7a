package obs

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementAttr = 300

type pgxSpanKey struct{}

// PGXTracer implements pgx.QueryTracer. Spans are named after the statement
// verb and the first table it touches, e.g. "pgx insert cash_movements".
type PGXTracer struct{}

// TraceQueryStart opens a client span for the statement.
func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op, table := statementTarget(data.SQL)
	name := "pgx " + op
	if table != "" {
		name += " " + table
	}
	ctx, span := otel.Tracer("caja/repo").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", clip(data.SQL, maxStatementAttr)),
		attribute.Int("db.args", len(data.Args)),
	}
	if table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}
	span.SetAttributes(attrs...)
	return context.WithValue(ctx, pgxSpanKey{}, span)
}

// TraceQueryEnd closes the span opened by TraceQueryStart.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(pgxSpanKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()
	if data.Err != nil {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
		return
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
}

// statementTarget returns the lower-cased verb of sql and the table following
// its FROM, INTO, UPDATE or TABLE keyword.
func statementTarget(sql string) (op, table string) {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "query", ""
	}
	op = strings.ToLower(fields[0])
	for i, f := range fields[:len(fields)-1] {
		switch strings.ToLower(f) {
		case "from", "into", "update", "table":
			return op, strings.Trim(strings.ToLower(fields[i+1]), `"(;`)
		}
	}
	return op, ""
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
