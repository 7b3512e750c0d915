package telemetry

import (
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	dbSystemKey    = "db.system"
	dbTableKey     = "db.table"
	dbOperationKey = "db.operation"
	dbStatementKey = "db.statement"

	maxStatementLen = 500
)

// GORMTracingPlugin returns a GORM plugin that traces tree store and
// identity directory queries.
func GORMTracingPlugin() gorm.Plugin {
	return &tracingPlugin{
		tracer: otel.Tracer("gorm"),
	}
}

type tracingPlugin struct {
	tracer trace.Tracer
}

func (p *tracingPlugin) Name() string {
	return "telemetry:tracing"
}

func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Query().Before("gorm:query").Register("telemetry:before_query", p.starter("SELECT")); err != nil {
		return fmt.Errorf("failed to register query tracing: %w", err)
	}
	if err := cb.Create().Before("gorm:create").Register("telemetry:before_create", p.starter("INSERT")); err != nil {
		return fmt.Errorf("failed to register create tracing: %w", err)
	}
	if err := cb.Update().Before("gorm:update").Register("telemetry:before_update", p.starter("UPDATE")); err != nil {
		return fmt.Errorf("failed to register update tracing: %w", err)
	}
	if err := cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", p.starter("DELETE")); err != nil {
		return fmt.Errorf("failed to register delete tracing: %w", err)
	}
	if err := cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", p.starter("RAW")); err != nil {
		return fmt.Errorf("failed to register raw tracing: %w", err)
	}

	if err := cb.Query().After("gorm:query").Register("telemetry:after_query", p.finish); err != nil {
		return fmt.Errorf("failed to register query tracing: %w", err)
	}
	if err := cb.Create().After("gorm:create").Register("telemetry:after_create", p.finish); err != nil {
		return fmt.Errorf("failed to register create tracing: %w", err)
	}
	if err := cb.Update().After("gorm:update").Register("telemetry:after_update", p.finish); err != nil {
		return fmt.Errorf("failed to register update tracing: %w", err)
	}
	if err := cb.Delete().After("gorm:delete").Register("telemetry:after_delete", p.finish); err != nil {
		return fmt.Errorf("failed to register delete tracing: %w", err)
	}
	if err := cb.Raw().After("gorm:raw").Register("telemetry:after_raw", p.finish); err != nil {
		return fmt.Errorf("failed to register raw tracing: %w", err)
	}
	return nil
}

func (p *tracingPlugin) starter(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) { p.startSpan(db, operation) }
}

func (p *tracingPlugin) startSpan(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}

	table := db.Statement.Table
	if table == "" {
		table = "unknown"
	}
	system := "unknown"
	if db.Dialector != nil {
		system = db.Dialector.Name()
	}

	_, span := p.tracer.Start(ctx, fmt.Sprintf("db.%s", strings.ToLower(operation)),
		trace.WithAttributes(
			attribute.String(dbSystemKey, system),
			attribute.String(dbTableKey, table),
			attribute.String(dbOperationKey, operation),
		),
	)

	db.InstanceSet("otel:span", span)
	db.InstanceSet("otel:startTime", time.Now())
}

func (p *tracingPlugin) finish(db *gorm.DB) {
	spanRaw, exists := db.InstanceGet("otel:span")
	if !exists {
		return
	}

	span, ok := spanRaw.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	// Record duration
	if startTimeRaw, exists := db.InstanceGet("otel:startTime"); exists {
		if startTime, ok := startTimeRaw.(time.Time); ok {
			duration := time.Since(startTime).Milliseconds()
			span.SetAttributes(attribute.Int64("db.duration_ms", duration))
		}
	}

	// Record SQL statement (sanitized)
	if db.Statement.SQL.String() != "" {
		// tree_leaves batches can be very large
		sql := db.Statement.SQL.String()
		if len(sql) > maxStatementLen {
			sql = sql[:maxStatementLen] + "... (truncated)"
		}
		span.SetAttributes(attribute.String(dbStatementKey, sql))
	}

	// Record rows affected
	if db.RowsAffected > 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
	}

	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error, trace.WithStackTrace(true))
	}
}
