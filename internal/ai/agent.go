// Package ai answers natural language questions about routing telemetry by
// generating read-only ClickHouse SQL with an LLM.
package ai

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/aman-zulfiqar/solana-npi-router/internal/config"
)

const (
	DefaultModel      = "openai/gpt-4.1-mini"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	maxResultRows     = 200
)

type AgentConfig struct {
	ClickHouse config.ClickHouseConfig

	OpenRouterAPIKey string
	// Model name as understood by OpenRouter.
	Model string

	Logger *logrus.Logger
}

// Agent turns a question into SQL over the telemetry tables, runs it, and
// summarises the rows.
type Agent struct {
	llm    llms.Model
	db     *sql.DB
	model  string
	logger *logrus.Logger
}

func NewAgent(ctx context.Context, cfg AgentConfig) (*Agent, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.OpenRouterAPIKey == "" {
		return nil, fmt.Errorf("openrouter api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	llm, err := openai.New(
		openai.WithToken(cfg.OpenRouterAPIKey),
		openai.WithBaseURL(openRouterBaseURL),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenRouter LLM: %w", err)
	}

	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{cfg.ClickHouse.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		},
	})
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse from AI agent: %w", err)
	}

	cfg.Logger.WithFields(logrus.Fields{
		"addr":     cfg.ClickHouse.Addr,
		"database": cfg.ClickHouse.Database,
		"model":    cfg.Model,
	}).Info("initialized AI agent")

	return &Agent{llm: llm, db: db, model: cfg.Model, logger: cfg.Logger}, nil
}

func (a *Agent) Model() string { return a.model }

func (a *Agent) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

type AskResult struct {
	SQL    string
	Answer string
	Rows   int
}

func (a *Agent) Ask(ctx context.Context, question string) (*AskResult, error) {
	sqlQuery, err := a.generateSQL(ctx, question)
	if err != nil {
		return nil, err
	}

	rowsJSON, n, err := a.runQuery(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}

	answer, err := a.summarise(ctx, question, sqlQuery, rowsJSON)
	if err != nil {
		return nil, err
	}
	return &AskResult{SQL: sqlQuery, Answer: answer, Rows: n}, nil
}

func (a *Agent) generateSQL(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(`
You are an expert ClickHouse SQL generator for a Solana swap routing service.

Use ONLY these tables:
%s

Rules:
- Return a single SELECT query in ClickHouse SQL, nothing else.
- Do NOT include explanations or comments.
- Always add a LIMIT of at most %d rows.
- Never modify data: no INSERT, UPDATE, DELETE, DROP, ALTER, CREATE, TRUNCATE.

User question:
%s
`, telemetrySchemaDescription, maxResultRows, question)

	resp, err := llms.GenerateFromSinglePrompt(ctx, a.llm, prompt, llms.WithMaxTokens(512))
	if err != nil {
		return "", fmt.Errorf("LLM SQL generation failed: %w", err)
	}

	sqlQuery := sanitizeSQL(resp)
	if err := validateSQL(sqlQuery); err != nil {
		return "", err
	}
	a.logger.WithField("sql", sqlQuery).Debug("generated SQL from question")
	return sqlQuery, nil
}

func (a *Agent) runQuery(ctx context.Context, sqlQuery string) (string, int, error) {
	rows, err := a.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return "", 0, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", 0, fmt.Errorf("failed to get columns: %w", err)
	}

	out := []map[string]any{}
	for rows.Next() && len(out) < maxResultRows {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return "", 0, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return "", 0, fmt.Errorf("row iteration error: %w", err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal rows to JSON: %w", err)
	}
	return string(data), len(out), nil
}

func (a *Agent) summarise(ctx context.Context, question, sqlQuery, rowsJSON string) (string, error) {
	prompt := fmt.Sprintf(`
You are a helpful assistant analysing a Solana swap router: venue reliability,
oracle health and net price improvement over the baseline aggregator.

User question:
%s

SQL that was executed:
%s

Query results in JSON (array of objects, can be empty):
%s

Instructions:
- If the result set is empty, say that no data was found.
- Otherwise answer concisely using bullet points.
- Include key numbers (success rates, latencies, bps, counts) rounded reasonably.
- Do not restate the raw JSON.
`, question, sqlQuery, rowsJSON)

	resp, err := llms.GenerateFromSinglePrompt(ctx, a.llm, prompt, llms.WithMaxTokens(512))
	if err != nil {
		return "", fmt.Errorf("LLM summarisation failed: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

// sanitizeSQL strips code fences and trailing semicolons from LLM output.
func sanitizeSQL(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "sql") {
		s = s[3:]
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

var (
	tableRef   = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+(?:[a-z0-9_]+\.)?([a-z0-9_]+)`)
	disallowed = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE|CREATE|RENAME|ATTACH|DETACH|OPTIMIZE|SYSTEM|GRANT|KILL)\b`)
)

// validateSQL accepts a single SELECT that reads only the telemetry tables.
func validateSQL(s string) error {
	if s == "" {
		return fmt.Errorf("empty SQL generated by LLM")
	}
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "SELECT") {
		return fmt.Errorf("only SELECT queries are allowed")
	}
	if kw := disallowed.FindString(s); kw != "" {
		return fmt.Errorf("disallowed SQL keyword %q in generated query", strings.ToUpper(kw))
	}
	if strings.Contains(s, ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}

	refs := tableRef.FindAllStringSubmatch(s, -1)
	if len(refs) == 0 {
		return fmt.Errorf("query must read from a telemetry table")
	}
	for _, m := range refs {
		if !isAllowedTable(m[1]) {
			return fmt.Errorf("table %q is not queryable", m[1])
		}
	}
	return nil
}

func isAllowedTable(name string) bool {
	for _, t := range allowedTables {
		if strings.EqualFold(name, t) {
			return true
		}
	}
	return false
}
