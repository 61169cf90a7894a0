package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sotradis/voice-agent/pkg/ai"
	"github.com/sotradis/voice-agent/pkg/sqldb"
)

// Source labels carried on every answer so callers can tell how it was
// produced.
const (
	SourceGenerated = "generated"
	SourceNone      = "none"
	SourceError     = "error"
)

const (
	historyContextTurns = 3
	maxContextRows      = 10
)

const schemaDescription = `Table clients (id INT PK, nom VARCHAR, ville VARCHAR, telephone VARCHAR, email VARCHAR)
Table factures (id INT PK, numero VARCHAR, client_id INT FK -> clients.id, date_emission DATE, montant_total DECIMAL(12,2), statut VARCHAR)
Table ArticleCiments (id INT PK, nom VARCHAR, prix_unitaire DECIMAL(10,2), disponible TINYINT(1), stock INT)
Table regions (id INT PK, nom VARCHAR, pays VARCHAR)`

// Answer is the grounding text injected into the live conversation plus the
// provenance of that text.
type Answer struct {
	Context string
	Source  string
}

// Generator turns a natural-language question into SQL and summarizes
// result rows. Satisfied by *ai.Manager.
type Generator interface {
	GenerateQuery(ctx context.Context, req *ai.QueryRequest) (string, error)
	SummarizeRows(ctx context.Context, req *ai.SummarizeRowsRequest) (string, error)
}

// Executor runs a SQL statement against the Sotradis database. Satisfied by
// *sqldb.Client.
type Executor interface {
	Execute(ctx context.Context, query string, params ...interface{}) (*sqldb.Result, error)
}

// Pipeline answers caller questions from the database. The generated-query
// path is tried first; the keyword fallback table covers generator outages.
type Pipeline struct {
	gen     Generator
	db      Executor
	history *History
	logger  *zap.Logger
}

func NewPipeline(gen Generator, db Executor, history *History, logger *zap.Logger) *Pipeline {
	if history == nil {
		history = NewHistory(DefaultHistoryCapacity)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{gen: gen, db: db, history: history, logger: logger}
}

func (p *Pipeline) History() *History { return p.history }

// Answer resolves a question to spoken grounding text. It never returns an
// error and never panics; failures degrade to the fallback table and then to
// a fixed apology.
func (p *Pipeline) Answer(ctx context.Context, question string) (answer Answer) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("retrieval pipeline panic",
				zap.Any("panic", r),
				zap.String("question", question))
			answer = Answer{Context: apologyMessage, Source: SourceError}
		}
	}()

	ans, err := p.generated(ctx, question)
	if err == nil {
		return ans
	}
	p.logger.Warn("generated query path failed, using fallback",
		zap.String("question", question),
		zap.Error(err))

	return p.fallback(ctx, question)
}

func (p *Pipeline) generated(ctx context.Context, question string) (Answer, error) {
	if p.gen == nil {
		return Answer{}, fmt.Errorf("no query generator configured")
	}

	raw, err := p.gen.GenerateQuery(ctx, &ai.QueryRequest{
		Question: question,
		Schema:   schemaDescription,
		History:  renderHistory(p.history.Recent(historyContextTurns)),
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generate query: %w", err)
	}

	query := RewriteDialect(StripFences(raw))
	if query == "" {
		return Answer{}, fmt.Errorf("generator returned an empty statement")
	}
	// No params are supplied here, so a leftover @name would reach the
	// server as a NULL user variable and match nothing.
	if sqldb.HasNamedParams(query) {
		return Answer{}, fmt.Errorf("generated query carries unbound placeholders: %s", query)
	}

	res, err := p.db.Execute(ctx, query)
	if err != nil {
		return Answer{}, fmt.Errorf("execute generated query: %w", err)
	}

	op := Operation(query)
	turn := ConversationTurn{
		Timestamp: time.Now(),
		Question:  question,
		Query:     query,
		Operation: op,
		Raw:       res,
	}

	if !sqldb.IsReadStatement(query) {
		turn.Summary = fmt.Sprintf("%d lignes affectées", res.RowsAffected)
		p.history.Record(turn)
		return Answer{
			Context: fmt.Sprintf("Opération %s effectuée : %d lignes affectées.", op, res.RowsAffected),
			Source:  SourceGenerated,
		}, nil
	}

	turn.Summary = fmt.Sprintf("%d lignes retournées", len(res.Rows))
	p.history.Record(turn)

	if len(res.Rows) == 0 {
		return Answer{Context: noInfoMessage, Source: SourceGenerated}, nil
	}

	rows := res.Rows
	truncated := false
	if len(rows) > maxContextRows {
		rows = rows[:maxContextRows]
		truncated = true
	}

	text, err := p.gen.SummarizeRows(ctx, &ai.SummarizeRowsRequest{
		Question:  question,
		Query:     query,
		Rows:      rows,
		Truncated: truncated,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("summarize rows: %w", err)
	}
	return Answer{Context: text, Source: SourceGenerated}, nil
}

func (p *Pipeline) fallback(ctx context.Context, question string) Answer {
	intent, entity := matchIntent(question)
	if intent == nil {
		return Answer{Context: noInfoMessage, Source: SourceNone}
	}

	motif := "%" + entity + "%"
	res, err := p.db.Execute(ctx, intent.query, motif, motif)
	if err != nil {
		p.logger.Error("fallback query failed",
			zap.String("source", intent.source),
			zap.Error(err))
		return Answer{Context: apologyMessage, Source: SourceError}
	}
	if len(res.Rows) == 0 {
		return Answer{Context: intent.empty, Source: intent.source}
	}
	return Answer{Context: intent.format(res.Rows), Source: intent.source}
}

func renderHistory(turns []ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "- [%s] %s -> %s\n", t.Operation, t.Query, t.Summary)
	}
	return b.String()
}
