package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/sotradis/voice-agent/pkg/ai"
	"github.com/sotradis/voice-agent/pkg/sqldb"
)

type fakeGenerator struct {
	query      string
	genErr     error
	summary    string
	sumErr     error
	panics     bool
	genCalls   int
	lastReq    *ai.QueryRequest
	lastSumReq *ai.SummarizeRowsRequest
}

func (g *fakeGenerator) GenerateQuery(ctx context.Context, req *ai.QueryRequest) (string, error) {
	g.genCalls++
	g.lastReq = req
	if g.panics {
		panic("generator exploded")
	}
	return g.query, g.genErr
}

func (g *fakeGenerator) SummarizeRows(ctx context.Context, req *ai.SummarizeRowsRequest) (string, error) {
	g.lastSumReq = req
	return g.summary, g.sumErr
}

type fakeExecutor struct {
	result     *sqldb.Result
	err        error
	calls      int
	lastQuery  string
	lastParams []interface{}
}

func (e *fakeExecutor) Execute(ctx context.Context, query string, params ...interface{}) (*sqldb.Result, error) {
	e.calls++
	e.lastQuery = query
	e.lastParams = params
	return e.result, e.err
}

func newTestPipeline(gen Generator, db Executor) *Pipeline {
	return NewPipeline(gen, db, NewHistory(10), zap.NewNop())
}

func TestAnswerGeneratedPath(t *testing.T) {
	gen := &fakeGenerator{
		query:   "```sql\nSELECT TOP 5 nom, prix_unitaire FROM [ArticleCiments]\n```",
		summary: "Le ciment CPJ45 coûte 85 dirhams le sac.",
	}
	db := &fakeExecutor{result: &sqldb.Result{
		Columns: []string{"nom", "prix_unitaire"},
		Rows: []map[string]interface{}{
			{"nom": "CPJ45", "prix_unitaire": "85.00"},
		},
	}}
	p := newTestPipeline(gen, db)

	ans := p.Answer(context.Background(), "Quel est le prix du ciment CPJ45 ?")

	if ans.Source != SourceGenerated {
		t.Fatalf("expected source %q, got %q", SourceGenerated, ans.Source)
	}
	if ans.Context != gen.summary {
		t.Errorf("expected summary answer, got %q", ans.Context)
	}

	want := "SELECT nom, prix_unitaire FROM `ArticleCiments` LIMIT 5"
	if db.lastQuery != want {
		t.Errorf("expected cleaned query %q, got %q", want, db.lastQuery)
	}

	if p.History().Len() != 1 {
		t.Fatalf("expected 1 recorded turn, got %d", p.History().Len())
	}
	turn := p.History().Recent(1)[0]
	if turn.Operation != "SELECT" {
		t.Errorf("expected SELECT turn, got %q", turn.Operation)
	}
	if !strings.Contains(turn.Summary, "1 lignes") {
		t.Errorf("expected row count in turn summary, got %q", turn.Summary)
	}
}

func TestAnswerRejectsUnboundPlaceholders(t *testing.T) {
	// a statement with a leftover @name would reach the server as a NULL
	// user variable and silently match nothing, so it must never execute
	gen := &fakeGenerator{query: "SELECT nom, prix_unitaire FROM ArticleCiments WHERE nom LIKE @nom"}
	db := &fakeExecutor{result: &sqldb.Result{
		Rows: []map[string]interface{}{
			{"nom": "CPJ45", "prix_unitaire": "85.00", "disponible": "1"},
		},
	}}
	p := newTestPipeline(gen, db)

	ans := p.Answer(context.Background(), "Quel est le prix du ciment CPJ45 ?")

	if db.calls != 1 {
		t.Fatalf("expected a single fallback execution, got %d calls", db.calls)
	}
	if strings.Contains(db.lastQuery, "@nom") {
		t.Fatalf("placeholder query must not reach the store, got %q", db.lastQuery)
	}
	if len(db.lastParams) != 2 || db.lastParams[0] != "%CPJ45%" {
		t.Errorf("expected bound motif params, got %v", db.lastParams)
	}
	if ans.Source != "ArticleCiments" {
		t.Errorf("expected fallback source ArticleCiments, got %q", ans.Source)
	}
	if !strings.Contains(ans.Context, "85") {
		t.Errorf("expected price in answer, got %q", ans.Context)
	}
}

func TestAnswerGeneratedTruncatesRows(t *testing.T) {
	rows := make([]map[string]interface{}, 14)
	for i := range rows {
		rows[i] = map[string]interface{}{"nom": fmt.Sprintf("article-%d", i)}
	}
	gen := &fakeGenerator{query: "SELECT nom FROM ArticleCiments", summary: "Nous avons beaucoup d'articles."}
	db := &fakeExecutor{result: &sqldb.Result{Columns: []string{"nom"}, Rows: rows}}
	p := newTestPipeline(gen, db)

	ans := p.Answer(context.Background(), "Quels articles vendez-vous ?")

	if ans.Source != SourceGenerated {
		t.Fatalf("expected source %q, got %q", SourceGenerated, ans.Source)
	}
	if gen.lastSumReq == nil {
		t.Fatal("expected summarization request")
	}
	if len(gen.lastSumReq.Rows) != 10 {
		t.Errorf("expected 10 sampled rows, got %d", len(gen.lastSumReq.Rows))
	}
	if !gen.lastSumReq.Truncated {
		t.Error("expected truncation flagged")
	}
	if gen.lastSumReq.Rows[9]["nom"] != "article-9" {
		t.Errorf("expected the first rows kept in order, got %v", gen.lastSumReq.Rows[9])
	}
}

func TestAnswerGeneratedWriteReportsAffectedRows(t *testing.T) {
	gen := &fakeGenerator{query: "UPDATE factures SET statut = 'payée' WHERE numero = 'F-2024-001'"}
	db := &fakeExecutor{result: &sqldb.Result{RowsAffected: 2}}
	p := newTestPipeline(gen, db)

	ans := p.Answer(context.Background(), "Marque la facture F-2024-001 comme payée")

	if ans.Source != SourceGenerated {
		t.Fatalf("expected source %q, got %q", SourceGenerated, ans.Source)
	}
	if !strings.Contains(ans.Context, "UPDATE") || !strings.Contains(ans.Context, "2 lignes affectées") {
		t.Errorf("expected write summary, got %q", ans.Context)
	}
	if gen.lastSumReq != nil {
		t.Error("expected no summarization for a write statement")
	}
}

func TestAnswerHistoryFeedsGenerator(t *testing.T) {
	gen := &fakeGenerator{query: "SELECT nom FROM clients", summary: "ok"}
	db := &fakeExecutor{result: &sqldb.Result{Rows: []map[string]interface{}{{"nom": "Atlas"}}}}
	p := newTestPipeline(gen, db)

	p.Answer(context.Background(), "Liste les clients")
	p.Answer(context.Background(), "Et leurs villes ?")

	if gen.lastReq.History == "" {
		t.Fatal("expected second request to carry history")
	}
	if !strings.Contains(gen.lastReq.History, "SELECT nom FROM clients") {
		t.Errorf("expected prior query in history, got %q", gen.lastReq.History)
	}
}

func TestAnswerFallbackOnGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{genErr: errors.New("provider unavailable")}
	db := &fakeExecutor{result: &sqldb.Result{
		Rows: []map[string]interface{}{
			{"nom": "CPJ45", "prix_unitaire": "85.00", "disponible": "1"},
		},
	}}
	p := newTestPipeline(gen, db)

	ans := p.Answer(context.Background(), "Quel est le prix du ciment CPJ45 ?")

	if ans.Source != "ArticleCiments" {
		t.Fatalf("expected source ArticleCiments, got %q", ans.Source)
	}
	if !strings.Contains(ans.Context, "85") {
		t.Errorf("expected price in answer, got %q", ans.Context)
	}
	if !strings.Contains(ans.Context, "disponible en stock") {
		t.Errorf("expected availability phrase, got %q", ans.Context)
	}
	if len(db.lastParams) != 2 || db.lastParams[0] != "%CPJ45%" {
		t.Errorf("expected motif params, got %v", db.lastParams)
	}
}

func TestAnswerFallbackEmptyResult(t *testing.T) {
	gen := &fakeGenerator{genErr: errors.New("provider unavailable")}
	db := &fakeExecutor{result: &sqldb.Result{}}
	p := newTestPipeline(gen, db)

	ans := p.Answer(context.Background(), "Quel est le montant de la facture F-2024-001 ?")

	if ans.Source != "factures" {
		t.Fatalf("expected source factures, got %q", ans.Source)
	}
	if ans.Context != "Aucune facture trouvée." {
		t.Errorf("expected fixed empty phrase, got %q", ans.Context)
	}
}

func TestAnswerNoKeyword(t *testing.T) {
	gen := &fakeGenerator{genErr: errors.New("provider unavailable")}
	db := &fakeExecutor{result: &sqldb.Result{}}
	p := newTestPipeline(gen, db)

	ans := p.Answer(context.Background(), "Quelle heure est-il ?")

	if ans.Source != SourceNone {
		t.Fatalf("expected source %q, got %q", SourceNone, ans.Source)
	}
	if ans.Context != noInfoMessage {
		t.Errorf("expected fixed no-info phrase, got %q", ans.Context)
	}
	if db.calls != 0 {
		t.Errorf("expected no query without a matched intent, got %d calls", db.calls)
	}
}

func TestAnswerFallbackQueryError(t *testing.T) {
	gen := &fakeGenerator{genErr: errors.New("provider unavailable")}
	db := &fakeExecutor{err: errors.New("connection refused")}
	p := newTestPipeline(gen, db)

	ans := p.Answer(context.Background(), "Quel est le prix du ciment CPJ45 ?")

	if ans.Source != SourceError {
		t.Fatalf("expected source %q, got %q", SourceError, ans.Source)
	}
	if ans.Context != apologyMessage {
		t.Errorf("expected apology, got %q", ans.Context)
	}
}

func TestAnswerNeverPanics(t *testing.T) {
	gen := &fakeGenerator{panics: true}
	db := &fakeExecutor{result: &sqldb.Result{}}
	p := newTestPipeline(gen, db)

	ans := p.Answer(context.Background(), "Quel est le prix du ciment CPJ45 ?")

	if ans.Source != SourceError {
		t.Fatalf("expected source %q, got %q", SourceError, ans.Source)
	}
	if ans.Context != apologyMessage {
		t.Errorf("expected apology, got %q", ans.Context)
	}
}

func TestAnswerGeneratedEmptyRows(t *testing.T) {
	gen := &fakeGenerator{query: "SELECT nom FROM clients WHERE ville = 'Oujda'"}
	db := &fakeExecutor{result: &sqldb.Result{Columns: []string{"nom"}}}
	p := newTestPipeline(gen, db)

	ans := p.Answer(context.Background(), "Quels clients à Oujda ?")

	if ans.Source != SourceGenerated {
		t.Fatalf("expected source %q, got %q", SourceGenerated, ans.Source)
	}
	if ans.Context != noInfoMessage {
		t.Errorf("expected fixed no-info phrase, got %q", ans.Context)
	}
	if gen.lastSumReq != nil {
		t.Error("expected no summarization for an empty result")
	}
}
