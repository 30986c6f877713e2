package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool used by the store. Satisfied by
// pgxmock for unit testing.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url             TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	industry        TEXT NOT NULL DEFAULT '',
	products        TEXT NOT NULL DEFAULT '',
	target_customer TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_companies_url ON companies(url);

CREATE TABLE IF NOT EXISTS reports (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company_id      TEXT NOT NULL REFERENCES companies(id),
	status          TEXT NOT NULL DEFAULT 'generating',
	prompt_count    INTEGER NOT NULL,
	runs_per_prompt INTEGER NOT NULL,
	services        JSONB NOT NULL,
	summary         JSONB,
	execution_ms    BIGINT NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	message_id      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reports_company_id ON reports(company_id);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);

CREATE TABLE IF NOT EXISTS report_claims (
	message_id TEXT PRIMARY KEY,
	claimed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prompts (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	report_id   TEXT NOT NULL REFERENCES reports(id),
	category    TEXT NOT NULL DEFAULT '',
	text        TEXT NOT NULL,
	order_index INTEGER NOT NULL,
	aggregates  JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_prompts_report_id ON prompts(report_id);

CREATE TABLE IF NOT EXISTS prompt_runs (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	prompt_id          TEXT NOT NULL REFERENCES prompts(id),
	report_id          TEXT NOT NULL REFERENCES reports(id),
	run_number         INTEGER NOT NULL,
	service            TEXT NOT NULL,
	business_mentioned BOOLEAN NOT NULL DEFAULT false,
	rank               INTEGER,
	mention_context    TEXT NOT NULL DEFAULT '',
	execution_ms       BIGINT NOT NULL DEFAULT 0,
	answer_chars       INTEGER NOT NULL DEFAULT 0,
	tokens_used        INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_prompt_runs_prompt_id ON prompt_runs(prompt_id);
CREATE INDEX IF NOT EXISTS idx_prompt_runs_report_id ON prompt_runs(report_id);

CREATE TABLE IF NOT EXISTS competitor_mentions (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES prompt_runs(id),
	report_id  TEXT NOT NULL REFERENCES reports(id),
	name       TEXT NOT NULL,
	rank       INTEGER NOT NULL,
	source_url TEXT
);

CREATE INDEX IF NOT EXISTS idx_competitor_mentions_run_id ON competitor_mentions(run_id);
CREATE INDEX IF NOT EXISTS idx_competitor_mentions_report_id ON competitor_mentions(report_id);

CREATE TABLE IF NOT EXISTS source_citations (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id             TEXT NOT NULL REFERENCES prompt_runs(id),
	report_id          TEXT NOT NULL REFERENCES reports(id),
	service            TEXT NOT NULL,
	url                TEXT NOT NULL,
	domain             TEXT NOT NULL,
	business_mentioned BOOLEAN NOT NULL DEFAULT false,
	competitors        JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_source_citations_run_id ON source_citations(run_id);
CREATE INDEX IF NOT EXISTS idx_source_citations_report_id ON source_citations(report_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertCompany inserts the company or, if a row with the same URL
// already exists, overwrites its fields in place. Safe to call
// repeatedly with the same URL; exactly one row per URL ever exists.
func (s *PostgresStore) UpsertCompany(ctx context.Context, company model.Company) (*model.Company, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	row := s.pool.QueryRow(ctx,
		`INSERT INTO companies (id, url, name, description, industry, products, target_customer, location, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (url) DO UPDATE SET
		   name = EXCLUDED.name, description = EXCLUDED.description,
		   industry = EXCLUDED.industry, products = EXCLUDED.products,
		   target_customer = EXCLUDED.target_customer, location = EXCLUDED.location,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at, updated_at`,
		id, company.URL, company.Name, company.Description, company.Industry,
		company.Products, company.TargetCustomer, company.Location, now, now,
	)

	out := company
	if err := row.Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert company %s", company.URL)
	}
	return &out, nil
}

func (s *PostgresStore) GetCompanyByURL(ctx context.Context, url string) (*model.Company, error) {
	var c model.Company
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, name, description, industry, products, target_customer, location, created_at, updated_at
		 FROM companies WHERE url = $1`,
		url,
	).Scan(&c.ID, &c.URL, &c.Name, &c.Description, &c.Industry, &c.Products,
		&c.TargetCustomer, &c.Location, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get company %s", url)
	}
	return &c, nil
}

// ClaimMessage atomically records an inbound message id. Returns false
// when the id was already claimed, so a duplicate delivery of the same
// trigger never starts a second report.
func (s *PostgresStore) ClaimMessage(ctx context.Context, messageID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO report_claims (message_id, claimed_at) VALUES ($1, $2)
		 ON CONFLICT (message_id) DO NOTHING`,
		messageID, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim message %s", messageID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, companyID string, cfg ReportConfig) (*model.Report, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	servicesJSON, err := json.Marshal(cfg.Services)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal services")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, company_id, status, prompt_count, runs_per_prompt, services, message_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, companyID, string(model.ReportStatusGenerating),
		cfg.PromptCount, cfg.RunsPerPrompt, servicesJSON, cfg.MessageID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert report")
	}

	return &model.Report{
		ID:            id,
		CompanyID:     companyID,
		Status:        model.ReportStatusGenerating,
		PromptCount:   cfg.PromptCount,
		RunsPerPrompt: cfg.RunsPerPrompt,
		Services:      cfg.Services,
		MessageID:     cfg.MessageID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CompleteReport transitions a generating report to completed with its
// summary. A report already in a terminal state is left untouched and
// ErrReportFinalized is returned.
func (s *PostgresStore) CompleteReport(ctx context.Context, reportID string, summary model.ReportSummary, executionMs int64) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = $1, summary = $2, execution_ms = $3, updated_at = $4
		 WHERE id = $5 AND status = $6`,
		string(model.ReportStatusCompleted), summaryJSON, executionMs,
		time.Now().UTC(), reportID, string(model.ReportStatusGenerating),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete report %s", reportID)
	}
	if tag.RowsAffected() == 0 {
		return s.finalizeConflict(ctx, reportID)
	}
	return nil
}

// FailReport transitions a generating report to failed with the error
// message. Partial prompt/run data already written is retained.
func (s *PostgresStore) FailReport(ctx context.Context, reportID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = $1, error = $2, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		string(model.ReportStatusFailed), errMsg,
		time.Now().UTC(), reportID, string(model.ReportStatusGenerating),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail report %s", reportID)
	}
	if tag.RowsAffected() == 0 {
		return s.finalizeConflict(ctx, reportID)
	}
	return nil
}

// finalizeConflict distinguishes "report missing" from "report already
// terminal" after a guarded status update matched no rows.
func (s *PostgresStore) finalizeConflict(ctx context.Context, reportID string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM reports WHERE id = $1`, reportID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Errorf("postgres: report not found: %s", reportID)
		}
		return eris.Wrapf(err, "postgres: check report status %s", reportID)
	}
	return ErrReportFinalized
}

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, company_id, status, prompt_count, runs_per_prompt, services, summary, execution_ms, error, message_id, created_at, updated_at
		 FROM reports WHERE id = $1`,
		reportID,
	)
	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get report %s", reportID)
	}
	return r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	query := `SELECT r.id, r.company_id, r.status, r.prompt_count, r.runs_per_prompt, r.services, r.summary, r.execution_ms, r.error, r.message_id, r.created_at, r.updated_at
	          FROM reports r`
	args := []any{}
	argIdx := 1

	if filter.CompanyURL != "" {
		query += fmt.Sprintf(` JOIN companies c ON c.id = r.company_id AND c.url = $%d`, argIdx)
		args = append(args, filter.CompanyURL)
		argIdx++
	}
	query += ` WHERE true`
	if filter.Status != "" {
		query += fmt.Sprintf(` AND r.status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY r.created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		reports = append(reports, *r)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

func (s *PostgresStore) CreatePrompt(ctx context.Context, prompt model.Prompt) (*model.Prompt, error) {
	if prompt.ID == "" {
		prompt.ID = uuid.New().String()
	}
	prompt.CreatedAt = time.Now().UTC()
	if prompt.Aggregates == nil {
		prompt.Aggregates = map[model.ServiceID]model.PromptAggregate{}
	}

	aggJSON, err := json.Marshal(prompt.Aggregates)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal aggregates")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO prompts (id, report_id, category, text, order_index, aggregates, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		prompt.ID, prompt.ReportID, prompt.Category, prompt.Text,
		prompt.OrderIndex, aggJSON, prompt.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert prompt for report %s", prompt.ReportID)
	}
	return &prompt, nil
}

// UpdatePromptAggregates overwrites the prompt's per-service aggregates
// in a single write. Never merged incrementally, so re-aggregation can
// not double count.
func (s *PostgresStore) UpdatePromptAggregates(ctx context.Context, promptID string, aggs map[model.ServiceID]model.PromptAggregate) error {
	aggJSON, err := json.Marshal(aggs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal aggregates")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE prompts SET aggregates = $1 WHERE id = $2`,
		aggJSON, promptID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update prompt aggregates %s", promptID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: prompt not found: %s", promptID)
	}
	return nil
}

func (s *PostgresStore) InsertPromptRun(ctx context.Context, run model.PromptRun) (*model.PromptRun, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO prompt_runs (id, prompt_id, report_id, run_number, service, business_mentioned, rank, mention_context, execution_ms, answer_chars, tokens_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.PromptID, run.ReportID, run.RunNumber, string(run.Service),
		run.BusinessMentioned, run.Rank, run.MentionContext,
		run.ExecutionMs, run.AnswerChars, run.TokensUsed, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert prompt run for prompt %s", run.PromptID)
	}
	return &run, nil
}

func (s *PostgresStore) InsertCompetitorMention(ctx context.Context, m model.CompetitorMention) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO competitor_mentions (id, run_id, report_id, name, rank, source_url)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.RunID, m.ReportID, m.Name, m.Rank, m.SourceURL,
	)
	return eris.Wrapf(err, "postgres: insert competitor mention for run %s", m.RunID)
}

func (s *PostgresStore) InsertSourceCitation(ctx context.Context, c model.SourceCitation) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	competitorsJSON, err := json.Marshal(c.Competitors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal citation competitors")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO source_citations (id, run_id, report_id, service, url, domain, business_mentioned, competitors)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.RunID, c.ReportID, string(c.Service), c.URL, c.Domain,
		c.BusinessMentioned, competitorsJSON,
	)
	return eris.Wrapf(err, "postgres: insert source citation for run %s", c.RunID)
}

func (s *PostgresStore) GetFullReport(ctx context.Context, reportID string) (*model.FullReport, error) {
	report, err := s.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, nil
	}

	var company model.Company
	err = s.pool.QueryRow(ctx,
		`SELECT id, url, name, description, industry, products, target_customer, location, created_at, updated_at
		 FROM companies WHERE id = $1`,
		report.CompanyID,
	).Scan(&company.ID, &company.URL, &company.Name, &company.Description,
		&company.Industry, &company.Products, &company.TargetCustomer,
		&company.Location, &company.CreatedAt, &company.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report company %s", report.CompanyID)
	}

	prompts, err := s.reportPrompts(ctx, reportID)
	if err != nil {
		return nil, err
	}
	runsByPrompt, err := s.reportRuns(ctx, reportID)
	if err != nil {
		return nil, err
	}
	competitorsByRun, err := s.reportCompetitors(ctx, reportID)
	if err != nil {
		return nil, err
	}
	citationsByRun, err := s.reportCitations(ctx, reportID)
	if err != nil {
		return nil, err
	}

	full := &model.FullReport{Report: *report, Company: company}
	for _, p := range prompts {
		fp := model.FullPrompt{Prompt: p}
		for _, run := range runsByPrompt[p.ID] {
			fp.Runs = append(fp.Runs, model.FullRun{
				Run:         run,
				Competitors: competitorsByRun[run.ID],
				Citations:   citationsByRun[run.ID],
			})
		}
		full.Prompts = append(full.Prompts, fp)
	}
	return full, nil
}

func (s *PostgresStore) GetLatestReportByCompany(ctx context.Context, companyURL string) (*model.Report, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT r.id, r.company_id, r.status, r.prompt_count, r.runs_per_prompt, r.services, r.summary, r.execution_ms, r.error, r.message_id, r.created_at, r.updated_at
		 FROM reports r
		 JOIN companies c ON c.id = r.company_id
		 WHERE c.url = $1
		 ORDER BY r.created_at DESC LIMIT 1`,
		companyURL,
	)
	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: latest report for %s", companyURL)
	}
	return r, nil
}

func (s *PostgresStore) CompetitorLeaderboard(ctx context.Context, reportID string) ([]model.CompetitorStanding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, COUNT(*) AS mentions, AVG(rank)::float8 AS average_rank
		 FROM competitor_mentions WHERE report_id = $1
		 GROUP BY name
		 ORDER BY mentions DESC, average_rank ASC, name ASC`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: competitor leaderboard")
	}
	defer rows.Close()

	var standings []model.CompetitorStanding
	for rows.Next() {
		var cs model.CompetitorStanding
		if err := rows.Scan(&cs.Name, &cs.Mentions, &cs.AverageRank); err != nil {
			return nil, eris.Wrap(err, "postgres: scan competitor standing")
		}
		standings = append(standings, cs)
	}
	return standings, eris.Wrap(rows.Err(), "postgres: competitor leaderboard iterate")
}

func (s *PostgresStore) TopSources(ctx context.Context, reportID string, limit int) ([]model.SourceCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT domain, COUNT(*) AS citations
		 FROM source_citations WHERE report_id = $1
		 GROUP BY domain
		 ORDER BY citations DESC, domain ASC
		 LIMIT $2`,
		reportID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: top sources")
	}
	defer rows.Close()

	var sources []model.SourceCount
	for rows.Next() {
		var sc model.SourceCount
		if err := rows.Scan(&sc.Domain, &sc.Citations); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source count")
		}
		sources = append(sources, sc)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: top sources iterate")
}

// --- row helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*model.Report, error) {
	var r model.Report
	var servicesJSON []byte
	var summaryNull *[]byte

	err := row.Scan(&r.ID, &r.CompanyID, &r.Status, &r.PromptCount, &r.RunsPerPrompt,
		&servicesJSON, &summaryNull, &r.ExecutionMs, &r.Error, &r.MessageID,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(servicesJSON, &r.Services); err != nil {
		return nil, eris.Wrap(err, "unmarshal services")
	}
	if summaryNull != nil {
		r.Summary = &model.ReportSummary{}
		if err := json.Unmarshal(*summaryNull, r.Summary); err != nil {
			return nil, eris.Wrap(err, "unmarshal summary")
		}
	}
	return &r, nil
}

func (s *PostgresStore) reportPrompts(ctx context.Context, reportID string) ([]model.Prompt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, report_id, category, text, order_index, aggregates, created_at
		 FROM prompts WHERE report_id = $1 ORDER BY order_index ASC`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: report prompts")
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		var aggJSON []byte
		if err := rows.Scan(&p.ID, &p.ReportID, &p.Category, &p.Text, &p.OrderIndex, &aggJSON, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prompt")
		}
		if err := json.Unmarshal(aggJSON, &p.Aggregates); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal prompt aggregates")
		}
		prompts = append(prompts, p)
	}
	return prompts, eris.Wrap(rows.Err(), "postgres: report prompts iterate")
}

func (s *PostgresStore) reportRuns(ctx context.Context, reportID string) (map[string][]model.PromptRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, prompt_id, report_id, run_number, service, business_mentioned, rank, mention_context, execution_ms, answer_chars, tokens_used, created_at
		 FROM prompt_runs WHERE report_id = $1 ORDER BY run_number ASC`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: report runs")
	}
	defer rows.Close()

	byPrompt := make(map[string][]model.PromptRun)
	for rows.Next() {
		var run model.PromptRun
		if err := rows.Scan(&run.ID, &run.PromptID, &run.ReportID, &run.RunNumber,
			&run.Service, &run.BusinessMentioned, &run.Rank, &run.MentionContext,
			&run.ExecutionMs, &run.AnswerChars, &run.TokensUsed, &run.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prompt run")
		}
		byPrompt[run.PromptID] = append(byPrompt[run.PromptID], run)
	}
	return byPrompt, eris.Wrap(rows.Err(), "postgres: report runs iterate")
}

func (s *PostgresStore) reportCompetitors(ctx context.Context, reportID string) (map[string][]model.CompetitorMention, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, report_id, name, rank, source_url
		 FROM competitor_mentions WHERE report_id = $1 ORDER BY rank ASC`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: report competitors")
	}
	defer rows.Close()

	byRun := make(map[string][]model.CompetitorMention)
	for rows.Next() {
		var m model.CompetitorMention
		if err := rows.Scan(&m.ID, &m.RunID, &m.ReportID, &m.Name, &m.Rank, &m.SourceURL); err != nil {
			return nil, eris.Wrap(err, "postgres: scan competitor mention")
		}
		byRun[m.RunID] = append(byRun[m.RunID], m)
	}
	return byRun, eris.Wrap(rows.Err(), "postgres: report competitors iterate")
}

func (s *PostgresStore) reportCitations(ctx context.Context, reportID string) (map[string][]model.SourceCitation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, report_id, service, url, domain, business_mentioned, competitors
		 FROM source_citations WHERE report_id = $1`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: report citations")
	}
	defer rows.Close()

	byRun := make(map[string][]model.SourceCitation)
	for rows.Next() {
		var c model.SourceCitation
		var competitorsJSON []byte
		if err := rows.Scan(&c.ID, &c.RunID, &c.ReportID, &c.Service, &c.URL, &c.Domain, &c.BusinessMentioned, &competitorsJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source citation")
		}
		if err := json.Unmarshal(competitorsJSON, &c.Competitors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal citation competitors")
		}
		byRun[c.RunID] = append(byRun[c.RunID], c)
	}
	return byRun, eris.Wrap(rows.Err(), "postgres: report citations iterate")
}
