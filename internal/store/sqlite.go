package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/visibility-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id              TEXT PRIMARY KEY,
	url             TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	industry        TEXT NOT NULL DEFAULT '',
	products        TEXT NOT NULL DEFAULT '',
	target_customer TEXT NOT NULL DEFAULT '',
	location        TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
	id              TEXT PRIMARY KEY,
	company_id      TEXT NOT NULL REFERENCES companies(id),
	status          TEXT NOT NULL DEFAULT 'generating',
	prompt_count    INTEGER NOT NULL,
	runs_per_prompt INTEGER NOT NULL,
	services        TEXT NOT NULL,
	summary         TEXT,
	execution_ms    INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	message_id      TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_company_id ON reports(company_id);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);

CREATE TABLE IF NOT EXISTS report_claims (
	message_id TEXT PRIMARY KEY,
	claimed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS prompts (
	id          TEXT PRIMARY KEY,
	report_id   TEXT NOT NULL REFERENCES reports(id),
	category    TEXT NOT NULL DEFAULT '',
	text        TEXT NOT NULL,
	order_index INTEGER NOT NULL,
	aggregates  TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prompts_report_id ON prompts(report_id);

CREATE TABLE IF NOT EXISTS prompt_runs (
	id                 TEXT PRIMARY KEY,
	prompt_id          TEXT NOT NULL REFERENCES prompts(id),
	report_id          TEXT NOT NULL REFERENCES reports(id),
	run_number         INTEGER NOT NULL,
	service            TEXT NOT NULL,
	business_mentioned INTEGER NOT NULL DEFAULT 0,
	rank               INTEGER,
	mention_context    TEXT NOT NULL DEFAULT '',
	execution_ms       INTEGER NOT NULL DEFAULT 0,
	answer_chars       INTEGER NOT NULL DEFAULT 0,
	tokens_used        INTEGER NOT NULL DEFAULT 0,
	created_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prompt_runs_prompt_id ON prompt_runs(prompt_id);
CREATE INDEX IF NOT EXISTS idx_prompt_runs_report_id ON prompt_runs(report_id);

CREATE TABLE IF NOT EXISTS competitor_mentions (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES prompt_runs(id),
	report_id  TEXT NOT NULL REFERENCES reports(id),
	name       TEXT NOT NULL,
	rank       INTEGER NOT NULL,
	source_url TEXT
);

CREATE INDEX IF NOT EXISTS idx_competitor_mentions_run_id ON competitor_mentions(run_id);
CREATE INDEX IF NOT EXISTS idx_competitor_mentions_report_id ON competitor_mentions(report_id);

CREATE TABLE IF NOT EXISTS source_citations (
	id                 TEXT PRIMARY KEY,
	run_id             TEXT NOT NULL REFERENCES prompt_runs(id),
	report_id          TEXT NOT NULL REFERENCES reports(id),
	service            TEXT NOT NULL,
	url                TEXT NOT NULL,
	domain             TEXT NOT NULL,
	business_mentioned INTEGER NOT NULL DEFAULT 0,
	competitors        TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_source_citations_run_id ON source_citations(run_id);
CREATE INDEX IF NOT EXISTS idx_source_citations_report_id ON source_citations(report_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, company model.Company) (*model.Company, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	out := company
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO companies (id, url, name, description, industry, products, target_customer, location, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (url) DO UPDATE SET
		   name = excluded.name, description = excluded.description,
		   industry = excluded.industry, products = excluded.products,
		   target_customer = excluded.target_customer, location = excluded.location,
		   updated_at = excluded.updated_at
		 RETURNING id, created_at, updated_at`,
		id, company.URL, company.Name, company.Description, company.Industry,
		company.Products, company.TargetCustomer, company.Location, now, now,
	).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert company %s", company.URL)
	}
	return &out, nil
}

func (s *SQLiteStore) GetCompanyByURL(ctx context.Context, url string) (*model.Company, error) {
	var c model.Company
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, name, description, industry, products, target_customer, location, created_at, updated_at
		 FROM companies WHERE url = ?`,
		url,
	).Scan(&c.ID, &c.URL, &c.Name, &c.Description, &c.Industry, &c.Products,
		&c.TargetCustomer, &c.Location, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get company %s", url)
	}
	return &c, nil
}

func (s *SQLiteStore) ClaimMessage(ctx context.Context, messageID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO report_claims (message_id, claimed_at) VALUES (?, ?)
		 ON CONFLICT (message_id) DO NOTHING`,
		messageID, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim message %s", messageID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: claim rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) CreateReport(ctx context.Context, companyID string, cfg ReportConfig) (*model.Report, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	servicesJSON, err := json.Marshal(cfg.Services)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal services")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, company_id, status, prompt_count, runs_per_prompt, services, message_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, companyID, string(model.ReportStatusGenerating),
		cfg.PromptCount, cfg.RunsPerPrompt, string(servicesJSON), cfg.MessageID, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert report")
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

func (s *SQLiteStore) CompleteReport(ctx context.Context, reportID string, summary model.ReportSummary, executionMs int64) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ?, summary = ?, execution_ms = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.ReportStatusCompleted), string(summaryJSON), executionMs,
		time.Now().UTC(), reportID, string(model.ReportStatusGenerating),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete report %s", reportID)
	}
	return s.checkFinalized(ctx, res, reportID)
}

func (s *SQLiteStore) FailReport(ctx context.Context, reportID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ?, error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.ReportStatusFailed), errMsg,
		time.Now().UTC(), reportID, string(model.ReportStatusGenerating),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail report %s", reportID)
	}
	return s.checkFinalized(ctx, res, reportID)
}

func (s *SQLiteStore) checkFinalized(ctx context.Context, res sql.Result, reportID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM reports WHERE id = ?`, reportID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Errorf("sqlite: report not found: %s", reportID)
		}
		return eris.Wrapf(err, "sqlite: check report status %s", reportID)
	}
	return ErrReportFinalized
}

func (s *SQLiteStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, status, prompt_count, runs_per_prompt, services, summary, execution_ms, error, message_id, created_at, updated_at
		 FROM reports WHERE id = ?`,
		reportID,
	)
	r, err := scanSQLiteReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get report %s", reportID)
	}
	return r, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	query := `SELECT r.id, r.company_id, r.status, r.prompt_count, r.runs_per_prompt, r.services, r.summary, r.execution_ms, r.error, r.message_id, r.created_at, r.updated_at
	          FROM reports r`
	args := []any{}

	if filter.CompanyURL != "" {
		query += ` JOIN companies c ON c.id = r.company_id AND c.url = ?`
		args = append(args, filter.CompanyURL)
	}
	query += ` WHERE 1=1`
	if filter.Status != "" {
		query += ` AND r.status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY r.created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanSQLiteReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		reports = append(reports, *r)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

func (s *SQLiteStore) CreatePrompt(ctx context.Context, prompt model.Prompt) (*model.Prompt, error) {
	if prompt.ID == "" {
		prompt.ID = uuid.New().String()
	}
	prompt.CreatedAt = time.Now().UTC()
	if prompt.Aggregates == nil {
		prompt.Aggregates = map[model.ServiceID]model.PromptAggregate{}
	}

	aggJSON, err := json.Marshal(prompt.Aggregates)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal aggregates")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prompts (id, report_id, category, text, order_index, aggregates, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		prompt.ID, prompt.ReportID, prompt.Category, prompt.Text,
		prompt.OrderIndex, string(aggJSON), prompt.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert prompt for report %s", prompt.ReportID)
	}
	return &prompt, nil
}

func (s *SQLiteStore) UpdatePromptAggregates(ctx context.Context, promptID string, aggs map[model.ServiceID]model.PromptAggregate) error {
	aggJSON, err := json.Marshal(aggs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal aggregates")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE prompts SET aggregates = ? WHERE id = ?`,
		string(aggJSON), promptID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update prompt aggregates %s", promptID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: prompt not found: %s", promptID)
	}
	return nil
}

func (s *SQLiteStore) InsertPromptRun(ctx context.Context, run model.PromptRun) (*model.PromptRun, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = time.Now().UTC()

	var rank any
	if run.Rank != nil {
		rank = *run.Rank
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prompt_runs (id, prompt_id, report_id, run_number, service, business_mentioned, rank, mention_context, execution_ms, answer_chars, tokens_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.PromptID, run.ReportID, run.RunNumber, string(run.Service),
		run.BusinessMentioned, rank, run.MentionContext,
		run.ExecutionMs, run.AnswerChars, run.TokensUsed, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert prompt run for prompt %s", run.PromptID)
	}
	return &run, nil
}

func (s *SQLiteStore) InsertCompetitorMention(ctx context.Context, m model.CompetitorMention) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO competitor_mentions (id, run_id, report_id, name, rank, source_url)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.RunID, m.ReportID, m.Name, m.Rank, m.SourceURL,
	)
	return eris.Wrapf(err, "sqlite: insert competitor mention for run %s", m.RunID)
}

func (s *SQLiteStore) InsertSourceCitation(ctx context.Context, c model.SourceCitation) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	competitorsJSON, err := json.Marshal(c.Competitors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal citation competitors")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO source_citations (id, run_id, report_id, service, url, domain, business_mentioned, competitors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.RunID, c.ReportID, string(c.Service), c.URL, c.Domain,
		c.BusinessMentioned, string(competitorsJSON),
	)
	return eris.Wrapf(err, "sqlite: insert source citation for run %s", c.RunID)
}

func (s *SQLiteStore) GetFullReport(ctx context.Context, reportID string) (*model.FullReport, error) {
	report, err := s.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, nil
	}

	var company model.Company
	err = s.db.QueryRowContext(ctx,
		`SELECT id, url, name, description, industry, products, target_customer, location, created_at, updated_at
		 FROM companies WHERE id = ?`,
		report.CompanyID,
	).Scan(&company.ID, &company.URL, &company.Name, &company.Description,
		&company.Industry, &company.Products, &company.TargetCustomer,
		&company.Location, &company.CreatedAt, &company.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report company %s", report.CompanyID)
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

func (s *SQLiteStore) GetLatestReportByCompany(ctx context.Context, companyURL string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT r.id, r.company_id, r.status, r.prompt_count, r.runs_per_prompt, r.services, r.summary, r.execution_ms, r.error, r.message_id, r.created_at, r.updated_at
		 FROM reports r
		 JOIN companies c ON c.id = r.company_id
		 WHERE c.url = ?
		 ORDER BY r.created_at DESC LIMIT 1`,
		companyURL,
	)
	r, err := scanSQLiteReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: latest report for %s", companyURL)
	}
	return r, nil
}

func (s *SQLiteStore) CompetitorLeaderboard(ctx context.Context, reportID string) ([]model.CompetitorStanding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, COUNT(*) AS mentions, AVG(rank) AS average_rank
		 FROM competitor_mentions WHERE report_id = ?
		 GROUP BY name
		 ORDER BY mentions DESC, average_rank ASC, name ASC`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: competitor leaderboard")
	}
	defer rows.Close()

	var standings []model.CompetitorStanding
	for rows.Next() {
		var cs model.CompetitorStanding
		if err := rows.Scan(&cs.Name, &cs.Mentions, &cs.AverageRank); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan competitor standing")
		}
		standings = append(standings, cs)
	}
	return standings, eris.Wrap(rows.Err(), "sqlite: competitor leaderboard iterate")
}

func (s *SQLiteStore) TopSources(ctx context.Context, reportID string, limit int) ([]model.SourceCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, COUNT(*) AS citations
		 FROM source_citations WHERE report_id = ?
		 GROUP BY domain
		 ORDER BY citations DESC, domain ASC
		 LIMIT ?`,
		reportID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: top sources")
	}
	defer rows.Close()

	var sources []model.SourceCount
	for rows.Next() {
		var sc model.SourceCount
		if err := rows.Scan(&sc.Domain, &sc.Citations); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source count")
		}
		sources = append(sources, sc)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: top sources iterate")
}

// --- row helpers ---

func scanSQLiteReport(row rowScanner) (*model.Report, error) {
	var r model.Report
	var status, servicesJSON string
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &r.CompanyID, &status, &r.PromptCount, &r.RunsPerPrompt,
		&servicesJSON, &summaryJSON, &r.ExecutionMs, &r.Error, &r.MessageID,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.ReportStatus(status)

	if err := json.Unmarshal([]byte(servicesJSON), &r.Services); err != nil {
		return nil, eris.Wrap(err, "unmarshal services")
	}
	if summaryJSON.Valid {
		r.Summary = &model.ReportSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "unmarshal summary")
		}
	}
	return &r, nil
}

func (s *SQLiteStore) reportPrompts(ctx context.Context, reportID string) ([]model.Prompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, report_id, category, text, order_index, aggregates, created_at
		 FROM prompts WHERE report_id = ? ORDER BY order_index ASC`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: report prompts")
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		var aggJSON string
		if err := rows.Scan(&p.ID, &p.ReportID, &p.Category, &p.Text, &p.OrderIndex, &aggJSON, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prompt")
		}
		if err := json.Unmarshal([]byte(aggJSON), &p.Aggregates); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal prompt aggregates")
		}
		prompts = append(prompts, p)
	}
	return prompts, eris.Wrap(rows.Err(), "sqlite: report prompts iterate")
}

func (s *SQLiteStore) reportRuns(ctx context.Context, reportID string) (map[string][]model.PromptRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt_id, report_id, run_number, service, business_mentioned, rank, mention_context, execution_ms, answer_chars, tokens_used, created_at
		 FROM prompt_runs WHERE report_id = ? ORDER BY run_number ASC`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: report runs")
	}
	defer rows.Close()

	byPrompt := make(map[string][]model.PromptRun)
	for rows.Next() {
		var run model.PromptRun
		var service string
		var rank sql.NullInt64
		if err := rows.Scan(&run.ID, &run.PromptID, &run.ReportID, &run.RunNumber,
			&service, &run.BusinessMentioned, &rank, &run.MentionContext,
			&run.ExecutionMs, &run.AnswerChars, &run.TokensUsed, &run.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prompt run")
		}
		run.Service = model.ServiceID(service)
		if rank.Valid {
			v := int(rank.Int64)
			run.Rank = &v
		}
		byPrompt[run.PromptID] = append(byPrompt[run.PromptID], run)
	}
	return byPrompt, eris.Wrap(rows.Err(), "sqlite: report runs iterate")
}

func (s *SQLiteStore) reportCompetitors(ctx context.Context, reportID string) (map[string][]model.CompetitorMention, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, report_id, name, rank, source_url
		 FROM competitor_mentions WHERE report_id = ? ORDER BY rank ASC`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: report competitors")
	}
	defer rows.Close()

	byRun := make(map[string][]model.CompetitorMention)
	for rows.Next() {
		var m model.CompetitorMention
		if err := rows.Scan(&m.ID, &m.RunID, &m.ReportID, &m.Name, &m.Rank, &m.SourceURL); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan competitor mention")
		}
		byRun[m.RunID] = append(byRun[m.RunID], m)
	}
	return byRun, eris.Wrap(rows.Err(), "sqlite: report competitors iterate")
}

func (s *SQLiteStore) reportCitations(ctx context.Context, reportID string) (map[string][]model.SourceCitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, report_id, service, url, domain, business_mentioned, competitors
		 FROM source_citations WHERE report_id = ?`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: report citations")
	}
	defer rows.Close()

	byRun := make(map[string][]model.SourceCitation)
	for rows.Next() {
		var c model.SourceCitation
		var service, competitorsJSON string
		if err := rows.Scan(&c.ID, &c.RunID, &c.ReportID, &service, &c.URL, &c.Domain, &c.BusinessMentioned, &competitorsJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source citation")
		}
		c.Service = model.ServiceID(service)
		if err := json.Unmarshal([]byte(competitorsJSON), &c.Competitors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal citation competitors")
		}
		byRun[c.RunID] = append(byRun[c.RunID], c)
	}
	return byRun, eris.Wrap(rows.Err(), "sqlite: report citations iterate")
}
