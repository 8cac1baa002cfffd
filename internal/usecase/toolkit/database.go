package toolkit

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	databaseName        = "database"
	databaseDescription = "执行 SQL 查询从数据库获取数据。参数：SQL 查询语句。"
)

const (
	defaultMaxRows = 100
	renderedRows   = 10
	cellKeepRunes  = 50
)

var defaultDBKeywords = []string{"查询", "数据", "统计", "数据库", "sql", "表", "记录"}

// Database runs read-only SQL against the configured warehouse and renders
// a compact text table the model can read.
type Database struct {
	db       Querier
	keywords []string
	maxRows  int
}

// NewDatabase creates a database tool. Empty keywords select the default
// set, a non-positive maxRows selects 100.
func NewDatabase(db Querier, keywords []string, maxRows int) *Database {
	if len(keywords) == 0 {
		keywords = defaultDBKeywords
	}
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &Database{db: db, keywords: keywords, maxRows: maxRows}
}

func (d *Database) Name() string        { return databaseName }
func (d *Database) Description() string { return databaseDescription }

// CanHandle claims questions that mention data, stats or SQL vocabulary.
func (d *Database) CanHandle(question string) bool {
	lowered := strings.ToLower(question)
	for _, kw := range d.keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Run executes a single SELECT statement. Guard violations come back in the
// payload so the model can correct the query on the next attempt.
func (d *Database) Run(ctx context.Context, input string) (string, error) {
	sql := strings.TrimSpace(input)
	if sql == "" {
		return "错误: SQL 查询语句为空", nil
	}
	if !strings.HasPrefix(strings.ToUpper(sql), "SELECT") {
		return "错误: 只允许执行 SELECT 查询", nil
	}

	rows, err := d.db.Query(ctx, sql)
	if err != nil {
		return "", fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}

	var sample [][]string
	total := 0
	for total < d.maxRows && rows.Next() {
		total++
		if total > renderedRows {
			continue
		}
		vals, err := rows.Values()
		if err != nil {
			return "", fmt.Errorf("read row: %w", err)
		}
		cells := make([]string, len(vals))
		for i, v := range vals {
			cells[i] = renderCell(v)
		}
		sample = append(sample, cells)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate rows: %w", err)
	}
	if total == 0 {
		return "查询结果为空", nil
	}

	headerLine := strings.Join(cols, " | ")
	var b strings.Builder
	fmt.Fprintf(&b, "查询结果（共 %d 行，显示前 %d 行）:\n\n", total, len(sample))
	b.WriteString(headerLine + "\n")
	b.WriteString(strings.Repeat("-", utf8.RuneCountInString(headerLine)) + "\n")
	for _, cells := range sample {
		b.WriteString(strings.Join(cells, " | ") + "\n")
	}
	if total > len(sample) {
		fmt.Fprintf(&b, "\n... 还有 %d 行数据", total-len(sample))
	}
	return b.String(), nil
}

// renderCell stringifies a column value. NULL renders empty, long values
// are cut to cellKeepRunes.
func renderCell(v any) string {
	if v == nil {
		return ""
	}
	return truncate(fmt.Sprintf("%v", v), cellKeepRunes)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// PoolQuerier adapts a pgx connection pool to the Querier contract.
type PoolQuerier struct {
	Pool *pgxpool.Pool
}

func (p PoolQuerier) Query(ctx context.Context, sql string) (Rows, error) {
	rows, err := p.Pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
