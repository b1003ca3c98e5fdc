// Package directory loads call-center configuration from the FreePBX
// MariaDB/MySQL databases: agents, queues, queue membership, and CDR call
// statistics. A Syncer refreshes a Store copy on an interval so the rest of
// the connector never waits on the database.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

// ErrInvalidConfig indicates missing database settings.
var ErrInvalidConfig = errors.New("invalid directory configuration")

// statsWindow is how far back queue and call statistics reach.
const statsWindow = 24 * time.Hour

// Config holds the connection settings for both FreePBX databases.
type Config struct {
	// Address is the MySQL endpoint as "host:port".
	Address  string
	User     string
	Password string

	// Database is the FreePBX configuration database, usually "asterisk".
	Database string

	// CDRDatabase holds call detail records, usually "asteriskcdrdb".
	CDRDatabase string

	ConnectTimeout time.Duration
}

// Validate checks that the required settings are present.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}
	if c.User == "" {
		return fmt.Errorf("%w: user is required", ErrInvalidConfig)
	}
	if c.Database == "" || c.CDRDatabase == "" {
		return fmt.Errorf("%w: database names are required", ErrInvalidConfig)
	}
	return nil
}

// Client reads FreePBX configuration and CDR data. It holds one pool per
// database; connections are established lazily on first query.
type Client struct {
	db     *sql.DB
	cdr    *sql.DB
	logger zerolog.Logger
}

// Open creates a client for the configured databases. It does not dial;
// use Ping to verify connectivity.
func Open(cfg Config, logger zerolog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn(cfg, cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.Database, err)
	}
	cdr, err := sql.Open("mysql", dsn(cfg, cfg.CDRDatabase))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s: %w", cfg.CDRDatabase, err)
	}

	// A read-only reporting workload needs very little concurrency.
	for _, pool := range []*sql.DB{db, cdr} {
		pool.SetMaxOpenConns(10)
		pool.SetMaxIdleConns(2)
		pool.SetConnMaxLifetime(5 * time.Minute)
	}

	return &Client{
		db:     db,
		cdr:    cdr,
		logger: logger.With().Str("component", "directory").Logger(),
	}, nil
}

func dsn(cfg Config, database string) string {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = cfg.Address
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = database
	mc.Timeout = cfg.ConnectTimeout
	mc.ParseTime = true
	return mc.FormatDSN()
}

// Close closes both database pools.
func (c *Client) Close() error {
	return errors.Join(c.db.Close(), c.cdr.Close())
}

// Ping verifies connectivity to the configuration database.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Agents loads all numeric extensions with their SIP device entries.
func (c *Client) Agents(ctx context.Context) ([]Agent, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT u.extension, u.name, u.email, s.tech, u.department
		FROM users u
		LEFT JOIN sip s ON u.extension = s.id
		WHERE u.extension IS NOT NULL
		  AND u.extension != ''
		  AND u.extension REGEXP '^[0-9]+$'
		ORDER BY CAST(u.extension AS UNSIGNED)
	`)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var ext string
		var name, email, tech, department sql.NullString

		if err := rows.Scan(&ext, &name, &email, &tech, &department); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}

		agent := Agent{
			ID:           AgentID(ext),
			Extension:    ext,
			Name:         name.String,
			Email:        email.String,
			DeviceTech:   tech.String,
			Department:   department.String,
			DepartmentID: departmentID(department.String),
		}
		if agent.Name == "" {
			agent.Name = "Extension " + ext
		}
		if agent.Email == "" {
			agent.Email = ext + "@pbx.local"
		}
		if agent.DeviceTech == "" {
			agent.DeviceTech = "SIP"
		}
		if agent.Department == "" {
			agent.Department = "Default"
		}
		agents = append(agents, agent)
	}

	c.logger.Debug().Int("count", len(agents)).Msg("Loaded agents")
	return agents, rows.Err()
}

// queueRow is one row of the queues_config/queues_details join.
type queueRow struct {
	Extension   string
	Name        string
	Description string
	Keyword     string
	Value       string
}

// Queues loads queue configuration and enriches each queue with CDR
// statistics for the last 24 hours.
func (c *Client) Queues(ctx context.Context) ([]Queue, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT qc.extension, qc.grppre, qc.descr, qd.keyword, qd.data
		FROM queues_config qc
		LEFT JOIN queues_details qd ON qc.extension = qd.id
		WHERE qc.extension IS NOT NULL
		ORDER BY qc.extension, qd.keyword
	`)
	if err != nil {
		return nil, fmt.Errorf("querying queues: %w", err)
	}
	defer rows.Close()

	var raw []queueRow
	for rows.Next() {
		var ext string
		var name, descr, keyword, value sql.NullString

		if err := rows.Scan(&ext, &name, &descr, &keyword, &value); err != nil {
			return nil, fmt.Errorf("scanning queue: %w", err)
		}
		raw = append(raw, queueRow{
			Extension:   ext,
			Name:        name.String,
			Description: descr.String,
			Keyword:     keyword.String,
			Value:       value.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	queues := assembleQueues(raw)
	for i := range queues {
		if err := c.enrichQueueStats(ctx, &queues[i]); err != nil {
			c.logger.Warn().Err(err).Str("queue", queues[i].Extension).Msg("Queue CDR stats unavailable")
		}
	}

	c.logger.Debug().Int("count", len(queues)).Msg("Loaded queues")
	return queues, nil
}

// assembleQueues groups join rows by queue extension and resolves the
// keyword/data pairs into typed fields. Row order determines queue order.
func assembleQueues(rows []queueRow) []Queue {
	index := make(map[string]int)
	var queues []Queue

	for _, row := range rows {
		i, ok := index[row.Extension]
		if !ok {
			name := row.Name
			if name == "" {
				name = "Queue " + row.Extension
			}
			queues = append(queues, Queue{
				ID:          QueueID(row.Extension),
				Extension:   row.Extension,
				Name:        name,
				Description: row.Description,
				Strategy:    "ringall",
				Timeout:     15,
				Retry:       5,
			})
			i = len(queues) - 1
			index[row.Extension] = i
		}

		if row.Keyword == "" || row.Value == "" {
			continue
		}
		switch row.Keyword {
		case "strategy":
			queues[i].Strategy = row.Value
		case "timeout":
			queues[i].Timeout = atoiDefault(row.Value, queues[i].Timeout)
		case "retry":
			queues[i].Retry = atoiDefault(row.Value, queues[i].Retry)
		case "wrapuptime":
			queues[i].WrapupTime = atoiDefault(row.Value, queues[i].WrapupTime)
		}
	}
	return queues
}

func (c *Client) enrichQueueStats(ctx context.Context, q *Queue) error {
	since := time.Now().Add(-statsWindow)

	var total, answered, abandoned int
	err := c.cdr.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN disposition = 'ANSWERED' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN disposition IN ('NO ANSWER', 'FAILED', 'BUSY') THEN 1 ELSE 0 END), 0)
		FROM cdr
		WHERE dstchannel LIKE ? AND calldate >= ?
	`, "%Queue/"+q.Extension+"%", since).Scan(&total, &answered, &abandoned)
	if err != nil {
		return err
	}

	q.TotalCalls = total
	q.AnsweredCalls = answered
	q.AbandonedCalls = abandoned
	if total > 0 {
		q.ServiceLevel = float64(answered) / float64(total) * 100
	}
	return nil
}

// Members loads static queue member assignments for SIP and PJSIP
// endpoints.
func (c *Client) Members(ctx context.Context) ([]Member, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT qm.queue_name, qm.interface, qm.penalty, qm.paused
		FROM queue_members qm
		WHERE qm.interface LIKE 'SIP/%' OR qm.interface LIKE 'PJSIP/%'
		ORDER BY qm.queue_name, qm.interface
	`)
	if err != nil {
		return nil, fmt.Errorf("querying queue members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var queueName, iface string
		var penalty sql.NullInt64
		var paused bool

		if err := rows.Scan(&queueName, &iface, &penalty, &paused); err != nil {
			return nil, fmt.Errorf("scanning queue member: %w", err)
		}

		ext := extensionFromInterface(iface)
		members = append(members, Member{
			QueueID:   QueueID(queueName),
			AgentID:   AgentID(ext),
			Extension: ext,
			Interface: iface,
			Penalty:   int(penalty.Int64),
			Paused:    paused,
		})
	}

	c.logger.Debug().Int("count", len(members)).Msg("Loaded queue members")
	return members, rows.Err()
}

// CallStats loads an aggregate CDR rollup for the given window.
func (c *Client) CallStats(ctx context.Context, window time.Duration) (CallStats, error) {
	since := time.Now().Add(-window)

	var total, answered, failed int
	var avgDuration, avgWait sql.NullFloat64
	err := c.cdr.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN disposition = 'ANSWERED' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN disposition IN ('NO ANSWER', 'FAILED', 'BUSY') THEN 1 ELSE 0 END), 0),
		       AVG(CASE WHEN disposition = 'ANSWERED' THEN billsec ELSE NULL END),
		       AVG(CASE WHEN disposition = 'ANSWERED' THEN duration - billsec ELSE NULL END)
		FROM cdr
		WHERE calldate >= ?
	`, since).Scan(&total, &answered, &failed, &avgDuration, &avgWait)
	if err != nil {
		return CallStats{}, fmt.Errorf("querying call stats: %w", err)
	}

	return CallStats{
		TotalCalls:    total,
		AnsweredCalls: answered,
		FailedCalls:   failed,
		AvgDuration:   avgDuration.Float64,
		AvgWaitTime:   avgWait.Float64,
		Window:        window,
		UpdatedAt:     time.Now(),
	}, nil
}

func atoiDefault(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
