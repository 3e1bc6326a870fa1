package config

import (
	"flag"
	"net"
	"path/filepath"
	"time"

	"github.com/AARTI756/bank/repository/database"
)

// Config is built once from flags at process start and handed to every
// component; there is no other source of configuration.
type Config struct {
	Host    string
	Port    string
	Name    string
	DataDir string

	InMemory bool
	Preload  bool

	PrepareTimeout time.Duration
	RetryBackoff   time.Duration
	MaxRetries     int
	TxDeadline     time.Duration
	ExpiryEvery    time.Duration

	OpLogConfig *database.OperationLogConfig
}

func NewConfig() *Config {
	host := flag.String("host", "127.0.0.1", "address to listen on")
	port := flag.String("port", "9000", "port to listen on")
	name := flag.String("name", "branch", "branch name, used in transaction ids and file names")
	dataDir := flag.String("data-dir", "data", "directory for the ledger file and operation log")
	inMemory := flag.Bool("mem", false, "keep the ledger in memory instead of sqlite (demo only)")
	preload := flag.Bool("preload", false, "seed accounts 1001 and 1002 with 1000.00 if the ledger is empty")
	prepareTimeout := flag.Duration("prepare-timeout", 5*time.Second, "bound on each 2PC phase round trip")
	retryBackoff := flag.Duration("retry-backoff", 500*time.Millisecond, "base backoff between decision delivery retries")
	maxRetries := flag.Int("max-retries", 3, "decision delivery attempts before a transfer is left unresolved")
	txDeadline := flag.Duration("tx-deadline", 10*time.Second, "how long prepared funds stay held without a decision")
	flag.Parse()

	return &Config{
		Host:           *host,
		Port:           *port,
		Name:           *name,
		DataDir:        *dataDir,
		InMemory:       *inMemory,
		Preload:        *preload,
		PrepareTimeout: *prepareTimeout,
		RetryBackoff:   *retryBackoff,
		MaxRetries:     *maxRetries,
		TxDeadline:     *txDeadline,
		ExpiryEvery:    time.Second,
		OpLogConfig: &database.OperationLogConfig{
			Dir:         *dataDir,
			MaxFileSize: 100,
			Prefix:      *name,
		},
	}
}

// Addr is the listen address, host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// LedgerPath is the branch's sqlite file.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir, c.Name+".db")
}
