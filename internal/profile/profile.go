package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for the server
	Addr string
	// Port is the binding port for the server
	Port int
	// Data is the data directory (artifacts, default SQLite database)
	Data string
	// DSN points to where loom stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of the server
	Version string

	// AI configuration
	AIAPIKey         string
	AIBaseURL        string
	AIChatModel      string
	AIEmbeddingModel string

	// MaxToolHops bounds the tool loop within a single turn.
	MaxToolHops int

	// Tool backend credentials. A tool with no key is simply not registered.
	SearchAPIKey  string
	WeatherAPIKey string
	StockAPIKey   string

	// Document ingestion tunables.
	ChunkSize     int
	ChunkOverlap  int
	RetrievalTopK int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// FromViper loads the profile from viper-bound flags and environment
// variables. Environment variables use the LOOM_ prefix, e.g. LOOM_PORT,
// LOOM_AI_API_KEY.
func FromViper(v *viper.Viper) (*Profile, error) {
	p := &Profile{
		Mode:             v.GetString("mode"),
		Addr:             v.GetString("addr"),
		Port:             v.GetInt("port"),
		Data:             v.GetString("data"),
		DSN:              v.GetString("dsn"),
		Driver:           v.GetString("driver"),
		AIAPIKey:         v.GetString("ai.api-key"),
		AIBaseURL:        v.GetString("ai.base-url"),
		AIChatModel:      v.GetString("ai.chat-model"),
		AIEmbeddingModel: v.GetString("ai.embedding-model"),
		MaxToolHops:      v.GetInt("ai.max-tool-hops"),
		SearchAPIKey:     v.GetString("tools.search-api-key"),
		WeatherAPIKey:    v.GetString("tools.weather-api-key"),
		StockAPIKey:      v.GetString("tools.stock-api-key"),
		ChunkSize:        v.GetInt("rag.chunk-size"),
		ChunkOverlap:     v.GetInt("rag.chunk-overlap"),
		RetrievalTopK:    v.GetInt("rag.top-k"),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate normalizes and checks the profile, filling defaults for unset
// tunables.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" {
		p.Mode = "dev"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported database driver: %s", p.Driver)
	}

	if p.Data == "" {
		p.Data = "data"
	}
	absData, err := filepath.Abs(p.Data)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve data directory: %s", p.Data)
	}
	p.Data = absData
	if err := os.MkdirAll(p.Data, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create data directory: %s", p.Data)
	}

	if p.DSN == "" {
		if p.Driver == "postgres" {
			return errors.New("dsn is required for the postgres driver")
		}
		p.DSN = filepath.Join(p.Data, fmt.Sprintf("loom_%s.db", p.Mode))
	}

	if p.AIChatModel == "" {
		p.AIChatModel = "gpt-4o-mini"
	}
	if p.AIEmbeddingModel == "" {
		p.AIEmbeddingModel = "text-embedding-3-small"
	}
	if p.MaxToolHops <= 0 {
		p.MaxToolHops = 8
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = 1000
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		p.ChunkOverlap = 200
	}
	if p.RetrievalTopK <= 0 {
		p.RetrievalTopK = 4
	}
	return nil
}

// String returns a loggable one-line summary without secrets.
func (p *Profile) String() string {
	dsn := p.DSN
	if p.Driver == "postgres" {
		// Do not leak credentials embedded in the DSN.
		if i := strings.Index(dsn, "@"); i >= 0 {
			dsn = "postgres://***" + dsn[i:]
		}
	}
	return fmt.Sprintf("mode=%s addr=%s port=%d driver=%s dsn=%s data=%s", p.Mode, p.Addr, p.Port, p.Driver, dsn, p.Data)
}
