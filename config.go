package cascade

import (
	"os"
	"strconv"
	"time"
)

// Config carries the environment-driven settings of a cascade deployment.
type Config struct {
	// Port the HTTP surface listens on.
	Port int
	// ProtectionWindow is the minimum time a node must sit at refcount 0
	// before GC may reclaim it.
	ProtectionWindow time.Duration
	// GCInterval is the pause between collector runs.
	GCInterval time.Duration
	// GCBatchSize entries are processed per ListPending page.
	GCBatchSize int
	// GCMaxBatches bounds a single collector run.
	GCMaxBatches int
	// NodeSizeLimit caps an encoded node's byte size.
	NodeSizeLimit int64
	// MaxNameBytes caps a collection entry name's UTF-8 byte length.
	MaxNameBytes int
	// MaxTicketTTL caps ticket lifetimes.
	MaxTicketTTL time.Duration
	// MaxAgentTokenTTL caps agent token lifetimes.
	MaxAgentTokenTTL time.Duration
	// IdPIssuer is the OIDC issuer URL whose JWTs are accepted.
	IdPIssuer string
	// IdPClientID is the app client handed to browser clients.
	IdPClientID string
	// IdPRegion hosts the identity pool.
	IdPRegion string
	// BlobBackend selects the blob store: "fs", "s3" or "cassandra".
	BlobBackend string
	// BlobBasePath is the fs backend's base folder.
	BlobBasePath string
	// BlobBucket is the s3 backend's bucket name.
	BlobBucket string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Port:             8080,
		ProtectionWindow: 72 * time.Hour,
		GCInterval:       time.Hour,
		GCBatchSize:      100,
		GCMaxBatches:     50,
		NodeSizeLimit:    4 * 1024 * 1024,
		MaxNameBytes:     255,
		MaxTicketTTL:     24 * time.Hour,
		MaxAgentTokenTTL: 30 * 24 * time.Hour,
		BlobBackend:      "fs",
		BlobBasePath:     "data",
		BlobBucket:       "cascade-blobs",
	}
}

// LoadConfig reads the CASCADE_* environment variables over the defaults.
func LoadConfig() Config {
	c := DefaultConfig()
	c.Port = envInt("CASCADE_PORT", c.Port)
	if h := envInt("CASCADE_PROTECTION_WINDOW_HOURS", int(c.ProtectionWindow/time.Hour)); h >= 0 {
		c.ProtectionWindow = time.Duration(h) * time.Hour
	}
	if m := envInt("CASCADE_GC_INTERVAL_MINUTES", int(c.GCInterval/time.Minute)); m > 0 {
		c.GCInterval = time.Duration(m) * time.Minute
	}
	c.GCBatchSize = envInt("CASCADE_GC_BATCH_SIZE", c.GCBatchSize)
	c.GCMaxBatches = envInt("CASCADE_GC_MAX_BATCHES", c.GCMaxBatches)
	c.NodeSizeLimit = int64(envInt("CASCADE_NODE_SIZE_LIMIT", int(c.NodeSizeLimit)))
	c.MaxNameBytes = envInt("CASCADE_MAX_NAME_BYTES", c.MaxNameBytes)
	if h := envInt("CASCADE_MAX_TICKET_TTL_HOURS", int(c.MaxTicketTTL/time.Hour)); h > 0 {
		c.MaxTicketTTL = time.Duration(h) * time.Hour
	}
	if d := envInt("CASCADE_MAX_AGENT_TOKEN_TTL_DAYS", int(c.MaxAgentTokenTTL/(24*time.Hour))); d > 0 {
		c.MaxAgentTokenTTL = time.Duration(d) * 24 * time.Hour
	}
	c.IdPIssuer = envStr("CASCADE_IDP_ISSUER", c.IdPIssuer)
	c.IdPClientID = envStr("CASCADE_IDP_CLIENT_ID", c.IdPClientID)
	c.IdPRegion = envStr("CASCADE_IDP_REGION", c.IdPRegion)
	c.BlobBackend = envStr("CASCADE_BLOB_BACKEND", c.BlobBackend)
	c.BlobBasePath = envStr("CASCADE_BLOB_BASE_PATH", c.BlobBasePath)
	c.BlobBucket = envStr("CASCADE_BLOB_BUCKET", c.BlobBucket)
	return c
}

func envStr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
