package domain

import "time"

// CallTimeout caps a single upstream call from an MCP tool handler.
const CallTimeout = 30 * time.Second

// LongCallTimeout caps calls that fan out into many upstream requests, such
// as multi-file commits or bulk issue creation.
const LongCallTimeout = 2 * time.Minute
