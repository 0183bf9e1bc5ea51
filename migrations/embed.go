// Package migrations embeds the eduid schema files (accounts, token
// revocations, verification codes, rate-limit counters, role applications)
// so deploy tooling and tests read the same SQL the stores were written
// against.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
