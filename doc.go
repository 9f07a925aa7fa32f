// Package relay is an extract, transform and load engine that moves records
// between adapters: paginated HTTP APIs, SQL databases, MongoDB, Kafka, object
// stores (S3, GCS) and BigQuery.
//
// # Architecture
//
// A pipeline names a source connector (or an inline dataset), an optional
// target connector and per-run policies. The engine:
//
//  1. Resolves stored credentials, refreshing expired OAuth2 tokens first.
//  2. Resolves the pagination window once against the adapter's declaration.
//  3. Downloads pages until a stop condition holds (short page, missing
//     cursor, record cap, timeout), retrying each call under the run policy.
//  4. Applies the source transforms once over the whole extract.
//  5. Uploads the result in sequential batches through the target.
//  6. Disconnects every connected adapter, even after a failure.
//
// # Quick Start
//
//	engine := pipeline.NewEngine(credentials.NewManager(vault.NewMemoryVault(), logger.Get()))
//	res, err := engine.Run(ctx, &pipeline.Pipeline{
//	    Name:   "users",
//	    Source: &models.Connector{Adapter: "http", Endpoint: "users", Config: cfg},
//	    Target: &models.Connector{Adapter: "sql", Endpoint: "users"},
//	    ErrorHandling: retry.Policy{MaxRetries: 3, RetryInterval: time.Second},
//	})
//
// Or from the command line:
//
//	relay run -f pipelines.yaml
//	relay schedule -f pipelines.yaml
//
// # Key Packages
//
//	internal/pipeline        - Run engine, pagination resolver, RunAll
//	pkg/connector/core       - Adapter contract and descriptors
//	pkg/connector/registry   - Adapter registry filled by adapter init()
//	pkg/connector/adapters   - memory, http, sql, mongodb, kafka, s3, gcs, bigquery
//	pkg/credentials          - OAuth2 refresh over a credential vault
//	pkg/retry                - Bounded retry executor
//	pkg/transform            - Per-record field transforms
//	pkg/formats              - jsonl, csv and avro record codecs
//	pkg/compression          - gzip, zstd and lz4 object compression
//
// # Configuration
//
// Process settings come from relay.yaml and RELAY_* environment variables.
// Pipeline files are YAML with ${VAR} and ${VAR:-default} substitution:
//
//	pipelines:
//	  - name: users
//	    schedule: "@hourly"
//	    source:
//	      adapter: http
//	      endpoint: users
//	      credential: crm
//	      config:
//	        base_url: https://api.example.com
//	        pagination: offset
//	    target:
//	      adapter: sql
//	      endpoint: users
//	      config:
//	        dialect: postgres
//	        dsn: ${USERS_DSN}
package relay
