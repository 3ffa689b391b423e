// Package main hosts the wikicorpus entrypoint.
//
// Architecture overview:
//   - Scan: internal/scanner streams the dump (plain, bzip2, gzip, or zstd) with a token-level XML
//     decoder, keeps namespace-0 pages with a usable title, body, and revision, and tallies variant
//     markers across every page.
//   - Dispatch & render: internal/dispatcher fans pages out over bounded lanes (one shared queue or
//     one per worker) to a fixed pool of internal/worker goroutines. Each worker renders the title
//     and body through the MediaWiki parse API (internal/render/mediawiki, Colly) under a per-host
//     rate limit and an optional retry policy, then normalizes the HTML into plain paragraphs.
//   - Store: internal/batch groups clean pages into row groups of pipeline.batch_size rows and
//     internal/storage/columnar writes them with Arrow's pqarrow writer. Lookups and inspection use
//     parquet-go.
//   - Publish: after a successful build the file is checksummed, archived (local directory and/or
//     GCS), announced on Pub/Sub, and recorded in a Postgres manifest, each step only when set.
//   - Plumbing: Viper loads config from file, WIKICORPUS_* env, and flags; zap provides structured
//     logging; Prometheus metrics and a progress snapshot are served when metrics.addr is set.
//
// Operational notes:
//   - Render failures and empty results drop the page with a warning; the build continues. Dump
//     parse errors and storage errors stop it, but the Parquet file is still finalized.
//   - SIGINT/SIGTERM cancel the build; row groups already written stay readable.
//
// Quick checklist:
//   - wikicorpus build --dump zhwiki.xml.bz2 --endpoint https://zh.wikipedia.org/w/api.php --variant zh-tw
//   - wikicorpus lookup --file wikipedia-zh-tw.parquet 13 42
//   - wikicorpus inspect --file wikipedia-zh-tw.parquet
//   - wikicorpus count --dump zhwiki.xml.bz2
package main
