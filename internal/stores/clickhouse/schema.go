package clickhouse

const createQuoteJournal = `
CREATE TABLE IF NOT EXISTS quote_journal (
	created_at          DateTime64(3, 'UTC'),
	quote_id            String,
	kind                LowCardinality(String),
	chain_id            UInt64,
	token_in            String,
	token_out           String,
	amount_in           String,
	amount_out          String,
	price               String,
	source              LowCardinality(String),
	fee_tier            UInt32,
	price_impact        String,
	simulation_success  UInt8
)
ENGINE = MergeTree
PARTITION BY toYYYYMM(created_at)
ORDER BY (chain_id, kind, created_at)
`

const insertQuoteJournal = `
	INSERT INTO quote_journal (
		created_at,
		quote_id,
		kind,
		chain_id,
		token_in,
		token_out,
		amount_in,
		amount_out,
		price,
		source,
		fee_tier,
		price_impact,
		simulation_success
	)
`
