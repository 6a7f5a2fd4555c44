package db

// SchemaSQL defines the saved_item and reindex_job tables.
// The vector table lives with its index implementation (internal/vector).
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS saved_item SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner ON saved_item TYPE string;
    DEFINE FIELD IF NOT EXISTS source_platform ON saved_item TYPE string DEFAULT "generic";
    DEFINE FIELD IF NOT EXISTS source_url ON saved_item TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS content_type ON saved_item TYPE string ASSERT $value IN ["text", "url", "image"];
    DEFINE FIELD IF NOT EXISTS title ON saved_item TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS description ON saved_item TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS thumbnail_url ON saved_item TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS raw_content ON saved_item TYPE string;
    DEFINE FIELD IF NOT EXISTS extracted_text ON saved_item TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS ai_summary ON saved_item TYPE option<string>;
    -- TODO: Use set<string> when Go SDK supports CBOR tag 56 (v3.0 set type)
    DEFINE FIELD IF NOT EXISTS categories ON saved_item TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS notes ON saved_item TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS is_starred ON saved_item TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS created_at ON saved_item TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON saved_item TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS saved_item_owner_created ON saved_item FIELDS owner, created_at;
    DEFINE INDEX IF NOT EXISTS saved_item_owner_starred ON saved_item FIELDS owner, is_starred;
    DEFINE INDEX IF NOT EXISTS saved_item_categories ON saved_item FIELDS categories;
    DEFINE INDEX IF NOT EXISTS saved_item_platform ON saved_item FIELDS owner, source_platform;

    DEFINE TABLE IF NOT EXISTS reindex_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS requested_by ON reindex_job TYPE string;
    DEFINE FIELD IF NOT EXISTS scope ON reindex_job TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS reenrich ON reindex_job TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS status ON reindex_job TYPE string ASSERT $value IN ["pending", "running", "completed", "failed"];
    DEFINE FIELD IF NOT EXISTS total ON reindex_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS progress ON reindex_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS scanned ON reindex_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS reindexed ON reindex_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS skipped ON reindex_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS failed ON reindex_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS error ON reindex_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS started_at ON reindex_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON reindex_job TYPE option<datetime>;
    DEFINE INDEX IF NOT EXISTS reindex_job_status ON reindex_job FIELDS status;
`
