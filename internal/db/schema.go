package db

// SchemaSQL contains the database schema initialization SQL. The knowledge
// HNSW index is defined separately in InitSchema because its dimension
// depends on the configured embedding model.
const SchemaSQL = `
    -- ==========================================================================
    -- JOB TABLE (discovered postings, immutable once scraped)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS job_id ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS company ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS location ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS job_link ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS hirer_name ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS hirer_profile_link ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS description ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS scraped_at ON job TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS job_company ON job FIELDS company;

    -- ==========================================================================
    -- ATTEMPT TABLE (one per job, keyed by job id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS attempt SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS job_id ON attempt TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON attempt TYPE string
        ASSERT $value IN ["discovered", "in_progress", "submitted", "failed", "skipped"];
    DEFINE FIELD IF NOT EXISTS step_cursor ON attempt TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS started_at ON attempt TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS ended_at ON attempt TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS failure_reason ON attempt TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS failure_detail ON attempt TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS application_method ON attempt TYPE string DEFAULT "easy_apply";
    DEFINE FIELD IF NOT EXISTS confirmation_number ON attempt TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS needs_review ON attempt TYPE bool DEFAULT false;

    DEFINE INDEX IF NOT EXISTS attempt_status ON attempt FIELDS status;

    -- ==========================================================================
    -- ANSWER TABLE (per-attempt log, keyed attempt|question for idempotency)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS answer SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS attempt_id ON answer TYPE string;
    DEFINE FIELD IF NOT EXISTS normalized_text ON answer TYPE string;
    DEFINE FIELD IF NOT EXISTS question_text ON answer TYPE string;
    DEFINE FIELD IF NOT EXISTS value ON answer TYPE string;
    DEFINE FIELD IF NOT EXISTS confidence ON answer TYPE float DEFAULT 0.0;
    DEFINE FIELD IF NOT EXISTS source ON answer TYPE string
        ASSERT $value IN ["knowledge_store", "generative", "manual"];
    DEFINE FIELD IF NOT EXISTS answered_at ON answer TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS blank ON answer TYPE bool DEFAULT false;

    DEFINE INDEX IF NOT EXISTS answer_attempt ON answer FIELDS attempt_id;
    DEFINE INDEX IF NOT EXISTS answer_unique ON answer FIELDS attempt_id, normalized_text UNIQUE;

    -- ==========================================================================
    -- KNOWLEDGE TABLE (shared Q&A repository, keyed by normalized text)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS knowledge SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS normalized_text ON knowledge TYPE string;
    DEFINE FIELD IF NOT EXISTS question_text ON knowledge TYPE string;
    DEFINE FIELD IF NOT EXISTS value ON knowledge TYPE string;
    DEFINE FIELD IF NOT EXISTS kind ON knowledge TYPE string;
    DEFINE FIELD IF NOT EXISTS confidence ON knowledge TYPE float DEFAULT 1.0;
    DEFINE FIELD IF NOT EXISTS times_asked ON knowledge TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS updated_at ON knowledge TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS embedding ON knowledge TYPE array<float> DEFAULT [];

    DEFINE ANALYZER IF NOT EXISTS knowledge_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS knowledge_question_ft ON knowledge FIELDS question_text FULLTEXT ANALYZER knowledge_analyzer BM25;

    -- ==========================================================================
    -- RUN EVENT TABLE (retry/block/transition log per attempt)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS run_event SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS run_id ON run_event TYPE string;
    DEFINE FIELD IF NOT EXISTS attempt_id ON run_event TYPE string;
    DEFINE FIELD IF NOT EXISTS kind ON run_event TYPE string;
    DEFINE FIELD IF NOT EXISTS detail ON run_event TYPE string;
    DEFINE FIELD IF NOT EXISTS step ON run_event TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS at ON run_event TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS run_event_attempt ON run_event FIELDS attempt_id;
`
