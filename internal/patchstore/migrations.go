package patchstore

const schema = `
CREATE TABLE IF NOT EXISTS patches (
    id TEXT PRIMARY KEY,
    repo_url TEXT NOT NULL,
    patches TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    source TEXT NOT NULL,
    demo_fallback BOOLEAN DEFAULT FALSE,
    retry_after INTEGER DEFAULT 0,
    pr_url TEXT,
    signature TEXT,
    signed_at TIMESTAMP,
    signer TEXT
);

CREATE INDEX IF NOT EXISTS idx_patches_repo_url ON patches(repo_url);
CREATE INDEX IF NOT EXISTS idx_patches_created_at ON patches(created_at);

CREATE TABLE IF NOT EXISTS proposals (
    id TEXT PRIMARY KEY,
    repo_url TEXT NOT NULL,
    patch_id TEXT,
    patches TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    pr_url TEXT
);

CREATE INDEX IF NOT EXISTS idx_proposals_status ON proposals(status);

CREATE TABLE IF NOT EXISTS autoscan_repos (
    position INTEGER PRIMARY KEY AUTOINCREMENT,
    repo_url TEXT NOT NULL
);
`
