package database

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(36) PRIMARY KEY,
    email VARCHAR(255) NOT NULL UNIQUE,
    role VARCHAR(16) NOT NULL DEFAULT 'USER',
    credits INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    CHECK (credits >= 0)
)`,
	`CREATE TABLE IF NOT EXISTS ai_models (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    description TEXT,
    cost_per_generation INT NOT NULL DEFAULT 0,
    max_duration INT NOT NULL DEFAULT 0,
    default_duration INT NOT NULL DEFAULT 0,
    default_cfg_scale DOUBLE NOT NULL DEFAULT 0.5,
    supports_image_to_video TINYINT(1) NOT NULL DEFAULT 0,
    supports_text_to_video TINYINT(1) NOT NULL DEFAULT 0,
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS generation_requests (
    id VARCHAR(36) PRIMARY KEY,
    user_id VARCHAR(36) NOT NULL,
    prompt TEXT NOT NULL,
    media_type VARCHAR(8) NOT NULL,
    model_id VARCHAR(64) NOT NULL,
    cost_credits INT NOT NULL,
    duration INT NOT NULL DEFAULT 0,
    cfg_scale DOUBLE NOT NULL DEFAULT 0,
    source_image TEXT,
    status VARCHAR(16) NOT NULL,
    output_url TEXT,
    failure_reason TEXT,
    provider_task_id VARCHAR(128),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    expires_at TIMESTAMP NOT NULL,
    INDEX idx_requests_user_created (user_id, created_at),
    INDEX idx_requests_status_expires (status, expires_at),
    FOREIGN KEY (user_id) REFERENCES users(id)
)`,
	`CREATE TABLE IF NOT EXISTS app_config (
    id TINYINT PRIMARY KEY,
    retention_days INT NOT NULL DEFAULT 7,
    cost_per_image INT NOT NULL DEFAULT 1,
    cost_per_video INT NOT NULL DEFAULT 5
)`,
}

var seedStatements = []string{
	`INSERT IGNORE INTO app_config (id, retention_days, cost_per_image, cost_per_video)
VALUES (1, 7, 1, 5)`,
	`INSERT IGNORE INTO ai_models
    (id, name, description, cost_per_generation, max_duration, default_duration, default_cfg_scale,
     supports_image_to_video, supports_text_to_video, is_active)
VALUES
    ('kling-v2-5-pro', 'Kling v2.5 Pro',
     'Advanced AI model for image-to-video and text-to-video generation',
     5, 10, 5, 0.5, 1, 1, 1)`,
	`INSERT IGNORE INTO users (id, email, role, credits)
VALUES
    ('admin-1', 'admin@example.com', 'ADMIN', 99999),
    ('user-1', 'user@example.com', 'USER', 10)`,
}
