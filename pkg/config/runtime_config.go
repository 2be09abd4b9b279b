package config

// RuntimeConfig configures the domain-specific integrations layered on top
// of the generic server/database/auth settings: credential encryption,
// OAuth2 orchestration, multi-tenant quotas, semantic search embeddings,
// the custom-instruction policy judge, and per-client rate limiting.
type RuntimeConfig struct {
	Crypto     CryptoConfig     `json:"crypto"`
	OAuth2     OAuth2Config     `json:"oauth2"`
	Quota      QuotaConfig      `json:"quota"`
	Embeddings EmbeddingsConfig `json:"embeddings"`
	Policy     PolicyConfig     `json:"policy"`
	RateLimit  RateLimitConfig  `json:"rate_limit" mapstructure:"rate_limit"`
}

// CryptoConfig configures envelope encryption (spec §4.1). MasterKeyBase64
// must decode to exactly 32 bytes; HMACSecret backs both API-key lookup
// hashing and OAuth2 state signing.
type CryptoConfig struct {
	MasterKeyBase64 string `json:"master_key_base64" mapstructure:"master_key_base64" env:"CRYPTO_MASTER_KEY_BASE64"`
	HMACSecret      string `json:"hmac_secret" mapstructure:"hmac_secret" env:"CRYPTO_HMAC_SECRET"`
}

// OAuth2Config configures the authorization-code + PKCE orchestrator (spec
// §4.5). RedirectBaseURL is combined with an App's name to build the
// provider-facing redirect_uri.
type OAuth2Config struct {
	RedirectBaseURL string `json:"redirect_base_url" mapstructure:"redirect_base_url" env:"OAUTH2_REDIRECT_BASE_URL"`
}

// QuotaConfig sets the org/project ceilings enforced by
// internal/app/services/quota (spec §4.4). The same limits apply to every
// org and Project; the Project row carries no per-project override.
type QuotaConfig struct {
	MaxProjectsPerOrg   int `json:"max_projects_per_org" mapstructure:"max_projects_per_org" env:"QUOTA_MAX_PROJECTS_PER_ORG"`
	MaxAgentsPerProject int `json:"max_agents_per_project" mapstructure:"max_agents_per_project" env:"QUOTA_MAX_AGENTS_PER_PROJECT"`
	DailyExecutionQuota int `json:"daily_execution_quota" mapstructure:"daily_execution_quota" env:"QUOTA_DAILY_EXECUTION_QUOTA"`
}

// EmbeddingsConfig configures the OpenAI embeddings client used by the
// semantic discovery layer (spec §4.9).
type EmbeddingsConfig struct {
	APIKey     string `json:"api_key" mapstructure:"api_key" env:"EMBEDDINGS_API_KEY"`
	Model      string `json:"model" env:"EMBEDDINGS_MODEL"`
	Dimensions int    `json:"dimensions" env:"EMBEDDINGS_DIMENSIONS"`
}

// PolicyConfig configures the custom-instruction judge (spec §4.7).
type PolicyConfig struct {
	APIKey     string `json:"api_key" mapstructure:"api_key" env:"POLICY_JUDGE_API_KEY"`
	JudgeModel string `json:"judge_model" mapstructure:"judge_model" env:"POLICY_JUDGE_MODEL"`
}

// RateLimitConfig sets the two independent per-client-IP windows enforced
// by internal/app/middleware (spec §5/§6).
type RateLimitConfig struct {
	PerSecondLimit int `json:"per_second_limit" mapstructure:"per_second_limit" env:"RATE_LIMIT_PER_SECOND"`
	PerDayLimit    int `json:"per_day_limit" mapstructure:"per_day_limit" env:"RATE_LIMIT_PER_DAY"`
	// RedisAddr is optional: when set, the per-day budget is enforced by a
	// shared Redis counter (host:port) instead of the in-memory window, so
	// a fleet of instances share one ceiling per client.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" env:"RATE_LIMIT_REDIS_ADDR"`
}
