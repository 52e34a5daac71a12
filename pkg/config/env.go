package config

// EnvPrefix is the envconfig prefix shared by every binary.
const EnvPrefix = "briefwire"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv   = "BRIEFWIRE_APP_ENV"
	EnvPort     = "BRIEFWIRE_APP_PORT"
	EnvDBDSN    = "BRIEFWIRE_DB_DSN"
	EnvDBHost   = "BRIEFWIRE_DB_HOST"
	EnvDBUser   = "BRIEFWIRE_DB_USER"
	EnvDBName   = "BRIEFWIRE_DB_NAME"
	EnvRedisURL = "BRIEFWIRE_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
