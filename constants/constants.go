// Package constants vends constants used in various components of pinboard, e.g., env var names
package constants

const (
	// -------------- env vars --------------
	// common
	EnvVerbose = "PIN_VERBOSE"
	// server
	EnvAppHost            = "PIN_HOST"
	EnvAppPort            = "PIN_PORT"
	EnvReqBodySizeMaxByte = "PIN_REQ_BODY_SIZE_MAX_BYTE"
	EnvStaticDir          = "PIN_STATIC_DIR"
	EnvTrustedProxies     = "PIN_TRUSTED_PROXIES"
	// auth
	EnvJWTSecret    = "PIN_JWT_SECRET"
	EnvTokenTTL     = "PIN_TOKEN_TTL"
	EnvCookieSecure = "PIN_COOKIE_SECURE"
	// stores
	EnvStoreBackend           = "PIN_STORE_BACKEND"
	EnvStoreUpdateMaxAttempts = "PIN_STORE_UPDATE_MAX_ATTEMPTS"
	EnvCouchDBAddr            = "COUCHDB_ADDR"
	EnvCouchDBUsername        = "COUCHDB_USERNAME"
	EnvCouchDBPasswd          = "COUCHDB_PASSWD"
	EnvCouchDBUserDB          = "COUCHDB_USER_DB"
	EnvCouchDBPinDB           = "COUCHDB_PIN_DB"
	// image storage
	EnvImageBackend = "PIN_IMAGE_BACKEND"
	EnvImageDir     = "PIN_IMAGE_DIR"
	EnvS3Endpoint   = "S3_ENDPOINT"
	EnvS3Region     = "S3_REGION"
	EnvS3Bucket     = "S3_BUCKET"
	EnvS3AccessKey  = "S3_ACCESS_KEY"
	EnvS3SecretKey  = "S3_SECRET_KEY"
	EnvS3PublicURL  = "S3_PUBLIC_URL"
	// rate limiting
	EnvRateLimitBackend = "PIN_RATE_LIMIT_BACKEND"
	EnvRateLimitMax     = "PIN_RATE_LIMIT_MAX"
	EnvRateLimitWindow  = "PIN_RATE_LIMIT_WINDOW"
	EnvLocalCacheSize   = "PIN_LOCAL_CACHE_SIZE"
	EnvRedisHost        = "REDIS_HOST"
	EnvRedisPort        = "REDIS_PORT"
	EnvRedisPasswd      = "REDIS_PASSWD"
	EnvRedisDB          = "REDIS_DB"

	// -------------- backends --------------
	BackendCouch  = "couch"
	BackendMemory = "memory"
	BackendS3     = "s3"
	BackendLocal  = "local"
	BackendRedis  = "redis"
	BackendNone   = "none"

	// -------------- http --------------
	CookieNameToken = "token"
	HeaderAuthz     = "Authorization"
	BearerPrefix    = "Bearer "
	ImageURLPrefix  = "/images"

	// -------------- request context keys --------------
	CtxKeyUser = "pinboard.user"

	// -------------- error messages --------------
	ErrMsgRequestBodyTooLarge = "request body too large"

	// -------------- log fields --------------
	LogFieldFuncName = "funcName"
)
