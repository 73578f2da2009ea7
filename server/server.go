package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"wuyrush.io/pinboard/auth"
	"wuyrush.io/pinboard/common/logging"
	rt "wuyrush.io/pinboard/common/retry"
	cst "wuyrush.io/pinboard/constants"
	"wuyrush.io/pinboard/services"
	st "wuyrush.io/pinboard/stores"
	"wuyrush.io/pinboard/stores/memstore"
)

const shutdownGracePeriod = 10 * time.Second

type serverConfig struct {
	ReqBodySizeMax  int64
	CookieSecure    bool
	RateLimitMax    int64
	RateLimitWindow time.Duration
	// ImageDir is set when images are kept on local disk and served by us
	ImageDir  string
	StaticDir string
	// TrustedProxies lists proxy IPs or CIDRs whose forwarding headers are believed; none by default
	TrustedProxies []string
}

// pinServer serves the JSON API of pinboard, plus images and the web client when configured
type pinServer struct {
	Users   *services.UserService
	Pins    *services.PinService
	Issuer  *auth.Issuer
	US      st.UserStore
	PS      st.PinStore
	IS      st.ImageStore
	Counter st.Counter // nil disables rate limiting
	Cfg     serverConfig
	Router  *gin.Engine
}

func newPinServer(issuer *auth.Issuer, us st.UserStore, ps st.PinStore, is st.ImageStore, counter st.Counter,
	cfg serverConfig) (*pinServer, error) {
	s := &pinServer{
		Users:   &services.UserService{Users: us, Issuer: issuer},
		Pins:    &services.PinService{Pins: ps, Users: us, Images: is},
		Issuer:  issuer,
		US:      us,
		PS:      ps,
		IS:      is,
		Counter: counter,
		Cfg:     cfg,
	}
	if err := s.SetupRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *pinServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func setDefaults() {
	viper.SetDefault(cst.EnvAppPort, "8080")
	viper.SetDefault(cst.EnvTokenTTL, "360h")
	viper.SetDefault(cst.EnvReqBodySizeMaxByte, 10<<20)
	viper.SetDefault(cst.EnvStoreBackend, cst.BackendCouch)
	viper.SetDefault(cst.EnvStoreUpdateMaxAttempts, 5)
	viper.SetDefault(cst.EnvCouchDBAddr, "http://localhost:5984")
	viper.SetDefault(cst.EnvCouchDBUserDB, "users")
	viper.SetDefault(cst.EnvCouchDBPinDB, "pins")
	viper.SetDefault(cst.EnvImageBackend, cst.BackendS3)
	viper.SetDefault(cst.EnvImageDir, "/tmp/pinboard/images")
	viper.SetDefault(cst.EnvRateLimitBackend, cst.BackendLocal)
	viper.SetDefault(cst.EnvRateLimitMax, 20)
	viper.SetDefault(cst.EnvRateLimitWindow, "1m")
	viper.SetDefault(cst.EnvLocalCacheSize, 10000)
}

// start up application server and serve incoming requests
func serve() error {
	// read configuration from env vars
	viper.AutomaticEnv()
	setDefaults()
	logging.SetupLog("PinServer")
	if !viper.GetBool(cst.EnvVerbose) {
		gin.SetMode(gin.ReleaseMode)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	issuer, err := auth.NewIssuer(viper.GetString(cst.EnvJWTSecret), viper.GetDuration(cst.EnvTokenTTL))
	if err != nil {
		return fmt.Errorf("invalid credential config: %w", err)
	}
	// initialize dependencies in data layer
	// NOTE docker compose's depends_on feature only guarantee the startup order of *service containers*,
	// instead of the services themselves - It is us who define when the services are ready
	us, ps, err := setupStores(ctx)
	if err != nil {
		return err
	}
	defer us.Close()
	defer ps.Close()
	cfg := serverConfig{
		ReqBodySizeMax:  viper.GetInt64(cst.EnvReqBodySizeMaxByte),
		CookieSecure:    viper.GetBool(cst.EnvCookieSecure),
		RateLimitMax:    viper.GetInt64(cst.EnvRateLimitMax),
		RateLimitWindow: viper.GetDuration(cst.EnvRateLimitWindow),
		StaticDir:       viper.GetString(cst.EnvStaticDir),
		TrustedProxies:  splitList(viper.GetString(cst.EnvTrustedProxies)),
	}
	is, imageDir, err := setupImageStore(ctx)
	if err != nil {
		return err
	}
	defer is.Close()
	cfg.ImageDir = imageDir
	counter, err := setupCounter(ctx)
	if err != nil {
		return err
	}
	if counter != nil {
		defer counter.Close()
	}

	svr, err := newPinServer(issuer, us, ps, is, counter, cfg)
	if err != nil {
		return err
	}
	host, port := viper.GetString(cst.EnvAppHost), viper.GetString(cst.EnvAppPort)
	hs := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", host, port),
		Handler:           svr,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"host": host,
			"port": port,
		}).Infof("pin server is starting up")
		errc <- hs.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("pin server is shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	return hs.Shutdown(sctx)
}

// splitList splits a comma separated env value, dropping empty items
func splitList(v string) []string {
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func depRetryOpts() []rt.RetryOption {
	return []rt.RetryOption{
		rt.WithTimeout(30 * time.Second),
		rt.WithBaseDelay(100 * time.Millisecond),
		rt.WithExp(2.0),
		rt.WithMaxBackoff(5 * time.Second),
		rt.WithRetryOn(rt.IsDepOffline),
	}
}

func setupStores(ctx context.Context) (st.UserStore, st.PinStore, error) {
	switch backend := viper.GetString(cst.EnvStoreBackend); backend {
	case cst.BackendMemory:
		log.Warn("using in-memory stores; all data is lost on exit")
		return memstore.NewUserStore(), memstore.NewPinStore(), nil
	case cst.BackendCouch:
		cfg := &st.CouchConfig{
			DBAddr:            viper.GetString(cst.EnvCouchDBAddr),
			DBUsername:        viper.GetString(cst.EnvCouchDBUsername),
			DBPasswd:          viper.GetString(cst.EnvCouchDBPasswd),
			UserDBName:        viper.GetString(cst.EnvCouchDBUserDB),
			PinDBName:         viper.GetString(cst.EnvCouchDBPinDB),
			UpdateMaxAttempts: viper.GetInt64(cst.EnvStoreUpdateMaxAttempts),
		}
		c, err := st.NewCouchClient(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed initializing CouchDB client: %w", err)
		}
		if err := rt.Retry(ctx, func() error {
			return st.EnsureDBs(ctx, c, cfg.UserDBName, cfg.PinDBName)
		}, depRetryOpts()...); err != nil {
			return nil, nil, fmt.Errorf("failed initializing CouchDB: %w", err)
		}
		us, err := st.NewCouchUserStore(ctx, c, cfg)
		if err != nil {
			return nil, nil, err
		}
		ps, err := st.NewCouchPinStore(ctx, c, cfg)
		if err != nil {
			return nil, nil, err
		}
		return us, ps, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// setupImageStore returns the configured image store, and the directory images are served from when they
// are kept locally
func setupImageStore(ctx context.Context) (st.ImageStore, string, error) {
	switch backend := viper.GetString(cst.EnvImageBackend); backend {
	case cst.BackendLocal:
		dir := viper.GetString(cst.EnvImageDir)
		return &st.LocalImageStore{Dir: dir}, dir, nil
	case cst.BackendS3:
		is, err := st.NewS3ImageStore(ctx, &st.S3Config{
			Endpoint:  viper.GetString(cst.EnvS3Endpoint),
			Region:    viper.GetString(cst.EnvS3Region),
			Bucket:    viper.GetString(cst.EnvS3Bucket),
			AccessKey: viper.GetString(cst.EnvS3AccessKey),
			SecretKey: viper.GetString(cst.EnvS3SecretKey),
			PublicURL: viper.GetString(cst.EnvS3PublicURL),
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed initializing S3 client: %w", err)
		}
		return is, "", nil
	default:
		return nil, "", fmt.Errorf("unknown image backend %q", backend)
	}
}

func setupCounter(ctx context.Context) (st.Counter, error) {
	switch backend := viper.GetString(cst.EnvRateLimitBackend); backend {
	case cst.BackendNone:
		log.Warn("rate limiting disabled")
		return nil, nil
	case cst.BackendLocal:
		return st.NewLocalCounter(viper.GetInt(cst.EnvLocalCacheSize)), nil
	case cst.BackendRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:       fmt.Sprintf("%s:%s", viper.GetString(cst.EnvRedisHost), viper.GetString(cst.EnvRedisPort)),
			Password:   viper.GetString(cst.EnvRedisPasswd),
			DB:         viper.GetInt(cst.EnvRedisDB),
			MaxRetries: 3,
		})
		// verify the client is up correctly
		pingFn := func() error {
			_, err := redisClient.Ping().Result()
			return err
		}
		if err := rt.Retry(ctx, pingFn, depRetryOpts()...); err != nil {
			return nil, fmt.Errorf("failed initializing Redis: %w", err)
		}
		return &st.RedisCounter{DB: redisClient}, nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", backend)
	}
}
