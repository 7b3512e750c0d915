package container

import (
	"context"
	"fmt"
	"time"

	"github.com/zfogg/friendlypix/internal/admins"
	"github.com/zfogg/friendlypix/internal/auth"
	"github.com/zfogg/friendlypix/internal/cache"
	"github.com/zfogg/friendlypix/internal/cascade"
	"github.com/zfogg/friendlypix/internal/config"
	"github.com/zfogg/friendlypix/internal/database"
	"github.com/zfogg/friendlypix/internal/email"
	"github.com/zfogg/friendlypix/internal/hashtags"
	"github.com/zfogg/friendlypix/internal/hooks"
	"github.com/zfogg/friendlypix/internal/imageblur"
	"github.com/zfogg/friendlypix/internal/jobs"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/moderation"
	"github.com/zfogg/friendlypix/internal/notify"
	"github.com/zfogg/friendlypix/internal/pathindex"
	"github.com/zfogg/friendlypix/internal/profiles"
	"github.com/zfogg/friendlypix/internal/push"
	"github.com/zfogg/friendlypix/internal/reports"
	"github.com/zfogg/friendlypix/internal/repository"
	"github.com/zfogg/friendlypix/internal/search"
	"github.com/zfogg/friendlypix/internal/storage"
	"github.com/zfogg/friendlypix/internal/store/sqlstore"
	"github.com/zfogg/friendlypix/internal/telemetry"
	"github.com/zfogg/friendlypix/internal/vision"
	"go.uber.org/zap"
)

// LoadIndex reads the cascade rules from file, or the built-in rules when
// file is empty.
func LoadIndex(file string) (*pathindex.Index, error) {
	if file == "" {
		return pathindex.Default()
	}
	rs, err := pathindex.LoadRuleSet(file)
	if err != nil {
		return nil, err
	}
	return pathindex.New(rs)
}

// Build connects every configured collaborator and assembles the services.
// Optional collaborators that fail to connect are logged and left out.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Container, error) {
	log = logger.OrDefault(log)
	ix, err := LoadIndex(cfg.RulesFile)
	if err != nil {
		return nil, err
	}

	var cleanups []func(context.Context) error
	infra := Infra{}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func(context.Context) error { return database.Close(db) })
	infra.DB = db
	infra.Store = sqlstore.New(db, ix.Indexes())
	infra.Users = repository.NewUserRepository(db)

	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("Redis unavailable, cascades run uncoordinated", zap.Error(err))
		} else {
			infra.Cache = rc
			cleanups = append(cleanups, func(context.Context) error { return rc.Close() })
		}
	}

	switch cfg.StorageDriver {
	case "s3":
		s3, err := storage.NewS3Store(ctx, cfg.AWSRegion, cfg.AWSBucket)
		if err != nil {
			log.Warn("S3 unavailable, image cleanup disabled", zap.Error(err))
		} else {
			infra.Objects = s3
		}
	case "minio":
		mc, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Warn("MinIO unavailable, image cleanup disabled", zap.Error(err))
		} else {
			infra.Objects = mc
		}
	}

	if cfg.ElasticsearchURL != "" {
		es, err := search.NewClient(cfg.ElasticsearchURL, telemetry.NewInstrumentedHTTPClient(nil, 0).Transport)
		if err == nil {
			err = es.InitializeIndices(ctx)
		}
		if err != nil {
			log.Warn("Elasticsearch unavailable, search mirror disabled", zap.Error(err))
		} else {
			infra.Search = es
		}
	}

	if cfg.SESFromEmail != "" {
		mailer, err := email.NewSESMailer(cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName)
		if err != nil {
			log.Warn("SES unavailable, report emails disabled", zap.Error(err))
		} else {
			infra.Mailer = mailer
		}
	}

	if cfg.FCMProjectID != "" {
		if hc, err := config.GoogleHTTPClient(ctx, config.ScopeFirebaseMessages); err != nil {
			log.Warn("Google credentials unavailable, push disabled", zap.Error(err))
		} else {
			infra.Push = push.NewFCMSender(telemetry.NewInstrumentedHTTPClient(hc, 0), cfg.FCMEndpoint, cfg.FCMProjectID)
		}
	}

	if cfg.VisionEndpoint != "" {
		if hc, err := config.GoogleHTTPClient(ctx, config.ScopeCloudVision); err != nil {
			log.Warn("Google credentials unavailable, image checks disabled", zap.Error(err))
		} else {
			infra.Classifier = vision.NewClient(telemetry.NewInstrumentedHTTPClient(hc, 0), cfg.VisionEndpoint, objectFetcher(infra.Objects, cfg.CDNBaseURL))
		}
	}

	c, err := Assemble(cfg, ix, infra, log)
	if err != nil {
		for i := len(cleanups) - 1; i >= 0; i-- {
			_ = cleanups[i](ctx)
		}
		return nil, err
	}
	for _, fn := range cleanups {
		c.OnCleanup(fn)
	}
	return c, nil
}

// objectFetcher lets the classifier read images that have no public URI
func objectFetcher(objects storage.ObjectStore, baseURL string) vision.Fetcher {
	if objects == nil {
		return nil
	}
	return func(ctx context.Context, ref string) ([]byte, error) {
		name, err := storage.ObjectName(ref, baseURL)
		if err != nil {
			return nil, err
		}
		obj, err := objects.Download(ctx, name)
		if err != nil {
			return nil, err
		}
		return obj.Data, nil
	}
}

// Assemble builds the domain services on top of already connected
// collaborators.
func Assemble(cfg *config.Config, ix *pathindex.Index, infra Infra, log *zap.Logger) (*Container, error) {
	log = logger.OrDefault(log)
	c := &Container{cfg: cfg, logger: log, infra: infra, index: ix}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	filter, err := moderation.NewFilter(moderation.Config{
		BlockList:       cfg.BlockList,
		ShoutThreshold:  cfg.ShoutThreshold,
		MinShoutLetters: cfg.MinShoutLetters,
		Mask:            cfg.Mask,
	})
	if err != nil {
		return nil, err
	}
	c.filter = filter

	opts := []cascade.Option{
		cascade.WithLogger(log),
		cascade.WithConcurrency(cfg.PoolConcurrency),
	}
	if infra.Objects != nil {
		opts = append(opts, cascade.WithObjectStore(infra.Objects, cfg.CDNBaseURL))
	}
	if infra.Search != nil {
		opts = append(opts, cascade.WithSearch(infra.Search))
	}
	if infra.Cache != nil {
		opts = append(opts, cascade.WithCoordinator(infra.Cache, cfg.CascadeLeaseTTL))
	}
	if c.cascade, err = cascade.New(ix, infra.Store, opts...); err != nil {
		return nil, fmt.Errorf("cascade service: %w", err)
	}

	c.jobs = jobs.NewRunner(infra.Store, infra.Users, c.cascade, jobs.Config{
		PostMaxAge:       cfg.PostMaxAge,
		InactivityWindow: cfg.InactivityWindow,
		Concurrency:      cfg.PoolConcurrency,
	}, log)
	c.profiles = profiles.NewPublisher(infra.Store, infra.Users, infra.Objects, cfg.CDNBaseURL, log)
	c.tokens = auth.NewService([]byte(cfg.JWTSecret), infra.Users)

	d := &hooks.Dispatcher{
		Text:     moderation.NewTextHook(filter, infra.Store, log),
		Hashtags: hashtags.NewIndexer(infra.Store, log),
		Admins:   admins.NewMarker(infra.Store, infra.Users, log),
		Profiles: c.profiles,
		Cascade:  c.cascade,
		Users:    infra.Users,
		Log:      log,
	}
	if infra.Push != nil {
		d.Followers = notify.NewFollowerNotifier(infra.Store, infra.Users, infra.Push, cfg.WebBaseURL, log)
	}
	if infra.Mailer != nil {
		var dedupe reports.Deduper
		if infra.Cache != nil {
			dedupe = infra.Cache
		}
		d.Reports = reports.NewMailer(infra.Store, infra.Users, infra.Mailer, cfg.ModeratorEmail, cfg.WebBaseURL, dedupe, log)
	}
	if infra.Classifier != nil {
		c.guard = moderation.NewGuard(infra.Classifier, moderation.DefaultPolicy(), cfg.ClassifierFailOpen, log)
		d.Guard = c.guard
		if infra.Objects != nil {
			d.Blurrer = imageblur.NewBlurrer(infra.Objects, infra.Store, cfg.CDNBaseURL, nil, log)
		}
	}
	c.hooks = d

	c.OnCleanup(func(context.Context) error {
		log.Debug("Container shut down")
		return nil
	})
	return c, nil
}

// DefaultConfig returns settings suitable for in-process use without
// external services
func DefaultConfig() *config.Config {
	return &config.Config{
		Environment:      "test",
		WebBaseURL:       "https://friendly-pix.com",
		PoolConcurrency:  cascade.DefaultConcurrency,
		PostMaxAge:       30 * 24 * time.Hour,
		InactivityWindow: 30 * 24 * time.Hour,
		CascadeLeaseTTL:  10 * time.Minute,
		ShoutThreshold:   0.5,
		MinShoutLetters:  3,
		Mask:             "****",
	}
}
