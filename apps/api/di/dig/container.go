package dig_container

import (
	"database/sql"
	"log"
	"os"
	"sync"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
	"github.com/trezcool/shule/core/lesson"
	"github.com/trezcool/shule/core/role"
	"github.com/trezcool/shule/core/subscription"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/services/querycache"
	claimstore "github.com/trezcool/shule/storage/claims"
	"github.com/trezcool/shule/storage/database"
	dummydb "github.com/trezcool/shule/storage/database/dummy"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type ClaimStoreCloserParam struct {
	dig.In
	Close func() error `name:"closeClaimStore"`
}

type claimStoreResult struct {
	dig.Out
	Store subscription.ClaimStore
	Close func() error `name:"closeClaimStore"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

// Backend is the system of record. It serves core.ErrNotReady until Connect succeeds.
type Backend struct {
	*backend.Lazy

	conf   *core.Config
	logger core.Logger

	mu sync.Mutex
	db *sql.DB
}

func newBackend(conf *core.Config, loggerParam DBLoggerParam) *Backend {
	return &Backend{Lazy: backend.NewLazy(), conf: conf, logger: loggerParam.Logger}
}

// Connect sets up the backend client. The "dummy" engine serves an empty in-memory store.
func (b *Backend) Connect() error {
	if b.conf.Database.Engine == "dummy" {
		db, err := dummydb.Open()
		if err != nil {
			return errors.Wrap(err, "opening dummy database")
		}
		b.Set(dummydb.NewClient(db))
		return nil
	}

	if err := database.CreateIfNotExist(b.conf); err != nil {
		return err
	}
	db, err := database.Open(b.conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	if err = database.Ping(db); err != nil {
		_ = db.Close()
		return err
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return err
	}

	b.mu.Lock()
	b.db = db
	b.mu.Unlock()

	b.Set(querycache.Wrap(sqlxrepos.NewClient(db), b.conf.Cache.Size, b.conf.Cache.TTL))
	b.logger.Info("backend ready")
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func newProvider(b *Backend) backend.Provider {
	return b
}

func newClaimStore(conf *core.Config) (claimStoreResult, error) {
	store, closer, err := claimstore.Open(conf)
	if err != nil {
		return claimStoreResult{}, err
	}
	return claimStoreResult{Store: store, Close: closer}, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	return core.NewTranslator()
}

func newSubscriptionService(
	conf *core.Config,
	provider backend.Provider,
	store subscription.ClaimStore,
	mailSvc core.EmailService,
	logger core.Logger,
) *subscription.Service {
	return subscription.NewService(provider, store, mailSvc, logger, subscription.Options{
		UniquePending: conf.Claims.UniquePending,
		NotifyTo:      core.ParseAddressList(conf.Email.AdminNotifyEmail),
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newBackend))
	must(c.Provide(newProvider))
	must(c.Provide(newClaimStore))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(role.NewResolver))
	must(c.Provide(newSubscriptionService))
	must(c.Provide(lesson.NewService))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
